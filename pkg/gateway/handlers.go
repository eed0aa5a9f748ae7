package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
	"github.com/lwoyr/AdsTrendsAPI/internal/validation"
	"github.com/lwoyr/AdsTrendsAPI/pkg/keyword"
)

// perKeywordSeconds backs the submission time estimate.
const perKeywordSeconds = 3

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type jobSubmitResponse struct {
	JobID                string `json:"job_id"`
	KeywordsCount        int    `json:"keywords_count"`
	EstimatedTimeSeconds int    `json:"estimated_time_seconds"`
	Message              string `json:"message"`
}

type jobStatusResponse struct {
	JobID      string           `json:"job_id"`
	Status     string           `json:"status"`
	Pending    int              `json:"pending"`
	Processing int              `json:"processing"`
	Completed  int              `json:"completed"`
	Failed     int              `json:"failed"`
	Results    []keyword.Metric `json:"results,omitempty"`
}

// batchTimeout scales the synchronous wall clock with request size.
func batchTimeout(keywordCount int) time.Duration {
	seconds := 2 * keywordCount
	if seconds < 90 {
		seconds = 90
	}
	return time.Duration(seconds) * time.Second
}

func (s *Server) handleBatchSearchVolume(w http.ResponseWriter, r *http.Request) {
	request, err := s.decodeBatchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), batchTimeout(len(request.Keywords)))
	defer cancel()

	results, err := s.service.ProcessBatch(ctx, request.Keywords, request.EffectiveChunkSize())
	if err != nil {
		s.logger.Error("batch processing failed", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAsyncSubmit(w http.ResponseWriter, r *http.Request) {
	request, err := s.decodeBatchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	unique := keyword.Dedupe(request.Keywords)
	s.service.Queue().AddKeywords(unique)
	s.service.StartWorker(s.baseCtx)

	writeJSON(w, http.StatusAccepted, jobSubmitResponse{
		JobID:                fmt.Sprintf("job_%s", uuid.NewString()),
		KeywordsCount:        len(unique),
		EstimatedTimeSeconds: len(unique) * perKeywordSeconds,
		Message:              "Job accepted. Poll /async/status for progress.",
	})
}

func (s *Server) handleAsyncStatus(w http.ResponseWriter, r *http.Request) {
	status := s.service.Queue().Status()

	overall := "pending"
	switch {
	case status.Pending == 0 && status.Processing == 0:
		overall = "completed"
	case status.Processing > 0:
		overall = "processing"
	}

	response := jobStatusResponse{
		JobID:      "current",
		Status:     overall,
		Pending:    status.Pending,
		Processing: status.Processing,
		Completed:  status.Completed,
		Failed:     status.Failed,
	}

	if raw := r.URL.Query().Get("keywords"); raw != "" {
		var requested []string
		for _, kw := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(kw); trimmed != "" {
				requested = append(requested, trimmed)
			}
		}

		lookup := s.service.Queue().Results(requested)
		response.Results = make([]keyword.Metric, 0, len(requested))
		for _, kw := range requested {
			result := lookup[kw]
			response.Results = append(response.Results, keyword.Metric{
				Keyword:          kw,
				AdsMonthlyVolume: result.AdsMonthlyVolume,
				TrendsScore:      keyword.RoundScorePtr(result.TrendsScore),
			})
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) decodeBatchRequest(r *http.Request) (*validation.BatchRequest, error) {
	var request validation.BatchRequest

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&request); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "request body is not valid JSON")
	}

	if err := validation.ValidateBatchRequest(&request); err != nil {
		return nil, err
	}
	return &request, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, apperrors.GetStatusCode(err), apperrors.SafeErrorMessage(err))
}

func writeDetail(w http.ResponseWriter, statusCode int, detail string) {
	writeJSON(w, statusCode, map[string]string{"detail": detail})
}
