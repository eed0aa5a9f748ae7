// Package coordinator drives the fetch-and-cache pipeline: cache
// lookup, chunked fan-out to both upstream adapters, result merging and
// write-through. It also runs the background worker that services the
// async queue with the same merge semantics.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
	"github.com/lwoyr/AdsTrendsAPI/pkg/cache"
	"github.com/lwoyr/AdsTrendsAPI/pkg/keyword"
	"github.com/lwoyr/AdsTrendsAPI/pkg/queue"
)

// AdsProvider resolves monthly search volumes.
type AdsProvider interface {
	GetBulkMetrics(ctx context.Context, keywords []string) map[string]*int64
}

// TrendsProvider resolves popularity scores.
type TrendsProvider interface {
	GetBulkTrends(ctx context.Context, keywords []string) map[string]*float64
}

// Service owns the pipeline collaborators. It is the single object
// shared by the synchronous handlers and the async worker.
type Service struct {
	cache  *cache.Manager
	ads    AdsProvider
	trends TrendsProvider
	queue  *queue.Queue
	logger *zap.Logger

	workerRunning atomic.Bool
	sleep         func(ctx context.Context, d time.Duration) error
}

// New wires the service.
func New(cacheManager *cache.Manager, ads AdsProvider, trends TrendsProvider, q *queue.Queue, logger *zap.Logger) *Service {
	return &Service{
		cache:  cacheManager,
		ads:    ads,
		trends: trends,
		queue:  q,
		logger: logger,
		sleep:  sleepContext,
	}
}

// WithSleep overrides the inter-chunk sleeper. Test hook.
func (s *Service) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Service {
	s.sleep = sleep
	return s
}

// Queue exposes the service's job queue.
func (s *Service) Queue() *queue.Queue { return s.queue }

// Cache exposes the service's cache manager.
func (s *Service) Cache() *cache.Manager { return s.cache }

// ProcessBatch resolves metrics for the keyword list: cache hits first,
// then misses in sequential chunks fanned out to both adapters
// concurrently, written through the cache. Order of the returned slice
// is unspecified. Cancellation of ctx abandons the run with a timeout
// error.
func (s *Service) ProcessBatch(ctx context.Context, keywords []string, chunkSize int) ([]keyword.Metric, error) {
	unique := keyword.Dedupe(keywords)

	hits, misses := s.cache.GetBatch(ctx, unique)

	results := make([]keyword.Metric, 0, len(unique))
	for kw, record := range hits {
		results = append(results, keyword.Metric{
			Keyword:          kw,
			AdsMonthlyVolume: record.AdsMonthlyVolume,
			TrendsScore:      keyword.RoundScorePtr(record.TrendsScore),
		})
	}

	if len(misses) == 0 {
		return results, nil
	}

	chunks := chunkKeywords(misses, chunkSize)
	s.logger.Info("processing uncached keywords",
		zap.Int("missing", len(misses)),
		zap.Int("chunks", len(chunks)))

	adsAll := make(map[string]*int64, len(misses))
	trendsAll := make(map[string]*float64, len(misses))

	for chunkIndex, chunk := range chunks {
		if chunkIndex > 0 {
			if err := s.sleep(ctx, interChunkDelay(chunkIndex)); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrorTypeTimeout, "batch processing")
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeTimeout, "batch processing")
		}

		adsResults, trendsResults := s.fanOut(ctx, chunk, chunkIndex)
		for kw, v := range adsResults {
			adsAll[kw] = v
		}
		for kw, v := range trendsResults {
			trendsAll[kw] = v
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeTimeout, "batch processing")
	}

	for _, kw := range misses {
		adsVolume := adsAll[kw]
		trendsScore := keyword.RoundScorePtr(trendsAll[kw])

		results = append(results, keyword.Metric{
			Keyword:          kw,
			AdsMonthlyVolume: adsVolume,
			TrendsScore:      trendsScore,
		})

		// Written even when both fields are absent, so repeated requests
		// for a dead keyword do not hammer the upstreams.
		s.cache.SetKeyword(ctx, kw, adsVolume, trendsScore)
	}

	return results, nil
}

// fanOut calls both adapters concurrently for one chunk. A panicking
// side is logged and contributes all-absent values.
func (s *Service) fanOut(ctx context.Context, chunk []string, chunkIndex int) (map[string]*int64, map[string]*float64) {
	var (
		wg            sync.WaitGroup
		adsResults    map[string]*int64
		trendsResults map[string]*float64
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer s.recoverChunk("ads", chunkIndex)
		adsResults = s.ads.GetBulkMetrics(ctx, chunk)
	}()
	go func() {
		defer wg.Done()
		defer s.recoverChunk("trends", chunkIndex)
		trendsResults = s.trends.GetBulkTrends(ctx, chunk)
	}()
	wg.Wait()

	if adsResults == nil {
		adsResults = make(map[string]*int64, len(chunk))
		for _, kw := range chunk {
			adsResults[kw] = nil
		}
	}
	if trendsResults == nil {
		trendsResults = make(map[string]*float64, len(chunk))
		for _, kw := range chunk {
			trendsResults[kw] = nil
		}
	}
	return adsResults, trendsResults
}

func (s *Service) recoverChunk(upstream string, chunkIndex int) {
	if r := recover(); r != nil {
		s.logger.Error("adapter panicked, treating chunk as absent",
			zap.String("upstream", upstream),
			zap.Int("chunk", chunkIndex),
			zap.Any("panic", r))
	}
}

// StartWorker launches the background worker unless one is already
// running. It reports whether a new worker was started.
func (s *Service) StartWorker(ctx context.Context) bool {
	if !s.workerRunning.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.workerRunning.Store(false)
		s.runWorker(ctx)
	}()
	return true
}

// WorkerRunning reports whether the background worker is active.
func (s *Service) WorkerRunning() bool {
	return s.workerRunning.Load()
}

// RunWorker drains the queue synchronously. Exposed for tests; the
// server uses StartWorker.
func (s *Service) RunWorker(ctx context.Context) {
	if !s.workerRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.workerRunning.Store(false)
	s.runWorker(ctx)
}

func (s *Service) runWorker(ctx context.Context) {
	for {
		batch, err := s.queue.GetNextBatch(ctx)
		if err != nil {
			s.logger.Warn("worker stopped while waiting for a batch", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			s.logger.Info("worker drained the queue")
			return
		}

		s.logger.Info("worker processing batch", zap.Int("size", len(batch)))
		if err := s.processQueueBatch(ctx, batch); err != nil {
			s.logger.Error("batch processing failed, marking batch failed", zap.Error(err))
			for _, kw := range batch {
				s.queue.MarkFailed(kw)
			}
		}
	}
}

func (s *Service) processQueueBatch(ctx context.Context, batch []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker batch panicked: %v", r)
		}
	}()

	adsResults, trendsResults := s.fanOut(ctx, batch, 0)

	for _, kw := range batch {
		adsVolume := adsResults[kw]
		trendsScore := keyword.RoundScorePtr(trendsResults[kw])

		if adsVolume == nil && trendsScore == nil {
			s.queue.MarkFailed(kw)
			continue
		}
		s.queue.MarkCompleted(kw, adsVolume, trendsScore)
		s.cache.SetKeyword(ctx, kw, adsVolume, trendsScore)
	}
	return nil
}

// interChunkDelay grows with the chunk index, capped at 15s.
func interChunkDelay(chunkIndex int) time.Duration {
	seconds := 5 + 2*chunkIndex
	if seconds > 15 {
		seconds = 15
	}
	return time.Duration(seconds) * time.Second
}

func chunkKeywords(keywords []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(keywords); start += size {
		end := start + size
		if end > len(keywords) {
			end = len(keywords)
		}
		chunks = append(chunks, keywords[start:end])
	}
	return chunks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
