// Package queue holds the in-process keyword work queue backing the
// asynchronous submission endpoints. Keywords move through four disjoint
// sets: pending, processing, completed, failed. A keyword is accepted
// once; re-submission is a no-op until Reset.
package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lwoyr/AdsTrendsAPI/pkg/keyword"
	"github.com/lwoyr/AdsTrendsAPI/pkg/metrics"
)

// CompletedRecord is the stored result for a finished keyword.
type CompletedRecord struct {
	AdsMonthlyVolume *int64
	TrendsScore      *float64
	CompletedAt      time.Time
}

// Result is one entry of a Results lookup. Exactly one of the optional
// annotations is set for unfinished keywords.
type Result struct {
	AdsMonthlyVolume *int64   `json:"googleAdsAvgMonthlySearches"`
	TrendsScore      *float64 `json:"googleTrendsScore"`
	Error            string   `json:"error,omitempty"`
	Status           string   `json:"status,omitempty"`
}

// Status is the point-in-time size of each set.
type Status struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Queue is the process-wide keyword queue. All operations are guarded
// by one lock; GetNextBatch additionally enforces a minimum gap between
// batches and blocks the caller for the remainder.
type Queue struct {
	// lock is a channel-based mutex so the batch-delay wait can be held
	// across a context-aware sleep.
	lock chan struct{}

	pending    []string
	pendingSet map[string]struct{}
	processing map[string]struct{}
	completed  map[string]CompletedRecord
	failed     map[string]struct{}

	maxConcurrent int
	batchDelay    time.Duration
	lastBatchTime time.Time

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates an empty queue.
func New(maxConcurrent int, batchDelay time.Duration, logger *zap.Logger, m *metrics.Metrics) *Queue {
	q := &Queue{
		lock:          make(chan struct{}, 1),
		pendingSet:    make(map[string]struct{}),
		processing:    make(map[string]struct{}),
		completed:     make(map[string]CompletedRecord),
		failed:        make(map[string]struct{}),
		maxConcurrent: maxConcurrent,
		batchDelay:    batchDelay,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
		sleep:         sleepContext,
	}
	return q
}

// WithClock overrides the queue's clock. Test hook.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// WithSleep overrides the batch-gate sleeper. Test hook.
func (q *Queue) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Queue {
	q.sleep = sleep
	return q
}

func (q *Queue) acquire() { q.lock <- struct{}{} }
func (q *Queue) release() { <-q.lock }

// AddKeywords enqueues keywords not yet known to any set.
func (q *Queue) AddKeywords(keywords []string) {
	q.acquire()
	defer q.release()

	added := 0
	for _, kw := range keywords {
		if q.knownLocked(kw) {
			continue
		}
		q.pending = append(q.pending, kw)
		q.pendingSet[kw] = struct{}{}
		added++
	}

	q.logger.Info("keywords enqueued",
		zap.Int("added", added),
		zap.Int("pending", len(q.pending)),
		zap.Int("processing", len(q.processing)),
		zap.Int("completed", len(q.completed)))
	q.publishSizesLocked()
}

func (q *Queue) knownLocked(kw string) bool {
	if _, ok := q.pendingSet[kw]; ok {
		return true
	}
	if _, ok := q.processing[kw]; ok {
		return true
	}
	if _, ok := q.completed[kw]; ok {
		return true
	}
	if _, ok := q.failed[kw]; ok {
		return true
	}
	return false
}

// GetNextBatch moves up to maxConcurrent keywords from pending to
// processing. It blocks until the minimum gap since the previous batch
// has elapsed; the lock is held for the whole call so batches are
// strictly serialized.
func (q *Queue) GetNextBatch(ctx context.Context) ([]string, error) {
	q.acquire()
	defer q.release()

	if wait := q.batchDelay - q.now().Sub(q.lastBatchTime); wait > 0 && !q.lastBatchTime.IsZero() {
		q.logger.Info("batch gate: waiting", zap.Duration("wait", wait))
		if err := q.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	var batch []string
	for len(batch) < q.maxConcurrent && len(q.pending) > 0 {
		kw := q.pending[0]
		q.pending = q.pending[1:]
		delete(q.pendingSet, kw)
		q.processing[kw] = struct{}{}
		batch = append(batch, kw)
	}

	if len(batch) > 0 {
		q.lastBatchTime = q.now()
		q.logger.Info("batch dispatched", zap.Int("size", len(batch)))
	}
	q.publishSizesLocked()
	return batch, nil
}

// MarkCompleted records a finished keyword with its resolved metrics.
func (q *Queue) MarkCompleted(kw string, adsVolume *int64, trendsScore *float64) {
	q.acquire()
	defer q.release()

	delete(q.processing, kw)
	q.completed[kw] = CompletedRecord{
		AdsMonthlyVolume: adsVolume,
		TrendsScore:      keyword.RoundScorePtr(trendsScore),
		CompletedAt:      q.now(),
	}
	q.publishSizesLocked()
}

// MarkFailed records a keyword whose processing failed.
func (q *Queue) MarkFailed(kw string) {
	q.acquire()
	defer q.release()

	delete(q.processing, kw)
	q.failed[kw] = struct{}{}
	q.publishSizesLocked()
}

// Status returns the current set sizes.
func (q *Queue) Status() Status {
	q.acquire()
	defer q.release()

	return Status{
		Pending:    len(q.pending),
		Processing: len(q.processing),
		Completed:  len(q.completed),
		Failed:     len(q.failed),
	}
}

// Results reports the state of each requested keyword: the completed
// record, a failed marker, or a "pending"/"processing" status.
func (q *Queue) Results(keywords []string) map[string]Result {
	q.acquire()
	defer q.release()

	results := make(map[string]Result, len(keywords))
	for _, kw := range keywords {
		if record, ok := q.completed[kw]; ok {
			results[kw] = Result{
				AdsMonthlyVolume: record.AdsMonthlyVolume,
				TrendsScore:      record.TrendsScore,
			}
			continue
		}
		if _, ok := q.failed[kw]; ok {
			results[kw] = Result{Error: "Processing failed"}
			continue
		}
		status := "processing"
		if _, ok := q.pendingSet[kw]; ok {
			status = "pending"
		}
		results[kw] = Result{Status: status}
	}
	return results
}

// Reset clears every set and the batch gate.
func (q *Queue) Reset() {
	q.acquire()
	defer q.release()

	q.pending = nil
	q.pendingSet = make(map[string]struct{})
	q.processing = make(map[string]struct{})
	q.completed = make(map[string]CompletedRecord)
	q.failed = make(map[string]struct{})
	q.lastBatchTime = time.Time{}
	q.logger.Info("queue reset")
	q.publishSizesLocked()
}

func (q *Queue) publishSizesLocked() {
	if q.metrics != nil {
		q.metrics.SetQueueSizes(len(q.pending), len(q.processing), len(q.completed), len(q.failed))
	}
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
