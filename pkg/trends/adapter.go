package trends

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
	"github.com/lwoyr/AdsTrendsAPI/pkg/breaker"
	"github.com/lwoyr/AdsTrendsAPI/pkg/metrics"
	"github.com/lwoyr/AdsTrendsAPI/pkg/shared/logging"
)

const (
	breakerThreshold = 3
	breakerCooldown  = 600 * time.Second

	initialDelay  = 5 * time.Second
	minDelay      = 3 * time.Second
	maxDelay      = 20 * time.Second
	maxQuotaDelay = 30 * time.Second

	// Delay multipliers: sustained success slowly speeds up, failures
	// back off, quota hits back off hard.
	successDecay  = 0.95
	failureGrowth = 1.2
	quotaGrowth   = 2.0

	// successStreakLen is the streak length that must be exceeded before
	// each further success decays the delay.
	successStreakLen = 5

	maxQuotaRetries = 3

	batchSize          = 3
	snapshotEveryBatch = 5
)

// quotaRetryDelays backs the per-keyword quota retry schedule.
var quotaRetryDelays = []time.Duration{
	30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second,
}

// ErrHourlyLimit marks the local hourly request cap; it is quota-class
// but is never retried.
var ErrHourlyLimit = errors.New("trends: hourly request limit reached")

// Adapter resolves popularity scores keyword by keyword. At most one
// upstream call is in flight at a time.
type Adapter struct {
	api      ScoreAPI
	sem      *semaphore.Weighted
	breaker  *breaker.Breaker
	progress *ProgressStore
	logger   *zap.Logger
	metrics  *metrics.Metrics

	hourlyLimit int

	mu             sync.Mutex
	rateLimitDelay time.Duration
	successStreak  int
	requestCount   int
	lastHourReset  time.Time

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	random func() float64
}

// New constructs the adapter from configuration.
func New(cfg config.TrendsConfig, logger *zap.Logger, m *metrics.Metrics) *Adapter {
	return NewWithAPI(NewClient(logger), cfg, logger, m)
}

// NewWithAPI constructs the adapter around an explicit upstream. Used by
// tests and by New.
func NewWithAPI(api ScoreAPI, cfg config.TrendsConfig, logger *zap.Logger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		api:            api,
		sem:            semaphore.NewWeighted(1),
		breaker:        breaker.New("trends", breakerThreshold, breakerCooldown),
		progress:       NewProgressStore(cfg.ProgressFile, logger),
		logger:         logger,
		metrics:        m,
		hourlyLimit:    cfg.HourlyLimit,
		rateLimitDelay: initialDelay,
		lastHourReset:  time.Now(),
		sleep:          sleepContext,
		now:            time.Now,
		random:         rand.Float64,
	}
}

// Breaker exposes the adapter's circuit breaker.
func (a *Adapter) Breaker() *breaker.Breaker { return a.breaker }

// Progress exposes the adapter's progress store.
func (a *Adapter) Progress() *ProgressStore { return a.progress }

// WithSleep overrides the sleeper. Test hook.
func (a *Adapter) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Adapter {
	a.sleep = sleep
	return a
}

// WithClock overrides the adapter's clock (hourly window only; the
// breaker and progress store carry their own). Test hook.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
	a.lastHourReset = now()
	return a
}

// WithRandom overrides the jitter source. Test hook.
func (a *Adapter) WithRandom(random func() float64) *Adapter {
	a.random = random
	return a
}

// GetBulkTrends resolves scores for the keyword list. The returned map's
// key set equals the input key set exactly: completed keywords carry
// their score, everything else is nil. A quota abort marks the
// untouched remainder failed and persists progress for the next run.
func (a *Adapter) GetBulkTrends(ctx context.Context, keywords []string) map[string]*float64 {
	results := make(map[string]*float64, len(keywords))
	for _, kw := range keywords {
		results[kw] = nil
	}

	completed := make(map[string]*float64)
	if snapshot, ok := a.progress.Load(); ok {
		completed = snapshot.Completed
		a.logger.Info("resuming trends run from persisted progress",
			zap.Int("completed", len(completed)))
	}

	var work []string
	for _, kw := range keywords {
		if score, ok := completed[kw]; ok {
			results[kw] = score
		} else {
			work = append(work, kw)
		}
	}

	batches := chunk(work, batchSize)
	var failed []string
	aborted := false

batchLoop:
	for batchIndex, batch := range batches {
		if batchIndex > 0 {
			if err := a.sleep(ctx, interBatchDelay(batchIndex)); err != nil {
				aborted = true
				failed = append(failed, flatten(batches[batchIndex:])...)
				break
			}
		}

		for keywordIndex, kw := range batch {
			score, err := a.fetchWithRetry(ctx, kw)
			if err != nil {
				if apperrors.IsQuota(err) {
					a.logger.Error("stopping trends collection: quota exhausted",
						logging.NewFields().Upstream("trends").Keyword(kw).Error(err).ToZap()...)
					failed = append(failed, batch[keywordIndex:]...)
					failed = append(failed, flatten(batches[batchIndex+1:])...)
					aborted = true
					break batchLoop
				}
				a.logger.Warn("trends fetch failed",
					logging.NewFields().Upstream("trends").Keyword(kw).Error(err).ToZap()...)
				failed = append(failed, kw)
				continue
			}
			results[kw] = score
			completed[kw] = score
		}

		if (batchIndex+1)%snapshotEveryBatch == 0 && batchIndex+1 < len(batches) {
			a.progress.Save(completed, flatten(batches[batchIndex+1:]), failed)
		}
	}

	if aborted {
		a.progress.Save(completed, remainingOf(keywords, completed, failed), failed)
	} else {
		a.progress.Delete()
	}

	return results
}

// fetchWithRetry wraps one keyword's fetch with the quota retry
// schedule. Exhausting the schedule on quota errors forces the breaker
// open. Non-quota failures are returned without retrying.
func (a *Adapter) fetchWithRetry(ctx context.Context, kw string) (*float64, error) {
	for attempt := 0; ; attempt++ {
		score, err := a.fetchSingle(ctx, kw)
		if err == nil {
			return &score, nil
		}

		if !apperrors.IsQuota(err) {
			return nil, err
		}
		if errors.Is(err, ErrHourlyLimit) {
			// The local cap fails fast; no point waiting it out here.
			return nil, err
		}

		if attempt >= maxQuotaRetries {
			a.breaker.ForceOpen()
			if a.metrics != nil {
				a.metrics.SetBreakerOpen("trends", true)
			}
			return nil, apperrors.NewQuotaError("trends")
		}

		delay := quotaRetryDelays[attempt]
		a.logger.Warn("quota hit, backing off before retrying keyword",
			zap.String("keyword", kw),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		if sleepErr := a.sleep(ctx, delay); sleepErr != nil {
			return nil, apperrors.Wrap(sleepErr, apperrors.ErrorTypeTimeout, "trends retry interrupted")
		}
	}
}

// fetchSingle performs one rate-limited upstream call.
func (a *Adapter) fetchSingle(ctx context.Context, kw string) (float64, error) {
	if err := a.breaker.Allow(); err != nil {
		return 0, err
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeTimeout, "trends call cancelled")
	}
	defer a.sem.Release(1)

	if err := a.checkHourlyCap(); err != nil {
		return 0, err
	}

	if err := a.sleep(ctx, a.jitteredDelay()); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeTimeout, "trends call cancelled")
	}

	start := time.Now()
	score, err := a.api.FetchScore(ctx, kw)
	duration := time.Since(start)

	if err != nil {
		a.adjustOnFailure(apperrors.IsQuota(err))
		if !apperrors.IsQuota(err) {
			a.breaker.Failure()
		}
		a.observe("failure")
		a.logger.Warn("trends request failed",
			logging.NewFields().Upstream("trends").Keyword(kw).Duration(duration).Error(err).ToZap()...)
		return 0, err
	}

	a.adjustOnSuccess()
	a.breaker.Success()
	a.observe("success")
	a.logger.Debug("trends request succeeded",
		logging.NewFields().Upstream("trends").Keyword(kw).Duration(duration).ToZap()...)
	return score, nil
}

// checkHourlyCap enforces the rolling one-hour request budget.
func (a *Adapter) checkHourlyCap() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if now.Sub(a.lastHourReset) >= time.Hour {
		a.requestCount = 0
		a.lastHourReset = now
	}

	if a.requestCount >= a.hourlyLimit {
		return apperrors.Wrapf(ErrHourlyLimit, apperrors.ErrorTypeUpstreamQuota,
			"hourly request limit of %d reached", a.hourlyLimit)
	}

	a.requestCount++
	return nil
}

// jitteredDelay is the adaptive delay scaled by uniform(0.5, 1.5).
func (a *Adapter) jitteredDelay() time.Duration {
	a.mu.Lock()
	delay := a.rateLimitDelay
	a.mu.Unlock()
	return time.Duration(float64(delay) * (0.5 + a.random()))
}

func (a *Adapter) adjustOnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successStreak++
	if a.successStreak > successStreakLen {
		a.rateLimitDelay = time.Duration(float64(a.rateLimitDelay) * successDecay)
		if a.rateLimitDelay < minDelay {
			a.rateLimitDelay = minDelay
		}
	}
}

func (a *Adapter) adjustOnFailure(quota bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if quota {
		a.successStreak = 0
		a.rateLimitDelay = time.Duration(float64(a.rateLimitDelay) * quotaGrowth)
		if a.rateLimitDelay > maxQuotaDelay {
			a.rateLimitDelay = maxQuotaDelay
		}
		return
	}

	a.rateLimitDelay = time.Duration(float64(a.rateLimitDelay) * failureGrowth)
	if a.rateLimitDelay > maxDelay {
		a.rateLimitDelay = maxDelay
	}
}

func (a *Adapter) observe(outcome string) {
	if a.metrics != nil {
		a.metrics.ObserveUpstream("trends", outcome)
	}
}

// interBatchDelay grows with the batch index, capped at 30s.
func interBatchDelay(batchIndex int) time.Duration {
	seconds := 10 + 2*batchIndex
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

func chunk(keywords []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(keywords); start += size {
		end := start + size
		if end > len(keywords) {
			end = len(keywords)
		}
		batches = append(batches, keywords[start:end])
	}
	return batches
}

func flatten(batches [][]string) []string {
	var all []string
	for _, batch := range batches {
		all = append(all, batch...)
	}
	return all
}

// remainingOf lists requested keywords that neither completed nor
// failed.
func remainingOf(keywords []string, completed map[string]*float64, failed []string) []string {
	failedSet := make(map[string]struct{}, len(failed))
	for _, kw := range failed {
		failedSet[kw] = struct{}{}
	}

	var remaining []string
	for _, kw := range keywords {
		if _, ok := completed[kw]; ok {
			continue
		}
		if _, ok := failedSet[kw]; ok {
			continue
		}
		remaining = append(remaining, kw)
	}
	return remaining
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
