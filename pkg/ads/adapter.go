package ads

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
	"github.com/lwoyr/AdsTrendsAPI/pkg/breaker"
	"github.com/lwoyr/AdsTrendsAPI/pkg/metrics"
	"github.com/lwoyr/AdsTrendsAPI/pkg/shared/logging"
)

const (
	maxRetries    = 3
	backoffFactor = 2.0
	jitterSeconds = 0.2

	breakerThreshold = 5
	breakerCooldown  = 300 * time.Second
)

// Adapter resolves monthly search volumes for keyword lists. A missing
// credential set leaves the adapter in a "not initialized" state where
// every call yields all-absent results instead of failing.
type Adapter struct {
	api         MetricsAPI
	breaker     *breaker.Breaker
	logger      *zap.Logger
	metrics     *metrics.Metrics
	initialized bool

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New constructs the adapter from configuration.
func New(cfg config.AdsConfig, logger *zap.Logger, m *metrics.Metrics) *Adapter {
	a := &Adapter{
		breaker: breaker.New("ads", breakerThreshold, breakerCooldown),
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
		jitter:  rand.Float64,
	}

	if !cfg.HasCredentials() {
		logger.Warn("ads client initialization deferred: credentials are not configured")
		return a
	}

	a.api = NewClient(cfg, logger)
	a.initialized = true
	return a
}

// NewWithAPI constructs the adapter around an explicit upstream. Used by
// tests.
func NewWithAPI(api MetricsAPI, logger *zap.Logger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		api:         api,
		breaker:     breaker.New("ads", breakerThreshold, breakerCooldown),
		logger:      logger,
		metrics:     m,
		initialized: true,
		sleep:       sleepContext,
		jitter:      rand.Float64,
	}
}

// Breaker exposes the adapter's circuit breaker.
func (a *Adapter) Breaker() *breaker.Breaker { return a.breaker }

// WithSleep overrides the retry sleeper. Test hook.
func (a *Adapter) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Adapter {
	a.sleep = sleep
	return a
}

// GetBulkMetrics returns one entry per input keyword: the reported
// volume, zero when the upstream had no metric, or nil on failure. The
// call blocks for the duration of the upstream exchange and retries.
func (a *Adapter) GetBulkMetrics(ctx context.Context, keywords []string) map[string]*int64 {
	if !a.initialized {
		a.logger.Error("ads client is not initialized; configure credentials before making calls")
		return allAbsent(keywords)
	}

	start := time.Now()
	results, err := a.executeWithRetry(ctx, keywords)
	fields := logging.NewFields().
		Upstream("ads").
		Count(len(keywords)).
		Duration(time.Since(start))

	if err != nil {
		a.logger.Error("ads bulk metrics failed", fields.Error(err).ToZap()...)
		a.observe("failure")
		if a.metrics != nil {
			a.metrics.SetBreakerOpen("ads", a.breaker.Snapshot().Open)
		}
		return allAbsent(keywords)
	}

	a.logger.Info("ads bulk metrics resolved", fields.ToZap()...)
	a.observe("success")
	return a.mapResults(keywords, results)
}

func (a *Adapter) executeWithRetry(ctx context.Context, keywords []string) ([]HistoricalMetric, error) {
	if err := a.breaker.Allow(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		results, err := a.api.GenerateHistoricalMetrics(ctx, keywords)
		if err == nil {
			a.breaker.Success()
			return results, nil
		}

		lastErr = err
		a.breaker.Failure()

		if !apperrors.IsTransient(err) {
			a.logger.Error("ads call failed with a non-retryable error", zap.Error(err))
			break
		}

		if attempt < maxRetries-1 {
			delay := a.backoffDelay(attempt)
			a.logger.Warn("retrying ads call",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRetries),
				zap.Duration("delay", delay),
				zap.Error(err))
			if sleepErr := a.sleep(ctx, delay); sleepErr != nil {
				return nil, apperrors.Wrap(sleepErr, apperrors.ErrorTypeTimeout, "ads retry interrupted")
			}
		} else {
			a.logger.Error("all ads retries failed", zap.Error(err))
		}
	}

	return nil, apperrors.Wrapf(lastErr, apperrors.GetType(lastErr), "ads call failed after %d attempts", maxRetries)
}

// backoffDelay is backoffFactor^attempt seconds with symmetric jitter.
func (a *Adapter) backoffDelay(attempt int) time.Duration {
	base := math.Pow(backoffFactor, float64(attempt))
	jitter := (a.jitter()*2 - 1) * jitterSeconds
	seconds := base + jitter
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// mapResults matches keywords to upstream results by position. A present
// result with no metric reports zero; missing trailing positions stay
// absent.
func (a *Adapter) mapResults(keywords []string, results []HistoricalMetric) map[string]*int64 {
	mapped := make(map[string]*int64, len(keywords))
	for i, kw := range keywords {
		if i >= len(results) {
			mapped[kw] = nil
			continue
		}
		volume := int64(0)
		if results[i].AvgMonthlySearches != nil {
			volume = *results[i].AvgMonthlySearches
		}
		mapped[kw] = &volume
	}
	return mapped
}

func (a *Adapter) observe(outcome string) {
	if a.metrics != nil {
		a.metrics.ObserveUpstream("ads", outcome)
	}
}

func allAbsent(keywords []string) map[string]*int64 {
	absent := make(map[string]*int64, len(keywords))
	for _, kw := range keywords {
		absent[kw] = nil
	}
	return absent
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
