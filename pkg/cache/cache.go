// Package cache provides the keyword metrics cache with a Redis primary
// backend and an on-disk FIFO fallback. The backend is selected once at
// construction and is final for the process lifetime. Backend errors
// never propagate: a failed read is a miss, a failed write is reported
// as false.
package cache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	"github.com/lwoyr/AdsTrendsAPI/pkg/cache/file"
	rediscache "github.com/lwoyr/AdsTrendsAPI/pkg/cache/redis"
	"github.com/lwoyr/AdsTrendsAPI/pkg/keyword"
	"github.com/lwoyr/AdsTrendsAPI/pkg/metrics"
)

// Backend is the capability set both cache implementations satisfy. Get
// returns (nil, nil) for a missing or expired key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

const keyPrefix = "keyword:"

// pingTimeout bounds the construction-time Redis liveness probe.
const pingTimeout = 2 * time.Second

// Manager serializes metric records onto one selected backend.
type Manager struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New probes Redis and falls back to the file backend when the probe
// fails. The returned manager is safe for concurrent use.
func New(cfg config.CacheConfig, redisCfg config.RedisConfig, logger *zap.Logger, m *metrics.Metrics) *Manager {
	var backend Backend

	client := goredis.NewClient(&goredis.Options{
		Addr:     redisCfg.Addr(),
		DB:       redisCfg.DB,
		Password: redisCfg.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, falling back to file cache",
			zap.String("addr", redisCfg.Addr()), zap.Error(err))
		_ = client.Close()
		backend = file.New(cfg.FilePath, cfg.MaxEntries, logger)
	} else {
		logger.Info("using redis cache backend", zap.String("addr", redisCfg.Addr()))
		backend = rediscache.New(client, logger)
	}

	return NewWithBackend(backend, cfg.TTL, logger, m)
}

// NewWithBackend wraps an already-constructed backend. Used by tests and
// by New.
func NewWithBackend(backend Backend, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if m != nil {
		m.CacheBackend.WithLabelValues(backend.Name()).Set(1)
	}
	return &Manager{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// BackendName reports which backend was selected.
func (m *Manager) BackendName() string {
	return m.backend.Name()
}

// GetKeyword returns the cached record for a keyword, if present and
// unexpired.
func (m *Manager) GetKeyword(ctx context.Context, kw string) (keyword.MetricRecord, bool) {
	data, err := m.backend.Get(ctx, keyPrefix+kw)
	if err != nil {
		m.logger.Error("cache get failed", zap.String("keyword", kw), zap.Error(err))
		m.countMiss()
		return keyword.MetricRecord{}, false
	}
	if data == nil {
		m.countMiss()
		return keyword.MetricRecord{}, false
	}

	var record keyword.MetricRecord
	if err := json.Unmarshal(data, &record); err != nil {
		m.logger.Error("cache entry is not valid JSON", zap.String("keyword", kw), zap.Error(err))
		m.countMiss()
		return keyword.MetricRecord{}, false
	}

	m.countHit()
	return record, true
}

// SetKeyword stores a record for a keyword under the configured TTL. The
// trends score is rounded to one decimal before storage.
func (m *Manager) SetKeyword(ctx context.Context, kw string, adsVolume *int64, trendsScore *float64) bool {
	record := keyword.NewRecord(adsVolume, trendsScore, m.now())

	data, err := json.Marshal(record)
	if err != nil {
		m.logger.Error("failed to marshal cache record", zap.String("keyword", kw), zap.Error(err))
		return false
	}

	if err := m.backend.Set(ctx, keyPrefix+kw, data, m.ttl); err != nil {
		m.logger.Error("cache set failed", zap.String("keyword", kw), zap.Error(err))
		return false
	}
	return true
}

// Exists reports whether a keyword has an unexpired cache entry.
func (m *Manager) Exists(ctx context.Context, kw string) bool {
	ok, err := m.backend.Exists(ctx, keyPrefix+kw)
	if err != nil {
		m.logger.Error("cache exists failed", zap.String("keyword", kw), zap.Error(err))
		return false
	}
	return ok
}

// Delete removes a keyword's cache entry.
func (m *Manager) Delete(ctx context.Context, kw string) bool {
	ok, err := m.backend.Delete(ctx, keyPrefix+kw)
	if err != nil {
		m.logger.Error("cache delete failed", zap.String("keyword", kw), zap.Error(err))
		return false
	}
	return ok
}

// GetBatch splits keywords into cache hits and misses.
func (m *Manager) GetBatch(ctx context.Context, keywords []string) (map[string]keyword.MetricRecord, []string) {
	hits := make(map[string]keyword.MetricRecord)
	misses := make([]string, 0, len(keywords))

	for _, kw := range keywords {
		if record, ok := m.GetKeyword(ctx, kw); ok {
			hits[kw] = record
		} else {
			misses = append(misses, kw)
		}
	}
	return hits, misses
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// WithClock overrides the manager's clock. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) countHit() {
	if m.metrics != nil {
		m.metrics.CacheHitsTotal.Inc()
	}
}

func (m *Manager) countMiss() {
	if m.metrics != nil {
		m.metrics.CacheMissesTotal.Inc()
	}
}
