// Package metrics exposes the service's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheBackend     *prometheus.GaugeVec
	CacheSize        prometheus.Gauge

	UpstreamRequestsTotal *prometheus.CounterVec
	BreakerState          *prometheus.GaugeVec

	QueueSetSize *prometheus.GaugeVec
}

// New creates the collector set.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adstrends",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path, method and status code.",
		}, []string{"path", "method", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adstrends",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"path", "method"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "adstrends",
			Name:      "cache_hits_total",
			Help:      "Keyword cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "adstrends",
			Name:      "cache_misses_total",
			Help:      "Keyword cache misses.",
		}),
		CacheBackend: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "adstrends",
			Name:      "cache_backend",
			Help:      "Selected cache backend (1 for the active one).",
		}, []string{"backend"}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "adstrends",
			Name:      "cache_entries",
			Help:      "Entries held by the fallback cache (file backend only).",
		}),
		UpstreamRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adstrends",
			Name:      "upstream_requests_total",
			Help:      "Upstream calls by provider and outcome.",
		}, []string{"upstream", "outcome"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "adstrends",
			Name:      "breaker_open",
			Help:      "Whether the provider circuit breaker is open.",
		}, []string{"upstream"}),
		QueueSetSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "adstrends",
			Name:      "queue_keywords",
			Help:      "Queued keywords by state.",
		}, []string{"state"}),
	}
}

// Handler returns the /metrics HTTP handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one upstream call outcome.
func (m *Metrics) ObserveUpstream(upstream, outcome string) {
	m.UpstreamRequestsTotal.WithLabelValues(upstream, outcome).Inc()
}

// SetBreakerOpen records the breaker state for an upstream.
func (m *Metrics) SetBreakerOpen(upstream string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.BreakerState.WithLabelValues(upstream).Set(v)
}

// SetQueueSizes records the four queue set sizes.
func (m *Metrics) SetQueueSizes(pending, processing, completed, failed int) {
	m.QueueSetSize.WithLabelValues("pending").Set(float64(pending))
	m.QueueSetSize.WithLabelValues("processing").Set(float64(processing))
	m.QueueSetSize.WithLabelValues("completed").Set(float64(completed))
	m.QueueSetSize.WithLabelValues("failed").Set(float64(failed))
}
