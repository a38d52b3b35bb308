package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RateRequestsTotal       prometheus.Counter
	QuoteRequestsTotal      prometheus.Counter
	ConversionRequestsTotal prometheus.Counter

	CacheHitsTotal            *prometheus.CounterVec
	CacheMissesTotal          prometheus.Counter
	CacheStorageFailuresTotal *prometheus.CounterVec
	CacheEvictionsTotal       prometheus.Counter

	RateFetchesTotal *prometheus.CounterVec
}

// NewMetrics registers every collector with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		RateRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_requests_total",
				Help: "Total number of bitcoin rate snapshot requests",
			},
		),

		QuoteRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "quote_requests_total",
				Help: "Total number of single currency quote requests",
			},
		),

		ConversionRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conversion_requests_total",
				Help: "Total number of bitcoin unit conversion requests",
			},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Cache hits by tier",
			},
			[]string{"tier"},
		),

		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Cache misses, including expired entries",
			},
		),

		CacheStorageFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_storage_failures_total",
				Help: "Persistent cache operations that failed",
			},
			[]string{"operation"},
		),

		CacheEvictionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_evictions_total",
				Help: "Expired entries removed by cleanup",
			},
		),

		RateFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_fetches_total",
				Help: "Upstream rate fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
	}
}

func (m *Metrics) CacheHit(tier string) {
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) CacheMiss() {
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) StorageFailure(op string) {
	m.CacheStorageFailuresTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) CacheEvictions(n int) {
	if n > 0 {
		m.CacheEvictionsTotal.Add(float64(n))
	}
}

func (m *Metrics) RateFetch(source, outcome string) {
	m.RateFetchesTotal.WithLabelValues(source, outcome).Inc()
}
