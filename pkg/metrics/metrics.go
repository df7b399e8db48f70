// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping. Observe* helpers are safe
// on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPRateLimitedTotal prometheus.Counter
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	SearchCandidates     *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocumentMutations    *prometheus.CounterVec
	DocumentsTotal       prometheus.Gauge
	IndexTermsTotal      prometheus.Gauge
	IndexBuildDuration   *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
	AnalyticsDropped     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		HTTPRateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by mode and result type (hit, miss, zero_result, error).",
			},
			[]string{"mode", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode", "cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"mode"},
		),
		SearchCandidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_candidates_count",
				Help:    "Documents considered per query after index lookup.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"mode"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocumentMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_mutations_total",
				Help: "Document store mutations by operation and status.",
			},
			[]string{"op", "status"},
		),
		DocumentsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "documents_total",
				Help: "Documents currently indexed.",
			},
		),
		IndexTermsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms_total",
				Help: "Distinct terms in the inverted index.",
			},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Time spent rebuilding or updating the inverted index.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the buffer was full.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.HTTPRateLimitedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SearchCandidates,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocumentMutations,
		m.DocumentsTotal,
		m.IndexTermsTotal,
		m.IndexBuildDuration,
		m.CircuitBreakerState,
		m.AnalyticsDropped,
	)

	return m
}

// ObserveSearch records one query. cacheStatus is "hit", "miss" or "none".
func (m *Metrics) ObserveSearch(mode, cacheStatus string, results, candidates int, took time.Duration, err error) {
	if m == nil {
		return
	}
	resultType := cacheStatus
	switch {
	case err != nil:
		resultType = "error"
	case results == 0:
		resultType = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(mode, resultType).Inc()
	m.SearchLatency.WithLabelValues(mode, cacheStatus).Observe(took.Seconds())
	if err != nil {
		return
	}
	m.SearchResultsCount.WithLabelValues(mode).Observe(float64(results))
	if candidates >= 0 {
		m.SearchCandidates.WithLabelValues(mode).Observe(float64(candidates))
	}
	switch cacheStatus {
	case "hit":
		m.CacheHitsTotal.Inc()
	case "miss":
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) ObserveMutation(op string, count int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DocumentMutations.WithLabelValues(op, status).Add(float64(count))
}

func (m *Metrics) ObserveIndex(mode string, docs, terms int, took time.Duration) {
	if m == nil {
		return
	}
	m.IndexBuildDuration.WithLabelValues(mode).Observe(took.Seconds())
	m.DocumentsTotal.Set(float64(docs))
	m.IndexTermsTotal.Set(float64(terms))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.HTTPRateLimitedTotal.Inc()
}

func (m *Metrics) IncAnalyticsDropped() {
	if m == nil {
		return
	}
	m.AnalyticsDropped.Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
