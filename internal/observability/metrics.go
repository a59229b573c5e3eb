package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	emptyResults          *prometheus.CounterVec
	audioResults          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaflow_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediaflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaflow_upstream_requests_total",
				Help: "Total upstream model API requests.",
			},
			[]string{"backend", "endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediaflow_upstream_request_duration_seconds",
				Help:    "Upstream request duration in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"backend", "endpoint", "status"},
		),
		emptyResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaflow_empty_results_total",
				Help: "Upstream calls that produced no text, by stage and operation.",
			},
			[]string{"stage", "operation"},
		),
		audioResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaflow_audio_results_total",
				Help: "Audio pipeline outcomes by operation and result status.",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.emptyResults,
		m.audioResults,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

// UpstreamObserver returns a callback for the upstream clients labelled with backend.
func (m *Metrics) UpstreamObserver(backend string) func(endpoint string, status int, duration time.Duration) {
	return func(endpoint string, status int, duration time.Duration) {
		m.ObserveUpstream(backend, endpoint, status, duration)
	}
}

func (m *Metrics) ObserveUpstream(backend, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(backend, endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(backend, endpoint, statusLabel).Observe(duration.Seconds())
}

// EmptyResultHook returns a callback for the adapters' empty-result hooks.
func (m *Metrics) EmptyResultHook(stage string) func(operation string) {
	return func(operation string) {
		m.IncEmptyResult(stage, operation)
	}
}

func (m *Metrics) IncEmptyResult(stage, operation string) {
	if m == nil {
		return
	}
	m.emptyResults.WithLabelValues(stage, operation).Inc()
}

func (m *Metrics) ObserveAudioResult(operation, status string) {
	if m == nil {
		return
	}
	m.audioResults.WithLabelValues(operation, status).Inc()
}
