package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label: the matched route pattern rather than
// the raw URL path, which keeps cardinality bounded.
const labelHandler = "handler"

// Outcome label values shared by the ask and session metrics.
const (
	outcomeOK            = "ok"
	outcomeBadRequest    = "bad_request"
	outcomeTooLarge      = "too_large"
	outcomeEmptyDocument = "empty_document"
	outcomeUpstream      = "upstream_error"
	outcomeTimeout       = "timeout"
	outcomeError         = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askRequestsTotal counts completed POST /ask requests by outcome.
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the end-to-end duration of POST /ask,
	// indexing included.
	askDurationSeconds *prometheus.HistogramVec

	// sessionRequestsTotal counts session operations by operation and outcome.
	sessionRequestsTotal *prometheus.CounterVec

	// httpInFlight is the number of requests currently being served.
	httpInFlight prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of POST /ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Duration of POST /ask requests including indexing and the model call.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		sessionRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Session operations, partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),

		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being served.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
