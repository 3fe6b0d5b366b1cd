package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used as the "stage" label.
const (
	stageExtract  = "extract"
	stageChunk    = "chunk"
	stageIndex    = "index"
	stageRetrieve = "retrieve"
	stageAnswer   = "answer"
)

// Metrics holds the Prometheus metrics owned by the pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// stageDurationSeconds records the duration of each pipeline stage.
	stageDurationSeconds *prometheus.HistogramVec

	// documentsTotal counts indexing attempts partitioned by outcome.
	documentsTotal *prometheus.CounterVec

	// segmentsIndexed records how many segments each indexed document yields.
	segmentsIndexed prometheus.Histogram

	// sessionLoaded is 1 while the interactive session holds an index.
	sessionLoaded prometheus.Gauge
}

// NewMetrics registers the pipeline metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents submitted for indexing, partitioned by outcome.",
		}, []string{"outcome"}),

		segmentsIndexed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "pipeline",
			Name:      "segments_per_document",
			Help:      "Number of segments produced per indexed document.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		sessionLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfrag",
			Subsystem: "session",
			Name:      "document_loaded",
			Help:      "1 while the interactive session has a processed document.",
		}),
	}
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) documentIndexed(outcome string, segments int) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.segmentsIndexed.Observe(float64(segments))
	}
}

func (m *Metrics) setSessionLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.sessionLoaded.Set(1)
		return
	}
	m.sessionLoaded.Set(0)
}
