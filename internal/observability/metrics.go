// Package observability exposes Prometheus metrics for the answer pipeline.
// A nil *Metrics is valid and records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lextransition"

// Metrics holds the pipeline collectors
type Metrics struct {
	// answers counts finished requests.
	// Labels: status (DONE, FALLBACK), reason (empty for DONE)
	answers *prometheus.CounterVec

	// stageDuration measures time spent per grounding stage.
	// Labels: stage
	stageDuration *prometheus.HistogramVec

	// sentences counts verified sentences.
	// Labels: outcome (retained, stripped)
	sentences *prometheus.CounterVec

	// retrievalResults observes how many chunks each request retrieved
	retrievalResults prometheus.Histogram

	// references counts resolved references by cue kind.
	// Labels: cue (explicit, document, none)
	references *prometheus.CounterVec

	// snapshotSwaps counts published index snapshots
	snapshotSwaps prometheus.Counter

	// snapshotChunks reports the size of the current snapshot
	snapshotChunks prometheus.Gauge
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grounding",
			Name:      "answers_total",
			Help:      "Answers by grounding status and fallback reason",
		}, []string{"status", "reason"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grounding",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each grounding stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		sentences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grounding",
			Name:      "sentences_total",
			Help:      "Generated sentences by verification outcome",
		}, []string{"outcome"}),
		retrievalResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Chunks retrieved per request",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		references: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "references_total",
			Help:      "Resolved section references by family cue",
		}, []string{"cue"}),
		snapshotSwaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "snapshot_swaps_total",
			Help:      "Index snapshots published",
		}),
		snapshotChunks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "snapshot_chunks",
			Help:      "Chunks in the current index snapshot",
		}),
	}
}

// RecordAnswer counts a finished request
func (m *Metrics) RecordAnswer(status, reason string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(status, reason).Inc()
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSentences counts verification outcomes
func (m *Metrics) RecordSentences(retained, stripped int) {
	if m == nil {
		return
	}
	m.sentences.WithLabelValues("retained").Add(float64(retained))
	m.sentences.WithLabelValues("stripped").Add(float64(stripped))
}

// RecordRetrieval observes a retrieval result count
func (m *Metrics) RecordRetrieval(n int) {
	if m == nil {
		return
	}
	m.retrievalResults.Observe(float64(n))
}

// RecordReference counts a resolved reference
func (m *Metrics) RecordReference(cue string) {
	if m == nil {
		return
	}
	m.references.WithLabelValues(cue).Inc()
}

// SnapshotPublished records an index swap
func (m *Metrics) SnapshotPublished(chunks int) {
	if m == nil {
		return
	}
	m.snapshotSwaps.Inc()
	m.snapshotChunks.Set(float64(chunks))
}
