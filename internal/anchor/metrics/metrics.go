package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for consensus anchoring.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	SubmitLatency    prometheus.Histogram
	Verifications    *prometheus.CounterVec
	UnrecordedAnchor prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_anchor_submissions_total",
			Help: "Anchor submissions by entity type and outcome",
		}, []string{"entity_type", "outcome"}),
		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "confirmit_anchor_submit_duration_seconds",
			Help:    "Time from submission to consensus receipt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_anchor_verifications_total",
			Help: "Integrity verifications by result",
		}, []string{"result"}),
		UnrecordedAnchor: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_anchor_unrecorded_total",
			Help: "Anchors accepted by the log but not persisted locally",
		}),
	}
}

func (m *Metrics) IncrementSubmission(entityType, outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(entityType, outcome).Inc()
	}
}

func (m *Metrics) ObserveSubmitLatency(d time.Duration) {
	if m != nil {
		m.SubmitLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementVerification(result string) {
	if m != nil {
		m.Verifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementUnrecorded() {
	if m != nil {
		m.UnrecordedAnchor.Inc()
	}
}
