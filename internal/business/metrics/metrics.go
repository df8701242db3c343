package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the business registry.
type Metrics struct {
	Registered    prometheus.Counter
	Reviewed      *prometheus.CounterVec
	APIKeysIssued *prometheus.CounterVec
	ScoreUpdates  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Registered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_business_registered_total",
			Help: "Total businesses registered",
		}),
		Reviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_business_reviewed_total",
			Help: "Business verification decisions by outcome",
		}, []string{"status"}),
		APIKeysIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_business_api_keys_issued_total",
			Help: "API keys issued by environment",
		}, []string{"env"}),
		ScoreUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_business_score_updates_total",
			Help: "Administrative trust score updates",
		}),
	}
}

func (m *Metrics) IncrementRegistered() {
	if m != nil {
		m.Registered.Inc()
	}
}

func (m *Metrics) IncrementReviewed(status string) {
	if m != nil {
		m.Reviewed.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementAPIKeyIssued(env string) {
	if m != nil {
		m.APIKeysIssued.WithLabelValues(env).Inc()
	}
}

func (m *Metrics) IncrementScoreUpdate() {
	if m != nil {
		m.ScoreUpdates.Inc()
	}
}
