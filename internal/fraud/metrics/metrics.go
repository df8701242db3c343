package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the fraud ledger.
type Metrics struct {
	ReportsFiled    prometheus.Counter
	ReportsReviewed *prometheus.CounterVec
	SubjectsCreated prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ReportsFiled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_fraud_reports_filed_total",
			Help: "Total fraud reports filed",
		}),
		ReportsReviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_fraud_reports_reviewed_total",
			Help: "Fraud reports reviewed by outcome",
		}, []string{"status"}),
		SubjectsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_fraud_subjects_created_total",
			Help: "Reputation records created by a first fraud report",
		}),
	}
}

func (m *Metrics) IncrementFiled() {
	if m != nil {
		m.ReportsFiled.Inc()
	}
}

func (m *Metrics) IncrementReviewed(status string) {
	if m != nil {
		m.ReportsReviewed.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementSubjectCreated() {
	if m != nil {
		m.SubjectsCreated.Inc()
	}
}
