package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reputation cache.
type Metrics struct {
	// Lookups by outcome: "hit", "miss", "stale"
	Lookups *prometheus.CounterVec

	// Oracle latency and failures by category
	OracleLatency  prometheus.Histogram
	OracleFailures *prometheus.CounterVec

	// Refreshes served by another in-flight call for the same subject
	CoalescedRefreshes prometheus.Counter
}

// New creates and registers the reputation metrics.
func New() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_reputation_lookups_total",
			Help: "Reputation lookups by cache outcome",
		}, []string{"outcome"}),

		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "confirmit_reputation_oracle_duration_seconds",
			Help:    "Duration of reputation oracle calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),

		OracleFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_reputation_oracle_failures_total",
			Help: "Reputation oracle failures by category",
		}, []string{"category"}),

		CoalescedRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_reputation_coalesced_refreshes_total",
			Help: "Refreshes that shared an in-flight oracle call",
		}),
	}
}

func (m *Metrics) IncrementLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveOracleLatency(d time.Duration) {
	if m != nil {
		m.OracleLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementOracleFailure(category string) {
	if m != nil {
		m.OracleFailures.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncrementCoalesced() {
	if m != nil {
		m.CoalescedRefreshes.Inc()
	}
}
