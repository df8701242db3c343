package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks progress fan-out.
type Metrics struct {
	Emitted     *prometheus.CounterVec
	Dropped     prometheus.Counter
	Subscribers prometheus.Gauge
	Failures    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_progress_events_emitted_total",
			Help: "Progress events emitted by backend",
		}, []string{"backend"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confirmit_progress_events_dropped_total",
			Help: "Progress events dropped because a subscriber buffer was full",
		}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "confirmit_progress_subscribers",
			Help: "Currently attached progress subscribers",
		}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_progress_failures_total",
			Help: "Progress publish or decode failures by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) IncrementEmitted(backend string) {
	if m != nil {
		m.Emitted.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) IncrementDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) SubscriberAttached() {
	if m != nil {
		m.Subscribers.Inc()
	}
}

func (m *Metrics) SubscriberDetached() {
	if m != nil {
		m.Subscribers.Dec()
	}
}

func (m *Metrics) IncrementFailure(op string) {
	if m != nil {
		m.Failures.WithLabelValues(op).Inc()
	}
}
