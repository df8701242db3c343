package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks scan throughput and stage latency.
type Metrics struct {
	Scans         *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	InFlight      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Scans: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmit_scans_total",
			Help: "Finished scans by outcome",
		}, []string{"outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confirmit_scan_stage_duration_seconds",
			Help:    "Time spent in each scan stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "confirmit_scans_in_flight",
			Help: "Scans currently running",
		}),
	}
}

func (m *Metrics) IncrementScan(outcome string) {
	if m != nil {
		m.Scans.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) ScanStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) ScanFinished() {
	if m != nil {
		m.InFlight.Dec()
	}
}
