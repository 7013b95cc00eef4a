package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vaultguard"

// Metrics holds the processor's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	instructions *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	halted       prometheus.Gauge
}

// NewMetrics registers the processor collectors with reg.
// Pass prometheus.NewRegistry() in tests to keep registrations isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Labels: op, status (committed, rejected)
		instructions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "processor",
			Name:      "instructions_total",
			Help:      "Processed instructions by op and status",
		}, []string{"op", "status"}),

		// Labels: op, kind (guard failure kind)
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "processor",
			Name:      "rejections_total",
			Help:      "Rejected instructions by op and failure kind",
		}, []string{"op", "kind"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "processor",
			Name:      "instruction_duration_seconds",
			Help:      "Time to validate and commit one instruction",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"op"}),

		halted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "processor",
			Name:      "halted",
			Help:      "1 once the processor has been halted",
		}),
	}
}

func (m *Metrics) observe(out *Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	op := out.Op.String()
	m.instructions.WithLabelValues(op, string(out.Status)).Inc()
	if out.Failure != nil {
		m.rejections.WithLabelValues(op, string(out.Failure.Kind)).Inc()
	}
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) setHalted() {
	if m == nil {
		return
	}
	m.halted.Set(1)
}
