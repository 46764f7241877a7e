package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler and sniffer collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transmissions  *prometheus.CounterVec
	transmitErrors *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	jobsPending    prometheus.Gauge
	jobsFinished   *prometheus.CounterVec
	ticks          prometheus.Counter
	received       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ookctl_transmissions_total",
				Help: "Physical frame transmissions by device kind",
			},
			[]string{"kind"},
		),
		transmitErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ookctl_transmit_errors_total",
				Help: "Failed dispatches by device kind",
			},
			[]string{"kind"},
		),
		skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ookctl_skipped_dispatches_total",
				Help: "Attempts consumed without transmitting because the code is invalid",
			},
			[]string{"kind"},
		),
		jobsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ookctl_jobs_pending",
				Help: "Transmission jobs waiting in the scheduler",
			},
		),
		jobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ookctl_jobs_finished_total",
				Help: "Transmission jobs finished, by outcome",
			},
			[]string{"outcome"},
		),
		ticks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ookctl_scheduler_ticks_total",
				Help: "Scheduler ticks that processed at least one job",
			},
		),
		received: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ookctl_received_frames_total",
				Help: "Frames assembled by the sniffer, by device kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}

func (m *Metrics) transmitted(kind string) {
	if m != nil {
		m.transmissions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) transmitFailed(kind string) {
	if m != nil {
		m.transmitErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) skip(kind string) {
	if m != nil {
		m.skipped.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) pending(n int) {
	if m != nil {
		m.jobsPending.Set(float64(n))
	}
}

func (m *Metrics) finished(o Outcome) {
	if m != nil {
		m.jobsFinished.WithLabelValues(o.String()).Inc()
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) receivedFrame(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "invalid"
	}
	m.received.WithLabelValues(kind, result).Inc()
}
