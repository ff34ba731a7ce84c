package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/proactor/pkg/adapter"
	"github.com/marmos91/proactor/pkg/metrics"
)

// connectionMetrics is the Prometheus implementation of adapter.MetricsRecorder.
type connectionMetrics struct {
	accepted    prometheus.Counter
	closed      prometheus.Counter
	forceClosed prometheus.Counter
	rejected    prometheus.Counter
	active      prometheus.Gauge
}

// NewConnectionMetrics creates connection metrics labelled with protocol.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewConnectionMetrics(protocol string) adapter.MetricsRecorder {
	if !metrics.IsEnabled() {
		return nil
	}
	return newConnectionMetrics(metrics.GetRegistry(), protocol)
}

func newConnectionMetrics(reg prometheus.Registerer, protocol string) *connectionMetrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"protocol": protocol}

	return &connectionMetrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Name:        "proactor_connections_accepted_total",
			Help:        "Total number of accepted TCP connections",
			ConstLabels: labels,
		}),
		closed: f.NewCounter(prometheus.CounterOpts{
			Name:        "proactor_connections_closed_total",
			Help:        "Total number of closed TCP connections",
			ConstLabels: labels,
		}),
		forceClosed: f.NewCounter(prometheus.CounterOpts{
			Name:        "proactor_connections_force_closed_total",
			Help:        "Connections force-closed during shutdown",
			ConstLabels: labels,
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name:        "proactor_connections_rejected_total",
			Help:        "Connections the dispatcher refused to start a worker for",
			ConstLabels: labels,
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name:        "proactor_connections_active",
			Help:        "Currently open TCP connections",
			ConstLabels: labels,
		}),
	}
}

func (m *connectionMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *connectionMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.closed.Inc()
}

func (m *connectionMetrics) RecordConnectionForceClosed() {
	if m == nil {
		return
	}
	m.forceClosed.Inc()
}

func (m *connectionMetrics) RecordConnectionRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *connectionMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.active.Set(float64(count))
}
