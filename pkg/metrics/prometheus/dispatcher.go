package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/proactor/pkg/metrics"
	"github.com/marmos91/proactor/pkg/proactor"
)

// dispatcherMetrics is the Prometheus implementation of proactor.Metrics.
type dispatcherMetrics struct {
	registered     prometheus.Counter
	startFailures  *prometheus.CounterVec
	orphans        prometheus.Counter
	claimLatency   prometheus.Histogram
	callbacks      *prometheus.CounterVec
	callbackTiming prometheus.Histogram
	activeWorkers  prometheus.Gauge
	pending        prometheus.Gauge
}

// NewDispatcherMetrics creates a Prometheus-backed proactor.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDispatcherMetrics() proactor.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newDispatcherMetrics(metrics.GetRegistry())
}

func newDispatcherMetrics(reg prometheus.Registerer) *dispatcherMetrics {
	f := promauto.With(reg)

	return &dispatcherMetrics{
		registered: f.NewCounter(prometheus.CounterOpts{
			Name: "proactor_dispatcher_registered_total",
			Help: "Total number of handles registered with the dispatcher",
		}),
		startFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proactor_dispatcher_start_failures_total",
				Help: "Registrations rolled back because no worker could be started",
			},
			[]string{"reason"}, // "exhausted", "closed", "error"
		),
		orphans: f.NewCounter(prometheus.CounterOpts{
			Name: "proactor_dispatcher_orphan_claims_total",
			Help: "Workers that found no registry entry for their handle",
		}),
		claimLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "proactor_dispatcher_claim_latency_seconds",
			Help: "Time between registration and the worker claiming the entry",
			Buckets: []float64{
				0.00001, // 10us
				0.00005,
				0.0001,
				0.0005,
				0.001, // 1ms
				0.005,
				0.01,
				0.05,
				0.1, // 100ms - scheduler under pressure
			},
		}),
		callbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proactor_dispatcher_callbacks_total",
				Help: "Completed callbacks by outcome",
			},
			[]string{"outcome"}, // "ok", "panic"
		),
		callbackTiming: f.NewHistogram(prometheus.HistogramOpts{
			Name: "proactor_dispatcher_callback_duration_seconds",
			Help: "Duration of connection callbacks",
			Buckets: []float64{
				0.001, // 1ms - request/response exchanges
				0.01,
				0.1,
				1,
				10,
				60,   // 1m
				600,  // 10m - long chat sessions
				3600, // 1h
			},
		}),
		activeWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "proactor_dispatcher_active_workers",
			Help: "Number of workers currently running",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "proactor_dispatcher_pending_entries",
			Help: "Registry entries not yet claimed by a worker",
		}),
	}
}

func (m *dispatcherMetrics) RecordRegistered() {
	if m == nil {
		return
	}
	m.registered.Inc()
}

func (m *dispatcherMetrics) RecordStartFailure(reason string) {
	if m == nil {
		return
	}
	m.startFailures.WithLabelValues(reason).Inc()
}

func (m *dispatcherMetrics) RecordClaimed(wait time.Duration) {
	if m == nil {
		return
	}
	m.claimLatency.Observe(wait.Seconds())
}

func (m *dispatcherMetrics) RecordOrphan() {
	if m == nil {
		return
	}
	m.orphans.Inc()
}

func (m *dispatcherMetrics) RecordCallback(duration time.Duration, panicked bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if panicked {
		outcome = "panic"
	}
	m.callbacks.WithLabelValues(outcome).Inc()
	m.callbackTiming.Observe(duration.Seconds())
}

func (m *dispatcherMetrics) SetActiveWorkers(n int64) {
	if m == nil {
		return
	}
	m.activeWorkers.Set(float64(n))
}

func (m *dispatcherMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
