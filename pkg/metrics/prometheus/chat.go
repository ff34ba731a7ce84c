package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/proactor/internal/chat"
	"github.com/marmos91/proactor/pkg/metrics"
)

// chatMetrics is the Prometheus implementation of chat.Metrics.
type chatMetrics struct {
	joins            prometheus.Counter
	leaves           prometheus.Counter
	messages         prometheus.Counter
	messageBytes     prometheus.Histogram
	deliveryFailures prometheus.Counter
	members          prometheus.Gauge
}

// NewChatMetrics creates a Prometheus-backed chat.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewChatMetrics() chat.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newChatMetrics(metrics.GetRegistry())
}

func newChatMetrics(reg prometheus.Registerer) *chatMetrics {
	f := promauto.With(reg)

	return &chatMetrics{
		joins: f.NewCounter(prometheus.CounterOpts{
			Name: "proactor_chat_joins_total",
			Help: "Total number of chat members that joined",
		}),
		leaves: f.NewCounter(prometheus.CounterOpts{
			Name: "proactor_chat_leaves_total",
			Help: "Total number of chat members that left",
		}),
		messages: f.NewCounter(prometheus.CounterOpts{
			Name: "proactor_chat_messages_total",
			Help: "Total number of relayed chat messages",
		}),
		messageBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "proactor_chat_message_bytes",
			Help:    "Size distribution of relayed chat messages",
			Buckets: []float64{16, 64, 256, 1024},
		}),
		deliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "proactor_chat_delivery_failures_total",
			Help: "Broadcast writes that failed for a single member",
		}),
		members: f.NewGauge(prometheus.GaugeOpts{
			Name: "proactor_chat_members",
			Help: "Current number of chat members",
		}),
	}
}

func (m *chatMetrics) RecordJoin() {
	if m == nil {
		return
	}
	m.joins.Inc()
}

func (m *chatMetrics) RecordLeave() {
	if m == nil {
		return
	}
	m.leaves.Inc()
}

func (m *chatMetrics) RecordMessage(bytes int) {
	if m == nil {
		return
	}
	m.messages.Inc()
	m.messageBytes.Observe(float64(bytes))
}

func (m *chatMetrics) RecordDeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *chatMetrics) SetMembers(n int) {
	if m == nil {
		return
	}
	m.members.Set(float64(n))
}
