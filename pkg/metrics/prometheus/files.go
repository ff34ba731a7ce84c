package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/proactor/internal/filexfer"
	"github.com/marmos91/proactor/pkg/metrics"
)

// fileMetrics is the Prometheus implementation of filexfer.Metrics.
type fileMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewFileMetrics creates a Prometheus-backed filexfer.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewFileMetrics() filexfer.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newFileMetrics(metrics.GetRegistry())
}

func newFileMetrics(reg prometheus.Registerer) *fileMetrics {
	f := promauto.With(reg)

	return &fileMetrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proactor_files_requests_total",
				Help: "Total number of file transfer requests by method and status",
			},
			[]string{"method", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "proactor_files_request_duration_milliseconds",
				Help: "Duration of file transfer requests in milliseconds",
				Buckets: []float64{
					0.5,   // 500us - small cached files
					1,     // 1ms
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					10000, // 10s - large uploads
				},
			},
			[]string{"method"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proactor_files_bytes_total",
				Help: "Body bytes transferred by method",
			},
			[]string{"method"},
		),
	}
}

func (m *fileMetrics) RecordRequest(method, status string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "invalid"
	}
	m.requests.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(float64(duration.Microseconds()) / 1000)
	if bytes > 0 {
		m.bytes.WithLabelValues(method).Add(float64(bytes))
	}
}
