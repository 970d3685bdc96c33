package prometheus

import (
	"time"

	"github.com/marmos91/goyp/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
}

// NewServerMetrics creates a new Prometheus-backed ServerMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServerMetrics()
	}

	reg := metrics.GetRegistry()

	return &serverMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "goyp_server_requests_total",
				Help: "Total number of RPC requests by program, procedure, and status",
			},
			[]string{"program", "procedure", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goyp_server_request_duration_milliseconds",
				Help:    "Duration of RPC request handling in milliseconds",
				Buckets: []float64{0.1, 1, 10, 100},
			},
			[]string{"program", "procedure"},
		),
		rateLimited: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "goyp_server_rate_limited_total",
				Help: "Requests dropped by the rate limiter",
			},
			[]string{"program"},
		),
	}
}

func (m *serverMetrics) RecordRequest(program, procedure, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(program, procedure, status).Inc()
	m.requestDuration.WithLabelValues(program, procedure).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *serverMetrics) RecordRateLimited(program string) {
	m.rateLimited.WithLabelValues(program).Inc()
}
