package prometheus

import (
	"time"

	"github.com/marmos91/goyp/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// clientMetrics is the Prometheus implementation of metrics.ClientMetrics.
type clientMetrics struct {
	callsTotal     *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	discoveryTotal *prometheus.CounterVec
}

// NewClientMetrics creates a new Prometheus-backed ClientMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewClientMetrics() metrics.ClientMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopClientMetrics()
	}

	reg := metrics.GetRegistry()

	return &clientMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "goyp_client_calls_total",
				Help: "Total number of YP client operations by operation and outcome",
			},
			[]string{"operation", "code"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "goyp_client_call_duration_milliseconds",
				Help: "Duration of YP client operations in milliseconds",
				Buckets: []float64{
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s (first retransmission)
					5000, // 5s (call timeout)
				},
			},
			[]string{"operation"},
		),
		discoveryTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "goyp_client_discovery_total",
				Help: "Server discovery attempts by source and outcome",
			},
			[]string{"source", "code"},
		),
	}
}

func (m *clientMetrics) RecordCall(operation string, duration time.Duration, code string) {
	m.callsTotal.WithLabelValues(operation, code).Inc()
	m.callDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *clientMetrics) RecordDiscovery(source string, code string) {
	m.discoveryTotal.WithLabelValues(source, code).Inc()
}
