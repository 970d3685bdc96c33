package config

import (
	"github.com/marmos91/goyp/pkg/metrics"
	promMetrics "github.com/marmos91/goyp/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// HTTP serves /metrics (nil if disabled)
	HTTP *metrics.Server

	// Client collects lookup metrics (never nil, noop if disabled)
	Client metrics.ClientMetrics

	// Server collects responder metrics (never nil, noop if disabled)
	Server metrics.ServerMetrics
}

// InitializeMetrics creates the metrics components for cfg.
//
// When metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned; otherwise the collectors are
// no-ops and no HTTP server is created.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Client: metrics.NewNoopClientMetrics(),
			Server: metrics.NewNoopServerMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		HTTP:   metrics.NewServer(metrics.ServerConfig{Listen: cfg.Metrics.Listen}),
		Client: promMetrics.NewClientMetrics(),
		Server: promMetrics.NewServerMetrics(),
	}
}
