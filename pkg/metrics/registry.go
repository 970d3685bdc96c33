// Package metrics collects Prometheus metrics for the YP client and the
// development responders.
//
// Collection is opt-in. Until InitRegistry is called GetRegistry returns nil
// and callers fall back to the no-op collectors below, so neither the
// client library nor the responders pay for metrics they do not export.
//
// Usage:
//
//	metrics.InitRegistry()
//	cfg := yp.Config{Metrics: prometheus.NewClientMetrics()}
//	client, err := yp.Dial(ctx, domain, server, cfg)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry and registers the Go
// runtime and process collectors on it. Later calls do nothing.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "goyp"}),
		)
		registry = reg
	})
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
