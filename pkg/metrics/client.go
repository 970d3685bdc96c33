package metrics

import "time"

// ClientMetrics provides observability for YP client operations.
//
// Example usage:
//
//	cfg := yp.Config{Metrics: prometheus.NewClientMetrics()}
//	client, err := yp.Dial(ctx, "example.com", "", cfg)
//
// A nil ClientMetrics is valid; the client substitutes NewNoopClientMetrics.
type ClientMetrics interface {
	// RecordCall records a completed client operation.
	//
	// Parameters:
	//   - operation: operation name (e.g., "match", "first", "next")
	//   - duration: time spent in the operation including retransmissions
	//   - code: client error classification ("success", "no match", ...)
	RecordCall(operation string, duration time.Duration, code string)

	// RecordDiscovery records how a server endpoint was obtained.
	//
	// Parameters:
	//   - source: "explicit" or "ypbind"
	//   - code: client error classification of the discovery outcome
	RecordDiscovery(source string, code string)
}

// NewNoopClientMetrics returns a ClientMetrics that discards everything.
func NewNoopClientMetrics() ClientMetrics {
	return noopClientMetrics{}
}

// noopClientMetrics is a no-op implementation of ClientMetrics with zero overhead.
type noopClientMetrics struct{}

func (noopClientMetrics) RecordCall(operation string, duration time.Duration, code string) {}
func (noopClientMetrics) RecordDiscovery(source string, code string)                        {}
