package metrics

import "time"

// ServerMetrics provides observability for the development YP responder.
type ServerMetrics interface {
	// RecordRequest records a handled RPC request.
	//
	// Parameters:
	//   - program: program name ("ypserv", "ypbind", "yppasswdd", "portmap")
	//   - procedure: procedure name (e.g., "MATCH")
	//   - status: protocol status of the reply (e.g., "YP_TRUE") or the RPC
	//     accept status for rejected calls
	//   - duration: time spent handling the request
	RecordRequest(program, procedure, status string, duration time.Duration)

	// RecordRateLimited counts requests dropped by the rate limiter.
	RecordRateLimited(program string)
}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

// noopServerMetrics is a no-op implementation of ServerMetrics with zero overhead.
type noopServerMetrics struct{}

func (noopServerMetrics) RecordRequest(program, procedure, status string, duration time.Duration) {}
func (noopServerMetrics) RecordRateLimited(program string)                                         {}
