package server

import (
	"context"
	"errors"
	"net/netip"

	"github.com/marmos91/goyp/internal/protocol/rpc"
)

// Program is one ONC RPC program served by a Server.
type Program interface {
	// Number is the RPC program number (e.g. 100004 for YP).
	Number() uint32

	// Versions returns the supported version range, inclusive.
	Versions() (low, high uint32)

	// Name identifies the program in logs and metrics.
	Name() string

	// ProcName names a procedure for logs and metrics.
	ProcName(proc uint32) string

	// Handle executes one call and returns the encoded results. The
	// returned status is recorded as the metrics status label.
	//
	// Returning ErrNoReply suppresses the reply. ErrProcUnavail and
	// ErrGarbageArgs produce the matching accept status; any other error
	// is answered with SYSTEM_ERR.
	Handle(ctx context.Context, req *Request) (result []byte, status string, err error)
}

// Request is a decoded call as seen by a Program.
type Request struct {
	// Call is the parsed call header.
	Call *rpc.RPCCallMessage

	// Args holds the XDR-encoded procedure arguments.
	Args []byte

	// Remote is the caller's address.
	Remote netip.AddrPort

	// Network is "udp" or "tcp".
	Network string
}

// Sentinel errors a Program returns to steer the reply.
var (
	ErrNoReply     = errors.New("no reply")
	ErrProcUnavail = errors.New("procedure unavailable")
	ErrGarbageArgs = errors.New("garbage arguments")
)
