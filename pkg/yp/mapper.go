package yp

import (
	"fmt"

	"github.com/marmos91/goyp/internal/protocol/rpc"
	ypproto "github.com/marmos91/goyp/internal/protocol/yp"
)

// StatusError is the cause recorded when a server answers with a non-success
// ypstat. It is wrapped inside *Error; the client-facing Code is what callers
// switch on.
type StatusError struct {
	Status ypproto.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %s", e.Status)
}

// statusMapper classifies a non-success ypstat for one operation.
type statusMapper func(ypproto.Status) ErrorCode

// matchStatus folds the absent-map and absent-key cases into NoMatch.
func matchStatus(s ypproto.Status) ErrorCode {
	switch s {
	case ypproto.StatusNoMap, ypproto.StatusNoKey:
		return NoMatch
	default:
		return BadArgument
	}
}

// enumStatus keeps domain, map and key failures distinct so callers can tell
// a wrong domain from an empty map.
func enumStatus(s ypproto.Status) ErrorCode {
	switch s {
	case ypproto.StatusNoDom:
		return NoDomain
	case ypproto.StatusNoMap:
		return NoMap
	case ypproto.StatusNoKey:
		return NoKey
	default:
		return BadArgument
	}
}

// nextStatus treats every failure other than end-of-map as an RPC error;
// only First reports domain, map and key failures separately.
func nextStatus(ypproto.Status) ErrorCode {
	return RPCError
}

// probeStatus treats every failure of the construction-time probe as the
// server not serving the domain.
func probeStatus(ypproto.Status) ErrorCode {
	return NoDomain
}

// statusError returns nil for YP_TRUE and a classified *Error otherwise.
func statusError(op string, s ypproto.Status, m statusMapper) error {
	if s == ypproto.StatusTrue {
		return nil
	}
	return newError(op, m(s), &StatusError{Status: s})
}

// transportError classifies a failed call on an established transport.
func transportError(op string, err error) error {
	return newError(op, RPCError, err)
}

// bindError classifies a failed exchange with ypbind: an absent program or
// procedure means ypbind is not really there, anything else is treated as
// the daemon not answering.
func bindError(err error) error {
	switch rpc.StatOf(err) {
	case rpc.StatProgUnavail, rpc.StatProcUnavail:
		return newError("discover", BindingUnreachable, err)
	default:
		return newError("discover", Timeout, err)
	}
}

// portmapError classifies a failed ypbind port lookup.
func portmapError(err error) error {
	if rpc.StatOf(err) == rpc.StatProgNotRegistered {
		return newError("discover", BindingUnreachable, err)
	}
	return newError("discover", RPCError, err)
}
