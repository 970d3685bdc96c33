package yp

import (
	"errors"
	"fmt"
)

// ErrorCode is the client-facing classification of an operation outcome.
//
// Transport failures, resolver failures and YP protocol statuses are all
// translated into this closed set; no raw rpc.Stat or ypstat value is
// returned to callers as the classification. The underlying cause stays
// reachable through Error.Unwrap.
type ErrorCode int

const (
	// Success means the last operation completed.
	Success ErrorCode = iota

	// NoMatch means the key (or the map holding it) is absent.
	NoMatch

	// NoDomain means the server does not serve the domain.
	NoDomain

	// NoMap means the map does not exist in the domain.
	NoMap

	// NoKey means the server could not produce the requested entry.
	NoKey

	// BindingUnreachable means the local binding daemon is absent or did not
	// register itself.
	BindingUnreachable

	// RPCError is a generic transport-level failure.
	RPCError

	// AuthError means the discovery reply came from an untrusted source.
	AuthError

	// Timeout means the binding daemon did not answer in time.
	Timeout

	// NoHost means the server name could not be resolved.
	NoHost

	// OutOfMemory completes the taxonomy; allocation failure is fatal in Go
	// so nothing produces it.
	OutOfMemory

	// ConnectionError means no transport could be established.
	ConnectionError

	// BadArgument is a local precondition violation or an unrecognised
	// protocol status.
	BadArgument

	// SystemError is an operating system failure; the Errno is kept as the
	// wrapped cause.
	SystemError
)

var errorCodeText = [...]string{
	Success:            "success",
	NoMatch:            "no match",
	NoDomain:           "domain not served",
	NoMap:              "no such map",
	NoKey:              "no such key",
	BindingUnreachable: "ypbind unreachable",
	RPCError:           "RPC error",
	AuthError:          "authentication error",
	Timeout:            "timeout",
	NoHost:             "no such host",
	OutOfMemory:        "out of memory",
	ConnectionError:    "connection error",
	BadArgument:        "bad argument",
	SystemError:        "system error",
}

// String describes the code. Every value, including ones outside the
// defined set, yields a string.
func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(errorCodeText) {
		return errorCodeText[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error lets a bare code be used as an errors.Is target.
func (c ErrorCode) Error() string {
	return c.String()
}

// ErrClientClosed is the cause of BadArgument errors returned by operations
// on a closed Client.
var ErrClientClosed = errors.New("client is closed")

// Error is returned by every failing Client operation.
type Error struct {
	// Op is the operation that failed, e.g. "match" or "dial".
	Op string

	// Code classifies the failure.
	Code ErrorCode

	// Err is the underlying cause, if any: an *rpc.Error, a resolver error,
	// a syscall.Errno, or a descriptive error for protocol statuses.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("yp %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("yp %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare ErrorCode target so errors.Is(err, yp.NoMatch) works.
func (e *Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// CodeOf extracts the classification of err: Success for nil, the Code of
// an *Error, the value of a bare ErrorCode, and SystemError otherwise.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var ypErr *Error
	if errors.As(err, &ypErr) {
		return ypErr.Code
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return SystemError
}

func newError(op string, code ErrorCode, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}
