package rpc

import (
	"errors"
	"fmt"
)

// Stat classifies the outcome of an RPC call at the transport level. The
// numbering follows the classic clnt_stat enumeration so values match what
// administrators see from rpcinfo and libc clients.
type Stat int

const (
	StatSuccess           Stat = 0
	StatCantEncodeArgs    Stat = 1
	StatCantDecodeRes     Stat = 2
	StatCantSend          Stat = 3
	StatCantRecv          Stat = 4
	StatTimedOut          Stat = 5
	StatVersMismatch      Stat = 6
	StatAuthError         Stat = 7
	StatProgUnavail       Stat = 8
	StatProgVersMismatch  Stat = 9
	StatProcUnavail       Stat = 10
	StatCantDecodeArgs    Stat = 11
	StatSystemError       Stat = 12
	StatUnknownHost       Stat = 13
	StatPmapFailure       Stat = 14
	StatProgNotRegistered Stat = 15
	StatFailed            Stat = 16
)

func (s Stat) String() string {
	switch s {
	case StatSuccess:
		return "RPC_SUCCESS"
	case StatCantEncodeArgs:
		return "RPC_CANTENCODEARGS"
	case StatCantDecodeRes:
		return "RPC_CANTDECODERES"
	case StatCantSend:
		return "RPC_CANTSEND"
	case StatCantRecv:
		return "RPC_CANTRECV"
	case StatTimedOut:
		return "RPC_TIMEDOUT"
	case StatVersMismatch:
		return "RPC_VERSMISMATCH"
	case StatAuthError:
		return "RPC_AUTHERROR"
	case StatProgUnavail:
		return "RPC_PROGUNAVAIL"
	case StatProgVersMismatch:
		return "RPC_PROGVERSMISMATCH"
	case StatProcUnavail:
		return "RPC_PROCUNAVAIL"
	case StatCantDecodeArgs:
		return "RPC_CANTDECODEARGS"
	case StatSystemError:
		return "RPC_SYSTEMERROR"
	case StatUnknownHost:
		return "RPC_UNKNOWNHOST"
	case StatPmapFailure:
		return "RPC_PMAPFAILURE"
	case StatProgNotRegistered:
		return "RPC_PROGNOTREGISTERED"
	case StatFailed:
		return "RPC_FAILED"
	default:
		return fmt.Sprintf("RPC_STAT_%d", int(s))
	}
}

// Error is a failed RPC call. Err, when set, is the underlying socket or
// codec error.
type Error struct {
	Stat Stat
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Stat, e.Err)
	}
	return e.Stat.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatOf extracts the Stat carried by err. Errors that did not come from this
// package report StatFailed; nil reports StatSuccess.
func StatOf(err error) Stat {
	if err == nil {
		return StatSuccess
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Stat
	}
	return StatFailed
}

func newError(stat Stat, err error) *Error {
	return &Error{Stat: stat, Err: err}
}
