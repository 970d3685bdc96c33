package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	pxdr "github.com/marmos91/goyp/internal/protocol/xdr"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// XDREncoder is implemented by argument types whose wire form cannot be
// described with go-xdr struct tags (unions, linked lists).
type XDREncoder interface {
	EncodeXDR(w io.Writer) error
}

// XDRDecoder is the result-side counterpart of XDREncoder.
type XDRDecoder interface {
	DecodeXDR(r io.Reader) error
}

// Marshal writes v in XDR form. A nil v writes nothing (void arguments).
func Marshal(w io.Writer, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case XDREncoder:
		return t.EncodeXDR(w)
	default:
		_, err := xdr.Marshal(w, v)
		return err
	}
}

// Unmarshal reads v from XDR form. A nil v reads nothing (void results).
func Unmarshal(r io.Reader, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case XDRDecoder:
		return t.DecodeXDR(r)
	default:
		_, err := xdr.Unmarshal(r, v)
		return err
	}
}

// EncodeCall builds a complete CALL message (without record marking) with
// AUTH_NULL credentials.
func EncodeCall(xid, program, version, procedure uint32, args any) ([]byte, error) {
	call := RPCCallMessage{
		XID:        xid,
		MsgType:    RPCCall,
		RPCVersion: RPCVersion,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       nullAuth(),
		Verf:       nullAuth(),
	}

	buf := bytes.NewBuffer(make([]byte, 0, 128))
	if _, err := xdr.Marshal(buf, &call); err != nil {
		return nil, newError(StatCantEncodeArgs, fmt.Errorf("marshal call header: %w", err))
	}
	if err := Marshal(buf, args); err != nil {
		return nil, newError(StatCantEncodeArgs, fmt.Errorf("marshal arguments: %w", err))
	}
	return buf.Bytes(), nil
}

// ReplyXID returns the transaction ID of a raw reply, or false when the
// datagram is too short to carry one.
func ReplyXID(data []byte) (uint32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), true
}

// DecodeReply parses a REPLY message and, when the call succeeded, decodes the
// procedure results into result. Failures are returned as *Error with the
// matching Stat.
func DecodeReply(data []byte, result any) error {
	r := bytes.NewReader(data)

	header := make([]uint32, 3)
	for i := range header {
		v, err := pxdr.ReadUint32(r)
		if err != nil {
			return newError(StatCantDecodeRes, fmt.Errorf("read reply header: %w", err))
		}
		header[i] = v
	}
	if header[1] != RPCReply {
		return newError(StatCantDecodeRes, fmt.Errorf("expected REPLY (1), got %d", header[1]))
	}

	switch header[2] {
	case RPCMsgAccepted:
		return decodeAccepted(r, result)
	case RPCMsgDenied:
		return decodeDenied(r)
	default:
		return newError(StatCantDecodeRes, fmt.Errorf("invalid reply state %d", header[2]))
	}
}

func decodeAccepted(r *bytes.Reader, result any) error {
	if _, err := pxdr.ReadUint32(r); err != nil {
		return newError(StatCantDecodeRes, fmt.Errorf("read verifier flavor: %w", err))
	}
	if _, err := pxdr.ReadOpaque(r); err != nil {
		return newError(StatCantDecodeRes, fmt.Errorf("read verifier body: %w", err))
	}

	acceptStat, err := pxdr.ReadUint32(r)
	if err != nil {
		return newError(StatCantDecodeRes, fmt.Errorf("read accept status: %w", err))
	}

	switch acceptStat {
	case RPCSuccess:
		if err := Unmarshal(r, result); err != nil {
			return newError(StatCantDecodeRes, fmt.Errorf("unmarshal results: %w", err))
		}
		return nil
	case RPCProgUnavail:
		return newError(StatProgUnavail, nil)
	case RPCProgMismatch:
		low, _ := pxdr.ReadUint32(r)
		high, _ := pxdr.ReadUint32(r)
		return newError(StatProgVersMismatch, fmt.Errorf("server supports versions %d-%d", low, high))
	case RPCProcUnavail:
		return newError(StatProcUnavail, nil)
	case RPCGarbageArgs:
		return newError(StatCantDecodeArgs, nil)
	case RPCSystemErr:
		return newError(StatSystemError, nil)
	default:
		return newError(StatFailed, fmt.Errorf("unknown accept status %d", acceptStat))
	}
}

func decodeDenied(r *bytes.Reader) error {
	rejectStat, err := pxdr.ReadUint32(r)
	if err != nil {
		return newError(StatCantDecodeRes, fmt.Errorf("read reject status: %w", err))
	}

	switch rejectStat {
	case RPCMismatch:
		low, _ := pxdr.ReadUint32(r)
		high, _ := pxdr.ReadUint32(r)
		return newError(StatVersMismatch, fmt.Errorf("server speaks RPC versions %d-%d", low, high))
	case RPCAuthError:
		why, _ := pxdr.ReadUint32(r)
		return newError(StatAuthError, fmt.Errorf("auth_stat %d", why))
	default:
		return newError(StatFailed, fmt.Errorf("unknown reject status %d", rejectStat))
	}
}

// isTimeout reports whether err is a deadline expiry on a socket.
func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
