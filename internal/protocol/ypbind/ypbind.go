// Package ypbind defines the wire types of the local binding daemon
// (program 100007, version 2).
package ypbind

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	"github.com/marmos91/goyp/internal/protocol/xdr"
)

// Version is the binding protocol version spoken by the client.
const Version = 2

// YPBIND Procedure Numbers
const (
	ProcNull      = 0
	ProcDomain    = 1
	ProcSetDomain = 2
)

// Response discriminants.
const (
	StatusSucc = 1
	StatusFail = 2
)

// Failure reasons carried by a StatusFail response.
const (
	ErrErr    = 1 // internal error
	ErrNoServ = 2 // no bound server for the domain
	ErrResc   = 3 // system resource allocation failure
)

// DomainArgs is the argument of DOMAIN.
type DomainArgs struct {
	Domain string
}

// Response is the ypbind_resp union:
//
//	union ypbind_resp switch (ypbind_resptype ypbind_status) {
//	case YPBIND_FAIL_VAL:
//	    unsigned ypbind_error;
//	case YPBIND_SUCC_VAL:
//	    ypbind_binding ypbind_bindinfo;
//	};
//	struct ypbind_binding {
//	    opaque ypbind_binding_addr[4];
//	    opaque ypbind_binding_port[2];
//	};
//
// Server is only set for StatusSucc; Error only for StatusFail.
type Response struct {
	Status uint32
	Server netip.AddrPort
	Error  uint32
}

// EncodeXDR writes the union.
func (r *Response) EncodeXDR(w io.Writer) error {
	if err := xdr.WriteUint32(w, r.Status); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	switch r.Status {
	case StatusSucc:
		if !r.Server.Addr().Is4() {
			return fmt.Errorf("binding address %s is not IPv4", r.Server.Addr())
		}
		addr := r.Server.Addr().As4()
		if err := xdr.WriteFixedOpaque(w, addr[:]); err != nil {
			return fmt.Errorf("write address: %w", err)
		}
		var port [2]byte
		binary.BigEndian.PutUint16(port[:], r.Server.Port())
		if err := xdr.WriteFixedOpaque(w, port[:]); err != nil {
			return fmt.Errorf("write port: %w", err)
		}
		return nil
	case StatusFail:
		return xdr.WriteUint32(w, r.Error)
	default:
		return fmt.Errorf("invalid ypbind status %d", r.Status)
	}
}

// DecodeXDR reads the union.
func (r *Response) DecodeXDR(rd io.Reader) error {
	status, err := xdr.ReadUint32(rd)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	r.Status = status

	switch status {
	case StatusSucc:
		addr, err := xdr.ReadFixedOpaque(rd, 4)
		if err != nil {
			return fmt.Errorf("read address: %w", err)
		}
		port, err := xdr.ReadFixedOpaque(rd, 2)
		if err != nil {
			return fmt.Errorf("read port: %w", err)
		}
		r.Server = netip.AddrPortFrom(netip.AddrFrom4([4]byte(addr)), binary.BigEndian.Uint16(port))
		return nil
	case StatusFail:
		r.Error, err = xdr.ReadUint32(rd)
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid ypbind status %d", status)
	}
}

// ErrorString describes a StatusFail reason.
func ErrorString(code uint32) string {
	switch code {
	case ErrErr:
		return "internal ypbind error"
	case ErrNoServ:
		return "domain not bound"
	case ErrResc:
		return "system resource allocation failure"
	default:
		return fmt.Sprintf("unknown ypbind error %d", code)
	}
}

// StatusString labels server metrics with the binding outcome.
func (r *Response) StatusString() string {
	if r.Status == StatusSucc {
		return "YPBIND_SUCC"
	}
	return "YPBIND_FAIL"
}
