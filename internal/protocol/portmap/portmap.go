// Package portmap implements the parts of the port mapper protocol
// (RFC 1833, program 100000 version 2) the YP client and the development
// responder need.
package portmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/xdr"
)

// Version is the port mapper protocol version.
const Version = 2

// DefaultPort is the well-known port mapper port.
const DefaultPort = 111

// PORTMAP Procedure Numbers
const (
	ProcNull    = 0
	ProcSet     = 1
	ProcUnset   = 2
	ProcGetPort = 3
	ProcDump    = 4
)

// ErrNotRegistered is returned by GetPort when the port mapper answered but
// has no mapping for the requested program, version and protocol.
var ErrNotRegistered = errors.New("program not registered")

// Mapping is one registration.
//
//	struct mapping {
//	    unsigned int prog;
//	    unsigned int vers;
//	    unsigned int prot;
//	    unsigned int port;
//	};
type Mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// MappingList is the DUMP result, an XDR optional-data linked list of
// mappings.
type MappingList []Mapping

// maxDumpEntries bounds decoding of hostile or corrupt lists.
const maxDumpEntries = 4096

// EncodeXDR writes the list.
func (l *MappingList) EncodeXDR(w io.Writer) error {
	for _, m := range *l {
		if err := xdr.WriteBool(w, true); err != nil {
			return err
		}
		for _, v := range []uint32{m.Prog, m.Vers, m.Prot, m.Port} {
			if err := xdr.WriteUint32(w, v); err != nil {
				return fmt.Errorf("write mapping: %w", err)
			}
		}
	}
	return xdr.WriteBool(w, false)
}

// DecodeXDR reads the list.
func (l *MappingList) DecodeXDR(r io.Reader) error {
	*l = (*l)[:0]
	for {
		more, err := xdr.ReadBool(r)
		if err != nil {
			return fmt.Errorf("read list marker: %w", err)
		}
		if !more {
			return nil
		}
		if len(*l) >= maxDumpEntries {
			return fmt.Errorf("mapping list exceeds %d entries", maxDumpEntries)
		}

		var fields [4]uint32
		for i := range fields {
			if fields[i], err = xdr.ReadUint32(r); err != nil {
				return fmt.Errorf("read mapping: %w", err)
			}
		}
		*l = append(*l, Mapping{Prog: fields[0], Vers: fields[1], Prot: fields[2], Port: fields[3]})
	}
}

func dial(ctx context.Context, host netip.Addr, pmapPort uint16, timeout time.Duration) (*rpc.UDPClient, error) {
	if pmapPort == 0 {
		pmapPort = DefaultPort
	}
	return rpc.DialUDP(ctx, netip.AddrPortFrom(host, pmapPort), rpc.ProgramPortmap, Version,
		rpc.UDPConfig{CallTimeout: timeout})
}

// GetPort asks the port mapper on host which port serves prog/vers over
// prot (rpc.ProtoUDP or rpc.ProtoTCP). A zero pmapPort means DefaultPort.
//
// A mapper that answers with port 0 yields ErrNotRegistered wrapped in an
// *rpc.Error with StatProgNotRegistered; other failures carry the transport
// Stat.
func GetPort(ctx context.Context, host netip.Addr, pmapPort uint16, prog, vers, prot uint32, timeout time.Duration) (uint16, error) {
	client, err := dial(ctx, host, pmapPort, timeout)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	var port uint32
	args := &Mapping{Prog: prog, Vers: vers, Prot: prot}
	if err := client.Call(ctx, ProcGetPort, args, &port); err != nil {
		return 0, &rpc.Error{Stat: rpc.StatPmapFailure, Err: err}
	}
	if port == 0 {
		return 0, &rpc.Error{Stat: rpc.StatProgNotRegistered, Err: ErrNotRegistered}
	}
	if port > 0xffff {
		return 0, &rpc.Error{Stat: rpc.StatPmapFailure, Err: fmt.Errorf("invalid port %d", port)}
	}
	return uint16(port), nil
}

// Dump lists every registration known to the port mapper on host.
func Dump(ctx context.Context, host netip.Addr, pmapPort uint16, timeout time.Duration) ([]Mapping, error) {
	client, err := dial(ctx, host, pmapPort, timeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var list MappingList
	if err := client.Call(ctx, ProcDump, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ProtoName renders a protocol number the way rpcinfo does.
func ProtoName(prot uint32) string {
	switch prot {
	case rpc.ProtoTCP:
		return "tcp"
	case rpc.ProtoUDP:
		return "udp"
	default:
		return fmt.Sprintf("proto-%d", prot)
	}
}

// Set registers m with the port mapper on host. It reports false when the
// mapper refused, typically because the mapping already exists.
func Set(ctx context.Context, host netip.Addr, pmapPort uint16, m Mapping, timeout time.Duration) (bool, error) {
	return change(ctx, host, pmapPort, ProcSet, m, timeout)
}

// Unset removes the registrations of m.Prog/m.Vers for every protocol.
func Unset(ctx context.Context, host netip.Addr, pmapPort uint16, m Mapping, timeout time.Duration) (bool, error) {
	return change(ctx, host, pmapPort, ProcUnset, m, timeout)
}

func change(ctx context.Context, host netip.Addr, pmapPort uint16, proc uint32, m Mapping, timeout time.Duration) (bool, error) {
	client, err := dial(ctx, host, pmapPort, timeout)
	if err != nil {
		return false, err
	}
	defer client.Close()

	var ok bool
	if err := client.Call(ctx, proc, &m, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
