package yp

import (
	"fmt"
	"io"

	"github.com/marmos91/goyp/internal/protocol/xdr"
)

// DomainArgs is the argument of DOMAIN and DOMAIN_NONACK.
//
//	bool YPPROC_DOMAIN(domainname) = 1;
type DomainArgs struct {
	Domain string
}

// ReqKey is the argument of MATCH and NEXT.
//
//	struct ypreq_key {
//	    domainname domain;
//	    mapname    map;
//	    keydat     key;
//	};
type ReqKey struct {
	Domain string
	Map    string
	Key    []byte
}

// ReqNoKey is the argument of FIRST, MASTER and ORDER.
type ReqNoKey struct {
	Domain string
	Map    string
}

// RespVal is the result of MATCH. Val is only meaningful when Stat is
// StatusTrue.
type RespVal struct {
	Stat Status
	Val  []byte
}

// RespKeyVal is the result of FIRST and NEXT. The value precedes the key on
// the wire.
//
//	struct ypresp_key_val {
//	    ypstat  stat;
//	    valdat  val;
//	    keydat  key;
//	};
type RespKeyVal struct {
	Stat Status
	Val  []byte
	Key  []byte
}

// RespMaster is the result of MASTER.
type RespMaster struct {
	Stat Status
	Peer string
}

// RespOrder is the result of ORDER.
type RespOrder struct {
	Stat    Status
	Ordinum uint32
}

// RespMapList is the result of MAPLIST. On the wire the map names form an
// XDR optional-data linked list:
//
//	struct ypmaplist {
//	    mapname    map;
//	    ypmaplist *next;
//	};
//	struct ypresp_maplist {
//	    ypstat     stat;
//	    ypmaplist *maps;
//	};
type RespMapList struct {
	Stat Status
	Maps []string
}

// maxMapListEntries bounds decoding of hostile or corrupt lists.
const maxMapListEntries = 4096

// EncodeXDR writes the response with the map names as a linked list.
func (m *RespMapList) EncodeXDR(w io.Writer) error {
	if err := xdr.WriteInt32(w, int32(m.Stat)); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	for _, name := range m.Maps {
		if err := xdr.WriteBool(w, true); err != nil {
			return fmt.Errorf("write list marker: %w", err)
		}
		if err := xdr.WriteString(w, name); err != nil {
			return fmt.Errorf("write map name: %w", err)
		}
	}
	if err := xdr.WriteBool(w, false); err != nil {
		return fmt.Errorf("write list end: %w", err)
	}
	return nil
}

// DecodeXDR reads a MAPLIST response.
func (m *RespMapList) DecodeXDR(r io.Reader) error {
	stat, err := xdr.ReadInt32(r)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	m.Stat = Status(stat)
	m.Maps = nil

	for {
		more, err := xdr.ReadBool(r)
		if err != nil {
			return fmt.Errorf("read list marker: %w", err)
		}
		if !more {
			return nil
		}
		if len(m.Maps) >= maxMapListEntries {
			return fmt.Errorf("map list exceeds %d entries", maxMapListEntries)
		}
		name, err := xdr.ReadString(r)
		if err != nil {
			return fmt.Errorf("read map name: %w", err)
		}
		m.Maps = append(m.Maps, name)
	}
}

// RespAll is the result of ALL: every entry of a map as a stream of
// ypresp_key_val records, each preceded by a TRUE marker, closed by a record
// carrying the final status and a FALSE marker.
//
//	union ypresp_all switch (bool more) {
//	case TRUE:
//	    ypresp_key_val val;
//	case FALSE:
//	    void;
//	};
type RespAll struct {
	Entries []RespKeyVal

	// Stat is the terminating status: StatusNoMore after a complete
	// enumeration, otherwise the error that stopped it.
	Stat Status
}

// EncodeXDR writes the stream.
func (a *RespAll) EncodeXDR(w io.Writer) error {
	for i := range a.Entries {
		if err := xdr.WriteBool(w, true); err != nil {
			return fmt.Errorf("write marker: %w", err)
		}
		if err := writeKeyVal(w, &a.Entries[i]); err != nil {
			return err
		}
	}
	if err := xdr.WriteBool(w, true); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	if err := writeKeyVal(w, &RespKeyVal{Stat: a.Stat}); err != nil {
		return err
	}
	return xdr.WriteBool(w, false)
}

// DecodeXDR reads the stream. Entries are collected until a non-TRUE
// status or a FALSE marker.
func (a *RespAll) DecodeXDR(r io.Reader) error {
	a.Entries = nil
	a.Stat = StatusNoMore

	for {
		more, err := xdr.ReadBool(r)
		if err != nil {
			return fmt.Errorf("read marker: %w", err)
		}
		if !more {
			return nil
		}

		var kv RespKeyVal
		if err := readKeyVal(r, &kv); err != nil {
			return err
		}
		if kv.Stat != StatusTrue {
			a.Stat = kv.Stat
			continue
		}
		a.Entries = append(a.Entries, kv)
	}
}

func writeKeyVal(w io.Writer, kv *RespKeyVal) error {
	if err := xdr.WriteInt32(w, int32(kv.Stat)); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := xdr.WriteOpaque(w, kv.Val); err != nil {
		return fmt.Errorf("write value: %w", err)
	}
	if err := xdr.WriteOpaque(w, kv.Key); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

func readKeyVal(r io.Reader, kv *RespKeyVal) error {
	stat, err := xdr.ReadInt32(r)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	kv.Stat = Status(stat)
	if kv.Val, err = xdr.ReadOpaque(r); err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	if kv.Key, err = xdr.ReadOpaque(r); err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	return nil
}

// StatusString methods label server metrics with the reply status.

func (r *RespVal) StatusString() string     { return r.Stat.String() }
func (r *RespKeyVal) StatusString() string  { return r.Stat.String() }
func (r *RespMaster) StatusString() string  { return r.Stat.String() }
func (r *RespOrder) StatusString() string   { return r.Stat.String() }
func (r *RespMapList) StatusString() string { return r.Stat.String() }
func (a *RespAll) StatusString() string     { return a.Stat.String() }
