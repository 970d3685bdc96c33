// Package ypserv implements the server side of the NIS programs for local
// development and tests: the map server (ypserv), the binding daemon
// (ypbind), the port mapper and the password update daemon (yppasswdd).
//
// Each responder is an adapter.Adapter that binds its sockets when it is
// created, so its port is known before it starts serving and can be
// registered with a PortMapper.
package ypserv

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/yp"
	"github.com/marmos91/goyp/internal/server"
	"github.com/marmos91/goyp/pkg/store"
)

// YPConfig configures the map server.
type YPConfig struct {
	Options `mapstructure:",squash"`

	// Master is the host name answered by MASTER. Defaults to the local
	// host name.
	Master string `mapstructure:"master"`
}

// YPServer serves maps from a store.Store over UDP and TCP.
type YPServer struct {
	cfg   YPConfig
	store store.Store
	srv   *server.Server
	port  int
}

// NewYPServer binds the configured address. Call SetStore before Serve.
func NewYPServer(cfg YPConfig) (*YPServer, error) {
	if cfg.Master == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("master name: %w", err)
		}
		cfg.Master = host
	}

	scfg, err := cfg.serverConfig()
	if err != nil {
		return nil, err
	}
	pc, ln, err := listen(cfg.Listen, true)
	if err != nil {
		return nil, err
	}

	s := &YPServer{cfg: cfg, port: portOf(pc)}
	s.srv = server.New(scfg, pc, ln, &ypProgram{s})
	return s, nil
}

// SetStore injects the map store.
func (s *YPServer) SetStore(st store.Store) {
	s.store = st
}

// Serve handles calls until ctx is cancelled or Stop is called.
func (s *YPServer) Serve(ctx context.Context) error {
	if s.store == nil {
		return errors.New("ypserv: no store configured")
	}
	logger.Info("ypserv listening on port %d (master %s)", s.port, s.cfg.Master)
	return s.srv.Serve(ctx)
}

// Stop initiates graceful shutdown.
func (s *YPServer) Stop(ctx context.Context) error {
	return s.srv.Stop(ctx)
}

// Protocol returns "ypserv".
func (s *YPServer) Protocol() string {
	return "ypserv"
}

// Port returns the bound port.
func (s *YPServer) Port() int {
	return s.port
}

// Mappings returns the port mapper registrations for this server.
func (s *YPServer) Mappings() []portmap.Mapping {
	return mappingsFor(rpc.ProgramYP, yp.Version, s.port)
}

// ypProgram answers YP version 2 calls.
type ypProgram struct {
	s *YPServer
}

func (p *ypProgram) Number() uint32             { return rpc.ProgramYP }
func (p *ypProgram) Versions() (uint32, uint32) { return yp.Version, yp.Version }
func (p *ypProgram) Name() string               { return "ypserv" }

var ypProcNames = [...]string{
	yp.ProcNull:         "NULL",
	yp.ProcDomain:       "DOMAIN",
	yp.ProcDomainNonack: "DOMAIN_NONACK",
	yp.ProcMatch:        "MATCH",
	yp.ProcFirst:        "FIRST",
	yp.ProcNext:         "NEXT",
	yp.ProcXfr:          "XFR",
	yp.ProcClear:        "CLEAR",
	yp.ProcAll:          "ALL",
	yp.ProcMaster:       "MASTER",
	yp.ProcOrder:        "ORDER",
	yp.ProcMapList:      "MAPLIST",
}

func (p *ypProgram) ProcName(proc uint32) string {
	if int(proc) < len(ypProcNames) {
		return ypProcNames[proc]
	}
	return fmt.Sprintf("PROC_%d", proc)
}

func (p *ypProgram) Handle(ctx context.Context, req *server.Request) ([]byte, string, error) {
	st := p.s.store

	switch req.Call.Procedure {
	case yp.ProcNull, yp.ProcClear:
		return nil, "OK", nil

	case yp.ProcDomain:
		return server.HandleCall(req.Args, func(a *yp.DomainArgs) (*bool, error) {
			served := p.serves(ctx, a.Domain)
			return &served, nil
		})

	case yp.ProcDomainNonack:
		return server.HandleCall(req.Args, func(a *yp.DomainArgs) (*bool, error) {
			if !p.serves(ctx, a.Domain) {
				return nil, server.ErrNoReply
			}
			served := true
			return &served, nil
		})

	case yp.ProcMatch:
		return server.HandleCall(req.Args, func(a *yp.ReqKey) (*yp.RespVal, error) {
			if s := checkArgs(a.Domain, a.Map, a.Key); s != yp.StatusTrue {
				return &yp.RespVal{Stat: s}, nil
			}
			val, err := st.Get(ctx, a.Domain, a.Map, a.Key)
			return &yp.RespVal{Stat: statusOf(err), Val: val}, nil
		})

	case yp.ProcFirst:
		return server.HandleCall(req.Args, func(a *yp.ReqNoKey) (*yp.RespKeyVal, error) {
			if s := checkArgs(a.Domain, a.Map, nil); s != yp.StatusTrue {
				return &yp.RespKeyVal{Stat: s}, nil
			}
			key, val, err := st.First(ctx, a.Domain, a.Map)
			if errors.Is(err, store.ErrNoMore) {
				// An empty map has no first key.
				return &yp.RespKeyVal{Stat: yp.StatusNoKey}, nil
			}
			return &yp.RespKeyVal{Stat: statusOf(err), Key: key, Val: val}, nil
		})

	case yp.ProcNext:
		return server.HandleCall(req.Args, func(a *yp.ReqKey) (*yp.RespKeyVal, error) {
			if s := checkArgs(a.Domain, a.Map, a.Key); s != yp.StatusTrue {
				return &yp.RespKeyVal{Stat: s}, nil
			}
			key, val, err := st.Next(ctx, a.Domain, a.Map, a.Key)
			return &yp.RespKeyVal{Stat: statusOf(err), Key: key, Val: val}, nil
		})

	case yp.ProcAll:
		return server.HandleCall(req.Args, func(a *yp.ReqNoKey) (*yp.RespAll, error) {
			return p.all(ctx, a), nil
		})

	case yp.ProcMaster:
		return server.HandleCall(req.Args, func(a *yp.ReqNoKey) (*yp.RespMaster, error) {
			if s := checkArgs(a.Domain, a.Map, nil); s != yp.StatusTrue {
				return &yp.RespMaster{Stat: s}, nil
			}
			if _, err := st.Order(ctx, a.Domain, a.Map); err != nil {
				return &yp.RespMaster{Stat: statusOf(err)}, nil
			}
			return &yp.RespMaster{Stat: yp.StatusTrue, Peer: p.s.cfg.Master}, nil
		})

	case yp.ProcOrder:
		return server.HandleCall(req.Args, func(a *yp.ReqNoKey) (*yp.RespOrder, error) {
			if s := checkArgs(a.Domain, a.Map, nil); s != yp.StatusTrue {
				return &yp.RespOrder{Stat: s}, nil
			}
			order, err := st.Order(ctx, a.Domain, a.Map)
			return &yp.RespOrder{Stat: statusOf(err), Ordinum: order}, nil
		})

	case yp.ProcMapList:
		return server.HandleCall(req.Args, func(a *yp.DomainArgs) (*yp.RespMapList, error) {
			if len(a.Domain) == 0 || len(a.Domain) > yp.MaxDomainLen {
				return &yp.RespMapList{Stat: yp.StatusBadArgs}, nil
			}
			maps, err := st.Maps(ctx, a.Domain)
			return &yp.RespMapList{Stat: statusOf(err), Maps: maps}, nil
		})

	default:
		// XFR needs a map transfer agent this server does not have.
		return nil, "", server.ErrProcUnavail
	}
}

func (p *ypProgram) serves(ctx context.Context, domain string) bool {
	_, err := p.s.store.Maps(ctx, domain)
	return err == nil
}

// all collects a whole map for ALL.
func (p *ypProgram) all(ctx context.Context, a *yp.ReqNoKey) *yp.RespAll {
	resp := &yp.RespAll{}
	if s := checkArgs(a.Domain, a.Map, nil); s != yp.StatusTrue {
		resp.Stat = s
		return resp
	}

	key, val, err := p.s.store.First(ctx, a.Domain, a.Map)
	for err == nil {
		resp.Entries = append(resp.Entries, yp.RespKeyVal{Stat: yp.StatusTrue, Key: key, Val: val})
		key, val, err = p.s.store.Next(ctx, a.Domain, a.Map, key)
	}
	resp.Stat = statusOf(err)
	return resp
}

// checkArgs applies the yp.x length limits.
func checkArgs(domain, mapName string, key []byte) yp.Status {
	switch {
	case domain == "" || len(domain) > yp.MaxDomainLen:
		return yp.StatusBadArgs
	case mapName == "" || len(mapName) > yp.MaxMapLen:
		return yp.StatusBadArgs
	case len(key) > yp.MaxRecordLen:
		return yp.StatusBadArgs
	}
	return yp.StatusTrue
}

// statusOf translates a store error into the reply status.
func statusOf(err error) yp.Status {
	switch {
	case err == nil:
		return yp.StatusTrue
	case errors.Is(err, store.ErrNoDomain):
		return yp.StatusNoDom
	case errors.Is(err, store.ErrNoMap):
		return yp.StatusNoMap
	case errors.Is(err, store.ErrNoKey):
		return yp.StatusNoKey
	case errors.Is(err, store.ErrNoMore):
		return yp.StatusNoMore
	case errors.Is(err, store.ErrInvalidName):
		return yp.StatusBadArgs
	default:
		logger.Warn("ypserv: store error: %v", err)
		return yp.StatusBadDB
	}
}

// mappingsFor returns UDP and TCP registrations of prog/vers on port.
func mappingsFor(prog, vers uint32, port int) []portmap.Mapping {
	return []portmap.Mapping{
		{Prog: prog, Vers: vers, Prot: rpc.ProtoUDP, Port: uint32(port)},
		{Prog: prog, Vers: vers, Prot: rpc.ProtoTCP, Port: uint32(port)},
	}
}
