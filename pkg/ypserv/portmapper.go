package ypserv

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/server"
)

// PortmapConfig configures the port mapper.
type PortmapConfig struct {
	Options `mapstructure:",squash"`
}

// PortMapper is a minimal port mapper (version 2). Remote callers may only
// query; SET and UNSET are accepted from loopback addresses only.
type PortMapper struct {
	srv  *server.Server
	port int

	mu       sync.RWMutex
	mappings []portmap.Mapping
}

// NewPortMapper binds the configured address and registers the mapper
// itself.
func NewPortMapper(cfg PortmapConfig) (*PortMapper, error) {
	scfg, err := cfg.serverConfig()
	if err != nil {
		return nil, err
	}
	pc, ln, err := listen(cfg.Listen, true)
	if err != nil {
		return nil, err
	}

	p := &PortMapper{port: portOf(pc)}
	p.srv = server.New(scfg, pc, ln, &portmapProgram{p})
	for _, m := range mappingsFor(rpc.ProgramPortmap, portmap.Version, p.port) {
		p.Register(m)
	}
	return p, nil
}

// Register adds m. It reports false if prog/vers/prot is already mapped.
func (p *PortMapper) Register(m portmap.Mapping) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.find(m.Prog, m.Vers, m.Prot) >= 0 {
		return false
	}
	p.mappings = append(p.mappings, m)
	logger.Debug("portmap: registered %d/%d/%s on port %d", m.Prog, m.Vers, portmap.ProtoName(m.Prot), m.Port)
	return true
}

// Unregister removes every protocol mapping of prog/vers. It reports
// whether anything was removed.
func (p *PortMapper) Unregister(prog, vers uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.mappings)
	p.mappings = slices.DeleteFunc(p.mappings, func(m portmap.Mapping) bool {
		return m.Prog == prog && m.Vers == vers
	})
	return len(p.mappings) != n
}

// Lookup returns the port of prog/vers/prot, or 0.
func (p *PortMapper) Lookup(prog, vers, prot uint32) uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if i := p.find(prog, vers, prot); i >= 0 {
		return p.mappings[i].Port
	}
	return 0
}

// Table returns a copy of the registration table.
func (p *PortMapper) Table() []portmap.Mapping {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.mappings)
}

func (p *PortMapper) find(prog, vers, prot uint32) int {
	return slices.IndexFunc(p.mappings, func(m portmap.Mapping) bool {
		return m.Prog == prog && m.Vers == vers && m.Prot == prot
	})
}

// Serve handles calls until shutdown.
func (p *PortMapper) Serve(ctx context.Context) error {
	logger.Info("portmap listening on port %d", p.port)
	return p.srv.Serve(ctx)
}

// Stop initiates graceful shutdown.
func (p *PortMapper) Stop(ctx context.Context) error {
	return p.srv.Stop(ctx)
}

// Protocol returns "portmap".
func (p *PortMapper) Protocol() string {
	return "portmap"
}

// Port returns the bound port.
func (p *PortMapper) Port() int {
	return p.port
}

type portmapProgram struct {
	p *PortMapper
}

func (h *portmapProgram) Number() uint32             { return rpc.ProgramPortmap }
func (h *portmapProgram) Versions() (uint32, uint32) { return portmap.Version, portmap.Version }
func (h *portmapProgram) Name() string               { return "portmap" }

func (h *portmapProgram) ProcName(proc uint32) string {
	switch proc {
	case portmap.ProcNull:
		return "NULL"
	case portmap.ProcSet:
		return "SET"
	case portmap.ProcUnset:
		return "UNSET"
	case portmap.ProcGetPort:
		return "GETPORT"
	case portmap.ProcDump:
		return "DUMP"
	default:
		return fmt.Sprintf("PROC_%d", proc)
	}
}

func (h *portmapProgram) Handle(ctx context.Context, req *server.Request) ([]byte, string, error) {
	local := req.Remote.Addr().Unmap().IsLoopback()

	switch req.Call.Procedure {
	case portmap.ProcNull:
		return nil, "OK", nil

	case portmap.ProcSet:
		return server.HandleCall(req.Args, func(m *portmap.Mapping) (*bool, error) {
			ok := local && h.p.Register(*m)
			return &ok, nil
		})

	case portmap.ProcUnset:
		return server.HandleCall(req.Args, func(m *portmap.Mapping) (*bool, error) {
			ok := local && h.p.Unregister(m.Prog, m.Vers)
			return &ok, nil
		})

	case portmap.ProcGetPort:
		return server.HandleCall(req.Args, func(m *portmap.Mapping) (*uint32, error) {
			port := h.p.Lookup(m.Prog, m.Vers, m.Prot)
			return &port, nil
		})

	case portmap.ProcDump:
		return server.HandleCall(req.Args, func(*server.Void) (*portmap.MappingList, error) {
			list := portmap.MappingList(h.p.Table())
			return &list, nil
		})

	default:
		// No CALLIT.
		return nil, "", server.ErrProcUnavail
	}
}
