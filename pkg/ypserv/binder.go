package ypserv

import (
	"context"
	"fmt"
	"maps"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/ypbind"
	"github.com/marmos91/goyp/internal/server"
)

// BinderConfig configures the binding daemon.
type BinderConfig struct {
	Options `mapstructure:",squash"`

	// PIDFile is written while the binder runs and removed on shutdown.
	// Clients treat its presence as "ypbind is running".
	PIDFile string `mapstructure:"pid_file"`

	// Bindings maps domains to the ypserv address (ip:port) that serves
	// them.
	Bindings map[string]string `mapstructure:"bindings"`
}

// Binder answers YPBIND DOMAIN queries from a static binding table.
type Binder struct {
	cfg  BinderConfig
	srv  *server.Server
	port int

	mu       sync.RWMutex
	bindings map[string]netip.AddrPort
}

// NewBinder binds the configured address and loads the binding table.
func NewBinder(cfg BinderConfig) (*Binder, error) {
	b := &Binder{cfg: cfg, bindings: make(map[string]netip.AddrPort)}
	for domain, addr := range cfg.Bindings {
		ap, err := netip.ParseAddrPort(addr)
		if err != nil {
			return nil, fmt.Errorf("binding for %s: %w", domain, err)
		}
		if err := b.Bind(domain, ap); err != nil {
			return nil, err
		}
	}

	scfg, err := cfg.serverConfig()
	if err != nil {
		return nil, err
	}
	pc, ln, err := listen(cfg.Listen, true)
	if err != nil {
		return nil, err
	}

	b.port = portOf(pc)
	b.srv = server.New(scfg, pc, ln, &binderProgram{b})
	return b, nil
}

// Bind records that addr serves domain. Only IPv4 servers can be bound.
func (b *Binder) Bind(domain string, addr netip.AddrPort) error {
	if !addr.Addr().Unmap().Is4() {
		return fmt.Errorf("binding for %s: %s is not IPv4", domain, addr.Addr())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[domain] = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	return nil
}

// Unbind forgets the binding for domain.
func (b *Binder) Unbind(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bindings, domain)
}

// Domains returns the bound domains, sorted.
func (b *Binder) Domains() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.bindings))
}

func (b *Binder) lookup(domain string) (netip.AddrPort, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ap, ok := b.bindings[domain]
	return ap, ok
}

// Serve writes the PID file and handles calls until shutdown.
func (b *Binder) Serve(ctx context.Context) error {
	if b.cfg.PIDFile != "" {
		pid := strconv.Itoa(os.Getpid()) + "\n"
		if err := os.WriteFile(b.cfg.PIDFile, []byte(pid), 0o644); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() {
			if err := os.Remove(b.cfg.PIDFile); err != nil {
				logger.Warn("ypbind: remove pid file: %v", err)
			}
		}()
	}

	logger.Info("ypbind listening on port %d (%d domain(s) bound)", b.port, len(b.Domains()))
	return b.srv.Serve(ctx)
}

// Stop initiates graceful shutdown.
func (b *Binder) Stop(ctx context.Context) error {
	return b.srv.Stop(ctx)
}

// Protocol returns "ypbind".
func (b *Binder) Protocol() string {
	return "ypbind"
}

// Port returns the bound port.
func (b *Binder) Port() int {
	return b.port
}

// Mappings returns the port mapper registrations for the binder.
func (b *Binder) Mappings() []portmap.Mapping {
	return mappingsFor(rpc.ProgramYPBind, ypbind.Version, b.port)
}

type binderProgram struct {
	b *Binder
}

func (p *binderProgram) Number() uint32             { return rpc.ProgramYPBind }
func (p *binderProgram) Versions() (uint32, uint32) { return ypbind.Version, ypbind.Version }
func (p *binderProgram) Name() string               { return "ypbind" }

func (p *binderProgram) ProcName(proc uint32) string {
	switch proc {
	case ypbind.ProcNull:
		return "NULL"
	case ypbind.ProcDomain:
		return "DOMAIN"
	case ypbind.ProcSetDomain:
		return "SETDOMAIN"
	default:
		return fmt.Sprintf("PROC_%d", proc)
	}
}

func (p *binderProgram) Handle(ctx context.Context, req *server.Request) ([]byte, string, error) {
	switch req.Call.Procedure {
	case ypbind.ProcNull:
		return nil, "OK", nil
	case ypbind.ProcDomain:
		return server.HandleCall(req.Args, func(a *ypbind.DomainArgs) (*ypbind.Response, error) {
			if ap, ok := p.b.lookup(a.Domain); ok {
				return &ypbind.Response{Status: ypbind.StatusSucc, Server: ap}, nil
			}
			logger.Debug("ypbind: domain %q not bound", a.Domain)
			return &ypbind.Response{Status: ypbind.StatusFail, Error: ypbind.ErrNoServ}, nil
		})
	default:
		// SETDOMAIN (ypset) is refused; bindings come from configuration.
		return nil, "", server.ErrProcUnavail
	}
}
