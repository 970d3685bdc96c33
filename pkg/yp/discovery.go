package yp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/ypbind"
)

var (
	// errYPBindNotRunning is the cause when no liveness marker exists.
	errYPBindNotRunning = errors.New("ypbind is not running")

	// errNotIPv4 is the cause when a server resolves to another family.
	errNotIPv4 = errors.New("server address is not IPv4")
)

var loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// discover returns the endpoint of the server for domain. An explicit server
// is resolved locally and not checked against the domain; otherwise the
// local ypbind is asked. A returned port of zero means the YP port still has
// to be looked up with the server's portmapper.
func discover(ctx context.Context, domain, server string, cfg *Config) (netip.AddrPort, error) {
	if server != "" {
		return resolveServer(ctx, server, cfg.Resolver)
	}
	return askYPBind(ctx, domain, cfg)
}

// resolveServer accepts "host" or "host:port"; host may be a name or an IPv4
// literal. Only the first IPv4 address is used.
func resolveServer(ctx context.Context, server string, resolver *net.Resolver) (netip.AddrPort, error) {
	host, port := server, uint16(0)
	if h, p, err := net.SplitHostPort(server); err == nil {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return netip.AddrPort{}, newError("discover", NoHost, fmt.Errorf("invalid port in %q: %w", server, err))
		}
		host, port = h, uint16(n)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.AddrPort{}, newError("discover", NoHost, fmt.Errorf("%s: %w", host, errNotIPv4))
		}
		return netip.AddrPortFrom(addr, port), nil
	}

	addrs, err := resolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.AddrPort{}, newError("discover", NoHost, err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, newError("discover", NoHost, fmt.Errorf("%s: no IPv4 address", host))
	}

	addr := addrs[0].Unmap()
	if !addr.Is4() {
		return netip.AddrPort{}, newError("discover", NoHost, fmt.Errorf("%s: %w", host, errNotIPv4))
	}
	return netip.AddrPortFrom(addr, port), nil
}

// ypbindRunning reports whether any liveness marker exists.
func ypbindRunning(markers []string) bool {
	for _, path := range markers {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// askYPBind queries the local binding daemon over a short-lived TCP
// connection. The daemon must be registered on a privileged port; a reply
// from an unprivileged one could come from any local user.
func askYPBind(ctx context.Context, domain string, cfg *Config) (netip.AddrPort, error) {
	if !ypbindRunning(cfg.YPBindMarkers) {
		return netip.AddrPort{}, newError("discover", BindingUnreachable, errYPBindNotRunning)
	}

	port, err := portmap.GetPort(ctx, loopback, cfg.PortmapPort, rpc.ProgramYPBind, ypbind.Version, rpc.ProtoTCP, cfg.BindTimeout)
	if err != nil {
		if rpc.StatOf(err) == rpc.StatProgNotRegistered {
			logger.Warn("ypbind program not registered on localhost")
		}
		return netip.AddrPort{}, portmapError(err)
	}
	if port >= cfg.privilegedBelow {
		return netip.AddrPort{}, newError("discover", AuthError,
			fmt.Errorf("ypbind registered on unprivileged port %d", port))
	}

	client, err := rpc.DialTCP(ctx, netip.AddrPortFrom(loopback, port), rpc.ProgramYPBind, ypbind.Version, cfg.BindTimeout)
	if err != nil {
		return netip.AddrPort{}, newError("discover", RPCError, err)
	}

	var resp ypbind.Response
	err = client.Call(ctx, ypbind.ProcDomain, &ypbind.DomainArgs{Domain: domain}, &resp)
	_ = client.Close()
	if err != nil {
		if s := rpc.StatOf(err); s != rpc.StatProgUnavail && s != rpc.StatProcUnavail {
			logger.Warn("ypbind for domain %s not responding: %v", domain, err)
		}
		return netip.AddrPort{}, bindError(err)
	}

	if resp.Status != ypbind.StatusSucc {
		return netip.AddrPort{}, newError("discover", NoDomain,
			fmt.Errorf("ypbind: %s", ypbind.ErrorString(resp.Error)))
	}

	logger.Debug("ypbind: domain %s is served by %s", domain, resp.Server)
	return resp.Server, nil
}

// defaultDomain returns the system NIS domain name.
func defaultDomain() (string, error) {
	name, err := systemDomain()
	if err != nil {
		return "", newError("dial", SystemError, err)
	}
	if name == "" || name == "(none)" {
		return "", newError("dial", NoDomain, errors.New("system domain name is not set"))
	}
	return name, nil
}
