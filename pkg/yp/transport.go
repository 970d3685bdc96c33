package yp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	ypproto "github.com/marmos91/goyp/internal/protocol/yp"
	"golang.org/x/sys/unix"
)

// Transport issues calls for one RPC program over an established channel.
// Arguments and results are XDR-encoded by the implementation; values
// implementing rpc.XDREncoder / rpc.XDRDecoder encode themselves.
type Transport interface {
	Call(ctx context.Context, proc uint32, args, result any) error
	Close() error
}

// boundTransport is a Transport together with the socket it owns and the
// local binding learned right after creation.
type boundTransport struct {
	transport Transport
	conn      syscall.Conn
	endpoint  netip.AddrPort

	family int
	port   int
}

func (b *boundTransport) close() error {
	return b.transport.Close()
}

// createTransport opens a datagram transport to the YP server at endpoint.
// A zero port is first resolved through the server's portmapper. On failure
// every socket created so far is closed.
func createTransport(ctx context.Context, endpoint netip.AddrPort, cfg *Config) (*boundTransport, error) {
	if endpoint.Port() == 0 {
		port, err := portmap.GetPort(ctx, endpoint.Addr(), cfg.PortmapPort, rpc.ProgramYP, ypproto.Version, rpc.ProtoUDP, cfg.BindTimeout)
		if err != nil {
			return nil, fmt.Errorf("look up ypserv port on %s: %w", endpoint.Addr(), err)
		}
		endpoint = netip.AddrPortFrom(endpoint.Addr(), port)
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "udp4", endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn := c.(*net.UDPConn)

	if err := setCloseOnExec(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set close-on-exec: %w", err)
	}

	family, port, err := localBinding(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	if family != unix.AF_INET && family != unix.AF_INET6 {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected local address family %d", family)
	}

	return &boundTransport{
		transport: rpc.NewUDPClient(conn, rpc.ProgramYP, ypproto.Version, cfg.udpConfig()),
		conn:      conn,
		endpoint:  endpoint,
		family:    family,
		port:      port,
	}, nil
}

// setCloseOnExec keeps the descriptor from leaking into exec'd children.
func setCloseOnExec(conn syscall.Conn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return raw.Control(func(fd uintptr) {
		unix.CloseOnExec(int(fd))
	})
}

// localBinding reads the socket's local address family and port.
func localBinding(conn syscall.Conn) (family, port int, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}

	var (
		sa     unix.Sockaddr
		sysErr error
	)
	if err := raw.Control(func(fd uintptr) {
		sa, sysErr = unix.Getsockname(int(fd))
	}); err != nil {
		return 0, 0, err
	}
	if sysErr != nil {
		return 0, 0, sysErr
	}

	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET, a.Port, nil
	case *unix.SockaddrInet6:
		return unix.AF_INET6, a.Port, nil
	case *unix.SockaddrUnix:
		return unix.AF_UNIX, 0, nil
	default:
		return unix.AF_UNSPEC, 0, nil
	}
}
