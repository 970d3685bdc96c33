package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/ratelimiter"
	"github.com/marmos91/goyp/pkg/metrics"
)

// maxDatagram is the largest UDP call the server reads.
const maxDatagram = 8900

// maxRecord bounds a reassembled call on stream connections.
const maxRecord = 64 << 10

// Config holds the tunables shared by every responder.
//
// Default values (applied by New if zero):
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 5s
type Config struct {
	// IdleTimeout closes stream connections that send nothing for this long.
	IdleTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for active stream connections
	// before force-closing them.
	ShutdownTimeout time.Duration

	// Limiter admits requests. Nil admits everything.
	Limiter *ratelimiter.RateLimiter

	// Metrics records handled and dropped requests. Nil disables recording.
	Metrics metrics.ServerMetrics

	// Allowed restricts callers to these networks. Empty allows everyone.
	Allowed []netip.Prefix
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopServerMetrics()
	}
}

// Server dispatches ONC RPC calls to registered programs.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Datagram socket and listener closed
//  3. shutdownCtx cancelled (signals in-flight requests to abort)
//  4. Wait for active stream connections (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
type Server struct {
	cfg      Config
	programs map[uint32]Program

	packet   net.PacketConn
	listener net.Listener

	shutdownOnce   sync.Once
	shutdown       chan struct{}
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	conns       sync.Map
}

// New creates a Server for the given programs. packet and listener are the
// sockets to serve; either may be nil. The server takes ownership of both.
func New(cfg Config, packet net.PacketConn, listener net.Listener, programs ...Program) *Server {
	cfg.applyDefaults()

	shutdownCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		programs:       make(map[uint32]Program, len(programs)),
		packet:         packet,
		listener:       listener,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancel,
	}
	for _, p := range programs {
		s.programs[p.Number()] = p
	}
	return s
}

// UDPPort returns the datagram port, or 0 when the server has no socket.
func (s *Server) UDPPort() uint16 {
	if s.packet == nil {
		return 0
	}
	return portOf(s.packet.LocalAddr())
}

// TCPPort returns the stream port, or 0 when the server has no listener.
func (s *Server) TCPPort() uint16 {
	if s.listener == nil {
		return 0
	}
	return portOf(s.listener.Addr())
}

// ActiveConnections returns the number of open stream connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Serve handles calls until ctx is cancelled or Stop is called. It returns
// nil on graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if s.packet == nil && s.listener == nil {
		return errors.New("server has neither a datagram socket nor a listener")
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdown:
		}
		s.initiateShutdown()
	}()

	var wg sync.WaitGroup
	if s.packet != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveUDP()
		}()
	}
	if s.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.acceptTCP()
		}()
	}
	wg.Wait()

	return s.gracefulShutdown()
}

func (s *Server) serveUDP() {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := s.packet.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Error reading datagram: %v", err)
			continue
		}

		reply := s.dispatch(s.shutdownCtx, buf[:n], addrPortOf(from), "udp")
		if reply == nil {
			continue
		}
		if _, err := s.packet.WriteTo(reply, from); err != nil {
			logger.Debug("Error sending reply to %s: %v", from, err)
		}
	}
}

func (s *Server) acceptTCP() {
	for {
		tcpConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Error accepting connection: %v", err)
			continue
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)
		addr := tcpConn.RemoteAddr().String()
		s.conns.Store(addr, tcpConn)

		go func() {
			defer func() {
				s.conns.Delete(addr)
				s.connCount.Add(-1)
				s.activeConns.Done()
			}()
			newConn(s, tcpConn).serve(s.shutdownCtx)
		}()
	}
}

// dispatch handles one call message and returns the reply, or nil when no
// reply must be sent.
func (s *Server) dispatch(ctx context.Context, msg []byte, remote netip.AddrPort, network string) []byte {
	call, args, err := rpc.ParseCall(msg)
	if err != nil {
		logger.Debug("Dropping malformed call from %s: %v", remote, err)
		return nil
	}
	if call.RPCVersion != rpc.RPCVersion {
		logger.Debug("Dropping RPC version %d call from %s", call.RPCVersion, remote)
		return nil
	}

	// Refused callers get no reply at all, not even PROG_UNAVAIL.
	if !s.admitted(remote.Addr()) {
		logger.Warn("Refusing call to program %d from %s", call.Program, remote)
		return nil
	}

	prog, ok := s.programs[call.Program]
	if !ok {
		logger.Debug("Program %d unavailable for %s", call.Program, remote)
		return s.reply(call.XID, rpc.RPCProgUnavail, nil)
	}
	name := prog.Name()

	if !s.throttle(ctx, network) {
		s.cfg.Metrics.RecordRateLimited(name)
		logger.Debug("%s: rate limited call from %s", name, remote)
		return nil
	}

	low, high := prog.Versions()
	if call.Version < low || call.Version > high {
		reply, err := rpc.EncodeProgMismatchReply(call.XID, low, high)
		if err != nil {
			logger.Error("%s: %v", name, err)
			return nil
		}
		return reply
	}

	proc := prog.ProcName(call.Procedure)
	logger.Debug("%s: %s XID=0x%x from %s/%s", name, proc, call.XID, remote, network)

	start := time.Now()
	result, status, err := prog.Handle(ctx, &Request{Call: call, Args: args, Remote: remote, Network: network})
	duration := time.Since(start)

	acceptStat := uint32(rpc.RPCSuccess)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoReply):
		s.cfg.Metrics.RecordRequest(name, proc, "NO_REPLY", duration)
		return nil
	case errors.Is(err, ErrProcUnavail):
		acceptStat, status = rpc.RPCProcUnavail, "PROC_UNAVAIL"
	case errors.Is(err, ErrGarbageArgs):
		acceptStat, status = rpc.RPCGarbageArgs, "GARBAGE_ARGS"
	default:
		logger.Error("%s: %s failed: %v", name, proc, err)
		acceptStat, status = rpc.RPCSystemErr, "SYSTEM_ERR"
	}
	s.cfg.Metrics.RecordRequest(name, proc, status, duration)

	return s.reply(call.XID, acceptStat, result)
}

func (s *Server) reply(xid, acceptStat uint32, result []byte) []byte {
	reply, err := rpc.EncodeReply(xid, acceptStat, result)
	if err != nil {
		logger.Error("Error encoding reply: %v", err)
		return nil
	}
	return reply
}

// throttle applies the rate limit. Datagrams over the limit are dropped and
// left to the caller's retransmission; stream calls, which are never
// retransmitted, wait for a token instead.
func (s *Server) throttle(ctx context.Context, network string) bool {
	if s.cfg.Limiter == nil {
		return true
	}
	if network == "tcp" {
		return s.cfg.Limiter.Wait(ctx) == nil
	}
	return s.cfg.Limiter.Allow()
}

func (s *Server) admitted(addr netip.Addr) bool {
	if len(s.cfg.Allowed) == 0 {
		return true
	}
	addr = addr.Unmap()
	for _, p := range s.cfg.Allowed {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Stop initiates shutdown and waits for stream connections to finish or
// for ctx to expire. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.forceCloseConnections()
		return ctx.Err()
	}
}

func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.packet != nil {
			if err := s.packet.Close(); err != nil {
				logger.Debug("Error closing datagram socket: %v", err)
			}
		}
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener: %v", err)
			}
		}
		s.cancelRequests()
	})
}

// gracefulShutdown waits for active stream connections, force-closing them
// once ShutdownTimeout passes.
func (s *Server) gracefulShutdown() error {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.cfg.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Server) forceCloseConnections() {
	s.conns.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", key, err)
		}
		return true
	})
}

func portOf(addr net.Addr) uint16 {
	return addrPortOf(addr).Port()
}

func addrPortOf(addr net.Addr) netip.AddrPort {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.AddrPort()
	case *net.TCPAddr:
		return a.AddrPort()
	default:
		ap, _ := netip.ParseAddrPort(addr.String())
		return ap
	}
}
