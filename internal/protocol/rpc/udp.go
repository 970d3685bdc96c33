package rpc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// Default UDP sizing, taken from the BSD libc YP client: requests never exceed
// 1280 bytes and the largest reply (a 1024-byte key plus a 1024-byte value and
// headers) fits in 2304.
const (
	DefaultSendSize     = 1280
	DefaultRecvSize     = 2304
	DefaultRetryTimeout = time.Second
	DefaultCallTimeout  = 5 * time.Second
)

// UDPConfig controls buffer sizing and the retransmission schedule.
type UDPConfig struct {
	// SendSize is the largest encoded call the client will send.
	SendSize int

	// RecvSize is the reply buffer size; longer datagrams are truncated and
	// fail to decode.
	RecvSize int

	// RetryTimeout is the wait before a call is retransmitted.
	RetryTimeout time.Duration

	// CallTimeout bounds the whole call including retransmissions.
	CallTimeout time.Duration
}

func (c *UDPConfig) applyDefaults() {
	if c.SendSize <= 0 {
		c.SendSize = DefaultSendSize
	}
	if c.RecvSize <= 0 {
		c.RecvSize = DefaultRecvSize
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = DefaultRetryTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
}

// UDPClient issues calls for one program/version over a connected datagram
// socket. Calls are serialised; each call retransmits every RetryTimeout until
// a reply with the matching XID arrives or CallTimeout elapses.
type UDPClient struct {
	conn    *net.UDPConn
	program uint32
	version uint32
	cfg     UDPConfig

	xid atomic.Uint32

	mu  sync.Mutex
	buf []byte
}

// NewUDPClient wraps an already connected UDP socket. The client takes
// ownership of conn and closes it in Close.
func NewUDPClient(conn *net.UDPConn, program, version uint32, cfg UDPConfig) *UDPClient {
	cfg.applyDefaults()

	c := &UDPClient{
		conn:    conn,
		program: program,
		version: version,
		cfg:     cfg,
		buf:     make([]byte, cfg.RecvSize),
	}
	c.xid.Store(rand.Uint32())
	return c
}

// DialUDP connects a new UDP socket to addr and wraps it.
func DialUDP(ctx context.Context, addr netip.AddrPort, program, version uint32, cfg UDPConfig) (*UDPClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr.String())
	if err != nil {
		return nil, newError(StatCantSend, fmt.Errorf("dial %s: %w", addr, err))
	}
	return NewUDPClient(conn.(*net.UDPConn), program, version, cfg), nil
}

// Conn returns the underlying socket.
func (c *UDPClient) Conn() *net.UDPConn {
	return c.conn
}

// Call sends procedure proc with args and decodes the reply into result.
//
// The context deadline shortens the call timeout when it is earlier;
// cancellation is observed between retransmissions.
func (c *UDPClient) Call(ctx context.Context, proc uint32, args, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	xid := c.xid.Add(1)
	msg, err := EncodeCall(xid, c.program, c.version, proc, args)
	if err != nil {
		return err
	}
	if len(msg) > c.cfg.SendSize {
		return newError(StatCantEncodeArgs, fmt.Errorf("call size %d exceeds send buffer %d", len(msg), c.cfg.SendSize))
	}

	deadline := time.Now().Add(c.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if _, err := c.conn.Write(msg); err != nil {
			return newError(StatCantSend, err)
		}

		wait := time.Now().Add(c.cfg.RetryTimeout)
		if wait.After(deadline) {
			wait = deadline
		}
		if err := c.conn.SetReadDeadline(wait); err != nil {
			return newError(StatCantRecv, err)
		}

		done, err := c.awaitReply(xid, result)
		if done {
			return err
		}

		if !time.Now().Before(deadline) {
			return newError(StatTimedOut, nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError(StatTimedOut, ctxErr)
		}
	}
}

// awaitReply reads datagrams until the one matching xid arrives (done=true)
// or the read deadline passes (done=false).
func (c *UDPClient) awaitReply(xid uint32, result any) (bool, error) {
	for {
		n, err := c.conn.Read(c.buf)
		if err != nil {
			if isTimeout(err) {
				return false, nil
			}
			return true, newError(StatCantRecv, err)
		}

		got, ok := ReplyXID(c.buf[:n])
		if !ok || got != xid {
			continue
		}
		return true, DecodeReply(c.buf[:n], result)
	}
}

// Close releases the socket.
func (c *UDPClient) Close() error {
	return c.conn.Close()
}
