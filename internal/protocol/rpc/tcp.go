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

// maxRecordSize bounds replies read from stream transports.
const maxRecordSize = 1 << 20

// TCPClient issues calls for one program/version over a stream connection
// using record marking. There is no retransmission: a call either completes
// within the timeout or fails.
type TCPClient struct {
	conn    net.Conn
	program uint32
	version uint32
	timeout time.Duration

	xid atomic.Uint32
	mu  sync.Mutex
}

// NewTCPClient wraps an established stream connection and takes ownership
// of it.
func NewTCPClient(conn net.Conn, program, version uint32, timeout time.Duration) *TCPClient {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	c := &TCPClient{
		conn:    conn,
		program: program,
		version: version,
		timeout: timeout,
	}
	c.xid.Store(rand.Uint32())
	return c
}

// DialTCP connects to addr and wraps the connection.
func DialTCP(ctx context.Context, addr netip.AddrPort, program, version uint32, timeout time.Duration) (*TCPClient, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp4", addr.String())
	if err != nil {
		return nil, newError(StatCantSend, fmt.Errorf("dial %s: %w", addr, err))
	}
	return NewTCPClient(conn, program, version, timeout), nil
}

// Call sends procedure proc with args and decodes the reply into result.
func (c *TCPClient) Call(ctx context.Context, proc uint32, args, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	xid := c.xid.Add(1)
	msg, err := EncodeCall(xid, c.program, c.version, proc, args)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return newError(StatCantSend, err)
	}

	if err := WriteRecord(c.conn, msg); err != nil {
		if isTimeout(err) {
			return newError(StatTimedOut, err)
		}
		return newError(StatCantSend, err)
	}

	for {
		reply, err := ReadRecord(c.conn, maxRecordSize)
		if err != nil {
			if isTimeout(err) {
				return newError(StatTimedOut, err)
			}
			return newError(StatCantRecv, err)
		}

		if got, ok := ReplyXID(reply); ok && got == xid {
			return DecodeReply(reply, result)
		}
	}
}

// Close releases the connection.
func (c *TCPClient) Close() error {
	return c.conn.Close()
}
