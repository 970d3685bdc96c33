package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/rpc"
)

// conn serves record-marked calls on one stream connection.
type conn struct {
	server *Server
	conn   net.Conn
}

func newConn(s *Server, c net.Conn) *conn {
	return &conn{server: s, conn: c}
}

// serve handles requests until the client disconnects, the connection goes
// idle, or the server shuts down. A panic in a handler closes only this
// connection.
func (c *conn) serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: %v", c.conn.RemoteAddr(), r)
		}
		_ = c.conn.Close()
	}()

	clientAddr := c.conn.RemoteAddr().String()
	logger.Debug("New connection from %s", clientAddr)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Connection from %s closed due to server shutdown", clientAddr)
			return
		default:
		}

		if err := c.conn.SetDeadline(time.Now().Add(c.server.cfg.IdleTimeout)); err != nil {
			logger.Warn("Failed to set deadline for %s: %v", clientAddr, err)
		}

		if err := c.handleRequest(ctx); err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("Connection from %s closed by client", clientAddr)
			case errors.As(err, &netErr) && netErr.Timeout():
				logger.Debug("Connection from %s timed out: %v", clientAddr, err)
			default:
				logger.Debug("Error handling request from %s: %v", clientAddr, err)
			}
			return
		}
	}
}

// handleRequest reads one record, dispatches it and writes the reply.
func (c *conn) handleRequest(ctx context.Context) error {
	msg, err := rpc.ReadRecord(c.conn, maxRecord)
	if err != nil {
		return err
	}

	reply := c.server.dispatch(ctx, msg, addrPortOf(c.conn.RemoteAddr()), "tcp")
	if reply == nil {
		return nil
	}
	return rpc.WriteRecord(c.conn, reply)
}
