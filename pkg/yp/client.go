package yp

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/marmos91/goyp/internal/logger"
)

// Client is a handle bound to one YP server for one domain.
//
// A Client is created by Dial and released by Close. Calls are serialised by
// an internal mutex, but the handle owns a single socket and is meant to be
// used by one goroutine at a time; create one Client per goroutine and
// domain for concurrent lookups.
type Client struct {
	mu sync.Mutex

	domain   string
	server   string
	endpoint netip.AddrPort

	// bound is nil once the client is closed. The transport and the socket
	// live and die together inside it.
	bound *boundTransport

	lastErr ErrorCode
	cfg     Config
}

// Dial binds a Client to the server for domain.
//
// An empty domain means the system NIS domain name. An empty server means
// the local ypbind is asked which server to use; otherwise server is a host
// name or IPv4 address, optionally with ":port" to skip the portmapper.
//
// Before returning, Dial asks the server for the domain's map list. If that
// fails the socket is closed and no Client is returned: the error code is
// RPCError when the server could not be reached and NoDomain when it
// answered that it does not serve the domain.
func Dial(ctx context.Context, domain, server string, cfg Config) (*Client, error) {
	return dial(ctx, domain, server, cfg, createTransport)
}

// connectFunc opens the YP transport to a discovered endpoint.
type connectFunc func(ctx context.Context, endpoint netip.AddrPort, cfg *Config) (*boundTransport, error)

func dial(ctx context.Context, domain, server string, cfg Config, connect connectFunc) (*Client, error) {
	cfg.applyDefaults()

	if domain == "" {
		d, err := defaultDomain()
		if err != nil {
			return nil, err
		}
		domain = d
	}

	source := "explicit"
	if server == "" {
		source = "ypbind"
	}
	endpoint, err := discover(ctx, domain, server, &cfg)
	cfg.Metrics.RecordDiscovery(source, CodeOf(err).String())
	if err != nil {
		return nil, err
	}

	bound, err := connect(ctx, endpoint, &cfg)
	if err != nil {
		return nil, newError("dial", ConnectionError, err)
	}

	c := newClient(domain, server, bound, cfg)
	if err := c.Probe(ctx); err != nil {
		_ = bound.close()
		return nil, err
	}

	logger.Debug("yp: domain %s bound to %s (local port %d)", domain, bound.endpoint, bound.port)
	return c, nil
}

// newClient assembles a handle around an established transport. cfg must
// already have its defaults applied.
func newClient(domain, server string, bound *boundTransport, cfg Config) *Client {
	return &Client{
		domain:   domain,
		server:   server,
		endpoint: bound.endpoint,
		bound:    bound,
		cfg:      cfg,
	}
}

// Close releases the transport and its socket. Closing an already closed
// Client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bound == nil {
		return nil
	}
	err := c.bound.close()
	c.bound = nil
	return err
}

// Domain returns the domain the handle was created for.
func (c *Client) Domain() string {
	return c.domain
}

// Server returns the server name given to Dial, or "" when the server was
// found through ypbind.
func (c *Client) Server() string {
	return c.server
}

// Endpoint returns the resolved server address and YP port.
func (c *Client) Endpoint() netip.AddrPort {
	return c.endpoint
}

// LastError returns the classification of the most recent operation.
func (c *Client) LastError() ErrorCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// do runs one operation under the handle lock, rejecting closed handles and
// recording the outcome.
func (c *Client) do(op string, fn func(t Transport) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	var err error
	if c.bound == nil {
		err = newError(op, BadArgument, ErrClientClosed)
	} else {
		err = fn(c.bound.transport)
	}

	code := CodeOf(err)
	c.lastErr = code
	c.cfg.Metrics.RecordCall(op, time.Since(start), code.String())
	return err
}
