package ypserv

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/marmos91/goyp/internal/ratelimiter"
	"github.com/marmos91/goyp/internal/server"
	"github.com/marmos91/goyp/pkg/metrics"
)

// Options holds the settings every responder shares.
type Options struct {
	// Listen is the host:port to bind. The same port is used for UDP and
	// TCP. Port 0 picks a free port.
	Listen string `mapstructure:"listen" validate:"required"`

	// RateLimit is the sustained requests per second admitted. 0 disables
	// limiting.
	RateLimit uint `mapstructure:"rate_limit"`

	// RateBurst is the burst size. 0 means RateLimit.
	RateBurst uint `mapstructure:"rate_burst"`

	// AllowedNetworks restricts callers to these CIDR prefixes, like
	// ypserv's securenets file. Empty allows everyone.
	AllowedNetworks []string `mapstructure:"allowed_networks" validate:"dive,cidr"`

	// IdleTimeout closes idle TCP connections.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout bounds graceful shutdown of TCP connections.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// Metrics records requests. Nil disables recording.
	Metrics metrics.ServerMetrics `mapstructure:"-"`
}

func (o *Options) serverConfig() (server.Config, error) {
	cfg := server.Config{
		IdleTimeout:     o.IdleTimeout,
		ShutdownTimeout: o.ShutdownTimeout,
		Limiter:         ratelimiter.New(o.RateLimit, o.RateBurst),
		Metrics:         o.Metrics,
	}
	for _, s := range o.AllowedNetworks {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return cfg, fmt.Errorf("allowed network %q: %w", s, err)
		}
		cfg.Allowed = append(cfg.Allowed, p.Masked())
	}
	return cfg, nil
}

// bindAttempts bounds the retries when an ephemeral UDP port is taken for
// TCP by another process.
const bindAttempts = 8

// listen binds addr for UDP and, when withTCP is set, TCP on the same port.
func listen(addr string, withTCP bool) (net.PacketConn, net.Listener, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen address %q: %w", addr, err)
	}

	for range bindAttempts {
		pc, err := net.ListenPacket("udp4", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("listen udp %s: %w", addr, err)
		}
		if !withTCP {
			return pc, nil, nil
		}

		bound := strconv.Itoa(int(pc.LocalAddr().(*net.UDPAddr).Port))
		ln, err := net.Listen("tcp4", net.JoinHostPort(host, bound))
		if err == nil {
			return pc, ln, nil
		}
		_ = pc.Close()
		if port != "0" {
			return nil, nil, fmt.Errorf("listen tcp %s: %w", addr, err)
		}
	}
	return nil, nil, errors.New("no port free for both udp and tcp")
}

func portOf(pc net.PacketConn) int {
	return pc.LocalAddr().(*net.UDPAddr).Port
}
