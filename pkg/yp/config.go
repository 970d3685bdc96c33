package yp

import (
	"net"
	"time"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/pkg/metrics"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultCallTimeout  = rpc.DefaultCallTimeout
	DefaultRetryTimeout = rpc.DefaultRetryTimeout
	DefaultBindTimeout  = 5 * time.Second
	DefaultSendSize     = rpc.DefaultSendSize
	DefaultRecvSize     = rpc.DefaultRecvSize
)

// DefaultYPBindMarkers are the files whose presence shows ypbind is running.
var DefaultYPBindMarkers = []string{
	"/var/run/ypbind.pid",
	"/var/run/ypbind.lock",
}

// reservedPort is the first non-privileged port. A ypbind registered above it
// is not trusted.
const reservedPort = 1024

// Config tunes a Client. The zero value gives the classic libc behaviour.
type Config struct {
	// CallTimeout bounds every YP call including retransmissions.
	CallTimeout time.Duration

	// RetryTimeout is the UDP retransmission interval.
	RetryTimeout time.Duration

	// BindTimeout bounds the ypbind and portmapper exchanges of discovery.
	BindTimeout time.Duration

	// SendSize and RecvSize size the UDP request and reply buffers.
	SendSize int
	RecvSize int

	// YPBindMarkers are checked before contacting ypbind; if none exists
	// discovery fails without network I/O.
	YPBindMarkers []string

	// PortmapPort is the portmapper port on the server and on loopback.
	// Zero means 111.
	PortmapPort uint16

	// Resolver resolves explicit server names. Nil means net.DefaultResolver.
	Resolver *net.Resolver

	// Passwd builds the credential update collaborator. Nil means the
	// built-in yppasswdd client.
	Passwd PasswdFactory

	// Metrics receives per-operation measurements. Nil disables collection.
	Metrics metrics.ClientMetrics

	// privilegedBelow overrides reservedPort in tests.
	privilegedBelow uint16
}

func (c *Config) applyDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = DefaultRetryTimeout
	}
	if c.BindTimeout <= 0 {
		c.BindTimeout = DefaultBindTimeout
	}
	if c.SendSize <= 0 {
		c.SendSize = DefaultSendSize
	}
	if c.RecvSize <= 0 {
		c.RecvSize = DefaultRecvSize
	}
	if c.YPBindMarkers == nil {
		c.YPBindMarkers = DefaultYPBindMarkers
	}
	if c.PortmapPort == 0 {
		c.PortmapPort = portmap.DefaultPort
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	if c.Passwd == nil {
		c.Passwd = &YPPasswdFactory{PortmapPort: c.PortmapPort, Timeout: c.CallTimeout, Resolver: c.Resolver}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopClientMetrics()
	}
	if c.privilegedBelow == 0 {
		c.privilegedBelow = reservedPort
	}
}

func (c *Config) udpConfig() rpc.UDPConfig {
	return rpc.UDPConfig{
		SendSize:     c.SendSize,
		RecvSize:     c.RecvSize,
		RetryTimeout: c.RetryTimeout,
		CallTimeout:  c.CallTimeout,
	}
}
