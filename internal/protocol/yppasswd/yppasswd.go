// Package yppasswd defines the wire types of the password update daemon
// (program 100009, version 1) and a small client for it.
package yppasswd

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
)

// Version is the yppasswd protocol version.
const Version = 1

// ProcUpdate replaces a passwd entry on the master server.
const ProcUpdate = 1

// XPasswd is a passwd entry on the wire.
//
//	struct x_passwd {
//	    string pw_name<>;
//	    string pw_passwd<>;
//	    int    pw_uid;
//	    int    pw_gid;
//	    string pw_gecos<>;
//	    string pw_dir<>;
//	    string pw_shell<>;
//	};
type XPasswd struct {
	Name   string
	Passwd string
	UID    int32
	GID    int32
	Gecos  string
	Dir    string
	Shell  string
}

// UpdateArgs is the argument of UPDATE. OldPass is sent in clear text; the
// server checks it against the stored hash.
type UpdateArgs struct {
	OldPass string
	NewPw   XPasswd
}

// Client talks to a yppasswdd over UDP.
type Client struct {
	transport *rpc.UDPClient
}

// Dial connects to yppasswdd at addr. A zero port is resolved through the
// portmapper listening on pmapPort of the same host.
func Dial(ctx context.Context, addr netip.AddrPort, pmapPort uint16, timeout time.Duration) (*Client, error) {
	if addr.Port() == 0 {
		port, err := portmap.GetPort(ctx, addr.Addr(), pmapPort, rpc.ProgramYPPasswd, Version, rpc.ProtoUDP, timeout)
		if err != nil {
			return nil, err
		}
		addr = netip.AddrPortFrom(addr.Addr(), port)
	}

	t, err := rpc.DialUDP(ctx, addr, rpc.ProgramYPPasswd, Version, rpc.UDPConfig{CallTimeout: timeout})
	if err != nil {
		return nil, err
	}
	return &Client{transport: t}, nil
}

// Update submits the new entry. A non-zero daemon result is returned as an
// error.
func (c *Client) Update(ctx context.Context, args *UpdateArgs) error {
	var status int32
	if err := c.transport.Call(ctx, ProcUpdate, args, &status); err != nil {
		return fmt.Errorf("yppasswd update: %w", err)
	}
	if status != 0 {
		return fmt.Errorf("yppasswd update rejected (status %d)", status)
	}
	return nil
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.transport.Close()
}
