package yp

import "golang.org/x/sys/unix"

// SessionLive reports whether the handle's socket is still bound the way it
// was when the handle was created: same address family (IPv4 or IPv6) and
// same local port.
//
// This is a best-effort staleness check. It cannot tell that the server has
// gone away, nor that a rebind happened while leaving the local endpoint
// unchanged; use Probe for a protocol-level freshness check.
func (c *Client) SessionLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bound == nil || c.bound.conn == nil {
		return false
	}

	family, port, err := localBinding(c.bound.conn)
	if err != nil {
		return false
	}
	if family != c.bound.family {
		return false
	}
	if family != unix.AF_INET && family != unix.AF_INET6 {
		return false
	}
	return port == c.bound.port
}
