package yp

// SetPrivilegedBelow lets tests accept a ypbind registered on an
// unprivileged port.
func (c *Config) SetPrivilegedBelow(port uint16) {
	c.privilegedBelow = port
}
