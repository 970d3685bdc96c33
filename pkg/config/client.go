package config

import "github.com/marmos91/goyp/pkg/yp"

// ToYP converts the client section into a yp.Config. Metrics are left for
// the caller to set.
func (c *ClientConfig) ToYP() yp.Config {
	return yp.Config{
		CallTimeout:   c.CallTimeout,
		RetryTimeout:  c.RetryTimeout,
		BindTimeout:   c.BindTimeout,
		SendSize:      c.SendSize,
		RecvSize:      c.RecvSize,
		YPBindMarkers: append([]string(nil), c.YPBindMarkers...),
		PortmapPort:   c.PortmapPort,
	}
}
