package config

import (
	"strings"
	"time"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/pkg/yp"
)

// Default listen addresses. ypbind must stay below 1024: clients do not
// trust a binder registered on an unprivileged port.
const (
	defaultPortmapListen  = "0.0.0.0:111"
	defaultYPServListen   = "0.0.0.0:834"
	defaultYPBindListen   = "127.0.0.1:835"
	defaultYPPasswdListen = "0.0.0.0:836"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", nil) are replaced with defaults; explicit values are
// preserved. Booleans are left alone.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyClientDefaults(&cfg.Client)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = yp.DefaultCallTimeout
	}
	if cfg.RetryTimeout == 0 {
		cfg.RetryTimeout = yp.DefaultRetryTimeout
	}
	if cfg.BindTimeout == 0 {
		cfg.BindTimeout = yp.DefaultBindTimeout
	}
	if cfg.SendSize == 0 {
		cfg.SendSize = yp.DefaultSendSize
	}
	if cfg.RecvSize == 0 {
		cfg.RecvSize = yp.DefaultRecvSize
	}
	if cfg.YPBindMarkers == nil {
		cfg.YPBindMarkers = append([]string(nil), yp.DefaultYPBindMarkers...)
	}
	if cfg.PortmapPort == 0 {
		cfg.PortmapPort = portmap.DefaultPort
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Domain == "" {
		cfg.Domain = "localdomain"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Badger.DBPath == "" {
		cfg.Store.Badger.DBPath = "/var/lib/goyp/maps"
	}
	if cfg.Maps.Files == nil {
		cfg.Maps.Files = map[string]string{}
	}

	applyResponderDefaults(&cfg.Portmap, defaultPortmapListen)
	applyResponderDefaults(&cfg.YPServ.ResponderConfig, defaultYPServListen)
	applyResponderDefaults(&cfg.YPBind.ResponderConfig, defaultYPBindListen)
	applyResponderDefaults(&cfg.YPPasswd.ResponderConfig, defaultYPPasswdListen)

	if cfg.YPBind.PIDFile == "" {
		cfg.YPBind.PIDFile = yp.DefaultYPBindMarkers[0]
	}
	if cfg.YPBind.Bindings == nil {
		cfg.YPBind.Bindings = map[string]string{}
	}
}

func applyResponderDefaults(cfg *ResponderConfig, listen string) {
	if cfg.Listen == "" {
		cfg.Listen = listen
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.AllowedNetworks == nil {
		cfg.AllowedNetworks = []string{}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":9100"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Every responder is enabled; metrics are off.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Portmap.Enabled = true
	cfg.Server.YPServ.Enabled = true
	cfg.Server.YPBind.Enabled = true
	cfg.Server.YPPasswd.Enabled = true

	ApplyDefaults(cfg)
	return cfg
}
