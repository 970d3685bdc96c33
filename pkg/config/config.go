package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete goyp configuration.
//
// It covers:
//   - Logging configuration
//   - Client settings used by the lookup commands
//   - The development responders started by "goyp serve"
//   - The Prometheus metrics endpoint
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (GOYP_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Client configures NIS lookups
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	// Server configures the responders started by "goyp serve"
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ClientConfig configures how the client finds and talks to a server.
type ClientConfig struct {
	// Domain is the NIS domain. Empty means the system domain name.
	Domain string `mapstructure:"domain" yaml:"domain" validate:"max=64"`

	// Server is a host or host:port. Empty means ask the local ypbind.
	Server string `mapstructure:"server" yaml:"server"`

	// CallTimeout bounds every call including retransmissions
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout" validate:"gt=0"`

	// RetryTimeout is the UDP retransmission interval
	RetryTimeout time.Duration `mapstructure:"retry_timeout" yaml:"retry_timeout" validate:"gt=0,ltefield=CallTimeout"`

	// BindTimeout bounds the ypbind and portmapper exchanges
	BindTimeout time.Duration `mapstructure:"bind_timeout" yaml:"bind_timeout" validate:"gt=0"`

	// SendSize and RecvSize size the UDP buffers
	SendSize int `mapstructure:"send_size" yaml:"send_size" validate:"gte=512,lte=65507"`
	RecvSize int `mapstructure:"recv_size" yaml:"recv_size" validate:"gte=512,lte=65507"`

	// YPBindMarkers are the files whose presence shows ypbind is running
	YPBindMarkers []string `mapstructure:"ypbind_markers" yaml:"ypbind_markers"`

	// PortmapPort is the portmapper port
	PortmapPort uint16 `mapstructure:"portmap_port" yaml:"portmap_port" validate:"gt=0"`
}

// ServerConfig configures the development responders.
type ServerConfig struct {
	// Domain is the NIS domain the map files are loaded into
	Domain string `mapstructure:"domain" yaml:"domain" validate:"required,max=64"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Store selects the map storage backend
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Maps lists the sources loaded into the store at startup
	Maps MapsConfig `mapstructure:"maps" yaml:"maps"`

	// Portmap is the port mapper
	Portmap ResponderConfig `mapstructure:"portmap" yaml:"portmap"`

	// YPServ is the map server
	YPServ YPServConfig `mapstructure:"ypserv" yaml:"ypserv"`

	// YPBind is the binding daemon
	YPBind YPBindConfig `mapstructure:"ypbind" yaml:"ypbind"`

	// YPPasswd is the password update daemon
	YPPasswd YPPasswdConfig `mapstructure:"yppasswdd" yaml:"yppasswdd"`
}

// StoreConfig specifies the map store.
type StoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger"`
}

// BadgerConfig configures the BadgerDB store.
type BadgerConfig struct {
	DBPath   string `mapstructure:"db_path" yaml:"db_path"`
	InMemory bool   `mapstructure:"in_memory" yaml:"in_memory"`
}

// MapsConfig lists map sources.
type MapsConfig struct {
	// Dir is a directory whose regular files are loaded as maps named after
	// the file.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Files maps a map name to the file it is loaded from.
	Files map[string]string `mapstructure:"files" yaml:"files"`

	// S3 loads every object under a bucket prefix as a map
	S3 S3MapsConfig `mapstructure:"s3" yaml:"s3"`
}

// S3MapsConfig locates map files in an S3-compatible object store. Loading
// is skipped when Bucket is empty.
type S3MapsConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Prefix selects the objects to load; the rest of each key is the map name
	Prefix string `mapstructure:"prefix" yaml:"prefix"`

	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the service URL, e.g. http://localhost:4566
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`

	// Static credentials; the AWS default chain is used when empty
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// ResponderConfig holds the settings every responder shares.
type ResponderConfig struct {
	// Enabled starts the responder
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the host:port bound for UDP and TCP
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required"`

	// RateLimit is the sustained requests per second admitted (0 = unlimited)
	RateLimit uint `mapstructure:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the burst size (0 = RateLimit)
	RateBurst uint `mapstructure:"rate_burst" yaml:"rate_burst"`

	// AllowedNetworks restricts callers to these CIDR prefixes
	AllowedNetworks []string `mapstructure:"allowed_networks" yaml:"allowed_networks" validate:"dive,cidr"`

	// IdleTimeout closes idle TCP connections
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
}

// YPServConfig configures the map server.
type YPServConfig struct {
	ResponderConfig `mapstructure:",squash" yaml:",inline"`

	// Master is the host name answered by MASTER. Empty means the local
	// host name.
	Master string `mapstructure:"master" yaml:"master"`
}

// YPBindConfig configures the binding daemon.
type YPBindConfig struct {
	ResponderConfig `mapstructure:",squash" yaml:",inline"`

	// PIDFile is written while the binder runs
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`

	// Bindings maps domains to ypserv addresses (ip:port). When empty and
	// ypserv is enabled, the served domain is bound to the local ypserv.
	Bindings map[string]string `mapstructure:"bindings" yaml:"bindings"`
}

// YPPasswdConfig configures the password update daemon.
type YPPasswdConfig struct {
	ResponderConfig `mapstructure:",squash" yaml:",inline"`

	AllowGecos bool `mapstructure:"allow_gecos" yaml:"allow_gecos"`
	AllowShell bool `mapstructure:"allow_shell" yaml:"allow_shell"`
	AllowEmpty bool `mapstructure:"allow_empty" yaml:"allow_empty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics while "goyp serve" runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the HTTP address
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GOYP_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location; a missing file there is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: GOYP_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GOYP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only affects keys viper knows about, so register every
	// key with its default.
	bindDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindDefaults registers the scalar defaults with viper.
func bindDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("client.domain", d.Client.Domain)
	v.SetDefault("client.server", d.Client.Server)
	v.SetDefault("client.call_timeout", d.Client.CallTimeout)
	v.SetDefault("client.retry_timeout", d.Client.RetryTimeout)
	v.SetDefault("client.bind_timeout", d.Client.BindTimeout)
	v.SetDefault("client.send_size", d.Client.SendSize)
	v.SetDefault("client.recv_size", d.Client.RecvSize)
	v.SetDefault("client.portmap_port", d.Client.PortmapPort)

	v.SetDefault("server.domain", d.Server.Domain)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.store.type", d.Server.Store.Type)
	v.SetDefault("server.store.badger.db_path", d.Server.Store.Badger.DBPath)
	v.SetDefault("server.maps.dir", d.Server.Maps.Dir)
	for _, key := range []string{"bucket", "prefix", "region", "endpoint", "access_key_id", "secret_access_key"} {
		v.SetDefault("server.maps.s3."+key, "")
	}

	for name, r := range map[string]ResponderConfig{
		"portmap":   d.Server.Portmap,
		"ypserv":    d.Server.YPServ.ResponderConfig,
		"ypbind":    d.Server.YPBind.ResponderConfig,
		"yppasswdd": d.Server.YPPasswd.ResponderConfig,
	} {
		v.SetDefault("server."+name+".enabled", r.Enabled)
		v.SetDefault("server."+name+".listen", r.Listen)
	}
	v.SetDefault("server.ypbind.pid_file", d.Server.YPBind.PIDFile)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "goyp")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "goyp")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
