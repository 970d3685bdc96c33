package config

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/goyp/pkg/adapter"
	"github.com/marmos91/goyp/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Server.Portmap.Listen = "127.0.0.1:0"
	cfg.Server.YPServ.Listen = "127.0.0.1:0"
	cfg.Server.YPServ.Master = "localhost"
	cfg.Server.YPBind.Listen = "127.0.0.1:0"
	cfg.Server.YPBind.PIDFile = ""
	cfg.Server.YPPasswd.Listen = "127.0.0.1:0"
	return cfg
}

func stopAll(adapters []adapter.Adapter) {
	for _, a := range adapters {
		_ = a.Stop(context.Background())
	}
}

func TestCreateAdapters(t *testing.T) {
	t.Run("AllEnabled", func(t *testing.T) {
		adapters, err := CreateAdapters(loopbackConfig(), metrics.NewNoopServerMetrics())
		require.NoError(t, err)
		defer stopAll(adapters)

		var protocols []string
		for _, a := range adapters {
			protocols = append(protocols, a.Protocol())
			assert.NotZero(t, a.Port())
		}
		assert.Equal(t, []string{"portmap", "ypserv", "ypbind", "yppasswdd"}, protocols)
	})

	t.Run("OnlyYPServ", func(t *testing.T) {
		cfg := loopbackConfig()
		cfg.Server.Portmap.Enabled = false
		cfg.Server.YPBind.Enabled = false
		cfg.Server.YPPasswd.Enabled = false

		adapters, err := CreateAdapters(cfg, nil)
		require.NoError(t, err)
		defer stopAll(adapters)
		require.Len(t, adapters, 1)
		assert.Equal(t, "ypserv", adapters[0].Protocol())
	})

	t.Run("NoneEnabled", func(t *testing.T) {
		cfg := loopbackConfig()
		cfg.Server.Portmap.Enabled = false
		cfg.Server.YPServ.Enabled = false
		cfg.Server.YPBind.Enabled = false
		cfg.Server.YPPasswd.Enabled = false

		_, err := CreateAdapters(cfg, nil)
		assert.ErrorContains(t, err, "no responders")
	})

	t.Run("BadBinding", func(t *testing.T) {
		cfg := loopbackConfig()
		cfg.Server.YPBind.Bindings = map[string]string{"corp": "not-an-address"}

		_, err := CreateAdapters(cfg, nil)
		assert.ErrorContains(t, err, "ypbind")
	})
}

func TestInitializeMetrics(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		cfg := GetDefaultConfig()
		m := InitializeMetrics(cfg)
		assert.Nil(t, m.HTTP)
		assert.NotNil(t, m.Client)
		assert.NotNil(t, m.Server)
	})

	t.Run("Enabled", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = "127.0.0.1:0"

		m := InitializeMetrics(cfg)
		assert.NotNil(t, m.HTTP)
		assert.True(t, metrics.IsEnabled())
		m.Server.RecordRequest("ypserv", "MATCH", "YP_TRUE", 0)
		m.Client.RecordCall("match", 0, "Success")
	})
}

func TestResponderOptions(t *testing.T) {
	srv := &GetDefaultConfig().Server
	srv.ShutdownTimeout = 7 * time.Second
	r := &ResponderConfig{
		Enabled:         true,
		Listen:          "127.0.0.1:834",
		RateLimit:       50,
		RateBurst:       100,
		AllowedNetworks: []string{"10.0.0.0/8"},
		IdleTimeout:     time.Minute,
	}
	m := metrics.NewNoopServerMetrics()

	opts, err := options(srv, r, m)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:834", opts.Listen)
	assert.Equal(t, uint(50), opts.RateLimit)
	assert.Equal(t, uint(100), opts.RateBurst)
	assert.Equal(t, []string{"10.0.0.0/8"}, opts.AllowedNetworks)
	assert.Equal(t, time.Minute, opts.IdleTimeout)
	assert.Equal(t, 7*time.Second, opts.ShutdownTimeout)
	assert.Equal(t, m, opts.Metrics)
}
