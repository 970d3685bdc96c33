package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteDefault(t *testing.T) {
	t.Run("RoundTripsThroughLoad", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.yaml")
		require.NoError(t, WriteDefault(path, false))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		for _, section := range []string{"# goyp configuration file", "logging:", "client:", "server:", "ypserv:", "metrics:"} {
			assert.Contains(t, string(content), section)
		}

		var raw map[string]any
		require.NoError(t, yaml.Unmarshal(content, &raw))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, GetDefaultConfig(), cfg)
	})

	t.Run("RefusesToOverwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("custom: true\n"), 0o644))

		assert.ErrorContains(t, WriteDefault(path, false), "already exists")
		require.NoError(t, WriteDefault(path, true))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(content), "custom")
	})
}

func TestInitConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(false)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfigPath(), path)
	assert.True(t, ConfigExists())

	_, err = InitConfig(false)
	assert.Error(t, err)
}
