package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ltyfantasy/goapn/config"
	"github.com/ltyfantasy/goapn/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()
	assert.Equal(t, core.DefaultCacheDBPath, cfg.CacheDBPath)
	assert.Equal(t, core.DefaultPromiseDBPath, cfg.PromiseDBPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv(core.EnvCacheDBPath, "/tmp/custom-cache.db")
	t.Setenv(core.EnvLogLevel, "debug")

	cfg := config.Load()
	assert.Equal(t, "/tmp/custom-cache.db", cfg.CacheDBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadOptionsOverrideEnv(t *testing.T) {
	t.Setenv(core.EnvCacheDBPath, "/tmp/from-env.db")

	cfg := config.Load(config.WithCacheDBPath("/tmp/from-option.db"))
	assert.Equal(t, "/tmp/from-option.db", cfg.CacheDBPath)
}

func TestLoadBusinessRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "businesses.yaml")
	contents := `
businesses:
  - identifier: orders
    baseUrl: https://orders.example.com
    connectTimeoutMs: 1000
    sendTimeoutMs: 2000
    recvTimeoutMs: 3000
  - identifier: billing
    baseUrl: https://billing.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	f, err := config.LoadBusinessRegistryFile(path)
	require.NoError(t, err)
	require.Len(t, f.Businesses, 2)
	assert.Equal(t, "orders", f.Businesses[0].Identifier)
	assert.Equal(t, 1000, f.Businesses[0].ConnectTimeoutMs)
	assert.Equal(t, "billing", f.Businesses[1].Identifier)
}

func TestLoadBusinessRegistryFileMissingPath(t *testing.T) {
	_, err := config.LoadBusinessRegistryFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
