package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.TokenCacheTTLSeconds)
	assert.Equal(t, 5000, cfg.TokenCacheMaxEntries)
	assert.Equal(t, 200, cfg.HotStoreMaxConnections)
	assert.Equal(t, 30, cfg.DurablePoolSize)
	assert.Equal(t, 70, cfg.DurablePoolOverflow)
	assert.False(t, cfg.ProxyMode)
	assert.False(t, cfg.Debug)

	assert.Equal(t, 5*time.Second, cfg.TokenCacheTTL())
	assert.Equal(t, 5*time.Second, cfg.BatchInterval())
	assert.Equal(t, 10*time.Second, cfg.MonitorInterval())
	assert.Equal(t, time.Hour, cfg.CacheTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("REDIS_URL", "redis://cache.internal:6380/2")
	t.Setenv("BATCH_INTERVAL_SECONDS", "1")
	t.Setenv("PROXY_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, time.Second, cfg.BatchInterval())
	assert.True(t, cfg.ProxyMode)
}

func TestLoadRequiresSecret(t *testing.T) {
	// t.Setenv registers the restore; the unset makes the variable
	// genuinely absent rather than empty.
	t.Setenv("SECRET_KEY", "")
	require.NoError(t, os.Unsetenv("SECRET_KEY"))

	_, err := Load()
	assert.Error(t, err)
}
