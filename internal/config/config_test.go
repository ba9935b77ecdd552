package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_PORT", "STORE_BACKEND", "AUTO_MIGRATE", "INFERENCE_MODEL_VERSION",
		"EXPECTED_EVIDENCE_UNIT", "RESOLVER_TIMEOUT", "CACHE_LOCK_TTL", "CACHE_SWEEP_INTERVAL",
		"INVALIDATION_CHANNEL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "postgres", StoreBackend())
	assert.False(t, AutoMigrate())
	assert.Equal(t, "v1", InferenceModelVersion())
	assert.InDelta(t, 2.43, ExpectedEvidenceUnit(), 1e-9)
	assert.Equal(t, 5*time.Second, ResolverTimeout())
	assert.Equal(t, 30*time.Second, CacheLockTTL())
	assert.Equal(t, time.Hour, CacheSweepInterval())
	assert.Equal(t, "relation_changed", InvalidationChannel())
	assert.Equal(t, 100.0, RateLimitRPS())
	assert.Equal(t, 20, RateLimitBurst())
	assert.Equal(t, "info", LogLevel())
}

func TestOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("EXPECTED_EVIDENCE_UNIT", "1.5")
	t.Setenv("RESOLVER_TIMEOUT", "250ms")
	t.Setenv("CACHE_SWEEP_INTERVAL", "-1s")

	assert.Equal(t, ":9090", ServerAddr())
	assert.Equal(t, "memory", StoreBackend())
	assert.True(t, AutoMigrate())
	assert.Equal(t, 1.5, ExpectedEvidenceUnit())
	assert.Equal(t, 250*time.Millisecond, ResolverTimeout())
	assert.Equal(t, time.Hour, CacheSweepInterval(), "non-positive durations fall back")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("INFERENCE_MODEL_VERSION=v7\n"), 0o600))

	t.Setenv("MEDGRAPH_ENV", envFile)
	t.Setenv("INFERENCE_MODEL_VERSION", "")
	require.NoError(t, os.Unsetenv("INFERENCE_MODEL_VERSION"))

	require.NoError(t, Load())
	assert.Equal(t, "v7", InferenceModelVersion())
	t.Cleanup(func() { _ = os.Unsetenv("INFERENCE_MODEL_VERSION") })
}
