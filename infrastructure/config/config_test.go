package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FallsBackToDefaultsWhenFilesAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Contains(t, cfg.Sources.Enabled, "ebay")
	assert.NotZero(t, cfg.Circuit.Sources["ebay"]["search"].FailureThreshold)
}

func TestLoad_ReadsCacheYAML(t *testing.T) {
	dir := t.TempDir()
	content := []byte("redis_addr: \"cache.internal:6380\"\nhot_ttl: \"15s\"\nwarm_ttl: \"2m\"\ncold_ttl: \"30m\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache.yaml"), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", cfg.Cache.RedisAddr)
}

func TestLoad_EnvOverridesSampleSource(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENABLE_SAMPLE_SOURCE", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.EnableSampleSource)
	assert.Contains(t, cfg.Sources.Enabled, "sample")
}

func TestConfig_BreakerConfigsParsesDurations(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	breakers, err := cfg.BreakerConfigs()
	require.NoError(t, err)
	assert.NotZero(t, breakers["marketcheck"]["search"].Timeout)
}

func TestValidate_RejectsZeroTTL(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{}, Sources: defaultSourcesConfig()}
	err := validate(cfg)
	assert.Error(t, err)
}
