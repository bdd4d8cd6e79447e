package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseConfigDefaults(t *testing.T) {
	cfg := NewBaseConfig("orders", "file")

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "file", cfg.Type)
	assert.Equal(t, 1000, cfg.Performance.BatchSize)
	assert.Equal(t, 10000, cfg.Performance.BufferSize)
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
	assert.True(t, cfg.Reliability.CircuitBreaker)
	assert.False(t, cfg.Advanced.EnableCompression)
	assert.NotNil(t, cfg.Connection.Properties)

	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BaseConfig)
	}{
		{"missing name", func(c *BaseConfig) { c.Name = "" }},
		{"missing type", func(c *BaseConfig) { c.Type = "" }},
		{"zero batch size", func(c *BaseConfig) { c.Performance.BatchSize = 0 }},
		{"zero buffer size", func(c *BaseConfig) { c.Performance.BufferSize = 0 }},
		{"zero max concurrency", func(c *BaseConfig) { c.Performance.MaxConcurrency = 0 }},
		{"negative retries", func(c *BaseConfig) { c.Reliability.RetryAttempts = -1 }},
		{"negative rate limit", func(c *BaseConfig) { c.Reliability.RateLimitPerSec = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewBaseConfig("ok", "file")
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProperty(t *testing.T) {
	cfg := NewBaseConfig("n", "file")
	cfg.Connection.Properties["source_path"] = "/data"

	assert.Equal(t, "/data", cfg.Property("source_path"))
	assert.Equal(t, "", cfg.Property("missing"))

	var empty BaseConfig
	assert.Equal(t, "", empty.Property("anything"))
}

func TestHelpers(t *testing.T) {
	cfg := NewBaseConfig("n", "file")

	cfg.Performance.Workers = 0
	assert.Greater(t, cfg.Performance.GetWorkers(), 0)
	cfg.Performance.Workers = 7
	assert.Equal(t, 7, cfg.Performance.GetWorkers())

	assert.False(t, cfg.Reliability.IsRateLimited())
	cfg.Reliability.RateLimitPerSec = 100
	assert.True(t, cfg.Reliability.IsRateLimited())

	assert.False(t, cfg.Advanced.IsCompressionEnabled())
	cfg.Advanced.EnableCompression = true
	assert.True(t, cfg.Advanced.IsCompressionEnabled())
	cfg.Advanced.CompressionAlgorithm = ""
	assert.False(t, cfg.Advanced.IsCompressionEnabled())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
name: orders
type: file
performance:
  batch_size: 500
  flush_interval: 5s
connection:
  properties:
    source_path: /data/orders
    format: csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := NewBaseConfig("", "")
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, 500, cfg.Performance.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Performance.FlushInterval)
	assert.Equal(t, "/data/orders", cfg.Property("source_path"))
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("FERRY_TEST_PATH", "/from/env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
name: orders
type: file
connection:
  properties:
    source_path: ${FERRY_TEST_PATH}
    other: ${FERRY_TEST_UNSET}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := NewBaseConfig("", "")
	require.NoError(t, Load(path, cfg))
	assert.Equal(t, "/from/env", cfg.Property("source_path"))
	assert.Equal(t, "", cfg.Property("other"))
}

func TestLoadErrors(t *testing.T) {
	cfg := NewBaseConfig("", "")
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), cfg))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [broken"), 0o644))
	assert.Error(t, Load(path, cfg))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	cfg := NewBaseConfig("orders", "file")
	cfg.Connection.Properties["path"] = "/out/data.csv"
	require.NoError(t, Save(path, cfg))

	loaded := &BaseConfig{}
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.Property("path"), loaded.Property("path"))
}
