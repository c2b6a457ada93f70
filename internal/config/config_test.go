package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.Sampling.Capacity)
	assert.Equal(t, 0.01, cfg.Leak.Alpha)
	assert.Equal(t, 10000, cfg.Leak.Trials)
	assert.Equal(t, 60*time.Second, cfg.Profile.Interval)
	assert.Equal(t, time.Hour, cfg.Profile.Retention)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Sampling.Capacity = 0 }},
		{"negative capacity", func(c *Config) { c.Sampling.Capacity = -8 }},
		{"zero alpha", func(c *Config) { c.Leak.Alpha = 0 }},
		{"alpha of one", func(c *Config) { c.Leak.Alpha = 1 }},
		{"negative alpha", func(c *Config) { c.Leak.Alpha = -0.05 }},
		{"zero trials", func(c *Config) { c.Leak.Trials = 0 }},
		{"zero interval", func(c *Config) { c.Profile.Interval = 0 }},
		{"negative retention", func(c *Config) { c.Profile.Retention = -time.Minute }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftwatch.yaml")
	content := `
sampling:
  capacity: 128
  seed: 42
leak:
  alpha: 0.05
profile:
  interval: 10s
storage:
  path: /tmp/driftwatch.db
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Sampling.Capacity)
	assert.Equal(t, uint64(42), cfg.Sampling.Seed)
	assert.Equal(t, 0.05, cfg.Leak.Alpha)
	assert.Equal(t, 10*time.Second, cfg.Profile.Interval)
	assert.Equal(t, "/tmp/driftwatch.db", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched knobs keep their defaults.
	assert.Equal(t, 10000, cfg.Leak.Trials)
	assert.Equal(t, time.Hour, cfg.Profile.Retention)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leak:\n  alpha: 2.0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leak.alpha")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "malformed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
