// Package config provides configuration loading and validation for
// driftwatch.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SamplingConfig controls the per-site reservoirs.
type SamplingConfig struct {
	// Capacity is the maximum number of raw values retained per site.
	Capacity int `yaml:"capacity"`
	// Seed seeds every random source; a fixed seed makes sampling
	// decisions reproducible. 0 means derive a seed from the clock.
	Seed uint64 `yaml:"seed"`
}

// LeakConfig controls the leak candidate detector.
type LeakConfig struct {
	// Alpha is the significance level for the concentration test.
	Alpha float64 `yaml:"alpha"`
	// Trials is the Monte-Carlo trial count per p-value estimate.
	Trials int `yaml:"trials"`
}

// ProfileConfig controls the continuous collection loop.
type ProfileConfig struct {
	// Interval between heap snapshots.
	Interval time.Duration `yaml:"interval"`
	// Retention bounds how long persisted aggregates are kept.
	Retention time.Duration `yaml:"retention"`
}

// StorageConfig controls aggregate persistence.
type StorageConfig struct {
	// Path is the DuckDB database file; empty disables persistence.
	Path string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the root driftwatch configuration.
type Config struct {
	Sampling SamplingConfig `yaml:"sampling"`
	Leak     LeakConfig     `yaml:"leak"`
	Profile  ProfileConfig  `yaml:"profile"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Sampling: SamplingConfig{
			Capacity: 64,
		},
		Leak: LeakConfig{
			Alpha:  0.01,
			Trials: 10000,
		},
		Profile: ProfileConfig{
			Interval:  60 * time.Second,
			Retention: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects invalid configuration outright. Out-of-range values are
// errors, never clamped, so a misconfigured profiler fails at startup rather
// than sampling with silently adjusted parameters.
func (c Config) Validate() error {
	if c.Sampling.Capacity <= 0 {
		return fmt.Errorf("sampling.capacity must be positive, got %d", c.Sampling.Capacity)
	}
	if c.Leak.Alpha <= 0 || c.Leak.Alpha >= 1 {
		return fmt.Errorf("leak.alpha must be in (0, 1), got %g", c.Leak.Alpha)
	}
	if c.Leak.Trials <= 0 {
		return fmt.Errorf("leak.trials must be positive, got %d", c.Leak.Trials)
	}
	if c.Profile.Interval <= 0 {
		return fmt.Errorf("profile.interval must be positive, got %s", c.Profile.Interval)
	}
	if c.Profile.Retention <= 0 {
		return fmt.Errorf("profile.retention must be positive, got %s", c.Profile.Retention)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
