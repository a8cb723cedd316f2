// Package config loads and validates the stacks.yml configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/stacks/internal/timespec"
)

// Config represents the top-level stacks.yml configuration.
type Config struct {
	Version    string            `yaml:"version"`
	Listen     string            `yaml:"listen,omitempty"` // default ":8080"
	Database   DatabaseConfig    `yaml:"database"`
	Redis      *RedisConfig      `yaml:"redis,omitempty"`
	Simulation *SimulationConfig `yaml:"simulation,omitempty"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig enables mirroring simulation events to Redis Pub/Sub.
type RedisConfig struct {
	URL      string `yaml:"url"`      // e.g. redis://localhost:6379/0
	Instance string `yaml:"instance"` // channel namespace, default "default"
}

// SimulationConfig tunes simulation pacing.
type SimulationConfig struct {
	PauseScale    float64           `yaml:"pause_scale,omitempty"`    // multiplier on scripted pauses, default 1.0
	ContinuousFor timespec.Duration `yaml:"continuous_for,omitempty"` // length of a continuous run, default 5m
	CallTimeout   timespec.Duration `yaml:"call_timeout,omitempty"`   // per tool/policy call, default 30s
	MaxIterations int               `yaml:"max_iterations,omitempty"` // actor decision loop cap, default 3
}

// Validate performs strict validation on the configuration and fills in
// defaults for optional fields.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Listen == "" {
		c.Listen = ":8080"
	}

	if c.Redis != nil {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when redis is configured")
		}
		if c.Redis.Instance == "" {
			c.Redis.Instance = "default"
		}
	}

	if c.Simulation != nil {
		if c.Simulation.PauseScale < 0 {
			return fmt.Errorf("simulation.pause_scale must not be negative")
		}
		if c.Simulation.ContinuousFor < 0 {
			return fmt.Errorf("simulation.continuous_for must not be negative")
		}
		if c.Simulation.MaxIterations < 0 {
			return fmt.Errorf("simulation.max_iterations must not be negative")
		}
	}

	return nil
}

// Load reads and validates a stacks.yml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no stacks.yml is present.
func Default() *Config {
	return &Config{
		Version:  "1.0",
		Listen:   ":8080",
		Database: DatabaseConfig{Path: "stacks.db"},
	}
}
