// Package config loads and validates the pipeline service configuration.
//
// DESIGN: All configuration comes from YAML files with ${VAR:-default}
// expansion. Only a handful of optional knobs have defaults; everything the
// server needs to listen and persist is required.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - pipeline.go:   Stage order and per-stage settings
//   - monitoring.go: Logging and telemetry settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`      // HTTP server settings
	Pipeline   PipelineConfig   `yaml:"pipeline"`    // Stage order and settings
	ImageFetch ImageFetchConfig `yaml:"image_fetch"` // Local image inlining
	Store      StoreConfig      `yaml:"store"`       // Run report store
	Monitoring MonitoringConfig `yaml:"monitoring"`  // Logging and telemetry
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`           // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Max time to write response
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // 0 = DefaultMaxBodyBytes
	RateLimit    int           `yaml:"rate_limit"`     // Requests/sec per client IP, 0 = unlimited
}

// DefaultMaxBodyBytes bounds request bodies when server.max_body_bytes is unset.
const DefaultMaxBodyBytes = 16 << 20

// ImageFetchConfig controls how local images are fetched and inlined.
type ImageFetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`     // Per-image fetch timeout
	MaxBytes   int64         `yaml:"max_bytes"`   // Max image size
	LocalHosts []string      `yaml:"local_hosts"` // Hosts treated as local besides 127.0.0.1
}

// StoreConfig contains run report store settings.
type StoreConfig struct {
	Type string        `yaml:"type"` // "memory" or "sqlite"
	TTL  time.Duration `yaml:"ttl"`  // Time-to-live for reports
	Path string        `yaml:"path"` // SQLite database path
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default}.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployments redirect telemetry without editing files.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv("CONTEXT_PIPELINE_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.TelemetryPath = envPath
		c.Monitoring.TelemetryEnabled = true
	}
	if level := os.Getenv("CONTEXT_PIPELINE_LOG_LEVEL"); level != "" {
		c.Monitoring.LogLevel = level
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.ImageFetch.MaxBytes < 0 {
		return fmt.Errorf("image_fetch.max_bytes must not be negative")
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	return c.Monitoring.Validate()
}

// Validate checks store settings.
func (s StoreConfig) Validate() error {
	switch s.Type {
	case "":
		return fmt.Errorf("store.type is required")
	case StoreMemory:
	case StoreSQLite:
		if s.Path == "" {
			return fmt.Errorf("store.path is required for sqlite store")
		}
	default:
		return fmt.Errorf("invalid store.type: %q (must be memory or sqlite)", s.Type)
	}
	if s.TTL == 0 {
		return fmt.Errorf("store.ttl is required")
	}
	return nil
}

// BodyLimit returns the effective request body limit.
func (s ServerConfig) BodyLimit() int64 {
	if s.MaxBodyBytes > 0 {
		return s.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}
