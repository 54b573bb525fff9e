// ABOUTME: Configuration loading and parsing for coven-scope.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-scope configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listen address for ingest and the read API.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// IngestConfig tunes the payload ingest path.
type IngestConfig struct {
	// AllowWebSocket enables the /ingest/ws frame stream endpoint.
	AllowWebSocket bool `yaml:"allow_websocket"`

	// DedupeMaxEntries caps the seen-frame cache.
	DedupeMaxEntries int `yaml:"dedupe_max_entries"`

	DedupeTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists:
// loopback HTTP, WebSocket ingest on, five-minute frame dedupe.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "localhost:7865"},
		Ingest: IngestConfig{
			AllowWebSocket:   true,
			DedupeTTL:        5 * time.Minute,
			DedupeMaxEntries: 100_000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values. Fields left unset
// fall back to the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Ingest.DedupeMaxEntries <= 0 {
		return fmt.Errorf("ingest.dedupe_max_entries must be positive")
	}
	if c.Ingest.DedupeTTL <= 0 {
		return fmt.Errorf("ingest.dedupe_ttl must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Ingest.DedupeTTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Ingest.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Ingest.DedupeTTLRaw, err)
		}
		cfg.Ingest.DedupeTTL = ttl
	}
	return nil
}
