// Package config loads the Numify service configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind           = "127.0.0.1:8080"
	DefaultDatabasePath   = "numify.db"
	DefaultLogDir         = "logs"
	DefaultPollInterval   = 2 * time.Second
	DefaultStreamInterval = time.Second
	DefaultRequestTimeout = 15 * time.Second
)

// Config represents the complete Numify configuration
type Config struct {
	Bind     string         `yaml:"bind"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Stream   StreamConfig   `yaml:"stream"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig locates the durable store
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig configures token verification. The secret may also come from
// NUMIFY_JWT_SECRET, which takes precedence over the file.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// ScraperConfig tunes the polling workers
type ScraperConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

// StreamConfig tunes the SSE cursor dispatcher
type StreamConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoggingConfig controls the structured event log
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DefaultConfig returns a config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Bind:     DefaultBind,
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Scraper: ScraperConfig{
			PollInterval:   DefaultPollInterval,
			RequestTimeout: DefaultRequestTimeout,
		},
		Stream:  StreamConfig{PollInterval: DefaultStreamInterval},
		Logging: LoggingConfig{Dir: DefaultLogDir, Level: "info"},
	}
}

// Load builds the config from defaults, an optional YAML file, and
// environment overrides, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NUMIFY_BIND")); v != "" {
		cfg.Bind = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMIFY_DB_PATH")); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NUMIFY_JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMIFY_LOG_DIR")); v != "" {
		cfg.Logging.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("NUMIFY_POLL_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scraper.PollInterval = d
		}
	}
}

// Validate checks the config for unusable values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bind) == "" {
		return fmt.Errorf("bind address cannot be empty")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set auth.secret or NUMIFY_JWT_SECRET)")
	}
	if c.Scraper.PollInterval <= 0 {
		return fmt.Errorf("scraper poll_interval must be positive")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream poll_interval must be positive")
	}
	return nil
}
