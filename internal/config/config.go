// Package config loads host configuration from the environment.
//
// The core dispatcher takes no configuration; these settings only tell the
// CLI host where the domain files, journal and catalog live.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds host settings. Command-line flags override these values.
type Config struct {
	// DataDir holds one <domain>.json file per domain.
	DataDir string `env:"STATEKEEP_DATA_DIR" envDefault:"."`

	// Journal is the SQLite dispatch journal path. Empty disables journaling.
	Journal string `env:"STATEKEEP_JOURNAL"`

	// Catalog is a CUE file declaring extra domains. Empty means none.
	Catalog string `env:"STATEKEEP_CATALOG"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"STATEKEEP_LOG_LEVEL" envDefault:"info"`

	// Format is the CLI output format: text or json.
	Format string `env:"STATEKEEP_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the Config described by the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SlogLevel converts LogLevel to a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
