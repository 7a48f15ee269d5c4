// Package config loads fabriclens settings from YAML.
//
// Config file locations (priority order):
//  1. $FABRICLENS_CONFIG
//  2. ./fabriclens.yaml
//  3. $XDG_CONFIG_HOME/fabriclens/config.yaml
//  4. ~/.config/fabriclens/config.yaml
//  5. /etc/fabriclens/config.yaml
//
// Every key is optional. Analyzer thresholds left out of the file keep
// their built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"fabriclens/internal/analyzer"
)

const (
	// DefaultListen is the serve mode listen address
	DefaultListen = ":8080"
	// DefaultLogLevel is used when log.level is empty
	DefaultLogLevel = "info"
	// DefaultLogFormat picks tint on terminals and text elsewhere
	DefaultLogFormat = "auto"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "tint", "text", "json"}
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path. A relative compliance
// reference is resolved against the directory of the config file.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}

	if ref := cfg.Compliance.Reference; ref != "" && !filepath.IsAbs(ref) {
		cfg.Compliance.Reference = filepath.Join(filepath.Dir(path), ref)
	}

	return cfg, path, nil
}

// Parse decodes YAML config on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the settings used when no file is found
func DefaultConfig() *Config {
	return &Config{
		Version:   1,
		Log:       LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Analyzers: analyzer.DefaultSettings(),
		Server:    ServerConfig{Listen: DefaultListen},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	c.Analyzers.ApplyDefaults()
}

// Validate rejects settings that have no sensible fallback
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("invalid log.level %q (want one of %s)", c.Log.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return fmt.Errorf("invalid log.format %q (want one of %s)", c.Log.Format, strings.Join(logFormats, ", "))
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("invalid analysis.workers %d", c.Analysis.Workers)
	}
	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("invalid analysis.timeout %s", c.Analysis.Timeout.Duration())
	}
	return nil
}

// Summary returns a one-line description of the effective settings
func (c *Config) Summary() string {
	workers := "auto"
	if c.Analysis.Workers > 0 {
		workers = fmt.Sprint(c.Analysis.Workers)
	}
	timeout := "none"
	if c.Analysis.Timeout > 0 {
		timeout = c.Analysis.Timeout.Duration().String()
	}
	reference := c.Compliance.Reference
	if reference == "" {
		reference = "none"
	}
	return fmt.Sprintf("workers: %s, timeout: %s, compliance reference: %s, disabled analyzers: %d",
		workers, timeout, reference, len(c.Analyzers.Disabled))
}
