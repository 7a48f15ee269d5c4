package config

import (
	"time"

	"fabriclens/internal/analyzer"
)

// Config is the root configuration structure
type Config struct {
	Version    int               `yaml:"version"`
	Log        LogConfig         `yaml:"log"`
	Analysis   AnalysisConfig    `yaml:"analysis"`
	Compliance ComplianceConfig  `yaml:"compliance"`
	Analyzers  analyzer.Settings `yaml:"analyzers"`
	Server     ServerConfig      `yaml:"server"`
	Export     ExportConfig      `yaml:"export"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, tint, text, json
}

// AnalysisConfig bounds a single analysis run
type AnalysisConfig struct {
	Workers int      `yaml:"workers"` // 0 = GOMAXPROCS
	Timeout Duration `yaml:"timeout"` // 0 = no limit
}

// ComplianceConfig points at the firmware compliance reference
type ComplianceConfig struct {
	Reference string `yaml:"reference,omitempty"`
	// Watch reloads the reference when the file changes (serve only)
	Watch bool `yaml:"watch"`
}

// ServerConfig holds HTTP settings for serve mode
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// ExportConfig holds result export targets
type ExportConfig struct {
	SQLite string `yaml:"sqlite,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
