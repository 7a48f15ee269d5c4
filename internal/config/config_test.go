package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"fabriclens/internal/analyzer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Zero(t, cfg.Analysis.Workers)
	assert.Zero(t, cfg.Analysis.Timeout)
	assert.Equal(t, analyzer.DefaultSettings(), cfg.Analyzers)
	require.NoError(t, cfg.Validate())
}

func TestParseKeepsOmittedThresholds(t *testing.T) {
	cfg, err := Parse([]byte(`
analysis:
  workers: 4
  timeout: 90s
analyzers:
  disabled: [latency]
  ber:
    magnitude_threshold: 12
    min_error_events: 0
  thermal:
    temp_warning: 65
`))
	require.NoError(t, err)

	d := analyzer.DefaultSettings()
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 90*time.Second, cfg.Analysis.Timeout.Duration())
	assert.Equal(t, []string{"latency"}, cfg.Analyzers.Disabled)
	assert.Equal(t, 12, cfg.Analyzers.BER.MagnitudeThreshold)
	assert.Zero(t, cfg.Analyzers.BER.MinErrorEvents, "explicit zero is kept")
	assert.Equal(t, d.BER.Weight, cfg.Analyzers.BER.Weight)
	assert.Equal(t, 65.0, cfg.Analyzers.Thermal.TempWarning)
	assert.Equal(t, d.Thermal.TempCritical, cfg.Analyzers.Thermal.TempCritical)
	assert.Equal(t, d.Latency, cfg.Analyzers.Latency)
}

func TestParseRepairsThresholds(t *testing.T) {
	cfg, err := Parse([]byte(`
analyzers:
  congestion:
    warning_ratio: 0.2
    critical_ratio: 0.1
  balance:
    min_ports: 1
`))
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Analyzers.Congestion.CriticalRatio)
	assert.Equal(t, analyzer.DefaultSettings().Balance.MinPorts, cfg.Analyzers.Balance.MinPorts)
}

func TestParseInvalid(t *testing.T) {
	tests := map[string]struct {
		input string
		want  string
	}{
		"bad yaml":    {input: "log: [", want: "parse config"},
		"bad level":   {input: "log: {level: loud}", want: "invalid log.level"},
		"bad format":  {input: "log: {format: xml}", want: "invalid log.format"},
		"bad workers": {input: "analysis: {workers: -1}", want: "invalid analysis.workers"},
		"bad timeout": {input: "analysis: {timeout: soon}", want: "parse config"},
		"neg timeout": {input: "analysis: {timeout: -5s}", want: "invalid analysis.timeout"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestParseNormalizesLogSettings(t *testing.T) {
	cfg, err := Parse([]byte("log: {level: ' DEBUG ', format: JSON}"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromPathResolvesReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabriclens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compliance:\n  reference: refs/fw.yaml\n"), 0644))

	cfg, found, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
	assert.Equal(t, filepath.Join(dir, "refs", "fw.yaml"), cfg.Compliance.Reference)

	require.NoError(t, os.WriteFile(path, []byte("compliance:\n  reference: /srv/fw.yaml\n"), 0644))
	cfg, _, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/fw.yaml", cfg.Compliance.Reference)
}

func TestLoadFromPathMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, found, err := LoadFromPath(path)
	assert.ErrorContains(t, err, "read config")
	assert.Equal(t, path, found)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Analysis.Timeout = Duration(2 * time.Minute)
	cfg.Export.SQLite = "/var/lib/fabriclens/snapshot.db"
	cfg.Analyzers.BER.MagnitudeThreshold = 13
	require.NoError(t, cfg.Save(path))

	loaded, _, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, loaded.Analysis.Timeout.Duration())
	assert.Equal(t, cfg.Export.SQLite, loaded.Export.SQLite)
	assert.Equal(t, cfg.Analyzers, loaded.Analyzers)
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Setenv(EnvConfigPath, "")

	assert.Empty(t, FindConfigPath())

	xdg := filepath.Join(dir, "xdg", ConfigDirName, "config.yaml")
	require.NoError(t, EnsureConfigDir(xdg))
	require.NoError(t, os.WriteFile(xdg, []byte("version: 1\n"), 0644))
	assert.Equal(t, xdg, FindConfigPath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 1\n"), 0644))
	assert.Equal(t, filepath.Join(dir, ConfigFileName), FindConfigPath(), "working directory wins over XDG")

	explicit := filepath.Join(dir, "explicit.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("version: 1\n"), 0644))
	t.Setenv(EnvConfigPath, explicit)
	assert.Equal(t, explicit, FindConfigPath())

	t.Setenv(EnvConfigPath, filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, filepath.Join(dir, ConfigFileName), FindConfigPath(), "missing explicit path falls through")
}

func TestDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))
	assert.Equal(t, filepath.Join(dir, "xdg", ConfigDirName, "config.yaml"), DefaultConfigPath())

	t.Setenv("XDG_CONFIG_HOME", "")
	assert.Equal(t, filepath.Join(dir, "home", ".config", ConfigDirName, "config.yaml"), DefaultConfigPath())

	t.Setenv("HOME", "")
	assert.Equal(t, ConfigFileName, DefaultConfigPath())
}

func TestDuration(t *testing.T) {
	var holder struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 5m"), &holder))
	assert.Equal(t, 5*time.Minute, holder.Timeout.Duration())

	marshaled, err := holder.Timeout.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "5m0s", marshaled)

	require.NoError(t, yaml.Unmarshal([]byte("timeout: ''"), &holder))
	assert.Zero(t, holder.Timeout)
}

func TestSummary(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "workers: auto, timeout: none, compliance reference: none, disabled analyzers: 0", cfg.Summary())

	cfg.Analysis.Workers = 3
	cfg.Analysis.Timeout = Duration(time.Minute)
	assert.Contains(t, cfg.Summary(), "workers: 3, timeout: 1m0s")
}
