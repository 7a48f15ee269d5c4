package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]struct {
		want    slog.Level
		wantErr bool
	}{
		"debug":   {want: slog.LevelDebug},
		"":        {want: slog.LevelInfo},
		"INFO":    {want: slog.LevelInfo},
		"warning": {want: slog.LevelWarn},
		"err":     {want: slog.LevelError},
		"loud":    {want: slog.LevelInfo, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseLevel(name)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewWriterText(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, Options{Level: "warn"})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("analyzer failed", "analyzer", "ber")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=warn")
	assert.Contains(t, out, "analyzer=ber")
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)

	log.Debug("run started", "run_id", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run started", rec["msg"])
	assert.Equal(t, "abc", rec["run_id"])
}

func TestNewWriterTint(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, Options{Format: "tint"})
	require.NoError(t, err)

	log.Info("listening", "addr", ":8080")
	assert.Contains(t, buf.String(), "listening")
	assert.Contains(t, buf.String(), ":8080")
}

func TestNewWriterRejectsUnknown(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")

	_, err = NewWriter(&bytes.Buffer{}, Options{Level: "loud"})
	assert.ErrorContains(t, err, "unknown log level")
}
