// Package logger builds the slog handler used by the CLI and server.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Formats
const (
	FormatAuto = "auto"
	FormatTint = "tint"
	FormatText = "text"
	FormatJSON = "json"
)

// Options selects the handler
type Options struct {
	Level  string
	Format string
}

// ParseLevel maps a level name onto a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "err", "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New returns a logger writing to stderr
func New(opts Options) (*slog.Logger, error) {
	return NewWriter(os.Stderr, opts)
}

// NewWriter returns a logger writing to w. The auto format uses tint when
// w is a terminal and plain text otherwise.
func NewWriter(w io.Writer, opts Options) (*slog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(opts.Format)
	if format == "" || format == FormatAuto {
		format = FormatText
		if isTerminal(w) {
			format = FormatTint
		}
	}

	var h slog.Handler
	switch format {
	case FormatTint:
		h = newTerminalHandler(w, lvl)
	case FormatText:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: lowerLevel})
	case FormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(h), nil
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTerminalHandler(w io.Writer, lvl slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		NoColor:    runtime.GOOS == "windows",
		AddSource:  lvl <= slog.LevelDebug,
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})
}

func lowerLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(a.Key, strings.ToLower(lvl.String()))
		}
	}
	return a
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
