package service

import (
	"log/slog"
	"sync"

	"fabriclens/internal/analyzer"
	"fabriclens/internal/loader"
)

// ReferenceEvent is the payload of reference_reloaded events
type ReferenceEvent struct {
	Path  string `json:"path"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

// BuildRegistry creates the default registry for settings and the compliance
// reference at path. An empty path or an unusable reference builds the
// registry with the reference checks disabled; the *loader.ConfigError is
// returned alongside so the caller can report it.
func BuildRegistry(settings analyzer.Settings, path string, logger *slog.Logger) (*analyzer.Registry, error) {
	if path == "" {
		return analyzer.NewDefaultRegistry(settings, nil, logger), nil
	}
	ref, err := loader.LoadComplianceReference(path)
	if err != nil {
		return analyzer.NewDefaultRegistry(settings, nil, logger), err
	}
	return analyzer.NewDefaultRegistry(settings, ref, logger), nil
}

// ReferenceReloader rebuilds the service registry when the compliance
// reference changes on disk
type ReferenceReloader struct {
	mu       sync.Mutex
	svc      *AnalysisService
	settings analyzer.Settings
	path     string
	logger   *slog.Logger
}

// NewReferenceReloader creates a reloader for the reference at path
func NewReferenceReloader(svc *AnalysisService, settings analyzer.Settings, path string, logger *slog.Logger) *ReferenceReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceReloader{
		svc:      svc,
		settings: settings,
		path:     path,
		logger:   logger.With("component", "reference", "path", path),
	}
}

// Path returns the watched reference path
func (r *ReferenceReloader) Path() string {
	return r.path
}

// Reload parses the reference and swaps the registry. A reference that no
// longer parses keeps the previous registry in place.
func (r *ReferenceReloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, err := loader.LoadComplianceReference(r.path)
	if err != nil {
		r.logger.Warn("compliance reference not reloaded", "error", err)
		r.svc.eventBus.Publish(Event{
			Type:    EventReferenceReloaded,
			Payload: ReferenceEvent{Path: r.path, Error: err.Error()},
		})
		return err
	}

	r.svc.SetRegistry(analyzer.NewDefaultRegistry(r.settings, ref, r.logger))
	r.logger.Info("compliance reference reloaded", "rules", len(ref.PSIDs()))
	r.svc.eventBus.Publish(Event{
		Type:    EventReferenceReloaded,
		Payload: ReferenceEvent{Path: r.path, Rules: len(ref.PSIDs())},
	})
	return nil
}
