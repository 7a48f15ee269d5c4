package analyzer

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"fabriclens/internal/loader"
)

// Registry holds the analyzers of a run in registration order
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
	order     []string
	logger    *slog.Logger
}

// NewRegistry creates an empty analyzer registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		analyzers: make(map[string]Analyzer),
		logger:    logger,
	}
}

// NewDefaultRegistry registers the built-in analyzers in their fixed order,
// skipping the names listed in settings.Disabled. A nil reference leaves
// the compliance analyzer with only its fleet consistency check.
func NewDefaultRegistry(settings Settings, ref *loader.ComplianceReference, logger *slog.Logger) *Registry {
	settings.ApplyDefaults()
	r := NewRegistry(logger)

	builtins := []Analyzer{
		NewBER(settings.BER),
		NewPortErrors(settings.PortErrors),
		NewLinkStability(settings.Stability),
		NewCongestion(settings.Congestion),
		NewThermal(settings.Thermal),
		NewPower(settings.Power),
		NewCompliance(ref),
		NewIdentity(settings.Identity),
		NewTopologyDeviation(settings.Topology),
		NewBalance(settings.Balance),
		NewLatency(settings.Latency),
	}

	for _, a := range builtins {
		if slices.Contains(settings.Disabled, a.Name()) {
			r.logger.Info("analyzer disabled", "analyzer", a.Name())
			continue
		}
		// names are unique by construction
		_ = r.Register(a)
	}
	return r
}

// Register adds an analyzer to the registry
func (r *Registry) Register(a Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.analyzers[name]; exists {
		return fmt.Errorf("analyzer %s already registered", name)
	}

	r.analyzers[name] = a
	r.order = append(r.order, name)
	r.logger.Debug("registered analyzer", "analyzer", name, "tables", a.Tables())

	return nil
}

// Get returns an analyzer by name
func (r *Registry) Get(name string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[name]
	return a, ok
}

// Analyzers returns the registered analyzers in registration order
func (r *Registry) Analyzers() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Analyzer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.analyzers[name])
	}
	return out
}

// Names returns the registered analyzer names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered analyzers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ListAnalyzers returns information about registered analyzers
func (r *Registry) ListAnalyzers() []Info {
	var infos []Info
	for _, a := range r.Analyzers() {
		infos = append(infos, Info{Name: a.Name(), Tables: a.Tables()})
	}
	return infos
}

// Info provides read-only information about an analyzer
type Info struct {
	Name   string   `json:"name"`
	Tables []string `json:"tables"`
}
