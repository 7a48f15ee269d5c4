package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"fabriclens/internal/aggregate"
	"fabriclens/internal/analyzer"
	"fabriclens/internal/dump"
	"fabriclens/internal/health"
	"fabriclens/internal/report"
	"fabriclens/internal/topology"
)

// Exporter persists a finished result
type Exporter interface {
	SaveResult(ctx context.Context, result *report.Result) error
}

// AnalysisService runs the registered analyzers over one dataset per call
type AnalysisService struct {
	registry atomic.Pointer[analyzer.Registry]
	eventBus *EventBus
	metrics  *Metrics
	exporter Exporter
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
}

// Option configures an AnalysisService
type Option func(*AnalysisService)

// WithEventBus publishes run progress on the bus
func WithEventBus(eb *EventBus) Option {
	return func(s *AnalysisService) { s.eventBus = eb }
}

// WithMetrics records run metrics
func WithMetrics(m *Metrics) Option {
	return func(s *AnalysisService) { s.metrics = m }
}

// WithExporter saves every successful result
func WithExporter(e Exporter) Option {
	return func(s *AnalysisService) { s.exporter = e }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *AnalysisService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers bounds the number of analyzers running at once.
// Zero or less means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *AnalysisService) { s.workers = n }
}

// WithTimeout bounds a whole run. Zero means no limit beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *AnalysisService) { s.timeout = d }
}

// NewAnalysisService creates an analysis service over a registry
func NewAnalysisService(reg *analyzer.Registry, opts ...Option) *AnalysisService {
	s := &AnalysisService{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if reg == nil {
		reg = analyzer.NewRegistry(s.logger)
	}
	s.registry.Store(reg)
	return s
}

// Registry returns the registry used by new runs
func (s *AnalysisService) Registry() *analyzer.Registry {
	return s.registry.Load()
}

// SetRegistry swaps the registry. Runs already in flight keep the one
// they started with.
func (s *AnalysisService) SetRegistry(reg *analyzer.Registry) {
	if reg != nil {
		s.registry.Store(reg)
	}
}

// EventBus returns the bus the service publishes on, if any
func (s *AnalysisService) EventBus() *EventBus {
	return s.eventBus
}

// Workers returns the effective worker pool size
func (s *AnalysisService) Workers() int {
	if s.workers > 0 {
		return s.workers
	}
	return runtime.GOMAXPROCS(0)
}

// Analyze runs every registered analyzer against the dataset at path.
//
// A dataset whose index cannot be parsed fails the run with a
// *dump.FormatError. Analyzer failures are recorded in the result and
// never abort the run. When ctx is canceled, partial output is discarded
// and ctx.Err() is returned.
//
// If an exporter is configured and saving fails, the result is returned
// together with the export error.
func (s *AnalysisService) Analyze(ctx context.Context, path string) (*report.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "dataset", path)
	start := time.Now()
	reg := s.registry.Load()

	s.eventBus.Publish(Event{
		Type:    EventAnalysisStarted,
		Payload: RunEvent{RunID: runID, Dataset: path},
	})
	logger.Info("analysis started", "analyzers", reg.Len(), "workers", s.Workers())

	result, err := s.analyze(ctx, runID, path, reg, logger)
	elapsed := time.Since(start)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeCanceled
		}
		s.metrics.observeRun(outcome, elapsed)
		s.eventBus.Publish(Event{
			Type:    EventAnalysisFailed,
			Payload: RunEvent{RunID: runID, Dataset: path, DurationMS: elapsed.Milliseconds(), Error: err.Error()},
		})
		logger.Error("analysis failed", "outcome", outcome, "error", err)
		return nil, err
	}

	s.metrics.observeRun(OutcomeSuccess, elapsed)
	for name, list := range result.Anomalies {
		s.metrics.countAnomalies(name, list)
	}
	s.eventBus.Publish(Event{
		Type: EventAnalysisCompleted,
		Payload: RunEvent{
			RunID:      runID,
			Dataset:    path,
			Anomalies:  len(result.Health.Records),
			DurationMS: elapsed.Milliseconds(),
			Score:      result.Health.Score,
			Grade:      string(result.Health.Grade),
		},
	})
	logger.Info("analysis completed",
		"score", result.Health.Score,
		"grade", result.Health.Grade,
		"critical", result.Summary.Critical,
		"warning", result.Summary.Warning,
		"info", result.Summary.Info,
		"unavailable_signals", len(result.Summary.UnavailableSignals),
		"duration", elapsed)

	if s.exporter != nil {
		if err := s.exporter.SaveResult(ctx, result); err != nil {
			logger.Warn("export failed", "error", err)
			return result, fmt.Errorf("export result: %w", err)
		}
	}
	return result, nil
}

func (s *AnalysisService) analyze(ctx context.Context, runID, path string, reg *analyzer.Registry, logger *slog.Logger) (*report.Result, error) {
	// the dataset and its table cache live for this run only
	ds, err := dump.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer ds.Close()

	topo := topology.Resolve(ctx, ds, logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs := s.runAnalyzers(ctx, runID, path, reg, ds, topo, logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := aggregate.New()
	for _, out := range outputs {
		agg.Add(out.Anomalies...)
	}
	score := health.Compute(agg.Table(), health.EntityCounts{
		Nodes: topo.NodeCount(),
		Ports: topo.PortCount(),
		Links: topo.LinkCount(),
	})

	logger.Debug("tables materialized", "parses", ds.Cache().Parses())
	return report.Build(path, topo, outputs, score), nil
}

// runAnalyzers fans the analyzers out over a bounded pool. Outputs are
// kept in registry order regardless of completion order.
func (s *AnalysisService) runAnalyzers(ctx context.Context, runID, path string, reg *analyzer.Registry, src dump.TableSource, topo *topology.Topology, logger *slog.Logger) []report.Output {
	analyzers := reg.Analyzers()
	outputs := make([]report.Output, len(analyzers))

	p := pool.New().WithMaxGoroutines(s.Workers()).WithContext(ctx)
	for i, a := range analyzers {
		p.Go(func(ctx context.Context) error {
			outputs[i] = s.runOne(ctx, runID, path, a, src, topo, logger)
			return nil
		})
	}
	_ = p.Wait()

	return outputs
}

func (s *AnalysisService) runOne(ctx context.Context, runID, path string, a analyzer.Analyzer, src dump.TableSource, topo *topology.Topology, logger *slog.Logger) (out report.Output) {
	name := a.Name()
	out.Analyzer = name
	in := analyzer.NewInput(src, topo)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Anomalies = nil
			out.Err = fmt.Errorf("analyzer %s panicked: %v", name, r)
		}
		out.Diagnostics = in.Diagnostics()
		elapsed := time.Since(start)
		s.metrics.observeAnalyzer(name, elapsed)

		ev := RunEvent{
			RunID:      runID,
			Dataset:    path,
			Analyzer:   name,
			Anomalies:  len(out.Anomalies),
			DurationMS: elapsed.Milliseconds(),
		}
		switch {
		case out.Err != nil && ctx.Err() != nil:
			// the run is being discarded
			return
		case out.Err != nil:
			ev.Error = out.Err.Error()
			logger.Warn("analyzer failed", "analyzer", name, "error", out.Err)
		default:
			logger.Debug("analyzer completed",
				"analyzer", name,
				"anomalies", len(out.Anomalies),
				"unavailable", out.Diagnostics.Unavailable(),
				"duration", elapsed)
		}
		s.eventBus.Publish(Event{Type: EventAnalyzerCompleted, Payload: ev})
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	anomalies, err := a.Analyze(ctx, in)
	if err != nil {
		out.Err = err
		return out
	}
	for i := range anomalies {
		anomalies[i].Analyzer = name
	}
	out.Anomalies = anomalies
	return out
}
