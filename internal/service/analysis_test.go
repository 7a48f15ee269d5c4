package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabriclens/internal/analyzer"
	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/dump/dumptest"
	"fabriclens/internal/health"
	"fabriclens/internal/report"
	"fabriclens/internal/service"
)

var (
	Row = dumptest.Row
	Q   = dumptest.Q
)

const (
	swGUID = "0x0002c90300a1b2c0"
	h1GUID = "0x0002c90300a1b2d0"
	h2GUID = "0x0002c90300a1b2e0"
)

func fabricDir(t *testing.T) string {
	t.Helper()
	dir := dumptest.New().
		Table("NODES", []string{"NodeDesc", "NodeType", "NodeGUID"},
			Row(Q("sw-01"), "2", swGUID),
			Row(Q("node-01"), "1", h1GUID),
			Row(Q("node-02"), "1", h2GUID),
		).
		Table("PORTS", []string{"NodeGuid", "PortNum", "PortState", "LinkWidthActv", "LinkSpeedActv", "LinkWidthSup", "LinkSpeedSup"},
			Row(swGUID, "1", "4", "2", "16", "3", "24"),
			Row(swGUID, "2", "4", "1", "16", "3", "24"),
			Row(h1GUID, "1", "4", "2", "16", "3", "24"),
			Row(h2GUID, "1", "4", "1", "16", "3", "24"),
		).
		Table("LINKS", []string{"NodeGuid1", "PortNum1", "NodeGuid2", "PortNum2"},
			Row(swGUID, "1", h1GUID, "1"),
			Row(swGUID, "2", h2GUID, "1"),
		).
		Table("PHY_BER", []string{"NodeGuid", "PortNum", "EffBERMantissa", "EffBERExponent", "ErrorEvents"},
			Row(h1GUID, "1", "15", "12", "5"),
			Row(h2GUID, "1", "15", "254", "1000"),
		).
		Table("CABLE_INFO", []string{"NodeGuid", "PortNum", "Temperature", "RxPower"},
			Row(h1GUID, "1", "82", "0.5"),
			Row(h2GUID, "1", "40", "0.01"),
		).
		WriteDir(t)
	dumptest.WriteFlat(t, dir, "telemetry.csv",
		[]string{"node_guid", "port_num", "temperature_c", "rx_power_mw", "latency_us"},
		Row(h1GUID, "1", "N/A", "N/A", "30"),
	)
	return dir
}

func newService(opts ...service.Option) *service.AnalysisService {
	reg := analyzer.NewDefaultRegistry(analyzer.DefaultSettings(), nil, nil)
	return service.NewAnalysisService(reg, opts...)
}

func TestAnalyzeFabric(t *testing.T) {
	svc := newService(service.WithWorkers(3))
	dir := fabricDir(t)

	result, err := svc.Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, result.Dataset)
	assert.Equal(t, 3, result.Summary.Entities)
	assert.Equal(t, 4, result.Summary.Ports)
	assert.Equal(t, 2, result.Summary.Links)
	assert.Less(t, result.Health.Score, 100.0)
	assert.GreaterOrEqual(t, result.Health.Score, 0.0)

	assert.Len(t, result.Anomalies, 11, "every registered analyzer has a list")
	require.NotEmpty(t, result.Anomalies["ber"])
	assert.Equal(t, domain.KindHighBER, result.Anomalies["ber"][0].Kind)
	assert.NotEmpty(t, result.Anomalies["thermal"])
	assert.NotEmpty(t, result.Anomalies["topology"])
	assert.NotEmpty(t, result.Anomalies["latency"])
	assert.NotNil(t, result.Anomalies["power"])
	assert.Empty(t, result.Anomalies["power"])

	assert.Contains(t, result.Summary.UnavailableTables, "POWER_SUPPLIES")
	assert.Contains(t, result.Summary.DisabledChecks, analyzer.CheckComplianceReference)
	assert.Empty(t, result.Summary.AnalyzerErrors)
	assert.Positive(t, result.Summary.Critical)
}

func TestAnalyzeIdempotent(t *testing.T) {
	dir := fabricDir(t)

	first, err := newService().Analyze(context.Background(), dir)
	require.NoError(t, err)
	second, err := newService(service.WithWorkers(1)).Analyze(context.Background(), dir)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAnalyzeEmptyDataset(t *testing.T) {
	dir := dumptest.New().
		Table("UNRELATED", []string{"A"}, Row("1")).
		WriteDir(t)

	result, err := newService().Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Health.Score)
	assert.Equal(t, health.GradeA, result.Health.Grade)
	for _, sub := range result.Health.Categories {
		assert.Equal(t, sub.Weight, sub.Score)
	}
	assert.True(t, result.Summary.Degraded(), "absent signals are reported")
	assert.NotEmpty(t, result.Summary.UnavailableTables)
}

func TestAnalyzeFormatErrorIsFatal(t *testing.T) {
	metrics := service.NewMetrics()
	bus := service.NewEventBus()
	events := make(chan service.Event, 16)
	bus.Subscribe(events)

	svc := newService(service.WithMetrics(metrics), service.WithEventBus(bus))

	result, err := svc.Analyze(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, dump.IsFormatError(err))

	expected := `
# HELP fabriclens_runs_total Total analysis runs by outcome
# TYPE fabriclens_runs_total counter
fabriclens_runs_total{outcome="failed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "fabriclens_runs_total"))

	require.Len(t, events, 2)
	assert.Equal(t, service.EventAnalysisStarted, (<-events).Type)
	failed := <-events
	assert.Equal(t, service.EventAnalysisFailed, failed.Type)
	assert.NotEmpty(t, failed.Payload.(service.RunEvent).Error)
}

func TestAnalyzeCanceled(t *testing.T) {
	metrics := service.NewMetrics()
	svc := newService(service.WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Analyze(ctx, fabricDir(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result, "partial results are discarded")

	expected := `
# HELP fabriclens_runs_total Total analysis runs by outcome
# TYPE fabriclens_runs_total counter
fabriclens_runs_total{outcome="canceled"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "fabriclens_runs_total"))
}

// stub is a scripted analyzer
type stub struct {
	name string
	run  func(ctx context.Context, in *analyzer.Input) ([]domain.Anomaly, error)
}

func (s *stub) Name() string     { return s.name }
func (s *stub) Tables() []string { return nil }
func (s *stub) Analyze(ctx context.Context, in *analyzer.Input) ([]domain.Anomaly, error) {
	return s.run(ctx, in)
}

func registryOf(t *testing.T, analyzers ...analyzer.Analyzer) *analyzer.Registry {
	t.Helper()
	reg := analyzer.NewRegistry(nil)
	for _, a := range analyzers {
		require.NoError(t, reg.Register(a))
	}
	return reg
}

func TestAnalyzeTimeoutDiscardsOutput(t *testing.T) {
	slow := &stub{name: "slow", run: func(ctx context.Context, _ *analyzer.Input) ([]domain.Anomaly, error) {
		<-ctx.Done()
		return []domain.Anomaly{{Entity: domain.NodeEntity(h1GUID), Kind: domain.KindLinkDown, Severity: domain.SeverityWarning, Weight: 1}}, nil
	}}
	svc := service.NewAnalysisService(registryOf(t, slow), service.WithTimeout(20*time.Millisecond))

	result, err := svc.Analyze(context.Background(), fabricDir(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)
}

func TestAnalyzerFailuresDoNotAbortRun(t *testing.T) {
	failing := &stub{name: "failing", run: func(context.Context, *analyzer.Input) ([]domain.Anomaly, error) {
		return nil, errors.New("counter table corrupt")
	}}
	panicking := &stub{name: "panicking", run: func(context.Context, *analyzer.Input) ([]domain.Anomaly, error) {
		panic("index out of range")
	}}
	working := &stub{name: "working", run: func(context.Context, *analyzer.Input) ([]domain.Anomaly, error) {
		return []domain.Anomaly{{
			Entity:   domain.PortEntity(h1GUID, 1),
			Kind:     domain.KindLinkDown,
			Severity: domain.SeverityWarning,
			Weight:   2,
		}}, nil
	}}

	svc := service.NewAnalysisService(registryOf(t, failing, panicking, working))
	result, err := svc.Analyze(context.Background(), fabricDir(t))
	require.NoError(t, err)

	require.Len(t, result.Summary.AnalyzerErrors, 2)
	assert.Equal(t, "failing", result.Summary.AnalyzerErrors[0].Analyzer)
	assert.Equal(t, "panicking", result.Summary.AnalyzerErrors[1].Analyzer)
	assert.Contains(t, result.Summary.AnalyzerErrors[1].Error, "panicked")
	assert.Empty(t, result.Anomalies["failing"])

	require.Len(t, result.Anomalies["working"], 1)
	assert.Equal(t, "working", result.Anomalies["working"][0].Analyzer, "analyzer name is stamped")
	assert.Equal(t, 1, result.Summary.Warning)
	assert.Equal(t, 97.0, result.Health.Score)
}

func TestAnalyzeBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var analyzers []analyzer.Analyzer
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		analyzers = append(analyzers, &stub{name: name, run: func(context.Context, *analyzer.Input) ([]domain.Anomaly, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}})
	}

	svc := service.NewAnalysisService(registryOf(t, analyzers...), service.WithWorkers(2))
	assert.Equal(t, 2, svc.Workers())

	_, err := svc.Analyze(context.Background(), fabricDir(t))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAnalyzePublishesProgress(t *testing.T) {
	bus := service.NewEventBus()
	events := make(chan service.Event, 64)
	bus.Subscribe(events)
	metrics := service.NewMetrics()

	svc := newService(service.WithEventBus(bus), service.WithMetrics(metrics))
	result, err := svc.Analyze(context.Background(), fabricDir(t))
	require.NoError(t, err)
	bus.Unsubscribe(events)
	close(events)

	var types []service.EventType
	var runIDs []string
	for ev := range events {
		types = append(types, ev.Type)
		runIDs = append(runIDs, ev.Payload.(service.RunEvent).RunID)
	}

	require.Len(t, types, 13)
	assert.Equal(t, service.EventAnalysisStarted, types[0])
	assert.Equal(t, service.EventAnalysisCompleted, types[12])
	for _, ty := range types[1:12] {
		assert.Equal(t, service.EventAnalyzerCompleted, ty)
	}
	for _, id := range runIDs {
		assert.Equal(t, runIDs[0], id, "one run id per run")
	}

	expected := `
# HELP fabriclens_runs_total Total analysis runs by outcome
# TYPE fabriclens_runs_total counter
fabriclens_runs_total{outcome="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "fabriclens_runs_total"))
	series, err := testutil.GatherAndCount(metrics.Registry(), "fabriclens_analyzer_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 11, series)

	var total int
	for _, list := range result.Anomalies {
		total += len(list)
	}
	assert.Equal(t, total, int(sumCounter(t, metrics, "fabriclens_anomalies_total")))
}

func sumCounter(t *testing.T, m *service.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}

type recordingExporter struct {
	saved []*report.Result
	err   error
}

func (e *recordingExporter) SaveResult(_ context.Context, r *report.Result) error {
	e.saved = append(e.saved, r)
	return e.err
}

func TestAnalyzeExports(t *testing.T) {
	exp := &recordingExporter{}
	svc := newService(service.WithExporter(exp))

	result, err := svc.Analyze(context.Background(), fabricDir(t))
	require.NoError(t, err)
	require.Len(t, exp.saved, 1)
	assert.Same(t, result, exp.saved[0])

	exp.err = errors.New("disk full")
	result, err = svc.Analyze(context.Background(), fabricDir(t))
	assert.Error(t, err)
	assert.NotNil(t, result, "the result survives a failed export")
}

func TestSetRegistry(t *testing.T) {
	svc := newService()
	only := registryOf(t, analyzer.NewLatency(analyzer.DefaultSettings().Latency))
	svc.SetRegistry(only)
	svc.SetRegistry(nil)

	result, err := svc.Analyze(context.Background(), fabricDir(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"latency"}, result.AnalyzerNames())
}
