// Package report assembles the result of one analysis run: the health
// score, the per-analyzer anomaly lists, and summary counts describing
// what the run could and could not see.
//
// A Result carries no run id or timestamps. Two runs over the same
// dataset produce identical results.
package report

import (
	"maps"
	"math"
	"slices"
	"strings"

	"fabriclens/internal/analyzer"
	"fabriclens/internal/domain"
	"fabriclens/internal/health"
	"fabriclens/internal/topology"
)

// Signal reasons
const (
	ReasonMissing = "missing"
	ReasonFailed  = "failed"
	ReasonError   = "error"
)

// Output is what one analyzer produced in one run
type Output struct {
	Analyzer    string
	Anomalies   []domain.Anomaly
	Diagnostics analyzer.Diagnostics
	Err         error
}

// Signal is an input an analyzer expected but could not use
type Signal struct {
	Analyzer string `json:"analyzer"`
	Table    string `json:"table,omitempty"`
	Reason   string `json:"reason"`
}

// AnalyzerError is an analyzer that failed outright
type AnalyzerError struct {
	Analyzer string `json:"analyzer"`
	Error    string `json:"error"`
}

// Summary holds the counts shown alongside the score
type Summary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`

	Entities int `json:"entities"`
	Ports    int `json:"ports"`
	Links    int `json:"links"`

	UnavailableSignals []Signal        `json:"unavailable_signals"`
	UnavailableTables  []string        `json:"unavailable_tables"`
	SkippedRows        map[string]int  `json:"skipped_rows"`
	DisabledChecks     []string        `json:"disabled_checks"`
	AnalyzerErrors     []AnalyzerError `json:"analyzer_errors"`
}

// TotalSkipped returns the number of rows skipped across all tables
func (s Summary) TotalSkipped() int {
	n := 0
	for _, v := range s.SkippedRows {
		n += v
	}
	return n
}

// Degraded reports whether any signal was unavailable
func (s Summary) Degraded() bool {
	return len(s.UnavailableSignals) > 0 || len(s.AnalyzerErrors) > 0
}

// Result is the single object handed to presentation layers
type Result struct {
	Dataset   string                      `json:"dataset"`
	Health    *health.Score               `json:"health"`
	Anomalies map[string][]domain.Anomaly `json:"anomalies"`
	Summary   Summary                     `json:"summary"`
}

// Build assembles a result. Every output gets an anomaly list, empty when
// the analyzer found nothing or failed. The score must already be
// computed from the same outputs.
func Build(dataset string, topo *topology.Topology, outputs []Output, score *health.Score) *Result {
	if topo == nil {
		topo = topology.New()
	}
	if score == nil {
		score = health.Compute(nil, health.EntityCounts{})
	}

	r := &Result{
		Dataset:   dataset,
		Health:    score,
		Anomalies: make(map[string][]domain.Anomaly, len(outputs)),
		Summary: Summary{
			Entities:           topo.NodeCount(),
			Ports:              topo.PortCount(),
			Links:              topo.LinkCount(),
			UnavailableSignals: []Signal{},
			UnavailableTables:  []string{},
			SkippedRows:        map[string]int{},
			DisabledChecks:     []string{},
			AnalyzerErrors:     []AnalyzerError{},
		},
	}

	for _, rec := range score.Records {
		switch rec.Severity {
		case domain.SeverityCritical:
			r.Summary.Critical++
		case domain.SeverityWarning:
			r.Summary.Warning++
		case domain.SeverityInfo:
			r.Summary.Info++
		}
	}

	tables := slices.Clone(topo.Unavailable())
	for _, out := range outputs {
		list := make([]domain.Anomaly, 0, len(out.Anomalies))
		for _, a := range out.Anomalies {
			list = append(list, a.Clone())
		}
		slices.SortFunc(list, domain.CompareAnomalies)
		r.Anomalies[out.Analyzer] = list

		d := out.Diagnostics
		for _, t := range d.Missing {
			r.Summary.UnavailableSignals = append(r.Summary.UnavailableSignals,
				Signal{Analyzer: out.Analyzer, Table: t, Reason: ReasonMissing})
		}
		for _, t := range d.Failed {
			r.Summary.UnavailableSignals = append(r.Summary.UnavailableSignals,
				Signal{Analyzer: out.Analyzer, Table: t, Reason: ReasonFailed})
		}
		tables = append(tables, d.Unavailable()...)

		// a table read by several analyzers is counted once
		for t, n := range d.Skipped {
			r.Summary.SkippedRows[t] = max(r.Summary.SkippedRows[t], n)
		}
		r.Summary.DisabledChecks = append(r.Summary.DisabledChecks, d.Disabled...)

		if out.Err != nil {
			r.Summary.UnavailableSignals = append(r.Summary.UnavailableSignals,
				Signal{Analyzer: out.Analyzer, Reason: ReasonError})
			r.Summary.AnalyzerErrors = append(r.Summary.AnalyzerErrors,
				AnalyzerError{Analyzer: out.Analyzer, Error: out.Err.Error()})
		}
	}

	slices.SortFunc(r.Summary.UnavailableSignals, compareSignals)
	slices.Sort(tables)
	r.Summary.UnavailableTables = append(r.Summary.UnavailableTables, slices.Compact(tables)...)
	slices.Sort(r.Summary.DisabledChecks)
	r.Summary.DisabledChecks = slices.Compact(r.Summary.DisabledChecks)
	slices.SortFunc(r.Summary.AnalyzerErrors, func(a, b AnalyzerError) int {
		return strings.Compare(a.Analyzer, b.Analyzer)
	})

	r.Normalize()
	return r
}

// AnalyzerNames returns the analyzers present in the result, sorted
func (r *Result) AnalyzerNames() []string {
	return slices.Sorted(maps.Keys(r.Anomalies))
}

// Normalize replaces every non-finite evidence value with nil so the
// result can cross any encoding boundary
func (r *Result) Normalize() {
	for _, list := range r.Anomalies {
		for i := range list {
			list[i].Evidence = normalizeEvidence(list[i].Evidence)
			list[i].Weight = finite(list[i].Weight)
		}
	}
	if r.Health == nil {
		return
	}
	r.Health.Score = finite(r.Health.Score)
	for i := range r.Health.Records {
		rec := &r.Health.Records[i]
		rec.Weight = finite(rec.Weight)
		for j := range rec.Evidence {
			rec.Evidence[j] = normalizeEvidence(rec.Evidence[j])
		}
	}
}

// NormalizeValue returns v with non-finite floats replaced by nil,
// descending into slices and maps
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case []float64:
		if !slices.ContainsFunc(x, nonFinite) {
			return x
		}
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = NormalizeValue(f)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = NormalizeValue(e)
		}
		return out
	case domain.Evidence:
		return normalizeEvidence(x)
	}
	return v
}

func normalizeEvidence(ev domain.Evidence) domain.Evidence {
	if ev == nil {
		return nil
	}
	out := make(domain.Evidence, len(ev))
	for k, v := range ev {
		out[k] = NormalizeValue(v)
	}
	return out
}

func nonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// finite maps weights and scores that cannot be encoded onto the nearest
// encodable value
func finite(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case math.IsInf(f, 1):
		return math.MaxFloat64
	case math.IsInf(f, -1):
		return 0
	}
	return f
}

func compareSignals(a, b Signal) int {
	if c := strings.Compare(a.Analyzer, b.Analyzer); c != 0 {
		return c
	}
	if c := strings.Compare(a.Table, b.Table); c != 0 {
		return c
	}
	return strings.Compare(a.Reason, b.Reason)
}
