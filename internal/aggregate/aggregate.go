// Package aggregate merges anomaly records from every analyzer into one
// table keyed by entity and kind.
//
// Records that share a key accumulate: weights are summed and the severity
// escalates to the highest seen. Nothing is overwritten or dropped. The
// result does not depend on the order records arrive in, so analyzers can
// run in parallel and be merged as they finish.
package aggregate

import (
	"math"
	"slices"
	"strings"
	"sync"

	"fabriclens/internal/domain"
)

// Key is the merge key of the aggregated table
type Key struct {
	Entity domain.EntityKey
	Kind   domain.Kind
}

// Record is one merged row of the aggregated table
type Record struct {
	Entity    domain.EntityKey  `json:"entity"`
	Kind      domain.Kind       `json:"kind"`
	Category  domain.Category   `json:"category"`
	Severity  domain.Severity   `json:"severity"`
	Weight    float64           `json:"weight"`
	Count     int               `json:"count"`
	Analyzers []string          `json:"analyzers"`
	Evidence  []domain.Evidence `json:"evidence,omitempty"`
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	r.Analyzers = slices.Clone(r.Analyzers)
	if r.Evidence != nil {
		ev := make([]domain.Evidence, len(r.Evidence))
		for i, e := range r.Evidence {
			ev[i] = e.Clone()
		}
		r.Evidence = ev
	}
	return r
}

// Table is the aggregated table, ordered by weight descending, then
// entity, then kind
type Table []Record

// Clone returns a deep copy of the table
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for i, r := range t {
		out[i] = r.Clone()
	}
	return out
}

// Aggregator collects anomaly records. It is safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	byKey map[Key][]domain.Anomaly
	count int
}

// New creates an empty aggregator
func New() *Aggregator {
	return &Aggregator{byKey: make(map[Key][]domain.Anomaly)}
}

// Add records anomalies. Each record is copied; callers may reuse theirs.
func (a *Aggregator) Add(records ...domain.Anomaly) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range records {
		r = r.Clone()
		if math.IsNaN(r.Weight) || r.Weight < 0 {
			r.Weight = 0
		}
		k := Key{Entity: r.Entity, Kind: r.Kind}
		a.byKey[k] = append(a.byKey[k], r)
		a.count++
	}
}

// Merge adds every record collected by another aggregator
func (a *Aggregator) Merge(o *Aggregator) {
	if o == nil || o == a {
		return
	}
	o.mu.Lock()
	var records []domain.Anomaly
	for _, list := range o.byKey {
		records = append(records, list...)
	}
	o.mu.Unlock()
	a.Add(records...)
}

// Len returns the number of records added
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Table builds the aggregated table
func (a *Aggregator) Table() Table {
	a.mu.Lock()
	defer a.mu.Unlock()

	table := make(Table, 0, len(a.byKey))
	for k, list := range a.byKey {
		table = append(table, merge(k, list))
	}
	slices.SortFunc(table, compareRecords)
	return table
}

// Aggregate merges a list of anomaly records into an aggregated table
func Aggregate(records []domain.Anomaly) Table {
	a := New()
	a.Add(records...)
	return a.Table()
}

// merge folds the contributions of one key. Contributions are put in a
// canonical order first so the floating point sum is the same for any
// arrival order.
func merge(k Key, list []domain.Anomaly) Record {
	sorted := slices.Clone(list)
	slices.SortFunc(sorted, domain.CompareAnomalies)

	r := Record{
		Entity:   k.Entity,
		Kind:     k.Kind,
		Category: k.Kind.Category(),
		Count:    len(sorted),
	}
	for _, c := range sorted {
		r.Weight += c.Weight
		r.Severity = domain.MaxSeverity(r.Severity, c.Severity)
		if !slices.Contains(r.Analyzers, c.Analyzer) {
			r.Analyzers = append(r.Analyzers, c.Analyzer)
		}
		if len(c.Evidence) > 0 {
			r.Evidence = append(r.Evidence, c.Evidence.Clone())
		}
	}
	if math.IsInf(r.Weight, 1) {
		r.Weight = math.MaxFloat64
	}
	slices.Sort(r.Analyzers)
	return r
}

func compareRecords(a, b Record) int {
	switch {
	case a.Weight > b.Weight:
		return -1
	case a.Weight < b.Weight:
		return 1
	}
	if c := a.Entity.Compare(b.Entity); c != 0 {
		return c
	}
	return strings.Compare(string(a.Kind), string(b.Kind))
}
