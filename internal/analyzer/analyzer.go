package analyzer

import (
	"context"
	"errors"
	"math"
	"slices"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/topology"
)

// Analyzer consumes tables and the topology and emits anomaly records
type Analyzer interface {
	// Name returns the unique identifier for this analyzer
	Name() string

	// Tables lists the dump tables the analyzer reads
	Tables() []string

	// Analyze inspects the input. It returns an error only when it cannot
	// run at all; absent optional tables yield no records.
	Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error)
}

// Diagnostics records what an analyzer could not see
type Diagnostics struct {
	Missing  []string       `json:"missing,omitempty"`
	Failed   []string       `json:"failed,omitempty"`
	Skipped  map[string]int `json:"skipped,omitempty"`
	Disabled []string       `json:"disabled,omitempty"`
}

// Unavailable returns the missing and failed tables
func (d Diagnostics) Unavailable() []string {
	out := append(slices.Clone(d.Missing), d.Failed...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Input is the read-only view handed to one analyzer for one run
type Input struct {
	Source   dump.TableSource
	Topology *topology.Topology

	diag Diagnostics
}

// NewInput creates an input over a table source and a resolved topology
func NewInput(src dump.TableSource, topo *topology.Topology) *Input {
	if topo == nil {
		topo = topology.New()
	}
	return &Input{Source: src, Topology: topo}
}

// Table returns a materialized table. Absent tables and tables with a
// broken structure return ok == false and are recorded in the
// diagnostics. Only cancellation is returned as an error.
func (in *Input) Table(ctx context.Context, name string) (*dump.Table, bool, error) {
	if in.Source == nil {
		in.diag.Missing = appendUnique(in.diag.Missing, name)
		return nil, false, nil
	}

	t, ok, err := in.Source.Lookup(ctx, name)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, false, err
	case err != nil:
		in.diag.Failed = appendUnique(in.diag.Failed, name)
		return nil, false, nil
	case !ok:
		in.diag.Missing = appendUnique(in.diag.Missing, name)
		return nil, false, nil
	}

	if n := t.Skipped(); n > 0 {
		if in.diag.Skipped == nil {
			in.diag.Skipped = make(map[string]int)
		}
		in.diag.Skipped[name] = n
	}
	return t, true, nil
}

// Skip counts rows the analyzer itself had to discard
func (in *Input) Skip(table string, n int) {
	if n <= 0 {
		return
	}
	if in.diag.Skipped == nil {
		in.diag.Skipped = make(map[string]int)
	}
	in.diag.Skipped[table] += n
}

// Disable records a check that could not run
func (in *Input) Disable(check string) {
	in.diag.Disabled = appendUnique(in.diag.Disabled, check)
}

// Diagnostics returns a copy of what the analyzer could not see
func (in *Input) Diagnostics() Diagnostics {
	d := Diagnostics{
		Missing:  slices.Clone(in.diag.Missing),
		Failed:   slices.Clone(in.diag.Failed),
		Disabled: slices.Clone(in.diag.Disabled),
	}
	if len(in.diag.Skipped) > 0 {
		d.Skipped = make(map[string]int, len(in.diag.Skipped))
		for k, v := range in.diag.Skipped {
			d.Skipped[k] = v
		}
	}
	return d
}

// Locate adds the owning node's name to each record's evidence and, for
// linked ports, the peer port and its node. Keys already set are kept.
func (in *Input) Locate(out []domain.Anomaly) []domain.Anomaly {
	if in.Topology == nil {
		return out
	}
	for i := range out {
		a := &out[i]
		if a.Evidence == nil {
			a.Evidence = domain.Evidence{}
		}
		setDefault(a.Evidence, "node", in.Topology.NodeName(a.Entity.GUID))
		if !a.Entity.IsPort() {
			continue
		}
		if peer, ok := in.Topology.PeerOf(a.Entity.GUID, a.Entity.Port); ok {
			setDefault(a.Evidence, "peer", peer.String())
			setDefault(a.Evidence, "peer_node", in.Topology.NodeName(peer.GUID))
		}
	}
	return out
}

func setDefault(ev domain.Evidence, key string, v any) {
	if _, ok := ev[key]; !ok {
		ev[key] = v
	}
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// newAnomaly builds a record with a finite, non-negative weight
func newAnomaly(analyzer string, entity domain.EntityKey, kind domain.Kind, sev domain.Severity, weight float64, ev domain.Evidence) domain.Anomaly {
	if math.IsNaN(weight) || weight < 0 {
		weight = 0
	}
	if math.IsInf(weight, 1) {
		weight = math.MaxFloat64
	}
	return domain.Anomaly{
		Entity:   entity,
		Kind:     kind,
		Severity: sev,
		Weight:   weight,
		Analyzer: analyzer,
		Evidence: ev,
	}
}

// portColumns reads the (node GUID, port number) key of each row
type portColumns struct {
	guids dump.StringColumn
	ports dump.IntColumn
}

func portsOf(t *dump.Table, guidCol, portCol string) portColumns {
	return portColumns{guids: t.Strings(guidCol), ports: t.Ints(portCol)}
}

func (c portColumns) at(i int) (domain.PortKey, bool) {
	guid, ok1 := c.guids.At(i)
	port, ok2 := c.ports.At(i)
	if !ok1 || !ok2 || guid == "" {
		return domain.PortKey{}, false
	}
	return domain.PortKey{GUID: guid, Port: int(port)}, true
}

// logWeight scales a counter logarithmically: 1 -> 0.3, 10 -> 1.04, 1000 -> 3
func logWeight(n uint64) float64 {
	return math.Log10(1 + float64(n))
}

func capWeight(w, limit float64) float64 {
	if limit > 0 && w > limit {
		return limit
	}
	return w
}

func round(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
