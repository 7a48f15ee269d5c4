package analyzer

import (
	"context"
	"maps"
	"slices"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
)

// Identity flags identifiers that must be unique across the fabric:
// node GUIDs, port GUIDs, LIDs, and node descriptions
type Identity struct {
	cfg IdentitySettings
}

// NewIdentity creates a duplicate identity analyzer
func NewIdentity(cfg IdentitySettings) *Identity {
	return &Identity{cfg: cfg}
}

func (a *Identity) Name() string { return "identity" }

func (a *Identity) Tables() []string { return []string{dump.TableNodes, dump.TablePorts} }

func (a *Identity) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topo := in.Topology
	for _, t := range topo.Unavailable() {
		if t == dump.TableNodes || t == dump.TablePorts {
			in.diag.Missing = appendUnique(in.diag.Missing, t)
		}
	}

	var out []domain.Anomaly

	dupGUIDs := topo.DuplicateGUIDs()
	for _, guid := range slices.Sorted(maps.Keys(dupGUIDs)) {
		count := dupGUIDs[guid]
		out = append(out, newAnomaly(a.Name(), domain.NodeEntity(guid), domain.KindDuplicateGUID, domain.SeverityCritical,
			a.cfg.GUIDWeight*float64(count-1), domain.Evidence{"occurrences": count}))
	}

	dupDescs := topo.DuplicateDescriptions()
	for _, desc := range slices.Sorted(maps.Keys(dupDescs)) {
		guids := dupDescs[desc]
		for _, guid := range guids {
			out = append(out, newAnomaly(a.Name(), domain.NodeEntity(guid), domain.KindDuplicateNodeDesc, domain.SeverityWarning,
				a.cfg.DescWeight, domain.Evidence{"description": desc, "nodes": guids}))
		}
	}

	dupPortGUIDs := topo.DuplicatePortGUIDs()
	for _, pg := range slices.Sorted(maps.Keys(dupPortGUIDs)) {
		owners := dupPortGUIDs[pg]
		for _, guid := range owners {
			out = append(out, newAnomaly(a.Name(), domain.NodeEntity(guid), domain.KindDuplicatePortGUID, domain.SeverityCritical,
				a.cfg.GUIDWeight, domain.Evidence{"port_guid": pg, "nodes": owners}))
		}
	}

	dupLIDs := topo.DuplicateLIDs()
	for _, lid := range slices.Sorted(maps.Keys(dupLIDs)) {
		owners := dupLIDs[lid]
		for _, guid := range owners {
			out = append(out, newAnomaly(a.Name(), domain.NodeEntity(guid), domain.KindDuplicateLID, domain.SeverityCritical,
				a.cfg.GUIDWeight, domain.Evidence{"lid": lid, "nodes": owners}))
		}
	}

	return out, nil
}
