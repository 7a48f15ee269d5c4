package analyzer

import (
	"context"
	"maps"
	"slices"

	"github.com/blang/semver/v4"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/loader"
)

// CheckComplianceReference names the reference-driven checks that are
// disabled when no usable reference is loaded
const CheckComplianceReference = "compliance-reference"

// Compliance compares firmware versions and device identities with a
// reference table, and firmware versions within each PSID across the fleet
type Compliance struct {
	ref *loader.ComplianceReference
}

// NewCompliance creates a compliance analyzer. A nil reference runs the
// fleet consistency check only.
func NewCompliance(ref *loader.ComplianceReference) *Compliance {
	return &Compliance{ref: ref}
}

func (a *Compliance) Name() string { return "compliance" }

func (a *Compliance) Tables() []string { return []string{dump.TableNodesInfo} }

type firmwareNode struct {
	node    *domain.Node
	version semver.Version
}

func (a *Compliance) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	if a.ref == nil {
		in.Disable(CheckComplianceReference)
	}

	// firmware reaches the topology through NODES_INFO
	_, ok, err := in.Table(ctx, dump.TableNodesInfo)
	if err != nil || !ok {
		return nil, err
	}

	var fleet []firmwareNode
	invalid := 0
	for _, n := range in.Topology.Nodes() {
		if n.Firmware == "" {
			continue
		}
		v, err := loader.ParseFirmware(n.Firmware)
		if err != nil {
			invalid++
			continue
		}
		fleet = append(fleet, firmwareNode{node: n, version: v})
	}
	in.Skip(dump.TableNodesInfo, invalid)

	var out []domain.Anomaly
	if a.ref != nil {
		for _, fn := range fleet {
			out = append(out, a.checkReference(fn)...)
		}
	}
	out = append(out, a.checkFleet(fleet)...)
	return out, nil
}

func (a *Compliance) checkReference(fn firmwareNode) []domain.Anomaly {
	n := fn.node
	entity := domain.NodeEntity(n.GUID)

	var reasons []string
	if n.DeviceID != 0 && !a.ref.SupportsDevice(n.DeviceID) {
		reasons = append(reasons, "device-id")
	}

	var out []domain.Anomaly
	rule, ok := a.ref.Rule(n.PSID)
	switch {
	case !ok && a.ref.HasRules():
		reasons = append(reasons, "psid")
	case ok && !fn.version.Equals(rule.Version):
		weight := 0.5
		ev := domain.Evidence{
			"psid":     n.PSID,
			"observed": fn.version.String(),
			"expected": rule.Version.String(),
		}
		if rule.Device != "" {
			ev["device"] = rule.Device
		}
		if rule.Minimum != nil {
			ev["minimum"] = rule.Minimum.String()
			if fn.version.LT(*rule.Minimum) {
				weight = 1.5
				ev["below_minimum"] = true
			}
		}
		out = append(out, newAnomaly(a.Name(), entity, domain.KindFirmwareMismatch, domain.SeverityInfo, weight, ev))
	}

	if len(reasons) > 0 {
		out = append(out, newAnomaly(a.Name(), entity, domain.KindUnsupportedIdentity, domain.SeverityInfo, 1.0,
			domain.Evidence{
				"psid":      n.PSID,
				"device_id": n.DeviceID,
				"reasons":   reasons,
			}))
	}
	return out
}

// checkFleet flags nodes whose firmware differs from the most common
// version among nodes sharing their PSID
func (a *Compliance) checkFleet(fleet []firmwareNode) []domain.Anomaly {
	groups := make(map[string][]firmwareNode)
	for _, fn := range fleet {
		if fn.node.PSID == "" {
			continue
		}
		groups[fn.node.PSID] = append(groups[fn.node.PSID], fn)
	}

	var out []domain.Anomaly
	for _, psid := range slices.Sorted(maps.Keys(groups)) {
		members := groups[psid]
		if len(members) < 2 {
			continue
		}
		majority, count := majorityVersion(members)
		for _, fn := range members {
			if fn.version.Equals(majority) {
				continue
			}
			out = append(out, newAnomaly(a.Name(), domain.NodeEntity(fn.node.GUID), domain.KindFirmwareInconsistent,
				domain.SeverityInfo, 0.5, domain.Evidence{
					"psid":           psid,
					"observed":       fn.version.String(),
					"majority":       majority.String(),
					"majority_count": count,
					"group_size":     len(members),
				}))
		}
	}
	return out
}

// majorityVersion returns the most common version; ties go to the newest
func majorityVersion(members []firmwareNode) (semver.Version, int) {
	counts := make(map[string]int)
	versions := make(map[string]semver.Version)
	for _, fn := range members {
		s := fn.version.String()
		counts[s]++
		versions[s] = fn.version
	}

	var best semver.Version
	bestCount := 0
	for s, c := range counts {
		v := versions[s]
		if c > bestCount || (c == bestCount && v.GT(best)) {
			best, bestCount = v, c
		}
	}
	return best, bestCount
}
