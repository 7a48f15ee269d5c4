package analyzer

import (
	"context"
	"fmt"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/topology"
)

// TopologyDeviation flags links that deviate from what their ports declare:
// conflicting or dangling links, links on inactive ports, and links
// running below the width or speed both ends support
type TopologyDeviation struct {
	cfg TopologySettings
}

// NewTopologyDeviation creates a topology deviation analyzer
func NewTopologyDeviation(cfg TopologySettings) *TopologyDeviation {
	return &TopologyDeviation{cfg: cfg}
}

func (a *TopologyDeviation) Name() string { return "topology" }

func (a *TopologyDeviation) Tables() []string {
	return []string{dump.TableNodes, dump.TablePorts, dump.TableLinks}
}

func (a *TopologyDeviation) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topo := in.Topology
	for _, t := range topo.Unavailable() {
		if t == dump.TableLinks || t == dump.TablePorts || t == dump.TableNodes {
			in.diag.Missing = appendUnique(in.diag.Missing, t)
		}
	}

	var out []domain.Anomaly

	for _, c := range topo.Conflicts() {
		peers := make([]string, len(c.Peers))
		for i, p := range c.Peers {
			peers[i] = p.String()
		}
		out = append(out, newAnomaly(a.Name(), c.Port.Entity(), domain.KindLinkConflict, domain.SeverityCritical,
			a.cfg.ConflictWeight, domain.Evidence{"peers": peers}))
	}

	widthMode, speedMode := fabricModes(topo)
	checkPorts := topo.PortCount() > 0
	checkNodes := topo.NodeCount() > 0

	for _, link := range topo.Links() {
		pa, okA := topo.Port(link.A)
		pb, okB := topo.Port(link.B)

		dangling := false
		for _, end := range []struct {
			key   domain.PortKey
			peer  domain.PortKey
			known bool
		}{{link.A, link.B, okA}, {link.B, link.A, okB}} {
			reason := ""
			switch {
			case checkNodes && !hasNode(topo, end.key.GUID):
				reason = "unknown node"
			case checkPorts && !end.known:
				reason = "unknown port"
			default:
				continue
			}
			dangling = true
			out = append(out, newAnomaly(a.Name(), end.key.Entity(), domain.KindDanglingLink, domain.SeverityCritical,
				a.cfg.DanglingWeight, domain.Evidence{"peer": end.peer.String(), "reason": reason}))
		}
		if dangling || !okA || !okB {
			continue
		}

		inactive := false
		for _, end := range []struct {
			port *domain.Port
			peer domain.PortKey
		}{{pa, link.B}, {pb, link.A}} {
			if end.port.State == domain.PortStateUnknown || end.port.Active() {
				continue
			}
			inactive = true
			out = append(out, newAnomaly(a.Name(), end.port.Key.Entity(), domain.KindInactiveLinkPort, domain.SeverityWarning,
				a.cfg.InactiveWeight, domain.Evidence{"peer": end.peer.String(), "state": end.port.State.String()}))
		}
		if inactive || !pa.Active() || !pb.Active() {
			continue
		}

		if an, ok := a.widthDegraded(pa, pb, widthMode); ok {
			out = append(out, an)
		}
		if an, ok := a.speedDegraded(pa, pb, speedMode); ok {
			out = append(out, an)
		}
	}

	return out, nil
}

func hasNode(topo *topology.Topology, guid string) bool {
	_, ok := topo.Node(guid)
	return ok
}

// fabricModes returns the most common active width and speed across
// active linked ports; ties go to the wider or faster value
func fabricModes(topo *topology.Topology) (width, speed int64) {
	widths := make(map[int64]int)
	speeds := make(map[int64]int)
	for _, link := range topo.Links() {
		for _, key := range []domain.PortKey{link.A, link.B} {
			p, ok := topo.Port(key)
			if !ok || !p.Active() {
				continue
			}
			if p.Width > 0 {
				widths[p.Width]++
			}
			if p.Speed > 0 {
				speeds[p.Speed]++
			}
		}
	}

	bestW, bestS := 0, 0
	for w, n := range widths {
		if n > bestW || (n == bestW && wider(w, width)) {
			width, bestW = w, n
		}
	}
	for s, n := range speeds {
		if n > bestS || (n == bestS && s > speed) {
			speed, bestS = s, n
		}
	}
	return width, speed
}

func wider(a, b int64) bool {
	la, lb := domain.WidthLanes(a), domain.WidthLanes(b)
	if la != lb {
		return la > lb
	}
	return a > b
}

func (a *TopologyDeviation) widthDegraded(pa, pb *domain.Port, mode int64) (domain.Anomaly, bool) {
	expected, basis := int64(0), "supported"
	if common := pa.WidthSupported & pb.WidthSupported; common > 0 {
		expected = domain.HighestWidth(common)
	} else {
		expected, basis = mode, "fabric"
	}
	if expected == 0 || pa.Width == 0 || pb.Width == 0 {
		return domain.Anomaly{}, false
	}

	active := pa.Width
	if domain.WidthLanes(pb.Width) < domain.WidthLanes(active) {
		active = pb.Width
	}
	if domain.WidthLanes(active) >= domain.WidthLanes(expected) {
		return domain.Anomaly{}, false
	}

	return newAnomaly(a.Name(), pa.Key.Entity(), domain.KindWidthDegraded, domain.SeverityWarning,
		a.cfg.DegradedWeight, domain.Evidence{
			"peer":           pb.Key.String(),
			"active_lanes":   domain.WidthLanes(active),
			"expected_lanes": domain.WidthLanes(expected),
			"basis":          basis,
		}), true
}

func (a *TopologyDeviation) speedDegraded(pa, pb *domain.Port, mode int64) (domain.Anomaly, bool) {
	expected, basis := int64(0), "supported"
	if common := pa.SpeedSupported & pb.SpeedSupported; common > 0 {
		expected = domain.HighestSpeed(common)
	} else {
		expected, basis = mode, "fabric"
	}
	if expected == 0 || pa.Speed == 0 || pb.Speed == 0 {
		return domain.Anomaly{}, false
	}

	active := min(pa.Speed, pb.Speed)
	if active >= expected {
		return domain.Anomaly{}, false
	}

	return newAnomaly(a.Name(), pa.Key.Entity(), domain.KindSpeedDegraded, domain.SeverityWarning,
		a.cfg.DegradedWeight, domain.Evidence{
			"peer":     pb.Key.String(),
			"active":   fmt.Sprintf("0x%x", active),
			"expected": fmt.Sprintf("0x%x", expected),
			"basis":    basis,
		}), true
}
