// Package topology resolves node, port, and link rows into an addressable
// one-hop neighbor model. Resolution never fails: absent or unreadable
// tables leave the corresponding part of the model empty.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
)

// LinkConflict records a port that the link table connects to two different peers
type LinkConflict struct {
	Port  domain.PortKey   `json:"port"`
	Peers []domain.PortKey `json:"peers"`
}

// Topology is a read-only view over one dataset's node, port, and link tables
type Topology struct {
	nodes map[string]*domain.Node
	ports map[domain.PortKey]*domain.Port
	peers map[domain.PortKey]domain.PortKey

	nodeOrder []string
	portOrder []domain.PortKey
	links     []domain.Link
	nodePorts map[string][]domain.PortKey

	dupGUIDs     map[string]int
	dupDescs     map[string][]string
	dupPortGUIDs map[string][]string
	dupLIDs      map[int64][]string
	conflicts    []LinkConflict

	unavailable []string
}

// New returns an empty topology
func New() *Topology {
	return &Topology{
		nodes:        make(map[string]*domain.Node),
		ports:        make(map[domain.PortKey]*domain.Port),
		peers:        make(map[domain.PortKey]domain.PortKey),
		nodePorts:    make(map[string][]domain.PortKey),
		dupGUIDs:     make(map[string]int),
		dupDescs:     make(map[string][]string),
		dupPortGUIDs: make(map[string][]string),
		dupLIDs:      make(map[int64][]string),
	}
}

// Resolve builds the topology from the node, node info, port, and link tables
func Resolve(ctx context.Context, src dump.TableSource, logger *slog.Logger) *Topology {
	if logger == nil {
		logger = slog.Default()
	}
	t := New()

	load := func(name string) *dump.Table {
		tbl, ok, err := src.Lookup(ctx, name)
		if err != nil {
			logger.Warn("topology table unavailable", "table", name, "error", err)
			t.unavailable = append(t.unavailable, name)
			return nil
		}
		if !ok {
			t.unavailable = append(t.unavailable, name)
			return nil
		}
		return tbl
	}

	if tbl := load(dump.TableNodes); tbl != nil {
		t.addNodes(tbl)
	}
	if tbl := load(dump.TableNodesInfo); tbl != nil {
		t.addNodeInfo(tbl)
	}
	if tbl := load(dump.TablePorts); tbl != nil {
		t.addPorts(tbl)
	}
	if tbl := load(dump.TableLinks); tbl != nil {
		t.addLinks(tbl)
	}

	t.finish()
	logger.Debug("topology resolved",
		"nodes", len(t.nodes),
		"ports", len(t.ports),
		"links", len(t.links),
		"duplicate_guids", len(t.dupGUIDs))

	return t
}

func (t *Topology) addNodes(tbl *dump.Table) {
	guids := tbl.Strings("NodeGUID")
	descs := tbl.Strings("NodeDesc")
	types := tbl.Ints("NodeType")
	numPorts := tbl.Ints("NumPorts")
	sysGUIDs := tbl.Strings("SystemImageGUID")
	devIDs := tbl.Ints("DeviceID")
	vendorIDs := tbl.Ints("VendorID")

	byDesc := make(map[string][]string)
	for i := 0; i < tbl.Len(); i++ {
		guid, ok := guids.At(i)
		if !ok || guid == "" {
			continue
		}

		if _, seen := t.nodes[guid]; seen {
			// keep the first occurrence, flag the rest
			if t.dupGUIDs[guid] == 0 {
				t.dupGUIDs[guid] = 1
			}
			t.dupGUIDs[guid]++
			continue
		}

		n := &domain.Node{GUID: guid, Kind: domain.NodeKindOther}
		n.Name, _ = descs.At(i)
		if v, ok := types.At(i); ok {
			n.Kind = domain.NodeKindFromType(v)
		}
		if v, ok := numPorts.At(i); ok {
			n.NumPorts = int(v)
		}
		n.SystemImageGUID, _ = sysGUIDs.At(i)
		n.DeviceID, _ = devIDs.At(i)
		n.VendorID, _ = vendorIDs.At(i)

		t.nodes[guid] = n
		t.nodeOrder = append(t.nodeOrder, guid)
		if n.Name != "" {
			byDesc[n.Name] = append(byDesc[n.Name], guid)
		}
	}

	for desc, guids := range byDesc {
		if len(guids) > 1 {
			slices.Sort(guids)
			t.dupDescs[desc] = guids
		}
	}
}

func (t *Topology) addNodeInfo(tbl *dump.Table) {
	guids := tbl.Strings("NodeGuid")
	major := tbl.Ints("FW_Major")
	minor := tbl.Ints("FW_Minor")
	sub := tbl.Ints("FW_SubMinor")
	psids := tbl.Strings("PSID")

	for i := 0; i < tbl.Len(); i++ {
		guid, _ := guids.At(i)
		n, ok := t.nodes[guid]
		if !ok {
			continue
		}
		ma, ok1 := major.At(i)
		mi, ok2 := minor.At(i)
		su, ok3 := sub.At(i)
		if ok1 && ok2 && ok3 {
			n.Firmware = fmt.Sprintf("%d.%d.%d", ma, mi, su)
		}
		n.PSID, _ = psids.At(i)
	}
}

func (t *Topology) addPorts(tbl *dump.Table) {
	guids := tbl.Strings("NodeGuid")
	nums := tbl.Ints("PortNum")
	portGUIDs := tbl.Strings("PortGuid")
	lids := tbl.Ints("LID")
	states := tbl.Ints("PortState")
	phys := tbl.Ints("PortPhyState")
	widths := tbl.Ints("LinkWidthActv")
	speeds := tbl.Ints("LinkSpeedActv")
	widthSup := tbl.Ints("LinkWidthSup")
	speedSup := tbl.Ints("LinkSpeedSup")

	portGUIDOwners := make(map[string]map[string]struct{})
	lidOwners := make(map[int64]map[string]struct{})

	for i := 0; i < tbl.Len(); i++ {
		guid, ok1 := guids.At(i)
		num, ok2 := nums.At(i)
		if !ok1 || !ok2 {
			continue
		}
		key := domain.PortKey{GUID: guid, Port: int(num)}
		if _, seen := t.ports[key]; seen {
			continue
		}

		p := &domain.Port{Key: key}
		p.GUID, _ = portGUIDs.At(i)
		p.LID, _ = lids.At(i)
		if v, ok := states.At(i); ok {
			p.State = domain.PortState(v)
		}
		p.PhyState, _ = phys.At(i)
		p.Width, _ = widths.At(i)
		p.Speed, _ = speeds.At(i)
		p.WidthSupported, _ = widthSup.At(i)
		p.SpeedSupported, _ = speedSup.At(i)

		t.ports[key] = p
		t.portOrder = append(t.portOrder, key)
		t.nodePorts[guid] = append(t.nodePorts[guid], key)

		// switch ports share the switch's port GUID and LID; only
		// sharing across different nodes is a defect
		if p.GUID != "" {
			addOwner(portGUIDOwners, p.GUID, guid)
		}
		if p.LID > 0 {
			addOwner(lidOwners, p.LID, guid)
		}
	}

	for pg, owners := range portGUIDOwners {
		if len(owners) > 1 {
			t.dupPortGUIDs[pg] = sortedKeys(owners)
		}
	}
	for lid, owners := range lidOwners {
		if len(owners) > 1 {
			t.dupLIDs[lid] = sortedKeys(owners)
		}
	}
}

func addOwner[K comparable](m map[K]map[string]struct{}, key K, owner string) {
	owners, ok := m[key]
	if !ok {
		owners = make(map[string]struct{})
		m[key] = owners
	}
	owners[owner] = struct{}{}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (t *Topology) addLinks(tbl *dump.Table) {
	g1 := tbl.Strings("NodeGuid1")
	p1 := tbl.Ints("PortNum1")
	g2 := tbl.Strings("NodeGuid2")
	p2 := tbl.Ints("PortNum2")

	seen := make(map[domain.Link]struct{})
	conflicts := make(map[domain.PortKey]map[domain.PortKey]struct{})

	for i := 0; i < tbl.Len(); i++ {
		a, ok1 := g1.At(i)
		ap, ok2 := p1.At(i)
		b, ok3 := g2.At(i)
		bp, ok4 := p2.At(i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		x := domain.PortKey{GUID: a, Port: int(ap)}
		y := domain.PortKey{GUID: b, Port: int(bp)}

		link := domain.NewLink(x, y)
		if _, dup := seen[link]; dup {
			continue
		}

		cx := t.hasConflict(x, y, conflicts)
		cy := t.hasConflict(y, x, conflicts)
		if cx || cy {
			continue
		}

		seen[link] = struct{}{}
		t.peers[x] = y
		t.peers[y] = x
		t.links = append(t.links, link)
	}

	for port, peers := range conflicts {
		c := LinkConflict{Port: port}
		for p := range peers {
			c.Peers = append(c.Peers, p)
		}
		slices.SortFunc(c.Peers, domain.PortKey.Compare)
		t.conflicts = append(t.conflicts, c)
	}
}

// hasConflict records and reports a port already linked to a different peer
func (t *Topology) hasConflict(port, peer domain.PortKey, conflicts map[domain.PortKey]map[domain.PortKey]struct{}) bool {
	existing, linked := t.peers[port]
	if !linked || existing == peer {
		return false
	}
	set, ok := conflicts[port]
	if !ok {
		set = map[domain.PortKey]struct{}{existing: {}}
		conflicts[port] = set
	}
	set[peer] = struct{}{}
	return true
}

func (t *Topology) finish() {
	slices.Sort(t.nodeOrder)
	slices.SortFunc(t.portOrder, domain.PortKey.Compare)
	slices.SortFunc(t.links, func(a, b domain.Link) int {
		if c := a.A.Compare(b.A); c != 0 {
			return c
		}
		return a.B.Compare(b.B)
	})
	for guid := range t.nodePorts {
		slices.SortFunc(t.nodePorts[guid], domain.PortKey.Compare)
	}
	slices.SortFunc(t.conflicts, func(a, b LinkConflict) int {
		return a.Port.Compare(b.Port)
	})
	slices.Sort(t.unavailable)
}

// NodeName returns the display name of a node, or the GUID when unknown
func (t *Topology) NodeName(guid string) string {
	if n, ok := t.nodes[guid]; ok {
		return n.DisplayName()
	}
	return guid
}

// NodeKind returns the kind of a node; unknown GUIDs are "other"
func (t *Topology) NodeKind(guid string) domain.NodeKind {
	if n, ok := t.nodes[guid]; ok {
		return n.Kind
	}
	return domain.NodeKindOther
}

// Node returns the node for a GUID
func (t *Topology) Node(guid string) (*domain.Node, bool) {
	n, ok := t.nodes[guid]
	return n, ok
}

// Port returns the port for a key
func (t *Topology) Port(key domain.PortKey) (*domain.Port, bool) {
	p, ok := t.ports[key]
	return p, ok
}

// PeerOf returns the port on the other end of a link
func (t *Topology) PeerOf(guid string, port int) (domain.PortKey, bool) {
	p, ok := t.peers[domain.PortKey{GUID: guid, Port: port}]
	return p, ok
}

// Nodes returns all nodes ordered by GUID
func (t *Topology) Nodes() []*domain.Node {
	out := make([]*domain.Node, 0, len(t.nodeOrder))
	for _, g := range t.nodeOrder {
		out = append(out, t.nodes[g])
	}
	return out
}

// Ports returns all ports ordered by key
func (t *Topology) Ports() []*domain.Port {
	out := make([]*domain.Port, 0, len(t.portOrder))
	for _, k := range t.portOrder {
		out = append(out, t.ports[k])
	}
	return out
}

// PortsOf returns the ports of one node ordered by port number
func (t *Topology) PortsOf(guid string) []*domain.Port {
	keys := t.nodePorts[guid]
	out := make([]*domain.Port, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.ports[k])
	}
	return out
}

// Links returns all links in canonical order
func (t *Topology) Links() []domain.Link {
	return slices.Clone(t.links)
}

// NodeCount returns the number of distinct nodes
func (t *Topology) NodeCount() int { return len(t.nodes) }

// PortCount returns the number of distinct ports
func (t *Topology) PortCount() int { return len(t.ports) }

// LinkCount returns the number of distinct links
func (t *Topology) LinkCount() int { return len(t.links) }

// DuplicateGUIDs maps each node GUID declared more than once to its occurrence count
func (t *Topology) DuplicateGUIDs() map[string]int {
	out := make(map[string]int, len(t.dupGUIDs))
	for k, v := range t.dupGUIDs {
		out[k] = v
	}
	return out
}

// DuplicateDescriptions maps each node description shared by several GUIDs to those GUIDs
func (t *Topology) DuplicateDescriptions() map[string][]string {
	return cloneGroups(t.dupDescs)
}

// DuplicatePortGUIDs maps each port GUID used by several nodes to those node GUIDs
func (t *Topology) DuplicatePortGUIDs() map[string][]string {
	return cloneGroups(t.dupPortGUIDs)
}

// DuplicateLIDs maps each LID used by several nodes to those node GUIDs
func (t *Topology) DuplicateLIDs() map[string][]string {
	out := make(map[string][]string, len(t.dupLIDs))
	for lid, guids := range t.dupLIDs {
		out[strconv.FormatInt(lid, 10)] = slices.Clone(guids)
	}
	return out
}

// Conflicts returns ports linked to more than one peer
func (t *Topology) Conflicts() []LinkConflict {
	return slices.Clone(t.conflicts)
}

// Unavailable returns the topology tables that were absent or unreadable
func (t *Topology) Unavailable() []string {
	return slices.Clone(t.unavailable)
}

func cloneGroups(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}
