package domain

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// NodeKind represents the role of a fabric entity
type NodeKind string

const (
	NodeKindAdapter NodeKind = "adapter"
	NodeKindSwitch  NodeKind = "switch"
	NodeKindOther   NodeKind = "other"
)

// NodeKindFromType maps the dump's numeric node type (1 CA, 2 switch, 3 router)
func NodeKindFromType(t int64) NodeKind {
	switch t {
	case 1:
		return NodeKindAdapter
	case 2:
		return NodeKindSwitch
	default:
		return NodeKindOther
	}
}

// Node represents a fabric entity as declared by the node table.
// Nodes are created once per dataset and never mutated afterwards.
type Node struct {
	GUID            string   `json:"guid"`
	Name            string   `json:"name"`
	Kind            NodeKind `json:"kind"`
	NumPorts        int      `json:"num_ports,omitempty"`
	SystemImageGUID string   `json:"system_image_guid,omitempty"`
	DeviceID        int64    `json:"device_id,omitempty"`
	VendorID        int64    `json:"vendor_id,omitempty"`

	// Firmware and PSID come from the node info table when present
	Firmware string `json:"firmware,omitempty"`
	PSID     string `json:"psid,omitempty"`
}

// DisplayName returns the node description, falling back to the GUID
func (n *Node) DisplayName() string {
	if n == nil {
		return ""
	}
	if strings.TrimSpace(n.Name) == "" {
		return n.GUID
	}
	return n.Name
}

// PortKey identifies a port uniquely within a dataset
type PortKey struct {
	GUID string `json:"guid"`
	Port int    `json:"port"`
}

// String renders the key as guid/port
func (k PortKey) String() string {
	return k.GUID + "/" + strconv.Itoa(k.Port)
}

// Entity returns the anomaly entity key for this port
func (k PortKey) Entity() EntityKey {
	return PortEntity(k.GUID, k.Port)
}

// Compare orders port keys by GUID then port number
func (k PortKey) Compare(o PortKey) int {
	if c := strings.Compare(k.GUID, o.GUID); c != 0 {
		return c
	}
	switch {
	case k.Port < o.Port:
		return -1
	case k.Port > o.Port:
		return 1
	}
	return 0
}

// PortState is the logical port state reported by the subnet manager
type PortState int64

const (
	PortStateUnknown PortState = 0
	PortStateDown    PortState = 1
	PortStateInit    PortState = 2
	PortStateArmed   PortState = 3
	PortStateActive  PortState = 4
)

// String returns a readable port state
func (s PortState) String() string {
	switch s {
	case PortStateDown:
		return "down"
	case PortStateInit:
		return "init"
	case PortStateArmed:
		return "armed"
	case PortStateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Port represents a single port of a node
type Port struct {
	Key      PortKey   `json:"key"`
	GUID     string    `json:"port_guid,omitempty"`
	LID      int64     `json:"lid,omitempty"`
	State    PortState `json:"state"`
	PhyState int64     `json:"phy_state,omitempty"`

	// Raw link encodings; Width and Speed are the active values,
	// the Supported masks are zero when not reported.
	Width          int64 `json:"width,omitempty"`
	Speed          int64 `json:"speed,omitempty"`
	WidthSupported int64 `json:"width_supported,omitempty"`
	SpeedSupported int64 `json:"speed_supported,omitempty"`
}

// Active reports whether the port is in the active state
func (p *Port) Active() bool {
	return p != nil && p.State == PortStateActive
}

// Link is a symmetric relation between two ports.
// A is always the lower of the two keys.
type Link struct {
	A PortKey `json:"a"`
	B PortKey `json:"b"`
}

// NewLink creates a link with canonical endpoint order
func NewLink(x, y PortKey) Link {
	if y.Compare(x) < 0 {
		x, y = y, x
	}
	return Link{A: x, B: y}
}

// String renders the link as a<->b
func (l Link) String() string {
	return fmt.Sprintf("%s<->%s", l.A, l.B)
}

// WidthLanes converts an active link width encoding into a lane count
func WidthLanes(width int64) int {
	switch width {
	case 1:
		return 1
	case 2:
		return 4
	case 4:
		return 8
	case 8:
		return 12
	case 16:
		return 2
	default:
		return 0
	}
}

// HighestWidth returns the widest (most lanes) width set in a supported mask
func HighestWidth(mask int64) int64 {
	var best int64
	for m := uint64(mask); m != 0; m &= m - 1 {
		bit := int64(1) << bits.TrailingZeros64(m)
		if WidthLanes(bit) > WidthLanes(best) {
			best = bit
		}
	}
	return best
}

// HighestSpeed returns the fastest speed set in a supported mask.
// Speed encodings are ordered by bit position.
func HighestSpeed(mask int64) int64 {
	if mask <= 0 {
		return 0
	}
	return int64(1) << (bits.Len64(uint64(mask)) - 1)
}
