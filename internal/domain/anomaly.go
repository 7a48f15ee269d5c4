package domain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// NoPort marks an entity key that addresses a whole node
const NoPort = -1

// EntityKey addresses the unit an anomaly attaches to: a node, or a port of a node
type EntityKey struct {
	GUID string
	Port int
}

// NodeEntity returns the entity key for a node
func NodeEntity(guid string) EntityKey {
	return EntityKey{GUID: guid, Port: NoPort}
}

// PortEntity returns the entity key for a port
func PortEntity(guid string, port int) EntityKey {
	return EntityKey{GUID: guid, Port: port}
}

// IsPort reports whether the key addresses a port
func (e EntityKey) IsPort() bool {
	return e.Port != NoPort
}

// String renders guid for nodes and guid/port for ports
func (e EntityKey) String() string {
	if !e.IsPort() {
		return e.GUID
	}
	return e.GUID + "/" + strconv.Itoa(e.Port)
}

// Compare orders entity keys by GUID, node keys before port keys, then port number
func (e EntityKey) Compare(o EntityKey) int {
	if c := strings.Compare(e.GUID, o.GUID); c != 0 {
		return c
	}
	switch {
	case e.Port < o.Port:
		return -1
	case e.Port > o.Port:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler
func (e EntityKey) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *EntityKey) UnmarshalText(text []byte) error {
	s := string(text)
	idx := strings.LastIndexByte(s, '/')
	if idx < 0 {
		*e = NodeEntity(s)
		return nil
	}
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return fmt.Errorf("invalid entity key %q: %w", s, err)
	}
	*e = PortEntity(s[:idx], port)
	return nil
}

// Severity represents how serious an anomaly is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordinal for comparison (higher is more severe)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of two severities
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Evidence is free-form key/value context attached to an anomaly
type Evidence map[string]any

// Clone returns a copy of the evidence map. Nested slices and maps are
// copied too.
func (e Evidence) Clone() Evidence {
	if e == nil {
		return nil
	}
	out := make(Evidence, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies slices and maps nested in an evidence value
func cloneValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Evidence:
		return x.Clone()
	case map[string]any:
		return map[string]any(Evidence(x).Clone())
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(valueOf(cloneValue(rv.Index(i).Interface()), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), valueOf(cloneValue(iter.Value().Interface()), rv.Type().Elem()))
		}
		return out.Interface()
	}
	return v
}

func valueOf(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// Anomaly is a single finding emitted by exactly one analyzer
type Anomaly struct {
	Entity   EntityKey `json:"entity"`
	Kind     Kind      `json:"kind"`
	Severity Severity  `json:"severity"`
	Weight   float64   `json:"weight"`
	Analyzer string    `json:"analyzer"`
	Evidence Evidence  `json:"evidence,omitempty"`
}

// Category returns the scoring category of the anomaly's kind
func (a Anomaly) Category() Category {
	return a.Kind.Category()
}

// Clone returns a copy that shares no mutable state with the original
func (a Anomaly) Clone() Anomaly {
	a.Evidence = a.Evidence.Clone()
	return a
}

// CompareAnomalies orders anomalies by entity, kind, severity (desc), weight (desc), analyzer
func CompareAnomalies(a, b Anomaly) int {
	if c := a.Entity.Compare(b.Entity); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
		return c
	}
	if a.Severity.Rank() != b.Severity.Rank() {
		return b.Severity.Rank() - a.Severity.Rank()
	}
	switch {
	case a.Weight > b.Weight:
		return -1
	case a.Weight < b.Weight:
		return 1
	}
	if c := strings.Compare(a.Analyzer, b.Analyzer); c != 0 {
		return c
	}
	return strings.Compare(fmt.Sprint(a.Evidence), fmt.Sprint(b.Evidence))
}
