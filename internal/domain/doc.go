// Package domain defines the core types shared by every fabriclens package.
//
// # Fabric Entities
//
// Node and Port describe what the topology resolver builds from a dump.
// A node is identified by its GUID; a port by its node GUID and port
// number (PortKey). Link joins two PortKeys in canonical order so the
// same cable always compares equal.
//
// # Anomalies
//
// Anomaly is a single finding raised by an analyzer against an EntityKey,
// which names either a node (Port is NoPort) or one of its ports. Each Anomaly has
// a Kind, and the Kind fixes its Category; kinds this package does not
// know fall into CategoryOther. Severity is ordered info < warning <
// critical.
//
// Evidence is a free-form map of the readings behind a finding. Values
// must be JSON-encodable; non-finite floats are replaced before encoding
// by the report package.
//
// # Design Principles
//
//   - Value types with no I/O
//   - Total orderings (EntityKey.Compare, CompareAnomalies) so results are
//     reproducible
//   - No dependency on any other fabriclens package
package domain
