// Package analyzer implements the domain analyzers that turn dump tables
// and the resolved topology into anomaly records.
//
// Every analyzer implements the Analyzer interface and is registered
// explicitly with a Registry at startup. Analyzers are pure: they read
// tables through their Input and the shared Topology, never mutate either,
// and never see another analyzer's output.
//
// # Missing data
//
// Most tables are optional. Input.Table reports an absent or unreadable
// table as an ordinary (nil, false, nil) result and records it in the
// analyzer's Diagnostics, so the run can report how many signals were
// unavailable instead of treating them as healthy.
//
// # Analyzers
//
//	ber             bit error rate and BER ordering (PHY_BER, PM_INFO)
//	port-errors     receive/transmit error counters (PM_INFO)
//	link-stability  link down and flap counters (PM_INFO)
//	congestion      transmit wait ratio, ECN, credit timeouts (PM_INFO, CC_PORT_COUNTERS)
//	thermal         module/sensor temperature and optical RX power
//	power           PSU faults, PSU load, module supply voltage
//	compliance      firmware and identity against a reference table
//	identity        duplicate GUIDs, port GUIDs, LIDs, descriptions
//	topology        link conflicts, dangling links, degraded links
//	balance         traffic spread across switch ports
//	latency         port latency from flat telemetry
//
// All thresholds live in Settings; nothing here is global mutable state.
package analyzer
