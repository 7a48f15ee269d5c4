package domain

// Category groups anomaly kinds for scoring
type Category string

const (
	CategoryBER        Category = "ber"
	CategoryErrors     Category = "errors"
	CategoryCongestion Category = "congestion"
	CategoryTopology   Category = "topology"
	CategoryLatency    Category = "latency"
	CategoryBalance    Category = "balance"
	CategoryConfig     Category = "config"
	CategoryOther      Category = "other"
)

// Categories returns every scoring category in report order
func Categories() []Category {
	return []Category{
		CategoryBER,
		CategoryErrors,
		CategoryCongestion,
		CategoryTopology,
		CategoryLatency,
		CategoryBalance,
		CategoryConfig,
		CategoryOther,
	}
}

// Kind identifies a class of defect an analyzer can raise
type Kind string

const (
	KindHighBER         Kind = "high-ber"
	KindInconsistentBER Kind = "inconsistent-ber"

	KindPortErrors   Kind = "port-errors"
	KindLinkDown     Kind = "link-down"
	KindLinkFlap     Kind = "link-flap"
	KindLinkRecovery Kind = "link-recovery"

	KindXmitWait      Kind = "xmit-wait"
	KindECNMarked     Kind = "ecn-marked"
	KindCreditTimeout Kind = "credit-timeout"

	KindDuplicateGUID     Kind = "duplicate-guid"
	KindDuplicatePortGUID Kind = "duplicate-port-guid"
	KindDuplicateLID      Kind = "duplicate-lid"
	KindDuplicateNodeDesc Kind = "duplicate-node-desc"
	KindSpeedDegraded     Kind = "speed-degraded"
	KindWidthDegraded     Kind = "width-degraded"
	KindDanglingLink      Kind = "dangling-link"
	KindLinkConflict      Kind = "link-conflict"
	KindInactiveLinkPort  Kind = "inactive-link-port"

	KindHighLatency Kind = "high-latency"

	KindTrafficImbalance Kind = "traffic-imbalance"

	KindFirmwareMismatch     Kind = "fw-mismatch"
	KindFirmwareInconsistent Kind = "fw-inconsistent"
	KindUnsupportedIdentity  Kind = "unsupported-identity"

	KindOverTemperature Kind = "over-temperature"
	KindLowRxPower      Kind = "low-rx-power"
	KindPSUFault        Kind = "psu-fault"
	KindPSULoad         Kind = "psu-load"
	KindModuleVoltage   Kind = "module-voltage"
)

var kindCategories = map[Kind]Category{
	KindHighBER:         CategoryBER,
	KindInconsistentBER: CategoryBER,

	KindPortErrors:   CategoryErrors,
	KindLinkDown:     CategoryErrors,
	KindLinkFlap:     CategoryErrors,
	KindLinkRecovery: CategoryErrors,

	KindXmitWait:      CategoryCongestion,
	KindECNMarked:     CategoryCongestion,
	KindCreditTimeout: CategoryCongestion,

	KindDuplicateGUID:     CategoryTopology,
	KindDuplicatePortGUID: CategoryTopology,
	KindDuplicateLID:      CategoryTopology,
	KindDuplicateNodeDesc: CategoryTopology,
	KindSpeedDegraded:     CategoryTopology,
	KindWidthDegraded:     CategoryTopology,
	KindDanglingLink:      CategoryTopology,
	KindLinkConflict:      CategoryTopology,
	KindInactiveLinkPort:  CategoryTopology,

	KindHighLatency: CategoryLatency,

	KindTrafficImbalance: CategoryBalance,

	KindFirmwareMismatch:     CategoryConfig,
	KindFirmwareInconsistent: CategoryConfig,
	KindUnsupportedIdentity:  CategoryConfig,

	KindOverTemperature: CategoryOther,
	KindLowRxPower:      CategoryOther,
	KindPSUFault:        CategoryOther,
	KindPSULoad:         CategoryOther,
	KindModuleVoltage:   CategoryOther,
}

// Category returns the fixed scoring category of the kind.
// Unknown kinds fall into the "other" category.
func (k Kind) Category() Category {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryOther
}

// Known reports whether the kind is part of the fixed enumeration
func (k Kind) Known() bool {
	_, ok := kindCategories[k]
	return ok
}
