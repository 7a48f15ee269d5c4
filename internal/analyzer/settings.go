package analyzer

// Settings holds the thresholds of every analyzer.
// Unmarshal configuration into DefaultSettings() so omitted keys keep
// their defaults, then call ApplyDefaults to repair invalid values.
type Settings struct {
	// Disabled lists analyzer names that are not registered
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	BER        BERSettings        `yaml:"ber" json:"ber"`
	PortErrors PortErrorsSettings `yaml:"port_errors" json:"port_errors"`
	Stability  StabilitySettings  `yaml:"stability" json:"stability"`
	Congestion CongestionSettings `yaml:"congestion" json:"congestion"`
	Thermal    ThermalSettings    `yaml:"thermal" json:"thermal"`
	Power      PowerSettings      `yaml:"power" json:"power"`
	Identity   IdentitySettings   `yaml:"identity" json:"identity"`
	Topology   TopologySettings   `yaml:"topology" json:"topology"`
	Balance    BalanceSettings    `yaml:"balance" json:"balance"`
	Latency    LatencySettings    `yaml:"latency" json:"latency"`
}

// BERSettings configures the bit error rate analyzer
type BERSettings struct {
	// MagnitudeThreshold: a magnitude strictly below it is a candidate fault
	MagnitudeThreshold int `yaml:"magnitude_threshold" json:"magnitude_threshold"`
	// MinErrorEvents corroborating error events required to flag a port
	MinErrorEvents     uint64  `yaml:"min_error_events" json:"min_error_events"`
	Weight             float64 `yaml:"weight" json:"weight"`
	InconsistentWeight float64 `yaml:"inconsistent_weight" json:"inconsistent_weight"`
}

// PortErrorsSettings configures the port error counter analyzer
type PortErrorsSettings struct {
	// CriticalTotal summed error count at which a port becomes critical
	CriticalTotal uint64 `yaml:"critical_total" json:"critical_total"`
}

// StabilitySettings configures the link stability analyzer
type StabilitySettings struct {
	FlapThreshold     uint64  `yaml:"flap_threshold" json:"flap_threshold"`
	RecoveryThreshold uint64  `yaml:"recovery_threshold" json:"recovery_threshold"`
	DownWeight        float64 `yaml:"down_weight" json:"down_weight"`
	FlapWeight        float64 `yaml:"flap_weight" json:"flap_weight"`
	MaxWeight         float64 `yaml:"max_weight" json:"max_weight"`
}

// CongestionSettings configures the congestion analyzer
type CongestionSettings struct {
	WarningRatio  float64 `yaml:"warning_ratio" json:"warning_ratio"`
	CriticalRatio float64 `yaml:"critical_ratio" json:"critical_ratio"`
	MaxWeight     float64 `yaml:"max_weight" json:"max_weight"`
}

// ThermalSettings configures the thermal and optical analyzer
type ThermalSettings struct {
	TempWarning   float64 `yaml:"temp_warning" json:"temp_warning"`
	TempCritical  float64 `yaml:"temp_critical" json:"temp_critical"`
	RxWarningDBm  float64 `yaml:"rx_warning_dbm" json:"rx_warning_dbm"`
	RxCriticalDBm float64 `yaml:"rx_critical_dbm" json:"rx_critical_dbm"`
	// weight per degree / per dB past the warning threshold, whichever
	// level is breached
	TempWeight float64 `yaml:"temp_weight" json:"temp_weight"`
	RxWeight   float64 `yaml:"rx_weight" json:"rx_weight"`
}

// PowerSettings configures the power analyzer
type PowerSettings struct {
	LoadRatio     float64 `yaml:"load_ratio" json:"load_ratio"`
	VoltageMin    float64 `yaml:"voltage_min" json:"voltage_min"`
	VoltageMax    float64 `yaml:"voltage_max" json:"voltage_max"`
	FaultWeight   float64 `yaml:"fault_weight" json:"fault_weight"`
	LoadWeight    float64 `yaml:"load_weight" json:"load_weight"`
	VoltageWeight float64 `yaml:"voltage_weight" json:"voltage_weight"`
}

// IdentitySettings configures the duplicate identity analyzer
type IdentitySettings struct {
	GUIDWeight float64 `yaml:"guid_weight" json:"guid_weight"`
	DescWeight float64 `yaml:"desc_weight" json:"desc_weight"`
}

// TopologySettings configures the topology deviation analyzer
type TopologySettings struct {
	ConflictWeight float64 `yaml:"conflict_weight" json:"conflict_weight"`
	DanglingWeight float64 `yaml:"dangling_weight" json:"dangling_weight"`
	InactiveWeight float64 `yaml:"inactive_weight" json:"inactive_weight"`
	DegradedWeight float64 `yaml:"degraded_weight" json:"degraded_weight"`
}

// BalanceSettings configures the traffic balance analyzer
type BalanceSettings struct {
	MinPorts int     `yaml:"min_ports" json:"min_ports"`
	MaxCV    float64 `yaml:"max_cv" json:"max_cv"`
}

// LatencySettings configures the latency analyzer
type LatencySettings struct {
	WarningMicros  float64 `yaml:"warning_us" json:"warning_us"`
	CriticalMicros float64 `yaml:"critical_us" json:"critical_us"`
	// weight per microsecond past the warning threshold
	Weight    float64 `yaml:"weight" json:"weight"`
	MaxWeight float64 `yaml:"max_weight" json:"max_weight"`
}

// DefaultSettings returns the built-in thresholds
func DefaultSettings() Settings {
	return Settings{
		BER: BERSettings{
			MagnitudeThreshold: 14,
			MinErrorEvents:     1,
			Weight:             2.0,
			InconsistentWeight: 0.5,
		},
		PortErrors: PortErrorsSettings{
			CriticalTotal: 1000,
		},
		Stability: StabilitySettings{
			FlapThreshold:     5,
			RecoveryThreshold: 10,
			DownWeight:        0.5,
			FlapWeight:        2.0,
			MaxWeight:         20,
		},
		Congestion: CongestionSettings{
			WarningRatio:  0.01,
			CriticalRatio: 0.05,
			MaxWeight:     10,
		},
		Thermal: ThermalSettings{
			TempWarning:   70,
			TempCritical:  80,
			RxWarningDBm:  -10,
			RxCriticalDBm: -14,
			TempWeight:    0.5,
			RxWeight:      0.5,
		},
		Power: PowerSettings{
			LoadRatio:     0.9,
			VoltageMin:    3.135,
			VoltageMax:    3.465,
			FaultWeight:   3.0,
			LoadWeight:    10,
			VoltageWeight: 10,
		},
		Identity: IdentitySettings{
			GUIDWeight: 3.0,
			DescWeight: 1.0,
		},
		Topology: TopologySettings{
			ConflictWeight: 3.0,
			DanglingWeight: 2.0,
			InactiveWeight: 1.0,
			DegradedWeight: 1.0,
		},
		Balance: BalanceSettings{
			MinPorts: 4,
			MaxCV:    1.0,
		},
		Latency: LatencySettings{
			WarningMicros:  5,
			CriticalMicros: 20,
			Weight:         0.25,
			MaxWeight:      10,
		},
	}
}

// ApplyDefaults replaces values that cannot be meaningful.
// Zero is kept where it is a valid setting (BER threshold, minimum events).
func (s *Settings) ApplyDefaults() {
	d := DefaultSettings()

	if s.BER.MagnitudeThreshold < 0 {
		s.BER.MagnitudeThreshold = d.BER.MagnitudeThreshold
	}
	positive(&s.BER.Weight, d.BER.Weight)
	positive(&s.BER.InconsistentWeight, d.BER.InconsistentWeight)

	if s.PortErrors.CriticalTotal == 0 {
		s.PortErrors.CriticalTotal = d.PortErrors.CriticalTotal
	}

	if s.Stability.FlapThreshold == 0 {
		s.Stability.FlapThreshold = d.Stability.FlapThreshold
	}
	if s.Stability.RecoveryThreshold == 0 {
		s.Stability.RecoveryThreshold = d.Stability.RecoveryThreshold
	}
	positive(&s.Stability.DownWeight, d.Stability.DownWeight)
	positive(&s.Stability.FlapWeight, d.Stability.FlapWeight)
	positive(&s.Stability.MaxWeight, d.Stability.MaxWeight)

	positive(&s.Congestion.WarningRatio, d.Congestion.WarningRatio)
	positive(&s.Congestion.CriticalRatio, d.Congestion.CriticalRatio)
	if s.Congestion.CriticalRatio < s.Congestion.WarningRatio {
		s.Congestion.CriticalRatio = s.Congestion.WarningRatio
	}
	positive(&s.Congestion.MaxWeight, d.Congestion.MaxWeight)

	if s.Thermal.TempCritical < s.Thermal.TempWarning {
		s.Thermal.TempCritical = s.Thermal.TempWarning
	}
	if s.Thermal.RxCriticalDBm > s.Thermal.RxWarningDBm {
		s.Thermal.RxCriticalDBm = s.Thermal.RxWarningDBm
	}
	positive(&s.Thermal.TempWeight, d.Thermal.TempWeight)
	positive(&s.Thermal.RxWeight, d.Thermal.RxWeight)

	positive(&s.Power.LoadRatio, d.Power.LoadRatio)
	if s.Power.VoltageMax <= s.Power.VoltageMin {
		s.Power.VoltageMin, s.Power.VoltageMax = d.Power.VoltageMin, d.Power.VoltageMax
	}
	positive(&s.Power.FaultWeight, d.Power.FaultWeight)
	positive(&s.Power.LoadWeight, d.Power.LoadWeight)
	positive(&s.Power.VoltageWeight, d.Power.VoltageWeight)

	positive(&s.Identity.GUIDWeight, d.Identity.GUIDWeight)
	positive(&s.Identity.DescWeight, d.Identity.DescWeight)

	positive(&s.Topology.ConflictWeight, d.Topology.ConflictWeight)
	positive(&s.Topology.DanglingWeight, d.Topology.DanglingWeight)
	positive(&s.Topology.InactiveWeight, d.Topology.InactiveWeight)
	positive(&s.Topology.DegradedWeight, d.Topology.DegradedWeight)

	if s.Balance.MinPorts < 2 {
		s.Balance.MinPorts = d.Balance.MinPorts
	}
	positive(&s.Balance.MaxCV, d.Balance.MaxCV)

	positive(&s.Latency.WarningMicros, d.Latency.WarningMicros)
	positive(&s.Latency.CriticalMicros, d.Latency.CriticalMicros)
	if s.Latency.CriticalMicros < s.Latency.WarningMicros {
		s.Latency.CriticalMicros = s.Latency.WarningMicros
	}
	positive(&s.Latency.Weight, d.Latency.Weight)
	positive(&s.Latency.MaxWeight, d.Latency.MaxWeight)
}

func positive(v *float64, def float64) {
	if !(*v > 0) {
		*v = def
	}
}
