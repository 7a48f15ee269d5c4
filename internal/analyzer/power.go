package analyzer

import (
	"context"
	"maps"
	"slices"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/numeric"
)

// Power flags failed or overloaded power supplies and transceiver modules
// running outside their supply voltage window
type Power struct {
	cfg PowerSettings
}

// NewPower creates a power analyzer
func NewPower(cfg PowerSettings) *Power {
	return &Power{cfg: cfg}
}

func (a *Power) Name() string { return "power" }

func (a *Power) Tables() []string {
	return []string{dump.TablePowerSupplies, dump.TableCableInfo}
}

type psuState struct {
	failed   []int64
	maxLoad  float64
	loadPSU  int64
	watts    float64
	capacity float64
}

func (a *Power) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	var out []domain.Anomaly

	psu, ok, err := in.Table(ctx, dump.TablePowerSupplies)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, a.supplies(psu)...)
	}

	cable, ok, err := in.Table(ctx, dump.TableCableInfo)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, a.voltages(cable)...)
	}

	return out, nil
}

func (a *Power) supplies(tbl *dump.Table) []domain.Anomaly {
	guids := tbl.Strings("NodeGuid")
	index := tbl.Ints("PSUIndex")
	present := tbl.Ints("Present")
	dcOK := tbl.Ints("DCOk")
	acOK := tbl.Ints("ACOk")
	watts := tbl.Floats("PowerWatts")
	maxWatts := tbl.Floats("MaxWatts")

	nodes := make(map[string]*psuState)
	for i := 0; i < tbl.Len(); i++ {
		guid, ok1 := guids.At(i)
		idx, ok2 := index.At(i)
		if !ok1 || !ok2 || guid == "" {
			continue
		}
		// an empty bay is not a fault
		if p, ok := present.At(i); ok && p == 0 {
			continue
		}

		st := nodes[guid]
		if st == nil {
			st = &psuState{}
			nodes[guid] = st
		}

		dc, okDC := dcOK.At(i)
		ac, okAC := acOK.At(i)
		if (okDC && dc == 0) || (okAC && ac == 0) {
			st.failed = append(st.failed, idx)
			continue
		}

		w, ok1 := watts.At(i)
		m, ok2 := maxWatts.At(i)
		if !ok1 || !ok2 || m <= 0 || !numeric.Finite(w) || !numeric.Finite(m) {
			continue
		}
		if load := w / m; load > st.maxLoad {
			st.maxLoad, st.loadPSU, st.watts, st.capacity = load, idx, w, m
		}
	}

	var out []domain.Anomaly
	for _, guid := range slices.Sorted(maps.Keys(nodes)) {
		st := nodes[guid]
		entity := domain.NodeEntity(guid)

		if len(st.failed) > 0 {
			slices.Sort(st.failed)
			out = append(out, newAnomaly(a.Name(), entity, domain.KindPSUFault, domain.SeverityCritical,
				a.cfg.FaultWeight*float64(len(st.failed)), domain.Evidence{
					"failed_psus": st.failed,
					"count":       len(st.failed),
				}))
		}

		if st.maxLoad > a.cfg.LoadRatio {
			out = append(out, newAnomaly(a.Name(), entity, domain.KindPSULoad, domain.SeverityWarning,
				round((st.maxLoad-a.cfg.LoadRatio)*a.cfg.LoadWeight), domain.Evidence{
					"psu":        st.loadPSU,
					"load_ratio": round(st.maxLoad),
					"watts":      st.watts,
					"max_watts":  st.capacity,
					"threshold":  a.cfg.LoadRatio,
				}))
		}
	}
	return out
}

func (a *Power) voltages(tbl *dump.Table) []domain.Anomaly {
	keys := portsOf(tbl, "NodeGuid", "PortNum")
	volts := tbl.Floats("SupplyVoltage")

	var out []domain.Anomaly
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}
		v, ok := volts.At(i)
		// zero means the module does not report voltage
		if !ok || v <= 0 || !numeric.Finite(v) {
			continue
		}

		var distance, limit float64
		switch {
		case v < a.cfg.VoltageMin:
			distance, limit = a.cfg.VoltageMin-v, a.cfg.VoltageMin
		case v > a.cfg.VoltageMax:
			distance, limit = v-a.cfg.VoltageMax, a.cfg.VoltageMax
		default:
			continue
		}

		out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindModuleVoltage, domain.SeverityWarning,
			round(distance*a.cfg.VoltageWeight), domain.Evidence{
				"supply_voltage": v,
				"threshold":      limit,
				"window":         []float64{a.cfg.VoltageMin, a.cfg.VoltageMax},
			}))
	}
	return out
}
