package analyzer

import (
	"context"
	"maps"
	"slices"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/numeric"
)

// Thermal compares module and sensor temperatures and optical RX power
// against warning and critical thresholds
type Thermal struct {
	cfg ThermalSettings
}

// NewThermal creates a thermal and optical analyzer
func NewThermal(cfg ThermalSettings) *Thermal {
	return &Thermal{cfg: cfg}
}

func (a *Thermal) Name() string { return "thermal" }

func (a *Thermal) Tables() []string {
	return []string{dump.TableCableInfo, dump.TableTempSensing, dump.TableTelemetry}
}

type reading struct {
	value  float64
	source string
	sensor *int64
}

type portReadings struct {
	temp *reading
	rx   *reading
}

func (a *Thermal) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	ports := make(map[domain.PortKey]*portReadings)

	collect := func(table, guidCol, portCol, tempCol, rxCol string) error {
		tbl, ok, err := in.Table(ctx, table)
		if err != nil || !ok {
			return err
		}
		keys := portsOf(tbl, guidCol, portCol)
		temps := tbl.Floats(tempCol)
		rx := tbl.Floats(rxCol)
		for i := 0; i < tbl.Len(); i++ {
			key, ok := keys.at(i)
			if !ok {
				continue
			}
			r := ports[key]
			if r == nil {
				r = &portReadings{}
				ports[key] = r
			}
			// earlier tables take precedence per reading
			if v, ok := temps.At(i); ok && r.temp == nil && numeric.Finite(v) {
				r.temp = &reading{value: v, source: table}
			}
			if v, ok := rx.At(i); ok && r.rx == nil && numeric.Finite(v) {
				r.rx = &reading{value: v, source: table}
			}
		}
		return nil
	}

	if err := collect(dump.TableCableInfo, "NodeGuid", "PortNum", "Temperature", "RxPower"); err != nil {
		return nil, err
	}
	if err := collect(dump.TableTelemetry, "node_guid", "port_num", "temperature_c", "rx_power_mw"); err != nil {
		return nil, err
	}

	var out []domain.Anomaly
	for _, key := range slices.SortedFunc(maps.Keys(ports), domain.PortKey.Compare) {
		r := ports[key]
		if r.temp != nil {
			if an, ok := a.overTemperature(key.Entity(), *r.temp); ok {
				out = append(out, an)
			}
		}
		if r.rx != nil {
			if an, ok := a.lowRxPower(key.Entity(), *r.rx); ok {
				out = append(out, an)
			}
		}
	}

	sensors, err := a.hottestSensors(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, guid := range slices.Sorted(maps.Keys(sensors)) {
		if an, ok := a.overTemperature(domain.NodeEntity(guid), sensors[guid]); ok {
			out = append(out, an)
		}
	}

	return in.Locate(out), nil
}

// hottestSensors returns the highest sensor reading per node
func (a *Thermal) hottestSensors(ctx context.Context, in *Input) (map[string]reading, error) {
	tbl, ok, err := in.Table(ctx, dump.TableTempSensing)
	if err != nil || !ok {
		return nil, err
	}
	guids := tbl.Strings("NodeGuid")
	temps := tbl.Floats("Temperature")
	indexes := tbl.Ints("SensorIndex")

	out := make(map[string]reading)
	for i := 0; i < tbl.Len(); i++ {
		guid, ok1 := guids.At(i)
		v, ok2 := temps.At(i)
		if !ok1 || !ok2 || guid == "" || !numeric.Finite(v) {
			continue
		}
		if cur, seen := out[guid]; !seen || v > cur.value {
			r := reading{value: v, source: dump.TableTempSensing}
			if idx, ok := indexes.At(i); ok {
				r.sensor = &idx
			}
			out[guid] = r
		}
	}
	return out, nil
}

func (a *Thermal) overTemperature(entity domain.EntityKey, r reading) (domain.Anomaly, bool) {
	var sev domain.Severity
	var limit float64
	switch {
	case r.value > a.cfg.TempCritical:
		sev, limit = domain.SeverityCritical, a.cfg.TempCritical
	case r.value > a.cfg.TempWarning:
		sev, limit = domain.SeverityWarning, a.cfg.TempWarning
	default:
		return domain.Anomaly{}, false
	}

	ev := domain.Evidence{
		"temperature_c": r.value,
		"threshold_c":   limit,
		"source":        r.source,
	}
	if r.sensor != nil {
		ev["sensor_index"] = *r.sensor
	}
	return newAnomaly(a.Name(), entity, domain.KindOverTemperature, sev,
		round((r.value-a.cfg.TempWarning)*a.cfg.TempWeight), ev), true
}

func (a *Thermal) lowRxPower(entity domain.EntityKey, r reading) (domain.Anomaly, bool) {
	// zero power is a dark port, not a weak signal
	if r.value <= 0 {
		return domain.Anomaly{}, false
	}
	dbm := numeric.MilliwattToDBm(r.value)

	var sev domain.Severity
	var limit float64
	switch {
	case dbm < a.cfg.RxCriticalDBm:
		sev, limit = domain.SeverityCritical, a.cfg.RxCriticalDBm
	case dbm < a.cfg.RxWarningDBm:
		sev, limit = domain.SeverityWarning, a.cfg.RxWarningDBm
	default:
		return domain.Anomaly{}, false
	}

	return newAnomaly(a.Name(), entity, domain.KindLowRxPower, sev,
		round((a.cfg.RxWarningDBm-dbm)*a.cfg.RxWeight), domain.Evidence{
			"rx_power_mw":   r.value,
			"rx_power_dbm":  numeric.Round(dbm, 2),
			"threshold_dbm": limit,
			"source":        r.source,
		}), true
}
