package analyzer

import (
	"context"
	"math"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
)

// Balance flags switches whose traffic is spread very unevenly across
// their active ports, measured by the coefficient of variation
type Balance struct {
	cfg BalanceSettings
}

// NewBalance creates a traffic balance analyzer
func NewBalance(cfg BalanceSettings) *Balance {
	return &Balance{cfg: cfg}
}

func (a *Balance) Name() string { return "balance" }

func (a *Balance) Tables() []string { return []string{dump.TablePMInfo} }

func (a *Balance) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	tbl, ok, err := in.Table(ctx, dump.TablePMInfo)
	if err != nil || !ok {
		return nil, err
	}

	keys := portsOf(tbl, "NodeGuid", "PortNum")
	xmit := tbl.Uints("PortXmitData")
	rcv := tbl.Uints("PortRcvData")

	traffic := make(map[domain.PortKey]float64, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}
		x, ok1 := xmit.At(i)
		r, ok2 := rcv.At(i)
		if !ok1 && !ok2 {
			continue
		}
		traffic[key] = float64(x) + float64(r)
	}

	var out []domain.Anomaly
	for _, node := range in.Topology.Nodes() {
		if node.Kind != domain.NodeKindSwitch {
			continue
		}

		var values []float64
		var busiest domain.PortKey
		peak := -1.0
		for _, p := range in.Topology.PortsOf(node.GUID) {
			// port 0 is the switch management port
			if p.Key.Port == 0 || !p.Active() {
				continue
			}
			v, ok := traffic[p.Key]
			if !ok {
				continue
			}
			values = append(values, v)
			if v > peak {
				peak, busiest = v, p.Key
			}
		}
		if len(values) < a.cfg.MinPorts {
			continue
		}

		mean, cv := coefficientOfVariation(values)
		if !(cv > a.cfg.MaxCV) {
			continue
		}
		out = append(out, newAnomaly(a.Name(), domain.NodeEntity(node.GUID), domain.KindTrafficImbalance,
			domain.SeverityWarning, round(cv), domain.Evidence{
				"ports":          len(values),
				"mean":           round(mean),
				"cv":             round(cv),
				"max_cv":         a.cfg.MaxCV,
				"busiest_port":   busiest.Port,
				"busiest_volume": peak,
			}))
	}
	return out, nil
}

// coefficientOfVariation returns the mean and the population standard
// deviation over the mean; an all-zero sample has no variation
func coefficientOfVariation(values []float64) (mean, cv float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0, 0
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq/float64(len(values))) / mean
}
