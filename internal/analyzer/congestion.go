package analyzer

import (
	"context"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
)

// Congestion flags backpressure: the ratio of transmit wait to transmitted
// data, explicit congestion notifications, and credit timeouts
type Congestion struct {
	cfg CongestionSettings
}

// NewCongestion creates a congestion analyzer
func NewCongestion(cfg CongestionSettings) *Congestion {
	return &Congestion{cfg: cfg}
}

func (a *Congestion) Name() string { return "congestion" }

func (a *Congestion) Tables() []string {
	return []string{dump.TablePMInfo, dump.TableCCPortCounters}
}

func (a *Congestion) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	var out []domain.Anomaly

	pm, ok, err := in.Table(ctx, dump.TablePMInfo)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, a.waitRatio(pm)...)
	}

	cc, ok, err := in.Table(ctx, dump.TableCCPortCounters)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, a.notifications(cc)...)
	}

	return in.Locate(out), nil
}

func (a *Congestion) waitRatio(tbl *dump.Table) []domain.Anomaly {
	keys := portsOf(tbl, "NodeGuid", "PortNum")
	wait := tbl.Uints("PortXmitWait")
	data := tbl.Uints("PortXmitData")

	var out []domain.Anomaly
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}
		w, ok1 := wait.At(i)
		d, ok2 := data.At(i)
		if !ok1 || !ok2 || d == 0 || w == 0 {
			continue
		}

		ratio := float64(w) / float64(d)
		var sev domain.Severity
		switch {
		case ratio > a.cfg.CriticalRatio:
			sev = domain.SeverityCritical
		case ratio > a.cfg.WarningRatio:
			sev = domain.SeverityWarning
		default:
			continue
		}

		weight := capWeight(ratio/a.cfg.WarningRatio, a.cfg.MaxWeight)
		out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindXmitWait, sev, round(weight), domain.Evidence{
			"xmit_wait":      w,
			"xmit_data":      d,
			"ratio":          round(ratio),
			"warning_ratio":  a.cfg.WarningRatio,
			"critical_ratio": a.cfg.CriticalRatio,
		}))
	}
	return out
}

func (a *Congestion) notifications(tbl *dump.Table) []domain.Anomaly {
	keys := portsOf(tbl, "NodeGuid", "PortNum")
	ecn := tbl.Uints("ECNMarked")
	timeouts := tbl.Uints("CreditTimeouts")

	var out []domain.Anomaly
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}
		if n, ok := ecn.At(i); ok && n > 0 {
			out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindECNMarked, domain.SeverityWarning,
				round(logWeight(n)), domain.Evidence{"ecn_marked": n}))
		}
		if n, ok := timeouts.At(i); ok && n > 0 {
			out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindCreditTimeout, domain.SeverityCritical,
				round(logWeight(n)), domain.Evidence{"credit_timeouts": n}))
		}
	}
	return out
}
