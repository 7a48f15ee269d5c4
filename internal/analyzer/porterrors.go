package analyzer

import (
	"context"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
)

// errorCounters are the PM_INFO counters summed into a port's error total.
// Symbol errors are left to the BER analyzer.
var errorCounters = []string{
	"PortRcvErrors",
	"PortRcvRemotePhysicalErrors",
	"PortXmitDiscards",
	"LocalLinkIntegrityErrors",
	"ExcessiveBufferOverrunErrors",
}

// PortErrors flags ports with non-zero receive/transmit error counters
type PortErrors struct {
	cfg PortErrorsSettings
}

// NewPortErrors creates a port error counter analyzer
func NewPortErrors(cfg PortErrorsSettings) *PortErrors {
	return &PortErrors{cfg: cfg}
}

func (a *PortErrors) Name() string { return "port-errors" }

func (a *PortErrors) Tables() []string { return []string{dump.TablePMInfo} }

func (a *PortErrors) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	tbl, ok, err := in.Table(ctx, dump.TablePMInfo)
	if err != nil || !ok {
		return nil, err
	}

	keys := portsOf(tbl, "NodeGuid", "PortNum")
	cols := make([]dump.UintColumn, len(errorCounters))
	for i, name := range errorCounters {
		cols[i] = tbl.Uints(name)
	}

	var out []domain.Anomaly
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}

		var total uint64
		ev := domain.Evidence{}
		for c, col := range cols {
			n, ok := col.At(i)
			if !ok || n == 0 {
				continue
			}
			ev[errorCounters[c]] = n
			if total+n < total {
				total = ^uint64(0)
			} else {
				total += n
			}
		}
		if total == 0 {
			continue
		}

		sev := domain.SeverityWarning
		if total >= a.cfg.CriticalTotal {
			sev = domain.SeverityCritical
		}
		ev["total"] = total
		out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindPortErrors, sev, round(logWeight(total)), ev))
	}
	return in.Locate(out), nil
}
