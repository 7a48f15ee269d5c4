package analyzer

import (
	"context"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
)

// LinkStability flags ports whose link went down. A handful of drops is a
// link-down warning; at or above the flap threshold the port is flapping.
type LinkStability struct {
	cfg StabilitySettings
}

// NewLinkStability creates a link stability analyzer
func NewLinkStability(cfg StabilitySettings) *LinkStability {
	return &LinkStability{cfg: cfg}
}

func (a *LinkStability) Name() string { return "link-stability" }

func (a *LinkStability) Tables() []string { return []string{dump.TablePMInfo} }

func (a *LinkStability) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	tbl, ok, err := in.Table(ctx, dump.TablePMInfo)
	if err != nil || !ok {
		return nil, err
	}

	keys := portsOf(tbl, "NodeGuid", "PortNum")
	downed := tbl.Uints("LinkDownedCounter")
	recovered := tbl.Uints("LinkErrorRecoveryCounter")

	var out []domain.Anomaly
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}

		if n, ok := downed.At(i); ok && n > 0 {
			ev := domain.Evidence{"link_downed": n, "flap_threshold": a.cfg.FlapThreshold}
			if n < a.cfg.FlapThreshold {
				out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindLinkDown, domain.SeverityWarning,
					round(a.cfg.DownWeight*float64(n)), ev))
			} else {
				w := capWeight(a.cfg.FlapWeight*float64(n), a.cfg.MaxWeight)
				out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindLinkFlap, domain.SeverityCritical,
					round(w), ev))
			}
		}

		if n, ok := recovered.At(i); ok && n >= a.cfg.RecoveryThreshold {
			out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindLinkRecovery, domain.SeverityWarning,
				round(logWeight(n)), domain.Evidence{"link_error_recovery": n, "threshold": a.cfg.RecoveryThreshold}))
		}
	}
	return in.Locate(out), nil
}
