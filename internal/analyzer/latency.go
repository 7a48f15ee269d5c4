package analyzer

import (
	"context"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/numeric"
)

// Latency flags ports whose measured latency in the flat telemetry export
// is above the warning or critical threshold
type Latency struct {
	cfg LatencySettings
}

// NewLatency creates a latency analyzer
func NewLatency(cfg LatencySettings) *Latency {
	return &Latency{cfg: cfg}
}

func (a *Latency) Name() string { return "latency" }

func (a *Latency) Tables() []string { return []string{dump.TableTelemetry} }

func (a *Latency) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	tbl, ok, err := in.Table(ctx, dump.TableTelemetry)
	if err != nil || !ok {
		return nil, err
	}

	keys := portsOf(tbl, "node_guid", "port_num")
	latency := tbl.Floats("latency_us")

	var out []domain.Anomaly
	for i := 0; i < tbl.Len(); i++ {
		key, ok := keys.at(i)
		if !ok {
			continue
		}
		v, ok := latency.At(i)
		if !ok || !numeric.Finite(v) {
			continue
		}

		var sev domain.Severity
		var limit float64
		switch {
		case v > a.cfg.CriticalMicros:
			sev, limit = domain.SeverityCritical, a.cfg.CriticalMicros
		case v > a.cfg.WarningMicros:
			sev, limit = domain.SeverityWarning, a.cfg.WarningMicros
		default:
			continue
		}

		weight := capWeight((v-a.cfg.WarningMicros)*a.cfg.Weight, a.cfg.MaxWeight)
		out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindHighLatency, sev, round(weight), domain.Evidence{
			"latency_us":   v,
			"threshold_us": limit,
		}))
	}
	return in.Locate(out), nil
}
