package analyzer

import (
	"context"
	"math"

	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/numeric"
)

// BER flags ports whose bit error rate is too high and ports whose
// raw/effective/symbol rates are out of order
type BER struct {
	cfg BERSettings
}

// NewBER creates a bit error rate analyzer
func NewBER(cfg BERSettings) *BER {
	return &BER{cfg: cfg}
}

func (a *BER) Name() string { return "ber" }

func (a *BER) Tables() []string {
	return []string{dump.TablePhyBER, dump.TablePMInfo}
}

type berPair struct {
	mantissa dump.UintColumn
	exponent dump.IntColumn
}

func (p berPair) at(i int) (*numeric.BER, error) {
	m, ok1 := p.mantissa.At(i)
	e, ok2 := p.exponent.At(i)
	if !ok1 || !ok2 {
		return nil, nil
	}
	b, err := numeric.NewBER(m, e)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (a *BER) Analyze(ctx context.Context, in *Input) ([]domain.Anomaly, error) {
	tbl, ok, err := in.Table(ctx, dump.TablePhyBER)
	if err != nil || !ok {
		return nil, err
	}

	keys := portsOf(tbl, "NodeGuid", "PortNum")
	raw := berPair{tbl.Uints("RawBERMantissa"), tbl.Ints("RawBERExponent")}
	eff := berPair{tbl.Uints("EffBERMantissa"), tbl.Ints("EffBERExponent")}
	sym := berPair{tbl.Uints("SymBERMantissa"), tbl.Ints("SymBERExponent")}
	events := tbl.Uints("ErrorEvents")

	// symbol error counters corroborate rows without an event count
	var symbolErrors map[domain.PortKey]uint64
	loadSymbolErrors := func() error {
		if symbolErrors != nil {
			return nil
		}
		symbolErrors = make(map[domain.PortKey]uint64)
		pm, ok, err := in.Table(ctx, dump.TablePMInfo)
		if err != nil || !ok {
			return err
		}
		pmKeys := portsOf(pm, "NodeGuid", "PortNum")
		counters := pm.Uints("SymbolErrorCounter")
		for i := 0; i < pm.Len(); i++ {
			key, ok := pmKeys.at(i)
			if !ok {
				continue
			}
			if n, ok := counters.At(i); ok {
				symbolErrors[key] = n
			}
		}
		return nil
	}

	var out []domain.Anomaly
	invalid := 0

	for i := 0; i < tbl.Len(); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		key, ok := keys.at(i)
		if !ok {
			continue
		}

		r, errR := raw.at(i)
		e, errE := eff.at(i)
		s, errS := sym.at(i)
		if errR != nil || errE != nil || errS != nil {
			invalid++
			continue
		}

		chosen, source := e, "effective"
		if chosen == nil {
			chosen, source = s, "symbol"
		}
		if chosen == nil {
			chosen, source = r, "raw"
		}

		if chosen != nil {
			count, countSource := events.At(i)
			eventSource := "error_events"
			if !countSource {
				if err := loadSymbolErrors(); err != nil {
					return nil, err
				}
				count, countSource = symbolErrors[key]
				eventSource = "symbol_error_counter"
			}
			if !countSource {
				eventSource = "none"
			}

			rating := numeric.Classify(*chosen, count, a.cfg.MagnitudeThreshold, a.cfg.MinErrorEvents)
			if rating == numeric.RatingCritical {
				out = append(out, a.highBER(key, chosen, source, count, eventSource))
			}
		}

		if !numeric.Ordered(r, e, s) {
			ev := domain.Evidence{}
			for name, b := range map[string]*numeric.BER{"raw_ber": r, "effective_ber": e, "symbol_ber": s} {
				if b != nil {
					ev[name] = b.String()
				}
			}
			out = append(out, newAnomaly(a.Name(), key.Entity(), domain.KindInconsistentBER,
				domain.SeverityWarning, a.cfg.InconsistentWeight, ev))
		}
	}

	in.Skip(dump.TablePhyBER, invalid)
	return in.Locate(out), nil
}

func (a *BER) highBER(key domain.PortKey, b *numeric.BER, source string, events uint64, eventSource string) domain.Anomaly {
	threshold := float64(a.cfg.MagnitudeThreshold)
	mag := float64(b.Magnitude())

	// 1x weight at the threshold, 2x at magnitude zero
	scale := 1.0
	if threshold > 0 {
		scale += math.Max(0, threshold-mag) / threshold
	}

	return newAnomaly(a.Name(), key.Entity(), domain.KindHighBER, domain.SeverityCritical,
		round(a.cfg.Weight*scale), domain.Evidence{
			"ber":           b.String(),
			"log10":         round(b.Log10()),
			"magnitude":     b.Magnitude(),
			"threshold":     a.cfg.MagnitudeThreshold,
			"source":        source,
			"error_events":  events,
			"events_source": eventSource,
		})
}
