package aggregate_test

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabriclens/internal/aggregate"
	"fabriclens/internal/domain"
)

func anomaly(analyzer, guid string, port int, kind domain.Kind, sev domain.Severity, weight float64) domain.Anomaly {
	return domain.Anomaly{
		Entity:   domain.PortEntity(guid, port),
		Kind:     kind,
		Severity: sev,
		Weight:   weight,
		Analyzer: analyzer,
		Evidence: domain.Evidence{"source": analyzer},
	}
}

func TestAggregateSumsAndEscalates(t *testing.T) {
	table := aggregate.Aggregate([]domain.Anomaly{
		anomaly("thermal", "0xa", 1, domain.KindOverTemperature, domain.SeverityWarning, 1.5),
		anomaly("power", "0xa", 1, domain.KindOverTemperature, domain.SeverityCritical, 0.5),
		anomaly("thermal", "0xa", 1, domain.KindOverTemperature, domain.SeverityInfo, 1.0),
		anomaly("ber", "0xb", 2, domain.KindHighBER, domain.SeverityCritical, 2.0),
	})

	require.Len(t, table, 2)

	merged := table[0]
	assert.Equal(t, domain.PortEntity("0xa", 1), merged.Entity)
	assert.Equal(t, domain.KindOverTemperature, merged.Kind)
	assert.Equal(t, domain.CategoryOther, merged.Category)
	assert.Equal(t, domain.SeverityCritical, merged.Severity)
	assert.InDelta(t, 3.0, merged.Weight, 1e-12)
	assert.Equal(t, 3, merged.Count)
	assert.Equal(t, []string{"power", "thermal"}, merged.Analyzers)
	assert.Len(t, merged.Evidence, 3)

	assert.Equal(t, domain.KindHighBER, table[1].Kind)
	assert.Equal(t, domain.CategoryBER, table[1].Category)
}

func TestAggregateOrdering(t *testing.T) {
	table := aggregate.Aggregate([]domain.Anomaly{
		anomaly("a", "0xb", 1, domain.KindLinkDown, domain.SeverityWarning, 1),
		anomaly("a", "0xa", 1, domain.KindLinkDown, domain.SeverityWarning, 1),
		anomaly("a", "0xa", 1, domain.KindECNMarked, domain.SeverityWarning, 1),
		anomaly("a", "0xc", 1, domain.KindLinkDown, domain.SeverityWarning, 5),
	})

	require.Len(t, table, 4)
	assert.Equal(t, "0xc", table[0].Entity.GUID, "heaviest first")
	assert.Equal(t, domain.KindECNMarked, table[1].Kind, "then entity, then kind")
	assert.Equal(t, domain.KindLinkDown, table[2].Kind)
	assert.Equal(t, "0xb", table[3].Entity.GUID)
}

func TestAggregateSanitizesWeights(t *testing.T) {
	table := aggregate.Aggregate([]domain.Anomaly{
		anomaly("a", "0xa", 1, domain.KindLinkDown, domain.SeverityWarning, math.NaN()),
		anomaly("a", "0xa", 1, domain.KindLinkDown, domain.SeverityWarning, -4),
		anomaly("b", "0xa", 1, domain.KindLinkDown, domain.SeverityWarning, 2),
	})
	require.Len(t, table, 1)
	assert.Equal(t, 2.0, table[0].Weight)
	assert.Equal(t, 3, table[0].Count, "sanitized records are still counted")
}

func TestAggregateEmpty(t *testing.T) {
	table := aggregate.Aggregate(nil)
	assert.NotNil(t, table)
	assert.Empty(t, table)
}

func randomAnomalies(r *rand.Rand, n int) []domain.Anomaly {
	analyzers := []string{"ber", "thermal", "congestion", "identity"}
	kinds := []domain.Kind{domain.KindHighBER, domain.KindOverTemperature, domain.KindXmitWait, domain.KindDuplicateGUID}
	sevs := []domain.Severity{domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical}

	out := make([]domain.Anomaly, n)
	for i := range out {
		out[i] = domain.Anomaly{
			Entity:   domain.PortEntity([]string{"0xa", "0xb", "0xc"}[r.Intn(3)], r.Intn(3)),
			Kind:     kinds[r.Intn(len(kinds))],
			Severity: sevs[r.Intn(len(sevs))],
			// irrational-ish weights make float addition order sensitive
			Weight:   r.Float64() * math.Pi * 1e3,
			Analyzer: analyzers[r.Intn(len(analyzers))],
			Evidence: domain.Evidence{"i": r.Intn(5)},
		}
	}
	return out
}

func TestAggregatePermutationInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	records := randomAnomalies(r, 400)
	want := aggregate.Aggregate(records)

	for i := 0; i < 25; i++ {
		shuffled := append([]domain.Anomaly(nil), records...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, aggregate.Aggregate(shuffled), "permutation %d", i)
	}
}

func TestAggregatorMergeOrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	batches := [][]domain.Anomaly{
		randomAnomalies(r, 50),
		randomAnomalies(r, 80),
		randomAnomalies(r, 30),
	}

	build := func(order ...int) aggregate.Table {
		total := aggregate.New()
		for _, i := range order {
			part := aggregate.New()
			part.Add(batches[i]...)
			total.Merge(part)
		}
		return total.Table()
	}

	want := build(0, 1, 2)
	assert.Equal(t, want, build(2, 1, 0))
	assert.Equal(t, want, build(1, 2, 0))

	// associativity: (a+b)+c == a+(b+c)
	ab := aggregate.New()
	ab.Add(batches[0]...)
	ab.Add(batches[1]...)
	abc := aggregate.New()
	abc.Merge(ab)
	abc.Add(batches[2]...)

	bc := aggregate.New()
	bc.Add(batches[1]...)
	bc.Add(batches[2]...)
	abc2 := aggregate.New()
	abc2.Add(batches[0]...)
	abc2.Merge(bc)

	assert.Equal(t, abc.Table(), abc2.Table())
	assert.Equal(t, 160, abc.Len())
}

func TestAggregatorConcurrentAdd(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	records := randomAnomalies(r, 256)
	want := aggregate.Aggregate(records)

	agg := aggregate.New()
	var wg sync.WaitGroup
	for i := 0; i < len(records); i += 32 {
		wg.Add(1)
		go func(batch []domain.Anomaly) {
			defer wg.Done()
			agg.Add(batch...)
		}(records[i : i+32])
	}
	wg.Wait()

	assert.Equal(t, want, agg.Table())
}

func TestAggregatorCopiesInput(t *testing.T) {
	rec := anomaly("a", "0xa", 1, domain.KindLinkDown, domain.SeverityWarning, 1)
	agg := aggregate.New()
	agg.Add(rec)
	rec.Evidence["source"] = "mutated"

	table := agg.Table()
	assert.Equal(t, "a", table[0].Evidence[0]["source"])

	clone := table.Clone()
	clone[0].Evidence[0]["source"] = "changed"
	clone[0].Analyzers[0] = "changed"
	assert.Equal(t, "a", table[0].Evidence[0]["source"])
	assert.Equal(t, "a", table[0].Analyzers[0])
}
