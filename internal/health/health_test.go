package health_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabriclens/internal/aggregate"
	"fabriclens/internal/domain"
	"fabriclens/internal/health"
)

func record(kind domain.Kind, sev domain.Severity, weight float64) domain.Anomaly {
	return domain.Anomaly{
		Entity:   domain.PortEntity("0xa", 1),
		Kind:     kind,
		Severity: sev,
		Weight:   weight,
		Analyzer: "test",
	}
}

func TestCategoryWeightsSumToMax(t *testing.T) {
	var total float64
	for _, c := range domain.Categories() {
		total += health.CategoryWeight(c)
	}
	assert.Equal(t, health.MaxScore, total)
}

func TestComputeEmptyTable(t *testing.T) {
	s := health.Compute(nil, health.EntityCounts{Nodes: 3, Ports: 8, Links: 4})

	assert.Equal(t, 100.0, s.Score)
	assert.Equal(t, health.GradeA, s.Grade)
	assert.Equal(t, "healthy", s.Status)
	assert.NotNil(t, s.Records)
	assert.Equal(t, 8, s.Entities.Ports)

	require.Len(t, s.Categories, len(domain.Categories()))
	for _, sub := range s.Categories {
		assert.Equal(t, sub.Weight, sub.Score, string(sub.Category))
		assert.Zero(t, sub.Deduction)
	}
}

func TestComputeDeductions(t *testing.T) {
	table := aggregate.Aggregate([]domain.Anomaly{
		record(domain.KindHighBER, domain.SeverityCritical, 2),
		record(domain.KindXmitWait, domain.SeverityWarning, 4),
		record(domain.KindFirmwareMismatch, domain.SeverityInfo, 1.5),
		record(domain.KindTrafficImbalance, domain.SeverityWarning, 10),
	})

	s := health.Compute(table, health.EntityCounts{})

	ber, ok := s.Subscore(domain.CategoryBER)
	require.True(t, ok)
	assert.Equal(t, 19.0, ber.Score)
	assert.Equal(t, 6.0, ber.Deduction)
	assert.Equal(t, 1, ber.Records)

	congestion, _ := s.Subscore(domain.CategoryCongestion)
	assert.Equal(t, 9.0, congestion.Score)

	config, _ := s.Subscore(domain.CategoryConfig)
	assert.Equal(t, 9.25, config.Score)

	balance, _ := s.Subscore(domain.CategoryBalance)
	assert.Equal(t, 0.0, balance.Score, "subscore floors at zero")
	assert.Equal(t, 5.0, balance.Deduction)

	assert.Equal(t, 82.25, s.Score)
	assert.Equal(t, health.GradeB, s.Grade)
	assert.Equal(t, "good", s.Status)
}

func TestGradeBreakpoints(t *testing.T) {
	tests := map[string]struct {
		score float64
		grade health.Grade
	}{
		"perfect":    {100, health.GradeA},
		"a boundary": {90, health.GradeA},
		"b":          {89.99, health.GradeB},
		"b boundary": {80, health.GradeB},
		"c":          {70, health.GradeC},
		"d":          {60, health.GradeD},
		"f":          {59.99, health.GradeF},
		"zero":       {0, health.GradeF},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.grade, health.GradeFor(tt.score))
		})
	}
	assert.Equal(t, "critical", health.GradeF.Status())
	assert.Equal(t, "degraded", health.GradeD.Status())
	assert.Equal(t, "fair", health.GradeC.Status())
}

func TestComputeIgnoresBadWeights(t *testing.T) {
	table := aggregate.Table{
		{Entity: domain.NodeEntity("0xa"), Kind: domain.KindHighBER, Category: domain.CategoryBER, Severity: domain.SeverityCritical, Weight: math.NaN()},
		{Entity: domain.NodeEntity("0xb"), Kind: domain.KindHighBER, Category: domain.CategoryBER, Severity: domain.SeverityCritical, Weight: -5},
	}
	s := health.Compute(table, health.EntityCounts{})
	assert.Equal(t, 100.0, s.Score)
}

func TestComputeHugeWeight(t *testing.T) {
	table := aggregate.Aggregate([]domain.Anomaly{
		record(domain.KindHighBER, domain.SeverityCritical, math.MaxFloat64),
		record(domain.KindHighBER, domain.SeverityCritical, math.MaxFloat64),
	})
	s := health.Compute(table, health.EntityCounts{})
	assert.Equal(t, 75.0, s.Score)
	assert.False(t, math.IsInf(s.Records[0].Weight, 0))
}

func TestComputeBoundedAndMonotonic(t *testing.T) {
	kinds := []domain.Kind{
		domain.KindHighBER, domain.KindPortErrors, domain.KindXmitWait, domain.KindLinkConflict,
		domain.KindHighLatency, domain.KindTrafficImbalance, domain.KindFirmwareMismatch, domain.KindPSUFault,
	}
	sevs := []domain.Severity{domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical}
	r := rand.New(rand.NewSource(3))

	var records []domain.Anomaly
	prev := health.Compute(aggregate.Aggregate(records), health.EntityCounts{}).Score
	for i := 0; i < 300; i++ {
		records = append(records, domain.Anomaly{
			Entity:   domain.PortEntity("0xa", r.Intn(4)),
			Kind:     kinds[r.Intn(len(kinds))],
			Severity: sevs[r.Intn(len(sevs))],
			Weight:   r.ExpFloat64() / 4,
			Analyzer: "test",
		})
		score := health.Compute(aggregate.Aggregate(records), health.EntityCounts{}).Score
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 100.0)
		require.LessOrEqual(t, score, prev, "record %d raised the score", i)
		prev = score
	}
}

func TestComputeCopiesRecords(t *testing.T) {
	table := aggregate.Aggregate([]domain.Anomaly{record(domain.KindHighBER, domain.SeverityWarning, 1)})
	s := health.Compute(table, health.EntityCounts{})
	table[0].Analyzers[0] = "changed"
	assert.Equal(t, "test", s.Records[0].Analyzers[0])
}

func TestComputeCopiesNestedEvidence(t *testing.T) {
	nodes := []string{"a", "b"}
	rec := record(domain.KindDuplicateGUID, domain.SeverityCritical, 1)
	rec.Evidence = domain.Evidence{"nodes": nodes}

	s := health.Compute(aggregate.Aggregate([]domain.Anomaly{rec}), health.EntityCounts{})
	nodes[0] = "changed"

	require.Len(t, s.Records, 1)
	require.Len(t, s.Records[0].Evidence, 1)
	assert.Equal(t, []string{"a", "b"}, s.Records[0].Evidence[0]["nodes"])
}
