package codec_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabriclens/internal/aggregate"
	"fabriclens/internal/analyzer"
	"fabriclens/internal/codec"
	"fabriclens/internal/domain"
	"fabriclens/internal/health"
	"fabriclens/internal/report"
)

func sampleResult() *report.Result {
	anomalies := []domain.Anomaly{
		{
			Entity:   domain.PortEntity("0x0002c90300a1b2d0", 3),
			Kind:     domain.KindHighBER,
			Severity: domain.SeverityCritical,
			Weight:   2.25,
			Analyzer: "ber",
			Evidence: domain.Evidence{"ber": "1.5e-11", "magnitude": 12},
		},
		{
			Entity:   domain.NodeEntity("0x0002c90300a1b2c0"),
			Kind:     domain.KindPSUFault,
			Severity: domain.SeverityCritical,
			Weight:   3,
			Analyzer: "power",
			Evidence: domain.Evidence{"failed_psus": []int64{1}},
		},
	}
	outputs := []report.Output{
		{Analyzer: "ber", Anomalies: anomalies[:1]},
		{Analyzer: "power", Anomalies: anomalies[1:], Diagnostics: analyzer.Diagnostics{
			Skipped: map[string]int{"POWER_SUPPLIES": 1200},
		}},
		{Analyzer: "latency", Diagnostics: analyzer.Diagnostics{Missing: []string{"TELEMETRY"}}},
	}
	score := health.Compute(aggregate.Aggregate(anomalies), health.EntityCounts{Nodes: 2, Ports: 3, Links: 1})
	return report.Build("/data/fabric", nil, outputs, score)
}

func TestForFormat(t *testing.T) {
	for _, f := range codec.Formats() {
		c, err := codec.ForFormat(f)
		require.NoError(t, err, f)
		assert.Equal(t, f, c.Format())
	}
	c, err := codec.ForFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Format())

	_, err = codec.ForFormat("xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestJSONRoundTrip(t *testing.T) {
	result := sampleResult()
	c := codec.NewJSONCodec()

	var buf bytes.Buffer
	require.NoError(t, c.Export(result, &buf))

	parsed, err := c.Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, result.Health.Score, parsed.Health.Score)
	assert.Equal(t, result.Health.Grade, parsed.Health.Grade)
	assert.Equal(t, result.Summary.Critical, parsed.Summary.Critical)
	require.Len(t, parsed.Anomalies["ber"], 1)
	assert.Equal(t, domain.PortEntity("0x0002c90300a1b2d0", 3), parsed.Anomalies["ber"][0].Entity)
}

func TestYAMLMirrorsJSON(t *testing.T) {
	result := sampleResult()

	var buf bytes.Buffer
	require.NoError(t, codec.NewYAMLCodec().Export(result, &buf))
	out := buf.String()

	assert.Contains(t, out, "unavailable_signals:")
	assert.Contains(t, out, "entity: 0x0002c90300a1b2d0/3")
	assert.Contains(t, out, "grade: B")

	parsed, err := codec.NewYAMLCodec().Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, result.Health.Score, parsed.Health.Score)
	assert.Equal(t, result.Summary.SkippedRows, parsed.Summary.SkippedRows)
	assert.Equal(t, result.Anomalies["power"][0].Entity, parsed.Anomalies["power"][0].Entity)
}

func TestTextReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, codec.NewTextCodec().Export(sampleResult(), &buf))
	out := buf.String()

	assert.Contains(t, out, "Dataset: /data/fabric")
	assert.Contains(t, out, "grade B (good)")
	assert.Contains(t, out, "2 nodes, 3 ports, 1 link")
	assert.Contains(t, out, "2 critical, 0 warning, 0 info")
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "psu-fault")
	assert.Contains(t, out, "Unavailable tables: TELEMETRY")
	assert.Contains(t, out, "Skipped rows: 1,200 (POWER_SUPPLIES 1,200)")

	limited := &codec.TextCodec{Limit: 1}
	buf.Reset()
	require.NoError(t, limited.Export(sampleResult(), &buf))
	assert.Contains(t, buf.String(), "1 more record not shown")
}
