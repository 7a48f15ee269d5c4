package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityKeyText(t *testing.T) {
	tests := map[string]struct {
		key  EntityKey
		text string
	}{
		"node":        {key: NodeEntity("0x0002c903000e2f10"), text: "0x0002c903000e2f10"},
		"port":        {key: PortEntity("0x0002c903000e2f10", 12), text: "0x0002c903000e2f10/12"},
		"switch mgmt": {key: PortEntity("0xabc", 0), text: "0xabc/0"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := tc.key.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tc.text, string(b))

			var back EntityKey
			require.NoError(t, back.UnmarshalText(b))
			assert.Equal(t, tc.key, back)
		})
	}
}

func TestEntityKeyJSONMapKey(t *testing.T) {
	m := map[EntityKey]int{PortEntity("0xa", 1): 1, NodeEntity("0xb"): 2}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0xa/1":1,"0xb":2}`, string(b))
}

func TestEntityKeyCompare(t *testing.T) {
	assert.Negative(t, NodeEntity("0xa").Compare(PortEntity("0xa", 0)))
	assert.Negative(t, PortEntity("0xa", 2).Compare(PortEntity("0xa", 10)))
	assert.Positive(t, PortEntity("0xb", 1).Compare(PortEntity("0xa", 99)))
	assert.Zero(t, PortEntity("0xa", 3).Compare(PortEntity("0xa", 3)))
}

func TestSeverityOrdering(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityWarning, SeverityCritical))
	assert.Equal(t, SeverityWarning, MaxSeverity(SeverityWarning, SeverityInfo))
	assert.Equal(t, SeverityInfo, MaxSeverity(SeverityInfo, Severity("bogus")))
	assert.Greater(t, SeverityCritical.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
}

func TestKindCategory(t *testing.T) {
	assert.Equal(t, CategoryBER, KindHighBER.Category())
	assert.Equal(t, CategoryErrors, KindLinkFlap.Category())
	assert.Equal(t, CategoryConfig, KindFirmwareMismatch.Category())
	assert.Equal(t, CategoryOther, KindOverTemperature.Category())
	assert.Equal(t, CategoryOther, Kind("made-up").Category())
	assert.False(t, Kind("made-up").Known())

	for kind, cat := range kindCategories {
		assert.Contains(t, Categories(), cat, "kind %s", kind)
	}
}

func TestAnomalyCloneIsolatesEvidence(t *testing.T) {
	a := Anomaly{Kind: KindHighBER, Evidence: Evidence{"magnitude": 12}}
	b := a.Clone()
	b.Evidence["magnitude"] = 99

	assert.Equal(t, 12, a.Evidence["magnitude"])
}

func TestEvidenceCloneCopiesNestedValues(t *testing.T) {
	nodes := []string{"a", "b"}
	psus := []int64{1, 2}
	window := map[string]any{"min": 3.1, "peers": []string{"x"}}
	ev := Evidence{"nodes": nodes, "failed_psus": psus, "window": window, "count": 2}

	c := ev.Clone()
	nodes[0] = "changed"
	psus[1] = 9
	window["min"] = 0.0
	window["peers"].([]string)[0] = "changed"

	assert.Equal(t, []string{"a", "b"}, c["nodes"])
	assert.Equal(t, []int64{1, 2}, c["failed_psus"])
	assert.Equal(t, map[string]any{"min": 3.1, "peers": []string{"x"}}, c["window"])
	assert.Equal(t, 2, c["count"])

	var empty []string
	assert.Nil(t, Evidence{"nodes": empty}.Clone()["nodes"].([]string))
}

func TestNewLinkCanonicalOrder(t *testing.T) {
	x := PortKey{GUID: "0xb", Port: 1}
	y := PortKey{GUID: "0xa", Port: 7}

	assert.Equal(t, NewLink(x, y), NewLink(y, x))
	assert.Equal(t, y, NewLink(x, y).A)
}

func TestWidthAndSpeedMasks(t *testing.T) {
	assert.Equal(t, 4, WidthLanes(2))
	assert.Equal(t, int64(2), HighestWidth(1|2|16), "4x beats 2x even though 2x has the higher bit")
	assert.Equal(t, int64(8), HighestWidth(1|2|8))
	assert.Equal(t, int64(4), HighestSpeed(1|2|4))
	assert.Equal(t, int64(0), HighestSpeed(0))
}
