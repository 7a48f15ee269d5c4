package analyzer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fabriclens/internal/analyzer"
	"fabriclens/internal/domain"
	"fabriclens/internal/dump"
	"fabriclens/internal/dump/dumptest"
	"fabriclens/internal/topology"
)

var (
	Row = dumptest.Row
	Q   = dumptest.Q
)

const (
	swGUID  = "0x0002c90300a1b2c0"
	h1GUID  = "0x0002c90300a1b2d0"
	h2GUID  = "0x0002c90300a1b2e0"
	h3GUID  = "0x0002c90300a1b2f0"
	h4GUID  = "0x0002c90300a1b300"
	h5GUID  = "0x0002c90300a1b310"
	badGUID = "0x9999"
)

// openDir opens a dataset directory and resolves its topology
func openDir(t *testing.T, dir string) (*dump.Dataset, *topology.Topology) {
	t.Helper()
	ds, err := dump.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds, topology.Resolve(context.Background(), ds, nil)
}

// run executes one analyzer against a dataset directory
func run(t *testing.T, a analyzer.Analyzer, dir string) ([]domain.Anomaly, analyzer.Diagnostics) {
	t.Helper()
	ds, topo := openDir(t, dir)
	in := analyzer.NewInput(ds, topo)
	out, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	for _, an := range out {
		require.Equal(t, a.Name(), an.Analyzer)
		require.GreaterOrEqual(t, an.Weight, 0.0)
	}
	return out, in.Diagnostics()
}

// find returns the anomalies for one entity and kind
func find(list []domain.Anomaly, entity domain.EntityKey, kind domain.Kind) []domain.Anomaly {
	var out []domain.Anomaly
	for _, a := range list {
		if a.Entity == entity && a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func one(t *testing.T, list []domain.Anomaly, entity domain.EntityKey, kind domain.Kind) domain.Anomaly {
	t.Helper()
	found := find(list, entity, kind)
	require.Len(t, found, 1, "%s %s in %v", entity, kind, list)
	return found[0]
}

func port(guid string, n int) domain.EntityKey {
	return domain.PortEntity(guid, n)
}

func settings() analyzer.Settings {
	s := analyzer.DefaultSettings()
	s.ApplyDefaults()
	return s
}
