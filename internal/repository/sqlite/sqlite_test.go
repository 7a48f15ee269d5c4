package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabriclens/internal/aggregate"
	"fabriclens/internal/domain"
	"fabriclens/internal/health"
	"fabriclens/internal/report"
	"fabriclens/internal/repository"
)

// newTestRepo creates a file-backed SQLite repository in a temp dir
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "fabriclens.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func resultWith(dataset string, anomalies ...domain.Anomaly) *report.Result {
	byAnalyzer := map[string][]domain.Anomaly{}
	for _, a := range anomalies {
		byAnalyzer[a.Analyzer] = append(byAnalyzer[a.Analyzer], a)
	}
	var outputs []report.Output
	for name, list := range byAnalyzer {
		outputs = append(outputs, report.Output{Analyzer: name, Anomalies: list})
	}
	score := health.Compute(aggregate.Aggregate(anomalies), health.EntityCounts{Nodes: 2, Ports: 4, Links: 1})
	return report.Build(dataset, nil, outputs, score)
}

var (
	highBER = domain.Anomaly{
		Entity:   domain.PortEntity("0x0002c90300a1b2d0", 3),
		Kind:     domain.KindHighBER,
		Severity: domain.SeverityCritical,
		Weight:   2.5,
		Analyzer: "ber",
		Evidence: domain.Evidence{"ber": "1.5e-11", "magnitude": 12},
	}
	psuFault = domain.Anomaly{
		Entity:   domain.NodeEntity("0x0002c90300a1b2c0"),
		Kind:     domain.KindPSUFault,
		Severity: domain.SeverityCritical,
		Weight:   3,
		Analyzer: "power",
	}
	linkDown = domain.Anomaly{
		Entity:   domain.PortEntity("0x0002c90300a1b2c0", 7),
		Kind:     domain.KindLinkDown,
		Severity: domain.SeverityWarning,
		Weight:   0.5,
		Analyzer: "link-stability",
		Evidence: domain.Evidence{"link_downed": 1},
	}
)

func TestLoadResultEmpty(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.LoadResult(context.Background())
	assert.ErrorIs(t, err, repository.ErrNoSnapshot)

	list, err := repo.Anomalies(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveAndLoadResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	result := resultWith("/data/a", highBER, psuFault, linkDown)

	require.NoError(t, repo.SaveResult(ctx, result))

	loaded, err := repo.LoadResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/a", loaded.Dataset)
	assert.Equal(t, result.Health.Score, loaded.Health.Score)
	assert.Equal(t, result.Health.Grade, loaded.Health.Grade)
	assert.Equal(t, result.Summary.Critical, loaded.Summary.Critical)
	assert.Equal(t, result.AnalyzerNames(), loaded.AnalyzerNames())

	var categories int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM categories`).Scan(&categories))
	assert.Equal(t, len(domain.Categories()), categories)

	var grade string
	var critical int
	require.NoError(t, repo.db.QueryRow(`SELECT grade, critical FROM summary`).Scan(&grade, &critical))
	assert.Equal(t, string(result.Health.Grade), grade)
	assert.Equal(t, 2, critical)
}

func TestAnomaliesQuery(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveResult(ctx, resultWith("/data/a", highBER, psuFault, linkDown)))

	all, err := repo.Anomalies(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, psuFault.Entity, all[0].Entity, "heaviest first")
	assert.False(t, all[0].Entity.IsPort())
	assert.Nil(t, all[0].Evidence)

	critical, err := repo.Anomalies(ctx, domain.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, critical, 2)
	assert.Equal(t, highBER.Entity, critical[1].Entity)
	assert.Equal(t, "1.5e-11", critical[1].Evidence["ber"])
	assert.Equal(t, "ber", critical[1].Analyzer)
}

func TestSaveResultReplacesSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveResult(ctx, resultWith("/data/a", highBER, psuFault, linkDown)))
	require.NoError(t, repo.SaveResult(ctx, resultWith("/data/b", linkDown)))

	loaded, err := repo.LoadResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/b", loaded.Dataset)

	all, err := repo.Anomalies(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1, "no history is kept")
	assert.Equal(t, linkDown.Kind, all[0].Kind)

	var rows int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM summary`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSaveResultRejectsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	assert.Error(t, repo.SaveResult(context.Background(), nil))
	assert.Error(t, repo.SaveResult(context.Background(), &report.Result{}))
}

func TestReopenKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	repo, err := New(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveResult(context.Background(), resultWith("/data/a", highBER)))
	require.NoError(t, repo.Close())

	repo, err = New(path)
	require.NoError(t, err)
	defer repo.Close()
	loaded, err := repo.LoadResult(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/data/a", loaded.Dataset)
}
