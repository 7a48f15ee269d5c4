package repository

import (
	"context"
	"errors"

	"fabriclens/internal/domain"
	"fabriclens/internal/report"
)

// ErrNoSnapshot is returned when nothing has been exported yet
var ErrNoSnapshot = errors.New("no result snapshot stored")

// ResultStore persists the latest analysis result
type ResultStore interface {
	// SaveResult replaces the stored snapshot
	SaveResult(ctx context.Context, result *report.Result) error

	// LoadResult returns the stored snapshot or ErrNoSnapshot
	LoadResult(ctx context.Context) (*report.Result, error)

	// Anomalies lists stored anomaly records, optionally filtered by severity
	Anomalies(ctx context.Context, severity domain.Severity) ([]domain.Anomaly, error)

	// Close releases resources
	Close() error
}
