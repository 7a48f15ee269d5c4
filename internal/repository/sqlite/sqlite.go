package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"fabriclens/internal/domain"
	"fabriclens/internal/report"
	"fabriclens/internal/repository"
)

var _ repository.ResultStore = (*Repository)(nil)

// Repository implements repository.ResultStore using SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summary (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		dataset TEXT NOT NULL,
		score REAL NOT NULL,
		grade TEXT NOT NULL,
		status TEXT NOT NULL,
		critical INTEGER NOT NULL DEFAULT 0,
		warning INTEGER NOT NULL DEFAULT 0,
		info INTEGER NOT NULL DEFAULT 0,
		entities INTEGER NOT NULL DEFAULT 0,
		ports INTEGER NOT NULL DEFAULT 0,
		links INTEGER NOT NULL DEFAULT 0,
		unavailable_tables JSON NOT NULL,
		data JSON NOT NULL,
		exported_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS categories (
		category TEXT PRIMARY KEY,
		weight REAL NOT NULL,
		deduction REAL NOT NULL,
		score REAL NOT NULL,
		records INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analyzer TEXT NOT NULL,
		node_guid TEXT NOT NULL,
		port_num INTEGER,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		weight REAL NOT NULL,
		evidence JSON
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_severity ON anomalies(severity);
	CREATE INDEX IF NOT EXISTS idx_anomalies_node ON anomalies(node_guid);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveResult replaces the stored snapshot with result
func (r *Repository) SaveResult(ctx context.Context, result *report.Result) error {
	if result == nil || result.Health == nil {
		return errors.New("result has no health score")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	unavailable, err := marshalJSONField(result.Summary.UnavailableTables)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"anomalies", "categories", "summary"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	h := result.Health
	s := result.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO summary (id, dataset, score, grade, status, critical, warning, info, entities, ports, links, unavailable_tables, data)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.Dataset, h.Score, string(h.Grade), h.Status,
		s.Critical, s.Warning, s.Info, s.Entities, s.Ports, s.Links,
		unavailable, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	for _, sub := range h.Categories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (category, weight, deduction, score, records)
			VALUES (?, ?, ?, ?, ?)
		`, string(sub.Category), sub.Weight, sub.Deduction, sub.Score, sub.Records)
		if err != nil {
			return fmt.Errorf("failed to insert category %s: %w", sub.Category, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomalies (analyzer, node_guid, port_num, kind, category, severity, weight, evidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare anomaly insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range result.AnalyzerNames() {
		for _, a := range result.Anomalies[name] {
			evidence, err := marshalJSONField(a.Evidence)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx,
				name, a.Entity.GUID, portToNull(a.Entity), string(a.Kind),
				string(a.Category()), string(a.Severity), a.Weight, evidence)
			if err != nil {
				return fmt.Errorf("failed to insert anomaly %s/%s: %w", a.Entity, a.Kind, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadResult returns the stored snapshot
func (r *Repository) LoadResult(ctx context.Context) (*report.Result, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM summary WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}

	var result report.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Anomalies lists stored anomaly records, heaviest first. An empty
// severity lists all of them.
func (r *Repository) Anomalies(ctx context.Context, severity domain.Severity) ([]domain.Anomaly, error) {
	query := `
		SELECT analyzer, node_guid, port_num, kind, severity, weight, evidence
		FROM anomalies
	`
	var args []any
	if severity != "" {
		query += ` WHERE severity = ?`
		args = append(args, string(severity))
	}
	query += ` ORDER BY weight DESC, node_guid, port_num, kind, analyzer`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var out []domain.Anomaly
	for rows.Next() {
		var (
			a        domain.Anomaly
			guid     string
			port     sql.NullInt64
			kind     string
			sev      string
			evidence sql.NullString
		)
		if err := rows.Scan(&a.Analyzer, &guid, &port, &kind, &sev, &a.Weight, &evidence); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Entity = nullToEntity(guid, port)
		a.Kind = domain.Kind(kind)
		a.Severity = domain.Severity(sev)
		if err := unmarshalJSONField(evidence, &a.Evidence); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}
	return out, nil
}
