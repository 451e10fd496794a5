package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"news_scanner/internal/domain"
)

// SourceRun is the audit row kept per source.
type SourceRun struct {
	SourceName   string         `db:"source_name"`
	Query        string         `db:"query"`
	LastRunAt    time.Time      `db:"last_run_at"`
	LastError    sql.NullString `db:"last_error"`
	TotalResults int64          `db:"total_results"`
	TotalNew     int64          `db:"total_new"`
}

// SourceRunStore records per-source outcomes. It is write-mostly: scheduling
// never reads it back, a restart still polls every source immediately.
type SourceRunStore struct {
	db *sqlx.DB
}

func NewSourceRunStore(db *sqlx.DB) *SourceRunStore {
	return &SourceRunStore{db: db}
}

func (s *SourceRunStore) Get(ctx context.Context, sourceName string) (*SourceRun, error) {
	var run SourceRun
	query := `
		SELECT source_name, query, last_run_at, last_error, total_results, total_new
		FROM source_runs
		WHERE source_name = $1`

	err := s.db.GetContext(ctx, &run, query, sourceName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SourceRunStore) RecordRun(ctx context.Context, src domain.Source, stats domain.SourceStats, at time.Time) error {
	var lastErr sql.NullString
	if stats.Err != nil {
		lastErr = sql.NullString{String: stats.Err.Error(), Valid: true}
	}

	query := `
		INSERT INTO source_runs (source_name, query, last_run_at, last_error, total_results, total_new)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_name) DO UPDATE SET
			query = EXCLUDED.query,
			last_run_at = EXCLUDED.last_run_at,
			last_error = EXCLUDED.last_error,
			total_results = source_runs.total_results + EXCLUDED.total_results,
			total_new = source_runs.total_new + EXCLUDED.total_new`

	_, err := s.db.ExecContext(ctx, query,
		src.Name,
		src.Query,
		at,
		lastErr,
		stats.Results,
		stats.New,
	)
	return err
}
