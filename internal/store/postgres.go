package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements RunStore using PostgreSQL. It expects the
// schema to already exist (created via migrations).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL run store.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL run store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pgStore, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return pgStore, nil
}

// Save stores or updates the audit record for a run.
func (s *PostgresStore) Save(ctx context.Context, record *RunRecord) error {
	if record == nil || record.RunID == "" {
		return fmt.Errorf("run record requires a run ID")
	}

	errorsJSON, err := encodeErrors(record.Errors)
	if err != nil {
		return err
	}
	now := time.Now()

	query := `
		INSERT INTO batch_runs (
			run_id, started_at, finished_at,
			patient_count, succeeded, failed,
			finding_count, critical_count, recommendation_count,
			kb_version, errors_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			patient_count = EXCLUDED.patient_count,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			finding_count = EXCLUDED.finding_count,
			critical_count = EXCLUDED.critical_count,
			recommendation_count = EXCLUDED.recommendation_count,
			kb_version = EXCLUDED.kb_version,
			errors_json = EXCLUDED.errors_json,
			created_at = EXCLUDED.created_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.RunID, record.StartedAt, record.FinishedAt,
		record.PatientCount, record.Succeeded, record.Failed,
		record.FindingCount, record.CriticalCount, record.RecommendationCount,
		record.KBVersion, errorsJSON, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	record.CreatedAt = now
	return nil
}

// Get retrieves one run by ID.
func (s *PostgresStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, started_at, finished_at,
			patient_count, succeeded, failed,
			finding_count, critical_count, recommendation_count,
			kb_version, errors_json, created_at
		FROM batch_runs
		WHERE run_id = $1
		LIMIT 1
	`

	record, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return record, nil
}

// List returns runs newest-first with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	query := `
		SELECT run_id, started_at, finished_at,
			patient_count, succeeded, failed,
			finding_count, critical_count, recommendation_count,
			kb_version, errors_json, created_at
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// Count returns the total number of stored runs.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Delete removes a run record by ID.
func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM batch_runs WHERE run_id = $1", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// ExportJSON writes every stored run to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	export := &RunExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Runs:       all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
