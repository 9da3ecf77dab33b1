package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pgx-risk-engine/internal/domain"
)

// SQLiteStore implements RunStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite run store. It creates the
// database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createRunSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createRunSchema creates the database tables and indexes.
func createRunSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batch_runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		patient_count INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		finding_count INTEGER NOT NULL DEFAULT 0,
		critical_count INTEGER NOT NULL DEFAULT 0,
		recommendation_count INTEGER NOT NULL DEFAULT 0,
		kb_version TEXT DEFAULT '',
		errors_json TEXT DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_batch_runs_started_at ON batch_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_batch_runs_kb_version ON batch_runs(kb_version);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a RunRecord.
func scanRun(s scanner) (*RunRecord, error) {
	record := &RunRecord{}
	var errorsJSON string

	err := s.Scan(
		&record.RunID, &record.StartedAt, &record.FinishedAt,
		&record.PatientCount, &record.Succeeded, &record.Failed,
		&record.FindingCount, &record.CriticalCount, &record.RecommendationCount,
		&record.KBVersion, &errorsJSON, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorsJSON != "" && errorsJSON != "[]" {
		if err := json.Unmarshal([]byte(errorsJSON), &record.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode error records: %w", err)
		}
	}
	return record, nil
}

func encodeErrors(errs []domain.PatientError) (string, error) {
	if len(errs) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode error records: %w", err)
	}
	return string(raw), nil
}

// Save stores or updates the audit record for a run.
func (s *SQLiteStore) Save(ctx context.Context, record *RunRecord) error {
	if record == nil || record.RunID == "" {
		return fmt.Errorf("run record requires a run ID")
	}

	errorsJSON, err := encodeErrors(record.Errors)
	if err != nil {
		return err
	}
	now := time.Now()

	var existing string
	err = s.db.QueryRowContext(ctx,
		"SELECT run_id FROM batch_runs WHERE run_id = ?", record.RunID,
	).Scan(&existing)

	if err == nil {
		record.CreatedAt = now
		_, err = s.db.ExecContext(ctx, `
			UPDATE batch_runs SET
				started_at = ?,
				finished_at = ?,
				patient_count = ?,
				succeeded = ?,
				failed = ?,
				finding_count = ?,
				critical_count = ?,
				recommendation_count = ?,
				kb_version = ?,
				errors_json = ?,
				created_at = ?
			WHERE run_id = ?
		`,
			record.StartedAt, record.FinishedAt,
			record.PatientCount, record.Succeeded, record.Failed,
			record.FindingCount, record.CriticalCount, record.RecommendationCount,
			record.KBVersion, errorsJSON, now, record.RunID,
		)
		return err
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	record.CreatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_runs (
			run_id, started_at, finished_at,
			patient_count, succeeded, failed,
			finding_count, critical_count, recommendation_count,
			kb_version, errors_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID, record.StartedAt, record.FinishedAt,
		record.PatientCount, record.Succeeded, record.Failed,
		record.FindingCount, record.CriticalCount, record.RecommendationCount,
		record.KBVersion, errorsJSON, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get retrieves one run by ID.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at,
			patient_count, succeeded, failed,
			finding_count, critical_count, recommendation_count,
			kb_version, errors_json, created_at
		FROM batch_runs
		WHERE run_id = ?
		LIMIT 1
	`, runID)

	record, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return record, nil
}

// List returns runs newest-first with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at,
			patient_count, succeeded, failed,
			finding_count, critical_count, recommendation_count,
			kb_version, errors_json, created_at
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_runs").Scan(&count)
	return count, err
}

// Delete removes a run record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM batch_runs WHERE run_id = ?", runID)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON writes every stored run to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
