// Package store persists the operational audit trail of batch runs.
// A record carries run-level counters and the failure reasons of
// patients the run could not analyze; patient clinical payloads never
// reach the store.
package store

import (
	"context"
	"io"
	"time"

	"github.com/pgx-risk-engine/internal/domain"
)

// RunRecord is the persisted audit row for one batch run.
type RunRecord struct {
	RunID               string                `json:"run_id"`
	StartedAt           time.Time             `json:"started_at"`
	FinishedAt          time.Time             `json:"finished_at"`
	PatientCount        int                   `json:"patient_count"`
	Succeeded           int                   `json:"succeeded"`
	Failed              int                   `json:"failed"`
	FindingCount        int                   `json:"finding_count"`
	CriticalCount       int                   `json:"critical_count"`
	RecommendationCount int                   `json:"recommendation_count"`
	KBVersion           string                `json:"kb_version,omitempty"`
	Errors              []domain.PatientError `json:"errors,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
}

// NewRunRecord projects a batch summary onto its audit row. Per-patient
// reports stay behind; only counters and failure records cross over.
func NewRunRecord(summary *domain.BatchSummary) *RunRecord {
	if summary == nil {
		return nil
	}
	return &RunRecord{
		RunID:               summary.RunID,
		StartedAt:           summary.StartedAt,
		FinishedAt:          summary.FinishedAt,
		PatientCount:        summary.PatientCount,
		Succeeded:           summary.Succeeded,
		Failed:              summary.Failed,
		FindingCount:        summary.FindingCount,
		CriticalCount:       summary.CriticalCount,
		RecommendationCount: summary.RecommendationCount,
		KBVersion:           summary.KBVersion,
		Errors:              summary.Errors,
	}
}

// RunStore defines the interface for run audit storage operations.
type RunStore interface {
	// Save stores or updates the audit record for a run. Saving the
	// same run ID again replaces the earlier record.
	Save(ctx context.Context, record *RunRecord) error

	// Get retrieves one run by ID. A missing run returns (nil, nil).
	Get(ctx context.Context, runID string) (*RunRecord, error)

	// List returns runs newest-first with pagination.
	List(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// Count returns the total number of stored runs.
	Count(ctx context.Context) (int64, error)

	// Delete removes a run record by ID.
	Delete(ctx context.Context, runID string) error

	// ExportJSON writes every stored run to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// RunExport is the JSON export format.
type RunExport struct {
	Version    string       `json:"version"`
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Runs       []*RunRecord `json:"runs"`
}
