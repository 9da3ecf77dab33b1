package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/pkg/kb"
)

func newTestBatchRunner(t *testing.T, workers int) *BatchRunner {
	t.Helper()
	logger := quietLogger()
	provider, err := kb.Default(logger)
	require.NoError(t, err)
	return NewBatchRunner(NewEngine(provider, logger), provider, workers, logger)
}

func TestBatchRunMixedCohort(t *testing.T) {
	runner := newTestBatchRunner(t, 4)

	patients := []domain.Patient{
		{
			ID:          "PT-003",
			Genotype:    domain.Genotype{"CYP2D6": {Phenotype: domain.ULTRA_RAPID_METABOLIZER}},
			Medications: meds("codeine"),
		},
		{
			ID: "PT-002",
			// No medications: an input error that must not sink the run.
		},
		{
			ID:          "PT-001",
			Genotype:    domain.Genotype{"CYP2C19": {Phenotype: domain.POOR_METABOLIZER}},
			Medications: meds("citalopram"),
		},
	}

	summary, err := runner.Run(context.Background(), patients)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.PatientCount)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.FindingCount)
	assert.Equal(t, 1, summary.CriticalCount)
	assert.Equal(t, 2, summary.RecommendationCount)

	require.Len(t, summary.Reports, 2)
	assert.Equal(t, "PT-001", summary.Reports[0].PatientID, "reports come back sorted by patient ID")
	assert.Equal(t, "PT-003", summary.Reports[1].PatientID)

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "PT-002", summary.Errors[0].PatientID)
	assert.Contains(t, summary.Errors[0].Reason, "medication")

	assert.NotEmpty(t, summary.RunID)
	_, parseErr := uuid.Parse(summary.RunID)
	assert.NoError(t, parseErr)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
	assert.NotEmpty(t, summary.KBVersion)
}

func TestBatchRunDeterministicAcrossWorkerCounts(t *testing.T) {
	cohort := func() []domain.Patient {
		var patients []domain.Patient
		ids := []string{"PT-09", "PT-03", "PT-07", "PT-01", "PT-05"}
		for _, id := range ids {
			patients = append(patients, domain.Patient{
				ID:          id,
				Genotype:    domain.Genotype{"CYP2D6": {Phenotype: domain.POOR_METABOLIZER}},
				Medications: meds("codeine"),
			})
		}
		return patients
	}

	serial, err := newTestBatchRunner(t, 1).Run(context.Background(), cohort())
	require.NoError(t, err)
	parallel, err := newTestBatchRunner(t, 8).Run(context.Background(), cohort())
	require.NoError(t, err)

	require.Len(t, parallel.Reports, len(serial.Reports))
	for i := range serial.Reports {
		assert.Equal(t, serial.Reports[i].PatientID, parallel.Reports[i].PatientID)
		assert.Equal(t, serial.Reports[i].RiskSummary, parallel.Reports[i].RiskSummary)
	}
}

func TestBatchRunEmptyCohort(t *testing.T) {
	runner := newTestBatchRunner(t, 2)

	summary, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.PatientCount)
	assert.Empty(t, summary.Reports)
	assert.Empty(t, summary.Errors)
}

func TestBatchRunMissingPatientID(t *testing.T) {
	runner := newTestBatchRunner(t, 1)

	summary, err := runner.Run(context.Background(), []domain.Patient{
		{Medications: meds("codeine")},
	})
	require.NoError(t, err)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "patient_0", summary.Errors[0].PatientID, "anonymous records keep their cohort position")
}

func TestBatchRunCancelled(t *testing.T) {
	runner := newTestBatchRunner(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cohort := make([]domain.Patient, 50)
	for i := range cohort {
		cohort[i] = domain.Patient{
			ID:          uuid.NewString(),
			Medications: meds("codeine"),
		}
	}

	_, err := runner.Run(ctx, cohort)
	assert.ErrorIs(t, err, context.Canceled)
}

// defectiveInterpreter simulates a pipeline defect on a chosen patient.
type defectiveInterpreter struct {
	failOn string
	inner  domain.Interpreter
}

func (d *defectiveInterpreter) Analyze(ctx context.Context, patient *domain.Patient) (*domain.AnalysisReport, error) {
	if patient.ID == d.failOn {
		return nil, domain.NewInternalError("score", errors.New("score out of range"))
	}
	return d.inner.Analyze(ctx, patient)
}

func TestBatchRunAbortsOnDefect(t *testing.T) {
	logger := quietLogger()
	provider, err := kb.Default(logger)
	require.NoError(t, err)

	runner := NewBatchRunner(
		&defectiveInterpreter{failOn: "PT-BAD", inner: NewEngine(provider, logger)},
		provider, 2, logger,
	)

	patients := []domain.Patient{
		{ID: "PT-OK", Medications: meds("codeine")},
		{ID: "PT-BAD", Medications: meds("codeine")},
	}

	_, err = runner.Run(context.Background(), patients)
	require.Error(t, err)
	assert.True(t, IsFatal(err), "defects abort the batch instead of hiding in the error list")
}

func TestBatchRunReportsProgress(t *testing.T) {
	runner := newTestBatchRunner(t, 2)

	patients := []domain.Patient{
		{
			ID:          "PT-001",
			Genotype:    domain.Genotype{"CYP2D6": {Phenotype: domain.ULTRA_RAPID_METABOLIZER}},
			Medications: meds("codeine"),
		},
		{ID: "PT-002"}, // input error, still reported as progress
		{
			ID:          "PT-003",
			Genotype:    domain.Genotype{"CYP2C19": {Phenotype: domain.POOR_METABOLIZER}},
			Medications: meds("citalopram"),
		},
	}

	var events []Progress
	summary, err := runner.RunWithProgress(context.Background(), patients, func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.Len(t, events, 3, "one progress event per patient")
	for i, ev := range events {
		assert.Equal(t, summary.RunID, ev.RunID)
		assert.Equal(t, i+1, ev.Completed, "completed counter is monotonic")
		assert.Equal(t, 3, ev.Total)
	}

	failed := 0
	seen := map[string]bool{}
	for _, ev := range events {
		seen[ev.PatientID] = true
		if ev.Err != nil {
			failed++
			assert.Equal(t, "PT-002", ev.PatientID)
		}
	}
	assert.Equal(t, 1, failed)
	assert.True(t, seen["PT-001"] && seen["PT-002"] && seen["PT-003"])
}
