package service

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// BatchRunner fans a patient cohort out over a bounded worker pool and
// collects per-patient reports into one summary. Patients are
// independent: a bad record is logged and skipped, and the rest of the
// cohort still completes. Only pipeline defects abort the run.
type BatchRunner struct {
	interpreter domain.Interpreter
	kb          domain.KnowledgeBase
	workers     int
	logger      *logrus.Logger
}

// NewBatchRunner creates a batch runner over the given interpreter.
// workers <= 0 selects one worker per CPU.
func NewBatchRunner(interpreter domain.Interpreter, kb domain.KnowledgeBase, workers int, logger *logrus.Logger) *BatchRunner {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BatchRunner{
		interpreter: interpreter,
		kb:          kb,
		workers:     workers,
		logger:      logger,
	}
}

// batchResult carries one worker outcome back to the collector. The
// index preserves submission order for error reporting even though the
// final summary sorts by patient ID.
type batchResult struct {
	index  int
	report *domain.AnalysisReport
	err    error
	id     string
}

// Progress reports one analyzed patient as the run advances. Completed
// counts successes and skipped patients alike.
type Progress struct {
	RunID     string
	PatientID string
	Completed int
	Total     int
	Err       error
}

// ProgressFunc observes per-patient progress during a batch run. Calls
// come from the collector goroutine, never concurrently.
type ProgressFunc func(Progress)

// Run analyzes every patient in the cohort and returns the aggregate
// summary. Reports are sorted by patient ID so repeated runs over the
// same cohort produce identical output regardless of worker scheduling.
// Context cancellation stops dispatch and returns the context error;
// an internal defect in any worker fails the whole run.
func (b *BatchRunner) Run(ctx context.Context, patients []domain.Patient) (*domain.BatchSummary, error) {
	return b.RunWithProgress(ctx, patients, nil)
}

// RunWithProgress is Run with a per-patient progress callback, used by
// the async job layer to stream completion events.
func (b *BatchRunner) RunWithProgress(ctx context.Context, patients []domain.Patient, progress ProgressFunc) (*domain.BatchSummary, error) {
	startedAt := time.Now().UTC()
	runID := uuid.New().String()

	log := b.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"patients": len(patients),
		"workers":  b.workers,
	})
	log.Info("Batch run started")

	summary := &domain.BatchSummary{
		RunID:        runID,
		StartedAt:    startedAt,
		PatientCount: len(patients),
		KBVersion:    b.kb.Info().Version,
	}
	if len(patients) == 0 {
		summary.FinishedAt = time.Now().UTC()
		return summary, nil
	}

	workers := b.workers
	if workers > len(patients) {
		workers = len(patients)
	}

	jobs := make(chan int)
	results := make(chan batchResult, len(patients))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				patient := patients[i]
				report, err := b.interpreter.Analyze(ctx, &patient)
				results <- batchResult{index: i, report: report, err: err, id: patient.ID}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range patients {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		if res.err != nil {
			if IsFatal(res.err) {
				log.WithError(res.err).Error("Batch run aborted by pipeline defect")
				return nil, res.err
			}
			summary.Failed++
			summary.Errors = append(summary.Errors, domain.PatientError{
				PatientID: patientErrorID(res.id, res.index),
				Reason:    res.err.Error(),
			})
			b.logger.WithFields(logrus.Fields{
				"run_id":     runID,
				"patient_id": res.id,
			}).WithError(res.err).Warn("Patient skipped")
		} else {
			summary.Succeeded++
			summary.FindingCount += len(res.report.Findings)
			summary.CriticalCount += res.report.RiskSummary.CriticalCount
			summary.RecommendationCount += len(res.report.Recommendations)
			summary.Reports = append(summary.Reports, *res.report)
		}

		completed++
		if progress != nil {
			progress(Progress{
				RunID:     runID,
				PatientID: patientErrorID(res.id, res.index),
				Completed: completed,
				Total:     len(patients),
				Err:       res.err,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(summary.Reports, func(i, j int) bool {
		return summary.Reports[i].PatientID < summary.Reports[j].PatientID
	})
	sort.Slice(summary.Errors, func(i, j int) bool {
		return summary.Errors[i].PatientID < summary.Errors[j].PatientID
	})

	summary.FinishedAt = time.Now().UTC()

	log.WithFields(logrus.Fields{
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"findings":    summary.FindingCount,
		"critical":    summary.CriticalCount,
		"duration_ms": summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	}).Info("Batch run finished")

	return summary, nil
}

// patientErrorID labels an error record for a patient whose ID was
// itself missing or invalid, so the record still points back to a
// cohort position.
func patientErrorID(id string, index int) string {
	if id != "" {
		return id
	}
	return "patient_" + strconv.Itoa(index)
}
