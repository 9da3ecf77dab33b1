package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// Risk summary categories, ordered from most to least urgent. The
// category is driven by the highest-severity finding that survives
// deduplication, not by the aggregate score.
const (
	CategoryCritical = "Critical - Immediate Action Required"
	CategoryHigh     = "High - Action Recommended"
	CategoryModerate = "Moderate - Monitor Closely"
	CategoryLow      = "Low - Informational"
	CategoryNone     = "No Interactions Detected"
)

// Engine runs the full interpretation pipeline for one patient:
// detection, scoring, deduplication, ranking, and recommendation
// assembly. It is safe for concurrent use; all state lives in the
// knowledge base and the per-call report.
type Engine struct {
	kb          domain.KnowledgeBase
	detector    *Detector
	scorer      *Scorer
	deduper     *Deduper
	recommender *Recommender
	logger      *logrus.Logger
}

// NewEngine wires the pipeline stages around a shared knowledge base.
func NewEngine(kb domain.KnowledgeBase, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		kb:          kb,
		detector:    NewDetector(kb, logger),
		scorer:      NewScorer(logger),
		deduper:     NewDeduper(logger),
		recommender: NewRecommender(kb, logger),
		logger:      logger,
	}
}

// Analyze runs the pipeline for a single patient and returns the
// complete report. Invalid input returns an InputError; pipeline
// defects surface as InternalError. A patient with no interactions
// gets an empty, well-formed report rather than an error.
func (e *Engine) Analyze(ctx context.Context, patient *domain.Patient) (*domain.AnalysisReport, error) {
	started := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, domain.NewInputError("patient", "patient payload is required", nil)
	}
	if err := patient.Validate(); err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"patient_id":  patient.ID,
		"medications": len(patient.Medications),
		"genes":       len(patient.Genotype),
	})
	log.Debug("Starting patient analysis")

	detected, warnings := e.detector.Detect(patient)

	scored, err := e.scorer.Score(detected)
	if err != nil {
		return nil, err
	}

	ranked, err := e.deduper.MergeAndRank(scored)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recommendations, err := e.recommender.Recommend(patient, ranked)
	if err != nil {
		return nil, err
	}

	report := &domain.AnalysisReport{
		PatientID:       patient.ID,
		Findings:        ranked,
		Recommendations: recommendations,
		RiskSummary:     summarizeRisk(ranked),
		Warnings:        warnings,
		KBVersion:       e.kb.Info().Version,
		GeneratedAt:     time.Now().UTC(),
		ProcessingTime:  time.Since(started),
	}

	log.WithFields(logrus.Fields{
		"findings":        len(ranked),
		"recommendations": len(recommendations),
		"risk_category":   report.RiskSummary.Category,
		"duration_ms":     report.ProcessingTime.Milliseconds(),
	}).Info("Patient analysis completed")

	return report, nil
}

// summarizeRisk aggregates ranked findings into the report's risk
// summary. OverallScore and MaxScore coincide: the riskiest single
// finding sets the tone for the whole report, since risks to a patient
// do not cancel out.
func summarizeRisk(findings []domain.Finding) domain.RiskSummary {
	summary := domain.RiskSummary{
		Category:      CategoryNone,
		TotalFindings: len(findings),
	}
	if len(findings) == 0 {
		return summary
	}

	total := 0
	for i := range findings {
		f := &findings[i]
		total += f.Score
		if f.Score > summary.MaxScore {
			summary.MaxScore = f.Score
		}
		switch f.Severity {
		case domain.CRITICAL:
			summary.CriticalCount++
		case domain.HIGH:
			summary.HighCount++
		case domain.MODERATE:
			summary.ModerateCount++
		case domain.LOW:
			summary.LowCount++
		}
		if f.Action != domain.MONITOR {
			summary.ActionableCount++
		}
	}

	summary.OverallScore = summary.MaxScore
	summary.AverageScore = float64(total) / float64(len(findings))

	switch {
	case summary.CriticalCount > 0:
		summary.Category = CategoryCritical
	case summary.HighCount > 0:
		summary.Category = CategoryHigh
	case summary.ModerateCount > 0:
		summary.Category = CategoryModerate
	default:
		summary.Category = CategoryLow
	}
	return summary
}

// IsFatal reports whether an analysis error is a pipeline defect rather
// than bad input. Batch processing continues past input errors but must
// stop on defects: a broken invariant poisons every subsequent result.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsInputError(err) {
		return false
	}
	var internal *domain.InternalError
	if errors.As(err, &internal) {
		return true
	}
	return errors.Is(err, domain.ErrInvariantViolation)
}
