package service

import (
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// Score modifiers applied on top of the severity band baseline.
const (
	fdaLabelBonus        = 5
	phenoconversionBonus = 8
)

// ScoreInput carries the exact factors the scoring function consumes.
// Keeping scoring separate from detection lets the scoring rules be
// tested against literal inputs.
type ScoreInput struct {
	Severity        domain.Severity
	Evidence        domain.EvidenceLevel
	FDALabel        bool
	Phenoconversion bool
	Contraindicated bool
}

// ComputeScore converts scoring factors into a 0-100 risk score:
// severity band midpoint, evidence discount, FDA label bonus,
// phenoconversion compounding bonus, clamp, then the contraindication
// floor after all other modifiers.
func ComputeScore(in ScoreInput) int {
	score := in.Severity.BaseScore()
	score += in.Evidence.ScoreModifier()
	if in.FDALabel {
		score += fdaLabelBonus
	}
	if in.Phenoconversion {
		score += phenoconversionBonus
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	if in.Contraindicated && score < domain.ContraindicatedFloor {
		score = domain.ContraindicatedFloor
	}
	return score
}

// Scorer assigns risk scores to detected findings.
type Scorer struct {
	logger *logrus.Logger
}

// NewScorer creates a risk scorer.
func NewScorer(logger *logrus.Logger) *Scorer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scorer{logger: logger}
}

// Score assigns each finding its risk score and advances it to SCORED.
// A finding that fails validation after scoring is an internal defect,
// not a data problem, and aborts the analysis.
func (s *Scorer) Score(findings []domain.Finding) ([]domain.Finding, error) {
	scored := make([]domain.Finding, 0, len(findings))

	for _, finding := range findings {
		finding.Score = ComputeScore(ScoreInput{
			Severity:        finding.Severity,
			Evidence:        finding.Evidence,
			FDALabel:        finding.FDALabel,
			Phenoconversion: finding.HasMechanism(domain.PHENOCONVERSION),
			Contraindicated: finding.Action == domain.CONTRAINDICATED,
		})

		if err := finding.TransitionTo(domain.SCORED); err != nil {
			return nil, domain.NewInternalError("score", err)
		}
		if err := finding.Validate(); err != nil {
			return nil, domain.NewInternalError("score", err)
		}

		s.logger.WithFields(logrus.Fields{
			"finding_id": finding.ID,
			"drug":       finding.DrugLabel(),
			"severity":   finding.Severity.String(),
			"score":      finding.Score,
		}).Debug("Finding scored")

		scored = append(scored, finding)
	}

	return scored, nil
}
