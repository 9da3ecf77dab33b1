package service

import (
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// Deduper reconciles findings that describe the same clinical concern
// through different mechanisms: a gene-drug rule and a phenoconversion
// shift on the same gene and drug collapse into one finding carrying
// both mechanisms, the worst severity, the highest score, and the most
// conservative action.
type Deduper struct {
	logger *logrus.Logger
}

// NewDeduper creates a finding deduplicator.
func NewDeduper(logger *logrus.Logger) *Deduper {
	if logger == nil {
		logger = logrus.New()
	}
	return &Deduper{logger: logger}
}

// MergeAndRank merges scored findings by deduplication key and sorts
// the survivors by score descending, severity rank descending, then key
// ascending, so output order is reproducible regardless of medication
// input order. Survivors leave in the RANKED state.
func (d *Deduper) MergeAndRank(findings []domain.Finding) ([]domain.Finding, error) {
	groups := make(map[string]int)
	merged := make([]domain.Finding, 0, len(findings))

	for _, finding := range findings {
		key := finding.Key().String()
		if idx, ok := groups[key]; ok {
			merged[idx] = mergeFindings(merged[idx], finding)
			d.logger.WithFields(logrus.Fields{
				"key":        key,
				"mechanisms": len(merged[idx].Mechanisms),
			}).Debug("Findings merged")
			continue
		}
		groups[key] = len(merged)
		merged = append(merged, finding)
	}

	for i := range merged {
		if err := merged[i].TransitionTo(domain.DEDUPLICATED); err != nil {
			return nil, domain.NewInternalError("dedup", err)
		}
	}

	// One finding per key is the post-merge contract.
	seen := make(map[string]bool, len(merged))
	for i := range merged {
		key := merged[i].Key().String()
		if seen[key] {
			return nil, domain.NewInternalError("dedup", domain.ErrDuplicateFinding)
		}
		seen[key] = true
	}

	domain.SortFindings(merged)

	for i := range merged {
		if err := merged[i].TransitionTo(domain.RANKED); err != nil {
			return nil, domain.NewInternalError("rank", err)
		}
	}

	return merged, nil
}

// mergeFindings combines two findings sharing a deduplication key. The
// higher-scoring finding contributes the narrative fields; structural
// fields take the more conservative value from either side.
func mergeFindings(a, b domain.Finding) domain.Finding {
	primary, secondary := a, b
	if b.Score > a.Score || (b.Score == a.Score && b.Severity.Rank() > a.Severity.Rank()) {
		primary, secondary = b, a
	}

	merged := primary
	merged.Mechanisms = domain.MergeMechanisms(a.Mechanisms, b.Mechanisms)
	if secondary.Severity.Rank() > merged.Severity.Rank() {
		merged.Severity = secondary.Severity
	}
	if secondary.Score > merged.Score {
		merged.Score = secondary.Score
	}
	merged.Action = domain.MostConservativeAction(a.Action, b.Action)
	merged.FDALabel = a.FDALabel || b.FDALabel
	if secondary.Evidence.ScoreModifier() > merged.Evidence.ScoreModifier() {
		merged.Evidence = secondary.Evidence
	}

	if merged.BaselinePhenotype == "" {
		merged.BaselinePhenotype = secondary.BaselinePhenotype
	}
	if len(merged.TriggeringDrugs) == 0 {
		merged.TriggeringDrugs = secondary.TriggeringDrugs
	}
	if merged.CPICGuideline == "" {
		merged.CPICGuideline = secondary.CPICGuideline
	}
	if len(merged.References) == 0 {
		merged.References = secondary.References
	}
	if merged.Diplotype == "" {
		merged.Diplotype = secondary.Diplotype
	}
	if merged.TherapeuticArea == "" {
		merged.TherapeuticArea = secondary.TherapeuticArea
	}
	if merged.DrugClass == "" {
		merged.DrugClass = secondary.DrugClass
	}

	return merged
}
