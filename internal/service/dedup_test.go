package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-risk-engine/internal/domain"
)

// scoredFinding builds a finding in the SCORED state, the only state
// MergeAndRank accepts.
func scoredFinding(id string, mutate func(*domain.Finding)) domain.Finding {
	f := domain.Finding{
		ID:         id,
		Gene:       "CYP2D6",
		Drug:       "codeine",
		Mechanisms: []domain.Mechanism{domain.GENE_DRUG},
		Severity:   domain.MODERATE,
		Evidence:   domain.EVIDENCE_A,
		Action:     domain.MONITOR,
		Score:      44,
		State:      domain.SCORED,
	}
	if mutate != nil {
		mutate(&f)
	}
	return f
}

func TestMergeAndRankCollapsesSameKey(t *testing.T) {
	deduper := NewDeduper(quietLogger())

	geneDrug := scoredFinding("f-gene", func(f *domain.Finding) {
		f.Summary = "baseline intermediate metabolizer"
		f.CPICGuideline = "CPIC Guideline for Codeine and CYP2D6"
	})
	pheno := scoredFinding("f-pheno", func(f *domain.Finding) {
		f.Mechanisms = []domain.Mechanism{domain.PHENOCONVERSION}
		f.Severity = domain.HIGH
		f.Score = 77
		f.Action = domain.SWITCH_DRUG
		f.BaselinePhenotype = domain.INTERMEDIATE_METABOLIZER
		f.Phenotype = domain.POOR_METABOLIZER
		f.TriggeringDrugs = []string{"fluoxetine"}
		f.Summary = "functional poor metabolizer"
	})

	ranked, err := deduper.MergeAndRank([]domain.Finding{geneDrug, pheno})
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	merged := ranked[0]
	assert.Equal(t, "f-pheno", merged.ID, "higher score contributes the narrative")
	assert.Equal(t, []domain.Mechanism{domain.GENE_DRUG, domain.PHENOCONVERSION}, merged.Mechanisms, "union in canonical order")
	assert.Equal(t, domain.HIGH, merged.Severity)
	assert.Equal(t, 77, merged.Score)
	assert.Equal(t, domain.SWITCH_DRUG, merged.Action)
	assert.Equal(t, domain.INTERMEDIATE_METABOLIZER, merged.BaselinePhenotype)
	assert.Equal(t, []string{"fluoxetine"}, merged.TriggeringDrugs)
	assert.Equal(t, "CPIC Guideline for Codeine and CYP2D6", merged.CPICGuideline, "narrative gaps backfill from the merged-away finding")
	assert.Equal(t, domain.RANKED, merged.State)
}

func TestMergeKeepsMostConservativeAction(t *testing.T) {
	deduper := NewDeduper(quietLogger())

	contraindicated := scoredFinding("f-1", func(f *domain.Finding) {
		f.Action = domain.CONTRAINDICATED
		f.Severity = domain.CRITICAL
		f.Score = 92
	})
	reduce := scoredFinding("f-2", func(f *domain.Finding) {
		f.Mechanisms = []domain.Mechanism{domain.PHENOCONVERSION}
		f.Action = domain.REDUCE_DOSE
		f.Severity = domain.HIGH
		f.Score = 95
	})

	ranked, err := deduper.MergeAndRank([]domain.Finding{contraindicated, reduce})
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	// The reduce_dose side wins the narrative on score, but the merged
	// action can never be weaker than either input.
	assert.Equal(t, domain.CONTRAINDICATED, ranked[0].Action)
	assert.Equal(t, domain.CRITICAL, ranked[0].Severity)
	assert.Equal(t, 95, ranked[0].Score)
}

func TestMergeAndRankKeepsDistinctKeys(t *testing.T) {
	deduper := NewDeduper(quietLogger())

	codeine := scoredFinding("f-1", nil)
	tamoxifen := scoredFinding("f-2", func(f *domain.Finding) {
		f.Drug = "tamoxifen"
		f.Score = 60
		f.Severity = domain.HIGH
	})
	pair := scoredFinding("f-3", func(f *domain.Finding) {
		f.Gene = ""
		f.Drug = ""
		f.DrugPair = []string{"fluoxetine", "codeine"}
		f.Mechanisms = []domain.Mechanism{domain.DRUG_DRUG}
		f.Score = 66
		f.Severity = domain.HIGH
	})
	renal := scoredFinding("f-4", func(f *domain.Finding) {
		f.Gene = ""
		f.Drug = "metformin"
		f.Mechanisms = []domain.Mechanism{domain.RENAL}
		f.Score = 74
		f.Severity = domain.HIGH
	})

	ranked, err := deduper.MergeAndRank([]domain.Finding{codeine, tamoxifen, pair, renal})
	require.NoError(t, err)
	assert.Len(t, ranked, 4, "different keys never merge")
}

func TestRankingIsDeterministic(t *testing.T) {
	deduper := NewDeduper(quietLogger())

	build := func() []domain.Finding {
		return []domain.Finding{
			scoredFinding("f-1", func(f *domain.Finding) { f.Drug = "codeine"; f.Score = 70; f.Severity = domain.HIGH }),
			scoredFinding("f-2", func(f *domain.Finding) { f.Drug = "tamoxifen"; f.Score = 70; f.Severity = domain.HIGH }),
			scoredFinding("f-3", func(f *domain.Finding) { f.Drug = "atomoxetine"; f.Score = 70; f.Severity = domain.MODERATE }),
			scoredFinding("f-4", func(f *domain.Finding) { f.Drug = "nortriptyline"; f.Score = 90; f.Severity = domain.CRITICAL }),
		}
	}

	baseline, err := deduper.MergeAndRank(build())
	require.NoError(t, err)

	for seed := int64(0); seed < 5; seed++ {
		shuffled := build()
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		ranked, err := deduper.MergeAndRank(shuffled)
		require.NoError(t, err)
		require.Len(t, ranked, len(baseline))
		for i := range baseline {
			assert.Equal(t, baseline[i].ID, ranked[i].ID, "seed %d position %d", seed, i)
		}
	}

	// Score first, severity breaks score ties, key string breaks both.
	assert.Equal(t, "f-4", baseline[0].ID)
	assert.Equal(t, "f-1", baseline[1].ID, "codeine sorts before tamoxifen at equal score and severity")
	assert.Equal(t, "f-2", baseline[2].ID)
	assert.Equal(t, "f-3", baseline[3].ID)
}

func TestMergeAndRankRejectsReprocessedFinding(t *testing.T) {
	deduper := NewDeduper(quietLogger())

	// A finding that already passed ranking cannot re-enter the stage;
	// the state machine only moves forward.
	done := scoredFinding("f-1", func(f *domain.Finding) { f.State = domain.RANKED })

	_, err := deduper.MergeAndRank([]domain.Finding{done})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestMergeAndRankEmptyInput(t *testing.T) {
	deduper := NewDeduper(quietLogger())

	ranked, err := deduper.MergeAndRank(nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}
