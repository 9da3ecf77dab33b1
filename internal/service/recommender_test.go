package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/pkg/kb"
)

func TestActionFromDosing(t *testing.T) {
	tests := []struct {
		dosing string
		want   domain.Action
	}{
		{dosing: "contraindicated", want: domain.CONTRAINDICATED},
		{dosing: "switch_drug", want: domain.SWITCH_DRUG},
		{dosing: "use_alternative_preferred", want: domain.SWITCH_DRUG},
		{dosing: "reduce_50_percent", want: domain.REDUCE_DOSE},
		{dosing: "reduce_major", want: domain.REDUCE_DOSE},
		{dosing: "monitor", want: domain.MONITOR},
		{dosing: "none", want: domain.MONITOR},
		{dosing: "  Contraindicated  ", want: domain.CONTRAINDICATED},
		{dosing: "brand_new_vocabulary", want: domain.MONITOR},
		{dosing: "", want: domain.MONITOR},
	}

	for _, tt := range tests {
		t.Run(tt.dosing, func(t *testing.T) {
			assert.Equal(t, tt.want, ActionFromDosing(tt.dosing))
		})
	}
}

func TestRecommendPriorityFollowsRank(t *testing.T) {
	engine := newTestEngine(t)

	patient := &domain.Patient{
		ID: "PT-1",
		Genotype: domain.Genotype{
			"CYP2D6":  {Phenotype: domain.ULTRA_RAPID_METABOLIZER},
			"CYP2C19": {Phenotype: domain.POOR_METABOLIZER},
		},
		Medications: meds("codeine", "citalopram"),
	}

	report, err := engine.Analyze(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 2)

	assert.Equal(t, 1, report.Recommendations[0].Priority)
	assert.Equal(t, "codeine", report.Recommendations[0].Drug)
	assert.Equal(t, 2, report.Recommendations[1].Priority)
	assert.Equal(t, "citalopram", report.Recommendations[1].Drug)
	assert.Greater(t, report.Recommendations[0].Score, report.Recommendations[1].Score)
}

func TestRecommendTimeFrames(t *testing.T) {
	tests := []struct {
		name    string
		finding domain.Finding
		want    domain.TimeFrame
	}{
		{
			name:    "critical severity",
			finding: domain.Finding{Severity: domain.CRITICAL, Action: domain.SWITCH_DRUG},
			want:    domain.IMMEDIATE,
		},
		{
			name:    "contraindicated action at lower severity",
			finding: domain.Finding{Severity: domain.HIGH, Action: domain.CONTRAINDICATED},
			want:    domain.IMMEDIATE,
		},
		{
			name:    "high severity",
			finding: domain.Finding{Severity: domain.HIGH, Action: domain.REDUCE_DOSE},
			want:    domain.NEXT_VISIT,
		},
		{
			name:    "moderate severity",
			finding: domain.Finding{Severity: domain.MODERATE, Action: domain.MONITOR},
			want:    domain.ROUTINE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timeFrame(&tt.finding))
		})
	}
}

func TestMonitoringPlans(t *testing.T) {
	tests := []struct {
		name    string
		finding domain.Finding
		wantSub string
	}{
		{
			name:    "warfarin always gets INR plan",
			finding: domain.Finding{Drug: "warfarin", Gene: "CYP2C9", Action: domain.REDUCE_DOSE},
			wantSub: "INR",
		},
		{
			name:    "contraindicated plan",
			finding: domain.Finding{Drug: "codeine", Gene: "CYP2D6", Action: domain.CONTRAINDICATED},
			wantSub: "Discontinue",
		},
		{
			name:    "tpmt protocol",
			finding: domain.Finding{Drug: "mercaptopurine", Gene: "TPMT", Action: domain.MONITOR},
			wantSub: "TGN",
		},
		{
			name:    "statin muscle symptoms",
			finding: domain.Finding{Drug: "simvastatin", Gene: "SLCO1B1", Action: domain.MONITOR},
			wantSub: "muscle",
		},
		{
			name:    "default standard of care",
			finding: domain.Finding{Drug: "ondansetron", Gene: "CYP2D6", Action: domain.MONITOR},
			wantSub: "standard of care",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, monitoringPlan(&tt.finding), tt.wantSub)
		})
	}
}

func TestMonitoringPlanPrefersGuidelineText(t *testing.T) {
	docs := kb.Documents{
		GeneDrug: kb.GeneDrugDocument{
			Version: "fixture",
			GeneDrugInteractions: []domain.GeneDrugRule{
				{
					Gene: "CYP2D6",
					Drug: "ondansetron",
					PhenotypeImpacts: map[domain.Phenotype]domain.PhenotypeImpact{
						domain.ULTRA_RAPID_METABOLIZER: {
							RiskLevel:        "moderate",
							DosingAdjustment: "monitor",
						},
					},
				},
				{
					Gene: "CYP2D6",
					Drug: "dextromethorphan",
					PhenotypeImpacts: map[domain.Phenotype]domain.PhenotypeImpact{
						domain.ULTRA_RAPID_METABOLIZER: {
							RiskLevel:        "low",
							DosingAdjustment: "monitor",
						},
					},
				},
			},
		},
		Dosing: kb.DosingDocument{
			Version: "fixture",
			DosingGuidelines: map[string]kb.DosingEntry{
				"ondansetron": {
					Monitoring: "Assess antiemetic response after first cycle",
				},
			},
		},
	}
	provider, err := kb.NewProvider(docs, "fixture")
	require.NoError(t, err)

	engine := NewEngine(provider, quietLogger())
	patient := &domain.Patient{
		ID:          "PT-1",
		Genotype:    domain.Genotype{"CYP2D6": {Phenotype: domain.ULTRA_RAPID_METABOLIZER}},
		Medications: meds("ondansetron", "dextromethorphan"),
	}

	report, err := engine.Analyze(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 2)

	plans := map[string]string{}
	for _, rec := range report.Recommendations {
		plans[rec.Drug] = rec.MonitoringPlan
	}
	assert.Equal(t, "Assess antiemetic response after first cycle", plans["ondansetron"],
		"tabulated monitoring text fills the generic plan")
	assert.Equal(t, defaultMonitoringPlan, plans["dextromethorphan"])
}

func TestBuildRationale(t *testing.T) {
	finding := domain.Finding{
		Gene:                "CYP2D6",
		Phenotype:           domain.ULTRA_RAPID_METABOLIZER,
		MechanismDetail:     "CYP2D6 O-demethylation to morphine",
		ClinicalConsequence: "Life-threatening respiratory depression",
		Evidence:            domain.EVIDENCE_A,
		FDALabel:            true,
	}

	rationale := buildRationale(&finding)
	assert.Contains(t, rationale, "ultra rapid metabolizer")
	assert.Contains(t, rationale, "CYP2D6")
	assert.Contains(t, rationale, "respiratory depression")
	assert.Contains(t, rationale, "CPIC Level A")
	assert.Contains(t, rationale, "FDA labeling")

	finding.FDALabel = false
	assert.NotContains(t, buildRationale(&finding), "FDA")
}

// alternativesFixture tabulates a substitute that is just as risky for
// the patient as the drug it would replace.
func alternativesFixture(t *testing.T) domain.KnowledgeBase {
	t.Helper()

	docs := kb.Documents{
		GeneDrug: kb.GeneDrugDocument{
			Version: "fixture",
			GeneDrugInteractions: []domain.GeneDrugRule{
				{
					Gene: "CYP2C19",
					Drug: "citalopram",
					PhenotypeImpacts: map[domain.Phenotype]domain.PhenotypeImpact{
						domain.POOR_METABOLIZER: {
							RiskLevel:        "high",
							DosingAdjustment: "use_alternative_preferred",
							Recommendation:   "Switch to an SSRI without CYP2C19 dependence.",
							EvidenceLevel:    "CPIC Level A",
							FDALabel:         true,
						},
					},
				},
				{
					Gene: "CYP2C19",
					Drug: "escitalopram",
					PhenotypeImpacts: map[domain.Phenotype]domain.PhenotypeImpact{
						domain.POOR_METABOLIZER: {
							RiskLevel:        "high",
							DosingAdjustment: "reduce_50_percent",
						},
					},
				},
			},
		},
		Dosing: kb.DosingDocument{
			Version: "fixture",
			DosingGuidelines: map[string]kb.DosingEntry{
				"citalopram": {
					Alternatives: []string{"escitalopram", "sertraline"},
					Monitoring:   "Baseline ECG for QT interval",
				},
			},
		},
	}

	provider, err := kb.NewProvider(docs, "fixture")
	require.NoError(t, err)
	return provider
}

func TestRecommendFiltersUnsafeAlternatives(t *testing.T) {
	logger := quietLogger()
	engine := NewEngine(alternativesFixture(t), logger)

	patient := &domain.Patient{
		ID: "PT-1",
		Genotype: domain.Genotype{
			"CYP2C19": {Diplotype: "*2/*2", Phenotype: domain.POOR_METABOLIZER},
		},
		Medications: meds("citalopram"),
	}

	report, err := engine.Analyze(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)

	rec := report.Recommendations[0]
	assert.Equal(t, domain.SWITCH_DRUG, rec.Action)
	assert.Contains(t, rec.Alternatives, "sertraline")
	assert.NotContains(t, rec.Alternatives, "escitalopram",
		"a substitute sharing the compromised pathway is not offered")
}

func TestRecommendNoAlternativesForDoseReduction(t *testing.T) {
	engine := newTestEngine(t)

	patient := &domain.Patient{
		ID:          "PT-1",
		Genotype:    domain.Genotype{"CYP2C19": {Phenotype: domain.POOR_METABOLIZER}},
		Medications: meds("citalopram"),
	}

	report, err := engine.Analyze(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, domain.REDUCE_DOSE, report.Recommendations[0].Action)
	assert.Empty(t, report.Recommendations[0].Alternatives)
}
