package mcp

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/pkg/kb"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTestTools(t *testing.T) *Tools {
	t.Helper()
	logger := quietLogger()
	provider, err := kb.Default(logger)
	require.NoError(t, err)
	return NewTools(service.NewEngine(provider, logger), provider, logger)
}

func TestAnalyzePatientTool(t *testing.T) {
	tools := newTestTools(t)

	args := analyzePatientArgs{Patient: map[string]any{
		"patient_id": "PT-1001",
		"genotype": map[string]any{
			"CYP2D6": map[string]any{
				"diplotype": "*1/*1xN",
				"phenotype": "ultra_rapid_metabolizer",
			},
		},
		"medications": []any{"codeine"},
	}}

	_, out, err := tools.AnalyzePatient(context.Background(), nil, args)
	require.NoError(t, err)

	report, ok := out.(*domain.AnalysisReport)
	require.True(t, ok, "handler returns the analysis report")
	assert.Equal(t, "PT-1001", report.PatientID)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, domain.CRITICAL, report.Findings[0].Severity)
}

func TestAnalyzePatientToolRejectsBadInput(t *testing.T) {
	tools := newTestTools(t)

	_, _, err := tools.AnalyzePatient(context.Background(), nil, analyzePatientArgs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, _, err = tools.AnalyzePatient(context.Background(), nil, analyzePatientArgs{
		Patient: map[string]any{"patient_id": "PT-1"},
	})
	require.Error(t, err)
	assert.True(t, domain.IsInputError(err))
}

func TestLookupGeneDrugRuleTool(t *testing.T) {
	tools := newTestTools(t)

	_, out, err := tools.LookupGeneDrugRule(context.Background(), nil,
		geneDrugArgs{Gene: "cyp2d6", Drug: "Codeine"})
	require.NoError(t, err)

	rule, ok := out.(*domain.GeneDrugRule)
	require.True(t, ok)
	assert.Equal(t, "CYP2D6", rule.Gene)
	assert.NotEmpty(t, rule.PhenotypeImpacts)

	_, _, err = tools.LookupGeneDrugRule(context.Background(), nil,
		geneDrugArgs{Gene: "CYP2D6", Drug: "aspirin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gene-drug rule")

	_, _, err = tools.LookupGeneDrugRule(context.Background(), nil, geneDrugArgs{Gene: "CYP2D6"})
	require.Error(t, err)
}

func TestLookupDDITool(t *testing.T) {
	tools := newTestTools(t)

	// Pair order must not matter.
	_, out, err := tools.LookupDDI(context.Background(), nil,
		ddiArgs{DrugA: "fluoxetine", DrugB: "codeine"})
	require.NoError(t, err)

	rule, ok := out.(*domain.DrugDrugRule)
	require.True(t, ok)
	assert.NotEmpty(t, rule.Severity)
	assert.NotEmpty(t, rule.Mechanism)

	_, _, err = tools.LookupDDI(context.Background(), nil,
		ddiArgs{DrugA: "codeine", DrugB: "metformin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tabulated interaction")
}

func TestListEnzymeModulatorsTool(t *testing.T) {
	tools := newTestTools(t)

	_, out, err := tools.ListEnzymeModulators(context.Background(), nil,
		enzymeArgs{Enzyme: "cyp2d6"})
	require.NoError(t, err)

	answer, ok := out.(enzymeModulators)
	require.True(t, ok)
	assert.Equal(t, "CYP2D6", answer.Enzyme)
	require.NotEmpty(t, answer.Inhibitors)

	drugs := make([]string, 0, len(answer.Inhibitors))
	for _, mod := range answer.Inhibitors {
		drugs = append(drugs, mod.Drug)
	}
	assert.Contains(t, drugs, "fluoxetine")

	// Unknown enzymes answer with empty lists, not an error.
	_, out, err = tools.ListEnzymeModulators(context.Background(), nil,
		enzymeArgs{Enzyme: "CYP99Z9"})
	require.NoError(t, err)
	answer = out.(enzymeModulators)
	assert.Empty(t, answer.Inhibitors)
	assert.Empty(t, answer.Inducers)
}

func TestDosingAndAlternativesTool(t *testing.T) {
	tools := newTestTools(t)

	_, out, err := tools.DosingAndAlternatives(context.Background(), nil,
		drugArgs{Drug: "Codeine"})
	require.NoError(t, err)

	answer, ok := out.(dosingAnswer)
	require.True(t, ok)
	assert.Equal(t, "codeine", answer.Drug)
	require.NotNil(t, answer.Guideline)
	assert.Contains(t, answer.Guideline.Alternatives, "morphine")
	assert.NotEmpty(t, answer.Guideline.Monitoring)

	_, _, err = tools.DosingAndAlternatives(context.Background(), nil,
		drugArgs{Drug: "unobtainium"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the knowledge base")
}

func TestKBInfoTool(t *testing.T) {
	tools := newTestTools(t)

	_, out, err := tools.KBInfo(context.Background(), nil, kbInfoArgs{})
	require.NoError(t, err)

	info, ok := out.(domain.KBInfo)
	require.True(t, ok)
	assert.NotEmpty(t, info.Version)
	assert.Greater(t, info.GeneDrugRules, 0)
	assert.Greater(t, info.DrugDrugRules, 0)
}

func TestNewServerRegistersTools(t *testing.T) {
	logger := quietLogger()
	provider, err := kb.Default(logger)
	require.NoError(t, err)

	srv := NewServer(&domain.Config{}, provider, logger)
	require.NotNil(t, srv)
	assert.NotNil(t, srv.mcp)
}
