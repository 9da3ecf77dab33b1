package validation

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

func newTestSuite(t *testing.T) *Suite {
	t.Helper()
	logger := quietLogger()
	provider, err := kb.Default(logger)
	require.NoError(t, err)
	return NewSuite(service.NewEngine(provider, logger), logger)
}

func runSuite(t *testing.T) []CaseResult {
	t.Helper()
	results, err := newTestSuite(t).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 12)
	return results
}

func TestScenarioFixturesAreValid(t *testing.T) {
	for _, sc := range Scenarios() {
		require.NoError(t, sc.Patient.Validate(), "scenario %s", sc.ID)
		require.NotEmpty(t, sc.Expected, "scenario %s", sc.ID)
	}
}

func TestSuitePassesEveryScenario(t *testing.T) {
	for _, result := range runSuite(t) {
		assert.True(t, result.Passed, "scenario %s: %+v", result.ScenarioID, result.Checks)
		for _, check := range result.Checks {
			assert.True(t, check.Found, "%s: %s not found", result.ScenarioID, check.Expectation.Description)
			assert.True(t, check.ActionAppropriate, "%s: action mismatch for %s",
				result.ScenarioID, check.Expectation.Description)
		}
	}
}

func TestSuiteDualFlagScenarios(t *testing.T) {
	byID := make(map[string]CaseResult)
	for _, result := range runSuite(t) {
		byID[result.ScenarioID] = result
	}

	codeine := byID["TC08"]
	require.Len(t, codeine.Checks, 2)
	gene, ddi := codeine.Checks[0], codeine.Checks[1]
	require.NotNil(t, gene.Matched)
	assert.Equal(t, "CYP2D6", gene.Matched.Gene)
	assert.Equal(t, domain.HIGH, gene.Matched.Severity)
	require.NotNil(t, ddi.Matched)
	assert.Equal(t, "codeine + fluoxetine", ddi.Matched.Drug)

	clopidogrel := byID["TC09"]
	require.Len(t, clopidogrel.Checks, 2)
	assert.Equal(t, domain.CRITICAL, clopidogrel.Checks[0].Matched.Severity)
	assert.Equal(t, "clopidogrel + omeprazole", clopidogrel.Checks[1].Matched.Drug)
}

func TestSuiteWarfarinEmitsBothGeneFindings(t *testing.T) {
	for _, result := range runSuite(t) {
		if result.ScenarioID != "TC03" {
			continue
		}
		require.Len(t, result.Checks, 2)
		genes := []string{result.Checks[0].Matched.Gene, result.Checks[1].Matched.Gene}
		assert.ElementsMatch(t, []string{"VKORC1", "CYP2C9"}, genes)
		return
	}
	t.Fatal("TC03 missing from suite results")
}

func TestComputeMetricsFullPass(t *testing.T) {
	results := runSuite(t)
	m := ComputeMetrics(results)

	assert.Equal(t, 12, m.TotalCases)
	assert.Equal(t, 12, m.CasesPassed)
	assert.Equal(t, 15, m.TotalChecks)
	assert.Equal(t, 15, m.ChecksPassed)
	assert.InDelta(t, 1.0, m.Accuracy, 1e-9)
	assert.InDelta(t, 1.0, m.Sensitivity, 1e-9)
	assert.InDelta(t, 1.0, m.CriticalDetectionRate, 1e-9)

	// 11 critical checks counted twice plus 4 high checks once.
	assert.Equal(t, 26, m.AdverseEventsPrevented)
	assert.Equal(t, 26*25000, m.CostAvoided)
	assert.InDelta(t, 27.0, m.HoursSavedTotal, 1e-9)
	assert.Equal(t, 15, m.ActionableChanges)
}

func TestComputeMetricsPartialFailure(t *testing.T) {
	results := []CaseResult{
		{
			ScenarioID: "A",
			Passed:     true,
			Checks: []Check{{
				Expectation: Expectation{Severity: domain.CRITICAL},
				Found:       true, SeverityCorrect: true, Passed: true,
			}},
		},
		{
			ScenarioID: "B",
			Passed:     false,
			Checks: []Check{{
				Expectation: Expectation{Severity: domain.HIGH},
			}},
		},
	}

	m := ComputeMetrics(results)
	assert.Equal(t, 2, m.TotalCases)
	assert.Equal(t, 1, m.CasesPassed)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, m.Sensitivity, 1e-9)
	assert.InDelta(t, 1.0, m.CriticalDetectionRate, 1e-9)
	assert.Equal(t, 2, m.AdverseEventsPrevented)
}

func TestSeverityAcceptable(t *testing.T) {
	assert.True(t, severityAcceptable(domain.CRITICAL, domain.HIGH))
	assert.True(t, severityAcceptable(domain.MODERATE, domain.MODERATE))
	assert.False(t, severityAcceptable(domain.HIGH, domain.CRITICAL))
	assert.False(t, severityAcceptable(domain.CRITICAL, domain.MODERATE))
}

func TestActionAcceptable(t *testing.T) {
	assert.True(t, actionAcceptable(domain.SWITCH_DRUG, domain.CONTRAINDICATED))
	assert.True(t, actionAcceptable(domain.CONTRAINDICATED, domain.SWITCH_DRUG))
	assert.True(t, actionAcceptable(domain.MONITOR, domain.REDUCE_DOSE))
	assert.False(t, actionAcceptable(domain.MONITOR, domain.SWITCH_DRUG))
	assert.False(t, actionAcceptable(domain.REDUCE_DOSE, domain.CONTRAINDICATED))
}

func TestFormatImpactReport(t *testing.T) {
	results := runSuite(t)
	report := FormatImpactReport(results, ComputeMetrics(results))

	assert.Contains(t, report, "CLINICAL VALIDATION & IMPACT REPORT")
	assert.Contains(t, report, "VALIDATION SUMMARY")
	assert.Contains(t, report, "Cases passed:                 12/12")
	assert.Contains(t, report, "Overall accuracy:             100.0%")
	assert.Contains(t, report, "[+] TC02:")
	assert.Contains(t, report, "Matched: codeine | CYP2D6 | critical")
	assert.Contains(t, report, "Total cost avoidance:         $650,000")
	assert.Contains(t, report, "cardiology: 4/4 scenarios passed")
	assert.Contains(t, report, "oncology: 4/4 scenarios passed")
	assert.NotContains(t, report, "[X]")
}

func TestThousands(t *testing.T) {
	assert.Equal(t, "999", thousands(999))
	assert.Equal(t, "25,000", thousands(25000))
	assert.Equal(t, "650,000", thousands(650000))
	assert.Equal(t, "1,000,000", thousands(1000000))
}
