// Package report renders analysis output for humans: a clinician text
// summary, an HTML clinical report, and the batch summary JSON export.
// It consumes engine output types only and never re-queries the
// knowledge base.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// Generator renders analysis reports.
type Generator struct {
	logger *logrus.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{logger: logger}
}

// ReportID builds the stable report identifier RPT-{patientID}-{date}.
// The date comes from the report's generation time, so re-rendering a
// stored report keeps its ID.
func ReportID(report *domain.AnalysisReport) string {
	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	patientID := report.PatientID
	if patientID == "" {
		patientID = "UNK"
	}
	return fmt.Sprintf("RPT-%s-%s", patientID, generated.Format("20060102"))
}

// TextSummary renders the clinician-readable executive summary.
func (g *Generator) TextSummary(report *domain.AnalysisReport) string {
	risk := report.RiskSummary

	var b strings.Builder
	fmt.Fprintf(&b, "PHARMACOGENOMICS REPORT SUMMARY - %s\n", report.PatientID)
	fmt.Fprintf(&b, "Report ID: %s\n", ReportID(report))
	fmt.Fprintf(&b, "Risk Category: %s\n", risk.Category)
	fmt.Fprintf(&b, "Total Findings: %d (Critical: %d, High: %d, Moderate: %d)\n",
		risk.TotalFindings, risk.CriticalCount, risk.HighCount, risk.ModerateCount)

	if len(report.Warnings) > 0 {
		b.WriteString("\nWARNINGS:\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w.Message)
		}
	}

	b.WriteString("\nPRIORITY RECOMMENDATIONS:\n")
	if len(report.Recommendations) == 0 {
		b.WriteString("  none\n")
	}
	for i, rec := range report.Recommendations {
		text := rec.Text
		if text == "" {
			text = rec.Rationale
		}
		fmt.Fprintf(&b, "  %d. [%s] %s: %s\n",
			i+1, strings.ToUpper(string(rec.TimeFrame)), rec.Drug, text)
	}

	return b.String()
}

// patientDigest is one patient's entry in the batch summary export.
type patientDigest struct {
	RiskSummary         domain.RiskSummary `json:"risk_summary"`
	FindingCount        int                `json:"finding_count"`
	RecommendationCount int                `json:"recommendation_count"`
	CriticalFindings    []string           `json:"critical_findings"`
}

// WriteBatchSummary writes the analysis_summary.json document: one
// digest per analyzed patient, keyed by patient ID.
func WriteBatchSummary(summary *domain.BatchSummary, w io.Writer) error {
	digests := make(map[string]patientDigest, len(summary.Reports))
	for i := range summary.Reports {
		report := &summary.Reports[i]

		critical := []string{}
		for _, finding := range report.Findings {
			if finding.Severity == domain.CRITICAL {
				critical = append(critical, finding.Summary)
			}
		}

		digests[report.PatientID] = patientDigest{
			RiskSummary:         report.RiskSummary,
			FindingCount:        len(report.Findings),
			RecommendationCount: len(report.Recommendations),
			CriticalFindings:    critical,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(digests)
}

// WriteBatch renders every report of a batch into dir: one HTML report
// per patient plus analysis_summary.json.
func (g *Generator) WriteBatch(summary *domain.BatchSummary, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	for i := range summary.Reports {
		report := &summary.Reports[i]
		path := filepath.Join(dir, fmt.Sprintf("report_%s.html", report.PatientID))
		if err := g.WriteHTML(report, path); err != nil {
			return err
		}
	}

	summaryPath := filepath.Join(dir, "analysis_summary.json")
	f, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", summaryPath, err)
	}
	defer f.Close()

	if err := WriteBatchSummary(summary, f); err != nil {
		return fmt.Errorf("failed to write batch summary: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"reports": len(summary.Reports),
		"dir":     dir,
	}).Info("Batch reports written")
	return nil
}
