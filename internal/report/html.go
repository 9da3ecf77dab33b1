package report

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pgx-risk-engine/internal/domain"
)

//go:embed templates/clinical_report.html.tmpl
var templateData embed.FS

var (
	tmplOnce sync.Once
	tmpl     *template.Template
	tmplErr  error
)

func reportTemplate() (*template.Template, error) {
	tmplOnce.Do(func() {
		tmpl, tmplErr = template.New("clinical_report.html.tmpl").
			Funcs(template.FuncMap{
				"severityColor":    severityColor,
				"actionLabel":      actionLabel,
				"timeFrameLabel":   timeFrameLabel,
				"phenotypeDisplay": phenotypeDisplay,
			}).
			ParseFS(templateData, "templates/clinical_report.html.tmpl")
	})
	return tmpl, tmplErr
}

// htmlData is the template context for one clinical report.
type htmlData struct {
	Report        *domain.AnalysisReport
	ReportID      string
	Generated     string
	Version       string
	CategoryColor template.CSS
	GeneDrug      []domain.Finding
	DrugDrug      []domain.Finding
	Organ         []domain.Finding
}

// HTML renders the full clinical report.
func (g *Generator) HTML(report *domain.AnalysisReport) (string, error) {
	t, err := reportTemplate()
	if err != nil {
		return "", fmt.Errorf("failed to parse report template: %w", err)
	}

	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	data := htmlData{
		Report:        report,
		ReportID:      ReportID(report),
		Generated:     generated.Format("January 2, 2006 at 15:04 MST"),
		Version:       report.KBVersion,
		CategoryColor: categoryColor(report.RiskSummary),
	}
	for _, finding := range report.Findings {
		switch {
		case finding.HasMechanism(domain.GENE_DRUG) || finding.HasMechanism(domain.PHENOCONVERSION):
			data.GeneDrug = append(data.GeneDrug, finding)
		case finding.HasMechanism(domain.DRUG_DRUG):
			data.DrugDrug = append(data.DrugDrug, finding)
		default:
			data.Organ = append(data.Organ, finding)
		}
	}

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render report for %s: %w", report.PatientID, err)
	}
	return b.String(), nil
}

// WriteHTML renders the report and writes it to path.
func (g *Generator) WriteHTML(report *domain.AnalysisReport, path string) error {
	html, err := g.HTML(report)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	g.logger.WithField("path", path).Debug("HTML report written")
	return nil
}

// categoryColor picks the banner color from the worst severity present,
// mirroring how the risk category itself is derived.
func categoryColor(risk domain.RiskSummary) template.CSS {
	switch {
	case risk.CriticalCount > 0:
		return severityColor(domain.CRITICAL)
	case risk.HighCount > 0:
		return severityColor(domain.HIGH)
	case risk.ModerateCount > 0:
		return severityColor(domain.MODERATE)
	case risk.TotalFindings > 0:
		return severityColor(domain.LOW)
	default:
		return severityColor("")
	}
}

// severityColor returns the display color of a severity band. The
// values are plain hex literals, safe to emit as CSS.
func severityColor(severity domain.Severity) template.CSS {
	switch severity {
	case domain.CRITICAL:
		return "#dc2626"
	case domain.HIGH:
		return "#ea580c"
	case domain.MODERATE:
		return "#d97706"
	case domain.LOW:
		return "#16a34a"
	default:
		return "#6b7280"
	}
}

func actionLabel(action domain.Action) string {
	switch action {
	case domain.CONTRAINDICATED:
		return "DISCONTINUE"
	case domain.SWITCH_DRUG:
		return "SWITCH MEDICATION"
	case domain.REDUCE_DOSE:
		return "ADJUST DOSE"
	case domain.MONITOR:
		return "INCREASE MONITORING"
	default:
		return strings.ToUpper(string(action))
	}
}

func timeFrameLabel(tf domain.TimeFrame) string {
	switch tf {
	case domain.IMMEDIATE:
		return "Immediate Action"
	case domain.NEXT_VISIT:
		return "Next Clinical Visit"
	case domain.ROUTINE:
		return "Routine Follow-up"
	default:
		return string(tf)
	}
}

// phenotypeDisplay renders a phenotype token for clinicians:
// "ultra_rapid_metabolizer" becomes "Ultra Rapid Metabolizer".
func phenotypeDisplay(phenotype domain.Phenotype) string {
	words := strings.Split(strings.ReplaceAll(string(phenotype), "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
