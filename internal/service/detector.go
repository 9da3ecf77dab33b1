package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// ALT values are graded against a fixed upper limit of normal of 40 U/L.
// Ratios above 3x flag hepatic dose review; above 5x the concern is severe.
const (
	altUpperLimitNormal  = 40.0
	hepaticFlagRatio     = 3.0
	hepaticSevereRatio   = 5.0
	renalSevereEGFR      = 30.0
	organEvidenceDefault = "standard_of_care"
)

// Detector screens a patient's medication list against the knowledge
// base and emits raw findings. Detection never scores or merges; every
// finding leaves in the DETECTED state (phenoconversion findings in
// ADJUSTED) for the downstream pipeline stages.
type Detector struct {
	kb             domain.KnowledgeBase
	phenoconverter *Phenoconverter
	logger         *logrus.Logger
}

// NewDetector creates a finding detector.
func NewDetector(kb domain.KnowledgeBase, logger *logrus.Logger) *Detector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Detector{
		kb:             kb,
		phenoconverter: NewPhenoconverter(kb, logger),
		logger:         logger,
	}
}

// Detect runs every detection mechanism for the patient and returns the
// raw findings plus non-fatal warnings (medications with no knowledge
// base coverage). Missing genotype entries are skipped silently; an
// unknown drug is still screened for drug pair interactions in case a
// later knowledge base release covers it.
func (d *Detector) Detect(patient *domain.Patient) ([]domain.Finding, []domain.AnalysisWarning) {
	medications := patient.MedicationNames()

	var warnings []domain.AnalysisWarning
	for _, med := range medications {
		if d.kb.KnownDrug(med) {
			continue
		}
		warning := (&domain.UnknownDrugWarning{Drug: med}).AsWarning()
		warnings = append(warnings, warning)
		d.logger.WithField("drug", med).Warn("Medication has no knowledge base coverage")
	}

	var findings []domain.Finding
	findings = append(findings, d.geneDrugFindings(patient, medications)...)
	findings = append(findings, d.phenoconversionFindings(patient, medications)...)
	findings = append(findings, d.drugPairFindings(medications)...)
	findings = append(findings, d.renalFindings(patient, medications)...)
	findings = append(findings, d.hepaticFindings(patient, medications)...)

	d.logger.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"findings":   len(findings),
		"warnings":   len(warnings),
	}).Debug("Detection completed")

	return findings, warnings
}

// geneDrugFindings checks each medication against the patient's tested
// genotype. A rule only fires when the knowledge base tabulates an
// impact for the patient's exact phenotype.
func (d *Detector) geneDrugFindings(patient *domain.Patient, medications []string) []domain.Finding {
	var findings []domain.Finding

	for _, med := range medications {
		for _, rule := range d.kb.RulesForDrug(med) {
			entry, ok := patient.Genotype[rule.Gene]
			if !ok || entry.Phenotype == "" {
				continue
			}

			impact, ok := rule.ImpactFor(entry.Phenotype)
			if !ok {
				continue
			}

			severity := domain.SeverityFromRiskLevel(impact.RiskLevel)
			action := ActionFromDosing(impact.DosingAdjustment)
			if action == domain.CONTRAINDICATED {
				severity = domain.CRITICAL
			}

			findings = append(findings, domain.Finding{
				ID:                  uuid.NewString(),
				Gene:                rule.Gene,
				Drug:                domain.NormalizeDrugName(med),
				Mechanisms:          []domain.Mechanism{domain.GENE_DRUG},
				Severity:            severity,
				Evidence:            domain.ParseEvidenceLevel(impact.EvidenceLevel),
				FDALabel:            impact.FDALabel,
				Action:              action,
				State:               domain.DETECTED,
				Phenotype:           entry.Phenotype,
				Diplotype:           entry.Diplotype,
				Summary:             fmt.Sprintf("%s %s: %s", rule.Gene, entry.Phenotype.Display(), impact.Effect),
				RecommendationText:  impact.Recommendation,
				ClinicalConsequence: impact.ClinicalConsequence,
				DosingAdjustment:    impact.DosingAdjustment,
				MechanismDetail:     rule.Mechanism,
				CPICGuideline:       rule.CPICGuideline,
				References:          rule.References,
				TherapeuticArea:     rule.TherapeuticArea,
				DrugClass:           rule.DrugClass,
			})
		}
	}

	return findings
}

// phenoconversionFindings re-evaluates gene-drug rules against the
// drug-shifted functional phenotype. Only worsening shifts fire, the
// responsible modulator is never flagged as its own victim, and impacts
// graded low stay out so routine comedication does not spam findings.
func (d *Detector) phenoconversionFindings(patient *domain.Patient, medications []string) []domain.Finding {
	var findings []domain.Finding

	for _, shift := range d.phenoconverter.ShiftsFor(patient) {
		verb := "inhibits"
		if shift.Modulators[0].Role == domain.INDUCER {
			verb = "induces"
		}
		triggering := shift.ModulatorNames()
		triggerLabel := strings.Join(triggering, ", ")

		for _, med := range medications {
			if shift.IsModulatorOf(med) {
				continue
			}

			rule, ok := d.kb.GeneDrugRule(shift.Gene, med)
			if !ok {
				continue
			}
			impact, ok := rule.ImpactFor(shift.Functional)
			if !ok {
				continue
			}

			severity := domain.SeverityFromRiskLevel(impact.RiskLevel)
			if severity == domain.LOW {
				continue
			}
			action := ActionFromDosing(impact.DosingAdjustment)
			if action == domain.CONTRAINDICATED {
				severity = domain.CRITICAL
			}

			entry := patient.Genotype[shift.Gene]
			drug := domain.NormalizeDrugName(med)

			findings = append(findings, domain.Finding{
				ID:                uuid.NewString(),
				Gene:              shift.Gene,
				Drug:              drug,
				Mechanisms:        []domain.Mechanism{domain.PHENOCONVERSION},
				Severity:          severity,
				Evidence:          domain.ParseEvidenceLevel(impact.EvidenceLevel),
				FDALabel:          false,
				Action:            action,
				State:             domain.ADJUSTED,
				Phenotype:         shift.Functional,
				BaselinePhenotype: shift.Baseline,
				Diplotype:         entry.Diplotype,
				Summary: fmt.Sprintf(
					"Phenoconversion: %s %s %s, shifting functional phenotype from %s to %s for %s",
					triggerLabel, verb, shift.Gene,
					shift.Baseline.Display(), shift.Functional.Display(), drug,
				),
				RecommendationText:  impact.Recommendation,
				ClinicalConsequence: impact.ClinicalConsequence,
				DosingAdjustment:    impact.DosingAdjustment,
				MechanismDetail: fmt.Sprintf(
					"%s %s %s enzyme activity, altering metabolism of %s",
					triggerLabel, verb, shift.Gene, drug,
				),
				TriggeringDrugs: triggering,
				CPICGuideline:   rule.CPICGuideline,
				References:      rule.References,
				TherapeuticArea: rule.TherapeuticArea,
				DrugClass:       rule.DrugClass,
			})
		}
	}

	return findings
}

// drugPairFindings checks every unordered medication pair against the
// interaction table.
func (d *Detector) drugPairFindings(medications []string) []domain.Finding {
	var findings []domain.Finding
	seen := make(map[string]bool)

	for i := 0; i < len(medications); i++ {
		for j := i + 1; j < len(medications); j++ {
			a, b := domain.CanonicalPair([]string{medications[i], medications[j]})
			if a == b || seen[a+"|"+b] {
				continue
			}
			seen[a+"|"+b] = true

			rule, ok := d.kb.DDI(a, b)
			if !ok {
				continue
			}

			severity := rule.FindingSeverity()
			action := domain.MONITOR
			if severity.RequiresUrgentReview() {
				action = domain.SWITCH_DRUG
			}

			findings = append(findings, domain.Finding{
				ID:                  uuid.NewString(),
				Gene:                rule.TargetGene,
				DrugPair:            []string{a, b},
				Mechanisms:          []domain.Mechanism{domain.DRUG_DRUG},
				Severity:            severity,
				Evidence:            domain.ParseEvidenceLevel(rule.EvidenceLevel),
				FDALabel:            false,
				Action:              action,
				State:               domain.DETECTED,
				Summary:             fmt.Sprintf("Drug interaction: %s + %s: %s", a, b, rule.ClinicalEffect),
				RecommendationText:  rule.Recommendation,
				ClinicalConsequence: rule.ClinicalEffect,
				MechanismDetail:     rule.Mechanism,
			})
		}
	}

	return findings
}

// renalFindings flags medications whose knowledge base eGFR cutoff the
// patient falls below.
func (d *Detector) renalFindings(patient *domain.Patient, medications []string) []domain.Finding {
	if patient.Labs == nil || patient.Labs.EGFR == nil {
		return nil
	}
	egfr := *patient.Labs.EGFR

	var findings []domain.Finding
	for _, med := range medications {
		rule, ok := d.kb.RenalRule(med)
		if !ok || egfr >= rule.EGFRCutoff {
			continue
		}

		severity := domain.MODERATE
		if egfr < renalSevereEGFR {
			severity = domain.HIGH
		}

		findings = append(findings, domain.Finding{
			ID:                 uuid.NewString(),
			Drug:               domain.NormalizeDrugName(med),
			Mechanisms:         []domain.Mechanism{domain.RENAL},
			Severity:           severity,
			Evidence:           domain.ParseEvidenceLevel(organEvidenceDefault),
			FDALabel:           true,
			Action:             domain.REDUCE_DOSE,
			State:              domain.DETECTED,
			Summary:            fmt.Sprintf("Renal impairment (eGFR %.0f): %s", egfr, rule.Action),
			RecommendationText: rule.Action,
			ClinicalConsequence: fmt.Sprintf(
				"Drug accumulation risk with eGFR %.0f (%s)", egfr, d.kb.RenalStage(egfr),
			),
		})
	}

	return findings
}

// hepaticFindings flags medications requiring dose review when the
// patient's ALT exceeds three times the upper limit of normal.
func (d *Detector) hepaticFindings(patient *domain.Patient, medications []string) []domain.Finding {
	if patient.Labs == nil || patient.Labs.ALT == nil {
		return nil
	}
	ratio := *patient.Labs.ALT / altUpperLimitNormal
	if ratio <= hepaticFlagRatio {
		return nil
	}

	severity := domain.MODERATE
	if ratio > hepaticSevereRatio {
		severity = domain.HIGH
	}

	var findings []domain.Finding
	for _, med := range medications {
		rule, ok := d.kb.HepaticRule(med)
		if !ok {
			continue
		}

		findings = append(findings, domain.Finding{
			ID:                 uuid.NewString(),
			Drug:               domain.NormalizeDrugName(med),
			Mechanisms:         []domain.Mechanism{domain.HEPATIC},
			Severity:           severity,
			Evidence:           domain.ParseEvidenceLevel(organEvidenceDefault),
			FDALabel:           true,
			Action:             domain.REDUCE_DOSE,
			State:              domain.DETECTED,
			Summary:            fmt.Sprintf("Hepatic concern (ALT %.1fx ULN): %s", ratio, rule.Action),
			RecommendationText: rule.Action,
			ClinicalConsequence: fmt.Sprintf(
				"Hepatotoxicity risk with ALT %.1fx ULN", ratio,
			),
		})
	}

	return findings
}
