package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// dosingActionTable maps the knowledge base dosing adjustment vocabulary
// onto the four clinical actions. Unknown adjustments degrade to MONITOR
// so a new knowledge base entry can never silently escalate.
var dosingActionTable = map[string]domain.Action{
	"contraindicated":           domain.CONTRAINDICATED,
	"switch_drug":               domain.SWITCH_DRUG,
	"reduce_dose_or_switch":     domain.SWITCH_DRUG,
	"increase_dose_or_switch":   domain.SWITCH_DRUG,
	"switch_or_increase":        domain.SWITCH_DRUG,
	"use_alternative_preferred": domain.SWITCH_DRUG,
	"reduce_50_percent":         domain.REDUCE_DOSE,
	"reduce_25_percent":         domain.REDUCE_DOSE,
	"reduce_30_percent":         domain.REDUCE_DOSE,
	"reduce_30_to_50_percent":   domain.REDUCE_DOSE,
	"reduce_90_percent":         domain.REDUCE_DOSE,
	"reduce_major":              domain.REDUCE_DOSE,
	"reduce_moderate":           domain.REDUCE_DOSE,
	"reduce_dose":               domain.REDUCE_DOSE,
	"monitor":                   domain.MONITOR,
	"increase_dose":             domain.MONITOR,
	"none":                      domain.MONITOR,
}

// doseAdjustmentText maps dose-reduction adjustments onto clinician-facing
// dose guidance.
var doseAdjustmentText = map[string]string{
	"reduce_50_percent":       "Reduce dose by 50%",
	"reduce_25_percent":       "Reduce dose by 25%",
	"reduce_30_percent":       "Reduce dose by 30%",
	"reduce_30_to_50_percent": "Reduce dose by 30-50%",
	"reduce_90_percent":       "Reduce dose to 10% of standard",
	"reduce_major":            "Major dose reduction required (see pharmacogenomic dosing table)",
	"reduce_moderate":         "Moderate dose reduction required",
}

// ActionFromDosing resolves a knowledge base dosing adjustment string to
// its clinical action.
func ActionFromDosing(dosing string) domain.Action {
	key := strings.ToLower(strings.TrimSpace(dosing))
	if action, ok := dosingActionTable[key]; ok {
		return action
	}
	return domain.MONITOR
}

// SuggestedDose returns the dose guidance text for a dosing adjustment,
// empty when the adjustment carries no dose change.
func SuggestedDose(dosing string) string {
	return doseAdjustmentText[strings.ToLower(strings.TrimSpace(dosing))]
}

// Recommender turns ranked findings into prioritized clinical
// recommendations: what to do, how soon, what to monitor, and which
// substitute drugs remain safe given the patient's genotype.
type Recommender struct {
	kb     domain.KnowledgeBase
	logger *logrus.Logger
}

// NewRecommender creates a recommendation builder over the given
// knowledge base.
func NewRecommender(kb domain.KnowledgeBase, logger *logrus.Logger) *Recommender {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recommender{kb: kb, logger: logger}
}

// Recommend builds one recommendation per ranked finding, in rank order.
// Priority equals the finding's rank position starting at 1. Findings
// transition to RECOMMENDED in place.
func (r *Recommender) Recommend(patient *domain.Patient, findings []domain.Finding) ([]domain.Recommendation, error) {
	recommendations := make([]domain.Recommendation, 0, len(findings))

	for i := range findings {
		finding := &findings[i]

		rec := domain.Recommendation{
			Priority:        i + 1,
			Action:          finding.Action,
			Drug:            finding.DrugLabel(),
			Gene:            finding.Gene,
			Phenotype:       finding.Phenotype,
			Severity:        finding.Severity,
			SuggestedDose:   SuggestedDose(finding.DosingAdjustment),
			Rationale:       buildRationale(finding),
			MonitoringPlan:  r.monitoringPlanFor(finding),
			TimeFrame:       timeFrame(finding),
			Text:            finding.RecommendationText,
			Evidence:        finding.Evidence,
			FDALabel:        finding.FDALabel,
			Score:           finding.Score,
			TherapeuticArea: finding.TherapeuticArea,
		}

		if rec.Action == domain.SWITCH_DRUG || rec.Action == domain.CONTRAINDICATED {
			rec.Alternatives = r.safeAlternatives(patient, finding)
		}

		if err := finding.TransitionTo(domain.RECOMMENDED); err != nil {
			return nil, domain.NewInternalError("recommend", err)
		}

		r.logger.WithFields(logrus.Fields{
			"priority":   rec.Priority,
			"drug":       rec.Drug,
			"action":     rec.Action,
			"time_frame": rec.TimeFrame,
		}).Debug("Recommendation built")

		recommendations = append(recommendations, rec)
	}

	return recommendations, nil
}

// safeAlternatives returns the tabulated substitutes for the finding's
// drug, minus any whose gene-drug impact for this patient's genotype
// would be as severe as the finding being replaced.
func (r *Recommender) safeAlternatives(patient *domain.Patient, finding *domain.Finding) []string {
	drug := domain.NormalizeDrugName(finding.Drug)
	if len(finding.DrugPair) == 2 {
		drug, _ = domain.CanonicalPair(finding.DrugPair)
	}

	guideline, ok := r.kb.DosingGuideline(drug)
	if !ok {
		return nil
	}

	alternatives := make([]string, 0, len(guideline.Alternatives))
	for _, alt := range guideline.Alternatives {
		if r.alternativeUnsafe(patient, alt, finding.Severity) {
			r.logger.WithFields(logrus.Fields{
				"patient_id":  patient.ID,
				"drug":        drug,
				"alternative": alt,
			}).Debug("Alternative excluded by patient genotype")
			continue
		}
		alternatives = append(alternatives, alt)
	}
	return alternatives
}

// alternativeUnsafe reports whether the patient's genotype gives the
// candidate substitute a risk at least as severe as the finding it would
// replace.
func (r *Recommender) alternativeUnsafe(patient *domain.Patient, alternative string, severity domain.Severity) bool {
	for _, rule := range r.kb.RulesForDrug(domain.NormalizeDrugName(alternative)) {
		entry, ok := patient.Genotype[rule.Gene]
		if !ok || entry.Phenotype == "" {
			continue
		}
		impact, ok := rule.ImpactFor(entry.Phenotype)
		if !ok {
			continue
		}
		if domain.SeverityFromRiskLevel(impact.RiskLevel).Rank() >= severity.Rank() {
			return true
		}
	}
	return false
}

// buildRationale assembles the clinician-facing justification from the
// finding's phenotype, mechanism, consequence, and evidence grade.
func buildRationale(finding *domain.Finding) string {
	parts := make([]string, 0, 5)

	if finding.Phenotype != "" && finding.Gene != "" {
		parts = append(parts, fmt.Sprintf("Patient is a %s for %s.", finding.Phenotype.Display(), finding.Gene))
	}
	if finding.MechanismDetail != "" {
		parts = append(parts, sentence(finding.MechanismDetail))
	}
	if finding.ClinicalConsequence != "" {
		parts = append(parts, sentence("Clinical risk: "+finding.ClinicalConsequence))
	}
	if finding.Evidence != "" {
		parts = append(parts, fmt.Sprintf("Evidence: CPIC Level %s.", finding.Evidence))
	}
	if finding.FDALabel {
		parts = append(parts, "FDA labeling carries a pharmacogenomic warning.")
	}

	return strings.Join(parts, " ")
}

// sentence appends a terminal period when the fragment lacks one.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}

// defaultMonitoringPlan is the plan used when no drug, action, or gene
// protocol applies.
const defaultMonitoringPlan = "Monitor for therapeutic response and adverse effects per standard of care."

// monitoringPlanFor resolves the follow-up plan for a finding. Built-in
// drug, action, and gene protocols apply first; when none does, the
// knowledge base's per-drug monitoring text fills in before the
// standard-of-care default.
func (r *Recommender) monitoringPlanFor(finding *domain.Finding) string {
	plan := monitoringPlan(finding)
	if plan != defaultMonitoringPlan || len(finding.DrugPair) == 2 {
		return plan
	}
	if guideline, ok := r.kb.DosingGuideline(domain.NormalizeDrugName(finding.Drug)); ok && guideline.Monitoring != "" {
		return guideline.Monitoring
	}
	return plan
}

// monitoringPlan selects the follow-up plan for a finding. Drug-specific
// plans take precedence over action-level plans, which take precedence
// over gene-specific oncology protocols.
func monitoringPlan(finding *domain.Finding) string {
	drug := strings.ToLower(finding.DrugLabel())
	gene := strings.ToUpper(finding.Gene)
	drugClass := strings.ToLower(finding.DrugClass)

	switch {
	case strings.Contains(drug, "warfarin"):
		return "Monitor INR every 2-3 days until stable, then weekly. Target INR 2.0-3.0."
	case finding.Action == domain.CONTRAINDICATED:
		return "Discontinue medication. Monitor for withdrawal effects. Initiate alternative therapy."
	case finding.Action == domain.REDUCE_DOSE:
		return "Implement dose reduction. Monitor for therapeutic response and side effects at 2 and 4 weeks."
	case finding.Action == domain.SWITCH_DRUG:
		return "Transition to alternative medication. Monitor for efficacy and tolerability at 2-4 weeks."
	case strings.Contains(drug, "tamoxifen"):
		return "Consider endoxifen level monitoring after dose change. Reassess at 3 months."
	case gene == "DPYD":
		return "If dose-reduced fluoropyrimidine used, monitor CBC and mucositis assessment before each cycle."
	case gene == "TPMT":
		return "Monitor TGN levels and CBC weekly for first month, then biweekly."
	case gene == "UGT1A1":
		return "Monitor CBC and assess for diarrhea before each chemotherapy cycle."
	case strings.Contains(drugClass, "statin"), strings.Contains(drug, "simvastatin"):
		return "Monitor for muscle symptoms (pain, weakness). Check CK if symptomatic."
	case gene == "SLCO1B1":
		return "Monitor for muscle symptoms. Check CK if symptomatic."
	default:
		return defaultMonitoringPlan
	}
}

// timeFrame grades how soon the recommendation must be acted on.
func timeFrame(finding *domain.Finding) domain.TimeFrame {
	switch {
	case finding.Severity == domain.CRITICAL, finding.Action == domain.CONTRAINDICATED:
		return domain.IMMEDIATE
	case finding.Severity == domain.HIGH:
		return domain.NEXT_VISIT
	default:
		return domain.ROUTINE
	}
}
