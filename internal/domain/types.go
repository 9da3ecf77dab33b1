// Package domain contains core business entities and types for pharmacogenomic
// (PGx) medication risk interpretation following CPIC (Clinical Pharmacogenetics
// Implementation Consortium) guidelines.
//
// Reference: Relling MV, Klein TE (2011) CPIC: Clinical Pharmacogenetics
// Implementation Consortium of the Pharmacogenomics Research Network.
// Clin Pharmacol Ther. 89(3):464-7. doi: 10.1038/clpt.2010.279
package domain

import (
	"errors"
	"strings"
)

// Phenotype represents a star-allele derived metabolizer or transporter
// phenotype as tabulated in CPIC gene-drug guidelines. The four metabolizer
// values form an ordered activity lattice used for phenoconversion; the
// remaining values (transporter function, sensitivity grades, HLA carrier
// status) participate in rule lookups but are never shifted.
type Phenotype string

const (
	POOR_METABOLIZER         Phenotype = "poor_metabolizer"
	INTERMEDIATE_METABOLIZER Phenotype = "intermediate_metabolizer"
	NORMAL_METABOLIZER       Phenotype = "normal_metabolizer"
	ULTRA_RAPID_METABOLIZER  Phenotype = "ultra_rapid_metabolizer"

	NORMAL_FUNCTION       Phenotype = "normal_function"
	INTERMEDIATE_FUNCTION Phenotype = "intermediate_function"
	POOR_FUNCTION         Phenotype = "poor_function"

	NORMAL_SENSITIVITY   Phenotype = "normal_sensitivity"
	MODERATE_SENSITIVITY Phenotype = "moderate_sensitivity"
	HIGH_SENSITIVITY     Phenotype = "high_sensitivity"

	HLA_B_1502_POSITIVE Phenotype = "hla_b_1502_positive"
	HLA_B_1502_NEGATIVE Phenotype = "hla_b_1502_negative"
)

// Severity represents the clinical severity band of a finding.
// Bands carry fixed score ranges used by the risk scorer.
type Severity string

const (
	CRITICAL Severity = "critical"
	HIGH     Severity = "high"
	MODERATE Severity = "moderate"
	LOW      Severity = "low"
)

// EvidenceLevel represents the CPIC evidence grade backing a finding.
type EvidenceLevel string

const (
	EVIDENCE_A EvidenceLevel = "A"
	EVIDENCE_B EvidenceLevel = "B"
	EVIDENCE_C EvidenceLevel = "C"
)

// Action represents the recommended clinical action for a finding,
// ordered by conservatism.
type Action string

const (
	CONTRAINDICATED Action = "contraindicated"
	SWITCH_DRUG     Action = "switch_drug"
	REDUCE_DOSE     Action = "reduce_dose"
	MONITOR         Action = "monitor"
)

// Mechanism represents how a finding was detected.
type Mechanism string

const (
	GENE_DRUG       Mechanism = "gene_drug"
	DRUG_DRUG       Mechanism = "ddi"
	PHENOCONVERSION Mechanism = "phenoconversion"
	RENAL           Mechanism = "renal"
	HEPATIC         Mechanism = "hepatic"
)

// ModulatorRole represents how a comedication modulates a metabolizing enzyme.
type ModulatorRole string

const (
	STRONG_INHIBITOR   ModulatorRole = "strong_inhibitor"
	MODERATE_INHIBITOR ModulatorRole = "moderate_inhibitor"
	INDUCER            ModulatorRole = "inducer"
)

// FindingState tracks a finding through the interpretation pipeline.
// Transitions are strictly forward; a finding merged away during
// deduplication is consumed, never transitioned backward.
type FindingState string

const (
	DETECTED     FindingState = "detected"
	ADJUSTED     FindingState = "phenoconversion_adjusted"
	SCORED       FindingState = "scored"
	DEDUPLICATED FindingState = "deduplicated"
	RANKED       FindingState = "ranked"
	RECOMMENDED  FindingState = "recommended"
)

// ContraindicatedFloor is the minimum final score of any finding whose
// action is CONTRAINDICATED. Applied after all other modifiers.
const ContraindicatedFloor = 92

// Validation errors for clinical data integrity
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidPhenotype  = errors.New("invalid phenotype")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrInvalidEvidence   = errors.New("invalid evidence level")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidMechanism  = errors.New("invalid mechanism")
	ErrScoreOutOfRange   = errors.New("risk score outside [0,100]")
	ErrDuplicateFinding  = errors.New("duplicate finding after deduplication")
	ErrInvalidTransition = errors.New("invalid finding state transition")
)

// metabolizerLattice orders enzyme activity from absent to excessive.
// Index positions drive phenoconversion shifts.
var metabolizerLattice = []Phenotype{
	POOR_METABOLIZER,
	INTERMEDIATE_METABOLIZER,
	NORMAL_METABOLIZER,
	ULTRA_RAPID_METABOLIZER,
}

// IsValid validates the phenotype against the recognized CPIC vocabulary.
// Only valid phenotypes may enter the interpretation pipeline.
func (p Phenotype) IsValid() bool {
	switch p {
	case POOR_METABOLIZER, INTERMEDIATE_METABOLIZER, NORMAL_METABOLIZER, ULTRA_RAPID_METABOLIZER,
		NORMAL_FUNCTION, INTERMEDIATE_FUNCTION, POOR_FUNCTION,
		NORMAL_SENSITIVITY, MODERATE_SENSITIVITY, HIGH_SENSITIVITY,
		HLA_B_1502_POSITIVE, HLA_B_1502_NEGATIVE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the phenotype.
// Required for proper logging and audit trails in clinical software.
func (p Phenotype) String() string {
	return string(p)
}

// Display returns the phenotype with underscores replaced by spaces,
// suitable for clinician-facing report text.
func (p Phenotype) Display() string {
	return strings.ReplaceAll(string(p), "_", " ")
}

// IsMetabolizer reports whether the phenotype is a member of the
// metabolizer activity lattice and therefore eligible for phenoconversion.
func (p Phenotype) IsMetabolizer() bool {
	return p.latticeIndex() >= 0
}

func (p Phenotype) latticeIndex() int {
	for i, m := range metabolizerLattice {
		if m == p {
			return i
		}
	}
	return -1
}

// ShiftDown returns the phenotype one lattice step toward POOR_METABOLIZER.
// POOR_METABOLIZER is the floor. Non-lattice phenotypes are returned unchanged.
func (p Phenotype) ShiftDown() Phenotype {
	i := p.latticeIndex()
	if i <= 0 {
		return p
	}
	return metabolizerLattice[i-1]
}

// ShiftUp returns the phenotype one lattice step toward ULTRA_RAPID_METABOLIZER.
// ULTRA_RAPID_METABOLIZER is the ceiling. Non-lattice phenotypes are returned unchanged.
func (p Phenotype) ShiftUp() Phenotype {
	i := p.latticeIndex()
	if i < 0 || i == len(metabolizerLattice)-1 {
		return p
	}
	return metabolizerLattice[i+1]
}

// ClinicalConcern ranks phenotypes by clinical concern. Higher is more
// concerning. Both lattice extremes rank high: absent enzyme activity
// accumulates parent drug, excessive activity overproduces active
// metabolites. Used to decide whether a phenoconversion shift worsens
// the patient's effective phenotype.
func (p Phenotype) ClinicalConcern() int {
	switch p {
	case NORMAL_METABOLIZER, NORMAL_FUNCTION, NORMAL_SENSITIVITY, HLA_B_1502_NEGATIVE:
		return 0
	case INTERMEDIATE_METABOLIZER, INTERMEDIATE_FUNCTION:
		return 1
	case MODERATE_SENSITIVITY:
		return 2
	case POOR_METABOLIZER, POOR_FUNCTION, ULTRA_RAPID_METABOLIZER:
		return 3
	case HIGH_SENSITIVITY, HLA_B_1502_POSITIVE:
		return 4
	default:
		return 0
	}
}

// WorseThan reports whether p is clinically more concerning than other.
func (p Phenotype) WorseThan(other Phenotype) bool {
	return p.ClinicalConcern() > other.ClinicalConcern()
}

// IsValid validates that the severity is a recognized band.
// This is critical for clinical software to ensure only valid severities
// are used in prioritization decisions.
func (s Severity) IsValid() bool {
	switch s {
	case CRITICAL, HIGH, MODERATE, LOW:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// Rank returns the ordering rank of the severity. Higher is more severe.
// Unknown severities rank below LOW so malformed data never outranks
// recognized findings.
func (s Severity) Rank() int {
	switch s {
	case CRITICAL:
		return 4
	case HIGH:
		return 3
	case MODERATE:
		return 2
	case LOW:
		return 1
	default:
		return 0
	}
}

// Band returns the inclusive score range assigned to the severity band.
func (s Severity) Band() (lo, hi int) {
	switch s {
	case CRITICAL:
		return 80, 100
	case HIGH:
		return 60, 79
	case MODERATE:
		return 30, 59
	default:
		return 0, 29
	}
}

// BaseScore returns the integer midpoint of the severity band, the
// baseline from which the risk scorer applies its modifiers.
func (s Severity) BaseScore() int {
	lo, hi := s.Band()
	return (lo + hi) / 2
}

// RequiresUrgentReview determines if findings at this severity require
// clinical follow-up before the next routine visit. Critical for alerting
// workflow automation and patient safety.
func (s Severity) RequiresUrgentReview() bool {
	switch s {
	case CRITICAL, HIGH:
		return true
	default:
		return false
	}
}

// LogFields returns structured logging fields for audit trails.
// Critical for clinical software compliance and traceability.
func (s Severity) LogFields() map[string]any {
	lo, hi := s.Band()
	return map[string]any{
		"severity":      string(s),
		"severity_rank": s.Rank(),
		"band_low":      lo,
		"band_high":     hi,
		"is_valid":      s.IsValid(),
		"urgent_review": s.RequiresUrgentReview(),
		"base_score":    s.BaseScore(),
	}
}

// SeverityFromRiskLevel maps a knowledge base risk level string onto a
// severity band. Informational entries collapse into LOW so every stored
// rule yields a rankable finding.
func SeverityFromRiskLevel(level string) Severity {
	switch strings.ToLower(level) {
	case "critical":
		return CRITICAL
	case "high":
		return HIGH
	case "moderate":
		return MODERATE
	default:
		return LOW
	}
}

// IsValid validates the evidence level against the CPIC grading scale.
func (e EvidenceLevel) IsValid() bool {
	switch e {
	case EVIDENCE_A, EVIDENCE_B, EVIDENCE_C:
		return true
	default:
		return false
	}
}

// String returns the string representation of the evidence level.
func (e EvidenceLevel) String() string {
	return string(e)
}

// ScoreModifier returns the additive score adjustment for the evidence
// level. Weaker evidence discounts the band baseline.
func (e EvidenceLevel) ScoreModifier() int {
	switch e {
	case EVIDENCE_A:
		return 0
	case EVIDENCE_B:
		return -3
	default:
		return -6
	}
}

// ParseEvidenceLevel normalizes the free-text evidence annotations found
// in knowledge base entries ("CPIC Level A", "strong", "standard_of_care")
// onto the three-grade scale. Unrecognized annotations grade C so that
// unsourced rules never outrank guideline-backed ones.
func ParseEvidenceLevel(raw string) EvidenceLevel {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasSuffix(normalized, " a"), normalized == "a", normalized == "strong":
		return EVIDENCE_A
	case strings.HasSuffix(normalized, " b"), normalized == "b", normalized == "moderate", normalized == "standard_of_care":
		return EVIDENCE_B
	default:
		return EVIDENCE_C
	}
}

// IsValid validates the action.
func (a Action) IsValid() bool {
	switch a {
	case CONTRAINDICATED, SWITCH_DRUG, REDUCE_DOSE, MONITOR:
		return true
	default:
		return false
	}
}

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Rank returns the conservatism rank of the action. Higher is more
// conservative. Merged findings keep the most conservative action.
func (a Action) Rank() int {
	switch a {
	case CONTRAINDICATED:
		return 4
	case SWITCH_DRUG:
		return 3
	case REDUCE_DOSE:
		return 2
	case MONITOR:
		return 1
	default:
		return 0
	}
}

// MostConservativeAction returns whichever action ranks higher.
func MostConservativeAction(a, b Action) Action {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// IsValid validates the mechanism.
func (m Mechanism) IsValid() bool {
	switch m {
	case GENE_DRUG, DRUG_DRUG, PHENOCONVERSION, RENAL, HEPATIC:
		return true
	default:
		return false
	}
}

// String returns the string representation of the mechanism.
func (m Mechanism) String() string {
	return string(m)
}

// canonicalMechanismOrder fixes the order of merged mechanism sets so
// deduplicated output is byte-stable across runs.
var canonicalMechanismOrder = []Mechanism{GENE_DRUG, DRUG_DRUG, PHENOCONVERSION, RENAL, HEPATIC}

// MergeMechanisms returns the union of two mechanism sets in canonical order.
func MergeMechanisms(a, b []Mechanism) []Mechanism {
	present := make(map[Mechanism]bool, len(a)+len(b))
	for _, m := range a {
		present[m] = true
	}
	for _, m := range b {
		present[m] = true
	}
	merged := make([]Mechanism, 0, len(present))
	for _, m := range canonicalMechanismOrder {
		if present[m] {
			merged = append(merged, m)
		}
	}
	return merged
}

// IsValid validates the modulator role.
func (r ModulatorRole) IsValid() bool {
	switch r {
	case STRONG_INHIBITOR, MODERATE_INHIBITOR, INDUCER:
		return true
	default:
		return false
	}
}

// String returns the string representation of the modulator role.
func (r ModulatorRole) String() string {
	return string(r)
}

// Precedence orders simultaneous enzyme effects. When several
// comedications modulate one enzyme, only the single highest-precedence
// effect applies; effects are never additive.
func (r ModulatorRole) Precedence() int {
	switch r {
	case STRONG_INHIBITOR:
		return 3
	case MODERATE_INHIBITOR:
		return 2
	case INDUCER:
		return 1
	default:
		return 0
	}
}

// IsValid validates the finding state.
func (fs FindingState) IsValid() bool {
	switch fs {
	case DETECTED, ADJUSTED, SCORED, DEDUPLICATED, RANKED, RECOMMENDED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the finding state.
func (fs FindingState) String() string {
	return string(fs)
}

func (fs FindingState) order() int {
	switch fs {
	case DETECTED:
		return 1
	case ADJUSTED:
		return 2
	case SCORED:
		return 3
	case DEDUPLICATED:
		return 4
	case RANKED:
		return 5
	case RECOMMENDED:
		return 6
	default:
		return 0
	}
}

// CanTransitionTo reports whether the state machine permits moving from
// fs to next. Only forward transitions are allowed; the ADJUSTED stage
// is optional and may be skipped.
func (fs FindingState) CanTransitionTo(next FindingState) bool {
	if !fs.IsValid() || !next.IsValid() {
		return false
	}
	return next.order() > fs.order()
}
