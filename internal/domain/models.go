package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeFrame represents how soon a recommendation should be acted on.
type TimeFrame string

const (
	IMMEDIATE  TimeFrame = "immediate"
	NEXT_VISIT TimeFrame = "next_visit"
	ROUTINE    TimeFrame = "routine"
)

// IsValid validates the time frame.
func (tf TimeFrame) IsValid() bool {
	switch tf {
	case IMMEDIATE, NEXT_VISIT, ROUTINE:
		return true
	default:
		return false
	}
}

// Patient Input Models

// GenotypeEntry holds the tested diplotype and its assigned phenotype
// for a single pharmacogene.
type GenotypeEntry struct {
	Diplotype string    `json:"diplotype"`
	Phenotype Phenotype `json:"phenotype"`
}

// Genotype maps pharmacogene symbols (CYP2D6, TPMT, ...) to their
// tested results. Immutable once attached to a patient.
type Genotype map[string]GenotypeEntry

// Medication represents one entry of the patient's medication list.
// Input order is preserved for audit reproducibility; it never affects
// ranked output.
type Medication struct {
	Name      string `json:"name" validate:"required"`
	Dose      string `json:"dose,omitempty"`
	Route     string `json:"route,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Demographics carries the non-clinical patient attributes used in
// report headers.
type Demographics struct {
	Age int    `json:"age,omitempty"`
	Sex string `json:"sex,omitempty"`
}

// LabValues carries the laboratory results consumed by organ function
// screening. Pointers distinguish an absent result from a zero value.
type LabValues struct {
	EGFR *float64 `json:"egfr,omitempty"`
	ALT  *float64 `json:"alt,omitempty"`
	AST  *float64 `json:"ast,omitempty"`
}

// Patient represents one analysis subject. The interpretation engine
// never mutates a patient; derived values (functional phenotypes) live
// on findings instead.
type Patient struct {
	ID           string            `json:"patient_id" validate:"required"`
	Demographics Demographics      `json:"demographics,omitempty"`
	Genotype     Genotype          `json:"genotype,omitempty"`
	Medications  []Medication      `json:"medications" validate:"required"`
	Labs         *LabValues        `json:"labs,omitempty"`
	Context      map[string]string `json:"clinical_context,omitempty"`
}

// Validate ensures the patient payload meets the minimum requirements
// for analysis. This is critical for preventing malformed records from
// entering the interpretation pipeline.
func (p *Patient) Validate() error {
	if p.ID == "" {
		return NewInputError("patient_id", "patient ID is required", nil)
	}

	if len(p.Medications) == 0 {
		return NewInputError("medications", "medication list is required", nil)
	}

	for i, med := range p.Medications {
		if strings.TrimSpace(med.Name) == "" {
			return NewInputError(fmt.Sprintf("medications[%d].name", i), "medication name is required", med)
		}
	}

	for gene, entry := range p.Genotype {
		if gene == "" {
			return NewInputError("genotype", "gene symbol is required", entry)
		}
		if entry.Phenotype != "" && !entry.Phenotype.IsValid() {
			return NewInputError(fmt.Sprintf("genotype.%s.phenotype", gene), "unrecognized phenotype", entry.Phenotype)
		}
	}

	return nil
}

// MedicationNames returns the medication names in input order.
func (p *Patient) MedicationNames() []string {
	names := make([]string, 0, len(p.Medications))
	for _, med := range p.Medications {
		names = append(names, med.Name)
	}
	return names
}

// Finding Models

// FindingKey identifies the deduplication group of a finding. Gene-drug
// and phenoconversion findings for the same gene and drug share a key;
// drug pair findings key on the canonical (sorted) pair; organ function
// findings key on drug and mechanism.
type FindingKey struct {
	Kind string `json:"kind"`
	A    string `json:"a"`
	B    string `json:"b,omitempty"`
}

// String renders the key for logging and sort tie-breaking.
func (k FindingKey) String() string {
	if k.B == "" {
		return k.Kind + ":" + k.A
	}
	return k.Kind + ":" + k.A + ":" + k.B
}

// Finding represents a single detected medication risk. A finding moves
// through the pipeline states strictly forward; fields accumulate as
// stages run (score at SCORED, merged mechanisms at DEDUPLICATED).
type Finding struct {
	ID                  string        `json:"id"`
	Gene                string        `json:"gene,omitempty"`
	Drug                string        `json:"drug"`
	DrugPair            []string      `json:"drug_pair,omitempty"`
	Mechanisms          []Mechanism   `json:"mechanisms"`
	Severity            Severity      `json:"severity"`
	Evidence            EvidenceLevel `json:"evidence_level"`
	FDALabel            bool          `json:"fda_label"`
	Score               int           `json:"risk_score"`
	Action              Action        `json:"action"`
	State               FindingState  `json:"state"`
	Phenotype           Phenotype     `json:"phenotype,omitempty"`
	BaselinePhenotype   Phenotype     `json:"baseline_phenotype,omitempty"`
	Diplotype           string        `json:"diplotype,omitempty"`
	Summary             string        `json:"summary"`
	RecommendationText  string        `json:"recommendation_text,omitempty"`
	ClinicalConsequence string        `json:"clinical_consequence,omitempty"`
	DosingAdjustment    string        `json:"dosing_adjustment,omitempty"`
	MechanismDetail     string        `json:"mechanism_detail,omitempty"`
	TriggeringDrugs     []string      `json:"triggering_drugs,omitempty"`
	CPICGuideline       string        `json:"cpic_guideline,omitempty"`
	References          []string      `json:"references,omitempty"`
	TherapeuticArea     string        `json:"therapeutic_area,omitempty"`
	DrugClass           string        `json:"drug_class,omitempty"`
}

// HasMechanism reports whether the finding's mechanism set contains m.
func (f *Finding) HasMechanism(m Mechanism) bool {
	for _, mech := range f.Mechanisms {
		if mech == m {
			return true
		}
	}
	return false
}

// Key returns the deduplication key of the finding.
func (f *Finding) Key() FindingKey {
	switch {
	case f.HasMechanism(DRUG_DRUG):
		a, b := CanonicalPair(f.DrugPair)
		return FindingKey{Kind: string(DRUG_DRUG), A: a, B: b}
	case f.HasMechanism(RENAL):
		return FindingKey{Kind: string(RENAL), A: NormalizeDrugName(f.Drug)}
	case f.HasMechanism(HEPATIC):
		return FindingKey{Kind: string(HEPATIC), A: NormalizeDrugName(f.Drug)}
	default:
		return FindingKey{Kind: string(GENE_DRUG), A: strings.ToUpper(f.Gene), B: NormalizeDrugName(f.Drug)}
	}
}

// DrugLabel returns the clinician-facing drug label: the canonical
// "a + b" pair for drug pair findings, otherwise the drug name.
func (f *Finding) DrugLabel() string {
	if len(f.DrugPair) == 2 {
		a, b := CanonicalPair(f.DrugPair)
		return a + " + " + b
	}
	return f.Drug
}

// Validate ensures the finding satisfies the pipeline invariants for
// its current state. Scores are only constrained once assigned.
func (f *Finding) Validate() error {
	if f.Drug == "" && len(f.DrugPair) != 2 {
		return fmt.Errorf("finding validation: %w", errors.New("drug is required"))
	}

	if len(f.Mechanisms) == 0 {
		return fmt.Errorf("finding validation: %w", errors.New("at least one mechanism is required"))
	}

	for _, m := range f.Mechanisms {
		if !m.IsValid() {
			return fmt.Errorf("finding validation: %w", ErrInvalidMechanism)
		}
	}

	if !f.Severity.IsValid() {
		return fmt.Errorf("finding validation: %w", ErrInvalidSeverity)
	}

	if f.Evidence != "" && !f.Evidence.IsValid() {
		return fmt.Errorf("finding validation: %w", ErrInvalidEvidence)
	}

	if f.Action != "" && !f.Action.IsValid() {
		return fmt.Errorf("finding validation: %w", ErrInvalidAction)
	}

	if f.State.order() >= SCORED.order() {
		if f.Score < 0 || f.Score > 100 {
			return fmt.Errorf("finding validation: %w", ErrScoreOutOfRange)
		}
		if f.Action == CONTRAINDICATED && f.Score < ContraindicatedFloor {
			return fmt.Errorf("finding validation: contraindicated finding scored %d below floor %d", f.Score, ContraindicatedFloor)
		}
	}

	return nil
}

// TransitionTo advances the finding state. Backward transitions are
// rejected as internal defects.
func (f *Finding) TransitionTo(next FindingState) error {
	if !f.State.CanTransitionTo(next) {
		return fmt.Errorf("finding %s: %s -> %s: %w", f.ID, f.State, next, ErrInvalidTransition)
	}
	f.State = next
	return nil
}

// Recommendation Models

// Recommendation is the terminal, immutable output attached to a ranked
// finding. Priority equals the finding's rank position.
type Recommendation struct {
	Priority        int           `json:"priority"`
	Action          Action        `json:"action"`
	Drug            string        `json:"drug"`
	Gene            string        `json:"gene,omitempty"`
	Phenotype       Phenotype     `json:"phenotype,omitempty"`
	Severity        Severity      `json:"severity"`
	Alternatives    []string      `json:"suggested_alternatives,omitempty"`
	SuggestedDose   string        `json:"suggested_dose,omitempty"`
	Rationale       string        `json:"rationale"`
	MonitoringPlan  string        `json:"monitoring_plan"`
	TimeFrame       TimeFrame     `json:"time_frame"`
	Text            string        `json:"recommendation_text,omitempty"`
	Evidence        EvidenceLevel `json:"evidence_level,omitempty"`
	FDALabel        bool          `json:"fda_label"`
	Score           int           `json:"risk_score"`
	TherapeuticArea string        `json:"therapeutic_area,omitempty"`
}

// Report Models

// RiskSummary aggregates a patient's findings into a headline risk
// category with per-severity counts.
type RiskSummary struct {
	Category        string  `json:"category"`
	OverallScore    int     `json:"overall_score"`
	AverageScore    float64 `json:"average_score"`
	MaxScore        int     `json:"max_score"`
	CriticalCount   int     `json:"critical_count"`
	HighCount       int     `json:"high_count"`
	ModerateCount   int     `json:"moderate_count"`
	LowCount        int     `json:"low_count"`
	TotalFindings   int     `json:"total_findings"`
	ActionableCount int     `json:"actionable_count"`
}

// AnalysisWarning records a non-fatal condition encountered during
// analysis, such as a medication with no knowledge base coverage.
type AnalysisWarning struct {
	Code    string `json:"code"`
	Drug    string `json:"drug,omitempty"`
	Message string `json:"message"`
}

// AnalysisReport is the complete output of one patient analysis.
type AnalysisReport struct {
	PatientID       string            `json:"patient_id"`
	Findings        []Finding         `json:"findings"`
	Recommendations []Recommendation  `json:"recommendations"`
	RiskSummary     RiskSummary       `json:"risk_summary"`
	Warnings        []AnalysisWarning `json:"warnings,omitempty"`
	KBVersion       string            `json:"kb_version,omitempty"`
	GeneratedAt     time.Time         `json:"generated_at"`
	ProcessingTime  time.Duration     `json:"processing_time"`
}

// Batch Models

// PatientError records a patient the batch could not analyze. The batch
// continues past input failures; only the record survives.
type PatientError struct {
	PatientID string `json:"patient_id"`
	Reason    string `json:"reason"`
}

// BatchSummary is the aggregate output of a batch run. Reports are
// sorted by patient ID so repeated runs over the same cohort are
// byte-comparable.
type BatchSummary struct {
	RunID               string           `json:"run_id"`
	StartedAt           time.Time        `json:"started_at"`
	FinishedAt          time.Time        `json:"finished_at"`
	PatientCount        int              `json:"patient_count"`
	Succeeded           int              `json:"succeeded"`
	Failed              int              `json:"failed"`
	FindingCount        int              `json:"finding_count"`
	CriticalCount       int              `json:"critical_count"`
	RecommendationCount int              `json:"recommendation_count"`
	Reports             []AnalysisReport `json:"reports,omitempty"`
	Errors              []PatientError   `json:"errors,omitempty"`
	KBVersion           string           `json:"kb_version,omitempty"`
}

// Knowledge Base Models

// PhenotypeImpact is the tabulated consequence of one phenotype for one
// gene-drug rule.
type PhenotypeImpact struct {
	RiskLevel           string `json:"risk_level"`
	DosingAdjustment    string `json:"dosing_adjustment"`
	Recommendation      string `json:"recommendation"`
	Effect              string `json:"effect,omitempty"`
	ClinicalConsequence string `json:"clinical_consequence,omitempty"`
	EvidenceLevel       string `json:"evidence_level,omitempty"`
	FDALabel            bool   `json:"fda_label,omitempty"`
}

// GeneDrugRule is one CPIC gene-drug guideline entry with its
// per-phenotype impact table.
type GeneDrugRule struct {
	Gene             string                        `json:"gene"`
	Drug             string                        `json:"drug"`
	PhenotypeImpacts map[Phenotype]PhenotypeImpact `json:"phenotype_impacts"`
	CPICGuideline    string                        `json:"cpic_guideline,omitempty"`
	References       []string                      `json:"references,omitempty"`
	TherapeuticArea  string                        `json:"therapeutic_area,omitempty"`
	DrugClass        string                        `json:"drug_class,omitempty"`
	Mechanism        string                        `json:"mechanism,omitempty"`
}

// ImpactFor returns the tabulated impact for the phenotype, if any.
func (r *GeneDrugRule) ImpactFor(p Phenotype) (PhenotypeImpact, bool) {
	impact, ok := r.PhenotypeImpacts[p]
	return impact, ok
}

// DrugDrugRule is one entry of the drug-drug interaction table.
// TargetGene, when set, names the pharmacogene whose substrate is
// affected through enzyme inhibition (phenoconversion coupling).
type DrugDrugRule struct {
	DrugA          string `json:"drug_a"`
	DrugB          string `json:"drug_b"`
	Severity       string `json:"severity"`
	Mechanism      string `json:"mechanism"`
	ClinicalEffect string `json:"clinical_effect,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	EvidenceLevel  string `json:"evidence_level,omitempty"`
	TargetGene     string `json:"target_gene,omitempty"`
}

// FindingSeverity maps the interaction table's major/moderate/minor
// grading onto severity bands.
func (r *DrugDrugRule) FindingSeverity() Severity {
	switch strings.ToLower(r.Severity) {
	case "major":
		return HIGH
	case "moderate":
		return MODERATE
	default:
		return LOW
	}
}

// EnzymeModulator records one drug's inhibiting or inducing effect on a
// metabolizing enzyme.
type EnzymeModulator struct {
	Drug   string        `json:"drug"`
	Enzyme string        `json:"enzyme"`
	Role   ModulatorRole `json:"role"`
}

// DosingGuideline carries the substitute drugs and monitoring text
// tabulated for one drug.
type DosingGuideline struct {
	Drug         string   `json:"drug"`
	Alternatives []string `json:"alternatives,omitempty"`
	Monitoring   string   `json:"monitoring,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// RenalRule flags a drug requiring dose review below an eGFR cutoff.
type RenalRule struct {
	Drug       string  `json:"drug"`
	EGFRCutoff float64 `json:"egfr_cutoff"`
	Action     string  `json:"action"`
}

// HepaticRule flags a drug requiring dose review under hepatic impairment.
type HepaticRule struct {
	Drug   string `json:"drug"`
	Action string `json:"action"`
}

// KBInfo describes a loaded knowledge base snapshot.
type KBInfo struct {
	Version          string    `json:"version"`
	Source           string    `json:"source"`
	GeneDrugRules    int       `json:"gene_drug_rules"`
	DrugDrugRules    int       `json:"drug_drug_rules"`
	Genes            int       `json:"genes"`
	Drugs            int       `json:"drugs"`
	DosingGuidelines int       `json:"dosing_guidelines"`
	LoadedAt         time.Time `json:"loaded_at"`
}

// Name Normalization

// NormalizeDrugName lowercases a drug name and strips a trailing
// parenthetical qualifier ("prasugrel (10 mg/day)" -> "prasugrel") so
// dose-annotated names resolve against knowledge base keys.
func NormalizeDrugName(name string) string {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if i := strings.Index(trimmed, "("); i > 0 {
		trimmed = strings.TrimSpace(trimmed[:i])
	}
	return trimmed
}

// CanonicalPair returns the two drug names of a pair normalized and in
// lexical order, so pair identity is independent of input order.
func CanonicalPair(pair []string) (string, string) {
	if len(pair) != 2 {
		return "", ""
	}
	a := NormalizeDrugName(pair[0])
	b := NormalizeDrugName(pair[1])
	if b < a {
		a, b = b, a
	}
	return a, b
}

// SortFindings orders findings by descending score, then descending
// severity rank, then ascending drug key. The ordering is total, so
// output is deterministic for any input permutation.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Score != findings[j].Score {
			return findings[i].Score > findings[j].Score
		}
		if findings[i].Severity.Rank() != findings[j].Severity.Rank() {
			return findings[i].Severity.Rank() > findings[j].Severity.Rank()
		}
		return findings[i].Key().String() < findings[j].Key().String()
	})
}
