package domain

import (
	"context"
)

// KnowledgeBase is the read-only query surface over the loaded
// pharmacogenomic reference tables. Implementations are immutable after
// construction and safe for unsynchronized concurrent reads; the engine
// receives one by reference and never holds it in package state.
type KnowledgeBase interface {
	// GeneDrugRule returns the CPIC rule for a gene and drug, if tabulated.
	GeneDrugRule(gene, drug string) (*GeneDrugRule, bool)
	// RulesForDrug returns every gene-drug rule governing the drug.
	RulesForDrug(drug string) []*GeneDrugRule
	// DDI returns the interaction entry for an unordered drug pair.
	DDI(drugA, drugB string) (*DrugDrugRule, bool)
	// InhibitorsOf returns the tabulated inhibitors of an enzyme,
	// tagged strong or moderate.
	InhibitorsOf(enzyme string) []EnzymeModulator
	// InducersOf returns the tabulated inducers of an enzyme.
	InducersOf(enzyme string) []EnzymeModulator
	// ModulatorsIn filters a medication list down to the drugs that
	// modulate the given enzyme.
	ModulatorsIn(drugs []string, enzyme string) []EnzymeModulator
	// DosingGuideline returns substitute drugs and monitoring text for a drug.
	DosingGuideline(drug string) (*DosingGuideline, bool)
	// RenalRule returns the renal dose review rule for a drug, if any.
	RenalRule(drug string) (*RenalRule, bool)
	// RenalStage labels an eGFR value with its KDIGO stage.
	RenalStage(egfr float64) string
	// HepaticRule returns the hepatic dose review rule for a drug, if any.
	HepaticRule(drug string) (*HepaticRule, bool)
	// KnownDrug reports whether any table references the drug.
	KnownDrug(drug string) bool
	// Genes returns the pharmacogenes covered by gene-drug rules.
	Genes() []string
	// Info describes the loaded snapshot.
	Info() KBInfo
}

// Interpreter runs the full interpretation pipeline for one patient.
type Interpreter interface {
	Analyze(ctx context.Context, patient *Patient) (*AnalysisReport, error)
}

// BatchAnalyzer fans the interpreter out over a patient cohort.
type BatchAnalyzer interface {
	Run(ctx context.Context, patients []Patient) (*BatchSummary, error)
}
