// Package kb loads and serves the pharmacogenomic knowledge base: CPIC
// gene-drug rules, the drug-drug interaction table, enzyme modulator
// tables, and dosing guidance. A loaded provider is immutable and safe
// for unsynchronized concurrent reads.
package kb

import (
	"github.com/pgx-risk-engine/internal/domain"
)

// GeneDrugDocument is the on-disk shape of the gene-drug rule tables.
type GeneDrugDocument struct {
	Version              string                `json:"version"`
	GeneDrugInteractions []domain.GeneDrugRule `json:"gene_drug_interactions"`
}

// InhibitorSet groups an enzyme's tabulated inhibitors by strength.
type InhibitorSet struct {
	Strong   []string `json:"strong,omitempty"`
	Moderate []string `json:"moderate,omitempty"`
}

// InteractionDocument is the on-disk shape of the drug-drug interaction
// and enzyme modulator tables.
type InteractionDocument struct {
	Version              string                  `json:"version"`
	DrugDrugInteractions []domain.DrugDrugRule   `json:"drug_drug_interactions"`
	CYPInhibitors        map[string]InhibitorSet `json:"cyp_inhibitors"`
	CYPInducers          map[string][]string     `json:"cyp_inducers"`
}

// DosingEntry is one drug's dosing guidance record.
type DosingEntry struct {
	Alternatives []string `json:"alternatives,omitempty"`
	Monitoring   string   `json:"monitoring,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// RenalEntry flags a drug for dose review below an eGFR cutoff.
type RenalEntry struct {
	EGFRCutoff float64 `json:"egfr_cutoff"`
	Action     string  `json:"action"`
}

// StageLabel names an eGFR stage for report text.
type StageLabel struct {
	MinEGFR float64 `json:"min_egfr"`
	Label   string  `json:"label"`
}

// RenalAdjustments is the renal screening section of the dosing document.
type RenalAdjustments struct {
	Drugs      map[string]RenalEntry `json:"drugs_requiring_renal_adjustment"`
	Thresholds map[string]StageLabel `json:"egfr_thresholds"`
}

// HepaticAdjustments is the hepatic screening section of the dosing document.
type HepaticAdjustments struct {
	Drugs map[string]string `json:"drugs_requiring_hepatic_adjustment"`
}

// DosingDocument is the on-disk shape of the dosing guidance tables.
type DosingDocument struct {
	Version            string                 `json:"version"`
	DosingGuidelines   map[string]DosingEntry `json:"dosing_guidelines"`
	RenalAdjustments   RenalAdjustments       `json:"renal_adjustments"`
	HepaticAdjustments HepaticAdjustments     `json:"hepatic_adjustments"`
}

// Documents bundles the three knowledge base documents for loading.
type Documents struct {
	GeneDrug     GeneDrugDocument
	Interactions InteractionDocument
	Dosing       DosingDocument
}
