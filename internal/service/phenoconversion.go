package service

import (
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// phenoconversionGenes are the CYP enzymes with clinically established
// inhibitor and inducer tables. Other pharmacogenes (transporters, HLA
// alleles, DPYD) are not subject to drug-mediated phenotype shifts.
var phenoconversionGenes = []string{"CYP2D6", "CYP2C19", "CYP2C9", "CYP3A4"}

// PhenotypeShift describes one drug-mediated change of a gene's
// functional phenotype.
type PhenotypeShift struct {
	Gene       string
	Baseline   domain.Phenotype
	Functional domain.Phenotype
	// Modulators lists the comedications sharing the strongest role
	// found for the enzyme; the first entry decided the shift.
	Modulators []domain.EnzymeModulator
}

// Worsens reports whether the shifted phenotype is more clinically
// concerning than the genetic baseline. Shifts that restore activity
// (an inducer acting on a poor metabolizer) are not flagged.
func (s *PhenotypeShift) Worsens() bool {
	return s.Functional.WorseThan(s.Baseline)
}

// ModulatorNames returns the drugs responsible for the shift.
func (s *PhenotypeShift) ModulatorNames() []string {
	names := make([]string, 0, len(s.Modulators))
	for _, m := range s.Modulators {
		names = append(names, m.Drug)
	}
	return names
}

// Phenoconverter computes drug-mediated functional phenotype shifts.
// When several modulators act on the same enzyme, only the single
// strongest effect applies (strong inhibition over moderate inhibition
// over induction); effects are never additive.
type Phenoconverter struct {
	kb     domain.KnowledgeBase
	logger *logrus.Logger
}

// NewPhenoconverter creates a phenoconversion calculator.
func NewPhenoconverter(kb domain.KnowledgeBase, logger *logrus.Logger) *Phenoconverter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Phenoconverter{kb: kb, logger: logger}
}

// Shift computes the functional phenotype of one gene for a patient,
// given their medication list. Returns nil when no modulator is present,
// when the baseline phenotype is not a metabolizer phenotype, or when
// the strongest effect leaves the phenotype unchanged.
func (pc *Phenoconverter) Shift(gene string, baseline domain.Phenotype, medications []string) *PhenotypeShift {
	if !baseline.IsMetabolizer() {
		return nil
	}

	modulators := pc.kb.ModulatorsIn(medications, gene)
	if len(modulators) == 0 {
		return nil
	}

	strongest := modulators[0]
	for _, m := range modulators[1:] {
		if m.Role.Precedence() > strongest.Role.Precedence() {
			strongest = m
		}
	}

	functional := baseline
	switch strongest.Role {
	case domain.STRONG_INHIBITOR:
		functional = baseline.ShiftDown()
	case domain.MODERATE_INHIBITOR:
		// Moderate inhibition does not cross a lattice step on its own.
	case domain.INDUCER:
		functional = baseline.ShiftUp()
	}

	if functional == baseline {
		return nil
	}

	shift := &PhenotypeShift{
		Gene:       gene,
		Baseline:   baseline,
		Functional: functional,
		Modulators: sameRoleModulators(modulators, strongest.Role),
	}

	pc.logger.WithFields(logrus.Fields{
		"gene":       gene,
		"baseline":   baseline.String(),
		"functional": functional.String(),
		"modulator":  strongest.Drug,
		"role":       strongest.Role.String(),
	}).Debug("Phenoconversion shift computed")

	return shift
}

// ShiftsFor computes every worsening phenotype shift for the patient
// across the phenoconversion-eligible genes.
func (pc *Phenoconverter) ShiftsFor(patient *domain.Patient) []PhenotypeShift {
	medications := patient.MedicationNames()

	var shifts []PhenotypeShift
	for _, gene := range phenoconversionGenes {
		entry, ok := patient.Genotype[gene]
		if !ok || entry.Phenotype == "" {
			continue
		}
		shift := pc.Shift(gene, entry.Phenotype, medications)
		if shift == nil || !shift.Worsens() {
			continue
		}
		shifts = append(shifts, *shift)
	}
	return shifts
}

// IsModulatorOf reports whether the drug is one of the shift's
// responsible modulators. The detector uses this to avoid flagging an
// inhibitor as a victim of its own interaction.
func (s *PhenotypeShift) IsModulatorOf(drug string) bool {
	normalized := domain.NormalizeDrugName(drug)
	for _, m := range s.Modulators {
		if m.Drug == normalized {
			return true
		}
	}
	return false
}

func sameRoleModulators(mods []domain.EnzymeModulator, role domain.ModulatorRole) []domain.EnzymeModulator {
	var out []domain.EnzymeModulator
	for _, m := range mods {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}
