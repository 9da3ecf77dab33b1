package service

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// InputParser decodes patient payloads from the wire formats produced by
// EHR exports and test fixtures. Medication entries may be bare drug name
// strings or structured objects; genotype entries may carry the tested
// result under diplotype, variant, or allele; phenotype labels arrive in
// assorted spellings and are normalized onto the CPIC vocabulary.
type InputParser struct {
	logger *logrus.Logger
}

// NewInputParser creates a new input parser.
func NewInputParser(logger *logrus.Logger) *InputParser {
	if logger == nil {
		logger = logrus.New()
	}
	return &InputParser{logger: logger}
}

type rawGenotypeEntry struct {
	Diplotype string `json:"diplotype"`
	Variant   string `json:"variant"`
	Allele    string `json:"allele"`
	Phenotype string `json:"phenotype"`
}

// rawMedication accepts both "citalopram" and {"name": "citalopram", ...}.
type rawMedication struct {
	domain.Medication
}

func (m *rawMedication) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		m.Medication = domain.Medication{Name: name}
		return nil
	}
	return json.Unmarshal(data, &m.Medication)
}

type rawPatient struct {
	PatientID    string                      `json:"patient_id"`
	ID           string                      `json:"id"`
	Demographics domain.Demographics         `json:"demographics"`
	Genotype     map[string]rawGenotypeEntry `json:"genotype"`
	Medications  []rawMedication             `json:"medications"`
	LabValues    *domain.LabValues           `json:"lab_values"`
	Context      map[string]string           `json:"clinical_context"`
}

type rawBatch struct {
	Patients []rawPatient `json:"patients"`
}

// ParsePatient decodes and validates a single patient payload.
func (p *InputParser) ParsePatient(data []byte) (*domain.Patient, error) {
	var raw rawPatient
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewInputError("payload", "malformed patient JSON", err.Error())
	}

	patient := p.buildPatient(raw)
	if err := patient.Validate(); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"patient_id":  patient.ID,
		"medications": len(patient.Medications),
		"genes":       len(patient.Genotype),
	}).Debug("Parsed patient payload")

	return patient, nil
}

// ParsePatients decodes a batch payload: either a JSON array of patients
// or an object with a "patients" array. Per-patient validation is left to
// the batch runner so one bad record cannot sink the cohort.
func (p *InputParser) ParsePatients(data []byte) ([]domain.Patient, error) {
	trimmed := strings.TrimSpace(string(data))

	var raws []rawPatient
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, domain.NewInputError("payload", "malformed batch JSON", err.Error())
		}
	} else {
		var batch rawBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, domain.NewInputError("payload", "malformed batch JSON", err.Error())
		}
		raws = batch.Patients
	}

	if len(raws) == 0 {
		return nil, domain.NewInputError("patients", "batch contains no patients", nil)
	}

	patients := make([]domain.Patient, 0, len(raws))
	for _, raw := range raws {
		patients = append(patients, *p.buildPatient(raw))
	}

	p.logger.WithField("patient_count", len(patients)).Debug("Parsed batch payload")
	return patients, nil
}

func (p *InputParser) buildPatient(raw rawPatient) *domain.Patient {
	patient := &domain.Patient{
		ID:           raw.PatientID,
		Demographics: raw.Demographics,
		Labs:         raw.LabValues,
		Context:      raw.Context,
	}
	if patient.ID == "" {
		patient.ID = raw.ID
	}

	if len(raw.Genotype) > 0 {
		patient.Genotype = make(domain.Genotype, len(raw.Genotype))
		for gene, entry := range raw.Genotype {
			diplotype := entry.Diplotype
			if diplotype == "" {
				diplotype = entry.Variant
			}
			if diplotype == "" {
				diplotype = entry.Allele
			}
			patient.Genotype[strings.ToUpper(strings.TrimSpace(gene))] = domain.GenotypeEntry{
				Diplotype: diplotype,
				Phenotype: NormalizePhenotype(entry.Phenotype),
			}
		}
	}

	patient.Medications = make([]domain.Medication, 0, len(raw.Medications))
	for _, med := range raw.Medications {
		med.Name = strings.TrimSpace(med.Name)
		patient.Medications = append(patient.Medications, med.Medication)
	}

	return patient
}

// phenotypeAliases maps historical and shorthand phenotype labels onto
// the CPIC vocabulary. Extensive metabolizer is the pre-2017 term for
// normal metabolizer; rapid metabolizer collapses into ultra-rapid.
var phenotypeAliases = map[string]domain.Phenotype{
	"um":                        domain.ULTRA_RAPID_METABOLIZER,
	"urm":                       domain.ULTRA_RAPID_METABOLIZER,
	"ultrarapid_metabolizer":    domain.ULTRA_RAPID_METABOLIZER,
	"rapid_metabolizer":         domain.ULTRA_RAPID_METABOLIZER,
	"nm":                        domain.NORMAL_METABOLIZER,
	"em":                        domain.NORMAL_METABOLIZER,
	"extensive_metabolizer":     domain.NORMAL_METABOLIZER,
	"im":                        domain.INTERMEDIATE_METABOLIZER,
	"pm":                        domain.POOR_METABOLIZER,
	"hla_b_15_02_positive":      domain.HLA_B_1502_POSITIVE,
	"hla_b_15_02_negative":      domain.HLA_B_1502_NEGATIVE,
	"hla_b_star_15_02_positive": domain.HLA_B_1502_POSITIVE,
	"hla_b_star_15_02_negative": domain.HLA_B_1502_NEGATIVE,
}

// NormalizePhenotype maps a free-form phenotype label onto the CPIC
// vocabulary. Unrecognized labels pass through lowercased so validation
// can report the original value instead of an empty string.
func NormalizePhenotype(raw string) domain.Phenotype {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "*", "_star_")
	normalized = strings.ReplaceAll(normalized, ":", "_")
	for strings.Contains(normalized, "__") {
		normalized = strings.ReplaceAll(normalized, "__", "_")
	}
	normalized = strings.Trim(normalized, "_")

	phenotype := domain.Phenotype(normalized)
	if phenotype.IsValid() {
		return phenotype
	}
	if alias, ok := phenotypeAliases[normalized]; ok {
		return alias
	}
	return phenotype
}
