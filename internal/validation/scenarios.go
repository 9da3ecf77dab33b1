package validation

import (
	"github.com/pgx-risk-engine/internal/domain"
)

// Expectation is one finding a scenario requires the engine to emit.
// Gene-drug expectations set Gene and Drug; interaction expectations set
// DrugPair instead.
type Expectation struct {
	Gene        string          `json:"gene,omitempty"`
	Drug        string          `json:"drug,omitempty"`
	DrugPair    []string        `json:"drug_pair,omitempty"`
	Severity    domain.Severity `json:"expected_severity"`
	Action      domain.Action   `json:"expected_action"`
	Description string          `json:"description"`
}

// Scenario is one validated clinical case: a fixed patient payload and
// the findings a correct interpretation must produce for it.
type Scenario struct {
	ID              string
	Description     string
	TherapeuticArea string
	Patient         domain.Patient
	Expected        []Expectation
}

func lab(egfr, alt, ast float64) *domain.LabValues {
	return &domain.LabValues{EGFR: &egfr, ALT: &alt, AST: &ast}
}

// Scenarios returns the twelve-case clinical validation set. Every case
// reproduces a published CPIC-actionable situation with a known correct
// interpretation. Each call builds fresh fixtures, so callers may hand
// the patients to the engine without copying.
func Scenarios() []Scenario {
	return []Scenario{
		{
			ID:              "TC01",
			Description:     "CYP2C19 poor metabolizer on citalopram - dose reduction required",
			TherapeuticArea: "psychiatry",
			Patient: domain.Patient{
				ID:           "VAL_TC01",
				Demographics: domain.Demographics{Age: 40, Sex: "F"},
				Genotype: domain.Genotype{
					"CYP2C19": {Diplotype: "*2/*2", Phenotype: domain.POOR_METABOLIZER},
					"CYP2D6":  {Diplotype: "*1/*1", Phenotype: domain.NORMAL_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "citalopram"}},
				Labs:        lab(90, 20, 18),
				Context: map[string]string{
					"primary_diagnosis": "major depressive disorder",
					"therapeutic_area":  "psychiatry",
				},
			},
			Expected: []Expectation{{
				Gene:        "CYP2C19",
				Drug:        "citalopram",
				Severity:    domain.HIGH,
				Action:      domain.REDUCE_DOSE,
				Description: "Flags citalopram dose reduction for QT risk",
			}},
		},
		{
			ID:              "TC02",
			Description:     "CYP2D6 ultrarapid metabolizer on codeine - life-threatening toxicity",
			TherapeuticArea: "pain_management",
			Patient: domain.Patient{
				ID:           "VAL_TC02",
				Demographics: domain.Demographics{Age: 45, Sex: "M"},
				Genotype: domain.Genotype{
					"CYP2D6": {Diplotype: "*1/*1xN", Phenotype: domain.ULTRA_RAPID_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "codeine"}},
				Labs:        lab(95, 25, 22),
				Context: map[string]string{
					"primary_diagnosis": "acute pain",
					"therapeutic_area":  "pain_management",
				},
			},
			Expected: []Expectation{{
				Gene:        "CYP2D6",
				Drug:        "codeine",
				Severity:    domain.CRITICAL,
				Action:      domain.CONTRAINDICATED,
				Description: "Flags codeine as contraindicated, fatal toxicity risk",
			}},
		},
		{
			ID:              "TC03",
			Description:     "VKORC1 high sensitivity with CYP2C9 poor metabolizer on warfarin - major dose reduction",
			TherapeuticArea: "cardiology",
			Patient: domain.Patient{
				ID:           "VAL_TC03",
				Demographics: domain.Demographics{Age: 70, Sex: "M"},
				Genotype: domain.Genotype{
					"VKORC1": {Diplotype: "-1639A>A", Phenotype: domain.HIGH_SENSITIVITY},
					"CYP2C9": {Diplotype: "*3/*3", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "warfarin"}},
				Labs:        lab(65, 30, 28),
				Context: map[string]string{
					"primary_diagnosis": "atrial fibrillation",
					"therapeutic_area":  "cardiology",
				},
			},
			Expected: []Expectation{
				{
					Gene:        "VKORC1",
					Drug:        "warfarin",
					Severity:    domain.CRITICAL,
					Action:      domain.REDUCE_DOSE,
					Description: "VKORC1 high sensitivity, major dose reduction",
				},
				{
					Gene:        "CYP2C9",
					Drug:        "warfarin",
					Severity:    domain.CRITICAL,
					Action:      domain.REDUCE_DOSE,
					Description: "CYP2C9 poor metabolizer, major dose reduction",
				},
			},
		},
		{
			ID:              "TC04",
			Description:     "CYP2C19 poor metabolizer on clopidogrel - switch antiplatelet",
			TherapeuticArea: "cardiology",
			Patient: domain.Patient{
				ID:           "VAL_TC04",
				Demographics: domain.Demographics{Age: 60, Sex: "M"},
				Genotype: domain.Genotype{
					"CYP2C19": {Diplotype: "*2/*2", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "clopidogrel"}},
				Labs:        lab(85, 22, 20),
				Context: map[string]string{
					"primary_diagnosis": "acute coronary syndrome post-PCI",
					"therapeutic_area":  "cardiology",
				},
			},
			Expected: []Expectation{{
				Gene:        "CYP2C19",
				Drug:        "clopidogrel",
				Severity:    domain.CRITICAL,
				Action:      domain.SWITCH_DRUG,
				Description: "Switch to prasugrel or ticagrelor",
			}},
		},
		{
			ID:              "TC05",
			Description:     "DPYD poor metabolizer on fluorouracil - contraindicated",
			TherapeuticArea: "oncology",
			Patient: domain.Patient{
				ID:           "VAL_TC05",
				Demographics: domain.Demographics{Age: 65, Sex: "F"},
				Genotype: domain.Genotype{
					"DPYD": {Diplotype: "*2A/*2A", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "fluorouracil"}},
				Labs:        lab(75, 25, 22),
				Context: map[string]string{
					"primary_diagnosis": "colorectal cancer",
					"therapeutic_area":  "oncology",
				},
			},
			Expected: []Expectation{{
				Gene:        "DPYD",
				Drug:        "fluorouracil",
				Severity:    domain.CRITICAL,
				Action:      domain.CONTRAINDICATED,
				Description: "Contraindicated, fatal fluoropyrimidine toxicity",
			}},
		},
		{
			ID:              "TC06",
			Description:     "SLCO1B1 poor function on simvastatin - switch statin",
			TherapeuticArea: "cardiology",
			Patient: domain.Patient{
				ID:           "VAL_TC06",
				Demographics: domain.Demographics{Age: 55, Sex: "M"},
				Genotype: domain.Genotype{
					"SLCO1B1": {Diplotype: "*5/*5", Phenotype: domain.POOR_FUNCTION},
				},
				Medications: []domain.Medication{{Name: "simvastatin"}},
				Labs:        lab(80, 30, 25),
				Context: map[string]string{
					"primary_diagnosis": "hyperlipidemia",
					"therapeutic_area":  "cardiology",
				},
			},
			Expected: []Expectation{{
				Gene:        "SLCO1B1",
				Drug:        "simvastatin",
				Severity:    domain.CRITICAL,
				Action:      domain.SWITCH_DRUG,
				Description: "Avoid simvastatin, rhabdomyolysis risk",
			}},
		},
		{
			ID:              "TC07",
			Description:     "CYP2D6 poor metabolizer on tamoxifen - switch to aromatase inhibitor",
			TherapeuticArea: "oncology",
			Patient: domain.Patient{
				ID:           "VAL_TC07",
				Demographics: domain.Demographics{Age: 58, Sex: "F"},
				Genotype: domain.Genotype{
					"CYP2D6": {Diplotype: "*4/*4", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "tamoxifen"}},
				Labs:        lab(90, 20, 18),
				Context: map[string]string{
					"primary_diagnosis": "ER+ breast cancer",
					"therapeutic_area":  "oncology",
				},
			},
			Expected: []Expectation{{
				Gene:        "CYP2D6",
				Drug:        "tamoxifen",
				Severity:    domain.CRITICAL,
				Action:      domain.SWITCH_DRUG,
				Description: "Switch to an aromatase inhibitor",
			}},
		},
		{
			ID:              "TC08",
			Description:     "CYP2D6 poor metabolizer plus fluoxetine interaction on codeine - dual flag",
			TherapeuticArea: "pain_management",
			Patient: domain.Patient{
				ID:           "VAL_TC08",
				Demographics: domain.Demographics{Age: 50, Sex: "F"},
				Genotype: domain.Genotype{
					"CYP2D6": {Diplotype: "*4/*4", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "codeine"}, {Name: "fluoxetine"}},
				Labs:        lab(85, 22, 20),
				Context: map[string]string{
					"primary_diagnosis": "chronic pain with depression",
					"therapeutic_area":  "pain_management",
				},
			},
			Expected: []Expectation{
				{
					Gene:        "CYP2D6",
					Drug:        "codeine",
					Severity:    domain.HIGH,
					Action:      domain.CONTRAINDICATED,
					Description: "Gene: CYP2D6 poor metabolizer, codeine ineffective",
				},
				{
					DrugPair:    []string{"fluoxetine", "codeine"},
					Severity:    domain.HIGH,
					Action:      domain.SWITCH_DRUG,
					Description: "DDI: fluoxetine blocks CYP2D6 activation of codeine",
				},
			},
		},
		{
			ID:              "TC09",
			Description:     "CYP2C19 poor metabolizer on clopidogrel plus omeprazole - dual flag",
			TherapeuticArea: "cardiology",
			Patient: domain.Patient{
				ID:           "VAL_TC09",
				Demographics: domain.Demographics{Age: 62, Sex: "M"},
				Genotype: domain.Genotype{
					"CYP2C19": {Diplotype: "*2/*2", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "clopidogrel"}, {Name: "omeprazole"}},
				Labs:        lab(75, 25, 22),
				Context: map[string]string{
					"primary_diagnosis": "post-PCI",
					"therapeutic_area":  "cardiology",
				},
			},
			Expected: []Expectation{
				{
					Gene:        "CYP2C19",
					Drug:        "clopidogrel",
					Severity:    domain.CRITICAL,
					Action:      domain.SWITCH_DRUG,
					Description: "Gene: CYP2C19 poor metabolizer, clopidogrel not activated",
				},
				{
					DrugPair:    []string{"omeprazole", "clopidogrel"},
					Severity:    domain.HIGH,
					Action:      domain.SWITCH_DRUG,
					Description: "DDI: omeprazole inhibits CYP2C19",
				},
			},
		},
		{
			ID:              "TC10",
			Description:     "TPMT poor metabolizer on mercaptopurine - 90% dose reduction",
			TherapeuticArea: "oncology",
			Patient: domain.Patient{
				ID:           "VAL_TC10",
				Demographics: domain.Demographics{Age: 8, Sex: "M"},
				Genotype: domain.Genotype{
					"TPMT": {Diplotype: "*3A/*3A", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "mercaptopurine"}},
				Labs:        lab(120, 18, 15),
				Context: map[string]string{
					"primary_diagnosis": "ALL maintenance",
					"therapeutic_area":  "oncology",
				},
			},
			Expected: []Expectation{{
				Gene:        "TPMT",
				Drug:        "mercaptopurine",
				Severity:    domain.CRITICAL,
				Action:      domain.REDUCE_DOSE,
				Description: "Reduce mercaptopurine to 10% of standard dose",
			}},
		},
		{
			ID:              "TC11",
			Description:     "UGT1A1 *28/*28 on irinotecan - 30% dose reduction",
			TherapeuticArea: "oncology",
			Patient: domain.Patient{
				ID:           "VAL_TC11",
				Demographics: domain.Demographics{Age: 60, Sex: "F"},
				Genotype: domain.Genotype{
					"UGT1A1": {Diplotype: "*28/*28", Phenotype: domain.POOR_METABOLIZER},
				},
				Medications: []domain.Medication{{Name: "irinotecan"}},
				Labs:        lab(70, 35, 30),
				Context: map[string]string{
					"primary_diagnosis": "metastatic colorectal cancer",
					"therapeutic_area":  "oncology",
				},
			},
			Expected: []Expectation{{
				Gene:        "UGT1A1",
				Drug:        "irinotecan",
				Severity:    domain.CRITICAL,
				Action:      domain.REDUCE_DOSE,
				Description: "Reduce irinotecan starting dose by 30%",
			}},
		},
		{
			ID:              "TC12",
			Description:     "HLA-B*15:02 carrier on carbamazepine - contraindicated",
			TherapeuticArea: "psychiatry",
			Patient: domain.Patient{
				ID:           "VAL_TC12",
				Demographics: domain.Demographics{Age: 35, Sex: "F"},
				Genotype: domain.Genotype{
					"HLA-B": {Diplotype: "*15:02", Phenotype: domain.HLA_B_1502_POSITIVE},
				},
				Medications: []domain.Medication{{Name: "carbamazepine"}},
				Labs:        lab(100, 18, 15),
				Context: map[string]string{
					"primary_diagnosis": "bipolar disorder",
					"therapeutic_area":  "psychiatry",
				},
			},
			Expected: []Expectation{{
				Gene:        "HLA-B",
				Drug:        "carbamazepine",
				Severity:    domain.CRITICAL,
				Action:      domain.CONTRAINDICATED,
				Description: "Contraindicated, Stevens-Johnson syndrome risk",
			}},
		},
	}
}
