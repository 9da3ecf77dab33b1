package domain

import (
	"math/rand"
	"testing"
)

func validPatient() *Patient {
	return &Patient{
		ID: "PT-0001",
		Genotype: Genotype{
			"CYP2D6": {Diplotype: "*1/*1", Phenotype: NORMAL_METABOLIZER},
		},
		Medications: []Medication{{Name: "codeine"}},
	}
}

func TestPatientValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Patient)
		wantErr bool
	}{
		{"Valid patient", func(p *Patient) {}, false},
		{"Missing patient ID", func(p *Patient) { p.ID = "" }, true},
		{"Empty medication list", func(p *Patient) { p.Medications = nil }, true},
		{"Blank medication name", func(p *Patient) { p.Medications = []Medication{{Name: "  "}} }, true},
		{"Unrecognized phenotype", func(p *Patient) {
			p.Genotype = Genotype{"CYP2D6": {Diplotype: "*1/*1", Phenotype: "hyper_metabolizer"}}
		}, true},
		{"Genotype optional", func(p *Patient) { p.Genotype = nil }, false},
		{"Blank phenotype tolerated", func(p *Patient) {
			p.Genotype = Genotype{"CYP2D6": {Diplotype: "*1/*1"}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPatient()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.wantErr && err != nil && !IsInputError(err) {
				t.Errorf("Expected an InputError, got %T", err)
			}
		})
	}
}

func TestNormalizeDrugName(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"Lowercases", "Codeine", "codeine"},
		{"Trims whitespace", "  warfarin  ", "warfarin"},
		{"Strips dose parenthetical", "prasugrel (10 mg/day)", "prasugrel"},
		{"Strips BID parenthetical", "ticagrelor (90 mg BID)", "ticagrelor"},
		{"Leading parenthesis kept", "(experimental)", "(experimental)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDrugName(tt.raw); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCanonicalPair(t *testing.T) {
	a1, b1 := CanonicalPair([]string{"Fluoxetine", "codeine"})
	a2, b2 := CanonicalPair([]string{"codeine", "fluoxetine"})
	if a1 != a2 || b1 != b2 {
		t.Errorf("Expected order independence, got (%s,%s) vs (%s,%s)", a1, b1, a2, b2)
	}
	if a1 != "codeine" || b1 != "fluoxetine" {
		t.Errorf("Expected lexical order, got (%s,%s)", a1, b1)
	}
}

func TestFindingKeyGrouping(t *testing.T) {
	geneDrug := Finding{Gene: "CYP2D6", Drug: "Codeine", Mechanisms: []Mechanism{GENE_DRUG}}
	pheno := Finding{Gene: "CYP2D6", Drug: "codeine", Mechanisms: []Mechanism{PHENOCONVERSION}}
	if geneDrug.Key() != pheno.Key() {
		t.Error("Expected gene-drug and phenoconversion findings to share a key")
	}

	ddi := Finding{DrugPair: []string{"fluoxetine", "codeine"}, Mechanisms: []Mechanism{DRUG_DRUG}}
	ddiFlipped := Finding{DrugPair: []string{"codeine", "fluoxetine"}, Mechanisms: []Mechanism{DRUG_DRUG}}
	if ddi.Key() != ddiFlipped.Key() {
		t.Error("Expected pair key to be order independent")
	}
	if ddi.Key() == geneDrug.Key() {
		t.Error("Expected pair findings to key separately from gene-drug findings")
	}

	renal := Finding{Drug: "metformin", Mechanisms: []Mechanism{RENAL}}
	hepatic := Finding{Drug: "metformin", Mechanisms: []Mechanism{HEPATIC}}
	if renal.Key() == hepatic.Key() {
		t.Error("Expected organ function findings to key by mechanism")
	}
}

func TestFindingDrugLabel(t *testing.T) {
	ddi := Finding{DrugPair: []string{"omeprazole", "clopidogrel"}, Mechanisms: []Mechanism{DRUG_DRUG}}
	if got := ddi.DrugLabel(); got != "clopidogrel + omeprazole" {
		t.Errorf("Expected canonical pair label, got %q", got)
	}

	single := Finding{Drug: "codeine", Mechanisms: []Mechanism{GENE_DRUG}}
	if got := single.DrugLabel(); got != "codeine" {
		t.Errorf("Expected drug name, got %q", got)
	}
}

func TestFindingValidateScoreBounds(t *testing.T) {
	f := Finding{
		Drug:       "codeine",
		Gene:       "CYP2D6",
		Mechanisms: []Mechanism{GENE_DRUG},
		Severity:   CRITICAL,
		State:      SCORED,
		Score:      101,
	}
	if err := f.Validate(); err == nil {
		t.Error("Expected out-of-range score to fail validation")
	}

	f.Score = 95
	if err := f.Validate(); err != nil {
		t.Errorf("Expected valid finding, got %v", err)
	}

	f.Action = CONTRAINDICATED
	f.Score = 90
	if err := f.Validate(); err == nil {
		t.Error("Expected contraindicated finding below floor to fail validation")
	}
}

func TestFindingTransitionTo(t *testing.T) {
	f := Finding{ID: "f1", Drug: "codeine", Mechanisms: []Mechanism{GENE_DRUG}, Severity: HIGH, State: DETECTED}
	if err := f.TransitionTo(SCORED); err != nil {
		t.Fatalf("Expected forward transition to succeed, got %v", err)
	}
	if err := f.TransitionTo(DETECTED); err == nil {
		t.Error("Expected backward transition to fail")
	}
	if f.State != SCORED {
		t.Errorf("Expected state to remain scored after rejected transition, got %s", f.State)
	}
}

func TestSortFindingsDeterministic(t *testing.T) {
	base := []Finding{
		{Drug: "codeine", Gene: "CYP2D6", Mechanisms: []Mechanism{GENE_DRUG}, Severity: CRITICAL, Score: 95},
		{Drug: "citalopram", Gene: "CYP2C19", Mechanisms: []Mechanism{GENE_DRUG}, Severity: HIGH, Score: 74},
		{DrugPair: []string{"omeprazole", "clopidogrel"}, Mechanisms: []Mechanism{DRUG_DRUG}, Severity: HIGH, Score: 74},
		{Drug: "simvastatin", Gene: "SLCO1B1", Mechanisms: []Mechanism{GENE_DRUG}, Severity: MODERATE, Score: 44},
	}

	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]Finding, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		SortFindings(shuffled)

		for i := range shuffled {
			if i == 0 {
				continue
			}
			prev, cur := shuffled[i-1], shuffled[i]
			if cur.Score > prev.Score {
				t.Fatalf("Trial %d: findings not in descending score order", trial)
			}
			if cur.Score == prev.Score && cur.Severity.Rank() > prev.Severity.Rank() {
				t.Fatalf("Trial %d: severity tiebreak violated", trial)
			}
		}
		if shuffled[0].Drug != "codeine" {
			t.Fatalf("Trial %d: expected codeine finding first, got %s", trial, shuffled[0].Drug)
		}
	}
}
