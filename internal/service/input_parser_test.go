package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-risk-engine/internal/domain"
)

func TestParsePatientStructured(t *testing.T) {
	parser := NewInputParser(quietLogger())

	payload := []byte(`{
		"patient_id": "PT-2001",
		"demographics": {"age": 54, "sex": "female"},
		"genotype": {
			"cyp2d6": {"diplotype": "*1/*1xN", "phenotype": "ultra_rapid_metabolizer"},
			"CYP2C19": {"diplotype": "*1/*2", "phenotype": "IM"}
		},
		"medications": [
			{"name": "codeine", "dose": "30 mg", "frequency": "q6h"},
			"citalopram"
		],
		"lab_values": {"egfr": 58.0},
		"clinical_context": {"indication": "post-op pain"}
	}`)

	patient, err := parser.ParsePatient(payload)
	require.NoError(t, err)

	assert.Equal(t, "PT-2001", patient.ID)
	assert.Equal(t, 54, patient.Demographics.Age)

	require.Contains(t, patient.Genotype, "CYP2D6", "gene symbols are uppercased")
	assert.Equal(t, "*1/*1xN", patient.Genotype["CYP2D6"].Diplotype)
	assert.Equal(t, domain.ULTRA_RAPID_METABOLIZER, patient.Genotype["CYP2D6"].Phenotype)
	assert.Equal(t, domain.INTERMEDIATE_METABOLIZER, patient.Genotype["CYP2C19"].Phenotype)

	require.Len(t, patient.Medications, 2)
	assert.Equal(t, "codeine", patient.Medications[0].Name)
	assert.Equal(t, "30 mg", patient.Medications[0].Dose)
	assert.Equal(t, "citalopram", patient.Medications[1].Name, "bare strings decode as medication names")

	require.NotNil(t, patient.Labs)
	require.NotNil(t, patient.Labs.EGFR)
	assert.Equal(t, 58.0, *patient.Labs.EGFR)
	assert.Equal(t, "post-op pain", patient.Context["indication"])
}

func TestParsePatientAlternateFields(t *testing.T) {
	parser := NewInputParser(quietLogger())

	// EHR exports vary: "id" for "patient_id", "variant" or "allele"
	// for "diplotype".
	payload := []byte(`{
		"id": "PT-2002",
		"genotype": {
			"TPMT":   {"variant": "*3A/*3A", "phenotype": "poor_metabolizer"},
			"SLCO1B1": {"allele": "c.521CC", "phenotype": "poor_function"}
		},
		"medications": ["mercaptopurine"]
	}`)

	patient, err := parser.ParsePatient(payload)
	require.NoError(t, err)
	assert.Equal(t, "PT-2002", patient.ID)
	assert.Equal(t, "*3A/*3A", patient.Genotype["TPMT"].Diplotype)
	assert.Equal(t, "c.521CC", patient.Genotype["SLCO1B1"].Diplotype)
}

func TestParsePatientRejectsBadPayloads(t *testing.T) {
	parser := NewInputParser(quietLogger())

	tests := []struct {
		name    string
		payload string
	}{
		{name: "malformed json", payload: `{"patient_id": `},
		{name: "missing id", payload: `{"medications": ["codeine"]}`},
		{name: "missing medications", payload: `{"patient_id": "PT-1"}`},
		{name: "blank medication name", payload: `{"patient_id": "PT-1", "medications": ["  "]}`},
		{
			name:    "unrecognized phenotype",
			payload: `{"patient_id": "PT-1", "medications": ["codeine"], "genotype": {"CYP2D6": {"phenotype": "turbo"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ParsePatient([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, domain.IsInputError(err))
		})
	}
}

func TestParsePatientsArrayAndWrapper(t *testing.T) {
	parser := NewInputParser(quietLogger())

	array := []byte(`[
		{"patient_id": "PT-1", "medications": ["codeine"]},
		{"patient_id": "PT-2", "medications": ["warfarin"]}
	]`)
	wrapper := []byte(`{"patients": [
		{"patient_id": "PT-1", "medications": ["codeine"]},
		{"patient_id": "PT-2", "medications": ["warfarin"]}
	]}`)

	fromArray, err := parser.ParsePatients(array)
	require.NoError(t, err)
	fromWrapper, err := parser.ParsePatients(wrapper)
	require.NoError(t, err)

	assert.Equal(t, fromArray, fromWrapper)
	require.Len(t, fromArray, 2)
	assert.Equal(t, "PT-1", fromArray[0].ID)
}

func TestParsePatientsDefersValidation(t *testing.T) {
	parser := NewInputParser(quietLogger())

	// A batch with one bad record still parses; the batch runner decides
	// its fate.
	payload := []byte(`[
		{"patient_id": "PT-1", "medications": ["codeine"]},
		{"patient_id": "PT-2"}
	]`)

	patients, err := parser.ParsePatients(payload)
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Error(t, patients[1].Validate())
}

func TestParsePatientsEmpty(t *testing.T) {
	parser := NewInputParser(quietLogger())

	for _, payload := range []string{`[]`, `{"patients": []}`, `{}`} {
		_, err := parser.ParsePatients([]byte(payload))
		require.Error(t, err, "payload %s", payload)
		assert.True(t, domain.IsInputError(err))
	}
}

func TestNormalizePhenotype(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.Phenotype
	}{
		{raw: "poor_metabolizer", want: domain.POOR_METABOLIZER},
		{raw: "Poor Metabolizer", want: domain.POOR_METABOLIZER},
		{raw: "PM", want: domain.POOR_METABOLIZER},
		{raw: "IM", want: domain.INTERMEDIATE_METABOLIZER},
		{raw: "NM", want: domain.NORMAL_METABOLIZER},
		{raw: "EM", want: domain.NORMAL_METABOLIZER},
		{raw: "extensive metabolizer", want: domain.NORMAL_METABOLIZER},
		{raw: "UM", want: domain.ULTRA_RAPID_METABOLIZER},
		{raw: "Ultra-Rapid Metabolizer", want: domain.ULTRA_RAPID_METABOLIZER},
		{raw: "rapid metabolizer", want: domain.ULTRA_RAPID_METABOLIZER},
		{raw: "ultrarapid metabolizer", want: domain.ULTRA_RAPID_METABOLIZER},
		{raw: "HLA-B*15:02 positive", want: domain.HLA_B_1502_POSITIVE},
		{raw: "high_sensitivity", want: domain.HIGH_SENSITIVITY},
		{raw: "poor function", want: domain.POOR_FUNCTION},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhenotype(tt.raw))
		})
	}
}

func TestNormalizePhenotypePreservesUnknown(t *testing.T) {
	got := NormalizePhenotype("Turbo Metabolizer")
	assert.Equal(t, domain.Phenotype("turbo_metabolizer"), got)
	assert.False(t, got.IsValid(), "unknown labels surface in validation instead of vanishing")
}
