package kb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pgx-risk-engine/internal/domain"
)

// kbSchema mirrors the three JSON documents in relational form. Nested
// structures (phenotype impact tables, alternative lists) are stored as
// JSON text columns.
const kbSchema = `
CREATE TABLE IF NOT EXISTS kb_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gene_drug_rules (
	gene TEXT NOT NULL,
	drug TEXT NOT NULL,
	mechanism TEXT DEFAULT '',
	cpic_guideline TEXT DEFAULT '',
	therapeutic_area TEXT DEFAULT '',
	drug_class TEXT DEFAULT '',
	refs TEXT DEFAULT '[]',
	phenotype_impacts TEXT NOT NULL,
	PRIMARY KEY (gene, drug)
);

CREATE TABLE IF NOT EXISTS drug_drug_rules (
	drug_a TEXT NOT NULL,
	drug_b TEXT NOT NULL,
	severity TEXT NOT NULL,
	mechanism TEXT DEFAULT '',
	clinical_effect TEXT DEFAULT '',
	recommendation TEXT DEFAULT '',
	evidence_level TEXT DEFAULT '',
	target_gene TEXT DEFAULT '',
	PRIMARY KEY (drug_a, drug_b)
);

CREATE TABLE IF NOT EXISTS enzyme_modulators (
	enzyme TEXT NOT NULL,
	drug TEXT NOT NULL,
	role TEXT NOT NULL,
	PRIMARY KEY (enzyme, drug, role)
);

CREATE TABLE IF NOT EXISTS dosing_guidelines (
	drug TEXT PRIMARY KEY,
	alternatives TEXT DEFAULT '[]',
	monitoring TEXT DEFAULT '',
	notes TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS renal_rules (
	drug TEXT PRIMARY KEY,
	egfr_cutoff REAL NOT NULL,
	action TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS renal_stages (
	name TEXT PRIMARY KEY,
	min_egfr REAL NOT NULL,
	label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hepatic_rules (
	drug TEXT PRIMARY KEY,
	action TEXT NOT NULL
);
`

// LoadSQLite loads the knowledge base from a SQLite database previously
// written by WriteSQLite.
func (l *Loader) LoadSQLite(path string) (*Provider, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base database: %w", err)
	}
	defer db.Close()

	docs, err := readSQLite(db)
	if err != nil {
		return nil, err
	}

	provider, err := NewProvider(docs, "sqlite:"+path)
	if err != nil {
		return nil, fmt.Errorf("building knowledge base: %w", err)
	}

	info := provider.Info()
	l.log.WithFields(map[string]interface{}{
		"version":         info.Version,
		"source":          info.Source,
		"gene_drug_rules": info.GeneDrugRules,
		"drug_drug_rules": info.DrugDrugRules,
	}).Info("Knowledge base loaded")

	return provider, nil
}

// WriteSQLite writes the documents to a SQLite database, replacing any
// existing content. Used to export the knowledge base for offline editing.
func WriteSQLite(docs Documents, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(kbSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"kb_meta", "gene_drug_rules", "drug_drug_rules", "enzyme_modulators",
		"dosing_guidelines", "renal_rules", "renal_stages", "hepatic_rules",
	} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	meta := map[string]string{
		"gene_drug_version":    docs.GeneDrug.Version,
		"interactions_version": docs.Interactions.Version,
		"dosing_version":       docs.Dosing.Version,
	}
	for key, value := range meta {
		if _, err := tx.Exec("INSERT INTO kb_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	for _, rule := range docs.GeneDrug.GeneDrugInteractions {
		impacts, err := json.Marshal(rule.PhenotypeImpacts)
		if err != nil {
			return fmt.Errorf("failed to marshal impacts for %s/%s: %w", rule.Gene, rule.Drug, err)
		}
		refs, err := json.Marshal(rule.References)
		if err != nil {
			return fmt.Errorf("failed to marshal references for %s/%s: %w", rule.Gene, rule.Drug, err)
		}
		_, err = tx.Exec(`
			INSERT INTO gene_drug_rules
			(gene, drug, mechanism, cpic_guideline, therapeutic_area, drug_class, refs, phenotype_impacts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.Gene, rule.Drug, rule.Mechanism, rule.CPICGuideline,
			rule.TherapeuticArea, rule.DrugClass, string(refs), string(impacts),
		)
		if err != nil {
			return fmt.Errorf("failed to insert gene-drug rule %s/%s: %w", rule.Gene, rule.Drug, err)
		}
	}

	for _, rule := range docs.Interactions.DrugDrugInteractions {
		_, err := tx.Exec(`
			INSERT INTO drug_drug_rules
			(drug_a, drug_b, severity, mechanism, clinical_effect, recommendation, evidence_level, target_gene)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.DrugA, rule.DrugB, rule.Severity, rule.Mechanism,
			rule.ClinicalEffect, rule.Recommendation, rule.EvidenceLevel, rule.TargetGene,
		)
		if err != nil {
			return fmt.Errorf("failed to insert interaction %s/%s: %w", rule.DrugA, rule.DrugB, err)
		}
	}

	insertModulator := func(enzyme, drug string, role domain.ModulatorRole) error {
		_, err := tx.Exec(
			"INSERT INTO enzyme_modulators (enzyme, drug, role) VALUES (?, ?, ?)",
			enzyme, drug, role.String(),
		)
		return err
	}
	for enzyme, set := range docs.Interactions.CYPInhibitors {
		for _, drug := range set.Strong {
			if err := insertModulator(enzyme, drug, domain.STRONG_INHIBITOR); err != nil {
				return fmt.Errorf("failed to insert inhibitor %s/%s: %w", enzyme, drug, err)
			}
		}
		for _, drug := range set.Moderate {
			if err := insertModulator(enzyme, drug, domain.MODERATE_INHIBITOR); err != nil {
				return fmt.Errorf("failed to insert inhibitor %s/%s: %w", enzyme, drug, err)
			}
		}
	}
	for enzyme, drugs := range docs.Interactions.CYPInducers {
		for _, drug := range drugs {
			if err := insertModulator(enzyme, drug, domain.INDUCER); err != nil {
				return fmt.Errorf("failed to insert inducer %s/%s: %w", enzyme, drug, err)
			}
		}
	}

	for drug, entry := range docs.Dosing.DosingGuidelines {
		alternatives, err := json.Marshal(entry.Alternatives)
		if err != nil {
			return fmt.Errorf("failed to marshal alternatives for %s: %w", drug, err)
		}
		_, err = tx.Exec(`
			INSERT INTO dosing_guidelines (drug, alternatives, monitoring, notes)
			VALUES (?, ?, ?, ?)`,
			drug, string(alternatives), entry.Monitoring, entry.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert dosing guideline for %s: %w", drug, err)
		}
	}

	for drug, entry := range docs.Dosing.RenalAdjustments.Drugs {
		_, err := tx.Exec(
			"INSERT INTO renal_rules (drug, egfr_cutoff, action) VALUES (?, ?, ?)",
			drug, entry.EGFRCutoff, entry.Action,
		)
		if err != nil {
			return fmt.Errorf("failed to insert renal rule for %s: %w", drug, err)
		}
	}
	for name, stage := range docs.Dosing.RenalAdjustments.Thresholds {
		_, err := tx.Exec(
			"INSERT INTO renal_stages (name, min_egfr, label) VALUES (?, ?, ?)",
			name, stage.MinEGFR, stage.Label,
		)
		if err != nil {
			return fmt.Errorf("failed to insert renal stage %s: %w", name, err)
		}
	}
	for drug, action := range docs.Dosing.HepaticAdjustments.Drugs {
		_, err := tx.Exec(
			"INSERT INTO hepatic_rules (drug, action) VALUES (?, ?)",
			drug, action,
		)
		if err != nil {
			return fmt.Errorf("failed to insert hepatic rule for %s: %w", drug, err)
		}
	}

	return tx.Commit()
}

func readSQLite(db *sql.DB) (Documents, error) {
	var docs Documents

	meta := make(map[string]string)
	rows, err := db.Query("SELECT key, value FROM kb_meta")
	if err != nil {
		return docs, fmt.Errorf("failed to read metadata: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return docs, err
		}
		meta[key] = value
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return docs, err
	}
	docs.GeneDrug.Version = meta["gene_drug_version"]
	docs.Interactions.Version = meta["interactions_version"]
	docs.Dosing.Version = meta["dosing_version"]

	if err := readGeneDrugRules(db, &docs); err != nil {
		return docs, err
	}
	if err := readDrugDrugRules(db, &docs); err != nil {
		return docs, err
	}
	if err := readModulators(db, &docs); err != nil {
		return docs, err
	}
	if err := readDosing(db, &docs); err != nil {
		return docs, err
	}
	return docs, nil
}

func readGeneDrugRules(db *sql.DB, docs *Documents) error {
	rows, err := db.Query(`
		SELECT gene, drug, mechanism, cpic_guideline, therapeutic_area, drug_class, refs, phenotype_impacts
		FROM gene_drug_rules ORDER BY gene, drug`)
	if err != nil {
		return fmt.Errorf("failed to read gene-drug rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule domain.GeneDrugRule
		var refs, impacts string
		err := rows.Scan(
			&rule.Gene, &rule.Drug, &rule.Mechanism, &rule.CPICGuideline,
			&rule.TherapeuticArea, &rule.DrugClass, &refs, &impacts,
		)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(refs), &rule.References); err != nil {
			return fmt.Errorf("corrupt references for %s/%s: %w", rule.Gene, rule.Drug, err)
		}
		if err := json.Unmarshal([]byte(impacts), &rule.PhenotypeImpacts); err != nil {
			return fmt.Errorf("corrupt impacts for %s/%s: %w", rule.Gene, rule.Drug, err)
		}
		docs.GeneDrug.GeneDrugInteractions = append(docs.GeneDrug.GeneDrugInteractions, rule)
	}
	return rows.Err()
}

func readDrugDrugRules(db *sql.DB, docs *Documents) error {
	rows, err := db.Query(`
		SELECT drug_a, drug_b, severity, mechanism, clinical_effect, recommendation, evidence_level, target_gene
		FROM drug_drug_rules ORDER BY drug_a, drug_b`)
	if err != nil {
		return fmt.Errorf("failed to read drug-drug rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule domain.DrugDrugRule
		err := rows.Scan(
			&rule.DrugA, &rule.DrugB, &rule.Severity, &rule.Mechanism,
			&rule.ClinicalEffect, &rule.Recommendation, &rule.EvidenceLevel, &rule.TargetGene,
		)
		if err != nil {
			return err
		}
		docs.Interactions.DrugDrugInteractions = append(docs.Interactions.DrugDrugInteractions, rule)
	}
	return rows.Err()
}

func readModulators(db *sql.DB, docs *Documents) error {
	rows, err := db.Query("SELECT enzyme, drug, role FROM enzyme_modulators ORDER BY enzyme, drug")
	if err != nil {
		return fmt.Errorf("failed to read enzyme modulators: %w", err)
	}
	defer rows.Close()

	inhibitors := make(map[string]InhibitorSet)
	inducers := make(map[string][]string)
	for rows.Next() {
		var enzyme, drug, role string
		if err := rows.Scan(&enzyme, &drug, &role); err != nil {
			return err
		}
		switch domain.ModulatorRole(role) {
		case domain.STRONG_INHIBITOR:
			set := inhibitors[enzyme]
			set.Strong = append(set.Strong, drug)
			inhibitors[enzyme] = set
		case domain.MODERATE_INHIBITOR:
			set := inhibitors[enzyme]
			set.Moderate = append(set.Moderate, drug)
			inhibitors[enzyme] = set
		case domain.INDUCER:
			inducers[enzyme] = append(inducers[enzyme], drug)
		default:
			return fmt.Errorf("unknown modulator role %q for %s/%s", role, enzyme, drug)
		}
	}
	if len(inhibitors) > 0 {
		docs.Interactions.CYPInhibitors = inhibitors
	}
	if len(inducers) > 0 {
		docs.Interactions.CYPInducers = inducers
	}
	return rows.Err()
}

func readDosing(db *sql.DB, docs *Documents) error {
	rows, err := db.Query("SELECT drug, alternatives, monitoring, notes FROM dosing_guidelines")
	if err != nil {
		return fmt.Errorf("failed to read dosing guidelines: %w", err)
	}
	guidelines := make(map[string]DosingEntry)
	for rows.Next() {
		var drug, alternatives string
		var entry DosingEntry
		if err := rows.Scan(&drug, &alternatives, &entry.Monitoring, &entry.Notes); err != nil {
			rows.Close()
			return err
		}
		if err := json.Unmarshal([]byte(alternatives), &entry.Alternatives); err != nil {
			rows.Close()
			return fmt.Errorf("corrupt alternatives for %s: %w", drug, err)
		}
		guidelines[drug] = entry
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	docs.Dosing.DosingGuidelines = guidelines

	rows, err = db.Query("SELECT drug, egfr_cutoff, action FROM renal_rules")
	if err != nil {
		return fmt.Errorf("failed to read renal rules: %w", err)
	}
	renal := make(map[string]RenalEntry)
	for rows.Next() {
		var drug string
		var entry RenalEntry
		if err := rows.Scan(&drug, &entry.EGFRCutoff, &entry.Action); err != nil {
			rows.Close()
			return err
		}
		renal[drug] = entry
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	docs.Dosing.RenalAdjustments.Drugs = renal

	rows, err = db.Query("SELECT name, min_egfr, label FROM renal_stages")
	if err != nil {
		return fmt.Errorf("failed to read renal stages: %w", err)
	}
	stages := make(map[string]StageLabel)
	for rows.Next() {
		var name string
		var stage StageLabel
		if err := rows.Scan(&name, &stage.MinEGFR, &stage.Label); err != nil {
			rows.Close()
			return err
		}
		stages[name] = stage
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	docs.Dosing.RenalAdjustments.Thresholds = stages

	rows, err = db.Query("SELECT drug, action FROM hepatic_rules")
	if err != nil {
		return fmt.Errorf("failed to read hepatic rules: %w", err)
	}
	hepatic := make(map[string]string)
	for rows.Next() {
		var drug, action string
		if err := rows.Scan(&drug, &action); err != nil {
			rows.Close()
			return err
		}
		hepatic[drug] = action
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	docs.Dosing.HepaticAdjustments.Drugs = hepatic

	return nil
}
