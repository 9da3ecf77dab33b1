package kb

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
)

// Knowledge base document file names, fixed by convention.
const (
	GeneDrugFile     = "gene_drug_interactions.json"
	InteractionsFile = "drug_drug_interactions.json"
	DosingFile       = "dosing_guidelines.json"
)

// Loader reads knowledge base documents and constructs providers.
type Loader struct {
	log *logrus.Logger
}

// NewLoader creates a knowledge base loader.
func NewLoader(log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}
	return &Loader{log: log}
}

// LoadDir loads the three knowledge base documents from a directory on disk.
func (l *Loader) LoadDir(path string) (*Provider, error) {
	return l.loadFS(os.DirFS(path), "json:"+path)
}

// LoadFS loads the three knowledge base documents from any file system,
// including the embedded default.
func (l *Loader) LoadFS(fsys fs.FS) (*Provider, error) {
	return l.loadFS(fsys, "json")
}

func (l *Loader) loadFS(fsys fs.FS, source string) (*Provider, error) {
	docs, err := ReadDocuments(fsys)
	if err != nil {
		return nil, err
	}

	provider, err := NewProvider(docs, source)
	if err != nil {
		return nil, fmt.Errorf("building knowledge base: %w", err)
	}

	info := provider.Info()
	l.log.WithFields(logrus.Fields{
		"version":         info.Version,
		"source":          info.Source,
		"gene_drug_rules": info.GeneDrugRules,
		"drug_drug_rules": info.DrugDrugRules,
		"genes":           info.Genes,
		"drugs":           info.Drugs,
	}).Info("Knowledge base loaded")

	return provider, nil
}

// ReadDocuments parses the three knowledge base documents from a file
// system without building a provider. Used by the export tooling.
func ReadDocuments(fsys fs.FS) (Documents, error) {
	var docs Documents

	if err := readDocument(fsys, GeneDrugFile, &docs.GeneDrug); err != nil {
		return docs, err
	}
	if err := readDocument(fsys, InteractionsFile, &docs.Interactions); err != nil {
		return docs, err
	}
	if err := readDocument(fsys, DosingFile, &docs.Dosing); err != nil {
		return docs, err
	}
	return docs, nil
}

func readDocument(fsys fs.FS, name string, out interface{}) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("reading knowledge base document %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing knowledge base document %s: %w", name, err)
	}
	return nil
}
