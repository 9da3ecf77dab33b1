package kb

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/sirupsen/logrus"
)

// defaultData holds the knowledge base shipped with the binary. It covers
// the CPIC Level A gene-drug pairs the validation suite exercises and is
// used whenever no external knowledge base path is configured.
//
//go:embed data/*.json
var defaultData embed.FS

// Default builds a Provider from the embedded knowledge base.
func Default(log *logrus.Logger) (*Provider, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return nil, fmt.Errorf("embedded knowledge base: %w", err)
	}
	return NewLoader(log).loadFS(sub, "embedded")
}

// DefaultDocuments returns the embedded knowledge base documents, for
// export to other storage formats.
func DefaultDocuments() (Documents, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return Documents{}, fmt.Errorf("embedded knowledge base: %w", err)
	}
	return ReadDocuments(sub)
}
