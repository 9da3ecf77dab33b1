// Command pgx-cli runs cohort analyses, the clinical validation suite,
// and knowledge base tooling from the command line. It reads the
// lightweight environment configuration (PGX_DATA_DIR, PGX_KB_DIR,
// PGX_KB_SQLITE, PGX_LOG_LEVEL); no config file is required.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/setup"
	"github.com/pgx-risk-engine/pkg/kb"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pgx-cli",
		Short:         "Pharmacogenomic interpretation engine CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(kbCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// cliLogger routes log lines to stderr so command output on stdout
// stays parseable.
func cliLogger(cfg *config.LiteConfig) *logrus.Logger {
	return setup.NewLogger(domain.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	})
}

// buildKB maps the lightweight configuration onto a knowledge base
// source: a SQLite snapshot, a document directory, or the embedded
// dataset.
func buildKB(cfg *config.LiteConfig, logger *logrus.Logger) (*kb.Provider, error) {
	kbCfg := domain.KBConfig{Source: "json", Path: cfg.KBDir}
	if cfg.KBSQLitePath != "" {
		kbCfg = domain.KBConfig{Source: "sqlite", SQLitePath: cfg.KBSQLitePath}
	}
	return setup.BuildKB(kbCfg, logger)
}
