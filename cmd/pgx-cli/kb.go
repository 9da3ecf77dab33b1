package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/pkg/kb"
)

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect and export the knowledge base",
	}

	cmd.AddCommand(kbInfoCmd())
	cmd.AddCommand(kbExportCmd())

	return cmd
}

func kbInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the loaded knowledge base version and coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runKBInfo(asJSON)
		},
	}

	cmd.Flags().Bool("json", false, "Emit the snapshot description as JSON")

	return cmd
}

func runKBInfo(asJSON bool) error {
	cfg := config.LoadLiteConfig()
	logger := cliLogger(cfg)

	provider, err := buildKB(cfg, logger)
	if err != nil {
		return fmt.Errorf("loading knowledge base: %w", err)
	}
	info := provider.Info()

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}

	fmt.Printf("Knowledge base %s (%s)\n", info.Version, info.Source)
	fmt.Printf("  Gene-drug rules:   %d\n", info.GeneDrugRules)
	fmt.Printf("  Drug-drug rules:   %d\n", info.DrugDrugRules)
	fmt.Printf("  Dosing guidelines: %d\n", info.DosingGuidelines)
	fmt.Printf("  Genes: %d | Drugs: %d\n", info.Genes, info.Drugs)
	fmt.Printf("  Pharmacogenes: %s\n", strings.Join(provider.Genes(), ", "))
	return nil
}

func kbExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the knowledge base to a SQLite snapshot",
		Long: `Export writes the loaded knowledge base documents to a SQLite
database. The snapshot can be edited offline and served back with
PGX_KB_SQLITE or the kb.sqlite_path setting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return runKBExport(out)
		},
	}

	cmd.Flags().String("out", "", "Snapshot file to write (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runKBExport(out string) error {
	cfg := config.LoadLiteConfig()

	var (
		docs kb.Documents
		err  error
	)
	if cfg.KBDir != "" {
		docs, err = kb.ReadDocuments(os.DirFS(cfg.KBDir))
	} else {
		docs, err = kb.DefaultDocuments()
	}
	if err != nil {
		return fmt.Errorf("reading knowledge base documents: %w", err)
	}

	if err := kb.WriteSQLite(docs, out); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	fmt.Printf("Knowledge base %s exported to %s\n", docs.GeneDrug.Version, out)
	return nil
}
