package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/report"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/internal/store"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a patient cohort file and write clinical reports",
		Long: `Analyze reads a JSON file holding one patient or an array of
patients, runs the interpretation pipeline over the cohort, and writes
one HTML report per patient plus analysis_summary.json. The run is
recorded in the audit store unless --no-audit is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			workers, _ := cmd.Flags().GetInt("workers")
			noAudit, _ := cmd.Flags().GetBool("no-audit")
			return runAnalyze(cmd.Context(), input, output, workers, noAudit)
		},
	}

	cmd.Flags().StringP("input", "i", "", "Patient cohort JSON file (required)")
	cmd.Flags().StringP("output", "o", "", "Report output directory (default: <data-dir>/exports)")
	cmd.Flags().Int("workers", 0, "Parallel analysis workers (default: one per CPU)")
	cmd.Flags().Bool("no-audit", false, "Skip recording the run in the audit store")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runAnalyze(ctx context.Context, input, output string, workers int, noAudit bool) error {
	cfg := config.LoadLiteConfig()
	logger := cliLogger(cfg)

	provider, err := buildKB(cfg, logger)
	if err != nil {
		return fmt.Errorf("loading knowledge base: %w", err)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading cohort file: %w", err)
	}

	patients, err := service.NewInputParser(logger).ParsePatients(data)
	if err != nil {
		return err
	}

	engine := service.NewEngine(provider, logger)
	summary, err := service.NewBatchRunner(engine, provider, workers, logger).Run(ctx, patients)
	if err != nil {
		return err
	}

	if output == "" {
		output = cfg.ExportDir()
	}
	if err := report.NewGenerator(logger).WriteBatch(summary, output); err != nil {
		return err
	}

	if !noAudit {
		if err := recordRun(ctx, cfg, summary); err != nil {
			return err
		}
	}

	fmt.Printf("Run %s: %d patients analyzed, %d succeeded, %d failed\n",
		summary.RunID, summary.PatientCount, summary.Succeeded, summary.Failed)
	fmt.Printf("Findings: %d (%d critical) | Recommendations: %d\n",
		summary.FindingCount, summary.CriticalCount, summary.RecommendationCount)
	fmt.Printf("Reports written to %s\n", output)
	for _, perr := range summary.Errors {
		fmt.Printf("  failed %s: %s\n", perr.PatientID, perr.Reason)
	}

	return nil
}

// recordRun appends the batch run to the local audit database.
func recordRun(ctx context.Context, cfg *config.LiteConfig, summary *domain.BatchSummary) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	runStore, err := store.NewSQLiteStore(cfg.RunDBPath())
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runStore.Close()

	if err := runStore.Save(ctx, store.NewRunRecord(summary)); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}
