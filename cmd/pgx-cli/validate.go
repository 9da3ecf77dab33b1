package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/internal/validation"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the clinical validation suite and print the impact report",
		Long: `Validate grades the interpretation engine against the twelve
clinical scenarios and prints the validation and impact report. The
command exits nonzero when any scenario fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runValidate(cmd.Context(), asJSON)
		},
	}

	cmd.Flags().Bool("json", false, "Emit case results and metrics as JSON")

	return cmd
}

func runValidate(ctx context.Context, asJSON bool) error {
	cfg := config.LoadLiteConfig()
	logger := cliLogger(cfg)

	provider, err := buildKB(cfg, logger)
	if err != nil {
		return fmt.Errorf("loading knowledge base: %w", err)
	}

	suite := validation.NewSuite(service.NewEngine(provider, logger), logger)
	results, err := suite.Run(ctx)
	if err != nil {
		return err
	}
	metrics := validation.ComputeMetrics(results)

	if asJSON {
		out := struct {
			Cases   []validation.CaseResult `json:"cases"`
			Metrics validation.Metrics      `json:"metrics"`
		}{results, metrics}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Print(validation.FormatImpactReport(results, metrics))
	}

	if metrics.CasesPassed < metrics.TotalCases {
		return fmt.Errorf("%d of %d scenarios failed", metrics.TotalCases-metrics.CasesPassed, metrics.TotalCases)
	}
	return nil
}
