package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/store"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the batch run audit store",
	}

	cmd.PersistentFlags().String("db", "", "Audit database path (default: <data-dir>/runs.db)")

	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsExportCmd())

	return cmd
}

func openRunStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = config.LoadLiteConfig().RunDBPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no audit database at %s", path)
	}
	return store.NewSQLiteStore(path)
}

func runsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded batch runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runRunsList(cmd.Context(), cmd, limit)
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum runs to list")

	return cmd
}

func runRunsList(ctx context.Context, cmd *cobra.Command, limit int) error {
	runStore, err := openRunStore(cmd)
	if err != nil {
		return err
	}
	defer runStore.Close()

	runs, err := runStore.List(ctx, limit, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	total, err := runStore.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-36s %-20s %9s %9s %7s %9s %9s\n",
		"RUN ID", "STARTED", "PATIENTS", "SUCCEEDED", "FAILED", "FINDINGS", "CRITICAL")
	for _, run := range runs {
		fmt.Printf("%-36s %-20s %9d %9d %7d %9d %9d\n",
			run.RunID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.PatientCount,
			run.Succeeded,
			run.Failed,
			run.FindingCount,
			run.CriticalCount,
		)
	}
	fmt.Printf("%d of %d runs shown.\n", len(runs), total)
	return nil
}

func runsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every recorded run as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return runRunsExport(cmd.Context(), cmd, out)
		},
	}

	cmd.Flags().String("out", "", "File to write (default: stdout)")

	return cmd
}

func runRunsExport(ctx context.Context, cmd *cobra.Command, out string) error {
	runStore, err := openRunStore(cmd)
	if err != nil {
		return err
	}
	defer runStore.Close()

	writer := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	return runStore.ExportJSON(ctx, writer)
}
