package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bqualhato/cnpjdata/internal/pipeline"
)

var forceImportRun bool

// runCmd performs the complete workflow.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full download, import and export workflow",
	Long: `Performs the complete pipeline:
1. Discovers the zip archives in the monthly directory listing.
2. Downloads missing archives with bounded parallelism.
3. Extracts each archive and imports its members into DuckDB.
4. Exports per-state CSV files of active establishments plus a summary.

Interrupting with Ctrl-C stops cleanly between units of work; batches
already committed stay in the database.

Archives already recorded as imported in the load log are skipped.
Use --force-import to re-import them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		cfg.ForceImport = forceImportRun

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("Starting full workflow.")
		err := pipeline.Run(ctx, cfg, getDB(), logger)
		if errors.Is(err, context.Canceled) {
			logger.Warn("Workflow interrupted.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("run workflow failed: %w", err)
		}
		logger.Info("Workflow completed successfully.")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&forceImportRun, "force-import", false, "Re-import archives already recorded in the load log.")
}
