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

// exportCmd generates the per-state CSV files from an already loaded database.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-state CSV files of active establishments",
	Long: `Queries the loaded database and writes one set of CSV files per state:
the main establishment files (split when they exceed the row limit), an
optional partner roster per state, and a RESUMO.txt describing the run.

Use --estados to restrict the export to specific states and --sem-socios
to skip the roster files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := pipeline.Export(ctx, getConfig(), getDB(), logger)
		if errors.Is(err, context.Canceled) {
			logger.Warn("Export interrupted.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		var failed int
		for _, res := range summary.Outcomes {
			if res.Err != "" {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d states failed to export", failed, len(summary.Outcomes))
		}
		return nil
	},
}
