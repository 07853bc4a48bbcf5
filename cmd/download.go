package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bqualhato/cnpjdata/internal/downloader"
	"github.com/bqualhato/cnpjdata/internal/pipeline"
)

// downloadCmd fetches archives without importing them.
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the monthly archives without importing",
	Long: `Discovers the zip archives in the configured directory listing and
downloads any that are not already present in the download directory.
Partially downloaded files are never left behind.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		outcomes, err := pipeline.Download(ctx, getConfig(), getDB(), logger)
		if errors.Is(err, context.Canceled) {
			logger.Warn("Download interrupted.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}

		var failed int
		for _, o := range outcomes {
			if o.Status == downloader.StatusFailed {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d archives failed to download", failed, len(outcomes))
		}
		return nil
	},
}
