package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bqualhato/cnpjdata/internal/archive"
	"github.com/bqualhato/cnpjdata/internal/pipeline"
)

var forceImportOnly bool

// importCmd imports archives already present in the download directory.
var importCmd = &cobra.Command{
	Use:   "import [archive...]",
	Short: "Import downloaded archives into the database",
	Long: `Extracts and imports zip archives into the DuckDB database. With no
arguments every zip file in the download directory is imported; otherwise
only the named archives are. Archives already recorded as imported in the
load log are skipped unless --force-import is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		cfg.ForceImport = forceImportOnly

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths := args
		if len(paths) == 0 {
			entries, err := filepath.Glob(filepath.Join(cfg.DownloadDir, "*"))
			if err != nil {
				return fmt.Errorf("failed to list download directory: %w", err)
			}
			for _, entry := range entries {
				if archive.IsZip(entry) {
					paths = append(paths, entry)
				}
			}
			sort.Strings(paths)
		}
		if len(paths) == 0 {
			logger.Warn("No archives found to import.", "dir", cfg.DownloadDir)
			return nil
		}

		totals, err := pipeline.ImportArchives(ctx, cfg, getDB(), logger, paths)
		if errors.Is(err, context.Canceled) {
			logger.Warn("Import interrupted.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		if totals.FailedArchives > 0 || totals.FailedMembers > 0 {
			return fmt.Errorf("import finished with failures: %d archives, %d members",
				totals.FailedArchives, totals.FailedMembers)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&forceImportOnly, "force-import", false, "Re-import archives already recorded in the load log.")
}
