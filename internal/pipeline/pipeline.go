// Package pipeline wires the fetch, import and export stages into complete
// workflows for the CLI.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bqualhato/cnpjdata/internal/archive"
	"github.com/bqualhato/cnpjdata/internal/catalog"
	"github.com/bqualhato/cnpjdata/internal/config"
	"github.com/bqualhato/cnpjdata/internal/dataset"
	"github.com/bqualhato/cnpjdata/internal/db"
	"github.com/bqualhato/cnpjdata/internal/downloader"
	"github.com/bqualhato/cnpjdata/internal/exporter"
	"github.com/bqualhato/cnpjdata/internal/importer"
)

// DefaultHTTPClient is shared by catalog fetches and downloads. Archives run
// to gigabytes, so there is no overall timeout; cancellation comes from the
// context.
func DefaultHTTPClient() *http.Client {
	return &http.Client{}
}

// ImportTotals aggregates per-file import stats across a run.
type ImportTotals struct {
	Files           int
	SkippedUnknown  int
	SkippedImported int
	FailedArchives  int
	FailedMembers   int
	Imported        int
	SkippedRows     int
	FilteredRows    int
	FailedBatches   int
}

// Download fetches the catalog and retrieves every archive (or the reduced
// test-mode subset) with bounded parallelism. Catalog failure is fatal;
// individual download failures are reflected in the outcomes.
func Download(ctx context.Context, cfg config.Config, conn *sql.DB, logger *slog.Logger) ([]downloader.Outcome, error) {
	client := DefaultHTTPClient()
	archives, err := catalog.Fetch(ctx, client, cfg.BaseURL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.TestMode {
		archives = testModeSubset(archives)
		logger.Info("Test mode: reduced archive set.", slog.Int("archives", len(archives)))
	}
	if len(archives) == 0 {
		logger.Warn("Catalog returned no archives.")
		return nil, nil
	}

	retriever := downloader.New(client, cfg.DownloadDir, cfg.Workers, logger)
	outcomes := retriever.FetchAll(ctx, archives)

	for _, o := range outcomes {
		if o.Status != downloader.StatusDownloaded {
			continue
		}
		if err := db.LogArchiveEvent(ctx, conn, o.Archive.Name, db.EventDownloaded, o.Archive.URL, -1, 0); err != nil {
			logger.Warn("Failed to record download event.", slog.String("archive", o.Archive.Name), "error", err)
		}
	}
	return outcomes, nil
}

// testModeSubset keeps the six small reference archives plus the first
// empresas archive, enough to exercise the full pipeline quickly.
func testModeSubset(archives []catalog.Archive) []catalog.Archive {
	var subset []catalog.Archive
	empresasTaken := false
	for _, a := range archives {
		kind := dataset.Classify(a.Name)
		switch {
		case kind.IsReference():
			subset = append(subset, a)
		case kind == dataset.KindEmpresas && !empresasTaken:
			subset = append(subset, a)
			empresasTaken = true
		}
	}
	return subset
}

// ImportArchives extracts each local archive into a scratch directory and
// imports every member under the archive's classified kind. Corrupt
// archives and unknown names are logged and skipped, as are archives the
// load log already records as imported (unless ForceImport is set).
func ImportArchives(ctx context.Context, cfg config.Config, conn *sql.DB, logger *slog.Logger, archivePaths []string) (ImportTotals, error) {
	var totals ImportTotals
	imp := importer.New(conn, cfg, logger)

	names := make([]string, 0, len(archivePaths))
	for _, p := range archivePaths {
		names = append(names, filepath.Base(p))
	}
	alreadyImported := map[string]bool{}
	if !cfg.ForceImport {
		var err error
		alreadyImported, err = db.ImportedArchives(ctx, conn, names)
		if err != nil {
			return totals, err
		}
	}

	for _, path := range archivePaths {
		if err := ctx.Err(); err != nil {
			logger.Warn("Import interrupted.")
			return totals, err
		}
		name := filepath.Base(path)
		l := logger.With(slog.String("archive", name))

		if alreadyImported[name] {
			l.Info("Archive already imported, skipping.")
			totals.SkippedImported++
			continue
		}
		kind := dataset.Classify(name)
		if kind == dataset.KindUnknown {
			l.Warn("Unrecognized archive name, skipping.")
			totals.SkippedUnknown++
			continue
		}

		start := time.Now()
		before := totals.Imported
		if err := importOne(ctx, imp, path, kind, &totals, l); err != nil {
			if errors.Is(err, context.Canceled) {
				return totals, err
			}
			l.Error("Archive failed.", "error", err)
			totals.FailedArchives++
			if logErr := db.LogArchiveEvent(ctx, conn, name, db.EventError, err.Error(), -1, time.Since(start)); logErr != nil {
				l.Warn("Failed to record error event.", "error", logErr)
			}
			continue
		}
		rows := int64(totals.Imported - before)
		if err := db.LogArchiveEvent(ctx, conn, name, db.EventImported, "", rows, time.Since(start)); err != nil {
			l.Warn("Failed to record import event.", "error", err)
		}
	}

	logger.Info("Import finished.",
		slog.Int("files", totals.Files),
		slog.Int("rows_imported", totals.Imported),
		slog.Int("rows_skipped", totals.SkippedRows),
		slog.Int("rows_filtered", totals.FilteredRows),
		slog.Int("failed_batches", totals.FailedBatches),
		slog.Int("failed_archives", totals.FailedArchives),
		slog.Int("failed_members", totals.FailedMembers),
		slog.Int("unknown_archives", totals.SkippedUnknown),
		slog.Int("already_imported", totals.SkippedImported))
	return totals, nil
}

func importOne(ctx context.Context, imp *importer.Importer, archivePath string, kind dataset.Kind, totals *ImportTotals, l *slog.Logger) error {
	scratch, err := os.MkdirTemp("", "cnpjdata-extract-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	members, err := archive.ExtractAll(archivePath, scratch, l)
	if err != nil {
		return err
	}

	for _, member := range members {
		stats, err := imp.ImportFile(ctx, member, kind)
		totals.Files++
		totals.Imported += stats.Imported
		totals.SkippedRows += stats.Skipped
		totals.FilteredRows += stats.Filtered
		totals.FailedBatches += stats.FailedBatches
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.Error("Member import failed.", slog.String("member", filepath.Base(member)), "error", err)
			totals.FailedMembers++
		}
	}
	return nil
}

// Export runs the region export for the configured (or discovered) region
// set and writes the run summary.
func Export(ctx context.Context, cfg config.Config, conn *sql.DB, logger *slog.Logger) (exporter.Summary, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return exporter.Summary{}, fmt.Errorf("create output dir: %w", err)
	}

	exp := exporter.New(conn, cfg, logger)
	regions := cfg.Regions
	switch {
	case cfg.TestMode:
		regions = config.TestModeRegions
		logger.Info("Test mode: exporting reduced region set.", slog.Any("regions", regions))
	case len(regions) == 0:
		var err error
		regions, err = exp.Regions(ctx)
		if err != nil {
			return exporter.Summary{}, err
		}
	}
	summary := exp.ExportAll(ctx, normalizeRegions(regions))
	path, err := exporter.WriteSummary(summary)
	if err != nil {
		return summary, err
	}
	logger.Info("Summary written.", slog.String("path", path), slog.Int("total_files", summary.TotalFiles()))
	return summary, nil
}

// normalizeRegions uppercases UF codes into a fresh slice; the caller's
// slice (often cfg.Regions) is never written to.
func normalizeRegions(regions []string) []string {
	normalized := make([]string, len(regions))
	for i, uf := range regions {
		normalized[i] = strings.ToUpper(uf)
	}
	return normalized
}

// Run executes the complete workflow: catalog, retrieval, import, export,
// summary. An external interrupt produces a clean early return; committed
// batches stay committed.
func Run(ctx context.Context, cfg config.Config, conn *sql.DB, logger *slog.Logger) error {
	start := time.Now()

	outcomes, err := Download(ctx, cfg, conn, logger)
	if err != nil {
		return err
	}
	succeeded := downloader.Succeeded(outcomes)
	if len(succeeded) == 0 {
		logger.Warn("No archives available, nothing to import.")
		return nil
	}

	paths := make([]string, 0, len(succeeded))
	for _, o := range succeeded {
		paths = append(paths, o.Path)
	}
	if _, err := ImportArchives(ctx, cfg, conn, logger, paths); err != nil {
		return err
	}

	counts, err := db.TableCounts(ctx, conn)
	if err != nil {
		return err
	}
	for table, n := range counts {
		logger.Info("Table loaded.", slog.String("table", table), slog.Int64("rows", n))
	}

	if _, err := Export(ctx, cfg, conn, logger); err != nil {
		return err
	}

	logger.Info("Run complete.",
		slog.Duration("elapsed", time.Since(start).Round(time.Second)),
		slog.Int("archives", len(succeeded)))
	return nil
}
