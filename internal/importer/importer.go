// Package importer streams extracted delimited files into the relational
// store.
package importer

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/bqualhato/cnpjdata/internal/config"
	"github.com/bqualhato/cnpjdata/internal/dataset"
	"github.com/bqualhato/cnpjdata/internal/db"
)

// MaskedCPF replaces every personal 11-digit identifier on partner rows
// when MEI inclusion is enabled. Blanket measure; it is applied to all
// partners, not only those belonging to an MEI.
const MaskedCPF = "***ANONIMIZADO***"

const (
	sniffSize     = 2048
	progressEvery = 10000
	defaultDelim  = ';'
)

// Stats summarizes one file import.
type Stats struct {
	Kind     dataset.Kind
	Imported int
	// Skipped counts rows dropped for mapping errors.
	Skipped int
	// Filtered counts rows dropped by the MEI exclusion policy.
	Filtered int
	// FailedBatches counts transactions that rolled back. Their rows are
	// removed from Imported.
	FailedBatches int
}

// Importer maps classified files into batched table upserts.
type Importer struct {
	conn   *sql.DB
	cfg    config.Config
	policy db.MergePolicy
	logger *slog.Logger
}

func New(conn *sql.DB, cfg config.Config, logger *slog.Logger) *Importer {
	return &Importer{conn: conn, cfg: cfg, policy: db.ReplaceOnConflict, logger: logger}
}

// ImportFile streams one extracted file of the given kind into its table.
// Individual bad rows are logged and skipped; a file that cannot be opened
// at all fails the whole file.
func (im *Importer) ImportFile(ctx context.Context, path string, kind dataset.Kind) (Stats, error) {
	stats := Stats{Kind: kind}
	spec, ok := dataset.Spec(kind)
	if !ok {
		return stats, fmt.Errorf("cannot import unclassified file %s", path)
	}
	l := im.logger.With(slog.String("file", path), slog.String("table", spec.Name))

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	delim, err := detectDelimiter(f)
	if err != nil {
		return stats, fmt.Errorf("sniff delimiter in %s: %w", path, err)
	}
	l.Debug("Delimiter detected.", slog.String("delimiter", string(delim)))

	// The upstream files are latin-1; decode permissively so stray bytes
	// never abort the stream.
	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(f))
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	batch := make([]dataset.Record, 0, im.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := db.UpsertBatch(ctx, im.conn, spec, im.policy, batch); err != nil {
			l.Error("Batch upsert failed, continuing with next batch.", "error", err, slog.Int("rows", len(batch)))
			stats.FailedBatches++
			stats.Imported -= len(batch)
		}
		batch = batch[:0]
	}

	rowNum := 0
	for {
		// On interrupt, committed batches stay committed; buffered rows
		// are abandoned.
		if err := ctx.Err(); err != nil {
			stats.Imported -= len(batch)
			return stats, err
		}

		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				l.Warn("Skipping unreadable row.", "error", err, slog.Int("row", rowNum))
				stats.Skipped++
				rowNum++
				continue
			}
			flush()
			return stats, fmt.Errorf("read %s: %w", path, err)
		}
		rowNum++
		if rowNum%progressEvery == 0 {
			l.Info("Import progress.", slog.Int("rows", rowNum))
		}

		rec, err := dataset.ParseRecord(kind, cleanRow(fields))
		if err != nil {
			l.Debug("Skipping unmappable row.", "error", err, slog.Int("row", rowNum))
			stats.Skipped++
			continue
		}
		rec, keep := im.applyMEIPolicy(rec)
		if !keep {
			stats.Filtered++
			continue
		}

		batch = append(batch, rec)
		stats.Imported++
		if len(batch) >= im.cfg.BatchSize {
			flush()
		}
	}
	flush()

	l.Info("File imported.",
		slog.Int("imported", stats.Imported),
		slog.Int("skipped", stats.Skipped),
		slog.Int("filtered", stats.Filtered),
		slog.Int("failed_batches", stats.FailedBatches))
	return stats, nil
}

// applyMEIPolicy enforces the configured MEI handling. With MEI excluded,
// classified-MEI empresas and simples rows are dropped before mapping. With
// MEI included, every partner CPF is masked on write.
func (im *Importer) applyMEIPolicy(rec dataset.Record) (dataset.Record, bool) {
	if !im.cfg.IncludeMEI {
		switch r := rec.(type) {
		case *dataset.Empresa:
			if r.IsMEI() {
				return nil, false
			}
		case *dataset.SimplesNacional:
			if r.IsMEI() {
				return nil, false
			}
		}
		return rec, true
	}
	if s, ok := rec.(*dataset.Socio); ok && s.HasCPF() {
		s.CpfCnpjSocio = MaskedCPF
	}
	return rec, true
}

// cleanRow trims each field and strips embedded quote characters. Empty
// fields stay empty here; Record.Values turns them into NULLs.
func cleanRow(fields []string) []string {
	cleaned := make([]string, len(fields))
	for i, f := range fields {
		cleaned[i] = strings.ReplaceAll(strings.TrimSpace(f), `"`, "")
	}
	return cleaned
}

// detectDelimiter samples the head of the file and picks the delimiter from
// a fixed priority list: semicolon wins unless absent, then pipe, then tab.
// The file is rewound afterwards.
func detectDelimiter(f *os.File) (rune, error) {
	buf := make([]byte, sniffSize)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	sample := string(buf[:n])
	if !strings.Contains(sample, ";") {
		if strings.Contains(sample, "|") {
			return '|', nil
		}
		if strings.Contains(sample, "\t") {
			return '\t', nil
		}
	}
	return defaultDelim, nil
}
