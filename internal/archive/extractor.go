// Package archive extracts downloaded zip archives into scratch directories.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrArchiveCorrupt marks archives that cannot be opened or extracted. The
// archive is skipped; the run continues.
var ErrArchiveCorrupt = errors.New("archive corrupt")

// ExtractAll unpacks every regular member of the zip at archivePath into
// scratchDir and returns the extracted paths. The scratch directory is owned
// by the caller, which removes it after import regardless of outcome.
func ExtractAll(archivePath, scratchDir string, logger *slog.Logger) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrArchiveCorrupt, archivePath, err)
	}
	defer zr.Close()

	var paths []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		outPath := filepath.Join(scratchDir, filepath.Base(f.Name))
		if err := extractMember(f, outPath); err != nil {
			return nil, fmt.Errorf("%w: member %s: %w", ErrArchiveCorrupt, f.Name, err)
		}
		paths = append(paths, outPath)
	}

	logger.Debug("Archive extracted.",
		slog.String("archive", filepath.Base(archivePath)),
		slog.Int("members", len(paths)))
	return paths, nil
}

func extractMember(f *zip.File, outPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open member stream: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		rc.Close()
		return fmt.Errorf("create %s: %w", outPath, err)
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := errors.Join(out.Close(), rc.Close())
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("extract: %w", err)
	}
	return nil
}

// IsZip reports whether the file name carries a zip extension.
func IsZip(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}
