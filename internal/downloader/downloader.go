// Package downloader retrieves catalog archives to local disk with bounded
// parallelism.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bqualhato/cnpjdata/internal/catalog"
)

const (
	chunkSize        = 8 * 1024
	progressInterval = 10 * 1024 * 1024
)

// Status is the explicit result variant of one retrieval attempt. A file
// that already exists at the destination counts as success without any
// network transfer.
type Status int

const (
	StatusDownloaded Status = iota
	StatusAlreadyPresent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusAlreadyPresent:
		return "already_present"
	default:
		return "failed"
	}
}

// Outcome reports what happened to one archive.
type Outcome struct {
	Archive catalog.Archive
	Status  Status
	// Path is the local file location for the two success variants.
	Path string
	Err  error
}

// Retriever downloads archives into a destination directory. Failures are
// contained per archive; a partially written file is always removed, so any
// path present after a run is a complete file.
type Retriever struct {
	client  *http.Client
	destDir string
	workers int
	logger  *slog.Logger
}

func New(client *http.Client, destDir string, workers int, logger *slog.Logger) *Retriever {
	if workers < 1 {
		workers = 1
	}
	return &Retriever{client: client, destDir: destDir, workers: workers, logger: logger}
}

// FetchAll retrieves every archive, running up to the configured number of
// downloads concurrently. It returns one outcome per input archive; callers
// use Succeeded to get the importable subset.
func (r *Retriever) FetchAll(ctx context.Context, archives []catalog.Archive) []Outcome {
	if err := os.MkdirAll(r.destDir, 0o755); err != nil {
		outcomes := make([]Outcome, len(archives))
		for i, a := range archives {
			outcomes[i] = Outcome{Archive: a, Status: StatusFailed, Err: fmt.Errorf("create dest dir: %w", err)}
		}
		return outcomes
	}

	outcomes := make([]Outcome, len(archives))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, a := range archives {
		i, a := i, a
		g.Go(func() error {
			out := r.fetchOne(gctx, a)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			// Errors stay in the outcome; one failed archive must not
			// cancel its siblings.
			return nil
		})
	}
	g.Wait()

	downloaded, present, failed := 0, 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case StatusDownloaded:
			downloaded++
		case StatusAlreadyPresent:
			present++
		default:
			failed++
		}
	}
	r.logger.Info("Retrieval finished.",
		slog.Int("downloaded", downloaded),
		slog.Int("already_present", present),
		slog.Int("failed", failed))
	return outcomes
}

// Succeeded filters outcomes down to the archives now present on disk.
func Succeeded(outcomes []Outcome) []Outcome {
	var ok []Outcome
	for _, o := range outcomes {
		if o.Status != StatusFailed {
			ok = append(ok, o)
		}
	}
	return ok
}

func (r *Retriever) fetchOne(ctx context.Context, a catalog.Archive) Outcome {
	destPath := filepath.Join(r.destDir, a.Name)
	l := r.logger.With(slog.String("archive", a.Name))

	if _, err := os.Stat(destPath); err == nil {
		l.Info("Archive already present, skipping download.")
		return Outcome{Archive: a, Status: StatusAlreadyPresent, Path: destPath}
	}

	l.Info("Downloading archive.", slog.String("size", a.Size))
	start := time.Now()
	if err := r.streamToFile(ctx, a.URL, destPath, l); err != nil {
		l.Error("Download failed.", "error", err, slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
		return Outcome{Archive: a, Status: StatusFailed, Err: fmt.Errorf("retrieve %s: %w", a.Name, err)}
	}
	l.Info("Download complete.", slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return Outcome{Archive: a, Status: StatusDownloaded, Path: destPath}
}

// streamToFile writes the remote content to destPath+".part" in fixed-size
// chunks and renames into place once the stream ends cleanly. Any failure
// removes the partial file before returning.
func (r *Retriever) streamToFile(ctx context.Context, url, destPath string, l *slog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/zip,application/octet-stream,*/*")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status %q", resp.Status)
	}

	partPath := destPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", partPath, err)
	}

	fail := func(cause error) error {
		out.Close()
		os.Remove(partPath)
		return cause
	}

	total := resp.ContentLength
	var written, lastReport int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fail(fmt.Errorf("write chunk: %w", werr))
			}
			written += int64(n)
			if written-lastReport >= progressInterval {
				lastReport = written
				if total > 0 {
					l.Info("Download progress.", slog.String("pct", fmt.Sprintf("%.1f%%", float64(written)/float64(total)*100)))
				} else {
					l.Info("Download progress.", slog.Int64("bytes", written))
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fail(fmt.Errorf("read body: %w", readErr))
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("close %s: %w", partPath, err)
	}
	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
