package downloader

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bqualhato/cnpjdata/internal/catalog"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFetchAllDownloads(t *testing.T) {
	payload := []byte("zip-bytes-here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := New(srv.Client(), dir, 2, testLogger)
	outcomes := r.FetchAll(context.Background(), []catalog.Archive{
		{Name: "Cnaes.zip", URL: srv.URL + "/Cnaes.zip"},
		{Name: "Motivos.zip", URL: srv.URL + "/Motivos.zip"},
	})
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, StatusDownloaded, o.Status)
		got, err := os.ReadFile(o.Path)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}

	parts, err := filepath.Glob(filepath.Join(dir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts, "no partial files after a clean run")
}

func TestFetchAllSkipsPresent(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Paises.zip")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be contacted for a present file")
	}))
	defer srv.Close()

	r := New(srv.Client(), dir, 1, testLogger)
	outcomes := r.FetchAll(context.Background(), []catalog.Archive{
		{Name: "Paises.zip", URL: srv.URL + "/Paises.zip"},
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusAlreadyPresent, outcomes[0].Status)
	assert.Equal(t, existing, outcomes[0].Path)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("already here"), got, "present file untouched")
}

func TestFetchAllRemovesPartialOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent so the client hits an
		// unexpected EOF mid-stream.
		w.Header().Set("Content-Length", "1048576")
		w.Write([]byte("truncated"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := New(srv.Client(), dir, 1, testLogger)
	outcomes := r.FetchAll(context.Background(), []catalog.Archive{
		{Name: "Empresas0.zip", URL: srv.URL + "/Empresas0.zip"},
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Error(t, outcomes[0].Err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed download leaves nothing behind")
}

func TestFetchAllBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := New(srv.Client(), dir, 1, testLogger)
	outcomes := r.FetchAll(context.Background(), []catalog.Archive{
		{Name: "Socios1.zip", URL: srv.URL + "/Socios1.zip"},
	})
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
}

func TestFetchAllOneFailureDoesNotStopOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.zip" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := New(srv.Client(), dir, 2, testLogger)
	outcomes := r.FetchAll(context.Background(), []catalog.Archive{
		{Name: "bad.zip", URL: srv.URL + "/bad.zip"},
		{Name: "good.zip", URL: srv.URL + "/good.zip"},
	})
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, StatusDownloaded, outcomes[1].Status)

	ok := Succeeded(outcomes)
	require.Len(t, ok, 1)
	assert.Equal(t, "good.zip", ok[0].Archive.Name)
}
