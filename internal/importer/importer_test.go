package importer

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/bqualhato/cnpjdata/internal/config"
	"github.com/bqualhato/cnpjdata/internal/dataset"
	"github.com/bqualhato/cnpjdata/internal/db"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.InitSchema(context.Background(), conn))
	return conn
}

// writeSourceFile stores content latin-1 encoded, the way the upstream
// files arrive.
func writeSourceFile(t *testing.T, content string) string {
	t.Helper()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "MEMBER")
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o644))
	return path
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.BatchSize = 2
	return cfg
}

func TestImportFileEmpresas(t *testing.T) {
	conn := openTestDB(t)
	content := `"12345678";"PADARIA SÃO JOÃO LTDA";"2062";"49";"10000,00";"03";""` + "\n" +
		`"87654321";"MERCADO CENTRAL EIRELI";"2305";"49";"5000,50";"05";""` + "\n" +
		`"11112222";"BANCA DA ESQUINA";"2135";"50";"";"01";""` + "\n"
	path := writeSourceFile(t, content)

	imp := New(conn, testConfig(), testLogger)
	stats, err := imp.ImportFile(context.Background(), path, dataset.KindEmpresas)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Imported)
	assert.Zero(t, stats.Skipped)
	assert.Zero(t, stats.FailedBatches)

	var razao string
	require.NoError(t, conn.QueryRow(
		"SELECT razao_social FROM empresas WHERE cnpj_basico = '12345678'").Scan(&razao))
	assert.Equal(t, "PADARIA SÃO JOÃO LTDA", razao, "latin-1 decoded to UTF-8")

	var capital float64
	require.NoError(t, conn.QueryRow(
		"SELECT capital_social FROM empresas WHERE cnpj_basico = '87654321'").Scan(&capital))
	assert.Equal(t, 5000.50, capital)
}

func TestImportFileSkipsShortRows(t *testing.T) {
	conn := openTestDB(t)
	content := "0111301;Cultivo de arroz\nmalformed-single-field\n0111302;Cultivo de milho\n"
	path := writeSourceFile(t, content)

	imp := New(conn, testConfig(), testLogger)
	stats, err := imp.ImportFile(context.Background(), path, dataset.KindCnaes)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 1, stats.Skipped)
}

func TestImportFilePipeDelimiter(t *testing.T) {
	conn := openTestDB(t)
	path := writeSourceFile(t, "105|Brasil\n249|Estados Unidos\n")

	imp := New(conn, testConfig(), testLogger)
	stats, err := imp.ImportFile(context.Background(), path, dataset.KindPaises)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)

	var descricao string
	require.NoError(t, conn.QueryRow(
		"SELECT descricao FROM paises WHERE codigo = '105'").Scan(&descricao))
	assert.Equal(t, "Brasil", descricao)
}

func TestImportFileMasksPartnerCPF(t *testing.T) {
	conn := openTestDB(t)
	content := `"12345678";"2";"JOSE DA SILVA";"12345678901";"49";"20200101";"";"";"";"";"4"` + "\n" +
		`"12345678";"1";"HOLDING XYZ SA";"11222333000181";"49";"20200101";"";"";"";"";"0"` + "\n"
	path := writeSourceFile(t, content)

	cfg := testConfig()
	cfg.IncludeMEI = true
	imp := New(conn, cfg, testLogger)
	stats, err := imp.ImportFile(context.Background(), path, dataset.KindSocios)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)

	var masked string
	require.NoError(t, conn.QueryRow(
		"SELECT cpf_cnpj_socio FROM socios WHERE nome_socio = 'JOSE DA SILVA'").Scan(&masked))
	assert.Equal(t, MaskedCPF, masked, "11-digit personal id masked")

	var corporate string
	require.NoError(t, conn.QueryRow(
		"SELECT cpf_cnpj_socio FROM socios WHERE nome_socio = 'HOLDING XYZ SA'").Scan(&corporate))
	assert.Equal(t, "11222333000181", corporate, "14-digit corporate id kept")
}

func TestImportFileExcludesMEI(t *testing.T) {
	conn := openTestDB(t)
	content := `"11112222";"MEI DO BAIRRO";"2135";"50";"";"01";""` + "\n" +
		`"33334444";"EMPRESA NORMAL LTDA";"2062";"49";"1000,00";"03";""` + "\n"
	path := writeSourceFile(t, content)

	cfg := testConfig()
	cfg.IncludeMEI = false
	imp := New(conn, cfg, testLogger)
	stats, err := imp.ImportFile(context.Background(), path, dataset.KindEmpresas)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 1, stats.Filtered)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM empresas").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestImportFileExcludesMEISimples(t *testing.T) {
	conn := openTestDB(t)
	content := `"11112222";"S";"20200101";"";"S";"20200101";""` + "\n" +
		`"33334444";"S";"20200101";"";"N";"";""` + "\n"
	path := writeSourceFile(t, content)

	cfg := testConfig()
	cfg.IncludeMEI = false
	imp := New(conn, cfg, testLogger)
	stats, err := imp.ImportFile(context.Background(), path, dataset.KindSimples)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 1, stats.Filtered)
}

func TestImportFileFailedBatchIsContained(t *testing.T) {
	conn := openTestDB(t)
	content := "0111301;Cultivo de arroz\n" +
		"0111302;Cultivo de milho\n" +
		"0111301;Duplicata\n" +
		"0111303;Cultivo de cana\n"
	path := writeSourceFile(t, content)

	imp := New(conn, testConfig(), testLogger)
	// Plain inserts make the duplicate code in the second batch a real
	// transaction failure instead of a replace.
	imp.policy = db.AppendOnly

	stats, err := imp.ImportFile(context.Background(), path, dataset.KindCnaes)
	require.NoError(t, err, "a failed batch does not fail the file")
	assert.Equal(t, 1, stats.FailedBatches)
	assert.Equal(t, 2, stats.Imported, "failed batch rows removed from the count")
	assert.Zero(t, stats.Skipped)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM cnaes").Scan(&n))
	assert.Equal(t, 2, n, "first batch committed, second rolled back whole")

	var descricao string
	require.NoError(t, conn.QueryRow(
		"SELECT descricao FROM cnaes WHERE codigo = '0111301'").Scan(&descricao))
	assert.Equal(t, "Cultivo de arroz", descricao)

	err = conn.QueryRow("SELECT descricao FROM cnaes WHERE codigo = '0111303'").Scan(&descricao)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestImportFileReimportReplaces(t *testing.T) {
	conn := openTestDB(t)
	imp := New(conn, testConfig(), testLogger)

	first := writeSourceFile(t, `"12345678";"NOME ANTIGO";"2062";"49";"";"03";""`+"\n")
	_, err := imp.ImportFile(context.Background(), first, dataset.KindEmpresas)
	require.NoError(t, err)

	second := writeSourceFile(t, `"12345678";"NOME NOVO";"2062";"49";"";"03";""`+"\n")
	_, err = imp.ImportFile(context.Background(), second, dataset.KindEmpresas)
	require.NoError(t, err)

	var razao string
	require.NoError(t, conn.QueryRow(
		"SELECT razao_social FROM empresas WHERE cnpj_basico = '12345678'").Scan(&razao))
	assert.Equal(t, "NOME NOVO", razao)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM empresas").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestImportFileMissing(t *testing.T) {
	conn := openTestDB(t)
	imp := New(conn, testConfig(), testLogger)
	_, err := imp.ImportFile(context.Background(), filepath.Join(t.TempDir(), "absent"), dataset.KindEmpresas)
	assert.Error(t, err)
}

func TestImportFileUnknownKind(t *testing.T) {
	conn := openTestDB(t)
	imp := New(conn, testConfig(), testLogger)
	path := writeSourceFile(t, "whatever\n")
	_, err := imp.ImportFile(context.Background(), path, dataset.KindUnknown)
	assert.Error(t, err)
}

func TestImportFileCanceledContext(t *testing.T) {
	conn := openTestDB(t)
	imp := New(conn, testConfig(), testLogger)
	path := writeSourceFile(t, "0111301;Cultivo de arroz\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := imp.ImportFile(ctx, path, dataset.KindCnaes)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Imported)
}
