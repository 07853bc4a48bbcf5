// Package db owns the DuckDB schema and batched write access for the CNPJ
// tables.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/bqualhato/cnpjdata/internal/dataset"
)

// Open connects to the DuckDB database at path (":memory:" or "" for an
// in-memory database) and verifies the connection.
func Open(path string) (*sql.DB, error) {
	if path == ":memory:" {
		path = ""
	}
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping duckdb %q: %w", path, err)
	}
	return conn, nil
}

// columnTypes overrides the default VARCHAR for specific columns.
var columnTypes = map[string]string{
	"capital_social": "DOUBLE",
}

var indexDDL = []string{
	"CREATE INDEX IF NOT EXISTS idx_empresas_razao ON empresas(razao_social)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_cnpj ON estabelecimentos(cnpj_basico)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_nome ON estabelecimentos(nome_fantasia)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_uf ON estabelecimentos(uf)",
	"CREATE INDEX IF NOT EXISTS idx_socios_cnpj ON socios(cnpj_basico)",
	"CREATE INDEX IF NOT EXISTS idx_socios_nome ON socios(nome_socio)",
}

// InitSchema creates every dataset table and the indexes the export joins
// rely on. Safe to call on an existing database.
func InitSchema(ctx context.Context, conn *sql.DB) error {
	for _, spec := range dataset.AllSpecs() {
		if _, err := conn.ExecContext(ctx, createTableSQL(spec)); err != nil {
			return fmt.Errorf("create table %s: %w", spec.Name, err)
		}
	}
	for _, ddl := range indexDDL {
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return initEventLog(ctx, conn)
}

func createTableSQL(spec dataset.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		typ, ok := columnTypes[c]
		if !ok {
			typ = "VARCHAR"
		}
		cols[i] = fmt.Sprintf("%s %s", c, typ)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s", spec.Name, strings.Join(cols, ", "))
	if len(spec.KeyColumns) > 0 {
		ddl += fmt.Sprintf(", PRIMARY KEY (%s)", strings.Join(spec.KeyColumns, ", "))
	}
	return ddl + ")"
}

// TableCounts returns the row count of every dataset table, for the stats
// command and the end-of-run report.
func TableCounts(ctx context.Context, conn *sql.DB) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, spec := range dataset.AllSpecs() {
		var n int64
		row := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", spec.Name))
		if err := row.Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", spec.Name, err)
		}
		counts[spec.Name] = n
	}
	return counts, nil
}
