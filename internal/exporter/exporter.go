// Package exporter produces the per-region denormalized CSV files and the
// run summary.
package exporter

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/bqualhato/cnpjdata/internal/config"
)

// ActiveStatusLabel is written to every exported row's situacao_cadastral
// column. The query already filters to active establishments, so the label
// reflects the filter rather than the stored code.
const ActiveStatusLabel = "Ativa"

// activeStatusCode is the upstream registration-status code for active
// establishments.
const activeStatusCode = "02"

const fetchPageSize = 10000

// exportHeader is the fixed header row of the main region files, matching
// the select list of regionQuery column for column.
var exportHeader = []string{
	"cnpj_basico", "razao_social", "natureza_juridica", "natureza_descricao",
	"capital_social", "porte_empresa", "porte_descricao",
	"cnpj_ordem", "cnpj_dv", "cnpj_completo", "tipo_estabelecimento",
	"nome_fantasia", "situacao_cadastral", "data_situacao_cadastral", "data_inicio_atividade",
	"cnae_fiscal_principal", "cnae_descricao", "cnae_fiscal_secundaria",
	"tipo_logradouro", "logradouro", "numero", "complemento", "bairro", "cep",
	"uf", "codigo_municipio", "municipio_nome",
	"ddd_1", "telefone_1", "ddd_2", "telefone_2", "ddd_fax", "fax", "correio_eletronico",
	"situacao_especial", "data_situacao_especial",
	"opcao_simples", "data_opcao_simples", "data_exclusao_simples",
	"opcao_mei", "data_opcao_mei", "data_exclusao_mei",
	"total_socios", "atividades_secundarias", "cnpjs_socios",
}

// The secondary-activity subquery matches the whole cnae_fiscal_secundaria
// value against a single code, even though the field may hold a
// comma-separated list. Kept as observed upstream behavior.
const regionQuery = `
SELECT
    emp.cnpj_basico,
    emp.razao_social,
    emp.natureza_juridica,
    nat.descricao AS natureza_descricao,
    emp.capital_social,
    emp.porte_empresa,
    CASE emp.porte_empresa
        WHEN '01' THEN 'Micro Empresa'
        WHEN '03' THEN 'Empresa de Pequeno Porte'
        WHEN '05' THEN 'Demais'
        ELSE emp.porte_empresa
    END AS porte_descricao,
    e.cnpj_ordem,
    e.cnpj_dv,
    (emp.cnpj_basico || e.cnpj_ordem || e.cnpj_dv) AS cnpj_completo,
    CASE e.identificador_matriz_filial
        WHEN '1' THEN 'Matriz'
        WHEN '2' THEN 'Filial'
        ELSE 'N/A'
    END AS tipo_estabelecimento,
    e.nome_fantasia,
    'Ativa' AS situacao_cadastral,
    e.data_situacao_cadastral,
    e.data_inicio_atividade,
    e.cnae_fiscal_principal,
    cnae.descricao AS cnae_descricao,
    e.cnae_fiscal_secundaria,
    e.tipo_logradouro,
    e.logradouro,
    e.numero,
    e.complemento,
    e.bairro,
    e.cep,
    e.uf,
    e.codigo_municipio,
    mun.descricao AS municipio_nome,
    e.ddd_1,
    e.telefone_1,
    e.ddd_2,
    e.telefone_2,
    e.ddd_fax,
    e.fax,
    e.correio_eletronico,
    e.situacao_especial,
    e.data_situacao_especial,
    s.opcao_simples,
    s.data_opcao_simples,
    s.data_exclusao_simples,
    s.opcao_mei,
    s.data_opcao_mei,
    s.data_exclusao_mei,
    (SELECT COUNT(*) FROM socios soc WHERE soc.cnpj_basico = emp.cnpj_basico) AS total_socios,
    (SELECT group_concat(descricao, ', ') FROM cnaes WHERE codigo IN (e.cnae_fiscal_secundaria)) AS atividades_secundarias,
    (SELECT group_concat(cpf_cnpj_socio, ', ') FROM socios
        WHERE cnpj_basico = emp.cnpj_basico
          AND cpf_cnpj_socio IS NOT NULL
          AND regexp_full_match(cpf_cnpj_socio, '[0-9]{14}')) AS cnpjs_socios
FROM estabelecimentos e
JOIN empresas emp ON e.cnpj_basico = emp.cnpj_basico
LEFT JOIN naturezas nat ON emp.natureza_juridica = nat.codigo
LEFT JOIN cnaes cnae ON e.cnae_fiscal_principal = cnae.codigo
LEFT JOIN municipios mun ON e.codigo_municipio = mun.codigo
LEFT JOIN simples s ON emp.cnpj_basico = s.cnpj_basico
WHERE e.uf = ? AND e.situacao_cadastral = ?
ORDER BY emp.razao_social, e.cnpj_ordem
`

const regionCountQuery = `
SELECT COUNT(*)
FROM estabelecimentos e
JOIN empresas emp ON e.cnpj_basico = emp.cnpj_basico
WHERE e.uf = ? AND e.situacao_cadastral = ?
`

// RegionResult records the outcome of one region's export.
type RegionResult struct {
	Files  []string
	Rows   int
	Roster bool
	// Err is the failure description; empty on success. A region with zero
	// eligible rows succeeds with no files.
	Err string
}

// Summary aggregates per-region outcomes for the run report.
type Summary struct {
	Outcomes  map[string]RegionResult
	OutputDir string
	MaxRows   int
	When      time.Time
}

// TotalFiles counts every file the run produced, rosters included.
func (s Summary) TotalFiles() int {
	n := 0
	for _, r := range s.Outcomes {
		if r.Err != "" {
			continue
		}
		n += len(r.Files)
		if r.Roster {
			n++
		}
	}
	return n
}

// Exporter runs the read-only denormalizing export against the store.
type Exporter struct {
	conn   *sql.DB
	cfg    config.Config
	logger *slog.Logger
}

func New(conn *sql.DB, cfg config.Config, logger *slog.Logger) *Exporter {
	return &Exporter{conn: conn, cfg: cfg, logger: logger}
}

// Regions returns every UF present in the establishments table, sorted.
func (e *Exporter) Regions(ctx context.Context) ([]string, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT DISTINCT uf FROM estabelecimentos WHERE uf IS NOT NULL AND uf != '' ORDER BY uf`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var ufs []string
	for rows.Next() {
		var uf string
		if err := rows.Scan(&uf); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		ufs = append(ufs, uf)
	}
	return ufs, rows.Err()
}

// ExportAll processes each region in turn. A failure in one region is
// logged, recorded in the summary, and does not stop the others.
func (e *Exporter) ExportAll(ctx context.Context, regions []string) Summary {
	summary := Summary{
		Outcomes:  make(map[string]RegionResult, len(regions)),
		OutputDir: e.cfg.OutputDir,
		MaxRows:   e.cfg.MaxRowsPerFile,
		When:      time.Now(),
	}

	for _, uf := range regions {
		if ctx.Err() != nil {
			e.logger.Warn("Export interrupted.", slog.String("uf", uf))
			break
		}
		l := e.logger.With(slog.String("uf", uf))
		result := e.exportRegion(ctx, uf, l)
		if result.Err == "" && e.cfg.IncludeSocios {
			roster, err := e.exportRoster(ctx, uf)
			if err != nil {
				l.Error("Roster export failed.", "error", err)
				result.Err = fmt.Sprintf("socios: %v", err)
			} else {
				result.Roster = roster
			}
		}
		if result.Err != "" {
			l.Error("Region export failed.", slog.String("error", result.Err))
		} else {
			l.Info("Region exported.", slog.Int("files", len(result.Files)), slog.Int("rows", result.Rows))
		}
		summary.Outcomes[uf] = result
	}
	return summary
}

// exportRegion writes the size-bounded main files for one region.
func (e *Exporter) exportRegion(ctx context.Context, uf string, l *slog.Logger) RegionResult {
	var result RegionResult

	var total int
	if err := e.conn.QueryRowContext(ctx, regionCountQuery, uf, activeStatusCode).Scan(&total); err != nil {
		result.Err = fmt.Sprintf("count: %v", err)
		return result
	}
	if total == 0 {
		l.Info("No eligible establishments, nothing to export.")
		return result
	}
	numFiles := (total + e.cfg.MaxRowsPerFile - 1) / e.cfg.MaxRowsPerFile
	l.Info("Exporting region.", slog.Int("eligible_rows", total), slog.Int("files", numFiles))

	rows, err := e.conn.QueryContext(ctx, regionQuery, uf, activeStatusCode)
	if err != nil {
		result.Err = fmt.Sprintf("query: %v", err)
		return result
	}
	defer rows.Close()

	var (
		out        *os.File
		w          *csv.Writer
		fileIdx    int
		rowsInFile int
	)
	closeCurrent := func() error {
		if out == nil {
			return nil
		}
		w.Flush()
		err := errors.Join(w.Error(), out.Close())
		out, w = nil, nil
		return err
	}
	// The open file is closed on every exit path, success or failure.
	defer closeCurrent()

	openNext := func() error {
		fileIdx++
		name := uf + ".csv"
		if numFiles > 1 {
			name = fmt.Sprintf("%s_%03d.csv", uf, fileIdx)
		}
		path := filepath.Join(e.cfg.OutputDir, name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		out = f
		w = csv.NewWriter(f)
		if err := w.Write(exportHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		result.Files = append(result.Files, path)
		rowsInFile = 0
		l.Info("Writing export file.", slog.String("file", name))
		return nil
	}

	raw := make([]any, len(exportHeader))
	ptrs := make([]any, len(exportHeader))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	record := make([]string, len(exportHeader))

	for rows.Next() {
		if out == nil {
			if err := openNext(); err != nil {
				result.Err = err.Error()
				return result
			}
		}
		if err := rows.Scan(ptrs...); err != nil {
			result.Err = fmt.Sprintf("scan: %v", err)
			return result
		}
		for i, v := range raw {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			result.Err = fmt.Sprintf("write row: %v", err)
			return result
		}
		result.Rows++
		rowsInFile++
		if result.Rows%fetchPageSize == 0 {
			l.Info("Export progress.", slog.Int("rows", result.Rows))
		}
		if rowsInFile >= e.cfg.MaxRowsPerFile {
			if err := closeCurrent(); err != nil {
				result.Err = fmt.Sprintf("close file: %v", err)
				return result
			}
		}
	}
	if err := rows.Err(); err != nil {
		result.Err = fmt.Sprintf("stream: %v", err)
		return result
	}
	if err := closeCurrent(); err != nil {
		result.Err = fmt.Sprintf("close file: %v", err)
	}
	return result
}

// formatValue renders a scanned column for CSV output. NULLs become empty
// strings; numeric aggregates keep their natural decimal form.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// SocioRow is one roster line; the csv tags define the roster header.
type SocioRow struct {
	CnpjBasico                      string `csv:"cnpj_basico"`
	RazaoSocial                     string `csv:"razao_social"`
	IdentificadorSocio              string `csv:"identificador_socio"`
	NomeSocio                       string `csv:"nome_socio"`
	CpfCnpjSocio                    string `csv:"cpf_cnpj_socio"`
	CodigoQualificacaoSocio         string `csv:"codigo_qualificacao_socio"`
	QualificacaoDescricao           string `csv:"qualificacao_descricao"`
	DataEntradaSociedade            string `csv:"data_entrada_sociedade"`
	CodigoPais                      string `csv:"codigo_pais"`
	PaisDescricao                   string `csv:"pais_descricao"`
	RepresentanteLegal              string `csv:"representante_legal"`
	NomeRepresentante               string `csv:"nome_representante"`
	CodigoQualificacaoRepresentante string `csv:"codigo_qualificacao_representante"`
	FaixaEtaria                     string `csv:"faixa_etaria"`
}

const rosterQuery = `
SELECT DISTINCT
    s.cnpj_basico,
    emp.razao_social,
    s.identificador_socio,
    s.nome_socio,
    s.cpf_cnpj_socio,
    s.codigo_qualificacao_socio,
    q.descricao AS qualificacao_descricao,
    s.data_entrada_sociedade,
    s.codigo_pais,
    p.descricao AS pais_descricao,
    s.representante_legal,
    s.nome_representante,
    s.codigo_qualificacao_representante,
    s.faixa_etaria
FROM socios s
JOIN empresas emp ON s.cnpj_basico = emp.cnpj_basico
JOIN estabelecimentos e ON s.cnpj_basico = e.cnpj_basico
LEFT JOIN qualificacoes q ON s.codigo_qualificacao_socio = q.codigo
LEFT JOIN paises p ON s.codigo_pais = p.codigo
WHERE e.uf = ?
ORDER BY s.cnpj_basico, s.nome_socio
`

// exportRoster writes {UF}_socios.csv with every partner tied to an
// establishment in the region. Zero partners means no file, not an error.
func (e *Exporter) exportRoster(ctx context.Context, uf string) (bool, error) {
	rows, err := e.conn.QueryContext(ctx, rosterQuery, uf)
	if err != nil {
		return false, fmt.Errorf("roster query: %w", err)
	}
	defer rows.Close()

	var roster []*SocioRow
	for rows.Next() {
		cols := make([]sql.NullString, 14)
		ptrs := make([]any, len(cols))
		for i := range cols {
			ptrs[i] = &cols[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return false, fmt.Errorf("roster scan: %w", err)
		}
		roster = append(roster, &SocioRow{
			CnpjBasico:                      cols[0].String,
			RazaoSocial:                     cols[1].String,
			IdentificadorSocio:              cols[2].String,
			NomeSocio:                       cols[3].String,
			CpfCnpjSocio:                    cols[4].String,
			CodigoQualificacaoSocio:         cols[5].String,
			QualificacaoDescricao:           cols[6].String,
			DataEntradaSociedade:            cols[7].String,
			CodigoPais:                      cols[8].String,
			PaisDescricao:                   cols[9].String,
			RepresentanteLegal:              cols[10].String,
			NomeRepresentante:               cols[11].String,
			CodigoQualificacaoRepresentante: cols[12].String,
			FaixaEtaria:                     cols[13].String,
		})
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("roster stream: %w", err)
	}
	if len(roster) == 0 {
		return false, nil
	}

	path := filepath.Join(e.cfg.OutputDir, uf+"_socios.csv")
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(roster, f); err != nil {
		return false, fmt.Errorf("marshal roster: %w", err)
	}
	e.logger.Info("Roster exported.", slog.String("uf", uf), slog.Int("partners", len(roster)))
	return true, nil
}
