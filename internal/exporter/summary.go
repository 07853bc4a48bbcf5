package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SummaryFileName is written alongside the region files.
const SummaryFileName = "RESUMO.txt"

// WriteSummary renders the plain-text run report into the output directory
// and returns its path. Pure formatting; errors only from the file write.
func WriteSummary(s Summary) (string, error) {
	path := filepath.Join(s.OutputDir, SummaryFileName)

	var b strings.Builder
	b.WriteString("RESUMO DA GERAÇÃO DE ARQUIVOS CSV\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Data: %s\n", s.When.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "Diretório: %s\n", s.OutputDir)
	fmt.Fprintf(&b, "Limite por arquivo: %d linhas\n\n", s.MaxRows)
	fmt.Fprintf(&b, "Total de arquivos gerados: %d\n\n", s.TotalFiles())

	b.WriteString("DETALHES POR ESTADO:\n")
	b.WriteString(strings.Repeat("-", 30) + "\n")

	ufs := make([]string, 0, len(s.Outcomes))
	for uf := range s.Outcomes {
		ufs = append(ufs, uf)
	}
	sort.Strings(ufs)
	for _, uf := range ufs {
		r := s.Outcomes[uf]
		if r.Err != "" {
			fmt.Fprintf(&b, "%s: ERRO - %s\n", uf, r.Err)
			continue
		}
		line := fmt.Sprintf("%s: %d arquivo(s) principal(is)", uf, len(r.Files))
		if r.Roster {
			line += " + arquivo de sócios"
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\nFORMATO DOS ARQUIVOS:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	b.WriteString("- {UF}.csv: Dados completos (se < 100k registros)\n")
	b.WriteString("- {UF}_001.csv, {UF}_002.csv, etc: Dados divididos (se > 100k registros)\n")
	b.WriteString("- {UF}_socios.csv: Dados dos sócios separados\n")
	b.WriteString("\nEncoding: UTF-8\n")
	b.WriteString("Separador: vírgula (,)\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}
