package config

// Receita Federal publishes the open CNPJ dataset as monthly directory
// listings of zip archives.
const DefaultBaseURL = "https://arquivos.receitafederal.gov.br/dados/cnpj/dados_abertos_cnpj/2025-06/"

const (
	// Rows buffered per insert transaction during import.
	DefaultBatchSize = 1000

	// Data rows per exported CSV file before rotating to the next one.
	DefaultMaxRowsPerFile = 100000

	// Concurrent archive downloads.
	DefaultWorkers = 4
)

// States exported when test mode is enabled.
var TestModeRegions = []string{"SP", "RJ", "MG"}

// Config holds every setting the pipeline components need. It is assembled
// once by the CLI and passed by value; components never mutate it.
type Config struct {
	BaseURL     string
	DownloadDir string
	OutputDir   string
	DBPath      string

	Workers        int
	BatchSize      int
	MaxRowsPerFile int

	// IncludeMEI controls whether individual-micro-entrepreneur records are
	// imported. When true, partner CPF identifiers are masked on write.
	IncludeMEI bool

	// IncludeSocios controls whether per-region partner roster files are
	// exported alongside the establishment files.
	IncludeSocios bool

	// Regions restricts export to specific UF codes. Empty means every UF
	// present in the database.
	Regions []string

	// TestMode downloads only the small reference archives plus one
	// empresas archive, and exports only TestModeRegions.
	TestMode bool

	// ForceImport re-imports archives even when the load log already
	// records a successful import for them.
	ForceImport bool
}

// Default returns a Config with the defaults the original dataset layout
// expects. Flag and env handling in cmd overrides individual fields.
func Default() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		DownloadDir:    "./dados_cnpj",
		OutputDir:      "./csv_estados",
		DBPath:         "./cnpj_dados.db",
		Workers:        DefaultWorkers,
		BatchSize:      DefaultBatchSize,
		MaxRowsPerFile: DefaultMaxRowsPerFile,
		IncludeMEI:     true,
		IncludeSocios:  true,
	}
}
