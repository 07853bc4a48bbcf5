package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bqualhato/cnpjdata/internal/config"
	"github.com/bqualhato/cnpjdata/internal/db"
)

var (
	// Flags, bound in init(). Defaults come from the environment (.env is
	// loaded first) falling back to the built-in defaults.
	baseURL     string
	downloadDir string
	outputDir   string
	dbPath      string
	workers     int
	batchSize   int
	maxRows     int
	regions     []string
	semSocios   bool
	semMEI      bool
	testMode    bool
	logFormat   string
	logLevel    string
	logOutput   string

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cnpjdata",
	Short: "Download, import and export the Receita Federal open CNPJ dataset.",
	Long: `cnpjdata fetches the monthly CNPJ open-data archives from Receita Federal,
imports them into a local DuckDB database, and exports per-state CSV files
of active establishments.

The primary command is 'run', which performs the complete workflow.
'download', 'import' and 'export' run the individual stages; 'stats'
prints row counts for the loaded tables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		appConfig = config.Config{
			BaseURL:        baseURL,
			DownloadDir:    downloadDir,
			OutputDir:      outputDir,
			DBPath:         dbPath,
			Workers:        workers,
			BatchSize:      batchSize,
			MaxRowsPerFile: maxRows,
			IncludeMEI:     !semMEI,
			IncludeSocios:  !semSocios,
			Regions:        regions,
			TestMode:       testMode,
		}
		if appConfig.Workers < 1 {
			appConfig.Workers = 1
		}
		rootLogger.Debug("Configuration assembled.", slog.Any("config", appConfig))

		if err := os.MkdirAll(appConfig.DownloadDir, 0o755); err != nil {
			return fmt.Errorf("failed to create download directory %s: %w", appConfig.DownloadDir, err)
		}
		if appConfig.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(appConfig.DBPath), 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		var err error
		dbConn, err = db.Open(appConfig.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database (%s): %w", appConfig.DBPath, err)
		}
		if err := db.InitSchema(cmd.Context(), dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Info("Database ready.", slog.String("path", appConfig.DBPath))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close database cleanly.", "error", err)
			}
		}
		return nil
	},
}

// Execute wires the subcommands and runs the CLI. Called once from main.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	// .env values become flag defaults; explicit flags win.
	_ = godotenv.Load()
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", envOr("CNPJ_BASE_URL", defaults.BaseURL), "Directory listing URL of the monthly archive set")
	rootCmd.PersistentFlags().StringVarP(&downloadDir, "download-dir", "i", envOr("CNPJ_DOWNLOAD_DIR", defaults.DownloadDir), "Directory for downloaded zip archives")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", envOr("CNPJ_OUTPUT_DIR", defaults.OutputDir), "Directory for exported per-state CSV files")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", envOr("CNPJ_DB_PATH", defaults.DBPath), "Path to the DuckDB database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", envOrInt("CNPJ_WORKERS", defaults.Workers), "Concurrent archive downloads")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", envOrInt("CNPJ_BATCH_SIZE", defaults.BatchSize), "Rows per insert transaction during import")
	rootCmd.PersistentFlags().IntVar(&maxRows, "max-rows", envOrInt("CNPJ_MAX_ROWS", defaults.MaxRowsPerFile), "Data rows per exported CSV file before splitting")
	rootCmd.PersistentFlags().StringSliceVar(&regions, "estados", nil, "Restrict export to specific UF codes (default: all present)")
	rootCmd.PersistentFlags().BoolVar(&semSocios, "sem-socios", false, "Skip the per-state partner roster files")
	rootCmd.PersistentFlags().BoolVar(&semMEI, "sem-mei", false, "Exclude individual micro-entrepreneur (MEI) records")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test", false, "Reduced run: reference archives plus one empresas archive, SP/RJ/MG export")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "1.0.0"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
