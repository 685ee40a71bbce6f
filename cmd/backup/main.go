package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"medprep/internal/config"
	"medprep/internal/database"
	"medprep/internal/service"
	"medprep/migrations"
)

func main() {
	// Define subcommands
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)

	// Export flags
	exportOwner := exportCmd.String("owner", "", "Owner id to export (required)")
	exportOutput := exportCmd.String("output", "", "Output file path (default: backup_<owner>_YYYYMMDD_HHMMSS.json)")

	// Import flags
	importInput := importCmd.String("input", "", "Input file path (required)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// Initialize database
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		fatal("Failed to initialize database", err)
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	var migrationFiles fs.FS = migrations.FS
	if cfg.MigrationsPath != "" {
		migrationFiles = os.DirFS(cfg.MigrationsPath)
	}
	if err := db.RunMigrations(migrationFiles); err != nil {
		fatal("Failed to run migrations", err)
	}

	backupService := service.NewBackupService(db)
	ctx := context.Background()

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if *exportOwner == "" {
			fmt.Println("Error: -owner flag is required")
			exportCmd.PrintDefaults()
			os.Exit(1)
		}
		handleExport(ctx, backupService, *exportOwner, *exportOutput)

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		handleImport(ctx, backupService, *importInput)

	default:
		printUsage()
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func handleExport(ctx context.Context, backupService *service.BackupService, ownerID, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("backup_%s_%s.json", ownerID, timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fatal("Failed to create output directory", err)
		}
	}

	slog.Info("exporting owner", "owner_id", ownerID, "output", outputPath)
	if err := backupService.Export(ctx, ownerID, outputPath); err != nil {
		fatal("Export failed", err)
	}

	fileInfo, err := os.Stat(outputPath)
	if err == nil {
		slog.Info("export complete", "bytes", fileInfo.Size())
	}
}

func handleImport(ctx context.Context, backupService *service.BackupService, inputPath string) {
	// Check if file exists
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		fatal("Input file does not exist", err)
	}

	slog.Info("importing owner backup", "input", inputPath)
	summary, err := backupService.Import(ctx, inputPath)
	if err != nil {
		fatal("Import failed", err)
	}

	slog.Info("import complete",
		"sessions", summary.Sessions,
		"completion_stats", summary.CompletionStats,
		"preferences", summary.Preferences,
		"streak", summary.Streak,
	)
}

func printUsage() {
	fmt.Println("MedPrep Review Backup Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]    Export one owner's reviews and streak to JSON")
	fmt.Println("  backup import [options]    Import an owner backup from JSON")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -owner <id>       Owner id (required)")
	fmt.Println("  -output <file>    Output file path (default: backup_<owner>_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input <file>     Input file path (required)")
	fmt.Println()
	fmt.Println("Import only restores into an owner with no review or streak data.")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./medprep.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
