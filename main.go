// main.go
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/database"
	"github.com/gewnthar/circdash/models"
	"github.com/gewnthar/circdash/processors"
)

var (
	configPath string
	fileType   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "circdash",
		Short: "Newzware circulation report importer",
		Long: `circdash imports Newzware circulation exports (All Subscriber Reports,
renewal churn reports, vacation lists and rate exports) into the
circulation dashboard database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(importCmd(), reprocessCmd())
	return root
}

func setup() error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	path := configPath
	if path == "" {
		path = "config/config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "config.yaml"
		}
	}
	if err := config.LoadConfig(path); err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	logrus.Infof("Configuration loaded. DB name: %s", config.AppConfig.Database.DBName)
	return nil
}

func connect() (*sql.DB, error) {
	db, err := database.Connect(config.AppConfig.Database)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a Newzware report file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			registry := processors.DefaultRegistry(db, config.AppConfig.Import)

			path := args[0]
			filename := filepath.Base(path)

			var proc processors.FileProcessor
			if fileType != "" {
				proc, err = registry.ByType(fileType)
			} else {
				proc, err = registry.Match(filename)
			}
			if err != nil {
				return fmt.Errorf("%w (known types: %v)", err, registry.Known())
			}

			logrus.Infof("Importer: processing %s with %s", filename, proc.Name())
			pr := processors.Run(proc, path, filename, models.UploadMeta{UploadedBy: "cli"})
			if !pr.Success() {
				return fmt.Errorf("import failed for %s: %w", filename, pr.Err)
			}

			printResult(pr.Result)
			logrus.Infof("Importer: %s finished in %s", pr.Processor, pr.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&fileType, "type", "", "force a processor instead of matching the filename")
	return cmd
}

func reprocessCmd() *cobra.Command {
	var allFailed bool
	cmd := &cobra.Command{
		Use:   "reprocess [upload-id]",
		Short: "Re-run stored uploads from their raw CSV bytes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allFailed && len(args) == 0 {
				return fmt.Errorf("provide an upload id or --failed")
			}

			db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			uploads := database.NewUploadStore(db)
			registry := processors.DefaultRegistry(db, config.AppConfig.Import)

			var targets []models.RawUpload
			if allFailed {
				targets, err = uploads.FailedUploads()
				if err != nil {
					return fmt.Errorf("could not list failed uploads: %w", err)
				}
				if len(targets) == 0 {
					logrus.Info("No failed uploads to reprocess")
					return nil
				}
			} else {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid upload id %q", args[0])
				}
				upload, err := uploads.Get(id)
				if err != nil {
					return fmt.Errorf("could not load upload %d: %w", id, err)
				}
				targets = []models.RawUpload{*upload}
			}

			failures := 0
			for i := range targets {
				if err := reprocessUpload(registry, &targets[i]); err != nil {
					logrus.Errorf("Importer: reprocess of upload %d (%s) failed: %v",
						targets[i].UploadID, targets[i].Filename, err)
					failures++
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d uploads failed to reprocess", failures, len(targets))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allFailed, "failed", false, "reprocess every failed upload")
	return cmd
}

// reprocessUpload re-runs one stored upload through its processor. The run
// appends a fresh ledger row; the original upload record is left as-is.
func reprocessUpload(registry *processors.Registry, upload *models.RawUpload) error {
	proc, err := registry.Match(upload.Filename)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "circdash-reprocess-*.csv")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(upload.RawCSVData); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp file: %w", err)
	}

	logrus.Infof("Importer: reprocessing upload %d (%s) with %s", upload.UploadID, upload.Filename, proc.Name())
	pr := processors.Run(proc, tmp.Name(), upload.Filename, models.UploadMeta{UploadedBy: "reprocess"})
	if !pr.Success() {
		return pr.Err
	}
	printResult(pr.Result)
	return nil
}

func printResult(result *models.ImportResult) {
	logrus.Infof("Import complete: %d new, %d updated, %d total (%s)",
		result.NewRecords, result.UpdatedRecords, result.TotalProcessed, result.DateRange)
	for bu, data := range result.ByBusinessUnit {
		logrus.Infof("  %s: %d subscribers across %d snapshots", bu, data.TotalSubscribers, data.SnapshotCount)
	}
}
