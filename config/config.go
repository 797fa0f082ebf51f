// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type ImportConfig struct {
	// MaxFileSizeBytes rejects oversized uploads before anything is parsed.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// CutoffDateStr discards subscriber rows whose reporting date falls
	// before the dashboard's go-live date.
	CutoffDateStr string `yaml:"cutoff_date"`

	// MinBackfillDateStr is the earliest week the soft backfill is allowed
	// to reach. Files subtract 7 days for "data represents previous week",
	// so a Nov 24 upload lands on the Nov 17 week; the minimum has to be
	// Nov 17 to accept it.
	MinBackfillDateStr string `yaml:"min_backfill_date"`

	CutoffDate      time.Time // parsed from CutoffDateStr
	MinBackfillDate time.Time // parsed from MinBackfillDateStr
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Import   ImportConfig   `yaml:"import"`
}

var AppConfig Config

const dateLayout = "2006-01-02"

// LoadConfig reads configuration from a YAML file, applies environment
// overrides for database credentials, and parses the date fields.
func LoadConfig(configPath string) error {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(file, &AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Credentials can come from the environment (.env in development, real
	// env vars on the NAS) so the YAML file stays committable.
	if v := os.Getenv("CIRCDASH_DB_USER"); v != "" {
		AppConfig.Database.User = v
	}
	if v := os.Getenv("CIRCDASH_DB_PASSWORD"); v != "" {
		AppConfig.Database.Password = v
	}
	if v := os.Getenv("CIRCDASH_DB_HOST"); v != "" {
		AppConfig.Database.Host = v
	}
	if v := os.Getenv("CIRCDASH_DB_NAME"); v != "" {
		AppConfig.Database.DBName = v
	}

	applyImportDefaults(&AppConfig.Import)

	AppConfig.Import.CutoffDate, err = time.Parse(dateLayout, AppConfig.Import.CutoffDateStr)
	if err != nil {
		return fmt.Errorf("failed to parse cutoff_date %q: %w", AppConfig.Import.CutoffDateStr, err)
	}
	AppConfig.Import.MinBackfillDate, err = time.Parse(dateLayout, AppConfig.Import.MinBackfillDateStr)
	if err != nil {
		return fmt.Errorf("failed to parse min_backfill_date %q: %w", AppConfig.Import.MinBackfillDateStr, err)
	}

	return nil
}

func applyImportDefaults(cfg *ImportConfig) {
	if cfg.MaxFileSizeBytes == 0 {
		cfg.MaxFileSizeBytes = 10 * 1024 * 1024
	}
	if cfg.CutoffDateStr == "" {
		cfg.CutoffDateStr = "2025-01-01"
	}
	if cfg.MinBackfillDateStr == "" {
		cfg.MinBackfillDateStr = "2025-11-17"
	}
}

// DefaultImportConfig returns the production defaults without reading a
// config file. Used by tests and one-off scripts.
func DefaultImportConfig() ImportConfig {
	cfg := ImportConfig{}
	applyImportDefaults(&cfg)
	cfg.CutoffDate, _ = time.Parse(dateLayout, cfg.CutoffDateStr)
	cfg.MinBackfillDate, _ = time.Parse(dateLayout, cfg.MinBackfillDateStr)
	return cfg
}
