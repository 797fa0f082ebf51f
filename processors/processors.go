// processors/processors.go
package processors

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/importer"
	"github.com/gewnthar/circdash/models"
	"github.com/gewnthar/circdash/services"
)

// DefaultRegistry wires up the standard processors against one database
// handle.
func DefaultRegistry(db *sql.DB, cfg config.ImportConfig) *Registry {
	return NewRegistry(
		NewAllSubscriberProcessor(db, cfg),
		NewRenewalProcessor(db, cfg),
		NewVacationProcessor(db, cfg),
		NewRatesProcessor(db, cfg),
	)
}

// sniffFile checks size limits and scans the leading lines for an anchor
// string identifying the report type.
func sniffFile(path string, maxSize int64, anchor string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.Size() > maxSize {
		return fmt.Errorf("file too large: %.2fMB (max %dMB)",
			float64(info.Size())/(1024*1024), maxSize/(1024*1024))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file is not readable: %w", err)
	}
	defer f.Close()

	upper := strings.ToUpper(anchor)
	scanner := bufio.NewScanner(f)
	for line := 0; line < 50 && scanner.Scan(); line++ {
		if strings.Contains(strings.ToUpper(scanner.Text()), upper) {
			return nil
		}
	}
	return fmt.Errorf("file does not look like the expected report (no %q column found)", anchor)
}

// AllSubscriberProcessor handles the weekly All Subscriber Report.
type AllSubscriberProcessor struct {
	cfg config.ImportConfig
	imp *importer.AllSubscriberImporter
}

func NewAllSubscriberProcessor(db *sql.DB, cfg config.ImportConfig) *AllSubscriberProcessor {
	return &AllSubscriberProcessor{cfg: cfg, imp: importer.NewAllSubscriberImporter(db, cfg)}
}

func (p *AllSubscriberProcessor) Name() string     { return "All Subscriber Report" }
func (p *AllSubscriberProcessor) FileType() string { return "allsubscriber" }

func (p *AllSubscriberProcessor) Patterns() []string {
	return []string{"AllSubscriberReport*.csv", "AllSub*.csv"}
}

func (p *AllSubscriberProcessor) Validate(path string) error {
	return sniffFile(path, p.cfg.MaxFileSizeBytes, "SUB NUM")
}

func (p *AllSubscriberProcessor) Process(path, filename string, meta models.UploadMeta) (*models.ImportResult, error) {
	result, err := p.imp.Import(path, filename, meta)
	if err != nil {
		return nil, err
	}
	services.AttachSummaryHTML(result)
	return result, nil
}

// RenewalProcessor handles the Renewal Churn Report by Issue.
type RenewalProcessor struct {
	cfg config.ImportConfig
	imp *importer.RenewalImporter
}

func NewRenewalProcessor(db *sql.DB, cfg config.ImportConfig) *RenewalProcessor {
	return &RenewalProcessor{cfg: cfg, imp: importer.NewRenewalImporter(db)}
}

func (p *RenewalProcessor) Name() string     { return "Renewal Churn Report" }
func (p *RenewalProcessor) FileType() string { return "renewal" }

func (p *RenewalProcessor) Patterns() []string {
	return []string{"*Renewal*.csv", "*Churn*.csv"}
}

func (p *RenewalProcessor) Validate(path string) error {
	return sniffFile(path, p.cfg.MaxFileSizeBytes, "Sub ID")
}

func (p *RenewalProcessor) Process(path, filename string, _ models.UploadMeta) (*models.ImportResult, error) {
	return p.imp.Import(path, filename)
}

// VacationProcessor handles the Subscribers on Vacation report.
type VacationProcessor struct {
	cfg config.ImportConfig
	imp *importer.VacationImporter
}

func NewVacationProcessor(db *sql.DB, cfg config.ImportConfig) *VacationProcessor {
	return &VacationProcessor{cfg: cfg, imp: importer.NewVacationImporter(db, cfg)}
}

func (p *VacationProcessor) Name() string     { return "Subscribers on Vacation" }
func (p *VacationProcessor) FileType() string { return "vacation" }

func (p *VacationProcessor) Patterns() []string {
	return []string{"SubscribersOnVacation*.csv", "*Vacation*.csv"}
}

func (p *VacationProcessor) Validate(path string) error {
	return sniffFile(path, p.cfg.MaxFileSizeBytes, "VAC BEG")
}

func (p *VacationProcessor) Process(path, filename string, meta models.UploadMeta) (*models.ImportResult, error) {
	return p.imp.Import(path, filename, meta)
}

// RatesProcessor handles the subscription rate export.
type RatesProcessor struct {
	cfg config.ImportConfig
	imp *importer.RateImporter
}

func NewRatesProcessor(db *sql.DB, cfg config.ImportConfig) *RatesProcessor {
	return &RatesProcessor{cfg: cfg, imp: importer.NewRateImporter(db)}
}

func (p *RatesProcessor) Name() string     { return "Subscription Rates" }
func (p *RatesProcessor) FileType() string { return "rates" }

func (p *RatesProcessor) Patterns() []string {
	return []string{"rates*.csv", "*Rates*.csv"}
}

func (p *RatesProcessor) Validate(path string) error {
	return sniffFile(path, p.cfg.MaxFileSizeBytes, "Rate.rr Edition")
}

func (p *RatesProcessor) Process(path, _ string, _ models.UploadMeta) (*models.ImportResult, error) {
	return p.imp.Import(path)
}
