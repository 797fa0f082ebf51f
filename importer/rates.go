// importer/rates.go
package importer

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/database"
	"github.com/gewnthar/circdash/models"
)

// rateExpectedColumns are the headers of the Newzware rate export. This is
// the one clean CSV Newzware produces: a plain header line, no preamble.
var rateExpectedColumns = []string{
	"Rate.rr Online Desc",
	"Rate.rr Edition",
	"Rate.rr Issue",
	"Rate.rr Length",
	"Rate.rr Len Type(m=month,Y-year,W=week)",
	"Rate.rr Zone",
	"Sub Rate Id",
	"Effective Date",
	"Full Rate",
}

// Rates older than this are auto-flagged legacy even when non-zero.
const rateLegacyAge = 2 * 365 * 24 * time.Hour

// RateStats summarizes one rate import run.
type RateStats struct {
	FlagsImported      int
	FlagsUpdated       int
	StructuresImported int
	AutoLegacy         int
	RowsSkipped        int
}

// ParseRateCSV decodes the rate export into RateRow values.
func ParseRateCSV(r io.Reader) ([]models.RateRow, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, &models.ValidationError{Msg: "could not read rate CSV header", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if missing := missingColumns(header, rateExpectedColumns); len(missing) > 0 {
		return nil, &models.ValidationError{
			Msg: "rate CSV missing expected columns: " + strings.Join(missing, ", "),
		}
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, &models.ValidationError{Msg: "could not decode rate CSV", Err: err}
	}

	var rows []models.RateRow
	for {
		var row models.RateRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, &models.ValidationError{Msg: "could not decode rate CSV row", Err: err}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, &models.ValidationError{Msg: "no rate rows found in CSV file"}
	}
	return rows, nil
}

// RateImporter loads the rate export into rate_flags and rate_structure in
// one transaction.
type RateImporter struct {
	store *database.RateStore
	now   func() time.Time
}

func NewRateImporter(db *sql.DB) *RateImporter {
	return &RateImporter{store: database.NewRateStore(db), now: time.Now}
}

func (imp *RateImporter) Import(filepath string) (*models.ImportResult, error) {
	rawCSV, err := os.ReadFile(filepath)
	if err != nil {
		return nil, &models.ValidationError{Msg: "could not read uploaded file", Err: err}
	}

	rows, err := ParseRateCSV(bytes.NewReader(rawCSV))
	if err != nil {
		return nil, err
	}

	stats, err := imp.save(rows)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Importer: rate import complete, %d flags new, %d updated, %d market rates, %d auto-legacy",
		stats.FlagsImported, stats.FlagsUpdated, stats.StructuresImported, stats.AutoLegacy)

	return &models.ImportResult{
		NewRecords:     stats.FlagsImported,
		UpdatedRecords: stats.FlagsUpdated,
		TotalProcessed: stats.FlagsImported + stats.FlagsUpdated,
	}, nil
}

func (imp *RateImporter) save(rows []models.RateRow) (*RateStats, error) {
	tx, err := imp.store.Begin()
	if err != nil {
		return nil, &models.StorageError{Op: "begin rate transaction", Err: err}
	}
	defer tx.Rollback()

	stats := &RateStats{}
	cutoff := imp.now().Add(-rateLegacyAge)

	for i := range rows {
		row := &rows[i]

		edition := strings.TrimSpace(row.Edition)
		length := strings.TrimSpace(row.Length)
		lenType := strings.ToUpper(strings.TrimSpace(row.LenType))
		zone := strings.TrimSpace(row.Zone)
		if edition == "" || length == "" || lenType == "" || zone == "" {
			stats.RowsSkipped++
			continue
		}

		rate, err := strconv.ParseFloat(strings.TrimSpace(row.FullRate), 64)
		if err != nil {
			stats.RowsSkipped++
			continue
		}

		subscriptionLength := length + lenType

		autoLegacy := rate == 0
		if effective := ParseNewzwareDate(row.EffectiveDate); effective != nil && effective.Before(cutoff) {
			autoLegacy = true
		}
		if autoLegacy {
			stats.AutoLegacy++
		}

		inserted, err := imp.store.UpsertFlag(tx, &models.RateFlag{
			PaperCode:          edition,
			Zone:               zone,
			RateDesc:           strings.TrimSpace(row.OnlineDesc),
			SubscriptionLength: subscriptionLength,
			RateAmount:         rate,
			AutoLegacy:         autoLegacy,
		})
		if err != nil {
			return nil, &models.StorageError{Op: "upsert rate flag", Err: err}
		}
		if inserted {
			stats.FlagsImported++
		} else {
			stats.FlagsUpdated++
		}

		if rate > 0 && !autoLegacy {
			if _, err := imp.store.UpsertStructure(tx, &models.RateStructure{
				PaperCode:          edition,
				SubscriptionLength: subscriptionLength,
				RateAmount:         rate,
				RateDesc:           strings.TrimSpace(row.OnlineDesc),
				AnnualizedRate:     annualizeRate(rate, lenType, length),
			}); err != nil {
				return nil, &models.StorageError{Op: "upsert rate structure", Err: err}
			}
			stats.StructuresImported++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &models.StorageError{Op: "commit rate transaction", Err: err}
	}
	return stats, nil
}

// annualizeRate converts a rate to its yearly equivalent so rates with
// different terms can be compared. Unknown types annualize to zero.
func annualizeRate(rate float64, lenType, length string) float64 {
	n, err := strconv.ParseFloat(length, 64)
	if err != nil || n == 0 {
		return 0
	}
	perPeriod := rate / n
	var periodsPerYear float64
	switch lenType {
	case "W":
		periodsPerYear = 52
	case "M":
		periodsPerYear = 12
	case "Y":
		periodsPerYear = 1
	default:
		return 0
	}
	return math.Round(perPeriod*periodsPerYear*100) / 100
}
