// importer/renewals.go
package importer

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/database"
	"github.com/gewnthar/circdash/models"
)

var renewalRequiredColumns = []string{"Sub ID", "Stat", "Ed.", "Issue Date"}

// Positional columns of the per-type rollup blocks in the Renewal Churn
// Report by Issue: [expiring, renewed, stopped, renewal %] for REGULAR,
// MONTHLY and COMPLIMENTARY in turn.
const (
	renewalRegularBase       = 5
	renewalMonthlyBase       = 9
	renewalComplimentaryBase = 13
)

// RenewalReport is the parsed content of one Renewal Churn Report:
// individual events plus the per-issue summary rollups.
type RenewalReport struct {
	Events    []models.RenewalEvent
	Summaries []models.ChurnDailySummary
}

// RenewalStats summarizes one renewal import run.
type RenewalStats struct {
	EventsImported    int
	DuplicatesSkipped int
	SummariesImported int
	ByPublication     map[string]int
	ByType            map[string]int
	DateRange         string
}

// ParseRenewalCSV parses a "Renewal Churn Report by Issue" export. Event
// rows are matched by the named columns; the ISSUE rollup rows that
// Newzware interleaves are positional (the blocks never move).
func ParseRenewalCSV(r io.Reader, filename string) (*RenewalReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := findRenewalHeader(reader)
	if err != nil {
		return nil, err
	}
	if missing := missingColumns(header, renewalRequiredColumns); len(missing) > 0 {
		return nil, &models.ValidationError{
			Msg: "CSV missing required columns: " + strings.Join(missing, ", "),
		}
	}
	colMap := newColumnMap(header)

	report := &RenewalReport{}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.ValidationError{Msg: "could not read CSV data rows", Err: err}
		}
		if isEmptyRow(row) {
			continue
		}

		firstCell := strings.TrimSpace(row[0])
		secondCell := ""
		if len(row) > 1 {
			secondCell = strings.ToUpper(strings.TrimSpace(row[1]))
		}

		// Per-issue rollup rows have an empty first cell and "ISSUE" in
		// the second.
		if firstCell == "" && secondCell == "ISSUE" {
			report.Summaries = append(report.Summaries, parseIssueSummaryRow(row)...)
			continue
		}

		if strings.Contains(strings.ToUpper(firstCell), "TOTAL") ||
			strings.Contains(strings.ToUpper(firstCell), "REPORT") {
			break
		}

		if ev, ok := parseRenewalEventRow(row, colMap, filename); ok {
			report.Events = append(report.Events, ev)
		}
	}

	if len(report.Events) == 0 && len(report.Summaries) == 0 {
		return nil, &models.ValidationError{Msg: "no renewal data found in CSV file"}
	}
	return report, nil
}

func findRenewalHeader(reader *csv.Reader) ([]string, error) {
	for line := 0; line < headerScanLimit; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.ValidationError{Msg: "could not read CSV", Err: err}
		}
		if len(row) > 0 && strings.Contains(strings.ToUpper(row[0]), "SUB ID") {
			header := make([]string, len(row))
			for i, c := range row {
				header[i] = strings.TrimSpace(c)
			}
			return header, nil
		}
	}
	return nil, &models.ValidationError{Msg: `could not find header row (looking for "Sub ID" column)`}
}

func missingColumns(header, required []string) []string {
	var missing []string
	for _, req := range required {
		found := false
		for _, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), req) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req)
		}
	}
	return missing
}

func parseRenewalEventRow(row []string, colMap columnMap, filename string) (models.RenewalEvent, bool) {
	subID := colMap.field(row, "Sub ID")
	status := strings.ToUpper(colMap.field(row, "Stat"))
	paperCode := colMap.field(row, "Ed.")
	if paperCode == "" {
		paperCode = colMap.field(row, "Ed")
	}
	issueDate := colMap.field(row, "Issue Date")

	if subID == "" || status == "" || paperCode == "" || issueDate == "" {
		return models.RenewalEvent{}, false
	}
	if status != models.RenewalStatusRenew && status != models.RenewalStatusExpire {
		return models.RenewalEvent{}, false
	}
	eventDate := ParseNewzwareDate(issueDate)
	if eventDate == nil {
		return models.RenewalEvent{}, false
	}

	// The subscription type is carried by which rollup block has a
	// non-zero expiring count on the event's line.
	var subType string
	switch {
	case intAt(row, renewalRegularBase) > 0:
		subType = models.SubTypeRegular
	case intAt(row, renewalMonthlyBase) > 0:
		subType = models.SubTypeMonthly
	case intAt(row, renewalComplimentaryBase) > 0:
		subType = models.SubTypeComplimentary
	default:
		return models.RenewalEvent{}, false
	}

	return models.RenewalEvent{
		SourceFilename:   filename,
		EventDate:        *eventDate,
		SubNum:           subID,
		PaperCode:        paperCode,
		Status:           status,
		SubscriptionType: subType,
	}, true
}

func parseIssueSummaryRow(row []string) []models.ChurnDailySummary {
	paperCode := stringAt(row, 2)
	issueDate := stringAt(row, 4)
	if paperCode == "" || issueDate == "" {
		return nil
	}
	eventDate := ParseNewzwareDate(issueDate)
	if eventDate == nil {
		return nil
	}

	var summaries []models.ChurnDailySummary
	blocks := []struct {
		subType string
		base    int
	}{
		{models.SubTypeRegular, renewalRegularBase},
		{models.SubTypeMonthly, renewalMonthlyBase},
		{models.SubTypeComplimentary, renewalComplimentaryBase},
	}
	for _, b := range blocks {
		expiring := intAt(row, b.base)
		if expiring == 0 {
			continue
		}
		renewalRate := parsePercent(stringAt(row, b.base+3))
		summaries = append(summaries, models.ChurnDailySummary{
			SnapshotDate:     *eventDate,
			PaperCode:        paperCode,
			SubscriptionType: b.subType,
			ExpiringCount:    expiring,
			RenewedCount:     intAt(row, b.base+1),
			StoppedCount:     intAt(row, b.base+2),
			RenewalRate:      renewalRate,
			ChurnRate:        100.0 - renewalRate,
		})
	}
	return summaries
}

func stringAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func intAt(row []string, idx int) int {
	n, _ := strconv.Atoi(stringAt(row, idx))
	return n
}

func parsePercent(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	return f
}

// RenewalImporter loads Renewal Churn Reports into renewal_events and
// churn_daily_summary.
type RenewalImporter struct {
	store *database.RenewalStore
}

func NewRenewalImporter(db *sql.DB) *RenewalImporter {
	return &RenewalImporter{store: database.NewRenewalStore(db)}
}

func (imp *RenewalImporter) Import(filepath, filename string) (*models.ImportResult, error) {
	rawCSV, err := os.ReadFile(filepath)
	if err != nil {
		return nil, &models.ValidationError{Msg: "could not read uploaded file", Err: err}
	}

	report, err := ParseRenewalCSV(bytes.NewReader(rawCSV), filename)
	if err != nil {
		return nil, err
	}

	stats, err := imp.save(report)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Importer: renewal import complete, %d events (%d duplicates skipped), %d summaries",
		stats.EventsImported, stats.DuplicatesSkipped, stats.SummariesImported)

	return &models.ImportResult{
		DateRange:      stats.DateRange,
		NewRecords:     stats.EventsImported,
		UpdatedRecords: stats.SummariesImported,
		TotalProcessed: stats.EventsImported,
	}, nil
}

func (imp *RenewalImporter) save(report *RenewalReport) (*RenewalStats, error) {
	stats := &RenewalStats{
		ByPublication: make(map[string]int),
		ByType:        make(map[string]int),
	}

	var minDate, maxDate string
	for i := range report.Events {
		ev := &report.Events[i]
		inserted, err := imp.store.InsertEvent(ev)
		if err != nil {
			return nil, &models.StorageError{Op: "insert renewal event", Err: err}
		}
		if !inserted {
			stats.DuplicatesSkipped++
			continue
		}
		stats.EventsImported++
		stats.ByType[ev.SubscriptionType]++
		stats.ByPublication[ev.PaperCode]++

		d := ev.EventDate.Format("2006-01-02")
		if minDate == "" || d < minDate {
			minDate = d
		}
		if d > maxDate {
			maxDate = d
		}
	}

	for i := range report.Summaries {
		inserted, err := imp.store.UpsertSummary(&report.Summaries[i])
		if err != nil {
			return nil, &models.StorageError{Op: "upsert churn summary", Err: err}
		}
		if inserted {
			stats.SummariesImported++
		}
	}

	switch {
	case minDate == "":
		stats.DateRange = "unknown"
	case minDate == maxDate:
		stats.DateRange = minDate
	default:
		stats.DateRange = minDate + " to " + maxDate
	}
	return stats, nil
}
