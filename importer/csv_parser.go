// importer/csv_parser.go
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/models"
	"github.com/gewnthar/circdash/utils"
)

// Required columns for the All Subscriber Report. Matched case-insensitively
// against the trimmed header.
var requiredColumns = []string{"SUB NUM", "Ed", "ISS", "DEL"}

// headerScanLimit bounds how many leading lines are searched for the header
// row before giving up.
const headerScanLimit = 50

var separatorRegex = regexp.MustCompile(`^[-=_]+$`)

// ParsedReport is the in-memory result of parsing one All Subscriber
// Report: per-paper aggregates plus every accepted subscriber row, all
// pinned to the single reporting week the file represents.
type ParsedReport struct {
	FileDate      time.Time
	ReportingDate time.Time
	WeekNum       int
	Year          int // ISO year

	Snapshots   map[string]*models.WeeklySnapshot // keyed by paper code
	Subscribers []models.SubscriberRecord
}

// columnMap maps uppercase trimmed header names to their index, so fields
// are always looked up by name and never by position.
type columnMap map[string]int

func newColumnMap(header []string) columnMap {
	m := make(columnMap, len(header))
	for i, col := range header {
		m[strings.ToUpper(strings.TrimSpace(col))] = i
	}
	return m
}

// field returns the trimmed cell for a named column, or "" when the column
// is absent from this file or the row is too short. Optional columns
// missing from an export are never an error.
func (m columnMap) field(row []string, name string) string {
	idx, ok := m[strings.ToUpper(name)]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ParseAllSubscriberCSV parses a Newzware All Subscriber Report. The
// reporting week is derived from the filename (run date minus 7 days); all
// rows in one file belong to that single week.
func ParseAllSubscriberCSV(r io.Reader, filename string, cfg config.ImportConfig) (*ParsedReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Newzware rows are ragged
	reader.LazyQuotes = true

	header, err := findHeader(reader)
	if err != nil {
		return nil, err
	}

	if missing := missingRequiredColumns(header); len(missing) > 0 {
		return nil, &models.ValidationError{
			Msg: "CSV does not appear to be an All Subscriber Report (missing required columns: " +
				strings.Join(missing, ", ") + ")",
		}
	}

	colMap := newColumnMap(header)

	fileDate := ExtractFileDate(filename)
	reportingDate := ReportingDate(fileDate)
	year, weekNum := reportingDate.ISOWeek()

	report := &ParsedReport{
		FileDate:      fileDate,
		ReportingDate: reportingDate,
		WeekNum:       weekNum,
		Year:          year,
		Snapshots:     make(map[string]*models.WeeklySnapshot),
	}

	rows, err := collectDataRows(reader)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		subNum := colMap.field(row, "SUB NUM")
		paperCode := colMap.field(row, "Ed")

		// Rows without a subscriber number or edition code are decorative
		// or broken; drop them quietly.
		if subNum == "" || paperCode == "" {
			continue
		}

		// Only data from the dashboard's go-live date onwards.
		if reportingDate.Before(cfg.CutoffDate) {
			continue
		}

		deliveryType := colMap.field(row, "DEL")
		zone := colMap.field(row, "Zone")
		onVacation := strings.Contains(strings.ToUpper(zone), "VAC")
		paperInfo := utils.GetPaperInfo(paperCode)

		snap, ok := report.Snapshots[paperCode]
		if !ok {
			snap = &models.WeeklySnapshot{
				SnapshotDate: reportingDate,
				WeekNum:      weekNum,
				Year:         year,
				PaperCode:    paperCode,
				PaperName:    paperInfo.Name,
				BusinessUnit: paperInfo.BusinessUnit,
			}
			report.Snapshots[paperCode] = snap
		}

		snap.TotalActive++
		countDelivery(snap, deliveryType)
		if onVacation {
			snap.OnVacation++
		}

		report.Subscribers = append(report.Subscribers, models.SubscriberRecord{
			SnapshotDate:       reportingDate,
			WeekNum:            weekNum,
			Year:               year,
			SubNum:             subNum,
			PaperCode:          paperCode,
			PaperName:          paperInfo.Name,
			BusinessUnit:       paperInfo.BusinessUnit,
			Name:               colMap.field(row, "Name"),
			Route:              colMap.field(row, "Route"),
			RateName:           zone,
			SubscriptionLength: colMap.field(row, "LEN"),
			DeliveryType:       deliveryType,
			PaymentStatus:      colMap.field(row, "PAY"),
			BeginDate:          ParseNewzwareDate(colMap.field(row, "BEGIN")),
			PaidThru:           ParseNewzwareDate(colMap.field(row, "Paid Thru")),
			DailyRate:          parseAmount(colMap.field(row, "DAILY RATE")),
			OnVacation:         onVacation,
			Address:            colMap.field(row, "Address"),
			CityStatePostal:    colMap.field(row, "CITY  STATE  POSTAL"),
			ABC:                colMap.field(row, "ABC"),
			IssueCode:          colMap.field(row, "ISS"),
			LastPaymentAmount:  parseAmount(colMap.field(row, "LAST PAY")),
			Phone:              colMap.field(row, "Phone"),
			Email:              colMap.field(row, "Email"),
			LoginID:            colMap.field(row, "Login ID"),
			LastLogin:          ParseNewzwareDate(colMap.field(row, "Last Login")),
		})
	}

	if len(report.Snapshots) == 0 {
		return nil, &models.ValidationError{
			Msg: fmt.Sprintf("no valid data found in CSV file (or all data is before %s)", cfg.CutoffDateStr),
		}
	}

	logrus.Infof("Importer: parsed %d subscriber rows across %d papers for week %d/%d",
		len(report.Subscribers), len(report.Snapshots), report.WeekNum, report.Year)
	return report, nil
}

// findHeader scans the leading lines for the row containing the "SUB NUM"
// anchor column. Newzware puts report titles and blank lines above it.
func findHeader(reader *csv.Reader) ([]string, error) {
	for line := 0; line < headerScanLimit; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.ValidationError{Msg: "could not read CSV", Err: err}
		}
		for _, cell := range row {
			if strings.Contains(strings.ToUpper(cell), "SUB NUM") {
				header := make([]string, len(row))
				for i, c := range row {
					header[i] = strings.TrimSpace(c)
				}
				return header, nil
			}
		}
	}
	return nil, &models.ValidationError{
		Msg: `could not find header row (looking for "SUB NUM" column); this does not appear to be an All Subscriber Report`,
	}
}

func missingRequiredColumns(header []string) []string {
	var missing []string
	for _, required := range requiredColumns {
		found := false
		for _, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), required) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, required)
		}
	}
	return missing
}

// collectDataRows reads everything between the header and the report
// footer: decorative separator rows right after the header are skipped,
// fully empty rows are ignored, and the first footer/metadata row ends the
// data section.
func collectDataRows(reader *csv.Reader) ([][]string, error) {
	var rows [][]string
	rowsSkipped := 0

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

		// Newzware prints 2-3 rows of dashes/equals under the header.
		if rowsSkipped < 5 && len(rows) == 0 && separatorRegex.MatchString(firstCell) {
			rowsSkipped++
			continue
		}

		if isFooterRow(firstCell) {
			break
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// isFooterRow recognizes the report criteria block Newzware appends after
// the data section.
func isFooterRow(firstCell string) bool {
	upper := strings.ToUpper(firstCell)
	for _, marker := range []string{"REPORT CRITERIA", "REPORT START:", "COPIES:ISSUES", "EDITION CODE"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// countDelivery buckets a Newzware delivery code into mail, carrier or
// digital. Unknown codes are counted in the total but in no channel.
func countDelivery(snap *models.WeeklySnapshot, deliveryType string) {
	switch strings.ToUpper(deliveryType) {
	case "MAIL":
		snap.MailDelivery++
	case "CARR", "CARRIER":
		snap.CarrierDelivery++
	case "INTE", "INTERNET", "DIGITAL", "EMAI", "EMAIL":
		snap.DigitalOnly++
	}
}

var slashDateRegex = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)

// ParseNewzwareDate parses the M/D/YY and M/D/YYYY formats Newzware emits,
// with a couple of ISO-ish fallbacks. Two-digit years are always 2000s.
// Unparseable values come back nil and are stored as NULL.
func ParseNewzwareDate(dateStr string) *time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil
	}

	if matches := slashDateRegex.FindStringSubmatch(dateStr); matches != nil {
		month, _ := strconv.Atoi(matches[1])
		day, _ := strconv.Atoi(matches[2])
		year, _ := strconv.Atoi(matches[3])
		if year < 100 {
			year += 2000
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return nil
		}
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// Reject rollovers like 2/30 that time.Date silently normalizes.
		if int(d.Month()) != month || d.Day() != day {
			return nil
		}
		return &d
	}

	for _, layout := range []string{"2006-01-02", "Jan 2, 2006", "January 2, 2006"} {
		if d, err := time.Parse(layout, dateStr); err == nil {
			return &d
		}
	}
	return nil
}

func parseAmount(s string) *float64 {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}
