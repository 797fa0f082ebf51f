// importer/vacations.go
package importer

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/database"
	"github.com/gewnthar/circdash/models"
)

var vacationRequiredColumns = []string{"SUB NUM", "VAC BEG.", "VAC END", "Ed"}

// VacationEntry is one subscriber vacation row from the "Subscribers on
// Vacation" report.
type VacationEntry struct {
	SubNum        string
	PaperCode     string
	VacationStart time.Time
	VacationEnd   time.Time
	VacationWeeks float64
}

// ParseVacationCSV parses a "Subscribers on Vacation" export.
func ParseVacationCSV(r io.Reader) ([]VacationEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := findHeader(reader)
	if err != nil {
		return nil, err
	}
	if missing := missingColumns(header, vacationRequiredColumns); len(missing) > 0 {
		return nil, &models.ValidationError{
			Msg: "CSV missing required columns: " + strings.Join(missing, ", "),
		}
	}
	colMap := newColumnMap(header)

	var entries []VacationEntry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.ValidationError{Msg: "could not read CSV data rows", Err: err}
		}
		if isEmptyRow(row) || separatorRegex.MatchString(strings.TrimSpace(row[0])) {
			continue
		}

		firstCell := strings.ToUpper(strings.TrimSpace(row[0]))
		if firstCell == "" ||
			strings.Contains(firstCell, "TOTAL VACATIONS") ||
			strings.Contains(firstCell, "REPORT") {
			break
		}

		subNum := colMap.field(row, "SUB NUM")
		paperCode := colMap.field(row, "Ed")
		begRaw := colMap.field(row, "VAC BEG.")
		endRaw := colMap.field(row, "VAC END")
		if subNum == "" || paperCode == "" || begRaw == "" || endRaw == "" {
			continue
		}

		vacStart := ParseNewzwareDate(begRaw)
		vacEnd := ParseNewzwareDate(endRaw)
		if vacStart == nil || vacEnd == nil {
			logrus.Warnf("Importer: skipping vacation row for sub %s, unparseable dates %q / %q",
				subNum, begRaw, endRaw)
			continue
		}
		if vacEnd.Before(*vacStart) {
			return nil, &models.ValidationError{
				Msg: fmt.Sprintf("vacation end before start for sub %s (%s > %s)", subNum, begRaw, endRaw),
			}
		}

		days := vacEnd.Sub(*vacStart).Hours() / 24
		entries = append(entries, VacationEntry{
			SubNum:        subNum,
			PaperCode:     paperCode,
			VacationStart: *vacStart,
			VacationEnd:   *vacEnd,
			VacationWeeks: math.Round(days/7*10) / 10,
		})
	}

	if len(entries) == 0 {
		return nil, &models.ValidationError{Msg: "no vacation rows found in CSV file"}
	}
	return entries, nil
}

// VacationImporter applies vacation windows to the latest snapshot of each
// subscriber and refreshes the weekly on_vacation counts.
type VacationImporter struct {
	cfg       config.ImportConfig
	uploads   *database.UploadStore
	snapshots *database.SnapshotStore
}

func NewVacationImporter(db *sql.DB, cfg config.ImportConfig) *VacationImporter {
	return &VacationImporter{
		cfg:       cfg,
		uploads:   database.NewUploadStore(db),
		snapshots: database.NewSnapshotStore(db),
	}
}

func (imp *VacationImporter) Import(filepath, filename string, meta models.UploadMeta) (*models.ImportResult, error) {
	rawCSV, err := os.ReadFile(filepath)
	if err != nil {
		return nil, &models.ValidationError{Msg: "could not read uploaded file", Err: err}
	}

	if int64(len(rawCSV)) > imp.cfg.MaxFileSizeBytes {
		return nil, &models.ValidationError{
			Msg: fmt.Sprintf("file exceeds maximum size of %d bytes", imp.cfg.MaxFileSizeBytes),
		}
	}

	uploadID, err := imp.uploads.Create(filename, rawCSV, meta)
	if err != nil {
		return nil, &models.StorageError{Op: "create upload record", Err: err}
	}

	result, err := imp.process(uploadID, rawCSV)
	if err != nil {
		if ferr := imp.uploads.MarkFailed(uploadID, err.Error()); ferr != nil {
			logrus.Errorf("Importer: could not mark upload %d failed: %v", uploadID, ferr)
		}
		return nil, err
	}
	return result, nil
}

func (imp *VacationImporter) process(uploadID int64, rawCSV []byte) (*models.ImportResult, error) {
	entries, err := ParseVacationCSV(bytes.NewReader(rawCSV))
	if err != nil {
		return nil, err
	}

	updated := 0
	for _, e := range entries {
		ok, err := imp.snapshots.UpdateSubscriberVacation(
			e.SubNum, e.PaperCode, e.VacationStart, e.VacationEnd, e.VacationWeeks)
		if err != nil {
			return nil, &models.StorageError{Op: "update subscriber vacation", Err: err}
		}
		if ok {
			updated++
		}
	}

	if err := imp.snapshots.RecalcLatestVacationCounts(); err != nil {
		return nil, &models.StorageError{Op: "recalculate vacation counts", Err: err}
	}

	latest, err := imp.snapshots.LatestSnapshotDate()
	if err != nil {
		return nil, &models.StorageError{Op: "look up latest snapshot", Err: err}
	}
	snapshotDate := time.Now()
	dateRange := "latest snapshot"
	if latest != nil {
		snapshotDate = *latest
		dateRange = latest.Format("2006-01-02")
	}

	if err := imp.uploads.MarkCompleted(uploadID, snapshotDate, len(entries), updated); err != nil {
		logrus.Errorf("Importer: vacation data applied but upload %d not marked completed: %v", uploadID, err)
	}

	logrus.Infof("Importer: vacation import complete, %d of %d subscribers updated", updated, len(entries))

	return &models.ImportResult{
		DateRange:      dateRange,
		NewRecords:     0,
		UpdatedRecords: updated,
		TotalProcessed: len(entries),
	}, nil
}
