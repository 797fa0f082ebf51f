// importer/allsubscriber.go
package importer

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/database"
	"github.com/gewnthar/circdash/models"
)

// AllSubscriberImporter runs the full import workflow for the Newzware All
// Subscriber Report: raw upload ledger, CSV parsing, the soft backfill
// plan, and the transactional rewrite of every planned week across
// daily_snapshots and subscriber_snapshots.
type AllSubscriberImporter struct {
	cfg       config.ImportConfig
	uploads   *database.UploadStore
	snapshots *database.SnapshotStore
}

func NewAllSubscriberImporter(db *sql.DB, cfg config.ImportConfig) *AllSubscriberImporter {
	return &AllSubscriberImporter{
		cfg:       cfg,
		uploads:   database.NewUploadStore(db),
		snapshots: database.NewSnapshotStore(db),
	}
}

// Import reads a CSV from disk and processes it. filename is the ORIGINAL
// upload filename (the week is derived from it), which may differ from the
// on-disk path when files come out of an inbox directory.
func (imp *AllSubscriberImporter) Import(filepath, filename string, meta models.UploadMeta) (*models.ImportResult, error) {
	rawCSV, err := os.ReadFile(filepath)
	if err != nil {
		return nil, &models.ValidationError{Msg: "could not read uploaded file", Err: err}
	}
	return imp.ImportBytes(rawCSV, filename, meta)
}

// ImportBytes processes a CSV already held in memory. Used directly when
// reprocessing from the raw bytes stored in the ledger.
func (imp *AllSubscriberImporter) ImportBytes(rawCSV []byte, filename string, meta models.UploadMeta) (*models.ImportResult, error) {
	if int64(len(rawCSV)) > imp.cfg.MaxFileSizeBytes {
		return nil, &models.ValidationError{
			Msg: fmt.Sprintf("file too large: %.2fMB (max %dMB)",
				float64(len(rawCSV))/(1024*1024), imp.cfg.MaxFileSizeBytes/(1024*1024)),
		}
	}

	// The ledger row is written before parsing starts so the raw bytes
	// survive whatever happens next.
	uploadID, err := imp.uploads.Create(filename, rawCSV, meta)
	if err != nil {
		return nil, &models.StorageError{Op: "create raw upload", Err: err}
	}

	result, err := imp.process(uploadID, rawCSV, filename)
	if err != nil {
		if failErr := imp.uploads.MarkFailed(uploadID, err.Error()); failErr != nil {
			// The import error is what the caller needs to see.
			logrus.Errorf("Importer: could not mark upload %d failed: %v", uploadID, failErr)
		}
		return nil, err
	}
	return result, nil
}

func (imp *AllSubscriberImporter) process(uploadID int64, rawCSV []byte, filename string) (*models.ImportResult, error) {
	report, err := ParseAllSubscriberCSV(bytes.NewReader(rawCSV), filename, imp.cfg)
	if err != nil {
		return nil, err
	}

	plan, err := PlanBackfill(imp.snapshots, report.WeekNum, report.Year, report.FileDate, imp.cfg.MinBackfillDate)
	if err != nil {
		return nil, err
	}

	stats, err := imp.writeWeeks(uploadID, report, plan, filename)
	if err != nil {
		return nil, err
	}

	if err := imp.uploads.MarkCompleted(uploadID, stats.maxDate, stats.totalProcessed, stats.subscriberRows); err != nil {
		// The snapshot data is committed; a stale ledger row is an
		// annoyance, not a data problem.
		logrus.Errorf("Importer: snapshots committed but ledger update failed for upload %d: %v", uploadID, err)
	}

	return &models.ImportResult{
		DateRange:      stats.minDate.Format("2006-01-02") + " to " + stats.maxDate.Format("2006-01-02"),
		NewRecords:     stats.newRecords,
		UpdatedRecords: stats.updatedRecords,
		TotalProcessed: stats.totalProcessed,
		SubscriberRows: stats.subscriberRows,
		WeeksProcessed: len(plan),
		ByBusinessUnit: stats.byBusinessUnit,
	}, nil
}

type writeStats struct {
	newRecords     int
	updatedRecords int
	totalProcessed int
	subscriberRows int
	minDate        time.Time
	maxDate        time.Time
	byBusinessUnit map[string]*models.BusinessUnitSummary
}

// writeWeeks deletes and reinserts every planned week inside one
// transaction. Either every week lands or none do.
func (imp *AllSubscriberImporter) writeWeeks(uploadID int64, report *ParsedReport, plan []models.PlannedWeek, filename string) (*writeStats, error) {
	tx, err := imp.snapshots.Begin()
	if err != nil {
		return nil, &models.StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	stats := &writeStats{byBusinessUnit: make(map[string]*models.BusinessUnitSummary)}
	totalReal := 0
	totalBackfilled := 0

	for _, week := range plan {
		// snapshot_date is recomputed per target week; every planned week
		// gets the same parsed data pinned to its own Monday.
		targetDate := ISOWeekStart(week.Year, week.Week)

		if err := imp.snapshots.DeleteWeek(tx, week.Week, week.Year); err != nil {
			return nil, &models.StorageError{Op: "clear week", Err: err}
		}

		for _, snap := range report.Snapshots {
			row := *snap
			row.SnapshotDate = targetDate
			row.WeekNum = week.Week
			row.Year = week.Year
			row.Deliverable = row.TotalActive - row.OnVacation
			row.SourceFilename = filename
			row.SourceDate = report.FileDate
			row.IsBackfilled = week.IsBackfilled
			row.BackfillWeeks = week.WeeksOffset

			if err := imp.snapshots.InsertSnapshot(tx, &row); err != nil {
				return nil, &models.StorageError{Op: "insert snapshot", Err: err}
			}

			if week.IsBackfilled {
				stats.updatedRecords++
				totalBackfilled++
			} else {
				stats.newRecords++
				totalReal++
			}
			stats.totalProcessed++

			if stats.minDate.IsZero() || targetDate.Before(stats.minDate) {
				stats.minDate = targetDate
			}
			if targetDate.After(stats.maxDate) {
				stats.maxDate = targetDate
			}

			bu, ok := stats.byBusinessUnit[row.BusinessUnit]
			if !ok {
				bu = &models.BusinessUnitSummary{}
				stats.byBusinessUnit[row.BusinessUnit] = bu
			}
			bu.SnapshotCount++
			bu.TotalSubscribers += row.TotalActive
			if !containsString(bu.Papers, row.PaperCode) {
				bu.Papers = append(bu.Papers, row.PaperCode)
			}
		}

		for i := range report.Subscribers {
			rec := report.Subscribers[i]
			rec.UploadID = uploadID
			rec.SnapshotDate = targetDate
			rec.WeekNum = week.Week
			rec.Year = week.Year
			rec.SourceFilename = filename
			rec.SourceDate = report.FileDate
			rec.IsBackfilled = week.IsBackfilled
			rec.BackfillWeeks = week.WeeksOffset

			if err := imp.snapshots.InsertSubscriber(tx, &rec); err != nil {
				return nil, &models.StorageError{Op: "insert subscriber", Err: err}
			}
			stats.subscriberRows++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &models.StorageError{Op: "commit", Err: err}
	}

	logrus.Infof("Importer: soft backfill complete, %d weeks processed (%d real, %d backfilled)",
		len(plan), totalReal, totalBackfilled)
	return stats, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
