// importer/allsubscriber_test.go
package importer

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/models"
)

func newTestImporter(t *testing.T, minBackfill time.Time) (*AllSubscriberImporter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultImportConfig()
	cfg.MinBackfillDate = minBackfill
	return NewAllSubscriberImporter(db, cfg), mock
}

func TestImportBytesSingleWeek(t *testing.T) {
	// Minimum at week 48 and a report for week 48: exactly one week gets
	// cleared and reloaded.
	imp, mock := newTestImporter(t, date(2025, 11, 24))

	mock.ExpectExec("INSERT INTO raw_uploads").
		WillReturnResult(sqlmock.NewResult(7, 1))

	mock.ExpectQuery("SELECT source_date, is_backfilled").
		WithArgs(48, 2025).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_snapshots").
		WithArgs(48, 2025).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subscriber_snapshots").
		WithArgs(48, 2025).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Three papers in the sample report, four subscriber rows.
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO daily_snapshots").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	for i := 0; i < 4; i++ {
		mock.ExpectExec("INSERT INTO subscriber_snapshots").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE raw_uploads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := imp.ImportBytes([]byte(sampleReport), sampleReportFilename, models.UploadMeta{UploadedBy: "test"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.WeeksProcessed)
	assert.Equal(t, 3, result.NewRecords)
	assert.Equal(t, 0, result.UpdatedRecords)
	assert.Equal(t, 4, result.SubscriberRows)
	assert.Equal(t, "2025-11-24 to 2025-11-24", result.DateRange)

	sc := result.ByBusinessUnit["South Carolina"]
	require.NotNil(t, sc)
	assert.Equal(t, 2, sc.TotalSubscribers)
	assert.Equal(t, []string{"TJ"}, sc.Papers)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportBytesBackfillsMissingWeeks(t *testing.T) {
	// Minimum at week 47: week 47 is filled as backfill, week 48 as real.
	imp, mock := newTestImporter(t, date(2025, 11, 17))

	mock.ExpectExec("INSERT INTO raw_uploads").
		WillReturnResult(sqlmock.NewResult(8, 1))

	mock.ExpectQuery("SELECT source_date, is_backfilled").
		WithArgs(48, 2025).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT source_date, is_backfilled").
		WithArgs(47, 2025).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	for _, week := range []int{47, 48} {
		mock.ExpectExec("DELETE FROM daily_snapshots").
			WithArgs(week, 2025).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM subscriber_snapshots").
			WithArgs(week, 2025).
			WillReturnResult(sqlmock.NewResult(0, 0))
		for i := 0; i < 3; i++ {
			mock.ExpectExec("INSERT INTO daily_snapshots").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		for i := 0; i < 4; i++ {
			mock.ExpectExec("INSERT INTO subscriber_snapshots").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE raw_uploads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := imp.ImportBytes([]byte(sampleReport), sampleReportFilename, models.UploadMeta{UploadedBy: "test"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.WeeksProcessed)
	assert.Equal(t, 3, result.NewRecords)     // week 48, real
	assert.Equal(t, 3, result.UpdatedRecords) // week 47, backfilled
	assert.Equal(t, 8, result.SubscriberRows)
	assert.Equal(t, "2025-11-17 to 2025-11-24", result.DateRange)

	require.NoError(t, mock.ExpectationsWereMet())
}

// argRecorder matches any value and records it, so a test can inspect what
// actually went into an INSERT instead of just counting statements.
type argRecorder struct {
	row []driver.Value
	idx int
}

func (r argRecorder) Match(v driver.Value) bool {
	r.row[r.idx] = v
	return true
}

func recordArgs(n int) ([]driver.Value, []driver.Value) {
	row := make([]driver.Value, n)
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = argRecorder{row: row, idx: i}
	}
	return row, args
}

func TestImportBytesWrittenRowValues(t *testing.T) {
	// Capture every inserted value across a two-week backfill and check
	// what the count-only tests above cannot: deliverable is derived as
	// total minus vacation, each aggregate total matches the subscriber
	// rows behind it, and every row of a week carries the same provenance.
	imp, mock := newTestImporter(t, date(2025, 11, 17))

	mock.ExpectExec("INSERT INTO raw_uploads").
		WillReturnResult(sqlmock.NewResult(11, 1))

	mock.ExpectQuery("SELECT source_date, is_backfilled").
		WithArgs(48, 2025).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT source_date, is_backfilled").
		WithArgs(47, 2025).
		WillReturnError(sql.ErrNoRows)

	var aggRows, subRows [][]driver.Value

	mock.ExpectBegin()
	for _, week := range []int{47, 48} {
		mock.ExpectExec("DELETE FROM daily_snapshots").
			WithArgs(week, 2025).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM subscriber_snapshots").
			WithArgs(week, 2025).
			WillReturnResult(sqlmock.NewResult(0, 0))
		for i := 0; i < 3; i++ {
			row, args := recordArgs(16)
			aggRows = append(aggRows, row)
			mock.ExpectExec("INSERT INTO daily_snapshots").
				WithArgs(args...).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		for i := 0; i < 4; i++ {
			row, args := recordArgs(31)
			subRows = append(subRows, row)
			mock.ExpectExec("INSERT INTO subscriber_snapshots").
				WithArgs(args...).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE raw_uploads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := imp.ImportBytes([]byte(sampleReport), sampleReportFilename, models.UploadMeta{UploadedBy: "test"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	wantWeeks := map[int64]struct {
		backfilled bool
		offset     int64
	}{
		47: {backfilled: true, offset: 1},
		48: {backfilled: false, offset: 0},
	}

	// Subscriber rows: week_num at index 2, paper_code at 5,
	// provenance in the trailing four columns.
	subsPerPaper := map[int64]map[string]int64{47: {}, 48: {}}
	for _, row := range subRows {
		week := row[2].(int64)
		paper := row[5].(string)
		subsPerPaper[week][paper]++

		want, ok := wantWeeks[week]
		require.True(t, ok, "unexpected week %d", week)
		assert.Equal(t, sampleReportFilename, row[27])
		assert.Equal(t, "2025-12-06", row[28])
		assert.Equal(t, want.backfilled, row[29], "subscriber %v week %d", row[4], week)
		assert.Equal(t, want.offset, row[30])
	}

	// Aggregate rows: week_num at 1, paper_code at 3, total_active at 6,
	// deliverable at 7, on_vacation at 11, provenance at 12-15.
	papersPerWeek := map[int64]map[string]bool{47: {}, 48: {}}
	for _, row := range aggRows {
		week := row[1].(int64)
		paper := row[3].(string)
		total := row[6].(int64)
		deliverable := row[7].(int64)
		onVacation := row[11].(int64)

		assert.Equal(t, total-onVacation, deliverable, "paper %s week %d", paper, week)
		assert.Equal(t, subsPerPaper[week][paper], total, "paper %s week %d", paper, week)

		want := wantWeeks[week]
		assert.Equal(t, sampleReportFilename, row[12])
		assert.Equal(t, "2025-12-06", row[13])
		assert.Equal(t, want.backfilled, row[14], "paper %s week %d", paper, week)
		assert.Equal(t, want.offset, row[15])

		// TJ holds the vacationing subscriber from the sample report.
		if paper == "TJ" {
			assert.EqualValues(t, 2, total)
			assert.EqualValues(t, 1, onVacation)
			assert.EqualValues(t, 1, deliverable)
		}
		papersPerWeek[week][paper] = true
	}
	for week, papers := range papersPerWeek {
		assert.Len(t, papers, 3, "week %d", week)
	}
}

func TestImportBytesRejectsStaleFile(t *testing.T) {
	// Week 48 already holds authoritative data from the same file date;
	// the upload is refused and the ledger row marked failed. Nothing is
	// written to the snapshot tables.
	imp, mock := newTestImporter(t, date(2025, 11, 24))

	mock.ExpectExec("INSERT INTO raw_uploads").
		WillReturnResult(sqlmock.NewResult(9, 1))

	rows := sqlmock.NewRows([]string{"source_date", "is_backfilled"}).
		AddRow(date(2025, 12, 6), false)
	mock.ExpectQuery("SELECT source_date, is_backfilled").
		WithArgs(48, 2025).
		WillReturnRows(rows)

	mock.ExpectExec("UPDATE raw_uploads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := imp.ImportBytes([]byte(sampleReport), sampleReportFilename, models.UploadMeta{UploadedBy: "test"})
	require.Error(t, err)

	var precErr *models.PrecedenceError
	require.ErrorAs(t, err, &precErr)
	assert.Equal(t, 48, precErr.Week)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportBytesRejectsOversizeFile(t *testing.T) {
	imp, mock := newTestImporter(t, date(2025, 11, 24))
	imp.cfg.MaxFileSizeBytes = 10

	_, err := imp.ImportBytes([]byte(sampleReport), sampleReportFilename, models.UploadMeta{})
	require.Error(t, err)

	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
