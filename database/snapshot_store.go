// database/snapshot_store.go
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gewnthar/circdash/models"
)

// SnapshotStore reads and writes the daily_snapshots and
// subscriber_snapshots tables. Writes use a "clear and load" strategy per
// ISO week: the caller opens one transaction for the whole upload, deletes
// each planned week, and reinserts it in full, so a week is never left
// half-updated.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Begin opens the surrounding transaction for one upload's writes.
func (s *SnapshotStore) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	return tx, nil
}

// WeekStatus reports whether any aggregate row exists for the given ISO
// week, and if so whether it is backfilled and what source date produced
// it. A week's rows always share one source, so sampling a single row is
// enough. A row whose source_date is NULL is reported as nonexistent:
// provenance-less weeks are treated as free slots and get overwritten by
// the next import that covers them.
func (s *SnapshotStore) WeekStatus(week, year int) (*models.WeekStatus, error) {
	row := s.db.QueryRow(`
		SELECT source_date, is_backfilled
		FROM daily_snapshots
		WHERE week_num = ? AND year = ?
		LIMIT 1
	`, week, year)

	var sourceDate sql.NullTime
	var isBackfilled bool
	err := row.Scan(&sourceDate, &isBackfilled)
	if err == sql.ErrNoRows {
		return &models.WeekStatus{Exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query week status for %d/%d: %w", week, year, err)
	}

	status := &models.WeekStatus{Exists: sourceDate.Valid, IsBackfilled: isBackfilled}
	if sourceDate.Valid {
		status.SourceDate = sourceDate.Time
	}
	return status, nil
}

// DeleteWeek clears both snapshot tables for one ISO week inside the
// upload's transaction.
func (s *SnapshotStore) DeleteWeek(tx *sql.Tx, week, year int) error {
	if _, err := tx.Exec("DELETE FROM daily_snapshots WHERE week_num = ? AND year = ?", week, year); err != nil {
		return fmt.Errorf("failed to delete daily snapshots for week %d/%d: %w", week, year, err)
	}
	if _, err := tx.Exec("DELETE FROM subscriber_snapshots WHERE week_num = ? AND year = ?", week, year); err != nil {
		return fmt.Errorf("failed to delete subscriber snapshots for week %d/%d: %w", week, year, err)
	}
	return nil
}

// InsertSnapshot inserts one aggregate row inside the upload's transaction.
func (s *SnapshotStore) InsertSnapshot(tx *sql.Tx, snap *models.WeeklySnapshot) error {
	_, err := tx.Exec(`
		INSERT INTO daily_snapshots (
			snapshot_date, week_num, year, paper_code, paper_name, business_unit,
			total_active, deliverable, mail_delivery, carrier_delivery, digital_only, on_vacation,
			source_filename, source_date, is_backfilled, backfill_weeks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.SnapshotDate.Format("2006-01-02"), snap.WeekNum, snap.Year,
		snap.PaperCode, snap.PaperName, snap.BusinessUnit,
		snap.TotalActive, snap.Deliverable, snap.MailDelivery,
		snap.CarrierDelivery, snap.DigitalOnly, snap.OnVacation,
		snap.SourceFilename, snap.SourceDate.Format("2006-01-02"),
		snap.IsBackfilled, snap.BackfillWeeks,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for paper %s week %d/%d: %w",
			snap.PaperCode, snap.WeekNum, snap.Year, err)
	}
	return nil
}

// InsertSubscriber inserts one subscriber row inside the upload's
// transaction.
func (s *SnapshotStore) InsertSubscriber(tx *sql.Tx, rec *models.SubscriberRecord) error {
	_, err := tx.Exec(`
		INSERT INTO subscriber_snapshots (
			upload_id, snapshot_date, week_num, year, sub_num, paper_code, paper_name, business_unit,
			name, route, rate_name, subscription_length, delivery_type,
			payment_status, begin_date, paid_thru, daily_rate, on_vacation,
			address, city_state_postal, abc, issue_code, last_payment_amount,
			phone, email, login_id, last_login,
			source_filename, source_date, is_backfilled, backfill_weeks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.UploadID, rec.SnapshotDate.Format("2006-01-02"), rec.WeekNum, rec.Year,
		rec.SubNum, rec.PaperCode, rec.PaperName, rec.BusinessUnit,
		rec.Name, rec.Route, rec.RateName, rec.SubscriptionLength, rec.DeliveryType,
		rec.PaymentStatus, nullDate(rec.BeginDate), nullDate(rec.PaidThru),
		nullFloat(rec.DailyRate), rec.OnVacation,
		rec.Address, rec.CityStatePostal, rec.ABC, rec.IssueCode,
		nullFloat(rec.LastPaymentAmount), rec.Phone, rec.Email, rec.LoginID,
		nullDate(rec.LastLogin),
		rec.SourceFilename, rec.SourceDate.Format("2006-01-02"),
		rec.IsBackfilled, rec.BackfillWeeks,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscriber %s (%s) for week %d/%d: %w",
			rec.SubNum, rec.PaperCode, rec.WeekNum, rec.Year, err)
	}
	return nil
}

// UpdateSubscriberVacation sets the vacation fields on a subscriber's most
// recent snapshot row. Returns false when no matching row exists.
func (s *SnapshotStore) UpdateSubscriberVacation(subNum, paperCode string, vacStart, vacEnd time.Time, vacWeeks float64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE subscriber_snapshots
		SET on_vacation = 1,
		    vacation_start = ?,
		    vacation_end = ?,
		    vacation_weeks = ?
		WHERE sub_num = ?
		  AND paper_code = ?
		  AND snapshot_date = (
		      SELECT MAX(snapshot_date)
		      FROM (SELECT snapshot_date, sub_num, paper_code FROM subscriber_snapshots) AS ss2
		      WHERE ss2.sub_num = ? AND ss2.paper_code = ?
		  )
	`,
		vacStart.Format("2006-01-02"), vacEnd.Format("2006-01-02"), vacWeeks,
		subNum, paperCode, subNum, paperCode,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update vacation for sub %s (%s): %w", subNum, paperCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for sub %s: %w", subNum, err)
	}
	return n > 0, nil
}

// RecalcLatestVacationCounts recomputes on_vacation and deliverable on the
// latest week's aggregate rows from the subscriber rows under them.
func (s *SnapshotStore) RecalcLatestVacationCounts() error {
	_, err := s.db.Exec(`
		UPDATE daily_snapshots ds
		SET ds.on_vacation = (
		        SELECT COUNT(*)
		        FROM subscriber_snapshots ss
		        WHERE ss.snapshot_date = ds.snapshot_date
		          AND ss.paper_code = ds.paper_code
		          AND ss.on_vacation = 1
		    ),
		    ds.deliverable = ds.total_active - (
		        SELECT COUNT(*)
		        FROM subscriber_snapshots ss
		        WHERE ss.snapshot_date = ds.snapshot_date
		          AND ss.paper_code = ds.paper_code
		          AND ss.on_vacation = 1
		    )
		WHERE ds.snapshot_date = (
		    SELECT MAX(snapshot_date) FROM subscriber_snapshots
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to recalculate vacation counts: %w", err)
	}
	return nil
}

// LatestSnapshotDate returns the most recent snapshot date present, or nil
// when the tables are empty.
func (s *SnapshotStore) LatestSnapshotDate() (*time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRow("SELECT MAX(snapshot_date) FROM subscriber_snapshots").Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot date: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format("2006-01-02"), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
