// database/renewal_store.go
package database

import (
	"database/sql"
	"fmt"

	"github.com/gewnthar/circdash/models"
)

// RenewalStore writes renewal churn data. renewal_events is append-only
// with duplicate rows silently skipped; churn_daily_summary is upserted.
type RenewalStore struct {
	db *sql.DB
}

func NewRenewalStore(db *sql.DB) *RenewalStore {
	return &RenewalStore{db: db}
}

// InsertEvent appends one renewal event. Returns false when the event was
// already recorded (same file, date, subscriber, paper and status).
func (s *RenewalStore) InsertEvent(ev *models.RenewalEvent) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO renewal_events (
			source_filename, event_date, sub_num, paper_code, status, subscription_type, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE id = id
	`,
		ev.SourceFilename, ev.EventDate.Format("2006-01-02"),
		ev.SubNum, ev.PaperCode, ev.Status, ev.SubscriptionType,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert renewal event for sub %s on %s: %w",
			ev.SubNum, ev.EventDate.Format("2006-01-02"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for renewal event: %w", err)
	}
	return n > 0, nil
}

// UpsertSummary inserts or refreshes one per-issue churn summary row.
func (s *RenewalStore) UpsertSummary(sum *models.ChurnDailySummary) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO churn_daily_summary (
			snapshot_date, paper_code, subscription_type,
			expiring_count, renewed_count, stopped_count,
			renewal_rate, churn_rate, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			expiring_count = VALUES(expiring_count),
			renewed_count = VALUES(renewed_count),
			stopped_count = VALUES(stopped_count),
			renewal_rate = VALUES(renewal_rate),
			churn_rate = VALUES(churn_rate),
			calculated_at = NOW()
	`,
		sum.SnapshotDate.Format("2006-01-02"), sum.PaperCode, sum.SubscriptionType,
		sum.ExpiringCount, sum.RenewedCount, sum.StoppedCount,
		sum.RenewalRate, sum.ChurnRate,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert churn summary for %s/%s: %w",
			sum.PaperCode, sum.SubscriptionType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for churn summary: %w", err)
	}
	return n > 0, nil
}
