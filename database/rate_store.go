// database/rate_store.go
package database

import (
	"database/sql"
	"fmt"

	"github.com/gewnthar/circdash/models"
)

// RateStore upserts the rate_flags and rate_structure tables. Rate imports
// run inside one transaction opened by the caller.
type RateStore struct {
	db *sql.DB
}

func NewRateStore(db *sql.DB) *RateStore {
	return &RateStore{db: db}
}

func (s *RateStore) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin rate transaction: %w", err)
	}
	return tx, nil
}

// UpsertFlag inserts or refreshes one rate_flags row. The user-managed
// is_legacy/is_ignored/is_special flags are only set on first insert and
// left alone afterwards.
func (s *RateStore) UpsertFlag(tx *sql.Tx, flag *models.RateFlag) (bool, error) {
	res, err := tx.Exec(`
		INSERT INTO rate_flags (
			paper_code, zone, rate_desc, subscription_length, rate_amount,
			is_legacy, is_ignored, is_special, auto_legacy
		) VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?)
		ON DUPLICATE KEY UPDATE
			rate_desc = VALUES(rate_desc),
			rate_amount = VALUES(rate_amount),
			auto_legacy = VALUES(auto_legacy)
	`,
		flag.PaperCode, flag.Zone, flag.RateDesc, flag.SubscriptionLength,
		flag.RateAmount, flag.AutoLegacy,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert rate flag for %s/%s/%s: %w",
			flag.PaperCode, flag.Zone, flag.SubscriptionLength, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for rate flag: %w", err)
	}
	// MySQL reports 1 for a fresh insert and 2 for an update via
	// ON DUPLICATE KEY.
	return n == 1, nil
}

// UpsertStructure inserts or refreshes one market-rate row.
func (s *RateStore) UpsertStructure(tx *sql.Tx, rate *models.RateStructure) (bool, error) {
	res, err := tx.Exec(`
		INSERT INTO rate_structure (
			paper_code, subscription_length, rate_amount, rate_desc, annualized_rate
		) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			rate_amount = VALUES(rate_amount),
			rate_desc = VALUES(rate_desc),
			annualized_rate = VALUES(annualized_rate)
	`,
		rate.PaperCode, rate.SubscriptionLength, rate.RateAmount,
		rate.RateDesc, rate.AnnualizedRate,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert rate structure for %s/%s: %w",
			rate.PaperCode, rate.SubscriptionLength, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for rate structure: %w", err)
	}
	return n > 0, nil
}
