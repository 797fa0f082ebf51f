// models/renewal.go
package models

import "time"

// Subscription types found in the Renewal Churn Report.
const (
	SubTypeRegular       = "REGULAR"
	SubTypeMonthly       = "MONTHLY"
	SubTypeComplimentary = "COMPLIMENTARY"
)

// Renewal event statuses.
const (
	RenewalStatusRenew  = "RENEW"
	RenewalStatusExpire = "EXPIRE"
)

// RenewalEvent is one subscriber renewal/expiration event from the Renewal
// Churn Report. The renewal_events table is append-only; duplicates are
// skipped on the (filename, date, sub, paper, status) key.
type RenewalEvent struct {
	ID               int64     `db:"id"`
	SourceFilename   string    `db:"source_filename"`
	EventDate        time.Time `db:"event_date"`
	SubNum           string    `db:"sub_num"`
	PaperCode        string    `db:"paper_code"`
	Status           string    `db:"status"` // RENEW or EXPIRE
	SubscriptionType string    `db:"subscription_type"`
}

// ChurnDailySummary is one per-issue per-type summary row parsed from the
// report's ISSUE rollup lines.
type ChurnDailySummary struct {
	SnapshotDate     time.Time `db:"snapshot_date"`
	PaperCode        string    `db:"paper_code"`
	SubscriptionType string    `db:"subscription_type"`
	ExpiringCount    int       `db:"expiring_count"`
	RenewedCount     int       `db:"renewed_count"`
	StoppedCount     int       `db:"stopped_count"`
	RenewalRate      float64   `db:"renewal_rate"`
	ChurnRate        float64   `db:"churn_rate"`
}
