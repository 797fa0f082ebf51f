// models/snapshot.go
package models

import "time"

// WeeklySnapshot is one aggregate row per publication per ISO week in the
// daily_snapshots table. The whole row is deleted and reinserted every time
// its week is (re)processed; it is never partially updated.
type WeeklySnapshot struct {
	ID int64 `db:"id"`

	SnapshotDate time.Time `db:"snapshot_date"` // Monday of the ISO week
	WeekNum      int       `db:"week_num"`
	Year         int       `db:"year"` // ISO year, not calendar year
	PaperCode    string    `db:"paper_code"`
	PaperName    string    `db:"paper_name"`
	BusinessUnit string    `db:"business_unit"`

	TotalActive     int `db:"total_active"`
	Deliverable     int `db:"deliverable"` // total_active - on_vacation
	MailDelivery    int `db:"mail_delivery"`
	CarrierDelivery int `db:"carrier_delivery"`
	DigitalOnly     int `db:"digital_only"`
	OnVacation      int `db:"on_vacation"`

	// Source tracking for the soft backfill system. BackfillWeeks is 0 for
	// real data from the upload's own reporting week.
	SourceFilename string    `db:"source_filename"`
	SourceDate     time.Time `db:"source_date"`
	IsBackfilled   bool      `db:"is_backfilled"`
	BackfillWeeks  int       `db:"backfill_weeks"`
}

// SubscriberRecord is one row per subscriber per ISO week in the
// subscriber_snapshots table. All rows for a given week carry the same
// source tracking fields as their WeeklySnapshot sibling.
type SubscriberRecord struct {
	ID       int64 `db:"id"`
	UploadID int64 `db:"upload_id"`

	SnapshotDate time.Time `db:"snapshot_date"`
	WeekNum      int       `db:"week_num"`
	Year         int       `db:"year"`
	SubNum       string    `db:"sub_num"`
	PaperCode    string    `db:"paper_code"`
	PaperName    string    `db:"paper_name"`
	BusinessUnit string    `db:"business_unit"`

	Name               string     `db:"name"`
	Route              string     `db:"route"`
	RateName           string     `db:"rate_name"` // Newzware "Zone" column
	SubscriptionLength string     `db:"subscription_length"`
	DeliveryType       string     `db:"delivery_type"`
	PaymentStatus      string     `db:"payment_status"`
	BeginDate          *time.Time `db:"begin_date"`
	PaidThru           *time.Time `db:"paid_thru"`
	DailyRate          *float64   `db:"daily_rate"`
	OnVacation         bool       `db:"on_vacation"`
	VacationStart      *time.Time `db:"vacation_start"`
	VacationEnd        *time.Time `db:"vacation_end"`
	Address            string     `db:"address"`
	CityStatePostal    string     `db:"city_state_postal"`
	ABC                string     `db:"abc"`
	IssueCode          string     `db:"issue_code"`
	LastPaymentAmount  *float64   `db:"last_payment_amount"`
	Phone              string     `db:"phone"`
	Email              string     `db:"email"`
	LoginID            string     `db:"login_id"`
	LastLogin          *time.Time `db:"last_login"`

	SourceFilename string    `db:"source_filename"`
	SourceDate     time.Time `db:"source_date"`
	IsBackfilled   bool      `db:"is_backfilled"`
	BackfillWeeks  int       `db:"backfill_weeks"`
}

// WeekStatus describes what, if anything, is already stored for an ISO week.
// Used by the backfill planner to decide whether a week can be rewritten.
type WeekStatus struct {
	Exists       bool
	SourceDate   time.Time
	IsBackfilled bool
}

// PlannedWeek is one entry in a backfill plan: a week the importer will
// delete and rewrite. WeeksOffset is the 0-based distance backward from the
// upload's own reporting week.
type PlannedWeek struct {
	Week         int
	Year         int
	WeeksOffset  int
	IsBackfilled bool
}
