// models/rates.go
package models

// RateRow represents one line of the Newzware rate export. The CSV tags
// EXACTLY match the export headers, including the odd "Len Type" one.
type RateRow struct {
	OnlineDesc    string `csv:"Rate.rr Online Desc"`
	Edition       string `csv:"Rate.rr Edition"`
	Issue         string `csv:"Rate.rr Issue"`
	Length        string `csv:"Rate.rr Length"`
	LenType       string `csv:"Rate.rr Len Type(m=month,Y-year,W=week)"`
	Zone          string `csv:"Rate.rr Zone"`
	SubRateID     string `csv:"Sub Rate Id"`
	EffectiveDate string `csv:"Effective Date"`
	FullRate      string `csv:"Full Rate"`
}

// RateFlag is one upserted row in the rate_flags table. The is_legacy,
// is_ignored and is_special flags are user-configurable from the dashboard
// and are never overwritten by imports; auto_legacy is recomputed each run.
type RateFlag struct {
	PaperCode          string  `db:"paper_code"`
	Zone               string  `db:"zone"`
	RateDesc           string  `db:"rate_desc"`
	SubscriptionLength string  `db:"subscription_length"` // e.g. "52W", "12M", "1Y"
	RateAmount         float64 `db:"rate_amount"`
	AutoLegacy         bool    `db:"auto_legacy"`
}

// RateStructure is one market-rate row (non-zero, non-legacy) with the
// annualized amount used for cross-publication comparison.
type RateStructure struct {
	PaperCode          string  `db:"paper_code"`
	SubscriptionLength string  `db:"subscription_length"`
	RateAmount         float64 `db:"rate_amount"`
	RateDesc           string  `db:"rate_desc"`
	AnnualizedRate     float64 `db:"annualized_rate"`
}
