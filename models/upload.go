// models/upload.go
package models

import "time"

// Processing statuses for raw_uploads rows. A row starts as pending and
// transitions exactly once to completed or failed.
const (
	UploadStatusPending   = "pending"
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
)

// RawUpload is the append-only audit record of one upload attempt. The raw
// CSV bytes are kept so a failed or suspect import can be reprocessed later
// without the original file.
type RawUpload struct {
	UploadID int64 `db:"upload_id"`

	Filename        string     `db:"filename"`
	FileSize        int64      `db:"file_size"`
	FileHash        string     `db:"file_hash"` // SHA-256 of the raw bytes
	SnapshotDate    time.Time  `db:"snapshot_date"`
	RowCount        int        `db:"row_count"`
	SubscriberCount int        `db:"subscriber_count"`
	RawCSVData      []byte     `db:"raw_csv_data"`
	Status          string     `db:"processing_status"`
	Errors          string     `db:"processing_errors"`
	UploadedBy      string     `db:"uploaded_by"`
	IPAddress       string     `db:"ip_address"`
	UserAgent       string     `db:"user_agent"`
	UploadedAt      time.Time  `db:"uploaded_at"`
	ProcessedAt     *time.Time `db:"processed_at"`
}

// UploadMeta identifies who or what submitted a file. The CLI fills in
// fixed values; an HTTP front end would pass through the request identity.
type UploadMeta struct {
	UploadedBy string
	IPAddress  string
	UserAgent  string
}

// BusinessUnitSummary accumulates per-business-unit totals for the final
// import report.
type BusinessUnitSummary struct {
	SnapshotCount    int
	TotalSubscribers int
	Papers           []string
}

// ImportResult is the outcome of a successful import, returned to CLI tools
// and upload handlers.
type ImportResult struct {
	DateRange       string
	NewRecords      int
	UpdatedRecords  int
	TotalProcessed  int
	SubscriberRows  int
	WeeksProcessed  int
	ByBusinessUnit  map[string]*BusinessUnitSummary
	SummaryHTML     string
}
