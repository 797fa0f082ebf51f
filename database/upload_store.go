// database/upload_store.go
package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/models"
)

// UploadStore manages the append-only raw_uploads ledger. A ledger row is
// created in pending state before parsing begins and finalized exactly once
// to completed or failed; rows are never deleted or re-opened.
type UploadStore struct {
	db *sql.DB
}

func NewUploadStore(db *sql.DB) *UploadStore {
	return &UploadStore{db: db}
}

// Create inserts a pending ledger row carrying the raw CSV bytes and their
// SHA-256 hash, so the upload can be audited or reprocessed even if parsing
// blows up later. Returns the new upload id.
func (s *UploadStore) Create(filename string, rawCSV []byte, meta models.UploadMeta) (int64, error) {
	hash := sha256.Sum256(rawCSV)

	res, err := s.db.Exec(`
		INSERT INTO raw_uploads (
			filename, file_size, file_hash, snapshot_date,
			row_count, subscriber_count, raw_csv_data,
			processing_status, uploaded_by, ip_address, user_agent
		) VALUES (?, ?, ?, '1970-01-01', 0, 0, ?, ?, ?, ?, ?)
	`,
		filename, int64(len(rawCSV)), hex.EncodeToString(hash[:]), rawCSV,
		models.UploadStatusPending, meta.UploadedBy,
		nullIfEmpty(meta.IPAddress), nullIfEmpty(meta.UserAgent),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw upload for %s: %w", filename, err)
	}

	uploadID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get upload id for %s: %w", filename, err)
	}

	logrus.Infof("Database: created pending raw upload #%d for %s (%d bytes)", uploadID, filename, len(rawCSV))
	return uploadID, nil
}

// MarkCompleted finalizes a ledger row after a successful import.
func (s *UploadStore) MarkCompleted(uploadID int64, snapshotDate time.Time, rowCount, subscriberCount int) error {
	_, err := s.db.Exec(`
		UPDATE raw_uploads SET
			snapshot_date = ?,
			row_count = ?,
			subscriber_count = ?,
			processed_at = NOW(),
			processing_status = ?
		WHERE upload_id = ?
	`, snapshotDate.Format("2006-01-02"), rowCount, subscriberCount, models.UploadStatusCompleted, uploadID)
	if err != nil {
		return fmt.Errorf("failed to mark upload %d completed: %w", uploadID, err)
	}
	return nil
}

// MarkFailed finalizes a ledger row after an import failure, keeping the
// error text for the processing history view.
func (s *UploadStore) MarkFailed(uploadID int64, errText string) error {
	_, err := s.db.Exec(`
		UPDATE raw_uploads SET
			processing_status = ?,
			processing_errors = ?,
			processed_at = NOW()
		WHERE upload_id = ?
	`, models.UploadStatusFailed, errText, uploadID)
	if err != nil {
		return fmt.Errorf("failed to mark upload %d failed: %w", uploadID, err)
	}
	return nil
}

// Get retrieves one ledger row including the stored raw CSV bytes, for
// reprocessing.
func (s *UploadStore) Get(uploadID int64) (*models.RawUpload, error) {
	row := s.db.QueryRow(`
		SELECT upload_id, filename, file_size, file_hash, snapshot_date,
		       row_count, subscriber_count, raw_csv_data, processing_status,
		       COALESCE(processing_errors, ''), uploaded_by,
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		       uploaded_at, processed_at
		FROM raw_uploads
		WHERE upload_id = ?
	`, uploadID)

	var u models.RawUpload
	var processedAt sql.NullTime
	err := row.Scan(&u.UploadID, &u.Filename, &u.FileSize, &u.FileHash,
		&u.SnapshotDate, &u.RowCount, &u.SubscriberCount, &u.RawCSVData,
		&u.Status, &u.Errors, &u.UploadedBy, &u.IPAddress, &u.UserAgent,
		&u.UploadedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("raw upload %d not found", uploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query raw upload %d: %w", uploadID, err)
	}
	if processedAt.Valid {
		u.ProcessedAt = &processedAt.Time
	}
	return &u, nil
}

// FailedUploads lists failed ledger rows (without the raw bytes) so the CLI
// can offer them for reprocessing.
func (s *UploadStore) FailedUploads() ([]models.RawUpload, error) {
	rows, err := s.db.Query(`
		SELECT upload_id, filename, file_size, file_hash, snapshot_date,
		       row_count, subscriber_count, processing_status,
		       COALESCE(processing_errors, ''), uploaded_by,
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		       uploaded_at, processed_at
		FROM raw_uploads
		WHERE processing_status = ?
		ORDER BY uploaded_at
	`, models.UploadStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed uploads: %w", err)
	}
	defer rows.Close()

	var uploads []models.RawUpload
	for rows.Next() {
		var u models.RawUpload
		var processedAt sql.NullTime
		if err := rows.Scan(&u.UploadID, &u.Filename, &u.FileSize, &u.FileHash,
			&u.SnapshotDate, &u.RowCount, &u.SubscriberCount,
			&u.Status, &u.Errors, &u.UploadedBy, &u.IPAddress, &u.UserAgent,
			&u.UploadedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failed upload row: %w", err)
		}
		if processedAt.Valid {
			u.ProcessedAt = &processedAt.Time
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed upload rows: %w", err)
	}
	return uploads, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
