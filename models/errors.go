// models/errors.go
package models

import "fmt"

// ValidationError covers everything wrong with a file before any snapshot
// rows are written: unreadable file, missing header or required columns,
// empty result set.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Msg, e.Err)
	}
	return "validation: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PrecedenceError is raised when an upload would replace real (non
// backfilled) data with an older or equal-age file. No writes occur.
type PrecedenceError struct {
	Week     int
	Year     int
	Existing string // source_date already stored, YYYY-MM-DD
	Incoming string // file date of the rejected upload, YYYY-MM-DD
}

func (e *PrecedenceError) Error() string {
	return fmt.Sprintf("cannot replace real data for week %d/%d from %s with older file from %s",
		e.Week, e.Year, e.Existing, e.Incoming)
}

// StorageError wraps any database failure during the transactional phase.
// The whole transaction has been rolled back when this is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
