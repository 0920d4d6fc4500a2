package datastore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an update matched no rows or a required row is missing.
	ErrNotFound = errors.New("datastore: row not found")

	// ErrConflict is returned when a uniqueness constraint rejected a write.
	ErrConflict = errors.New("datastore: conflict")

	// ErrInvalidTable is returned for empty table names.
	ErrInvalidTable = errors.New("datastore: table name is required")
)

// StoreError describes a failed data store call with enough context for
// logging and retry classification.
type StoreError struct {
	Table      string
	Op         string
	StatusCode int // zero for transport-level failures
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("datastore: %s %s failed with status %d: %v", e.Op, e.Table, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("datastore: %s %s failed: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Temporary reports whether the failure may resolve on retry.
// Transport failures and server-side errors are temporary; client errors are
// permanent except the handful of status codes that signal rate limiting or
// timing issues.
func (e *StoreError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		switch e.StatusCode {
		case 408, 425, 429:
			return true
		default:
			return false
		}
	}
	return e.StatusCode >= 500
}

// IsStoreError extracts a StoreError from an error chain.
func IsStoreError(err error) (*StoreError, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
