package index

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateKey is returned by Insert when a row with the same
// canonical key already exists. Not retryable.
var ErrDuplicateKey = errors.New("duplicate canonical key")

// ErrNotFound is returned by Get when no row exists for the key.
var ErrNotFound = errors.New("record not found")

// TransientError wraps a driver error caused by lock contention.
// Callers retry these through the lockd retry wrapper; exhausting
// retries escalates to a hard failure.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: store busy: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks the error as retryable for lockd.Retry.
func (e *TransientError) Transient() bool { return true }

// FailureError wraps a permanent store failure: corruption, a file that
// is not a database, or an I/O error. Never retried; the caller should
// abort and run an integrity check.
type FailureError struct {
	Op  string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s: store failure: %v", e.Op, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// IsTransient reports whether err (possibly wrapped) is a retryable
// contention error.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFailure reports whether err (possibly wrapped) is a permanent store
// failure.
func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}

// classify maps a raw driver error into the package taxonomy. Errors
// that fit neither class are wrapped with the operation name only.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		if serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
		}
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrProtocol:
			return &TransientError{Op: op, Err: err}
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return &FailureError{Op: op, Err: err}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
