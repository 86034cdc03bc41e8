package engine

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned for operations on unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionNotActive is returned when a match is submitted against a
// session that has ended or been finalized.
var ErrSessionNotActive = errors.New("session is not active")

// ErrDuplicateAttendance is returned by the recorder when the storage
// uniqueness constraint rejects an insert. The guard converts it into the
// duplicate outcome; it never reaches callers of SubmitMatch.
var ErrDuplicateAttendance = errors.New("attendance already recorded")

// ValidationError reports invalid caller input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func validationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a persistence failure. The engine performs no
// automatic retries; the error is surfaced to the caller as-is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
