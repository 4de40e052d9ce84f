/*
errors.go - Error types for the generic engine

PURPOSE:
  Errors raised by stores and by the Concurrency-Safe Writer. Domain
  packages translate ErrNotFound into their own not-found errors; the
  write verification failure propagates unchanged all the way up.

USAGE:
  if errors.Is(err, generic.ErrNotFound) { ... }

  var wv *generic.WriteVerificationFailedError
  if errors.As(err, &wv) { log(wv.Table, wv.ID, wv.Field) }

SEE ALSO:
  - writer.go: Raises WriteVerificationFailedError
  - inventory/errors.go: Domain errors
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a record does not exist in its table.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID is returned by Insert when the id is already taken.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrMissingID is returned by Insert when the record has no id.
	ErrMissingID = errors.New("record has no id")

	// ErrWriteVerificationFailed is returned when a written value could not
	// be verified after the writer exhausted its attempts.
	ErrWriteVerificationFailed = errors.New("write verification failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the table and id that could not be resolved.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s: record not found", e.Table, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// WriteVerificationFailedError is fatal for the calling operation. The
// caller must re-attempt the whole higher-level action.
type WriteVerificationFailedError struct {
	Table    string
	ID       string
	Field    string
	Attempts int
	Expected decimal.Decimal // value of the last write
	Stored   decimal.Decimal // value read back after it
}

func (e *WriteVerificationFailedError) Error() string {
	return fmt.Sprintf("write verification failed for %s/%s.%s after %d attempts: wrote %s, read back %s",
		e.Table, e.ID, e.Field, e.Attempts, e.Expected, e.Stored)
}

func (e *WriteVerificationFailedError) Unwrap() error { return ErrWriteVerificationFailed }

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the caller may re-attempt the whole action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWriteVerificationFailed)
}
