/*
errors.go - Domain error taxonomy

ERROR CATEGORIES:
  1. Not found:      NotFoundError (items, operations, notes),
                     EntityNotFoundError (counter-party for a balance effect)
  2. Bad input:      InvalidMagnitudeError, InvalidKindError, InvalidQuantityError
                     Rejected before any store call.
  3. Business rules: ReservationViolationError, LockedError, InvalidTransitionError
                     Rejected with no partial mutation.
  4. Concurrency:    generic.WriteVerificationFailedError, propagated unchanged.

PROPAGATION:
  None of these are caught or downgraded inside the ledgers. Callers match
  them with errors.Is on the sentinels or errors.As on the structs.
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrNotFound             = errors.New("not found")
	ErrEntityNotFound       = errors.New("counter-party not found")
	ErrInvalidMagnitude     = errors.New("invalid magnitude")
	ErrInvalidKind          = errors.New("invalid kind")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrReservationViolation = errors.New("reservation violation")
	ErrLocked               = errors.New("delivery note is locked")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrSnapshotMissing      = errors.New("operation has no persisted snapshot")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names a missing stock item, operation or delivery note.
type NotFoundError struct {
	Kind string // "stock item", "adjustment", "return", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// EntityNotFoundError names a counter-party that does not resolve.
type EntityNotFoundError struct {
	Kind AccountKind
	ID   string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *EntityNotFoundError) Unwrap() error { return ErrEntityNotFound }

// InvalidMagnitudeError rejects a magnitude that is negative or not finite.
type InvalidMagnitudeError struct {
	Value float64
}

func (e *InvalidMagnitudeError) Error() string {
	return fmt.Sprintf("magnitude must be a finite non-negative number, got %v", e.Value)
}

func (e *InvalidMagnitudeError) Unwrap() error { return ErrInvalidMagnitude }

// InvalidKindError rejects an unknown enum value (adjustment kind, reason, ...).
type InvalidKindError struct {
	Field string
	Value string
}

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// InvalidQuantityError rejects a quantity, price or amount.
type InvalidQuantityError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// ReservationViolationError is raised when reserved stock would be deleted
// or reduced below its reservation.
type ReservationViolationError struct {
	NoteID     string
	ProductRef string
	Op         string // "reduce", "delete", "consume"
	Quantity   decimal.Decimal
	Reserved   decimal.Decimal
	Requested  decimal.Decimal
}

func (e *ReservationViolationError) Error() string {
	switch e.Op {
	case "delete":
		return fmt.Sprintf("cannot delete item %s on note %s: %s already reserved",
			e.ProductRef, e.NoteID, e.Reserved)
	case "consume":
		return fmt.Sprintf("cannot reserve %s more of item %s on note %s: quantity %s, reserved %s",
			e.Requested, e.ProductRef, e.NoteID, e.Quantity, e.Reserved)
	default:
		return fmt.Sprintf("cannot reduce item %s on note %s to %s: %s already reserved",
			e.ProductRef, e.NoteID, e.Requested, e.Reserved)
	}
}

func (e *ReservationViolationError) Unwrap() error { return ErrReservationViolation }

// LockedError is raised when a note's status forbids mutation.
type LockedError struct {
	NoteID string
	Status NoteStatus
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("delivery note %s is %s and cannot be modified", e.NoteID, e.Status)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// InvalidTransitionError is raised for a status change outside the table.
type InvalidTransitionError struct {
	NoteID string
	From   NoteStatus
	To     NoteStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("delivery note %s cannot move from %s to %s", e.NoteID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true for missing items, operations, notes or counter-parties.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrEntityNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidMagnitude) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidQuantity)
}

// IsConflict returns true for business-rule rejections.
func IsConflict(err error) bool {
	return errors.Is(err, ErrReservationViolation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSnapshotMissing)
}

// translateNotFound maps a store-level miss to the domain error for kind.
func translateNotFound(err error, kind, id string) error {
	if generic.IsNotFound(err) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// translateAccountNotFound maps a store-level miss on an account table.
func translateAccountNotFound(err error, kind AccountKind, id string) error {
	if generic.IsNotFound(err) {
		return &EntityNotFoundError{Kind: kind, ID: id}
	}
	return err
}
