/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Contract violations - the caller asked for something the engine does
     not support (unknown mode, month 13). Returned from Resolve.
  2. Rejected records - a raw record could not become a FinancialEvent
     (unparseable date). Never escapes a batch; counted instead.

The engine itself never fails because of data quality. Malformed amounts
coerce to zero and unknown entities fall back to UnknownLabel.

SEE ALSO:
  - period.go: returns SelectionError
  - fleet/normalize.go: returns RejectedRecordError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnsupportedMode is returned when a reporting mode is not month,
	// quarter or year.
	ErrUnsupportedMode = errors.New("unsupported period mode")

	// ErrInvalidSelection is returned when year, month or quarter is out of range.
	ErrInvalidSelection = errors.New("invalid period selection")

	// ErrInvalidDate is returned when a record's date cannot be parsed into a
	// calendar date.
	ErrInvalidDate = errors.New("invalid record date")

	// ErrUnknownEntity is returned by lookups for an entity the directory
	// does not know.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownGroup is returned by drill-down lookups for a key the
	// aggregation run did not produce.
	ErrUnknownGroup = errors.New("unknown group")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SelectionError describes which part of a Selection was rejected.
type SelectionError struct {
	Field string
	Value string
	Err   error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%v: %s=%q", e.Err, e.Field, e.Value)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// RejectedRecordError explains why a raw record was excluded from every
// aggregate.
type RejectedRecordError struct {
	RecordID string
	Kind     EventKind
	Reason   string
	Err      error
}

func (e *RejectedRecordError) Error() string {
	return fmt.Sprintf("%s record %q rejected: %s", e.Kind, e.RecordID, e.Reason)
}

func (e *RejectedRecordError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedMode) ||
		errors.Is(err, ErrInvalidSelection)
}

// IsRejected returns true if the error marks a dropped record.
func IsRejected(err error) bool {
	var rejected *RejectedRecordError
	return errors.As(err, &rejected)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownEntity) || errors.Is(err, ErrUnknownGroup)
}
