/*
errors.go - Centralized error types for the budget engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Construction errors - Unknown enum tags, malformed keys, bad periods
  2. Lookup errors - Missing stages or events
  3. Store errors - Persistence failures surfaced to the caller unchanged

  Data-quality conditions found while building a curve (orphan rows,
  malformed keys, rows owned by parent stages) are NOT errors. They are
  filtered and counted; see budget/scurve.go.

USAGE:
  if errors.Is(err, generic.ErrStageNotFound) {
      // 404
  }

  var se *generic.StoreError
  if errors.As(err, &se) {
      log.Error("store write failed", "op", se.Op, "stage_id", se.StageID)
  }

SEE ALSO:
  - budget/distribution.go: Wraps store failures in StoreError
  - api/handlers.go: Maps errors to HTTP status codes
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
	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidMonthKey is returned when a key does not match YYYY-MM.
	ErrInvalidMonthKey = errors.New("invalid month key")

	// ErrInvalidAmount is returned for unparsable or out-of-range money values.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownKind is returned when a stage kind tag is not recognized.
	ErrUnknownKind = errors.New("unknown stage kind")

	// ErrUnknownValueType is returned when a monthly value type is not planned/actual.
	ErrUnknownValueType = errors.New("unknown value type")

	// ErrUnknownEventType is returned when a progress event type is not recognized.
	ErrUnknownEventType = errors.New("unknown progress event type")

	// ErrStageNotFound is returned when a referenced stage doesn't exist.
	ErrStageNotFound = errors.New("stage not found")

	// ErrEventNotFound is returned when a referenced progress event doesn't exist.
	ErrEventNotFound = errors.New("progress event not found")

	// ErrNotLeaf is returned when a leaf-only operation targets a parent stage.
	ErrNotLeaf = errors.New("stage is not a leaf")

	// ErrAlreadyReversed is returned when reversing an event twice.
	ErrAlreadyReversed = errors.New("progress event already reversed")

	// ErrNotReversible is returned when reversing a reversal.
	ErrNotReversible = errors.New("progress event cannot be reversed")

	// ErrDuplicateEvent is returned when an event ID already exists.
	ErrDuplicateEvent = errors.New("duplicate progress event")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MonthKeyError names the offending key.
type MonthKeyError struct {
	Key string
}

func (e *MonthKeyError) Error() string {
	return fmt.Sprintf("invalid month key %q: want YYYY-MM with month 01..12", e.Key)
}

func (e *MonthKeyError) Unwrap() error {
	return ErrInvalidMonthKey
}

// StoreError wraps a failure from an external store. The core never retries;
// replace/recompute writes are idempotent so the caller may.
type StoreError struct {
	Op      string // e.g. "delete_planned", "insert_planned", "upsert_actual"
	StageID string
	Err     error
}

func (e *StoreError) Error() string {
	if e.StageID == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s for stage %s: %v", e.Op, e.StageID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidMonthKey) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrUnknownValueType) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrNotLeaf)
}

// IsConflict returns true if the error reflects state that already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrNotReversible) ||
		errors.Is(err, ErrDuplicateEvent)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStageNotFound) ||
		errors.Is(err, ErrEventNotFound)
}
