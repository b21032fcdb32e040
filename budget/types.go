/*
Package budget implements the construction-budget time-phasing engine.

PURPOSE:
  A budget is a tree of stages. Leaf stages carry a monetary total and an
  optional date range; parent stages only aggregate. This package answers
  two questions per calendar month:
    - how much was PLANNED to be spent (a leaf total spread over its dates)
    - how much was ACTUALLY recorded as progressed (signed event sums)
  and turns both monthly series into a cumulative planned-vs-actual curve.

KEY CONCEPTS IN THIS FILE (types.go):
  - Stage:         A node of the budget tree
  - Kind:          Closed set of stage categories (fee is point-in-time)
  - ValueType:     planned | actual
  - MonthlyValue:  One persisted (stage, month, type) -> amount fact
  - ProgressEvent: A dated, signed contribution to a stage's actual value

CLOSED ENUMS:
  Kind, ValueType and EventType are parsed at the boundary. An unknown tag
  fails construction with a sentinel error instead of falling through a
  default branch somewhere deep in the pipeline.

SEE ALSO:
  - hierarchy.go:    Leaf detection and effective totals/date ranges
  - distribution.go: Planned monthly values
  - progress.go:     Actual monthly values
  - scurve.go:       Cumulative curve
*/
package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StageID string

// =============================================================================
// KIND - Stage category
// =============================================================================

type Kind string

const (
	KindService   Kind = "service"
	KindLabor     Kind = "labor"
	KindMaterial  Kind = "material"
	KindEquipment Kind = "equipment"
	KindFee       Kind = "fee" // one-off, collapses to its start date
)

var validKinds = map[Kind]bool{
	KindService:   true,
	KindLabor:     true,
	KindMaterial:  true,
	KindEquipment: true,
	KindFee:       true,
}

// ParseKind converts a stored or submitted tag into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !validKinds[k] {
		return "", fmt.Errorf("%w: %q", generic.ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool { return validKinds[k] }

// IsPointInTime reports whether a stage of this kind happens on a single day.
// Its end date is ignored and forced equal to its start date.
func (k Kind) IsPointInTime() bool {
	return k == KindFee
}

// =============================================================================
// VALUE TYPE - planned vs actual
// =============================================================================

type ValueType string

const (
	ValuePlanned ValueType = "planned"
	ValueActual  ValueType = "actual"
)

func ParseValueType(s string) (ValueType, error) {
	switch ValueType(s) {
	case ValuePlanned, ValueActual:
		return ValueType(s), nil
	}
	return "", fmt.Errorf("%w: %q", generic.ErrUnknownValueType, s)
}

func (v ValueType) Valid() bool {
	return v == ValuePlanned || v == ValueActual
}

// =============================================================================
// STAGE - Node of the budget tree
// =============================================================================

// Stage is a snapshot of a work item as maintained by the hierarchy CRUD
// surface. TotalValue is authoritative on leaves only; on parents it is a
// cache the hierarchy view ignores.
type Stage struct {
	ID         StageID
	ParentID   *StageID
	Code       string // outline number, e.g. "1.2.3"
	Name       string
	Kind       Kind
	Start      *generic.TimePoint
	End        *generic.TimePoint
	TotalValue generic.Amount

	// UnitPrice converts quantity-based progress events into money.
	UnitPrice *generic.Amount

	UpdatedAt time.Time
}

// HasParent reports whether the stage has a parent reference.
func (s Stage) HasParent() bool {
	return s.ParentID != nil && *s.ParentID != ""
}

// Schedule resolves the stage's own date range for distribution.
// Point-in-time kinds collapse to their start date. Returns false when the
// stage is unscheduled.
func (s Stage) Schedule() (generic.Period, bool) {
	if s.Start == nil || s.Start.IsZero() {
		return generic.Period{}, false
	}
	if s.Kind.IsPointInTime() {
		return generic.Period{Start: *s.Start, End: *s.Start}, true
	}
	if s.End == nil || s.End.IsZero() {
		return generic.Period{}, false
	}
	return generic.Period{Start: *s.Start, End: *s.End}, true
}

// =============================================================================
// MONTHLY VALUE - Persisted (stage, month, type) fact
// =============================================================================

// MonthlyValue is one row of the Monthly Value Store. MonthKey stays a raw
// string because stored rows can predate validation; readers re-check it.
type MonthlyValue struct {
	StageID   StageID
	MonthKey  string
	Value     generic.Amount
	ValueType ValueType
}

// NewMonthlyValue validates the key and type and quantizes the value to cents.
func NewMonthlyValue(stageID StageID, monthKey string, value generic.Amount, valueType string) (MonthlyValue, error) {
	if _, err := generic.ParseMonthKey(monthKey); err != nil {
		return MonthlyValue{}, err
	}
	vt, err := ParseValueType(valueType)
	if err != nil {
		return MonthlyValue{}, err
	}
	return MonthlyValue{
		StageID:   stageID,
		MonthKey:  monthKey,
		Value:     value.RoundCents(),
		ValueType: vt,
	}, nil
}

// =============================================================================
// PROGRESS EVENT - Input to the actual aggregator
// =============================================================================

type EventType string

const (
	EventInclusion     EventType = "inclusion"     // Progress measured on site
	EventRectification EventType = "rectification" // Correction entered as a new signed delta
	EventReversal      EventType = "reversal"      // Undo of a previous event; subtracts
)

func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventInclusion, EventRectification, EventReversal:
		return EventType(s), nil
	}
	return "", fmt.Errorf("%w: %q", generic.ErrUnknownEventType, s)
}

// Sign is -1 for reversals and +1 otherwise.
func (e EventType) Sign() int64 {
	if e == EventReversal {
		return -1
	}
	return 1
}

// ProgressEvent is append-only. Corrections are new events, never edits.
type ProgressEvent struct {
	ID      string
	StageID StageID
	Date    generic.TimePoint
	Type    EventType

	// Either Amount, or Quantity priced by UnitPrice (falling back to the
	// stage's unit price).
	Amount    *generic.Amount
	Quantity  *decimal.Decimal
	UnitPrice *generic.Amount

	ReferenceID string // reversed or rectified event
	Note        string
	CreatedAt   time.Time
}

// Month returns the calendar month the event counts toward.
func (e ProgressEvent) Month() generic.Month {
	return generic.MonthOf(e.Date)
}

// Value is the unsigned monetary contribution, rounded to cents.
// stagePrice is used when the event carries a quantity but no unit price.
func (e ProgressEvent) Value(stagePrice *generic.Amount) (generic.Amount, error) {
	if e.Amount != nil {
		return e.Amount.RoundCents(), nil
	}
	if e.Quantity == nil {
		return generic.Amount{}, fmt.Errorf("%w: event %s has neither amount nor quantity", generic.ErrInvalidAmount, e.ID)
	}
	price := e.UnitPrice
	if price == nil {
		price = stagePrice
	}
	if price == nil {
		return generic.Amount{}, fmt.Errorf("%w: event %s has a quantity but no unit price", generic.ErrInvalidAmount, e.ID)
	}
	return price.Mul(*e.Quantity).RoundCents(), nil
}

// SignedValue applies the event type's sign to Value.
func (e ProgressEvent) SignedValue(stagePrice *generic.Amount) (generic.Amount, error) {
	v, err := e.Value(stagePrice)
	if err != nil {
		return generic.Amount{}, err
	}
	if e.Type.Sign() < 0 {
		return v.Neg(), nil
	}
	return v, nil
}
