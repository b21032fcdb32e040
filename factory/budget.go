/*
Package factory provides JSON to Go budget conversion.

PURPOSE:
  Converts JSON budget documents (a stage list plus optional progress
  history) into validated budget.Stage and budget.ProgressEvent values.
  The same JSON shapes are used by the HTTP API, the AMQP consumer and
  the budgetctl import command.

JSON SCHEMA:
  {
    "name": "Small house",
    "stages": [
      {"id": "1", "code": "1", "name": "Structure", "kind": "service"},
      {"id": "1.1", "parent_id": "1", "code": "1.1", "name": "Foundations",
       "kind": "material", "start": "2024-01-15", "end": "2024-03-10",
       "total": "10000.00", "unit_price": "95.00"}
    ],
    "progress": [
      {"stage_id": "1.1", "date": "2024-02-10", "type": "inclusion", "amount": "1200.00"},
      {"stage_id": "1.1", "date": "2024-03-02", "type": "inclusion", "quantity": "12"}
    ]
  }

  Amounts accept JSON strings or numbers. Dates are YYYY-MM-DD.

VALIDATION:
  - kind and type are closed sets; unknown tags fail the whole document
  - end before start fails (except point-in-time kinds, which ignore end)
  - totals must not be negative
  - stage ids must be unique; progress must reference a stage of the document
  - an event needs an amount or a quantity

USAGE:
  f := factory.NewBudgetFactory()
  doc, err := f.ParseBudget(data)
  for _, s := range doc.Stages {
      store.SaveStage(ctx, s)
  }

SEE ALSO:
  - budget/types.go: Stage and ProgressEvent
  - api/scenarios.go: Demo documents built with these types
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// BudgetJSON is the JSON representation of a budget document.
type BudgetJSON struct {
	Name     string      `json:"name,omitempty"`
	Stages   []StageJSON `json:"stages"`
	Progress []EventJSON `json:"progress,omitempty"`
}

// StageJSON is the JSON representation of a stage.
type StageJSON struct {
	ID        string           `json:"id"`
	ParentID  string           `json:"parent_id,omitempty"`
	Code      string           `json:"code,omitempty"`
	Name      string           `json:"name"`
	Kind      string           `json:"kind"`
	Start     string           `json:"start,omitempty"`
	End       string           `json:"end,omitempty"`
	Total     *decimal.Decimal `json:"total,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// EventJSON is the JSON representation of a progress event.
type EventJSON struct {
	ID          string           `json:"id,omitempty"`
	StageID     string           `json:"stage_id"`
	Date        string           `json:"date"`
	Type        string           `json:"type"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	ReferenceID string           `json:"reference_id,omitempty"`
	Note        string           `json:"note,omitempty"`
}

// Budget is a validated document.
type Budget struct {
	Name   string
	Stages []budget.Stage
	Events []budget.ProgressEvent
}

// =============================================================================
// BUDGET FACTORY
// =============================================================================

// BudgetFactory converts JSON documents to domain values.
type BudgetFactory struct{}

func NewBudgetFactory() *BudgetFactory {
	return &BudgetFactory{}
}

// ParseBudget parses and validates a JSON document.
func (f *BudgetFactory) ParseBudget(data []byte) (*Budget, error) {
	var bj BudgetJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return nil, fmt.Errorf("failed to parse budget JSON: %w", err)
	}
	return f.FromJSON(bj)
}

// FromJSON validates a decoded document.
func (f *BudgetFactory) FromJSON(bj BudgetJSON) (*Budget, error) {
	doc := &Budget{Name: bj.Name}
	ids := make(map[budget.StageID]bool, len(bj.Stages))

	for i, sj := range bj.Stages {
		stage, err := f.StageFromJSON(sj)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if ids[stage.ID] {
			return nil, fmt.Errorf("stage %d: duplicate id %q", i, stage.ID)
		}
		ids[stage.ID] = true
		doc.Stages = append(doc.Stages, stage)
	}

	for i, ej := range bj.Progress {
		event, err := f.EventFromJSON(ej)
		if err != nil {
			return nil, fmt.Errorf("progress %d: %w", i, err)
		}
		if !ids[event.StageID] {
			return nil, fmt.Errorf("progress %d: %w: %s", i, generic.ErrStageNotFound, event.StageID)
		}
		doc.Events = append(doc.Events, event)
	}
	return doc, nil
}

// StageFromJSON validates one stage.
func (f *BudgetFactory) StageFromJSON(sj StageJSON) (budget.Stage, error) {
	if sj.ID == "" {
		return budget.Stage{}, fmt.Errorf("stage id is required")
	}
	kind, err := budget.ParseKind(sj.Kind)
	if err != nil {
		return budget.Stage{}, err
	}

	stage := budget.Stage{
		ID:   budget.StageID(sj.ID),
		Code: sj.Code,
		Name: sj.Name,
		Kind: kind,
	}
	if sj.ParentID != "" {
		p := budget.StageID(sj.ParentID)
		stage.ParentID = &p
	}

	if stage.Start, err = parseOptionalDate(sj.Start); err != nil {
		return budget.Stage{}, fmt.Errorf("start: %w", err)
	}
	if stage.End, err = parseOptionalDate(sj.End); err != nil {
		return budget.Stage{}, fmt.Errorf("end: %w", err)
	}
	if !kind.IsPointInTime() && stage.Start != nil && stage.End != nil && stage.End.Before(*stage.Start) {
		return budget.Stage{}, fmt.Errorf("%w: %s > %s", generic.ErrInvalidPeriod, stage.Start, stage.End)
	}

	if sj.Total != nil {
		if sj.Total.IsNegative() {
			return budget.Stage{}, fmt.Errorf("%w: total %s is negative", generic.ErrInvalidAmount, sj.Total)
		}
		stage.TotalValue = generic.NewAmountFromDecimal(*sj.Total)
	}
	if sj.UnitPrice != nil {
		if sj.UnitPrice.IsNegative() {
			return budget.Stage{}, fmt.Errorf("%w: unit price %s is negative", generic.ErrInvalidAmount, sj.UnitPrice)
		}
		price := generic.NewAmountFromDecimal(*sj.UnitPrice)
		stage.UnitPrice = &price
	}
	return stage, nil
}

// EventFromJSON validates one progress event. Stage existence and pricing
// are checked by the aggregator.
func (f *BudgetFactory) EventFromJSON(ej EventJSON) (budget.ProgressEvent, error) {
	if ej.StageID == "" {
		return budget.ProgressEvent{}, fmt.Errorf("stage_id is required")
	}
	et, err := budget.ParseEventType(ej.Type)
	if err != nil {
		return budget.ProgressEvent{}, err
	}
	date, err := generic.ParseDate(ej.Date)
	if err != nil {
		return budget.ProgressEvent{}, fmt.Errorf("date: %w", err)
	}
	if et != budget.EventReversal && ej.Amount == nil && ej.Quantity == nil {
		return budget.ProgressEvent{}, fmt.Errorf("%w: amount or quantity is required", generic.ErrInvalidAmount)
	}

	e := budget.ProgressEvent{
		ID:          ej.ID,
		StageID:     budget.StageID(ej.StageID),
		Date:        date,
		Type:        et,
		Quantity:    ej.Quantity,
		ReferenceID: ej.ReferenceID,
		Note:        ej.Note,
	}
	if ej.Amount != nil {
		a := generic.NewAmountFromDecimal(*ej.Amount)
		e.Amount = &a
	}
	if ej.UnitPrice != nil {
		p := generic.NewAmountFromDecimal(*ej.UnitPrice)
		e.UnitPrice = &p
	}
	return e, nil
}

// =============================================================================
// REVERSE CONVERSION
// =============================================================================

// StageToJSON renders a stage in document form.
func StageToJSON(s budget.Stage) StageJSON {
	sj := StageJSON{
		ID:   string(s.ID),
		Code: s.Code,
		Name: s.Name,
		Kind: string(s.Kind),
	}
	if s.HasParent() {
		sj.ParentID = string(*s.ParentID)
	}
	if s.Start != nil {
		sj.Start = s.Start.String()
	}
	if s.End != nil {
		sj.End = s.End.String()
	}
	total := s.TotalValue.Value
	sj.Total = &total
	if s.UnitPrice != nil {
		p := s.UnitPrice.Value
		sj.UnitPrice = &p
	}
	return sj
}

func parseOptionalDate(s string) (*generic.TimePoint, error) {
	if s == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}
