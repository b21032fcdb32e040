/*
progress.go - Actual monthly values from progress events

PURPOSE:
  Turns the append-only progress-event history of a leaf stage into one
  "actual" monthly value per calendar month.

RECOMPUTE, DON'T ACCUMULATE:
  The actual row of (stage, month) is always rebuilt from every event of
  that stage dated in that month:

    actual = sum(sign(event) * value(event))   sign = -1 for reversals

  Nothing is adjusted incrementally. Replaying the same history yields the
  same row, and reversals or rectifications of past events are always
  reflected.

STORAGE RULE:
  - actual > 0:  upsert the row
  - actual <= 0: delete the row if it exists
  Actual rows are therefore never negative.

CORRECTIONS:
  Events are never edited. A mistake is fixed by:
  - a rectification: a new signed delta, optionally referencing the event
    it corrects
  - a reversal: mirrors an earlier event with the opposite sign. An event
    can be reversed once; reversals themselves cannot be reversed.

SEE ALSO:
  - types.go:  ProgressEvent, EventType
  - store.go:  EventStore, MonthlyValueStore
*/
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// AGGREGATE - Pure signed sum
// =============================================================================

// AggregateMonth returns the signed sum of the stage's events dated in month.
// Events of other stages or months are ignored. Quantity events are priced
// with the stage's unit price when they carry none.
func AggregateMonth(stage Stage, month generic.Month, events []ProgressEvent) (generic.Amount, error) {
	period := month.Period()
	var cents int64
	for _, e := range events {
		if e.StageID != stage.ID || !period.Contains(e.Date) {
			continue
		}
		v, err := e.SignedValue(stage.UnitPrice)
		if err != nil {
			return generic.Amount{}, err
		}
		cents += v.Cents()
	}
	return generic.AmountFromCents(cents), nil
}

// =============================================================================
// AGGREGATOR - Applies actuals to the Monthly Value Store
// =============================================================================

type Aggregator struct {
	stages StageStore
	values MonthlyValueStore
	events EventStore
	logger *slog.Logger
	now    func() time.Time
}

func NewAggregator(stages StageStore, values MonthlyValueStore, events EventStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		stages: stages,
		values: values,
		events: events,
		logger: logger.With("component", "aggregator"),
		now:    time.Now,
	}
}

// ActualAction is what a month recompute did to the stored row.
type ActualAction string

const (
	ActualUpserted  ActualAction = "upserted"
	ActualDeleted   ActualAction = "deleted"
	ActualUnchanged ActualAction = "unchanged"
)

type ActualResult struct {
	StageID StageID
	Month   generic.Month
	Value   generic.Amount // signed event sum, before the storage rule
	Action  ActualAction
}

// Recompute rebuilds the actual row of (stage, month) from full history.
func (a *Aggregator) Recompute(ctx context.Context, stageID StageID, month generic.Month) (ActualResult, error) {
	stage, err := a.stages.GetStage(ctx, stageID)
	if err != nil {
		return ActualResult{}, err
	}
	return a.recompute(ctx, stage, month)
}

func (a *Aggregator) recompute(ctx context.Context, stage Stage, month generic.Month) (ActualResult, error) {
	events, err := a.events.LoadEvents(ctx, stage.ID, month.Period())
	if err != nil {
		return ActualResult{}, &generic.StoreError{Op: "load_events", StageID: string(stage.ID), Err: err}
	}
	total, err := AggregateMonth(stage, month, events)
	if err != nil {
		return ActualResult{}, err
	}

	res := ActualResult{StageID: stage.ID, Month: month, Value: total}
	existing, found, err := a.values.GetActual(ctx, stage.ID, month)
	if err != nil {
		return ActualResult{}, &generic.StoreError{Op: "get_actual", StageID: string(stage.ID), Err: err}
	}

	switch {
	case total.IsPositive():
		if found && existing.Value.Equal(total) {
			res.Action = ActualUnchanged
			return res, nil
		}
		row := MonthlyValue{StageID: stage.ID, MonthKey: month.Key(), Value: total, ValueType: ValueActual}
		if err := a.values.UpsertActual(ctx, row); err != nil {
			return ActualResult{}, &generic.StoreError{Op: "upsert_actual", StageID: string(stage.ID), Err: err}
		}
		res.Action = ActualUpserted
	case found:
		if err := a.values.DeleteActual(ctx, stage.ID, month); err != nil {
			return ActualResult{}, &generic.StoreError{Op: "delete_actual", StageID: string(stage.ID), Err: err}
		}
		res.Action = ActualDeleted
	default:
		res.Action = ActualUnchanged
	}

	if total.IsNegative() {
		a.logger.Warn("actual value below zero, row removed",
			"stage_id", stage.ID, "month_key", month.Key(), "value", total.String())
	}
	return res, nil
}

// Record appends an inclusion or rectification and recomputes its month.
// A rectification referencing an event in another month also recomputes
// that month. Reversal events are routed to Reverse.
func (a *Aggregator) Record(ctx context.Context, event ProgressEvent) (ProgressEvent, []ActualResult, error) {
	if event.Type == EventReversal {
		return a.Reverse(ctx, event.ReferenceID, event.Note)
	}
	if _, err := ParseEventType(string(event.Type)); err != nil {
		return ProgressEvent{}, nil, err
	}

	stage, err := a.leafStage(ctx, event.StageID)
	if err != nil {
		return ProgressEvent{}, nil, err
	}
	v, err := event.Value(stage.UnitPrice)
	if err != nil {
		return ProgressEvent{}, nil, err
	}
	if event.Type == EventInclusion && v.IsNegative() {
		return ProgressEvent{}, nil, fmt.Errorf("%w: inclusion of %s is negative; record a rectification instead", generic.ErrInvalidAmount, v)
	}

	months := []generic.Month{event.Month()}
	if event.ReferenceID != "" {
		ref, err := a.events.GetEvent(ctx, event.ReferenceID)
		if err != nil {
			return ProgressEvent{}, nil, err
		}
		if ref.StageID != event.StageID {
			return ProgressEvent{}, nil, fmt.Errorf("%w: event %s belongs to stage %s", generic.ErrEventNotFound, ref.ID, ref.StageID)
		}
		if ref.Month() != event.Month() {
			months = append(months, ref.Month())
		}
	}

	event = a.stamp(event)
	if err := a.events.AppendEvent(ctx, event); err != nil {
		return ProgressEvent{}, nil, err
	}
	a.logger.Info("progress recorded",
		"event_id", event.ID, "stage_id", event.StageID, "type", event.Type, "value", v.String())

	results, err := a.recomputeMonths(ctx, stage, months)
	return event, results, err
}

// Reverse appends a reversal mirroring eventID, dated like the original so
// it cancels in the same month.
func (a *Aggregator) Reverse(ctx context.Context, eventID, note string) (ProgressEvent, []ActualResult, error) {
	orig, err := a.events.GetEvent(ctx, eventID)
	if err != nil {
		return ProgressEvent{}, nil, err
	}
	if orig.Type == EventReversal {
		return ProgressEvent{}, nil, fmt.Errorf("%w: %s is a reversal", generic.ErrNotReversible, eventID)
	}
	reversed, err := a.events.IsReversed(ctx, eventID)
	if err != nil {
		return ProgressEvent{}, nil, &generic.StoreError{Op: "is_reversed", StageID: string(orig.StageID), Err: err}
	}
	if reversed {
		return ProgressEvent{}, nil, fmt.Errorf("%w: %s", generic.ErrAlreadyReversed, eventID)
	}

	stage, err := a.stages.GetStage(ctx, orig.StageID)
	if err != nil {
		return ProgressEvent{}, nil, err
	}
	v, err := orig.Value(stage.UnitPrice)
	if err != nil {
		return ProgressEvent{}, nil, err
	}

	rev := a.stamp(ProgressEvent{
		StageID:     orig.StageID,
		Date:        orig.Date,
		Type:        EventReversal,
		Amount:      &v,
		ReferenceID: orig.ID,
		Note:        note,
	})
	if err := a.events.AppendEvent(ctx, rev); err != nil {
		return ProgressEvent{}, nil, err
	}
	a.logger.Info("progress reversed", "event_id", rev.ID, "reversed_id", orig.ID, "stage_id", orig.StageID)

	results, err := a.recomputeMonths(ctx, stage, []generic.Month{orig.Month()})
	return rev, results, err
}

// RecomputeStage rebuilds every actual row of a stage: each month with
// events, plus stored actual months that no longer have any.
func (a *Aggregator) RecomputeStage(ctx context.Context, stageID StageID) ([]ActualResult, error) {
	stage, err := a.stages.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	months, err := a.events.EventMonths(ctx, stageID)
	if err != nil {
		return nil, &generic.StoreError{Op: "event_months", StageID: string(stageID), Err: err}
	}
	rows, err := a.values.ListStageValues(ctx, stageID)
	if err != nil {
		return nil, &generic.StoreError{Op: "list_stage_values", StageID: string(stageID), Err: err}
	}
	for _, r := range rows {
		if r.ValueType != ValueActual {
			continue
		}
		m, err := generic.ParseMonthKey(r.MonthKey)
		if err != nil {
			a.logger.Warn("stored actual row has malformed month key", "stage_id", stageID, "month_key", r.MonthKey)
			continue
		}
		months = append(months, m)
	}
	return a.recomputeMonths(ctx, stage, months)
}

// RecomputeAll rebuilds actual rows for every stage and returns the number
// of months recomputed.
func (a *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	all, err := a.stages.ListStages(ctx)
	if err != nil {
		return 0, &generic.StoreError{Op: "list_stages", Err: err}
	}
	n := 0
	for _, s := range all {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		res, err := a.RecomputeStage(ctx, s.ID)
		if err != nil {
			return n, err
		}
		n += len(res)
	}
	return n, nil
}

func (a *Aggregator) recomputeMonths(ctx context.Context, stage Stage, months []generic.Month) ([]ActualResult, error) {
	seen := make(map[generic.Month]bool, len(months))
	var results []ActualResult
	for _, m := range months {
		if seen[m] {
			continue
		}
		seen[m] = true
		res, err := a.recompute(ctx, stage, m)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Aggregator) leafStage(ctx context.Context, id StageID) (Stage, error) {
	all, err := a.stages.ListStages(ctx)
	if err != nil {
		return Stage{}, &generic.StoreError{Op: "list_stages", Err: err}
	}
	h := NewHierarchy(all)
	stage, ok := h.Stage(id)
	if !ok {
		return Stage{}, fmt.Errorf("%w: %s", generic.ErrStageNotFound, id)
	}
	if !h.IsLeaf(id) {
		return Stage{}, fmt.Errorf("%w: %s", generic.ErrNotLeaf, id)
	}
	return stage, nil
}

func (a *Aggregator) stamp(e ProgressEvent) ProgressEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.now().UTC()
	}
	return e
}
