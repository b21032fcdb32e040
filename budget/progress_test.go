package budget_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/generic"
	"github.com/warp/budget-engine/store/memory"
)

func amountPtr(s string) *generic.Amount {
	a := amt(s)
	return &a
}

func event(id, stage, date string, typ budget.EventType, amount string) budget.ProgressEvent {
	return budget.ProgressEvent{
		ID:      id,
		StageID: budget.StageID(stage),
		Date:    *day(date),
		Type:    typ,
		Amount:  amountPtr(amount),
	}
}

func newAggregator(t *testing.T, stages ...budget.Stage) (*budget.Aggregator, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, s := range stages {
		require.NoError(t, store.SaveStage(context.Background(), s))
	}
	return budget.NewAggregator(store, store, store, nil), store
}

func actualOf(t *testing.T, store *memory.Store, stage, month string) (string, bool) {
	t.Helper()
	row, ok, err := store.GetActual(context.Background(), budget.StageID(stage), generic.MustParseMonthKey(month))
	require.NoError(t, err)
	return row.Value.String(), ok
}

// =============================================================================
// PURE AGGREGATION
// =============================================================================

func TestAggregateMonth_SignedSum(t *testing.T) {
	// GIVEN: Events in March and one in April
	// THEN: March = 100 + 25.50 - 40 (reversal), April ignored

	stage := leafStage("a", "2024-01-01", "2024-12-31", "1000")
	events := []budget.ProgressEvent{
		event("e1", "a", "2024-03-01", budget.EventInclusion, "100"),
		event("e2", "a", "2024-03-31", budget.EventRectification, "25.50"),
		event("e3", "a", "2024-03-15", budget.EventReversal, "40"),
		event("e4", "a", "2024-04-01", budget.EventInclusion, "999"),
		event("e5", "other", "2024-03-10", budget.EventInclusion, "999"),
	}

	got, err := budget.AggregateMonth(stage, generic.NewMonth(2024, 3), events)
	require.NoError(t, err)
	assert.Equal(t, "85.50", got.String())
}

func TestAggregateMonth_QuantityUsesUnitPrice(t *testing.T) {
	stage := leafStage("concrete", "2024-01-01", "2024-12-31", "1000")
	stage.UnitPrice = amountPtr("12.345")

	qty := decimal.RequireFromString("3")
	override := amountPtr("10")
	events := []budget.ProgressEvent{
		{ID: "q1", StageID: "concrete", Date: *day("2024-02-02"), Type: budget.EventInclusion, Quantity: &qty},
		{ID: "q2", StageID: "concrete", Date: *day("2024-02-03"), Type: budget.EventInclusion, Quantity: &qty, UnitPrice: override},
	}

	got, err := budget.AggregateMonth(stage, generic.NewMonth(2024, 2), events)
	require.NoError(t, err)
	// 3 x 12.345 = 37.035 -> 37.04, plus 3 x 10
	assert.Equal(t, "67.04", got.String())
}

func TestAggregateMonth_UnpricedQuantityFails(t *testing.T) {
	stage := leafStage("a", "", "", "1")
	qty := decimal.NewFromInt(2)
	_, err := budget.AggregateMonth(stage, generic.NewMonth(2024, 1), []budget.ProgressEvent{
		{ID: "q", StageID: "a", Date: *day("2024-01-05"), Type: budget.EventInclusion, Quantity: &qty},
	})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)
}

// =============================================================================
// AGGREGATOR
// =============================================================================

func TestAggregator_RecordUpsertsActual(t *testing.T) {
	ctx := context.Background()
	agg, store := newAggregator(t, leafStage("a", "2024-01-01", "2024-06-30", "5000"))

	ev, results, err := agg.Record(ctx, event("", "a", "2024-02-10", budget.EventInclusion, "300"))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID, "an id is assigned")
	assert.False(t, ev.CreatedAt.IsZero())
	require.Len(t, results, 1)
	assert.Equal(t, budget.ActualUpserted, results[0].Action)

	_, _, err = agg.Record(ctx, event("", "a", "2024-02-20", budget.EventInclusion, "200"))
	require.NoError(t, err)

	v, ok := actualOf(t, store, "a", "2024-02")
	require.True(t, ok)
	assert.Equal(t, "500.00", v)
}

func TestAggregator_ReplayIsIdempotent(t *testing.T) {
	// GIVEN: A recorded history
	// WHEN: Recomputing the stage twice
	// THEN: The stored actual rows do not change

	ctx := context.Background()
	agg, store := newAggregator(t, leafStage("a", "2024-01-01", "2024-06-30", "5000"))
	_, _, err := agg.Record(ctx, event("e1", "a", "2024-01-10", budget.EventInclusion, "120"))
	require.NoError(t, err)
	_, _, err = agg.Record(ctx, event("e2", "a", "2024-03-10", budget.EventInclusion, "80"))
	require.NoError(t, err)

	before, err := store.ListStageValues(ctx, "a")
	require.NoError(t, err)

	for range 2 {
		results, err := agg.RecomputeStage(ctx, "a")
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, budget.ActualUnchanged, r.Action)
		}
	}

	after, err := store.ListStageValues(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAggregator_ReverseRemovesRow(t *testing.T) {
	// GIVEN: A single inclusion in May
	// WHEN: It is reversed
	// THEN: The month nets to zero and the actual row is deleted

	ctx := context.Background()
	agg, store := newAggregator(t, leafStage("a", "2024-01-01", "2024-06-30", "5000"))
	orig, _, err := agg.Record(ctx, event("e1", "a", "2024-05-05", budget.EventInclusion, "250"))
	require.NoError(t, err)

	rev, results, err := agg.Reverse(ctx, orig.ID, "entered twice")
	require.NoError(t, err)
	assert.Equal(t, budget.EventReversal, rev.Type)
	assert.Equal(t, orig.ID, rev.ReferenceID)
	assert.Equal(t, orig.Date, rev.Date)
	require.Len(t, results, 1)
	assert.Equal(t, budget.ActualDeleted, results[0].Action)

	_, ok := actualOf(t, store, "a", "2024-05")
	assert.False(t, ok)
}

func TestAggregator_ReverseTwiceRejected(t *testing.T) {
	ctx := context.Background()
	agg, _ := newAggregator(t, leafStage("a", "", "", "1"))
	orig, _, err := agg.Record(ctx, event("e1", "a", "2024-05-05", budget.EventInclusion, "10"))
	require.NoError(t, err)

	rev, _, err := agg.Reverse(ctx, orig.ID, "")
	require.NoError(t, err)

	_, _, err = agg.Reverse(ctx, orig.ID, "")
	assert.ErrorIs(t, err, generic.ErrAlreadyReversed)

	_, _, err = agg.Reverse(ctx, rev.ID, "")
	assert.ErrorIs(t, err, generic.ErrNotReversible)

	_, _, err = agg.Reverse(ctx, "missing", "")
	assert.ErrorIs(t, err, generic.ErrEventNotFound)
}

func TestAggregator_NegativeNetIsNeverStored(t *testing.T) {
	// GIVEN: A rectification larger than the month's progress
	// THEN: The actual row is removed, not stored negative

	ctx := context.Background()
	agg, store := newAggregator(t, leafStage("a", "", "", "1"))
	_, _, err := agg.Record(ctx, event("e1", "a", "2024-07-01", budget.EventInclusion, "100"))
	require.NoError(t, err)

	_, results, err := agg.Record(ctx, event("e2", "a", "2024-07-02", budget.EventRectification, "-150"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "-50.00", results[0].Value.String())
	assert.Equal(t, budget.ActualDeleted, results[0].Action)

	_, ok := actualOf(t, store, "a", "2024-07")
	assert.False(t, ok)
}

func TestAggregator_RectificationRecomputesReferencedMonth(t *testing.T) {
	ctx := context.Background()
	agg, _ := newAggregator(t, leafStage("a", "", "", "1"))
	_, _, err := agg.Record(ctx, event("e1", "a", "2024-01-20", budget.EventInclusion, "100"))
	require.NoError(t, err)

	rect := event("e2", "a", "2024-02-02", budget.EventRectification, "-10")
	rect.ReferenceID = "e1"
	_, results, err := agg.Record(ctx, rect)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "2024-02", results[0].Month.Key())
	assert.Equal(t, "2024-01", results[1].Month.Key())
}

func TestAggregator_RejectsInvalidEvents(t *testing.T) {
	ctx := context.Background()
	agg, _ := newAggregator(t,
		group("p"),
		child(leafStage("a", "", "", "1"), "p"),
	)

	_, _, err := agg.Record(ctx, event("", "p", "2024-01-01", budget.EventInclusion, "1"))
	assert.ErrorIs(t, err, generic.ErrNotLeaf)

	_, _, err = agg.Record(ctx, event("", "ghost", "2024-01-01", budget.EventInclusion, "1"))
	assert.ErrorIs(t, err, generic.ErrStageNotFound)

	_, _, err = agg.Record(ctx, event("", "a", "2024-01-01", budget.EventInclusion, "-1"))
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, _, err = agg.Record(ctx, event("", "a", "2024-01-01", budget.EventType("bonus"), "1"))
	assert.ErrorIs(t, err, generic.ErrUnknownEventType)

	_, _, err = agg.Record(ctx, event("dup", "a", "2024-01-01", budget.EventInclusion, "1"))
	require.NoError(t, err)
	_, _, err = agg.Record(ctx, event("dup", "a", "2024-01-02", budget.EventInclusion, "1"))
	assert.ErrorIs(t, err, generic.ErrDuplicateEvent)
}

func TestAggregator_RecomputeStageDropsStaleRows(t *testing.T) {
	// GIVEN: An actual row with no events behind it
	// THEN: Recomputing the stage deletes it

	ctx := context.Background()
	agg, store := newAggregator(t, leafStage("a", "", "", "1"))
	require.NoError(t, store.UpsertActual(ctx, budget.MonthlyValue{
		StageID: "a", MonthKey: "2023-11", Value: amt("42"), ValueType: budget.ValueActual,
	}))

	results, err := agg.RecomputeStage(ctx, "a")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, budget.ActualDeleted, results[0].Action)

	n, err := agg.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
