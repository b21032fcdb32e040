package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/factory"
	"github.com/warp/budget-engine/generic"
	"github.com/warp/budget-engine/logging"
	"github.com/warp/budget-engine/store/memory"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []*RecomputeNotice
	err     error
}

func (n *recordingNotifier) PublishRecompute(_ context.Context, notice *RecomputeNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func newHandler(t *testing.T, notifier Notifier) (*Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	start := generic.MustParseDate("2024-01-01")
	end := generic.MustParseDate("2024-06-30")
	require.NoError(t, store.SaveStage(context.Background(), budget.Stage{
		ID: "walls", Name: "Walls", Kind: budget.KindLabor,
		Start: &start, End: &end, TotalValue: generic.MustParseAmount("6000"),
	}))
	agg := budget.NewAggregator(store, store, store, logging.Discard())
	return NewHandler(agg, notifier, logging.Discard()), store
}

func amountJSON(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestProgressMessageFromJSON(t *testing.T) {
	msg, err := ProgressMessageFromJSON([]byte(`{"action":"record","event":{"stage_id":"walls","date":"2024-02-10","type":"inclusion","amount":"1200"}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionRecord, msg.Action)
	assert.Equal(t, "walls", msg.Event.StageID)
	assert.Equal(t, "1200", msg.Event.Amount.String())

	_, err = ProgressMessageFromJSON([]byte(`{"action":"record"}`))
	assert.Error(t, err)
	_, err = ProgressMessageFromJSON([]byte(`{"action":"reverse"}`))
	assert.Error(t, err)
	_, err = ProgressMessageFromJSON([]byte(`{"action":"delete","event_id":"x"}`))
	assert.Error(t, err)
	_, err = ProgressMessageFromJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandler_RecordAndReverse(t *testing.T) {
	// GIVEN: A leaf stage and a notifier
	// WHEN: An inclusion is recorded, then reversed
	// THEN: The actual row appears, then disappears, with one notice each

	notifier := &recordingNotifier{}
	h, store := newHandler(t, notifier)
	ctx := context.Background()

	err := h.Handle(ctx, &ProgressMessage{
		Action: ActionRecord,
		Event: &factory.EventJSON{
			ID: "e1", StageID: "walls", Date: "2024-02-10", Type: "inclusion", Amount: amountJSON("1200"),
		},
	})
	require.NoError(t, err)

	row, found, err := store.GetActual(ctx, "walls", generic.NewMonth(2024, 2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1200.00", row.Value.String())

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "walls", notifier.notices[0].StageID)
	assert.Equal(t, "2024-02", notifier.notices[0].MonthKey)
	assert.Equal(t, "upserted", notifier.notices[0].Action)
	assert.Equal(t, "e1", notifier.notices[0].EventID)

	require.NoError(t, h.Handle(ctx, &ProgressMessage{Action: ActionReverse, EventID: "e1", Note: "wrong wall"}))
	_, found, err = store.GetActual(ctx, "walls", generic.NewMonth(2024, 2))
	require.NoError(t, err)
	assert.False(t, found)
	require.Len(t, notifier.notices, 2)
	assert.Equal(t, "deleted", notifier.notices[1].Action)
}

func TestHandler_PermanentFailures(t *testing.T) {
	h, _ := newHandler(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *ProgressMessage
	}{
		{
			name: "unknown type",
			msg: &ProgressMessage{Action: ActionRecord, Event: &factory.EventJSON{
				StageID: "walls", Date: "2024-02-10", Type: "bonus", Amount: amountJSON("1"),
			}},
		},
		{
			name: "unknown stage",
			msg: &ProgressMessage{Action: ActionRecord, Event: &factory.EventJSON{
				StageID: "roof", Date: "2024-02-10", Type: "inclusion", Amount: amountJSON("1"),
			}},
		},
		{
			name: "unknown event to reverse",
			msg:  &ProgressMessage{Action: ActionReverse, EventID: "missing"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(ctx, tt.msg)
			require.Error(t, err)
			assert.True(t, isPermanent(err), "expected no requeue for %v", err)
		})
	}

	storeDown := &generic.StoreError{Op: "upsert_actual", Err: errors.New("disk full")}
	assert.False(t, isPermanent(storeDown))
}

func TestHandler_NoticeFailureDoesNotFailMessage(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("broker gone")}
	h, _ := newHandler(t, notifier)

	err := h.Handle(context.Background(), &ProgressMessage{
		Action: ActionRecord,
		Event:  &factory.EventJSON{StageID: "walls", Date: "2024-03-01", Type: "inclusion", Amount: amountJSON("10")},
	})
	assert.NoError(t, err)
	assert.Len(t, notifier.notices, 1)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.False(t, isConnectionError(errors.New("Exception (403) Reason: \"ACCESS_REFUSED\"")))
}
