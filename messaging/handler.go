package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/factory"
	"github.com/warp/budget-engine/generic"
)

// ProgressRecorder is satisfied by *budget.Aggregator.
type ProgressRecorder interface {
	Record(ctx context.Context, event budget.ProgressEvent) (budget.ProgressEvent, []budget.ActualResult, error)
	Reverse(ctx context.Context, eventID, note string) (budget.ProgressEvent, []budget.ActualResult, error)
}

// Notifier publishes recompute notices. *Client implements it.
type Notifier interface {
	PublishRecompute(ctx context.Context, notice *RecomputeNotice) error
}

// Handler applies progress messages.
type Handler struct {
	recorder ProgressRecorder
	notifier Notifier
	factory  *factory.BudgetFactory
	logger   *slog.Logger
}

// NewHandler builds a handler. notifier may be nil.
func NewHandler(recorder ProgressRecorder, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		recorder: recorder,
		notifier: notifier,
		factory:  factory.NewBudgetFactory(),
		logger:   logger.With("component", "progress-consumer"),
	}
}

// Handle records or reverses one event and publishes a notice per touched
// month. Notice failures are logged, not returned: the event is stored.
func (h *Handler) Handle(ctx context.Context, msg *ProgressMessage) error {
	var (
		stored  budget.ProgressEvent
		results []budget.ActualResult
		err     error
	)
	switch msg.Action {
	case ActionRecord:
		event, convErr := h.factory.EventFromJSON(*msg.Event)
		if convErr != nil {
			return fmt.Errorf("%w: %w", errRejected, convErr)
		}
		stored, results, err = h.recorder.Record(ctx, event)
	case ActionReverse:
		stored, results, err = h.recorder.Reverse(ctx, msg.EventID, msg.Note)
	default:
		return fmt.Errorf("%w: unknown action %q", errRejected, msg.Action)
	}
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "progress applied",
		"action", msg.Action, "event_id", stored.ID, "stage_id", stored.StageID, "months", len(results))

	if h.notifier == nil {
		return nil
	}
	for _, r := range results {
		if err := h.notifier.PublishRecompute(ctx, NewRecomputeNotice(stored.ID, r)); err != nil {
			h.logger.WarnContext(ctx, "failed to publish recompute notice",
				"stage_id", r.StageID, "month_key", r.Month.Key(), "error", err)
		}
	}
	return nil
}

var errRejected = errors.New("progress message rejected")

// isPermanent reports whether redelivery cannot succeed.
func isPermanent(err error) bool {
	return generic.IsClientError(err) || generic.IsConflict(err) || generic.IsNotFound(err) ||
		errors.Is(err, errRejected)
}
