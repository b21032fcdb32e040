/*
store.go - Persistence interfaces consumed by the budget engine

PURPOSE:
  Defines the boundary between the engine and whatever holds stages,
  monthly values and progress events. The engine never assumes a storage
  technology; it only calls the operations below.

KEY INTERFACES:
  StageStore:          Read access to stage snapshots (plus sync writes)
  MonthlyValueStore:   The (stage, month, type) -> amount table
  TxMonthlyValueStore: MonthlyValueStore with an atomic scope
  EventStore:          Append-only progress-event history
  SweepLog:            Audit trail of periodic full recomputes

WRITE DISCIPLINE:
  Monthly values are replaced, never appended. At most one row exists per
  (stage, month, type):
  - Planned rows: DeletePlanned + InsertPlanned for one stage
  - Actual rows:  UpsertActual or DeleteActual for one (stage, month)

  Progress events are the opposite: append-only. There is no update or
  delete. Corrections are rectification or reversal events.

ATOMIC PLANNED REPLACE:
  When the value store implements TxMonthlyValueStore, the distributor
  runs delete + insert inside WithTx so a reader never observes a stage
  with zero planned rows mid-replace. Without it, the two writes run in
  sequence and each is still idempotent.

IMPLEMENTATIONS:
  - store/memory/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: SQLite with embedded migrations
*/
package budget

import (
	"context"
	"time"

	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// STAGE STORE
// =============================================================================

// StageStore exposes stage snapshots. The hierarchy CRUD surface owns them;
// SaveStage and DeleteStage only mirror its changes.
type StageStore interface {
	// GetStage returns ErrStageNotFound when the id is unknown.
	GetStage(ctx context.Context, id StageID) (Stage, error)

	// ListStages returns every stage, ordered by code then id.
	ListStages(ctx context.Context) ([]Stage, error)

	SaveStage(ctx context.Context, stage Stage) error
	DeleteStage(ctx context.Context, id StageID) error
}

// =============================================================================
// MONTHLY VALUE STORE
// =============================================================================

type MonthlyValueStore interface {
	// ListMonthlyValues returns every row of every type and stage.
	ListMonthlyValues(ctx context.Context) ([]MonthlyValue, error)

	// ListStageValues returns the rows of one stage, ordered by month.
	ListStageValues(ctx context.Context, stageID StageID) ([]MonthlyValue, error)

	// DeletePlanned removes every planned row of a stage.
	DeletePlanned(ctx context.Context, stageID StageID) error

	// InsertPlanned writes planned rows. Callers delete first.
	InsertPlanned(ctx context.Context, rows []MonthlyValue) error

	// GetActual returns the actual row for (stage, month), or found=false.
	GetActual(ctx context.Context, stageID StageID, month generic.Month) (MonthlyValue, bool, error)

	// UpsertActual inserts or replaces the actual row for (stage, month).
	UpsertActual(ctx context.Context, row MonthlyValue) error

	// DeleteActual removes the actual row for (stage, month) if present.
	DeleteActual(ctx context.Context, stageID StageID, month generic.Month) error
}

// TxMonthlyValueStore runs fn atomically. If fn returns an error, every
// write made through the scoped store is rolled back.
type TxMonthlyValueStore interface {
	MonthlyValueStore
	WithTx(ctx context.Context, fn func(MonthlyValueStore) error) error
}

// =============================================================================
// EVENT STORE - Append-only
// =============================================================================

type EventStore interface {
	// AppendEvent persists an event. Returns ErrDuplicateEvent if the ID exists.
	AppendEvent(ctx context.Context, event ProgressEvent) error

	// GetEvent returns ErrEventNotFound when the id is unknown.
	GetEvent(ctx context.Context, id string) (ProgressEvent, error)

	// LoadEvents returns a stage's events dated within period, oldest first.
	LoadEvents(ctx context.Context, stageID StageID, period generic.Period) ([]ProgressEvent, error)

	// EventMonths returns every month in which the stage has events.
	EventMonths(ctx context.Context, stageID StageID) ([]generic.Month, error)

	// IsReversed reports whether a reversal referencing id exists.
	IsReversed(ctx context.Context, id string) (bool, error)
}

// =============================================================================
// SWEEP LOG - Audit of full recomputes
// =============================================================================

// SweepRun records one full recompute pass.
type SweepRun struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Trigger       string // "cron", "manual", "import"
	StagesPlanned int
	StagesCleared int
	ActualMonths  int
	Error         string
}

type SweepLog interface {
	SaveSweepRun(ctx context.Context, run SweepRun) error

	// ListSweepRuns returns the most recent runs first, at most limit.
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}
