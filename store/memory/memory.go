// Package memory provides in-memory implementations of the budget stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store implements StageStore, TxMonthlyValueStore, EventStore and SweepLog.
type Store struct {
	mu       sync.RWMutex
	stages   map[budget.StageID]budget.Stage
	values   map[valueKey]budget.MonthlyValue
	events   []budget.ProgressEvent // append order
	eventIdx map[string]int
	reversed map[string]string // original id -> reversal id
	sweeps   []budget.SweepRun
}

type valueKey struct {
	StageID   budget.StageID
	MonthKey  string
	ValueType budget.ValueType
}

func keyOf(v budget.MonthlyValue) valueKey {
	return valueKey{StageID: v.StageID, MonthKey: v.MonthKey, ValueType: v.ValueType}
}

func New() *Store {
	return &Store{
		stages:   make(map[budget.StageID]budget.Stage),
		values:   make(map[valueKey]budget.MonthlyValue),
		eventIdx: make(map[string]int),
		reversed: make(map[string]string),
	}
}

// =============================================================================
// STAGES
// =============================================================================

func (m *Store) GetStage(_ context.Context, id budget.StageID) (budget.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stages[id]
	if !ok {
		return budget.Stage{}, fmt.Errorf("%w: %s", generic.ErrStageNotFound, id)
	}
	return s, nil
}

func (m *Store) ListStages(_ context.Context) ([]budget.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]budget.Stage, 0, len(m.stages))
	for _, s := range m.stages {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Store) SaveStage(_ context.Context, stage budget.Stage) error {
	if !stage.Kind.Valid() {
		return fmt.Errorf("%w: %q", generic.ErrUnknownKind, stage.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage.ID] = stage
	return nil
}

func (m *Store) DeleteStage(_ context.Context, id budget.StageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stages[id]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrStageNotFound, id)
	}
	delete(m.stages, id)
	return nil
}

// =============================================================================
// MONTHLY VALUES
// =============================================================================

func (m *Store) ListMonthlyValues(_ context.Context) ([]budget.MonthlyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listValuesLocked(func(budget.MonthlyValue) bool { return true }), nil
}

func (m *Store) ListStageValues(_ context.Context, stageID budget.StageID) ([]budget.MonthlyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listValuesLocked(func(v budget.MonthlyValue) bool { return v.StageID == stageID }), nil
}

func (m *Store) listValuesLocked(keep func(budget.MonthlyValue) bool) []budget.MonthlyValue {
	var out []budget.MonthlyValue
	for _, v := range m.values {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StageID != b.StageID {
			return a.StageID < b.StageID
		}
		if a.MonthKey != b.MonthKey {
			return a.MonthKey < b.MonthKey
		}
		return a.ValueType < b.ValueType
	})
	return out
}

func (m *Store) DeletePlanned(_ context.Context, stageID budget.StageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletePlannedLocked(stageID)
	return nil
}

func (m *Store) deletePlannedLocked(stageID budget.StageID) {
	for k := range m.values {
		if k.StageID == stageID && k.ValueType == budget.ValuePlanned {
			delete(m.values, k)
		}
	}
}

func (m *Store) InsertPlanned(_ context.Context, rows []budget.MonthlyValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPlannedLocked(rows)
}

func (m *Store) insertPlannedLocked(rows []budget.MonthlyValue) error {
	for _, r := range rows {
		if r.ValueType != budget.ValuePlanned {
			return fmt.Errorf("%w: insert planned got %q", generic.ErrUnknownValueType, r.ValueType)
		}
		if _, exists := m.values[keyOf(r)]; exists {
			return fmt.Errorf("planned row (%s, %s) already exists", r.StageID, r.MonthKey)
		}
	}
	for _, r := range rows {
		m.values[keyOf(r)] = r
	}
	return nil
}

// SetRaw stores a row as-is, bypassing validation. Used to seed rows that
// predate validation, such as malformed month keys.
func (m *Store) SetRaw(row budget.MonthlyValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[keyOf(row)] = row
}

func (m *Store) GetActual(_ context.Context, stageID budget.StageID, month generic.Month) (budget.MonthlyValue, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[valueKey{StageID: stageID, MonthKey: month.Key(), ValueType: budget.ValueActual}]
	return v, ok, nil
}

func (m *Store) UpsertActual(_ context.Context, row budget.MonthlyValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.ValueType = budget.ValueActual
	m.values[keyOf(row)] = row
	return nil
}

func (m *Store) DeleteActual(_ context.Context, stageID budget.StageID, month generic.Month) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, valueKey{StageID: stageID, MonthKey: month.Key(), ValueType: budget.ValueActual})
	return nil
}

// =============================================================================
// TRANSACTIONAL MONTHLY VALUES
// =============================================================================

// WithTx executes fn under the write lock against a scoped view. Writes are
// rolled back from a snapshot when fn fails.
func (m *Store) WithTx(ctx context.Context, fn func(budget.MonthlyValueStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[valueKey]budget.MonthlyValue, len(m.values))
	for k, v := range m.values {
		snapshot[k] = v
	}

	if err := fn(&txView{parent: m}); err != nil {
		m.values = snapshot
		return err
	}
	return nil
}

// txView runs against the parent's maps while its lock is already held.
type txView struct {
	parent *Store
}

func (tv *txView) ListMonthlyValues(context.Context) ([]budget.MonthlyValue, error) {
	return tv.parent.listValuesLocked(func(budget.MonthlyValue) bool { return true }), nil
}

func (tv *txView) ListStageValues(_ context.Context, stageID budget.StageID) ([]budget.MonthlyValue, error) {
	return tv.parent.listValuesLocked(func(v budget.MonthlyValue) bool { return v.StageID == stageID }), nil
}

func (tv *txView) DeletePlanned(_ context.Context, stageID budget.StageID) error {
	tv.parent.deletePlannedLocked(stageID)
	return nil
}

func (tv *txView) InsertPlanned(_ context.Context, rows []budget.MonthlyValue) error {
	return tv.parent.insertPlannedLocked(rows)
}

func (tv *txView) GetActual(_ context.Context, stageID budget.StageID, month generic.Month) (budget.MonthlyValue, bool, error) {
	v, ok := tv.parent.values[valueKey{StageID: stageID, MonthKey: month.Key(), ValueType: budget.ValueActual}]
	return v, ok, nil
}

func (tv *txView) UpsertActual(_ context.Context, row budget.MonthlyValue) error {
	row.ValueType = budget.ValueActual
	tv.parent.values[keyOf(row)] = row
	return nil
}

func (tv *txView) DeleteActual(_ context.Context, stageID budget.StageID, month generic.Month) error {
	delete(tv.parent.values, valueKey{StageID: stageID, MonthKey: month.Key(), ValueType: budget.ValueActual})
	return nil
}

// =============================================================================
// EVENTS - Append-only
// =============================================================================

func (m *Store) AppendEvent(_ context.Context, event budget.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.eventIdx[event.ID]; dup {
		return fmt.Errorf("%w: %s", generic.ErrDuplicateEvent, event.ID)
	}
	if event.Type == budget.EventReversal {
		if _, done := m.reversed[event.ReferenceID]; done {
			return fmt.Errorf("%w: %s", generic.ErrAlreadyReversed, event.ReferenceID)
		}
		m.reversed[event.ReferenceID] = event.ID
	}
	m.eventIdx[event.ID] = len(m.events)
	m.events = append(m.events, event)
	return nil
}

func (m *Store) GetEvent(_ context.Context, id string) (budget.ProgressEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.eventIdx[id]
	if !ok {
		return budget.ProgressEvent{}, fmt.Errorf("%w: %s", generic.ErrEventNotFound, id)
	}
	return m.events[i], nil
}

func (m *Store) LoadEvents(_ context.Context, stageID budget.StageID, period generic.Period) ([]budget.ProgressEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []budget.ProgressEvent
	for _, e := range m.events {
		if e.StageID == stageID && period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Store) EventMonths(_ context.Context, stageID budget.StageID) ([]generic.Month, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[generic.Month]bool)
	var out []generic.Month
	for _, e := range m.events {
		if e.StageID != stageID || seen[e.Month()] {
			continue
		}
		seen[e.Month()] = true
		out = append(out, e.Month())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *Store) IsReversed(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reversed[id]
	return ok, nil
}

// Reset drops all data.
func (m *Store) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = make(map[budget.StageID]budget.Stage)
	m.values = make(map[valueKey]budget.MonthlyValue)
	m.events = nil
	m.eventIdx = make(map[string]int)
	m.reversed = make(map[string]string)
	m.sweeps = nil
	return nil
}

// =============================================================================
// SWEEP LOG
// =============================================================================

func (m *Store) SaveSweepRun(_ context.Context, run budget.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sweeps {
		if m.sweeps[i].ID == run.ID {
			m.sweeps[i] = run
			return nil
		}
	}
	m.sweeps = append(m.sweeps, run)
	return nil
}

func (m *Store) ListSweepRuns(_ context.Context, limit int) ([]budget.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]budget.SweepRun, 0, len(m.sweeps))
	for i := len(m.sweeps) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.sweeps[i])
	}
	return out, nil
}

var (
	_ budget.StageStore          = (*Store)(nil)
	_ budget.TxMonthlyValueStore = (*Store)(nil)
	_ budget.EventStore          = (*Store)(nil)
	_ budget.SweepLog            = (*Store)(nil)
)
