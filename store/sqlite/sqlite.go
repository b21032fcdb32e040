/*
Package sqlite provides a SQLite-backed implementation of the budget stores.

PURPOSE:
  Implements every persistence interface of the budget engine on a single
  SQLite database (mattn/go-sqlite3).

INTERFACES IMPLEMENTED:
  budget.StageStore:          Stage snapshots
  budget.TxMonthlyValueStore: Monthly values with atomic planned replace
  budget.EventStore:          Append-only progress events
  budget.SweepLog:            Sweep audit trail

KEY TABLES:
  stages:          Mirrored stage snapshots
  monthly_values:  PRIMARY KEY (stage_id, month_key, value_type)
  progress_events: Append-only; one reversal per referenced event
  sweep_runs:      Full recompute audit

AMOUNTS AND DATES:
  Amounts are stored as decimal TEXT so no float ever touches money.
  Dates are stored as YYYY-MM-DD, which sorts and compares as text.

TRANSACTIONS:
  Every query runs against a DBTX, satisfied by both *sql.DB and *sql.Tx.
  WithTx hands fn a store bound to one *sql.Tx; the planned-row replace
  (delete + insert) commits or rolls back as a unit.

MIGRATIONS:
  Schema lives in migrations/*.sql, embedded and applied by golang-migrate
  on New().

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  dist := budget.NewDistributor(store, store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/generic"
)

// DBTX is the common interface satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB

	// SQLite allows one writer at a time.
	writeMu sync.Mutex
}

// New opens the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reset deletes every row from every table.
func (s *Store) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"monthly_values", "progress_events", "stages", "sweep_runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// STAGE STORE
// =============================================================================

const stageColumns = `id, parent_id, code, name, kind, start_date, end_date, total_value, unit_price, updated_at`

func (s *Store) GetStage(ctx context.Context, id budget.StageID) (budget.Stage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = ?`, id)
	stage, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Stage{}, fmt.Errorf("%w: %s", generic.ErrStageNotFound, id)
	}
	return stage, err
}

func (s *Store) ListStages(ctx context.Context) ([]budget.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages ORDER BY code, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []budget.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stage)
	}
	return out, rows.Err()
}

func (s *Store) SaveStage(ctx context.Context, stage budget.Stage) error {
	if !stage.Kind.Valid() {
		return fmt.Errorf("%w: %q", generic.ErrUnknownKind, stage.Kind)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated := stage.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stages (`+stageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			code = excluded.code,
			name = excluded.name,
			kind = excluded.kind,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			total_value = excluded.total_value,
			unit_price = excluded.unit_price,
			updated_at = excluded.updated_at
	`,
		stage.ID,
		nullStageID(stage.ParentID),
		stage.Code,
		stage.Name,
		stage.Kind,
		nullDate(stage.Start),
		nullDate(stage.End),
		stage.TotalValue.Value.String(),
		nullAmount(stage.UnitPrice),
		updated.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save stage: %w", err)
	}
	return nil
}

func (s *Store) DeleteStage(ctx context.Context, id budget.StageID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrStageNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStage(sc scanner) (budget.Stage, error) {
	var (
		stage                       budget.Stage
		id, code, name, kind, total string
		parent, start, end, price   sql.NullString
		updated                     string
	)
	if err := sc.Scan(&id, &parent, &code, &name, &kind, &start, &end, &total, &price, &updated); err != nil {
		return budget.Stage{}, err
	}

	k, err := budget.ParseKind(kind)
	if err != nil {
		return budget.Stage{}, fmt.Errorf("stage %s: %w", id, err)
	}
	stage = budget.Stage{
		ID:   budget.StageID(id),
		Code: code,
		Name: name,
		Kind: k,
	}
	if parent.Valid && parent.String != "" {
		p := budget.StageID(parent.String)
		stage.ParentID = &p
	}
	if stage.Start, err = parseNullDate(start); err != nil {
		return budget.Stage{}, fmt.Errorf("stage %s start: %w", id, err)
	}
	if stage.End, err = parseNullDate(end); err != nil {
		return budget.Stage{}, fmt.Errorf("stage %s end: %w", id, err)
	}
	if stage.TotalValue, err = generic.ParseAmount(total); err != nil {
		return budget.Stage{}, fmt.Errorf("stage %s total: %w", id, err)
	}
	if stage.UnitPrice, err = parseNullAmount(price); err != nil {
		return budget.Stage{}, fmt.Errorf("stage %s unit price: %w", id, err)
	}
	stage.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return stage, nil
}

// =============================================================================
// MONTHLY VALUE STORE
// =============================================================================

func (s *Store) ListMonthlyValues(ctx context.Context) ([]budget.MonthlyValue, error) {
	return listValues(ctx, s.db, `SELECT stage_id, month_key, value, value_type FROM monthly_values
		ORDER BY stage_id, month_key, value_type`)
}

func (s *Store) ListStageValues(ctx context.Context, stageID budget.StageID) ([]budget.MonthlyValue, error) {
	return listValues(ctx, s.db, `SELECT stage_id, month_key, value, value_type FROM monthly_values
		WHERE stage_id = ? ORDER BY month_key, value_type`, stageID)
}

func (s *Store) DeletePlanned(ctx context.Context, stageID budget.StageID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return deletePlanned(ctx, s.db, stageID)
}

func (s *Store) InsertPlanned(ctx context.Context, rows []budget.MonthlyValue) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertPlanned(ctx, tx, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetActual(ctx context.Context, stageID budget.StageID, month generic.Month) (budget.MonthlyValue, bool, error) {
	return getActual(ctx, s.db, stageID, month)
}

func (s *Store) UpsertActual(ctx context.Context, row budget.MonthlyValue) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return upsertActual(ctx, s.db, row)
}

func (s *Store) DeleteActual(ctx context.Context, stageID budget.StageID, month generic.Month) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return deleteActual(ctx, s.db, stageID, month)
}

func listValues(ctx context.Context, q DBTX, query string, args ...any) ([]budget.MonthlyValue, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []budget.MonthlyValue
	for rows.Next() {
		var stageID, monthKey, value, valueType string
		if err := rows.Scan(&stageID, &monthKey, &value, &valueType); err != nil {
			return nil, err
		}
		amount, err := generic.ParseAmount(value)
		if err != nil {
			return nil, fmt.Errorf("monthly value (%s, %s): %w", stageID, monthKey, err)
		}
		// Keys and types are returned as stored; readers filter them.
		out = append(out, budget.MonthlyValue{
			StageID:   budget.StageID(stageID),
			MonthKey:  monthKey,
			Value:     amount,
			ValueType: budget.ValueType(valueType),
		})
	}
	return out, rows.Err()
}

func deletePlanned(ctx context.Context, q DBTX, stageID budget.StageID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM monthly_values WHERE stage_id = ? AND value_type = ?`,
		stageID, budget.ValuePlanned)
	return err
}

func insertPlanned(ctx context.Context, q DBTX, rows []budget.MonthlyValue) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		if r.ValueType != budget.ValuePlanned {
			return fmt.Errorf("%w: insert planned got %q", generic.ErrUnknownValueType, r.ValueType)
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO monthly_values (stage_id, month_key, value, value_type, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, r.StageID, r.MonthKey, r.Value.Value.String(), r.ValueType, now)
		if err != nil {
			return fmt.Errorf("failed to insert planned row (%s, %s): %w", r.StageID, r.MonthKey, err)
		}
	}
	return nil
}

func getActual(ctx context.Context, q DBTX, stageID budget.StageID, month generic.Month) (budget.MonthlyValue, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `
		SELECT value FROM monthly_values WHERE stage_id = ? AND month_key = ? AND value_type = ?
	`, stageID, month.Key(), budget.ValueActual).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.MonthlyValue{}, false, nil
	}
	if err != nil {
		return budget.MonthlyValue{}, false, err
	}
	amount, err := generic.ParseAmount(value)
	if err != nil {
		return budget.MonthlyValue{}, false, err
	}
	return budget.MonthlyValue{
		StageID:   stageID,
		MonthKey:  month.Key(),
		Value:     amount,
		ValueType: budget.ValueActual,
	}, true, nil
}

func upsertActual(ctx context.Context, q DBTX, row budget.MonthlyValue) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO monthly_values (stage_id, month_key, value, value_type, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stage_id, month_key, value_type) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, row.StageID, row.MonthKey, row.Value.Value.String(), budget.ValueActual, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert actual row: %w", err)
	}
	return nil
}

func deleteActual(ctx context.Context, q DBTX, stageID budget.StageID, month generic.Month) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM monthly_values WHERE stage_id = ? AND month_key = ? AND value_type = ?
	`, stageID, month.Key(), budget.ValueActual)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (budget.TxMonthlyValueStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(budget.MonthlyValueStore) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ListMonthlyValues(ctx context.Context) ([]budget.MonthlyValue, error) {
	return listValues(ctx, ts.tx, `SELECT stage_id, month_key, value, value_type FROM monthly_values
		ORDER BY stage_id, month_key, value_type`)
}

func (ts *txStore) ListStageValues(ctx context.Context, stageID budget.StageID) ([]budget.MonthlyValue, error) {
	return listValues(ctx, ts.tx, `SELECT stage_id, month_key, value, value_type FROM monthly_values
		WHERE stage_id = ? ORDER BY month_key, value_type`, stageID)
}

func (ts *txStore) DeletePlanned(ctx context.Context, stageID budget.StageID) error {
	return deletePlanned(ctx, ts.tx, stageID)
}

func (ts *txStore) InsertPlanned(ctx context.Context, rows []budget.MonthlyValue) error {
	return insertPlanned(ctx, ts.tx, rows)
}

func (ts *txStore) GetActual(ctx context.Context, stageID budget.StageID, month generic.Month) (budget.MonthlyValue, bool, error) {
	return getActual(ctx, ts.tx, stageID, month)
}

func (ts *txStore) UpsertActual(ctx context.Context, row budget.MonthlyValue) error {
	return upsertActual(ctx, ts.tx, row)
}

func (ts *txStore) DeleteActual(ctx context.Context, stageID budget.StageID, month generic.Month) error {
	return deleteActual(ctx, ts.tx, stageID, month)
}

// =============================================================================
// EVENT STORE - Append-only
// =============================================================================

const eventColumns = `id, stage_id, event_date, event_type, amount, quantity, unit_price, reference_id, note, created_at`

// AppendEvent adds an event. There is no update or delete.
func (s *Store) AppendEvent(ctx context.Context, e budget.ProgressEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var qty sql.NullString
	if e.Quantity != nil {
		qty = sql.NullString{String: e.Quantity.String(), Valid: true}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.StageID,
		e.Date.String(),
		e.Type,
		nullAmount(e.Amount),
		qty,
		nullAmount(e.UnitPrice),
		nullString(e.ReferenceID),
		e.Note,
		created.Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) {
			switch sqlErr.ExtendedCode {
			case sqlite3.ErrConstraintPrimaryKey:
				return fmt.Errorf("%w: %s", generic.ErrDuplicateEvent, e.ID)
			case sqlite3.ErrConstraintUnique:
				return fmt.Errorf("%w: %s", generic.ErrAlreadyReversed, e.ReferenceID)
			}
		}
		return fmt.Errorf("failed to append progress event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (budget.ProgressEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM progress_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.ProgressEvent{}, fmt.Errorf("%w: %s", generic.ErrEventNotFound, id)
	}
	return e, err
}

func (s *Store) LoadEvents(ctx context.Context, stageID budget.StageID, period generic.Period) ([]budget.ProgressEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM progress_events
		WHERE stage_id = ? AND event_date >= ? AND event_date <= ?
		ORDER BY event_date, created_at
	`, stageID, period.Start.String(), period.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []budget.ProgressEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EventMonths(ctx context.Context, stageID budget.StageID) ([]generic.Month, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT substr(event_date, 1, 7) AS month_key FROM progress_events
		WHERE stage_id = ? ORDER BY month_key
	`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Month
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		m, err := generic.ParseMonthKey(key)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) IsReversed(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM progress_events WHERE reference_id = ? AND event_type = ?
	`, id, budget.EventReversal).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanEvent(sc scanner) (budget.ProgressEvent, error) {
	var (
		id, stageID, date, typ, note, created string
		amount, qty, price, ref               sql.NullString
	)
	if err := sc.Scan(&id, &stageID, &date, &typ, &amount, &qty, &price, &ref, &note, &created); err != nil {
		return budget.ProgressEvent{}, err
	}

	et, err := budget.ParseEventType(typ)
	if err != nil {
		return budget.ProgressEvent{}, fmt.Errorf("event %s: %w", id, err)
	}
	day, err := generic.ParseDate(date)
	if err != nil {
		return budget.ProgressEvent{}, fmt.Errorf("event %s date: %w", id, err)
	}
	e := budget.ProgressEvent{
		ID:          id,
		StageID:     budget.StageID(stageID),
		Date:        day,
		Type:        et,
		ReferenceID: ref.String,
		Note:        note,
	}
	if e.Amount, err = parseNullAmount(amount); err != nil {
		return budget.ProgressEvent{}, fmt.Errorf("event %s amount: %w", id, err)
	}
	if e.UnitPrice, err = parseNullAmount(price); err != nil {
		return budget.ProgressEvent{}, fmt.Errorf("event %s unit price: %w", id, err)
	}
	if qty.Valid {
		q, err := decimal.NewFromString(qty.String)
		if err != nil {
			return budget.ProgressEvent{}, fmt.Errorf("event %s quantity: %w", id, err)
		}
		e.Quantity = &q
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

// =============================================================================
// SWEEP LOG
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, run budget.SweepRun) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var finished sql.NullString
	if !run.FinishedAt.IsZero() {
		finished = sql.NullString{String: run.FinishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (id, trigger_source, started_at, finished_at, stages_planned, stages_cleared, actual_months, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			stages_planned = excluded.stages_planned,
			stages_cleared = excluded.stages_cleared,
			actual_months = excluded.actual_months,
			error = excluded.error
	`,
		run.ID,
		run.Trigger,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		finished,
		run.StagesPlanned,
		run.StagesCleared,
		run.ActualMonths,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to save sweep run: %w", err)
	}
	return nil
}

func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]budget.SweepRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_source, started_at, finished_at, stages_planned, stages_cleared, actual_months, error
		FROM sweep_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []budget.SweepRun
	for rows.Next() {
		var (
			run             budget.SweepRun
			started         string
			finished, errText sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &started, &finished, &run.StagesPlanned,
			&run.StagesCleared, &run.ActualMonths, &errText); err != nil {
			return nil, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		run.Error = errText.String
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStageID(id *budget.StageID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func nullDate(tp *generic.TimePoint) sql.NullString {
	if tp == nil || tp.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*generic.TimePoint, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func nullAmount(a *generic.Amount) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.Value.String(), Valid: true}
}

func parseNullAmount(ns sql.NullString) (*generic.Amount, error) {
	if !ns.Valid {
		return nil, nil
	}
	a, err := generic.ParseAmount(ns.String)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var (
	_ budget.StageStore          = (*Store)(nil)
	_ budget.TxMonthlyValueStore = (*Store)(nil)
	_ budget.EventStore          = (*Store)(nil)
	_ budget.SweepLog            = (*Store)(nil)
)
