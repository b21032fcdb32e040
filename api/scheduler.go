/*
scheduler.go - Full recompute sweeps

PURPOSE:
  Coalesced per-stage recomputes keep planned and actual rows current
  during normal operation. A sweep is the safety net: it re-distributes
  every stage and rebuilds every actual month from full history, which
  repairs rows left stale by a failed write, a crash inside a debounce
  window or a bulk import.

DESIGN:
  - Sweeper runs one sweep at a time and records a SweepRun before and
    after, so a crashed sweep stays visible as unfinished
  - SweepScheduler triggers sweeps on a cron expression (robfig/cron)
  - Overlapping cron firings are skipped, not queued

USAGE:
  sweeper := NewSweeper(distributor, aggregator, store, logger)
  scheduler, err := NewSweepScheduler(sweeper, "0 3 * * *", logger)
  scheduler.Start()
  defer scheduler.Stop(ctx)

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - budget/distribution.go: Distributor.RecomputeAll
  - budget/progress.go: Aggregator.RecomputeAll
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/config"
)

// Sweep triggers recorded on SweepRun.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
	TriggerImport = "import"
)

// =============================================================================
// SWEEPER
// =============================================================================

// Sweeper recomputes every planned and actual row.
type Sweeper struct {
	distributor *budget.Distributor
	aggregator  *budget.Aggregator
	runs        budget.SweepLog
	logger      *slog.Logger
	now         func() time.Time

	mu sync.Mutex
}

func NewSweeper(d *budget.Distributor, a *budget.Aggregator, runs budget.SweepLog, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		distributor: d,
		aggregator:  a,
		runs:        runs,
		logger:      logger.With("component", "sweeper"),
		now:         time.Now,
	}
}

// Run performs one sweep. The returned run is populated even on failure.
func (s *Sweeper) Run(ctx context.Context, trigger string) (budget.SweepRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := budget.SweepRun{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
		Trigger:   trigger,
	}
	if err := s.runs.SaveSweepRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to save run record: %w", err)
	}

	stats, planErr := s.distributor.RecomputeAll(ctx)
	run.StagesPlanned = stats.Planned
	run.StagesCleared = stats.Cleared

	var actualErr error
	if planErr == nil {
		run.ActualMonths, actualErr = s.aggregator.RecomputeAll(ctx)
	}

	sweepErr := errors.Join(planErr, actualErr)
	if sweepErr != nil {
		run.Error = sweepErr.Error()
	}
	run.FinishedAt = s.now().UTC()

	// The outcome is saved even when ctx was cancelled mid-sweep.
	if err := s.runs.SaveSweepRun(context.WithoutCancel(ctx), run); err != nil {
		return run, errors.Join(sweepErr, fmt.Errorf("failed to update run record: %w", err))
	}

	if sweepErr != nil {
		s.logger.Error("sweep failed", "run_id", run.ID, "trigger", trigger, "error", sweepErr)
		return run, sweepErr
	}
	s.logger.Info("sweep complete",
		"run_id", run.ID,
		"trigger", trigger,
		"planned", run.StagesPlanned,
		"cleared", run.StagesCleared,
		"actual_months", run.ActualMonths,
		"duration", run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

// =============================================================================
// CRON SCHEDULER
// =============================================================================

// SweepScheduler runs sweeps on a cron schedule.
type SweepScheduler struct {
	sweeper *Sweeper
	cron    *cron.Cron
	entry   cron.EntryID
	timeout time.Duration
	logger  *slog.Logger
}

// NewSweepScheduler validates spec and registers the job. Start begins firing.
func NewSweepScheduler(sweeper *Sweeper, spec string, logger *slog.Logger) (*SweepScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}

	ss := &SweepScheduler{
		sweeper: sweeper,
		timeout: 30 * time.Minute,
		logger:  logger,
		cron: cron.New(
			cron.WithParser(config.SweepParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	id, err := ss.cron.AddFunc(spec, ss.runScheduled)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	ss.entry = id
	return ss, nil
}

func (ss *SweepScheduler) Start() {
	ss.cron.Start()
	ss.logger.Info("sweep scheduler started", "next_run", ss.NextRun())
}

// Stop halts firing and waits for a running sweep or for ctx.
func (ss *SweepScheduler) Stop(ctx context.Context) {
	done := ss.cron.Stop()
	select {
	case <-done.Done():
		ss.logger.Info("sweep scheduler stopped")
	case <-ctx.Done():
		ss.logger.Warn("sweep scheduler stop timed out", "error", ctx.Err())
	}
}

// NextRun returns when the next sweep will fire; zero before Start.
func (ss *SweepScheduler) NextRun() time.Time {
	return ss.cron.Entry(ss.entry).Next
}

func (ss *SweepScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), ss.timeout)
	defer cancel()
	// Errors are logged and recorded by the sweeper.
	_, _ = ss.sweeper.Run(ctx, TriggerCron)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
