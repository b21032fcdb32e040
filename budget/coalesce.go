package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// COALESCER - Per-stage debounced recompute
// =============================================================================

// RecomputeFunc is the work a Coalescer schedules for one stage.
type RecomputeFunc func(ctx context.Context, id StageID) error

// Coalescer collapses bursts of edits to a stage into one recompute. Every
// Schedule for a stage cancels that stage's pending task and starts a new
// quiescence window. Stages never wait on each other.
//
// Once a task fires it is no longer pending: later edits schedule a new
// task and do not cancel the running one.
type Coalescer struct {
	window time.Duration
	run    RecomputeFunc
	logger *slog.Logger

	mu      sync.Mutex
	pending map[StageID]*delayedRecompute
	stopped bool
	wg      sync.WaitGroup
}

// delayedRecompute is a pending task and its cancellation token.
type delayedRecompute struct {
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

func NewCoalescer(window time.Duration, run RecomputeFunc, logger *slog.Logger) *Coalescer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer{
		window:  window,
		run:     run,
		logger:  logger.With("component", "coalescer"),
		pending: make(map[StageID]*delayedRecompute),
	}
}

// Schedule (re)starts the quiescence window for id.
func (c *Coalescer) Schedule(id StageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.cancelLocked(id)

	ctx, cancel := context.WithCancel(context.Background())
	task := &delayedRecompute{ctx: ctx, cancel: cancel}
	task.timer = time.AfterFunc(c.window, func() { c.fire(id, task) })
	c.pending[id] = task
}

// Cancel drops the pending recompute of id. Returns false if none was pending.
func (c *Coalescer) Cancel(id StageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(id)
}

func (c *Coalescer) cancelLocked(id StageID) bool {
	task, ok := c.pending[id]
	if !ok {
		return false
	}
	task.timer.Stop()
	task.cancel()
	delete(c.pending, id)
	return true
}

// Pending returns the number of stages waiting for their window to elapse.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coalescer) fire(id StageID, task *delayedRecompute) {
	c.mu.Lock()
	if c.pending[id] != task || task.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	defer task.cancel()
	c.execute(task.ctx, id)
}

func (c *Coalescer) execute(ctx context.Context, id StageID) error {
	if err := c.run(ctx, id); err != nil {
		c.logger.Error("recompute failed", "stage_id", id, "error", err)
		return err
	}
	return nil
}

// Flush runs every pending recompute now, concurrently across stages, and
// returns the first error. It is a no-op after Stop.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	ids := make([]StageID, 0, len(c.pending))
	for id, task := range c.pending {
		task.timer.Stop()
		task.cancel()
		ids = append(ids, id)
	}
	clear(c.pending)
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error { return c.execute(ctx, id) })
	}
	return g.Wait()
}

// Stop drops pending recomputes and waits for running ones to finish.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	for id := range c.pending {
		c.cancelLocked(id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
