package budget_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
)

// recorder counts recomputes per stage.
type recorder struct {
	mu    sync.Mutex
	calls map[budget.StageID]int
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[budget.StageID]int)}
}

func (r *recorder) run(_ context.Context, id budget.StageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
	return nil
}

func (r *recorder) count(id budget.StageID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func TestCoalescer_BurstCollapsesToOneRun(t *testing.T) {
	// GIVEN: Five rapid edits to the same stage
	// THEN: One recompute after the window

	rec := newRecorder()
	c := budget.NewCoalescer(30*time.Millisecond, rec.run, quietLogger())
	defer c.Stop()

	for range 5 {
		c.Schedule("a")
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, 1, c.Pending())

	require.Eventually(t, func() bool { return rec.count("a") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count("a"))
	assert.Equal(t, 0, c.Pending())
}

func TestCoalescer_StagesAreIndependent(t *testing.T) {
	rec := newRecorder()
	c := budget.NewCoalescer(20*time.Millisecond, rec.run, quietLogger())
	defer c.Stop()

	c.Schedule("a")
	c.Schedule("b")
	c.Schedule("a")

	require.Eventually(t, func() bool {
		return rec.count("a") == 1 && rec.count("b") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCoalescer_CancelAndStop(t *testing.T) {
	rec := newRecorder()
	c := budget.NewCoalescer(20*time.Millisecond, rec.run, quietLogger())

	c.Schedule("a")
	assert.True(t, c.Cancel("a"))
	assert.False(t, c.Cancel("a"))

	c.Schedule("b")
	c.Stop()
	c.Schedule("c")

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count("a"))
	assert.Zero(t, rec.count("b"))
	assert.Zero(t, rec.count("c"), "schedules after Stop are ignored")
}

func TestCoalescer_FlushRunsPendingNow(t *testing.T) {
	rec := newRecorder()
	c := budget.NewCoalescer(time.Hour, rec.run, quietLogger())
	defer c.Stop()

	c.Schedule("a")
	c.Schedule("b")
	require.NoError(t, c.Flush(context.Background()))

	assert.Equal(t, 1, rec.count("a"))
	assert.Equal(t, 1, rec.count("b"))
	assert.Zero(t, c.Pending())
}

func TestCoalescer_FlushAfterStop(t *testing.T) {
	// GIVEN: A stopped coalescer
	// WHEN: Flush races with or follows Stop
	// THEN: Flush returns without running anything

	rec := newRecorder()
	c := budget.NewCoalescer(time.Hour, rec.run, quietLogger())
	c.Schedule("a")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Stop()
	}()
	go func() {
		defer wg.Done()
		_ = c.Flush(context.Background())
	}()
	wg.Wait()

	require.NoError(t, c.Flush(context.Background()))
	c.Schedule("b")
	require.NoError(t, c.Flush(context.Background()))
	assert.Zero(t, rec.count("b"))
	assert.LessOrEqual(t, rec.count("a"), 1)
}

func TestCoalescer_FlushReportsFailure(t *testing.T) {
	boom := errors.New("disk full")
	c := budget.NewCoalescer(time.Hour, func(context.Context, budget.StageID) error { return boom }, quietLogger())
	defer c.Stop()

	c.Schedule("a")
	assert.ErrorIs(t, c.Flush(context.Background()), boom)
}
