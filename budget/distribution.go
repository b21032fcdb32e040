package budget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// DISTRIBUTE - Pure day-proportional time-phasing
// =============================================================================

// Allocation is one month's share of a stage total.
type Allocation struct {
	Month generic.Month
	Value generic.Amount
}

// Distribute spreads total over the calendar months touched by period,
// proportionally to the number of days of the period in each month.
//
// Every month except the last gets its share rounded to the cent (half away
// from zero). The last month takes the residual, so the allocations always
// sum to the cent-quantized total. If rounding pushed the residual below
// zero, cents move one at a time from the preceding months, walking
// backwards and skipping empty months, until it is non-negative. Zero
// months are dropped.
//
// Returns nil for a non-positive total or an inverted period.
func Distribute(period generic.Period, total generic.Amount) []Allocation {
	totalCents := total.Cents()
	totalDays := period.Days()
	if totalCents <= 0 || totalDays <= 0 {
		return nil
	}

	slices := period.MonthSlices()
	if len(slices) == 0 {
		return nil
	}

	cents := make([]int64, len(slices))
	last := len(slices) - 1
	var allocated int64
	for i := 0; i < last; i++ {
		cents[i] = shareCents(totalCents, slices[i].Days, totalDays)
		allocated += cents[i]
	}
	cents[last] = totalCents - allocated

	repairNegativeResidual(cents)

	out := make([]Allocation, 0, len(slices))
	for i, s := range slices {
		if cents[i] == 0 {
			continue
		}
		out = append(out, Allocation{Month: s.Month, Value: generic.AmountFromCents(cents[i])})
	}
	return out
}

var (
	decOne = decimal.NewFromInt(1)
	decTwo = decimal.NewFromInt(2)
)

// shareCents is round(totalCents * days / totalDays) computed exactly.
func shareCents(totalCents int64, days, totalDays int) int64 {
	num := decimal.NewFromInt(totalCents).Mul(decimal.NewFromInt(int64(days)))
	den := decimal.NewFromInt(int64(totalDays))
	q, r := num.QuoRem(den, 0)
	if r.Mul(decTwo).GreaterThanOrEqual(den) {
		q = q.Add(decOne)
	}
	return q.IntPart()
}

// repairNegativeResidual moves cents into the last slot until it is >= 0.
// The sum of cents never changes. Donors are visited round-robin from the
// second-to-last slot backwards.
func repairNegativeResidual(cents []int64) {
	last := len(cents) - 1
	if last < 1 {
		return
	}
	i := last - 1
	for cents[last] < 0 {
		if cents[i] > 0 {
			cents[i]--
			cents[last]++
		}
		i--
		if i < 0 {
			i = last - 1
		}
	}
}

// PlanStage returns the planned rows for a leaf stage. A nil result means
// the stage is unscheduled or has a non-positive total and must own no
// planned rows.
func PlanStage(s Stage) []MonthlyValue {
	period, ok := s.Schedule()
	if !ok {
		return nil
	}
	allocs := Distribute(period, s.TotalValue)
	if len(allocs) == 0 {
		return nil
	}
	rows := make([]MonthlyValue, len(allocs))
	for i, a := range allocs {
		rows[i] = MonthlyValue{
			StageID:   s.ID,
			MonthKey:  a.Month.Key(),
			Value:     a.Value,
			ValueType: ValuePlanned,
		}
	}
	return rows
}

// =============================================================================
// DISTRIBUTOR - Applies plans to the Monthly Value Store
// =============================================================================

// Distributor recomputes planned rows from the current stage snapshot.
type Distributor struct {
	stages StageStore
	values MonthlyValueStore
	logger *slog.Logger
}

func NewDistributor(stages StageStore, values MonthlyValueStore, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{
		stages: stages,
		values: values,
		logger: logger.With("component", "distributor"),
	}
}

// DistributionResult describes one stage recompute.
type DistributionResult struct {
	StageID StageID
	Rows    []MonthlyValue // rows now stored; empty when cleared
	Cleared bool           // stage owns no planned rows after the recompute
}

// Recompute replaces the planned rows of one stage. Parent stages and
// unscheduled or zero-total leaves end up with no planned rows.
func (d *Distributor) Recompute(ctx context.Context, id StageID) (DistributionResult, error) {
	all, err := d.stages.ListStages(ctx)
	if err != nil {
		return DistributionResult{}, &generic.StoreError{Op: "list_stages", Err: err}
	}
	h := NewHierarchy(all)
	stage, ok := h.Stage(id)
	if !ok {
		return DistributionResult{}, fmt.Errorf("%w: %s", generic.ErrStageNotFound, id)
	}
	return d.apply(ctx, h, stage)
}

func (d *Distributor) apply(ctx context.Context, h *Hierarchy, stage Stage) (DistributionResult, error) {
	var rows []MonthlyValue
	if h.IsLeaf(stage.ID) {
		rows = PlanStage(stage)
	}
	if err := d.replace(ctx, stage.ID, rows); err != nil {
		return DistributionResult{}, err
	}
	d.logger.Debug("planned rows replaced", "stage_id", stage.ID, "rows", len(rows))
	return DistributionResult{StageID: stage.ID, Rows: rows, Cleared: len(rows) == 0}, nil
}

// replace deletes every planned row of the stage and inserts rows. With a
// transactional store both writes commit together.
func (d *Distributor) replace(ctx context.Context, id StageID, rows []MonthlyValue) error {
	write := func(s MonthlyValueStore) error {
		if err := s.DeletePlanned(ctx, id); err != nil {
			return &generic.StoreError{Op: "delete_planned", StageID: string(id), Err: err}
		}
		if len(rows) == 0 {
			return nil
		}
		if err := s.InsertPlanned(ctx, rows); err != nil {
			return &generic.StoreError{Op: "insert_planned", StageID: string(id), Err: err}
		}
		return nil
	}
	if tx, ok := d.values.(TxMonthlyValueStore); ok {
		return tx.WithTx(ctx, write)
	}
	return write(d.values)
}

// SweepStats summarizes a full re-distribution.
type SweepStats struct {
	Planned int // leaves that own planned rows
	Cleared int // stages left without planned rows
	Orphans int // stage ids with rows but no stage
}

// RecomputeAll re-distributes every stage. Stages that gained children lose
// their planned rows, as do rows whose stage no longer exists.
func (d *Distributor) RecomputeAll(ctx context.Context) (SweepStats, error) {
	all, err := d.stages.ListStages(ctx)
	if err != nil {
		return SweepStats{}, &generic.StoreError{Op: "list_stages", Err: err}
	}
	h := NewHierarchy(all)

	var stats SweepStats
	for _, s := range all {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		res, err := d.apply(ctx, h, s)
		if err != nil {
			return stats, err
		}
		if res.Cleared {
			stats.Cleared++
		} else {
			stats.Planned++
		}
	}

	existing, err := d.values.ListMonthlyValues(ctx)
	if err != nil {
		return stats, &generic.StoreError{Op: "list_monthly_values", Err: err}
	}
	seen := make(map[StageID]bool)
	for _, v := range existing {
		if v.ValueType != ValuePlanned || h.Contains(v.StageID) || seen[v.StageID] {
			continue
		}
		seen[v.StageID] = true
		if err := d.replace(ctx, v.StageID, nil); err != nil {
			return stats, err
		}
		stats.Orphans++
	}

	d.logger.Info("planned sweep complete",
		"planned", stats.Planned, "cleared", stats.Cleared, "orphans", stats.Orphans)
	return stats, nil
}

// Forget removes a deleted stage's planned rows.
func (d *Distributor) Forget(ctx context.Context, id StageID) error {
	return d.replace(ctx, id, nil)
}
