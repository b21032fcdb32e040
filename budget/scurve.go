/*
scurve.go - Cumulative planned-vs-actual curve

PURPOSE:
  BuildSCurve turns the stage snapshot and every stored monthly value into
  a gap-filled, chronological series of monthly and cumulative planned and
  actual totals, with the running deviation (actual - planned).

FILTER PIPELINE (per row, in this order):
  1. Orphan:     stage id not in the snapshot          -> dropped
  2. Key format: month key not strict YYYY-MM          -> dropped, WARN logged
  3. Leaf:       owning stage currently has children   -> dropped
  4. Type:       value type neither planned nor actual -> dropped

  None of these are errors. Each drop is counted in Diagnostics.

STATES:
  no-leaves  The snapshot has no leaf. Values are not even looked at.
  no-values  Leaves exist but no row survives the filters.
  ok         Points holds one entry per month in [min, max] of the
             surviving rows, including months with no rows at all.

ARITHMETIC:
  Sums run on integer cents and are converted back to amounts only when a
  point is emitted.

This function is pure apart from the warning log.
*/
package budget

import (
	"log/slog"

	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// OUTPUT TYPES
// =============================================================================

type CurveStatus string

const (
	CurveOK       CurveStatus = "ok"
	CurveNoLeaves CurveStatus = "no-leaves"
	CurveNoValues CurveStatus = "no-values"
)

// CurvePoint is one month of the series.
type CurvePoint struct {
	MonthKey            string
	Label               string
	PlannedMonthly      generic.Amount
	ActualMonthly       generic.Amount
	PlannedCumulative   generic.Amount
	ActualCumulative    generic.Amount
	DeviationCumulative generic.Amount // negative: behind plan
}

// Diagnostics counts rows dropped at each filter step.
type Diagnostics struct {
	Rows          int
	Orphans       int
	MalformedKeys int
	NonLeaf       int
	UnknownType   int
	Used          int
}

type SCurve struct {
	Status      CurveStatus
	Points      []CurvePoint // nil unless Status is CurveOK
	Diagnostics Diagnostics
}

// Last returns the final point of an ok curve.
func (c SCurve) Last() (CurvePoint, bool) {
	if len(c.Points) == 0 {
		return CurvePoint{}, false
	}
	return c.Points[len(c.Points)-1], true
}

// =============================================================================
// BUILDER
// =============================================================================

type monthTotals struct {
	planned int64
	actual  int64
}

// BuildSCurve builds the curve. A nil logger uses slog.Default.
func BuildSCurve(stages []Stage, values []MonthlyValue, logger *slog.Logger) SCurve {
	if logger == nil {
		logger = slog.Default()
	}

	h := NewHierarchy(stages)
	if len(h.Leaves()) == 0 {
		return SCurve{Status: CurveNoLeaves}
	}

	diag := Diagnostics{Rows: len(values)}
	totals := make(map[generic.Month]*monthTotals)
	var first, last generic.Month

	for _, v := range values {
		if !h.Contains(v.StageID) {
			diag.Orphans++
			continue
		}
		month, err := generic.ParseMonthKey(v.MonthKey)
		if err != nil {
			diag.MalformedKeys++
			logger.Warn("skipping monthly value with malformed month key",
				"month_key", v.MonthKey, "stage_id", v.StageID)
			continue
		}
		if !h.IsLeaf(v.StageID) {
			diag.NonLeaf++
			continue
		}
		if !v.ValueType.Valid() {
			diag.UnknownType++
			continue
		}

		if diag.Used == 0 || month.Before(first) {
			first = month
		}
		if diag.Used == 0 || month.After(last) {
			last = month
		}
		diag.Used++

		t := totals[month]
		if t == nil {
			t = &monthTotals{}
			totals[month] = t
		}
		if v.ValueType == ValuePlanned {
			t.planned += v.Value.Cents()
		} else {
			t.actual += v.Value.Cents()
		}
	}

	if diag.Used == 0 {
		return SCurve{Status: CurveNoValues, Diagnostics: diag}
	}

	span := generic.MonthSpan(first, last)
	points := make([]CurvePoint, 0, len(span))
	var cumPlanned, cumActual int64
	for _, m := range span {
		var t monthTotals
		if mt := totals[m]; mt != nil {
			t = *mt
		}
		cumPlanned += t.planned
		cumActual += t.actual
		points = append(points, CurvePoint{
			MonthKey:            m.Key(),
			Label:               m.Label(),
			PlannedMonthly:      generic.AmountFromCents(t.planned),
			ActualMonthly:       generic.AmountFromCents(t.actual),
			PlannedCumulative:   generic.AmountFromCents(cumPlanned),
			ActualCumulative:    generic.AmountFromCents(cumActual),
			DeviationCumulative: generic.AmountFromCents(cumActual - cumPlanned),
		})
	}

	return SCurve{Status: CurveOK, Points: points, Diagnostics: diag}
}
