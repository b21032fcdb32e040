package generic

// =============================================================================
// PERIOD - Inclusive calendar-day range
// =============================================================================

// Period is an inclusive day range [Start, End].
//
// Examples:
//   - A stage scheduled 2024-01-15 .. 2024-03-10 (56 days)
//   - A calendar month: Jan 1 .. Jan 31
//   - A point-in-time fee: Start == End (1 day)
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns the inclusive day count. It is <= 0 for inverted periods.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Overlap returns the intersection of two periods.
func (p Period) Overlap(other Period) (Period, bool) {
	start := MaxTime(p.Start, other.Start)
	end := MinTime(p.End, other.End)
	if end.Before(start) {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// MonthSlice is the part of a period that falls inside one calendar month.
type MonthSlice struct {
	Month Month
	Days  int
}

// MonthSlices partitions the period into the calendar months it touches,
// in chronological order, with the inclusive day count of each overlap.
// The day counts always sum to p.Days().
func (p Period) MonthSlices() []MonthSlice {
	if p.End.Before(p.Start) {
		return nil
	}
	var slices []MonthSlice
	for _, m := range MonthSpan(MonthOf(p.Start), MonthOf(p.End)) {
		overlap, ok := p.Overlap(m.Period())
		if !ok {
			continue
		}
		slices = append(slices, MonthSlice{Month: m, Days: overlap.Days()})
	}
	return slices
}
