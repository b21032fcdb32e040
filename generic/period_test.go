package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestPeriod_Days_Inclusive(t *testing.T) {
	p := generic.Period{Start: date(2024, time.January, 15), End: date(2024, time.March, 10)}
	if got := p.Days(); got != 56 {
		t.Errorf("expected 56 days, got %d", got)
	}

	single := generic.Period{Start: date(2024, time.May, 2), End: date(2024, time.May, 2)}
	if got := single.Days(); got != 1 {
		t.Errorf("single-day period should count 1 day, got %d", got)
	}
}

func TestPeriod_MonthSlices_LeapYear(t *testing.T) {
	// GIVEN: 2024-01-15 .. 2024-03-10 (2024 is a leap year)
	// WHEN: Partitioning into calendar months
	// THEN: Jan=17, Feb=29, Mar=10

	p := generic.Period{Start: date(2024, time.January, 15), End: date(2024, time.March, 10)}
	slices := p.MonthSlices()

	if len(slices) != 3 {
		t.Fatalf("expected 3 month slices, got %d", len(slices))
	}

	expected := []struct {
		key  string
		days int
	}{
		{"2024-01", 17},
		{"2024-02", 29},
		{"2024-03", 10},
	}
	total := 0
	for i, e := range expected {
		if slices[i].Month.Key() != e.key {
			t.Errorf("slice %d: expected month %s, got %s", i, e.key, slices[i].Month.Key())
		}
		if slices[i].Days != e.days {
			t.Errorf("slice %d: expected %d days, got %d", i, e.days, slices[i].Days)
		}
		total += slices[i].Days
	}
	if total != p.Days() {
		t.Errorf("slice days %d should sum to period days %d", total, p.Days())
	}
}

func TestPeriod_MonthSlices_AcrossYearBoundary(t *testing.T) {
	p := generic.Period{Start: date(2023, time.December, 30), End: date(2024, time.January, 2)}
	slices := p.MonthSlices()

	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}
	if slices[0].Month.Key() != "2023-12" || slices[0].Days != 2 {
		t.Errorf("unexpected first slice %+v", slices[0])
	}
	if slices[1].Month.Key() != "2024-01" || slices[1].Days != 2 {
		t.Errorf("unexpected second slice %+v", slices[1])
	}
}

func TestPeriod_Days_MultiCentury(t *testing.T) {
	// GIVEN: Ranges longer than a time.Duration can hold (~292 years)
	// WHEN: Counting days
	// THEN: Days() agrees with the month partition

	tests := []struct {
		name string
		p    generic.Period
		days int
	}{
		{"1700-2100", generic.Period{Start: date(1700, time.January, 1), End: date(2100, time.December, 31)}, 146462},
		{"1800-2200", generic.Period{Start: date(1800, time.January, 1), End: date(2200, time.December, 31)}, 146462},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := 0
			for _, s := range tt.p.MonthSlices() {
				total += s.Days
			}
			if got := tt.p.Days(); got != total {
				t.Errorf("Days() = %d, month slices sum to %d", got, total)
			}
			if total != tt.days {
				t.Errorf("expected %d days, got %d", tt.days, total)
			}
		})
	}
}

func TestPeriod_MonthSlices_Inverted(t *testing.T) {
	p := generic.Period{Start: date(2024, time.March, 1), End: date(2024, time.February, 1)}
	if slices := p.MonthSlices(); slices != nil {
		t.Errorf("inverted period should have no slices, got %v", slices)
	}
}

func TestNewPeriod_RejectsInverted(t *testing.T) {
	_, err := generic.NewPeriod(date(2024, time.March, 2), date(2024, time.March, 1))
	if !errors.Is(err, generic.ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestPeriod_Overlap(t *testing.T) {
	a := generic.Period{Start: date(2024, time.January, 10), End: date(2024, time.January, 20)}
	b := generic.Period{Start: date(2024, time.January, 15), End: date(2024, time.February, 5)}

	got, ok := a.Overlap(b)
	if !ok {
		t.Fatal("expected overlap")
	}
	if got.String() != "[2024-01-15, 2024-01-20]" {
		t.Errorf("unexpected overlap %s", got)
	}

	c := generic.Period{Start: date(2024, time.March, 1), End: date(2024, time.March, 2)}
	if _, ok := a.Overlap(c); ok {
		t.Error("disjoint periods should not overlap")
	}
}

// =============================================================================
// MONTH KEY TESTS
// =============================================================================

func TestParseMonthKey_Strict(t *testing.T) {
	valid := []string{"2024-01", "2024-12", "1999-09"}
	for _, k := range valid {
		if _, err := generic.ParseMonthKey(k); err != nil {
			t.Errorf("%q should be valid: %v", k, err)
		}
	}

	invalid := []string{"2024-13", "2024-00", "2024-1", "24-01", "2024/01", "2024-01-01", " 2024-01", ""}
	for _, k := range invalid {
		_, err := generic.ParseMonthKey(k)
		if !errors.Is(err, generic.ErrInvalidMonthKey) {
			t.Errorf("%q should be rejected with ErrInvalidMonthKey, got %v", k, err)
		}
		var mkErr *generic.MonthKeyError
		if !errors.As(err, &mkErr) || mkErr.Key != k {
			t.Errorf("%q: expected MonthKeyError naming the key, got %v", k, err)
		}
	}
}

func TestMonth_KeyRoundTrip(t *testing.T) {
	m := generic.NewMonth(2024, time.February)
	if m.Key() != "2024-02" {
		t.Errorf("expected 2024-02, got %s", m.Key())
	}
	if m.Label() != "Feb 2024" {
		t.Errorf("expected label Feb 2024, got %s", m.Label())
	}
	if m.End().Day() != 29 {
		t.Errorf("Feb 2024 should end on the 29th, got %d", m.End().Day())
	}
}

func TestMonthSpan_GapFilledAndChronological(t *testing.T) {
	span := generic.MonthSpan(generic.NewMonth(2023, time.November), generic.NewMonth(2024, time.February))

	keys := make([]string, len(span))
	for i, m := range span {
		keys[i] = m.Key()
	}
	expected := []string{"2023-11", "2023-12", "2024-01", "2024-02"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], keys[i])
		}
	}

	if generic.MonthSpan(generic.NewMonth(2024, time.March), generic.NewMonth(2024, time.January)) != nil {
		t.Error("inverted span should be nil")
	}
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestAmount_CentsRoundsHalfAwayFromZero(t *testing.T) {
	cases := map[string]int64{
		"10.005":  1001,
		"10.004":  1000,
		"-10.005": -1001,
		"0.01":    1,
		"1785.72": 178572,
	}
	for in, want := range cases {
		if got := generic.MustParseAmount(in).Cents(); got != want {
			t.Errorf("%s: expected %d cents, got %d", in, want, got)
		}
	}
}

func TestAmountFromCents(t *testing.T) {
	a := generic.AmountFromCents(303571)
	if a.String() != "3035.71" {
		t.Errorf("expected 3035.71, got %s", a)
	}
	if !a.Equal(generic.MustParseAmount("3035.71")) {
		t.Error("amount from cents should equal parsed decimal")
	}
}
