package generic

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// =============================================================================
// MONTH - The time axis of every distribution and curve
// =============================================================================

// Month identifies a calendar month. Its canonical key is "YYYY-MM".
type Month struct {
	Year  int
	Month time.Month
}

// monthKeyPattern is strict: four digits, a dash, and 01..12. Keys such as
// "2024-1", "2024-13" or "24-01" are rejected rather than coerced.
var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func NewMonth(year int, month time.Month) Month {
	return Month{Year: year, Month: month}
}

// MonthOf returns the month containing tp.
func MonthOf(tp TimePoint) Month {
	return Month{Year: tp.Year(), Month: tp.Month()}
}

// IsValidMonthKey reports whether key matches the strict YYYY-MM pattern.
func IsValidMonthKey(key string) bool {
	return monthKeyPattern.MatchString(key)
}

// ParseMonthKey parses a strict YYYY-MM key.
func ParseMonthKey(key string) (Month, error) {
	if !IsValidMonthKey(key) {
		return Month{}, &MonthKeyError{Key: key}
	}
	year, _ := strconv.Atoi(key[:4])
	month, _ := strconv.Atoi(key[5:])
	return Month{Year: year, Month: time.Month(month)}, nil
}

func MustParseMonthKey(key string) Month {
	m, err := ParseMonthKey(key)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Month) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) String() string { return m.Key() }

// Label is the short display form used by chart and table surfaces.
func (m Month) Label() string {
	return m.Start().Time.Format("Jan 2006")
}

func (m Month) Start() TimePoint { return StartOfMonth(m.Year, m.Month) }
func (m Month) End() TimePoint   { return EndOfMonth(m.Year, m.Month) }

// Period returns the inclusive day range of the month.
func (m Month) Period() Period {
	return Period{Start: m.Start(), End: m.End()}
}

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

func (m Month) Before(other Month) bool { return m.index() < other.index() }
func (m Month) After(other Month) bool  { return m.index() > other.index() }
func (m Month) IsZero() bool            { return m.Year == 0 && m.Month == 0 }

// MonthSpan returns every month in [from, to], chronologically. Returns nil
// when to is before from.
func MonthSpan(from, to Month) []Month {
	if to.Before(from) {
		return nil
	}
	months := make([]Month, 0, to.index()-from.index()+1)
	for m := from; !m.After(to); m = m.Next() {
		months = append(months, m)
	}
	return months
}
