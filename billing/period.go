package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The billing cycle unit (one calendar month, "YYYY-MM")
// =============================================================================

// Period identifies one billing month. The zero value is invalid.
//
// Periods are totally ordered; carry-forward computation depends on strict
// ordering ("strictly earlier periods"), so comparisons are central here.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a "YYYY-MM" string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// MustPeriod parses a "YYYY-MM" string and panics on malformed input.
// For test fixtures and constants.
func MustPeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PeriodOf returns the period containing the given date.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether p is the (invalid) zero value.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// index collapses the period onto a single comparable integer.
func (p Period) index() int { return p.Year*12 + int(p.Month) - 1 }

// Comparison
func (p Period) Before(other Period) bool { return p.index() < other.index() }
func (p Period) After(other Period) bool  { return p.index() > other.index() }
func (p Period) Equal(other Period) bool  { return p.index() == other.index() }

// Next returns the following month.
func (p Period) Next() Period {
	t := p.Start().AddDate(0, 1, 0)
	return PeriodOf(t)
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	t := p.Start().AddDate(0, -1, 0)
	return PeriodOf(t)
}

// Start returns the first day of the period at midnight UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period at midnight UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// DueDate returns the period's due date for a configured due day.
// Due day 1 is the first of the month; values past the month's length
// clamp to the last day.
func (p Period) DueDate(dueDay int) time.Time {
	if dueDay < 1 {
		dueDay = 1
	}
	last := p.End().Day()
	if dueDay > last {
		dueDay = last
	}
	return p.Start().AddDate(0, 0, dueDay-1)
}

// =============================================================================
// PERIOD RANGE - Inclusive month range for multi-month advance payments
// =============================================================================

// PeriodRange is an inclusive [From, To] month range, as carried by payments
// that cover several months in advance.
type PeriodRange struct {
	From Period
	To   Period
}

// Contains reports whether p falls within the range (inclusive).
func (r PeriodRange) Contains(p Period) bool {
	return !p.Before(r.From) && !p.After(r.To)
}

// Valid reports whether the range is well-formed (From <= To, both set).
func (r PeriodRange) Valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && !r.To.Before(r.From)
}

func (r PeriodRange) String() string {
	return r.From.String() + ".." + r.To.String()
}
