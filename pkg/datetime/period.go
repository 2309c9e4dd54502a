// Package datetime provides calendar period utilities for depreciation
// schedules.
package datetime

import (
	"fmt"
	"time"

	"github.com/iwvelando/capex-depreciation/pkg/constants"
)

const (
	// DateTimeLayout is the format used for monthly periods.
	DateTimeLayout = constants.DateTimeLayout

	// YearLayout is the format used for yearly periods.
	YearLayout = constants.YearLayout
)

// Period identifies a calendar month (Month 1..12) or a whole calendar year
// (Month 0).
type Period struct {
	Year  int
	Month int
}

// Monthly returns the period for the given year and month.
func Monthly(year, month int) Period {
	return Period{Year: year, Month: month}
}

// Yearly returns the whole-year period for the given year.
func Yearly(year int) Period {
	return Period{Year: year}
}

// IsYearly reports whether the period covers a whole year.
func (p Period) IsYearly() bool {
	return p.Month == 0
}

// Valid reports whether the period has a positive year and a month in 0..12.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 0 && p.Month <= constants.MonthsPerYear
}

// monthOrFirst treats a whole-year period as starting in January for ordering.
func (p Period) monthOrFirst() int {
	if p.Month == 0 {
		return 1
	}
	return p.Month
}

// Compare returns -1, 0 or 1 depending on whether p sorts before, equal to or
// after other. Whole-year periods sort as January of that year.
func (p Period) Compare(other Period) int {
	switch {
	case p.Year < other.Year:
		return -1
	case p.Year > other.Year:
		return 1
	}
	pm, om := p.monthOrFirst(), other.monthOrFirst()
	switch {
	case pm < om:
		return -1
	case pm > om:
		return 1
	}
	return 0
}

// Before reports whether p sorts strictly before other.
func (p Period) Before(other Period) bool {
	return p.Compare(other) < 0
}

// Next returns the following period at the same granularity.
func (p Period) Next() Period {
	if p.IsYearly() {
		return Period{Year: p.Year + 1}
	}
	if p.Month == constants.MonthsPerYear {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Time returns the first instant of the period in UTC.
func (p Period) Time() time.Time {
	return time.Date(p.Year, time.Month(p.monthOrFirst()), 1, 0, 0, 0, 0, time.UTC)
}

// String renders the period as YYYY-MM, or YYYY for whole-year periods.
func (p Period) String() string {
	if p.IsYearly() {
		return p.Time().Format(YearLayout)
	}
	return p.Time().Format(DateTimeLayout)
}

// ParsePeriod parses a YYYY-MM or YYYY string.
func ParsePeriod(value string) (Period, error) {
	if t, err := time.Parse(DateTimeLayout, value); err == nil {
		return Period{Year: t.Year(), Month: int(t.Month())}, nil
	}
	t, err := time.Parse(YearLayout, value)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: expected %s or %s", value, DateTimeLayout, YearLayout)
	}
	return Period{Year: t.Year()}, nil
}

// MustParsePeriod parses a period and panics on error.
// This is intended for use in tests where the string is known to be valid.
func MustParsePeriod(value string) Period {
	p, err := ParsePeriod(value)
	if err != nil {
		panic(err)
	}
	return p
}
