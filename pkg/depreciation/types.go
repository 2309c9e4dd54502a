// Package depreciation computes depreciation schedules for capital
// investment projects.
//
// The flow is Resolve (method parameters to a Method), BuildTimeline
// (investment events to a gapless sequence of PeriodSlots) and
// Calculator.Calculate (slots to Records).
package depreciation

import (
	"github.com/iwvelando/capex-depreciation/pkg/datetime"
	"github.com/shopspring/decimal"
)

// Kind names a depreciation method.
type Kind string

const (
	// KindPercentage is declining balance: each month is charged a fixed
	// share of the remaining book value.
	KindPercentage Kind = "percentage"

	// KindYears is straight line: each year is charged a constant amount
	// until the asset reaches zero.
	KindYears Kind = "years"
)

// Granularity is the length of one timeline slot.
type Granularity int

const (
	// Monthly slots are used by the percentage method.
	Monthly Granularity = iota
	// Yearly slots are used by the years method.
	Yearly
)

func (g Granularity) String() string {
	if g == Yearly {
		return "yearly"
	}
	return "monthly"
}

// Granularity returns the slot length the method is calculated on.
func (k Kind) Granularity() Granularity {
	if k == KindYears {
		return Yearly
	}
	return Monthly
}

// StartMarker is the calendar point at which depreciation of everything
// invested up to and including it begins.
type StartMarker struct {
	Year  int
	Month int
}

// InvestmentEvent is a single investment booked against a project.
type InvestmentEvent struct {
	Year   int
	Month  int // 0 when the investment has no month
	Amount decimal.Decimal
	Start  *StartMarker
}

// Period returns the calendar month the event lands in, defaulting to January.
func (e InvestmentEvent) Period() datetime.Period {
	month := e.Month
	if month == 0 {
		month = 1
	}
	return datetime.Monthly(e.Year, month)
}

// PeriodSlot is one step of a timeline with the net amount invested in it.
type PeriodSlot struct {
	Period datetime.Period
	Amount decimal.Decimal
}

// Record is the depreciation outcome for one period.
type Record struct {
	Period    datetime.Period
	Base      decimal.Decimal
	Charge    decimal.Decimal
	Remaining decimal.Decimal
}
