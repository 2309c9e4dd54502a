package depreciation

import (
	"fmt"
	"sort"

	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"github.com/iwvelando/capex-depreciation/pkg/datetime"
	"github.com/shopspring/decimal"
)

// BuildTimeline turns a project's investment events into a gapless, strictly
// ascending sequence of slots running from the depreciation start through the
// end of horizonYear.
//
// Everything invested before the earliest start marker is carried into the
// opening slot together with the marker event's own amount. Later markers
// are ignored. Later events land
// in their own slot; events whose slot would precede the opening point are
// folded into it. Events after the horizon are dropped.
func BuildTimeline(events []InvestmentEvent, horizonYear int, granularity Granularity) ([]PeriodSlot, error) {
	for i, e := range events {
		if err := validateEvent(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	sorted := make([]InvestmentEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period().Before(sorted[j].Period())
	})

	startIdx := -1
	for i, e := range sorted {
		if e.Start != nil {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, ErrMissingDepreciationStart
	}

	marker := sorted[startIdx].Start
	opening := slotPeriod(marker.Year, marker.Month, granularity)
	if marker.Year > horizonYear {
		return nil, fmt.Errorf("%w: depreciation starts in %d after horizon %d", ErrDataShape, marker.Year, horizonYear)
	}

	amounts := make(map[datetime.Period]decimal.Decimal)
	pushed := decimal.Zero
	for _, e := range sorted[:startIdx+1] {
		pushed = pushed.Add(e.Amount)
	}
	amounts[opening] = pushed

	for _, e := range sorted[startIdx+1:] {
		if e.Year > horizonYear {
			continue
		}
		p := slotPeriod(e.Year, e.Month, granularity)
		if p.Before(opening) {
			p = opening
		}
		amounts[p] = amounts[p].Add(e.Amount)
	}

	last := datetime.Monthly(horizonYear, constants.MonthsPerYear)
	if granularity == Yearly {
		last = datetime.Yearly(horizonYear)
	}

	var slots []PeriodSlot
	for p := opening; !last.Before(p); p = p.Next() {
		slots = append(slots, PeriodSlot{Period: p, Amount: amounts[p]})
	}
	return slots, nil
}

func validateEvent(e InvestmentEvent) error {
	if p := (datetime.Period{Year: e.Year, Month: e.Month}); !p.Valid() {
		return fmt.Errorf("%w: period %d-%d", ErrDataShape, e.Year, e.Month)
	}
	if e.Start != nil {
		// a start always names a month
		if p := datetime.Monthly(e.Start.Year, e.Start.Month); !p.Valid() || p.IsYearly() {
			return fmt.Errorf("%w: start %d-%d", ErrDataShape, e.Start.Year, e.Start.Month)
		}
	}
	return nil
}

func slotPeriod(year, month int, granularity Granularity) datetime.Period {
	if granularity == Yearly {
		return datetime.Yearly(year)
	}
	if month == 0 {
		month = 1
	}
	return datetime.Monthly(year, month)
}
