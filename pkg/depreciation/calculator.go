package depreciation

import (
	"fmt"

	"github.com/iwvelando/capex-depreciation/pkg/mathutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Calculator produces depreciation records from a prepared timeline.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a new calculator instance
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{logger: logger}
}

// Calculate returns one record per timeline slot.
func (c *Calculator) Calculate(timeline []PeriodSlot, method Method) ([]Record, error) {
	if err := validateTimeline(timeline, method.Kind.Granularity()); err != nil {
		return nil, err
	}

	switch method.Kind {
	case KindPercentage:
		return c.decliningBalance(timeline, method.Rate), nil
	case KindYears:
		// Resolve rejects this already; a hand-built Method can still reach it.
		if method.Duration < 1 {
			return nil, fmt.Errorf("%w: duration %d", ErrConfiguration, method.Duration)
		}
		return c.straightLine(timeline, method.Duration), nil
	default:
		return nil, fmt.Errorf("%w: unknown method kind %q", ErrConfiguration, method.Kind)
	}
}

func validateTimeline(timeline []PeriodSlot, granularity Granularity) error {
	if len(timeline) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidTimeline)
	}
	for i, slot := range timeline {
		if slot.Period.IsYearly() != (granularity == Yearly) {
			return fmt.Errorf("%w: slot %s is not %s", ErrInvalidTimeline, slot.Period, granularity)
		}
		if i > 0 && !timeline[i-1].Period.Before(slot.Period) {
			return fmt.Errorf("%w: slot %s does not follow %s", ErrInvalidTimeline, slot.Period, timeline[i-1].Period)
		}
	}
	return nil
}

// decliningBalance charges rate/12 percent of the running base every month.
// New investment is added to the base of the month it lands in.
func (c *Calculator) decliningBalance(timeline []PeriodSlot, rate decimal.Decimal) []Record {
	records := make([]Record, 0, len(timeline))
	remaining := decimal.Zero

	for _, slot := range timeline {
		base := remaining.Add(slot.Amount)
		if base.IsNegative() {
			c.logger.Warn(fmt.Sprintf("%s: negative base %s floored to zero", slot.Period, base),
				zap.String("op", "depreciation.Calculate"),
			)
			base = decimal.Zero
		}

		charge := mathutil.Round(mathutil.ApplyMonthlyPercentage(base, rate))
		remaining = mathutil.FloorZero(base.Sub(charge))

		records = append(records, Record{
			Period:    slot.Period,
			Base:      base,
			Charge:    charge,
			Remaining: remaining,
		})
	}

	c.logger.Debug(fmt.Sprintf("declining balance at %s%% over %d months", rate, len(records)),
		zap.String("op", "depreciation.Calculate"),
	)
	return records
}

// vintage is one straight-line sub-schedule opened by a year's investment.
type vintage struct {
	charge    decimal.Decimal
	remaining decimal.Decimal
	years     int
}

// straightLine depreciates each vintage by a constant yearly charge. The last
// year of a vintage's lifetime takes whatever is left so every vintage sums
// exactly to its opening base.
func (c *Calculator) straightLine(timeline []PeriodSlot, duration int) []Record {
	records := make([]Record, 0, len(timeline))
	durationDec := decimal.NewFromInt(int64(duration))
	var vintages []*vintage

	for i, slot := range timeline {
		switch {
		case i == 0 || slot.Amount.IsPositive():
			base := mathutil.FloorZero(slot.Amount)
			vintages = append(vintages, &vintage{
				charge:    mathutil.Round(base.Div(durationDec)),
				remaining: base,
			})
			c.logger.Debug(fmt.Sprintf("%s: opened vintage of %s over %d years", slot.Period, base, duration),
				zap.String("op", "depreciation.Calculate"),
			)
		case slot.Amount.IsNegative():
			c.writeDown(vintages, slot.Amount.Neg(), slot)
		}

		var record Record
		record.Period = slot.Period
		for _, v := range vintages {
			if !v.remaining.IsPositive() {
				continue
			}
			opening := v.remaining
			charge := v.charge
			if v.years+1 >= duration || charge.GreaterThan(opening) {
				charge = opening
			}
			v.remaining = opening.Sub(charge)
			v.years++

			record.Base = record.Base.Add(opening)
			record.Charge = record.Charge.Add(charge)
			record.Remaining = record.Remaining.Add(v.remaining)
		}
		records = append(records, record)
	}

	return records
}

// writeDown reduces open vintages oldest first. Anything beyond their
// combined remaining value is ignored.
func (c *Calculator) writeDown(vintages []*vintage, amount decimal.Decimal, slot PeriodSlot) {
	left := amount
	for _, v := range vintages {
		if !left.IsPositive() {
			break
		}
		cut := mathutil.Min(left, v.remaining)
		v.remaining = v.remaining.Sub(cut)
		left = left.Sub(cut)
	}
	if left.IsPositive() {
		c.logger.Warn(fmt.Sprintf("%s: write-down exceeds remaining value by %s", slot.Period, left),
			zap.String("op", "depreciation.Calculate"),
		)
	}
}
