package depreciation

import (
	"fmt"

	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"github.com/shopspring/decimal"
)

// MethodParameters is the raw method configuration stored for a project.
// HasMethod is false when the project does not reference a method at all.
type MethodParameters struct {
	HasMethod bool
	MethodID  int64
	Rate      decimal.NullDecimal
	Duration  *int
}

// Ambiguous reports whether both a rate and a duration are set.
func (p MethodParameters) Ambiguous() bool {
	return p.Rate.Valid && p.Duration != nil
}

// Method is a resolved depreciation method. Rate is meaningful for
// KindPercentage and Duration for KindYears.
type Method struct {
	Kind     Kind
	Rate     decimal.Decimal
	Duration int
}

func (m Method) String() string {
	if m.Kind == KindYears {
		return fmt.Sprintf("%s(%d)", m.Kind, m.Duration)
	}
	return fmt.Sprintf("%s(%s%%)", m.Kind, m.Rate.String())
}

var maxRate = decimal.NewFromInt(constants.MaxRatePercent)

// Resolve turns stored method parameters into a Method. A rate wins over a
// duration when both are set; callers can detect that case with Ambiguous.
func Resolve(params MethodParameters) (Method, error) {
	if !params.HasMethod {
		return Method{}, fmt.Errorf("%w: project has no depreciation method", ErrConfiguration)
	}

	if params.Rate.Valid {
		rate := params.Rate.Decimal
		if !rate.IsPositive() || rate.GreaterThan(maxRate) {
			return Method{}, fmt.Errorf("%w: rate %s%% outside (0, %d]", ErrConfiguration, rate.String(), constants.MaxRatePercent)
		}
		return Method{Kind: KindPercentage, Rate: rate}, nil
	}

	if params.Duration != nil {
		if *params.Duration < 1 {
			return Method{}, fmt.Errorf("%w: duration %d must be at least one year", ErrConfiguration, *params.Duration)
		}
		return Method{Kind: KindYears, Duration: *params.Duration}, nil
	}

	return Method{}, fmt.Errorf("%w: method %d sets neither rate nor duration", ErrConfiguration, params.MethodID)
}
