package valuation

import (
	"fmt"
	"math"
)

// periodEpsilon absorbs float noise in years*frequency (e.g. 0.1*30)
const periodEpsilon = 1e-9

// PeriodCount converts a term and frequency into a whole number of coupon periods.
// Products within periodEpsilon of an integer are rounded, everything else is truncated.
func PeriodCount(years float64, frequency int) int {
	raw := years * float64(frequency)
	if rounded := math.Round(raw); math.Abs(raw-rounded) < periodEpsilon {
		return int(rounded)
	}
	return int(math.Trunc(raw))
}

// Price computes the present value of a fixed-coupon bond.
//
//	price = Σ_{t=1..n} C / (1+y)^t + F / (1+y)^n
//
// Returns ErrDomain when the periodic yield is exactly -100% or when any
// component is not finite, and ErrTermTooLong past MaxPeriods.
func Price(params BondParameters) (PriceComponents, error) {
	if params.Frequency <= 0 {
		return PriceComponents{}, fmt.Errorf("Price: frequency must be positive, got %d", params.Frequency)
	}
	// negated so NaN and Inf terms are refused too
	if raw := params.Years * float64(params.Frequency); !(raw <= MaxPeriods) {
		return PriceComponents{}, fmt.Errorf("Price: %g years at frequency %d: %w", params.Years, params.Frequency, ErrTermTooLong)
	}

	freq := float64(params.Frequency)
	periods := PeriodCount(params.Years, params.Frequency)
	periodicCouponRate := params.CouponRate / 100 / freq
	periodicYield := params.YTM / 100 / freq
	periodicCoupon := params.FaceValue * periodicCouponRate

	base := 1 + periodicYield
	if base == 0 {
		return PriceComponents{}, fmt.Errorf("Price: periodic yield of %.4f: %w", periodicYield, ErrDomain)
	}

	var pvCoupons float64
	for t := 1; t <= periods; t++ {
		pvCoupons += periodicCoupon / math.Pow(base, float64(t))
	}
	pvFaceValue := params.FaceValue / math.Pow(base, float64(periods))

	if !isFinite(pvCoupons) || !isFinite(pvFaceValue) {
		return PriceComponents{}, fmt.Errorf("Price: non-finite present value at periodic yield %.4f: %w", periodicYield, ErrDomain)
	}

	return PriceComponents{
		Price:          pvCoupons + pvFaceValue,
		PVCoupons:      pvCoupons,
		PVFaceValue:    pvFaceValue,
		PeriodicCoupon: periodicCoupon,
		PeriodicYield:  periodicYield,
		Periods:        periods,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
