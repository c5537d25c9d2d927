package valuation

import "github.com/shopspring/decimal"

// Summary is the display-ready view of a result, amounts fixed to two decimals.
// The underlying result keeps full precision.
type Summary struct {
	BondPrice      string   `json:"bond_price"`
	PVCoupons      string   `json:"pv_coupons"`
	PVFaceValue    string   `json:"pv_face_value"`
	PeriodicCoupon string   `json:"periodic_coupon"`
	Classification BondType `json:"classification"`
	Description    string   `json:"description"`
	Difference     string   `json:"difference"`
	Periods        int      `json:"periods"`
}

// FormatAmount renders a currency amount with two decimals
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatPercent renders a percentage with the given number of decimals
func FormatPercent(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places) + "%"
}

// Summarize builds the display view of a result. A nil result yields nil.
func Summarize(r *ValuationResult) *Summary {
	if r == nil {
		return nil
	}
	return &Summary{
		BondPrice:      FormatAmount(r.BondPrice),
		PVCoupons:      FormatAmount(r.PVCoupons),
		PVFaceValue:    FormatAmount(r.PVFaceValue),
		PeriodicCoupon: FormatAmount(r.PeriodicCoupon),
		Classification: r.Classification.Type,
		Description:    r.Classification.Description,
		Difference:     FormatAmount(r.Classification.Difference),
		Periods:        r.Periods,
	}
}
