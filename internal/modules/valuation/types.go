// Package valuation prices fixed-coupon bonds and builds their cash-flow schedules.
package valuation

import "errors"

// DefaultParTolerance is the price distance from face value still treated as par
const DefaultParTolerance = 0.01

// MaxYears is the longest term accepted for a valuation
const MaxYears = 100

// MaxPeriods bounds the pricing and schedule loops: MaxYears at monthly payments
const MaxPeriods = MaxYears * 12

var (
	// ErrDomain is returned when the periodic yield makes the discount factor undefined
	ErrDomain = errors.New("discount factor undefined")

	// ErrTermTooLong is returned when years × frequency exceeds MaxPeriods
	ErrTermTooLong = errors.New("term exceeds the supported number of payment periods")
)

// BondParameters holds the inputs of a single valuation.
// CouponRate and YTM are annual percentages (6 means 6%).
type BondParameters struct {
	FaceValue  float64 `json:"face_value" msgpack:"face_value" validate:"gt=0"`
	CouponRate float64 `json:"coupon_rate" msgpack:"coupon_rate" validate:"gte=0"`
	YTM        float64 `json:"ytm" msgpack:"ytm"`
	Years      float64 `json:"years" msgpack:"years" validate:"gt=0,lte=100"`
	Frequency  int     `json:"frequency" msgpack:"frequency" validate:"oneof=1 2 4 12"`
}

// PriceComponents is the output of the pricing function
type PriceComponents struct {
	Price          float64 `json:"price"`
	PVCoupons      float64 `json:"pv_coupons"`
	PVFaceValue    float64 `json:"pv_face_value"`
	PeriodicCoupon float64 `json:"periodic_coupon"`
	PeriodicYield  float64 `json:"periodic_yield"`
	Periods        int     `json:"periods"`
}

// CashFlow is one entry of the payment schedule.
// Period 0 is the purchase outflow.
type CashFlow struct {
	Period           int     `json:"period" msgpack:"period"`
	YearLabel        float64 `json:"year_label" msgpack:"year_label"`
	CouponPayment    float64 `json:"coupon_payment" msgpack:"coupon_payment"`
	PrincipalPayment float64 `json:"principal_payment" msgpack:"principal_payment"`
	TotalCashFlow    float64 `json:"total_cash_flow" msgpack:"total_cash_flow"`
}

// BondType is the par/premium/discount verdict
type BondType string

const (
	BondTypePar      BondType = "par"
	BondTypePremium  BondType = "premium"
	BondTypeDiscount BondType = "discount"
)

// BondClassification describes where the price sits relative to face value
type BondClassification struct {
	Type        BondType `json:"type" msgpack:"type"`
	Description string   `json:"description" msgpack:"description"`
	Difference  float64  `json:"difference" msgpack:"difference"`
}

// Analytics holds the risk measures derived from the priced schedule.
// Durations and convexity are expressed in years.
type Analytics struct {
	CurrentYield     float64 `json:"current_yield" msgpack:"current_yield"`
	MacaulayDuration float64 `json:"macaulay_duration" msgpack:"macaulay_duration"`
	ModifiedDuration float64 `json:"modified_duration" msgpack:"modified_duration"`
	Convexity        float64 `json:"convexity" msgpack:"convexity"`
}

// ValuationResult is the single object handed to rendering collaborators
type ValuationResult struct {
	BondPrice      float64            `json:"bond_price" msgpack:"bond_price"`
	PVCoupons      float64            `json:"pv_coupons" msgpack:"pv_coupons"`
	PVFaceValue    float64            `json:"pv_face_value" msgpack:"pv_face_value"`
	PeriodicCoupon float64            `json:"periodic_coupon" msgpack:"periodic_coupon"`
	PeriodicYield  float64            `json:"periodic_yield" msgpack:"periodic_yield"`
	Periods        int                `json:"periods" msgpack:"periods"`
	CashFlows      []CashFlow         `json:"cash_flows" msgpack:"cash_flows"`
	Classification BondClassification `json:"classification" msgpack:"classification"`
	Analytics      Analytics          `json:"analytics" msgpack:"analytics"`
}

// Clone returns a deep copy so callers can hand results across goroutines
func (r *ValuationResult) Clone() *ValuationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.CashFlows = make([]CashFlow, len(r.CashFlows))
	copy(out.CashFlows, r.CashFlows)
	return &out
}
