package valuation

// GenerateCashFlows builds the payment schedule for an already-priced bond.
//
// Entry 0 is the purchase outflow (-bondPrice). Entries 1..n-1 carry the coupon
// only and entry n adds the face value redemption. Price and coupon are taken as
// given so the schedule always matches the price that was actually used.
// A term Price would refuse yields nil.
func GenerateCashFlows(faceValue float64, frequency int, years, periodicCoupon, bondPrice float64) []CashFlow {
	if frequency <= 0 {
		return nil
	}

	if raw := years * float64(frequency); !(raw <= MaxPeriods) {
		return nil
	}

	periods := PeriodCount(years, frequency)
	flows := make([]CashFlow, 0, periods+1)

	for i := 0; i <= periods; i++ {
		var coupon, principal float64
		if i == 0 {
			principal = -bondPrice
		} else {
			coupon = periodicCoupon
		}
		if i == periods {
			principal += faceValue
		}

		flows = append(flows, CashFlow{
			Period:           i,
			YearLabel:        float64(i) / float64(frequency),
			CouponPayment:    coupon,
			PrincipalPayment: principal,
			TotalCashFlow:    coupon + principal,
		})
	}

	return flows
}

// Amounts returns the total cash flow of each entry in schedule order
func Amounts(flows []CashFlow) []float64 {
	out := make([]float64, len(flows))
	for i, cf := range flows {
		out[i] = cf.TotalCashFlow
	}
	return out
}
