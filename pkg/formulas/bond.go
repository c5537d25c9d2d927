// Package formulas holds pure fixed-income math on plain float slices.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DiscountFactors returns (1+y)^-i for i = 0..n-1
func DiscountFactors(periodicYield float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}

	factors := make([]float64, n)
	base := 1 + periodicYield
	for i := range factors {
		factors[i] = 1 / math.Pow(base, float64(i))
	}
	return factors
}

// DiscountedSum discounts each amount by its index and sums the result.
// amounts[i] is the cash flow at period i, so amounts[0] is undiscounted.
//
// For a schedule that starts with the purchase outflow this is the net present
// value, which is zero when the price is fair.
func DiscountedSum(amounts []float64, periodicYield float64) float64 {
	if len(amounts) == 0 {
		return 0
	}
	return floats.Dot(amounts, DiscountFactors(periodicYield, len(amounts)))
}

// presentValues discounts receipts where receipts[k] is paid at period k+1
func presentValues(receipts []float64, periodicYield float64) []float64 {
	pv := make([]float64, len(receipts))
	base := 1 + periodicYield
	for k, amount := range receipts {
		pv[k] = amount / math.Pow(base, float64(k+1))
	}
	return pv
}

// CurrentYield returns annual coupon income as a percentage of price
func CurrentYield(annualCoupon, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return annualCoupon / price * 100
}

// MacaulayDuration returns the PV-weighted average time to receipt, in years.
//
// Args:
//   - receipts: Cash received at periods 1..n (receipts[0] is period 1)
//   - periodicYield: Yield per period as a decimal
//   - frequency: Periods per year
func MacaulayDuration(receipts []float64, periodicYield float64, frequency int) float64 {
	if len(receipts) == 0 || frequency <= 0 {
		return 0
	}

	pv := presentValues(receipts, periodicYield)
	total := floats.Sum(pv)
	if total == 0 {
		return 0
	}

	times := make([]float64, len(receipts))
	for k := range times {
		times[k] = float64(k + 1)
	}

	return floats.Dot(times, pv) / total / float64(frequency)
}

// ModifiedDuration converts Macaulay duration into price sensitivity per unit of annual yield
func ModifiedDuration(macaulay, periodicYield float64) float64 {
	base := 1 + periodicYield
	if base == 0 {
		return 0
	}
	return macaulay / base
}

// Convexity returns the second-order price sensitivity, in years squared.
//
// Formula: Σ t(t+1)·PV_t / ((1+y)² · Σ PV_t) / frequency²
func Convexity(receipts []float64, periodicYield float64, frequency int) float64 {
	if len(receipts) == 0 || frequency <= 0 {
		return 0
	}

	base := 1 + periodicYield
	if base == 0 {
		return 0
	}

	pv := presentValues(receipts, periodicYield)
	total := floats.Sum(pv)
	if total == 0 {
		return 0
	}

	weights := make([]float64, len(receipts))
	for k := range weights {
		t := float64(k + 1)
		weights[k] = t * (t + 1)
	}

	f := float64(frequency)
	return floats.Dot(weights, pv) / (base * base * total) / (f * f)
}
