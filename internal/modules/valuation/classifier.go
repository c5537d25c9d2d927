package valuation

import "math"

// Classify compares a price with face value.
//
// Prices within tolerance of face value are par and report a zero difference,
// even when the true gap is non-zero. The price itself is never adjusted.
func Classify(bondPrice, faceValue, tolerance float64) BondClassification {
	if math.Abs(bondPrice-faceValue) < tolerance {
		return BondClassification{
			Type:        BondTypePar,
			Description: "Par bond: price equals face value",
			Difference:  0,
		}
	}

	if bondPrice > faceValue {
		return BondClassification{
			Type:        BondTypePremium,
			Description: "Premium bond: price above face value",
			Difference:  bondPrice - faceValue,
		}
	}

	return BondClassification{
		Type:        BondTypeDiscount,
		Description: "Discount bond: price below face value",
		Difference:  faceValue - bondPrice,
	}
}
