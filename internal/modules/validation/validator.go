// Package validation checks raw bond inputs before they reach the valuation engine.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/go-playground/validator/v10"
)

// Field names accepted by the validator
const (
	FieldFaceValue  = "faceValue"
	FieldCouponRate = "couponRate"
	FieldYTM        = "ytm"
	FieldYears      = "years"
	FieldFrequency  = "frequency"

	// FieldTerm carries the cross-field years × frequency check
	FieldTerm = "term"
)

// Fields lists the input fields in display order
var Fields = []string{FieldFaceValue, FieldCouponRate, FieldYTM, FieldYears, FieldFrequency}

type fieldRule struct {
	tag     string
	message string
	integer bool

	// limit is an upper bound reported with its own message
	limit        string
	limitMessage string
}

var rules = map[string]fieldRule{
	FieldFaceValue:  {tag: "gt=0", message: "Face value must be greater than 0"},
	FieldCouponRate: {tag: "gte=0", message: "Coupon rate must be 0 or greater"},
	FieldYTM:        {message: "Yield to maturity must be a finite number"},
	FieldYears: {
		tag:          "gt=0",
		message:      "Years to maturity must be greater than 0",
		limit:        fmt.Sprintf("lte=%d", valuation.MaxYears),
		limitMessage: fmt.Sprintf("Years to maturity must be %d or less", valuation.MaxYears),
	},
	FieldFrequency: {tag: "oneof=1 2 4 12", message: "Payment frequency must be 1, 2, 4 or 12", integer: true},
}

var structFields = map[string]string{
	"FaceValue":  FieldFaceValue,
	"CouponRate": FieldCouponRate,
	"YTM":        FieldYTM,
	"Years":      FieldYears,
	"Frequency":  FieldFrequency,
}

// Validator validates single fields and whole parameter sets
type Validator struct {
	validate *validator.Validate
}

// New creates a validator
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Parse converts a raw input into a number and checks it against the field's
// constraint. The message is empty when the value is valid.
func (v *Validator) Parse(field, raw string) (float64, string) {
	rule, ok := rules[field]
	if !ok {
		return 0, fmt.Sprintf("Unknown field %q", field)
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, rule.message
	}

	if rule.integer {
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, rule.message
		}
		if err := v.validate.Var(n, rule.tag); err != nil {
			return 0, rule.message
		}
		return float64(n), ""
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, rule.message
	}
	if rule.tag != "" {
		if err := v.validate.Var(value, rule.tag); err != nil {
			return 0, rule.message
		}
	}
	if rule.limit != "" {
		if err := v.validate.Var(value, rule.limit); err != nil {
			return 0, rule.limitMessage
		}
	}
	return value, ""
}

// ValidateField returns the error message for a raw input, or "" when valid
func (v *Validator) ValidateField(field, raw string) string {
	_, msg := v.Parse(field, raw)
	return msg
}

// ValidateTerm checks that the term covers a whole, non-zero number of periods
// and no more than valuation.MaxPeriods of them
func (v *Validator) ValidateTerm(years float64, frequency int) string {
	if years <= 0 || frequency <= 0 {
		return ""
	}

	raw := years * float64(frequency)
	if !(raw <= valuation.MaxPeriods) {
		return fmt.Sprintf("Term must not exceed %d payment periods", valuation.MaxPeriods)
	}
	if valuation.PeriodCount(years, frequency) < 1 {
		return "Term must cover at least one payment period"
	}
	if math.Abs(raw-math.Round(raw)) >= 1e-9 {
		return "Years × frequency must be a whole number of payment periods"
	}
	return ""
}

// ValidateParams checks a complete parameter set and returns field → message.
// An empty map means the parameters are safe to value.
func (v *Validator) ValidateParams(params valuation.BondParameters) map[string]string {
	errs := make(map[string]string)

	if err := v.validate.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			errs[FieldTerm] = err.Error()
			return errs
		}
		for _, fe := range fieldErrs {
			name, ok := structFields[fe.StructField()]
			if !ok {
				continue
			}
			rule := rules[name]
			if rule.limitMessage != "" && fe.Tag() == "lte" {
				errs[name] = rule.limitMessage
				continue
			}
			errs[name] = rule.message
		}
	}

	if math.IsNaN(params.YTM) || math.IsInf(params.YTM, 0) {
		errs[FieldYTM] = rules[FieldYTM].message
	}

	if !HasErrors(errs) {
		if msg := v.ValidateTerm(params.Years, params.Frequency); msg != "" {
			errs[FieldTerm] = msg
		}
	}

	return errs
}

// IsKnownField reports whether field is one of Fields
func IsKnownField(field string) bool {
	_, ok := rules[field]
	return ok
}

// HasErrors reports whether any field carries an active message
func HasErrors(errs map[string]string) bool {
	for _, msg := range errs {
		if msg != "" {
			return true
		}
	}
	return false
}
