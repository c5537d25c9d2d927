package valuation

import (
	"fmt"

	"github.com/aristath/bondcalc/pkg/formulas"
	"github.com/rs/zerolog"
)

// CalculateBondMetrics prices the bond, builds its schedule and classifies it
// using DefaultParTolerance.
//
// On error no partial result is returned.
func CalculateBondMetrics(params BondParameters) (*ValuationResult, error) {
	return calculate(params, DefaultParTolerance)
}

// Service is the configured entry point used by the session stores and handlers
type Service struct {
	tolerance float64
	log       zerolog.Logger
}

// NewService creates a valuation service.
// A non-positive tolerance falls back to DefaultParTolerance.
func NewService(tolerance float64, log zerolog.Logger) *Service {
	if tolerance <= 0 {
		tolerance = DefaultParTolerance
	}
	return &Service{
		tolerance: tolerance,
		log:       log.With().Str("service", "valuation").Logger(),
	}
}

// Tolerance returns the par tolerance the service classifies with
func (s *Service) Tolerance() float64 {
	return s.tolerance
}

// CalculateBondMetrics is the configured variant of the package-level function
func (s *Service) CalculateBondMetrics(params BondParameters) (*ValuationResult, error) {
	result, err := calculate(params, s.tolerance)
	if err != nil {
		s.log.Debug().
			Err(err).
			Float64("ytm", params.YTM).
			Int("frequency", params.Frequency).
			Msg("Valuation failed")
		return nil, err
	}

	s.log.Debug().
		Float64("bond_price", result.BondPrice).
		Str("classification", string(result.Classification.Type)).
		Int("periods", result.Periods).
		Msg("Bond valued")

	return result, nil
}

func calculate(params BondParameters, tolerance float64) (*ValuationResult, error) {
	components, err := Price(params)
	if err != nil {
		return nil, fmt.Errorf("failed to price bond: %w", err)
	}

	flows := GenerateCashFlows(
		params.FaceValue,
		params.Frequency,
		params.Years,
		components.PeriodicCoupon,
		components.Price,
	)

	classification := Classify(components.Price, params.FaceValue, tolerance)

	return &ValuationResult{
		BondPrice:      components.Price,
		PVCoupons:      components.PVCoupons,
		PVFaceValue:    components.PVFaceValue,
		PeriodicCoupon: components.PeriodicCoupon,
		PeriodicYield:  components.PeriodicYield,
		Periods:        components.Periods,
		CashFlows:      flows,
		Classification: classification,
		Analytics:      analyze(params, components, flows),
	}, nil
}

func analyze(params BondParameters, components PriceComponents, flows []CashFlow) Analytics {
	if components.Price <= 0 || len(flows) < 2 {
		return Analytics{}
	}

	receipts := Amounts(flows[1:])
	macaulay := formulas.MacaulayDuration(receipts, components.PeriodicYield, params.Frequency)

	return Analytics{
		CurrentYield:     formulas.CurrentYield(components.PeriodicCoupon*float64(params.Frequency), components.Price),
		MacaulayDuration: macaulay,
		ModifiedDuration: formulas.ModifiedDuration(macaulay, components.PeriodicYield),
		Convexity:        formulas.Convexity(receipts, components.PeriodicYield, params.Frequency),
	}
}
