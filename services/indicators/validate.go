package indicators

import (
	"fmt"
	"strings"

	"pricefeed_backend/models"
)

// Period bounds accepted for every indicator.
const (
	MinPeriod = 2
	MaxPeriod = 500
)

// Supported indicator type names.
const (
	TypeSMA       = "sma"
	TypeEMA       = "ema"
	TypeRSI       = "rsi"
	TypeMACD      = "macd"
	TypeBollinger = "bollinger"
	TypeOBV       = "obv"
)

// Params is the parameter set for an indicator computation. Unused fields are
// ignored by the indicator that does not need them.
type Params struct {
	Period       int     `json:"period"`
	FastPeriod   int     `json:"fast_period"`
	SlowPeriod   int     `json:"slow_period"`
	SignalPeriod int     `json:"signal_period"`
	StdDev       float64 `json:"std_dev"`
}

// DefaultParams returns the conventional parameter set for an indicator type.
func DefaultParams(indicatorType string) Params {
	switch strings.ToLower(indicatorType) {
	case TypeRSI:
		return Params{Period: 14}
	case TypeMACD:
		return Params{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9}
	case TypeBollinger:
		return Params{Period: 20, StdDev: 2}
	default:
		return Params{Period: 20}
	}
}

// ValidationError reports an out-of-bounds indicator parameter. It is
// returned before any computation runs; the pure functions themselves never
// validate.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Message)
}

func checkPeriod(name string, period int) error {
	if period < MinPeriod || period > MaxPeriod {
		return &ValidationError{
			Param:   name,
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinPeriod, MaxPeriod, period),
		}
	}
	return nil
}

// Validate checks params against the bounds for the given indicator type.
// A nil return means the computation may proceed.
func Validate(indicatorType string, p Params) error {
	switch strings.ToLower(indicatorType) {
	case TypeSMA, TypeEMA, TypeRSI:
		return checkPeriod("period", p.Period)
	case TypeMACD:
		if err := checkPeriod("fast_period", p.FastPeriod); err != nil {
			return err
		}
		if err := checkPeriod("slow_period", p.SlowPeriod); err != nil {
			return err
		}
		if err := checkPeriod("signal_period", p.SignalPeriod); err != nil {
			return err
		}
		if p.FastPeriod >= p.SlowPeriod {
			return &ValidationError{
				Param:   "fast_period",
				Message: fmt.Sprintf("must be less than slow_period (%d >= %d)", p.FastPeriod, p.SlowPeriod),
			}
		}
		return nil
	case TypeBollinger:
		if err := checkPeriod("period", p.Period); err != nil {
			return err
		}
		if p.StdDev <= 0 {
			return &ValidationError{Param: "std_dev", Message: "must be positive"}
		}
		return nil
	case TypeOBV:
		return nil
	default:
		return &ValidationError{Param: "type", Message: fmt.Sprintf("unknown indicator type %q", indicatorType)}
	}
}

// Compute validates params and dispatches to the matching indicator function.
// The concrete result type depends on the indicator: []IndicatorPoint for
// SMA/EMA/RSI/OBV, []MACDPoint for MACD, []BollingerPoint for Bollinger.
func Compute(indicatorType string, data []models.OHLCVPoint, p Params) (interface{}, error) {
	if err := Validate(indicatorType, p); err != nil {
		return nil, err
	}

	switch strings.ToLower(indicatorType) {
	case TypeSMA:
		return CalculateSMA(data, p.Period), nil
	case TypeEMA:
		return CalculateEMA(data, p.Period), nil
	case TypeRSI:
		return CalculateRSI(data, p.Period), nil
	case TypeMACD:
		return CalculateMACD(data, p.FastPeriod, p.SlowPeriod, p.SignalPeriod), nil
	case TypeBollinger:
		return CalculateBollingerBands(data, p.Period, p.StdDev), nil
	case TypeOBV:
		return CalculateOBV(data), nil
	default:
		// Unreachable: Validate rejects unknown types.
		return nil, &ValidationError{Param: "type", Message: indicatorType}
	}
}
