// Package ratemath provides pure rate conversion and earnings estimation
// functions. All rates are percent values (18.0 = 18%); the wire format of
// integer basis points is converted at the boundary with the helpers below.
package ratemath

import (
	"math"

	"github.com/orbit-yield/internal/errors"
)

// DefaultCompounding is the compounding frequency assumed when callers do not
// specify one (daily compounding).
const DefaultCompounding = 365

// APRToAPY converts an annual percentage rate to an annual percentage yield
// compounded n times per year.
func APRToAPY(apr float64, n int) (float64, error) {
	if apr < 0 {
		return 0, errors.NewInvalidArgumentError("apr", "must be non-negative")
	}
	if n <= 0 {
		return 0, errors.NewInvalidArgumentError("compoundingFrequency", "must be positive")
	}
	return math.Pow(1+apr/100/float64(n), float64(n))*100 - 100, nil
}

// APYToAPR converts an annual percentage yield back to the equivalent annual
// percentage rate compounded n times per year.
func APYToAPR(apy float64, n int) (float64, error) {
	if apy < 0 {
		return 0, errors.NewInvalidArgumentError("apy", "must be non-negative")
	}
	if n <= 0 {
		return 0, errors.NewInvalidArgumentError("compoundingFrequency", "must be positive")
	}
	return (math.Pow(1+apy/100, 1/float64(n)) - 1) * float64(n) * 100, nil
}

// EstimatedEarnings returns the compounded earnings on amount at the given APY
// over durationDays, assuming daily compounding.
func EstimatedEarnings(amount, apy float64, durationDays int) (float64, error) {
	if amount < 0 {
		return 0, errors.NewInvalidArgumentError("amount", "must be non-negative")
	}
	if apy < 0 {
		return 0, errors.NewInvalidArgumentError("apy", "must be non-negative")
	}
	if durationDays < 0 {
		return 0, errors.NewInvalidArgumentError("durationDays", "must be non-negative")
	}

	dailyRate := math.Pow(1+apy/100, 1.0/365.0) - 1
	return amount*math.Pow(1+dailyRate, float64(durationDays)) - amount, nil
}

// BasisPointsToPercent converts the wire representation (integer basis points,
// 10000 = 100%) to a percent value.
func BasisPointsToPercent(bps int64) float64 {
	return float64(bps) / 100
}

// PercentToBasisPoints converts a percent value to integer basis points,
// rounding to the nearest point.
func PercentToBasisPoints(pct float64) int64 {
	return int64(math.Round(pct * 100))
}
