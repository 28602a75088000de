package service

import "math"

// ComputeFee returns ratePerKm * distanceKm at full precision.
func ComputeFee(ratePerKm, distanceKm float64) (float64, error) {
	if !validAmount(ratePerKm) {
		return 0, invalidf("rate per km must be a finite non-negative number")
	}
	if !validAmount(distanceKm) {
		return 0, invalidf("distance must be a finite non-negative number")
	}
	return ratePerKm * distanceKm, nil
}

// RoundFee rounds v half away from zero to two decimals for display.
func RoundFee(v float64) float64 {
	return math.Round(v*100) / 100
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
