package stockrisk

import (
	"math"

	"github.com/shopspring/decimal"
)

// roundFloat rounds v half away from zero to the given number of decimal places.
func roundFloat(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Round2 rounds v to two decimals, the precision used for every presented figure.
func Round2(v float64) float64 {
	return roundFloat(v, 2)
}
