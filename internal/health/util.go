package health

import "math"

// precisionLimit is the magnitude above which a float64 has no fractional
// digits left to round.
const precisionLimit = 1e15

// roundFloat rounds v to the given number of decimal places. Values too
// large to carry a fraction are returned unchanged.
func roundFloat(v float64, decimals int) float64 {
	if math.Abs(v) >= precisionLimit {
		return v
	}
	if decimals <= 0 {
		return math.Round(v)
	}

	factor := math.Pow(10, float64(decimals))
	scaled := v * factor
	if math.IsInf(scaled, 0) {
		return v
	}
	return math.Round(scaled) / factor
}

// round2 rounds to cents, the precision every band and score is reported in.
func round2(v float64) float64 {
	return roundFloat(v, 2)
}

// mean returns the arithmetic mean of values, or 0 when empty. If the sum
// overflows it is recomputed incrementally.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	if !math.IsInf(sum, 0) {
		return sum / float64(len(values))
	}

	var avg float64
	for i, v := range values {
		n := float64(i + 1)
		avg += v/n - avg/n
	}
	return avg
}

// lastN returns at most the last n elements of values.
func lastN(values []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
