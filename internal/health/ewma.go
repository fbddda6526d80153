// Package health computes a customer's revenue-health verdict from their
// order history: an EWMA baseline, SPC control bands around it and a
// tier-aware classification of the most recent orders.
//
// Every function here is pure. Degenerate input (empty series, zero mean,
// zero deviation) yields defined zero values or the insufficient_data
// status, never an error, so a dashboard can always render the result.
package health

import "math"

const (
	// DefaultAlpha is the EWMA smoothing factor used when none is given.
	DefaultAlpha = 0.2
	// DefaultKSigma is the control band width in standard deviations.
	// Rough coverage: 1.0 ≈ 68%, 1.5 ≈ 86%, 2.0 ≈ 95%, 3.0 ≈ 99%.
	DefaultKSigma = 1.5
)

// EWMA returns the exponentially weighted moving average of values,
// ordered oldest to newest. The average is seeded with the first value.
// An alpha outside (0, 1] falls back to DefaultAlpha when non-positive
// and is clamped to 1 above it.
func EWMA(values []float64, alpha float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}

	alpha = normalizeAlpha(alpha)

	avg := values[0]
	for _, v := range values[1:] {
		avg = alpha*v + (1-alpha)*avg
	}
	return avg
}

// ControlBands is the EWMA baseline with its mean ± k·σ limits.
type ControlBands struct {
	Mean       float64 `json:"mean"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	StdDev     float64 `json:"std_dev"`
	SampleSize int     `json:"sample_size"`
}

// CalculateControlBands derives control bands for recentTotals.
//
// The deviation is the population spread of every raw value around the
// EWMA baseline, not around the arithmetic mean. The lower band is
// floored at zero since revenue cannot go negative. A negative kSigma
// means DefaultKSigma; zero is a valid zero-width band.
func CalculateControlBands(recentTotals []float64, alpha, kSigma float64) ControlBands {
	n := len(recentTotals)
	if n == 0 {
		return ControlBands{}
	}
	if kSigma < 0 || math.IsNaN(kSigma) {
		kSigma = DefaultKSigma
	}

	baseline := EWMA(recentTotals, alpha)
	stdDev := deviationAround(recentTotals, baseline)

	lower := math.Max(0, baseline-kSigma*stdDev)
	upper := math.Min(math.MaxFloat64, baseline+kSigma*stdDev)

	return ControlBands{
		Mean:       round2(baseline),
		Lower:      round2(lower),
		Upper:      round2(upper),
		StdDev:     round2(stdDev),
		SampleSize: n,
	}
}

// deviationAround is the population standard deviation of values around
// center, capped at math.MaxFloat64. When the squares overflow it falls
// back to half-deviations scaled by the largest one.
func deviationAround(values []float64, center float64) float64 {
	var sumSq float64
	for _, v := range values {
		d := v - center
		sumSq += d * d
	}
	if !math.IsInf(sumSq, 0) && !math.IsNaN(sumSq) {
		return math.Sqrt(sumSq / float64(len(values)))
	}

	var scale float64
	for _, v := range values {
		scale = math.Max(scale, math.Abs(v/2-center/2))
	}

	sumSq = 0
	for _, v := range values {
		d := (v/2 - center/2) / scale
		sumSq += d * d
	}
	half := scale * math.Sqrt(sumSq/float64(len(values)))
	return math.Min(math.MaxFloat64, 2*half)
}

func normalizeAlpha(alpha float64) float64 {
	if alpha <= 0 || math.IsNaN(alpha) {
		return DefaultAlpha
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}
