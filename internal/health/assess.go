package health

import (
	"fmt"
	"math"
)

// Status is the revenue-health classification of a customer.
type Status string

const (
	StatusGrowing          Status = "growing"
	StatusStable           Status = "stable"
	StatusDeclining        Status = "declining"
	StatusInsufficientData Status = "insufficient_data"
)

const (
	// DefaultMinSampleSize is the number of orders required before a
	// baseline is trusted.
	DefaultMinSampleSize = 5
	// DefaultCurrentWindowSize is how many of the latest orders form the
	// "current" average compared against the bands.
	DefaultCurrentWindowSize = 3

	// confidenceSaturation is the sample count at which the sample factor
	// of the confidence score reaches 1.
	confidenceSaturation = 10
)

// RevenueHealth is the verdict for one revenue series.
type RevenueHealth struct {
	CurrentAverage  float64 `json:"current_average"`
	Baseline        float64 `json:"baseline"`
	LowerBand       float64 `json:"lower_band"`
	UpperBand       float64 `json:"upper_band"`
	IsDecline       bool    `json:"is_decline"`
	IsGrowth        bool    `json:"is_growth"`
	ConfidenceScore float64 `json:"confidence_score"`
	Status          Status  `json:"status"`
	Reason          string  `json:"reason"`
}

// Options tunes AssessRevenueHealth. Zero or negative fields take the package
// defaults; callers that accept user input reject explicit non-positive values
// before building Options.
type Options struct {
	MinSampleSize     int
	CurrentWindowSize int
	Alpha             float64
	KSigma            float64
}

// DefaultOptions returns the options AssessRevenueHealth uses when none are set.
func DefaultOptions() Options {
	return Options{
		MinSampleSize:     DefaultMinSampleSize,
		CurrentWindowSize: DefaultCurrentWindowSize,
		Alpha:             DefaultAlpha,
		KSigma:            DefaultKSigma,
	}
}

func (o Options) withDefaults() Options {
	if o.MinSampleSize <= 0 {
		o.MinSampleSize = DefaultMinSampleSize
	}
	if o.CurrentWindowSize <= 0 {
		o.CurrentWindowSize = DefaultCurrentWindowSize
	}
	if o.Alpha <= 0 {
		o.Alpha = DefaultAlpha
	}
	if o.KSigma <= 0 {
		o.KSigma = DefaultKSigma
	}
	return o
}

// AssessRevenueHealth classifies the latest orders in recentTotals
// (oldest first) against the customer's own control bands.
func AssessRevenueHealth(recentTotals []float64, opts Options) RevenueHealth {
	opts = opts.withDefaults()
	n := len(recentTotals)

	if n < opts.MinSampleSize {
		return RevenueHealth{
			CurrentAverage: mean(recentTotals),
			Status:         StatusInsufficientData,
			Reason:         fmt.Sprintf("Need %d more orders to establish baseline", opts.MinSampleSize-n),
		}
	}

	bands := CalculateControlBands(recentTotals, opts.Alpha, opts.KSigma)
	current := mean(lastN(recentTotals, opts.CurrentWindowSize))
	confidence := confidenceScore(n, bands)

	health := RevenueHealth{
		CurrentAverage:  current,
		Baseline:        bands.Mean,
		LowerBand:       bands.Lower,
		UpperBand:       bands.Upper,
		ConfidenceScore: confidence,
	}

	switch {
	case current < bands.Lower:
		health.Status = StatusDeclining
		health.IsDecline = true
		health.Reason = fmt.Sprintf("Revenue %.1f%% below baseline (confidence: %.2f)",
			percentOf(bands.Mean-current, bands.Mean), confidence)
	case current > bands.Upper:
		health.Status = StatusGrowing
		health.IsGrowth = true
		health.Reason = fmt.Sprintf("Revenue %.1f%% above baseline (confidence: %.2f)",
			percentOf(current-bands.Mean, bands.Mean), confidence)
	default:
		health.Status = StatusStable
		health.Reason = fmt.Sprintf("Revenue within normal range ($%.2f - $%.2f)", bands.Lower, bands.Upper)
	}

	return health
}

// confidenceScore combines sample size with the coefficient of variation:
// more orders and a tighter spread both raise confidence.
func confidenceScore(n int, bands ControlBands) float64 {
	sampleFactor := math.Min(1, float64(n)/confidenceSaturation)

	cvFactor := 0.0
	if bands.Mean > 0 {
		cvFactor = 1 - math.Min(1, bands.StdDev/bands.Mean)
	}

	return round2(sampleFactor * cvFactor)
}

// percentOf returns delta as a percentage of base, or 0 when base is zero.
func percentOf(delta, base float64) float64 {
	if base == 0 {
		return 0
	}
	return delta / base * 100
}
