package health

import "strings"

// SpendTier buckets customers by average monthly spend.
type SpendTier string

const (
	TierSmall      SpendTier = "small"
	TierMedium     SpendTier = "medium"
	TierLarge      SpendTier = "large"
	TierEnterprise SpendTier = "enterprise"
)

// Lower bounds (inclusive) of each tier above small.
const (
	mediumTierFloor     = 1000.0
	largeTierFloor      = 5000.0
	enterpriseTierFloor = 10000.0
)

// TierThresholds is the fixed sensitivity profile of a spend tier.
type TierThresholds struct {
	KSigma        float64 `json:"k_sigma"`
	MinSampleSize int     `json:"min_sample_size"`
	Alpha         float64 `json:"alpha"`
	Description   string  `json:"description"`
}

var tierThresholds = map[SpendTier]TierThresholds{
	TierEnterprise: {
		KSigma:        1.0,
		MinSampleSize: 10,
		Alpha:         0.3,
		Description:   "High sensitivity - enterprise accounts need early warning",
	},
	TierLarge: {
		KSigma:        1.5,
		MinSampleSize: 8,
		Alpha:         0.2,
		Description:   "Balanced sensitivity for large accounts",
	},
	TierMedium: {
		KSigma:        1.5,
		MinSampleSize: 5,
		Alpha:         0.2,
		Description:   "Balanced sensitivity for medium accounts",
	},
	TierSmall: {
		KSigma:        2.0,
		MinSampleSize: 3,
		Alpha:         0.15,
		Description:   "Lower sensitivity - reduces false alerts on low-volume accounts",
	},
}

// Tiers lists every spend tier from largest to smallest.
func Tiers() []SpendTier {
	return []SpendTier{TierEnterprise, TierLarge, TierMedium, TierSmall}
}

// GetSpendTier classifies a customer by average monthly revenue.
func GetSpendTier(monthlyRevenue float64) SpendTier {
	switch {
	case monthlyRevenue >= enterpriseTierFloor:
		return TierEnterprise
	case monthlyRevenue >= largeTierFloor:
		return TierLarge
	case monthlyRevenue >= mediumTierFloor:
		return TierMedium
	default:
		return TierSmall
	}
}

// GetTierThresholds returns the sensitivity profile for tier. Unknown
// tiers get the small profile.
func GetTierThresholds(tier SpendTier) TierThresholds {
	if t, ok := tierThresholds[tier]; ok {
		return t
	}
	return tierThresholds[TierSmall]
}

// ParseSpendTier returns the tier for a case-insensitive name.
func ParseSpendTier(name string) (SpendTier, bool) {
	tier := SpendTier(strings.ToLower(strings.TrimSpace(name)))
	_, ok := tierThresholds[tier]
	return tier, ok
}

// TierRequest is the input to AssessRevenueHealthByTier.
type TierRequest struct {
	RecentTotals   []float64
	MonthlyRevenue float64

	// TierSensitiveBands threads the tier's Alpha and KSigma into the
	// assessment. When false only MinSampleSize follows the tier and the
	// bands use the package defaults.
	TierSensitiveBands bool
}

// TieredRevenueHealth is a RevenueHealth annotated with the tier that
// drove its thresholds.
type TieredRevenueHealth struct {
	RevenueHealth
	Tier       SpendTier      `json:"tier"`
	Thresholds TierThresholds `json:"thresholds"`
}

// AssessRevenueHealthByTier assesses req.RecentTotals with the minimum
// sample size of the customer's spend tier.
//
// By default the returned Baseline, LowerBand and UpperBand (and so the
// status) are computed with DefaultAlpha and DefaultKSigma regardless of
// tier. Tier-specific band widths are opt-in via TierSensitiveBands.
func AssessRevenueHealthByTier(req TierRequest) TieredRevenueHealth {
	tier := GetSpendTier(req.MonthlyRevenue)
	thresholds := GetTierThresholds(tier)

	opts := Options{MinSampleSize: thresholds.MinSampleSize}
	if req.TierSensitiveBands {
		opts.Alpha = thresholds.Alpha
		opts.KSigma = thresholds.KSigma
	}

	return TieredRevenueHealth{
		RevenueHealth: AssessRevenueHealth(req.RecentTotals, opts),
		Tier:          tier,
		Thresholds:    thresholds,
	}
}
