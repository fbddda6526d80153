package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSpendTier(t *testing.T) {
	tests := []struct {
		revenue float64
		want    SpendTier
	}{
		{-50, TierSmall},
		{0, TierSmall},
		{999.99, TierSmall},
		{1000, TierMedium},
		{4999.99, TierMedium},
		{5000, TierLarge},
		{9999.99, TierLarge},
		{10000, TierEnterprise},
		{250000, TierEnterprise},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GetSpendTier(tt.revenue), "revenue=%v", tt.revenue)
	}
}

func TestGetTierThresholds(t *testing.T) {
	tests := []struct {
		tier      SpendTier
		kSigma    float64
		minSample int
		alpha     float64
	}{
		{TierEnterprise, 1.0, 10, 0.3},
		{TierLarge, 1.5, 8, 0.2},
		{TierMedium, 1.5, 5, 0.2},
		{TierSmall, 2.0, 3, 0.15},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			got := GetTierThresholds(tt.tier)
			assert.Equal(t, tt.kSigma, got.KSigma)
			assert.Equal(t, tt.minSample, got.MinSampleSize)
			assert.Equal(t, tt.alpha, got.Alpha)
			assert.NotEmpty(t, got.Description)
		})
	}
}

func TestGetTierThresholds_UnknownFallsBackToSmall(t *testing.T) {
	assert.Equal(t, GetTierThresholds(TierSmall), GetTierThresholds(SpendTier("platinum")))
}

func TestParseSpendTier(t *testing.T) {
	tier, ok := ParseSpendTier(" Enterprise ")
	assert.True(t, ok)
	assert.Equal(t, TierEnterprise, tier)

	_, ok = ParseSpendTier("platinum")
	assert.False(t, ok)
}

func TestTiers(t *testing.T) {
	assert.Equal(t, []SpendTier{TierEnterprise, TierLarge, TierMedium, TierSmall}, Tiers())
}

func TestAssessRevenueHealthByTier_LargeNeedsMoreHistory(t *testing.T) {
	values := []float64{500, 480, 520, 510, 400, 390, 380}

	got := AssessRevenueHealthByTier(TierRequest{RecentTotals: values, MonthlyRevenue: 6000})

	assert.Equal(t, TierLarge, got.Tier)
	assert.Equal(t, 1.5, got.Thresholds.KSigma)
	assert.Equal(t, 8, got.Thresholds.MinSampleSize)
	assert.Equal(t, 0.2, got.Thresholds.Alpha)
	assert.Equal(t, StatusInsufficientData, got.Status)
	assert.Contains(t, got.Reason, "1 more orders")

	// the untiered default of five samples would have produced a verdict
	assert.Equal(t, StatusStable, AssessRevenueHealth(values, Options{}).Status)
}

func TestAssessRevenueHealthByTier_SmallNeedsLessHistory(t *testing.T) {
	values := []float64{100, 200, 150}

	got := AssessRevenueHealthByTier(TierRequest{RecentTotals: values, MonthlyRevenue: 450})

	assert.Equal(t, TierSmall, got.Tier)
	assert.Equal(t, StatusStable, got.Status)
	assert.Equal(t, 126.0, got.Baseline)
	assert.Equal(t, StatusInsufficientData, AssessRevenueHealth(values, Options{}).Status)
}

func TestAssessRevenueHealthByTier_BandsUseDefaultsUnlessTierSensitive(t *testing.T) {
	values := []float64{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 400}

	compat := AssessRevenueHealthByTier(TierRequest{RecentTotals: values, MonthlyRevenue: 12000})
	assert.Equal(t, TierEnterprise, compat.Tier)
	assert.Equal(t, AssessRevenueHealth(values, Options{MinSampleSize: 10}), compat.RevenueHealth)
	assert.Equal(t, 880.0, compat.Baseline)
	assert.Equal(t, 615.83, compat.LowerBand)
	assert.Equal(t, 1144.17, compat.UpperBand)

	sensitive := AssessRevenueHealthByTier(TierRequest{
		RecentTotals:       values,
		MonthlyRevenue:     12000,
		TierSensitiveBands: true,
	})
	assert.Equal(t, TierEnterprise, sensitive.Tier)
	assert.Equal(t, 820.0, sensitive.Baseline)
	assert.Equal(t, 611.49, sensitive.LowerBand)
	assert.Equal(t, 1028.51, sensitive.UpperBand)
	assert.Equal(t, compat.Thresholds, sensitive.Thresholds)
}

func TestAssessRevenueHealthByTier_Idempotent(t *testing.T) {
	req := TierRequest{RecentTotals: []float64{300, 320, 310, 305, 290, 280}, MonthlyRevenue: 2500}

	assert.Equal(t, AssessRevenueHealthByTier(req), AssessRevenueHealthByTier(req))
}
