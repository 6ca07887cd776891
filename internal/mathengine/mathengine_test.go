package mathengine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecallProbability_ForgettingCurve(t *testing.T) {
	// Scenario 1: S=1, t=1 hour => R ~= 0.3679 (±1e-4).
	r := RecallProbability(1, 1)
	assert.InDelta(t, 0.3679, r, 1e-4)
}

func TestRecallProbability_ZeroElapsedIsOne(t *testing.T) {
	assert.Equal(t, 1.0, RecallProbability(0, 1))
	assert.Equal(t, 1.0, RecallProbability(-5, 1))
}

func TestRecallProbability_MonotoneNonIncreasing(t *testing.T) {
	strength := 2.5
	prev := RecallProbability(0, strength)
	for tHours := 1.0; tHours <= 200; tHours += 1.0 {
		cur := RecallProbability(tHours, strength)
		require.LessOrEqualf(t, cur, prev, "R must be non-increasing at t=%v", tHours)
		prev = cur
	}
}

func TestDifficultyBuckets(t *testing.T) {
	cases := []struct {
		latency float64
		want    float64
	}{
		{100, 0.5},
		{499.9, 0.5},
		{500, 1.0},
		{1999.9, 1.0},
		{2000, 1.5},
		{9999.9, 1.5},
		{10000, 2.0},
		{50000, 2.0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Difficulty(c.latency))
	}
}

func TestConsolidationUpdate_MonotoneNonDecreasing(t *testing.T) {
	s := 1.0
	for i := 0; i < 20; i++ {
		next := ConsolidationUpdate(s, 3, 1.0)
		require.GreaterOrEqual(t, next, s)
		s = next
	}
}

func TestConsolidationUpdate_CappedAtTen(t *testing.T) {
	got := ConsolidationUpdate(9.99, 1000, 2.0)
	assert.Equal(t, 10.0, got)
}

func TestApplyTestingEffect_SuccessBoostsAndCaps(t *testing.T) {
	cfg := DefaultConfig()
	s, ease := ApplyTestingEffect(cfg, 5, 2.5, true)
	assert.Equal(t, 7.5, s)
	assert.Equal(t, 2.5, ease)

	s, _ = ApplyTestingEffect(cfg, 8, 2.5, true)
	assert.Equal(t, 10.0, s)
}

func TestApplyTestingEffect_FailureDecaysEaseWithFloor(t *testing.T) {
	cfg := DefaultConfig()
	s, ease := ApplyTestingEffect(cfg, 5, 1.4, false)
	assert.Equal(t, 5.0, s)
	assert.InDelta(t, 1.3, ease, 1e-9)

	_, ease = ApplyTestingEffect(cfg, 5, 1.3, false)
	assert.Equal(t, 1.3, ease)
}

func TestNextReviewInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0*2.0, NextReviewInterval(cfg, 0, 2.0))
	assert.Equal(t, 35.0*2.0, NextReviewInterval(cfg, 3, 2.0))
	assert.Equal(t, 35.0*2.0, NextReviewInterval(cfg, 99, 2.0))
	assert.Equal(t, 1.0*2.0, NextReviewInterval(cfg, -1, 2.0))
}

func TestValidateWeights(t *testing.T) {
	assert.True(t, ValidateWeights(DefaultWeights))
	assert.True(t, ValidateWeights(Weights{Recency: 0.5, Importance: 0.3, Relevance: 0.2}))
	assert.False(t, ValidateWeights(Weights{Recency: 0.5, Importance: 0.3, Relevance: 0.3}))
}

func TestCombinedScore_WeightedSumExact(t *testing.T) {
	w := Weights{Recency: 0.5, Importance: 0.3, Relevance: 0.2}
	got := CombinedScore(w, 0.8, 0.6, 0.4)
	want := 0.5*0.8 + 0.3*0.6 + 0.2*0.4
	assert.InDelta(t, want, got, 1e-9)
}

func TestAccessFrequencyScore_NeverHardcodedZero(t *testing.T) {
	assert.Equal(t, 0.0, AccessFrequencyScore(0))
	assert.InDelta(t, math.Log(11)*0.1, AccessFrequencyScore(10), 1e-12)
}

func TestMigrationTarget(t *testing.T) {
	cfg := DefaultConfig()

	tier, due := MigrationTarget(cfg, TierWorking, 0.9, false)
	assert.False(t, due)
	assert.Equal(t, TierWorking, tier)

	tier, due = MigrationTarget(cfg, TierWorking, 0.5, false)
	assert.True(t, due)
	assert.Equal(t, TierWarm, tier)

	tier, due = MigrationTarget(cfg, TierWorking, 0.95, true)
	assert.True(t, due)
	assert.Equal(t, TierWarm, tier)

	tier, due = MigrationTarget(cfg, TierWarm, 0.4, false)
	assert.True(t, due)
	assert.Equal(t, TierCold, tier)

	tier, due = MigrationTarget(cfg, TierCold, 0.1, false)
	assert.True(t, due)
	assert.Equal(t, TierFrozen, tier)

	tier, due = MigrationTarget(cfg, TierFrozen, 0.01, false)
	assert.False(t, due)
	assert.Equal(t, TierFrozen, tier)
}

func TestPromotionEligible(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, PromotionEligible(cfg, 0.9))
	assert.True(t, PromotionEligible(cfg, 0.95))
	assert.False(t, PromotionEligible(cfg, 0.89999))
}
