// Package mathengine implements the consolidation/decay model: pure,
// deterministic, side-effect-free functions over a Config value. No stateful
// engine is allocated per call; every function here is a free function.
package mathengine

import "math"

// Weights configures the combined-score blend. Must sum to 1 within Epsilon.
type Weights struct {
	Recency    float64
	Importance float64
	Relevance  float64
}

// DefaultWeights is the spec's own stated default.
var DefaultWeights = Weights{Recency: 1.0 / 3.0, Importance: 1.0 / 3.0, Relevance: 1.0 / 3.0}

const weightEpsilon = 1e-9

// ValidateWeights reports whether w sums to 1 within weightEpsilon.
func ValidateWeights(w Weights) bool {
	sum := w.Recency + w.Importance + w.Relevance
	return math.Abs(sum-1.0) <= weightEpsilon
}

// Config bundles the tunable coefficients referenced throughout this package.
// All fields have spec-stated defaults; overriding any of them is a
// configuration concern, not a code change.
type Config struct {
	Weights Weights

	// RecencyLambda is the per-hour decay rate used by RecencyScore.
	RecencyLambda float64

	// RelevanceImportanceCoeff, RelevanceAccessCoeff, RelevanceBaseline sum to
	// the relevance formula's coefficients; RelevanceAccessCap bounds the
	// access_count/100 term at 1.
	RelevanceImportanceCoeff float64
	RelevanceAccessCoeff     float64
	RelevanceBaseline        float64
	RelevanceAccessCap       float64

	// Tier migration thresholds on recall_probability.
	WorkingToWarmThreshold float64
	WarmToColdThreshold    float64
	ColdToFrozenThreshold  float64
	WarmToWorkingThreshold float64

	// TestingEffectBoost multiplies S on a successful retrieval.
	TestingEffectBoost float64
	// EaseFactorPenalty subtracts from ease_factor on a failed retrieval.
	EaseFactorPenalty float64
	EaseFactorFloor    float64
	EaseFactorCeiling  float64

	// ReviewIntervalsDays is the base spaced-repetition schedule {1,7,16,35}.
	ReviewIntervalsDays []float64
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		Weights:                  DefaultWeights,
		RecencyLambda:            0.005,
		RelevanceImportanceCoeff: 0.5,
		RelevanceAccessCoeff:     0.3,
		RelevanceBaseline:        0.2,
		RelevanceAccessCap:       1.0,
		WorkingToWarmThreshold:   0.7,
		WarmToColdThreshold:      0.5,
		ColdToFrozenThreshold:    0.2,
		WarmToWorkingThreshold:   0.9,
		TestingEffectBoost:       1.5,
		EaseFactorPenalty:        0.2,
		EaseFactorFloor:          1.3,
		EaseFactorCeiling:        2.5,
		ReviewIntervalsDays:      []float64{1, 7, 16, 35},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RecallProbability is the Ebbinghaus forgetting curve: R(t) = exp(-t/S),
// clamped to [0,1]. t is elapsed time in hours since last access; S is
// consolidation_strength. Callers must ensure S > 0; the engine enforces an
// initial S = 1 so this never divides by zero in practice.
func RecallProbability(elapsedHours, strength float64) float64 {
	if elapsedHours <= 0 {
		return 1
	}
	return clamp01(math.Exp(-elapsedHours / strength))
}

// Difficulty buckets a retrieval latency into the spec's four difficulty
// tiers: <500ms easy, 500-2000ms normal, 2000-10000ms hard, >10000ms very hard.
func Difficulty(latencyMillis float64) float64 {
	switch {
	case latencyMillis < 500:
		return 0.5
	case latencyMillis < 2000:
		return 1.0
	case latencyMillis < 10000:
		return 1.5
	default:
		return 2.0
	}
}

// ConsolidationUpdate computes S' after an access separated by elapsedHours
// from the previous one, given a difficulty derived from retrieval latency.
// S' = min(10, S + (1-e^-t)/(1+e^-t) * difficulty).
func ConsolidationUpdate(strength, elapsedHours, difficulty float64) float64 {
	e := math.Exp(-elapsedHours)
	spacingFraction := (1 - e) / (1 + e)
	updated := strength + spacingFraction*difficulty
	if updated > 10 {
		return 10
	}
	return updated
}

// ApplyTestingEffect applies the post-access testing-effect boost or penalty.
// On success, S is multiplied by cfg.TestingEffectBoost and capped at 10. On
// failure, ease is decreased by cfg.EaseFactorPenalty, floored at
// cfg.EaseFactorFloor.
func ApplyTestingEffect(cfg Config, strength, ease float64, success bool) (newStrength, newEase float64) {
	if success {
		boosted := strength * cfg.TestingEffectBoost
		if boosted > 10 {
			boosted = 10
		}
		return boosted, ease
	}
	newEase = ease - cfg.EaseFactorPenalty
	if newEase < cfg.EaseFactorFloor {
		newEase = cfg.EaseFactorFloor
	}
	if newEase > cfg.EaseFactorCeiling {
		newEase = cfg.EaseFactorCeiling
	}
	return strength, newEase
}

// NextReviewInterval returns the next spaced-repetition interval, selected by
// the retrieval's position (0-indexed) in the memory's review history and
// scaled by ease_factor.
func NextReviewInterval(cfg Config, reviewIndex int, ease float64) float64 {
	intervals := cfg.ReviewIntervalsDays
	if len(intervals) == 0 {
		intervals = DefaultConfig().ReviewIntervalsDays
	}
	idx := reviewIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(intervals) {
		idx = len(intervals) - 1
	}
	return intervals[idx] * ease
}

// RecencyScore is recency = exp(-lambda * t_hours).
func RecencyScore(cfg Config, elapsedHours float64) float64 {
	lambda := cfg.RecencyLambda
	if lambda == 0 {
		lambda = DefaultConfig().RecencyLambda
	}
	return clamp01(math.Exp(-lambda * elapsedHours))
}

// RelevanceScore is relevance = a*importance + b*min(1, access_count/100) + c.
func RelevanceScore(cfg Config, importance float64, accessCount int) float64 {
	accessTerm := float64(accessCount) / 100.0
	if accessTerm > cfg.RelevanceAccessCap {
		accessTerm = cfg.RelevanceAccessCap
	}
	return clamp01(cfg.RelevanceImportanceCoeff*importance + cfg.RelevanceAccessCoeff*accessTerm + cfg.RelevanceBaseline)
}

// AccessFrequencyScore = ln(1 + access_count) * 0.1, applied uniformly across
// every search variant's column contract; never hard-coded to 0.
func AccessFrequencyScore(accessCount int) float64 {
	return math.Log(1+float64(accessCount)) * 0.1
}

// CombinedScore is the weighted sum from §3/§4.1. w must already validate via
// ValidateWeights; this function does not re-check, since it runs on the hot
// path for every search row.
func CombinedScore(w Weights, recency, importance, relevance float64) float64 {
	return clamp01(w.Recency*recency + w.Importance*importance + w.Relevance*relevance)
}

// Tier names the four lifecycle buckets by their stable string value. This
// package takes plain strings (rather than importing internal/model) so that
// the Math Engine stays free of any in-repo dependency; internal/model's Tier
// type shares the identical underlying values.
const (
	TierWorking = "working"
	TierWarm    = "warm"
	TierCold    = "cold"
	TierFrozen  = "frozen"
)

// MigrationTarget applies the forward-migration predicates of §4.1 to a
// memory currently in sourceTier with the given recall probability, returning
// the tier it should move to and whether a migration is due at all.
// workingOverflow signals that the working-tier capacity invariant also
// forces a working->warm demotion regardless of recall probability.
func MigrationTarget(cfg Config, sourceTier string, recall float64, workingOverflow bool) (string, bool) {
	switch sourceTier {
	case TierWorking:
		if recall < cfg.WorkingToWarmThreshold || workingOverflow {
			return TierWarm, true
		}
	case TierWarm:
		if recall < cfg.WarmToColdThreshold {
			return TierCold, true
		}
	case TierCold:
		if recall < cfg.ColdToFrozenThreshold {
			return TierFrozen, true
		}
	}
	return sourceTier, false
}

// PromotionEligible reports whether a warm-tier memory qualifies for
// promotion back to working on access, per the conservative default: R >= 0.9
// and working capacity available (the capacity check itself is the Tier
// Manager's responsibility; this function only evaluates the recall bound).
func PromotionEligible(cfg Config, recall float64) bool {
	threshold := cfg.WarmToWorkingThreshold
	if threshold == 0 {
		threshold = DefaultConfig().WarmToWorkingThreshold
	}
	return recall >= threshold
}
