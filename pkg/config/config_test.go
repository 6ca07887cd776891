package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.SigningSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int32(100), cfg.Database.MaxConns)
	assert.Equal(t, int32(20), cfg.Database.MinConns)
	assert.Equal(t, 0.70, cfg.Database.SaturationAlertThreshold)
	assert.Equal(t, 1000, cfg.Tiers.WorkingCapacity)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestValidate_RejectsMissingSigningSecret(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_secret")
}

func TestValidate_RejectsShortSigningSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.SigningSecret = "tooshort"
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsPoolBoundsBelowMinimum(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MaxConns = 10
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Database.MinConns = 5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadMathWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Math.WeightRecency = 0.9
	assert.Error(t, cfg.Validate())
}

func TestWatchRateLimit_StartsWithoutErrorOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	err := WatchRateLimit(dir, func(RateLimitConfig) {})
	assert.NoError(t, err)
}

func TestMathConfigValue_UsesConfiguredWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Math.WeightRecency = 0.5
	cfg.Math.WeightImportance = 0.3
	cfg.Math.WeightRelevance = 0.2

	mc := cfg.MathConfigValue()
	assert.InDelta(t, 0.5, mc.Weights.Recency, 1e-9)
	assert.InDelta(t, 0.3, mc.Weights.Importance, 1e-9)
	assert.InDelta(t, 0.2, mc.Weights.Relevance, 1e-9)
}
