package protocol

import (
	"math"

	"github.com/synapsedb/synapse/internal/apperr"
)

const maxContentBytes = 1 << 20 // 1 MiB, §3

func validateContent(content string) error {
	if content == "" {
		return apperr.InvalidInputf(nil, "content must not be empty")
	}
	if len(content) > maxContentBytes {
		return apperr.InvalidInputf(nil, "content exceeds maximum size of %d bytes", maxContentBytes)
	}
	return nil
}

func validateImportance(score float64) error {
	if !isFinite(score) || score < 0 || score > 1 {
		return apperr.InvalidInputf(nil, "importance_score must be a finite number in [0,1]")
	}
	return nil
}

func validateLimit(limit int) error {
	if limit < 1 || limit > 1000 {
		return apperr.InvalidInputf(nil, "limit must be between 1 and 1000")
	}
	return nil
}

func validateThreshold(threshold float64) error {
	if !isFinite(threshold) || threshold < 0 || threshold > 1 {
		return apperr.InvalidInputf(nil, "threshold must be a finite number in [0,1]")
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
