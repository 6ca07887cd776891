package protocol

import (
	"math"
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	if err := validateContent(""); err == nil {
		t.Error("expected empty content to be rejected")
	}
	if err := validateContent(strings.Repeat("a", maxContentBytes+1)); err == nil {
		t.Error("expected oversized content to be rejected")
	}
	if err := validateContent("hello"); err != nil {
		t.Errorf("expected valid content to pass, got %v", err)
	}
}

func TestValidateImportance(t *testing.T) {
	cases := []struct {
		v     float64
		valid bool
	}{
		{0, true}, {1, true}, {0.5, true},
		{-0.01, false}, {1.01, false},
		{math.NaN(), false}, {math.Inf(1), false},
	}
	for _, c := range cases {
		err := validateImportance(c.v)
		if (err == nil) != c.valid {
			t.Errorf("importance %v: expected valid=%v, got err=%v", c.v, c.valid, err)
		}
	}
}

func TestValidateLimit(t *testing.T) {
	if err := validateLimit(0); err == nil {
		t.Error("expected 0 to be rejected")
	}
	if err := validateLimit(1001); err == nil {
		t.Error("expected 1001 to be rejected")
	}
	if err := validateLimit(1); err != nil {
		t.Errorf("expected 1 to be valid, got %v", err)
	}
	if err := validateLimit(1000); err != nil {
		t.Errorf("expected 1000 to be valid, got %v", err)
	}
}

func TestValidateThreshold(t *testing.T) {
	if err := validateThreshold(-0.1); err == nil {
		t.Error("expected negative threshold to be rejected")
	}
	if err := validateThreshold(1.1); err == nil {
		t.Error("expected threshold above 1 to be rejected")
	}
	if err := validateThreshold(0.5); err != nil {
		t.Errorf("expected 0.5 to be valid, got %v", err)
	}
}
