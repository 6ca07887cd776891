package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/synapsedb/synapse/internal/apperr"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, OpenDuration: time.Minute, HalfOpenProbes: 1})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected breaker to open after 3 failures, got %s", b.State())
	}

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	parsed, ok := apperr.As(err)
	if !ok || parsed.Kind != apperr.CircuitOpen {
		t.Fatalf("expected CircuitOpen error, got %v", err)
	}
}

func TestBreaker_PreservesOriginalCause(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenDuration: time.Minute, HalfOpenProbes: 1})
	cause := errors.New("root cause")

	err := b.Call(context.Background(), func(ctx context.Context) error { return cause })
	if !errors.Is(err, cause) {
		t.Fatalf("expected original cause to propagate through breaker, got %v", err)
	}
}

func TestBreaker_HalfOpenClosesOnSuccessfulProbe(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, HalfOpenProbes: 1})
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatal("expected breaker to be open")
	}

	time.Sleep(20 * time.Millisecond)

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected breaker to close after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenReopensOnFailedProbe(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, HalfOpenProbes: 1})
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("still failing") })
	if b.State() != StateOpen {
		t.Fatalf("expected breaker to re-open after failed probe, got %s", b.State())
	}
}

func TestBreaker_ResetClearsState(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenDuration: time.Minute, HalfOpenProbes: 1})
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatal("expected breaker to be open")
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("expected breaker to be closed after reset, got %s", b.State())
	}
}
