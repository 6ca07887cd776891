package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/logging"
)

var log = logging.GetLogger("circuitbreaker")

// State is one of closed, open, half-open (§4.6), mirroring gobreaker.State
// under the names spec §4.6 uses.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the failure threshold, open duration, and half-open probe
// count (§4.6).
type Config struct {
	FailureThreshold int
	OpenDuration     time.Duration
	HalfOpenProbes   int
}

// DefaultConfig is a conservative starting point: five consecutive
// failures opens the breaker for 30s, then one probe call decides whether
// to close or re-open.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker wraps a gobreaker.CircuitBreaker for a single outbound
// collaborator (§4.6). The original error cause always propagates
// unwrapped through Call; CircuitOpen errors are the only exception —
// those originate from the breaker itself, not the wrapped call.
type Breaker struct {
	name string

	mu       sync.Mutex
	settings gobreaker.Settings
	cb       *gobreaker.CircuitBreaker[any]
}

// New constructs a Breaker named name (used in error messages and logs) for
// the given collaborator.
func New(name string, cfg Config) *Breaker {
	settings := settingsFor(name, cfg)
	return &Breaker{name: name, settings: settings, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func settingsFor(name string, cfg Config) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenProbes),
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				log.Warn("circuit opened", "breaker", breakerName)
			case gobreaker.StateHalfOpen:
				log.Info("circuit transitioning to half-open", "breaker", breakerName)
			case gobreaker.StateClosed:
				log.Info("circuit closed", "breaker", breakerName)
			}
		},
	}
}

// Call executes fn if the breaker permits it, recording the outcome.
// Returns CircuitOpen without invoking fn if the breaker is open and the
// open-duration has not yet elapsed, or if half-open probes are exhausted.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()

	_, err := cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.CircuitOpenf(err, "circuit %q open", b.name)
	}
	return err
}

// State returns the breaker's current state (for metrics/testing).
func (b *Breaker) State() State {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()

	switch cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Reset forces the breaker back to closed, clearing all counters. gobreaker
// exposes no public reset, so this rebuilds a fresh CircuitBreaker from the
// original settings.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = gobreaker.NewCircuitBreaker[any](b.settings)
}
