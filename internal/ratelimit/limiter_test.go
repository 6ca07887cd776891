package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Global:  LimitConfig{RequestsPerSecond: 100, BurstSize: 200},
		PerClient: LimitConfig{RequestsPerSecond: 20, BurstSize: 40},
	}

	limiter := NewLimiter(cfg)

	if !limiter.IsEnabled() {
		t.Error("expected limiter to be enabled")
	}
	if limiter.GetGlobalBucket() == nil {
		t.Error("expected global bucket to exist")
	}
	if limiter.GetClientBucket("unseen") != nil {
		t.Error("expected unseen client bucket to be nil before first request")
	}

	limiter.Allow("client-a")
	if limiter.GetClientBucket("client-a") == nil {
		t.Error("expected client-a bucket to exist after first request")
	}
}

func TestAllowGlobalLimit(t *testing.T) {
	cfg := &Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 1, BurstSize: 2},
		PerClient: LimitConfig{RequestsPerSecond: 100, BurstSize: 100},
	}

	limiter := NewLimiter(cfg)

	if !limiter.Allow("test").Allowed {
		t.Error("expected first request to be allowed")
	}
	if !limiter.Allow("test").Allowed {
		t.Error("expected second request to be allowed")
	}
	result := limiter.Allow("test")
	if result.Allowed {
		t.Error("expected third request to be rejected")
	}
	if result.LimitType != "global" {
		t.Errorf("expected limit type 'global', got '%s'", result.LimitType)
	}
}

func TestAllowPerClientLimit(t *testing.T) {
	cfg := &Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 100, BurstSize: 200},
		PerClient: LimitConfig{RequestsPerSecond: 1, BurstSize: 1},
	}

	limiter := NewLimiter(cfg)

	if !limiter.Allow("expensive-client").Allowed {
		t.Error("expected first request to be allowed")
	}
	result := limiter.Allow("expensive-client")
	if result.Allowed {
		t.Error("expected second request from the same client to be rejected")
	}
	if result.LimitType != "client" {
		t.Errorf("expected limit type 'client', got '%s'", result.LimitType)
	}

	// A different client identity gets its own bucket.
	if !limiter.Allow("other-client").Allowed {
		t.Error("expected a different client's request to be allowed")
	}
}

func TestDisabledLimiter(t *testing.T) {
	cfg := &Config{
		Enabled: false,
		Global:  LimitConfig{RequestsPerSecond: 1, BurstSize: 1},
	}

	limiter := NewLimiter(cfg)

	for i := 0; i < 100; i++ {
		result := limiter.Allow("test")
		if !result.Allowed {
			t.Errorf("expected request %d to be allowed when disabled", i)
		}
		if result.LimitType != "disabled" {
			t.Errorf("expected limit type 'disabled', got '%s'", result.LimitType)
		}
	}
}

func TestSetEnabled(t *testing.T) {
	cfg := &Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 1, BurstSize: 1},
		PerClient: LimitConfig{RequestsPerSecond: 1, BurstSize: 1},
	}

	limiter := NewLimiter(cfg)

	limiter.Allow("test")
	if limiter.Allow("test").Allowed {
		t.Error("expected request to be rejected")
	}

	limiter.SetEnabled(false)
	if !limiter.Allow("test").Allowed {
		t.Error("expected request to be allowed when disabled")
	}
}

func TestGetStats(t *testing.T) {
	cfg := &Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 100, BurstSize: 200},
		PerClient: LimitConfig{RequestsPerSecond: 20, BurstSize: 40},
	}

	limiter := NewLimiter(cfg)
	limiter.Allow("client-a")
	stats := limiter.GetStats()

	if !stats.Enabled {
		t.Error("expected stats.Enabled to be true")
	}
	if stats.GlobalTokens < 198 {
		t.Errorf("expected ~199 global tokens, got %f", stats.GlobalTokens)
	}
	if stats.ClientCount != 1 {
		t.Errorf("expected one tracked client, got %d", stats.ClientCount)
	}
}

func TestLimiterReset(t *testing.T) {
	cfg := &Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 1, BurstSize: 2},
		PerClient: LimitConfig{RequestsPerSecond: 1, BurstSize: 2},
	}

	limiter := NewLimiter(cfg)

	limiter.Allow("test")
	limiter.Allow("test")
	limiter.Reset()

	if !limiter.Allow("test").Allowed {
		t.Error("expected request to be allowed after reset")
	}
}

func TestReaperEvictsIdleClients(t *testing.T) {
	cfg := &Config{
		Enabled:       true,
		Global:        LimitConfig{RequestsPerSecond: 100, BurstSize: 200},
		PerClient:     LimitConfig{RequestsPerSecond: 20, BurstSize: 40},
		ClientIdleTTL: 20 * time.Millisecond,
	}
	limiter := NewLimiter(cfg)
	limiter.Allow("stale-client")
	if limiter.ClientCount() != 1 {
		t.Fatalf("expected one tracked client, got %d", limiter.ClientCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go limiter.RunReaper(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if limiter.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected idle client entry to be evicted")
}

func TestUpdateConfigAppliesToExistingAndFutureClients(t *testing.T) {
	// Global burst 2 leaves one global token after "existing" is served, so
	// the request from "new-client" below reaches its own client bucket.
	cfg := &Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 1, BurstSize: 2},
		PerClient: LimitConfig{RequestsPerSecond: 1, BurstSize: 1},
	}
	limiter := NewLimiter(cfg)
	limiter.Allow("existing")

	limiter.UpdateConfig(&Config{
		Enabled:   true,
		Global:    LimitConfig{RequestsPerSecond: 50, BurstSize: 50},
		PerClient: LimitConfig{RequestsPerSecond: 50, BurstSize: 50},
	})

	if got := limiter.GetGlobalBucket().Capacity(); got != 50 {
		t.Errorf("expected global bucket capacity 50, got %v", got)
	}
	if got := limiter.GetClientBucket("existing").Capacity(); got != 50 {
		t.Errorf("expected existing client bucket capacity 50, got %v", got)
	}

	limiter.Allow("new-client")
	if got := limiter.GetClientBucket("new-client").Capacity(); got != 50 {
		t.Errorf("expected new client bucket to use updated template capacity 50, got %v", got)
	}
}
