package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool          // Whether the request is allowed
	RetryAfter time.Duration // Suggested wait time if not allowed
	LimitType  string        // "global" or "client"
	Remaining  float64       // Remaining tokens in the relevant bucket
}

type clientEntry struct {
	bucket   *Bucket
	lastSeen time.Time
}

// Limiter manages rate limiting with a global bucket and a read-mostly,
// keyed, TTL-evicted map of per-client buckets. Allow is invoked on the raw
// request before JSON parsing (§4.6), so it is keyed by a client identity the
// transport establishes independently of request contents.
type Limiter struct {
	mu           sync.RWMutex
	enabled      bool
	globalBucket *Bucket
	clients      map[string]*clientEntry
	config       *Config
	metrics      *Metrics
}

// NewLimiter creates a new rate limiter from configuration.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Limiter{
		enabled: cfg.Enabled,
		clients: make(map[string]*clientEntry),
		config:  cfg,
		metrics: NewMetrics(),
		globalBucket: NewBucket(
			float64(cfg.Global.BurstSize),
			cfg.Global.RequestsPerSecond,
		),
	}
}

// Allow checks whether a request from clientID is allowed, consuming one
// token from both the global bucket and that client's bucket. Unrecognised
// clients get a fresh bucket from the configured per-client template; a
// request rejected by its client bucket does not refund the global token, since doing
// so would let a bursty single client starve the aggregate budget for
// everyone else.
func (l *Limiter) Allow(clientID string) *LimitResult {
	if !l.enabled {
		return &LimitResult{Allowed: true, LimitType: "disabled", Remaining: -1}
	}

	if !l.globalBucket.TryConsume(1) {
		l.metrics.RecordRejection("global", clientID)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: l.globalBucket.TimeToWait(1),
			LimitType:  "global",
			Remaining:  l.globalBucket.Tokens(),
		}
	}

	bucket := l.clientBucket(clientID)
	if !bucket.TryConsume(1) {
		l.metrics.RecordRejection("client", clientID)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: bucket.TimeToWait(1),
			LimitType:  "client",
			Remaining:  bucket.Tokens(),
		}
	}

	l.metrics.RecordAllowed(clientID)
	return &LimitResult{Allowed: true, LimitType: "client", Remaining: bucket.Tokens()}
}

// clientBucket returns clientID's bucket, creating one from the per-client
// template on first sight, and stamps lastSeen for TTL eviction.
func (l *Limiter) clientBucket(clientID string) *Bucket {
	l.mu.RLock()
	entry, ok := l.clients[clientID]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		entry.lastSeen = time.Now()
		l.mu.Unlock()
		return entry.bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.clients[clientID]; ok {
		entry.lastSeen = time.Now()
		return entry.bucket
	}
	bucket := NewBucket(float64(l.config.PerClient.BurstSize), l.config.PerClient.RequestsPerSecond)
	l.clients[clientID] = &clientEntry{bucket: bucket, lastSeen: time.Now()}
	return bucket
}

// RunReaper evicts client entries idle for longer than the configured TTL
// until ctx is cancelled. Intended to run as a single long-lived goroutine
// alongside the Scheduler.
func (l *Limiter) RunReaper(ctx context.Context) {
	ttl := l.config.ClientIdleTTL
	if ttl <= 0 {
		ttl = DefaultConfig().ClientIdleTTL
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle(ttl)
		}
	}
}

func (l *Limiter) evictIdle(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, id)
		}
	}
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// SetEnabled enables or disables rate limiting.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// GetMetrics returns the current metrics.
func (l *Limiter) GetMetrics() *Metrics {
	return l.metrics
}

// GetClientBucket returns the bucket for a specific client, or nil if unseen
// (for testing).
func (l *Limiter) GetClientBucket(clientID string) *Bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.clients[clientID]
	if !ok {
		return nil
	}
	return entry.bucket
}

// GetGlobalBucket returns the global bucket (for testing).
func (l *Limiter) GetGlobalBucket() *Bucket {
	return l.globalBucket
}

// ClientCount returns the number of tracked client entries (for testing).
func (l *Limiter) ClientCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

// Reset resets the global bucket and drops all client entries.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.globalBucket.Reset()
	l.clients = make(map[string]*clientEntry)
}

// Stats returns current limiter statistics.
type Stats struct {
	Enabled      bool    `json:"enabled"`
	GlobalTokens float64 `json:"global_tokens"`
	ClientCount  int     `json:"client_count"`
}

// GetStats returns current limiter statistics.
func (l *Limiter) GetStats() *Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Stats{
		Enabled:      l.enabled,
		GlobalTokens: l.globalBucket.Tokens(),
		ClientCount:  len(l.clients),
	}
}

// UpdateConfig applies a hot-reloaded configuration in place: it rewrites the
// global bucket's rate and every existing client bucket's rate (so a config
// file edit takes effect immediately rather than only for clients seen
// afterward), and swaps the per-client template for entries created from now
// on. Intended to be driven by a config-file watch, not called per-request.
func (l *Limiter) UpdateConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = cfg.Enabled
	l.config = cfg
	l.globalBucket.SetRate(float64(cfg.Global.BurstSize), cfg.Global.RequestsPerSecond)
	for _, entry := range l.clients {
		entry.bucket.SetRate(float64(cfg.PerClient.BurstSize), cfg.PerClient.RequestsPerSecond)
	}
}
