package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/mathengine"
	"github.com/synapsedb/synapse/internal/store"
	"github.com/synapsedb/synapse/internal/tiermanager"
)

var log = logging.GetLogger("scheduler")

// Config holds the sweep cadence and shutdown knobs (§4.8).
type Config struct {
	Cadence         time.Duration
	ShutdownGrace   time.Duration
	DecayBatchLimit int
}

// DefaultConfig mirrors pkg/config's scheduler defaults.
func DefaultConfig() Config {
	return Config{Cadence: 60 * time.Second, ShutdownGrace: 10 * time.Second, DecayBatchLimit: 500}
}

// Manager runs one background goroutine on a ticker, evaluating tier
// migrations and recomputing recall/recency scores for memories that
// haven't been touched by an access path recently. Start/Stop follow the
// ticker-plus-context-plus-WaitGroup shape, kept in the Manager itself
// rather than a daemon process since the engine runs this in-process.
type Manager struct {
	cfg     Config
	st      *store.Store
	tiers   *tiermanager.Manager
	mathCfg mathengine.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. cfg's zero values are replaced with
// DefaultConfig's.
func New(st *store.Store, tiers *tiermanager.Manager, mathCfg mathengine.Config, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Cadence <= 0 {
		cfg.Cadence = def.Cadence
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}
	if cfg.DecayBatchLimit <= 0 {
		cfg.DecayBatchLimit = def.DecayBatchLimit
	}
	return &Manager{cfg: cfg, st: st, tiers: tiers, mathCfg: mathCfg}
}

// Start begins the background sweep. Non-blocking; call Stop to shut down.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Cadence)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runSweep(ctx)
			}
		}
	}()
	log.Info("scheduler started", "cadence", m.cfg.Cadence)
}

// Stop cancels the sweep goroutine and waits up to ShutdownGrace for it to
// finish the in-flight sweep before giving up.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("scheduler stopped")
	case <-time.After(m.cfg.ShutdownGrace):
		log.Warn("scheduler did not stop within grace period", "grace", m.cfg.ShutdownGrace)
	}
}

// runSweep evaluates tier migrations, then recomputes recall_probability
// and recency_score for the least recently touched active memories. A
// failure in either half is logged and does not block the other (§4.4:
// "a single candidate's failure... does not abort the rest").
func (m *Manager) runSweep(ctx context.Context) {
	m.tiers.RunMigrationLoop(ctx)

	candidates, err := m.st.GetActiveForDecay(ctx, m.cfg.DecayBatchLimit)
	if err != nil {
		log.Error("failed to fetch decay candidates", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	now := time.Now().UTC()
	updates := make([]store.ConsolidationUpdate, 0, len(candidates))
	for _, c := range candidates {
		since := c.CreatedAt
		if c.LastAccessedAt != nil {
			since = *c.LastAccessedAt
		}
		elapsedHours := now.Sub(since).Hours()
		if elapsedHours < 0 {
			elapsedHours = 0
		}
		updates = append(updates, store.ConsolidationUpdate{
			ID:                    c.ID,
			ConsolidationStrength: c.ConsolidationStrength,
			RecallProbability:     mathengine.RecallProbability(elapsedHours, c.ConsolidationStrength),
			RecencyScore:          mathengine.RecencyScore(m.mathCfg, elapsedHours),
		})
	}

	n, err := m.st.BatchUpdateConsolidation(ctx, updates)
	if err != nil {
		log.Error("batch decay update failed", "error", err)
		return
	}
	log.Info("decay sweep complete", "candidates", len(candidates), "updated", n)
}
