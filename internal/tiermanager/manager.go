package tiermanager

import (
	"context"
	"sync"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/mathengine"
	"github.com/synapsedb/synapse/internal/model"
	"github.com/synapsedb/synapse/internal/store"
)

var log = logging.GetLogger("tiermanager")

// Config holds capacity and migration-loop knobs.
type Config struct {
	WorkingCapacity         int
	MigrationCandidateLimit int
}

// DefaultConfig mirrors spec defaults: N_W=1000, K=100.
func DefaultConfig() Config {
	return Config{WorkingCapacity: 1000, MigrationCandidateLimit: 100}
}

type pairKey struct {
	from, to model.Tier
}

// pairMetrics tracks migrations_performed/failures for one source/target
// pair.
type pairMetrics struct {
	migrationsPerformed int64
	failures            int64
}

// Manager enforces the working-tier capacity invariant and runs the
// periodic migration loop (§4.4).
type Manager struct {
	st      *store.Store
	mathCfg mathengine.Config
	cfg     Config

	mu      sync.Mutex
	metrics map[pairKey]*pairMetrics
}

// New constructs a Manager.
func New(st *store.Store, mathCfg mathengine.Config, cfg Config) *Manager {
	if cfg.WorkingCapacity <= 0 {
		cfg.WorkingCapacity = DefaultConfig().WorkingCapacity
	}
	if cfg.MigrationCandidateLimit <= 0 {
		cfg.MigrationCandidateLimit = DefaultConfig().MigrationCandidateLimit
	}
	return &Manager{
		st:      st,
		mathCfg: mathCfg,
		cfg:     cfg,
		metrics: make(map[pairKey]*pairMetrics),
	}
}

// StoreWorking inserts m into the working tier, demoting the lowest
// combined-score active working memory to warm in the same transaction if
// the tier is already at capacity N_W (§4.4, scenario #2: "no interim
// state observable").
func (mgr *Manager) StoreWorking(ctx context.Context, m *model.Memory) (*model.Memory, error) {
	m.Tier = model.TierWorking

	tx, err := mgr.st.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin store_working")
	}
	defer tx.Rollback(ctx)

	count, err := mgr.st.CountActiveInTier(ctx, tx, model.TierWorking)
	if err != nil {
		return nil, err
	}

	if count >= int64(mgr.cfg.WorkingCapacity) {
		victimID, err := mgr.st.LowestScoredWorking(ctx, tx)
		if err != nil {
			return nil, apperr.Databasef(err, "find demotion victim")
		}
		if err := mgr.st.DemoteTx(ctx, tx, victimID); err != nil {
			return nil, apperr.Databasef(err, "demote overflow victim")
		}
		mgr.recordMigration(model.TierWorking, model.TierWarm, nil)
	}

	created, err := mgr.st.CreateMemoryTx(ctx, tx, m)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit store_working")
	}
	return created, nil
}

// migrationThreshold returns the forward-migration recall_probability
// threshold for a source tier, per §4.1.
func (mgr *Manager) migrationThreshold(source model.Tier) (target model.Tier, threshold float64, ok bool) {
	switch source {
	case model.TierWorking:
		return model.TierWarm, mgr.mathCfg.WorkingToWarmThreshold, true
	case model.TierWarm:
		return model.TierCold, mgr.mathCfg.WarmToColdThreshold, true
	case model.TierCold:
		return model.TierFrozen, mgr.mathCfg.ColdToFrozenThreshold, true
	default:
		return "", 0, false
	}
}

// RunMigrationLoop evaluates each source tier in {working, warm, cold},
// requesting up to the configured candidate limit whose recall_probability
// is below that tier's forward threshold, and migrates each independently.
// A single candidate's failure is logged and does not abort the rest
// (§4.4).
func (mgr *Manager) RunMigrationLoop(ctx context.Context) {
	for _, source := range []model.Tier{model.TierWorking, model.TierWarm, model.TierCold} {
		target, threshold, ok := mgr.migrationThreshold(source)
		if !ok {
			continue
		}

		candidates, err := mgr.st.GetMigrationCandidates(ctx, source, threshold, mgr.cfg.MigrationCandidateLimit)
		if err != nil {
			log.Error("failed to fetch migration candidates", "tier", source, "error", err)
			continue
		}

		for _, candidate := range candidates {
			_, err := mgr.st.MigrateMemory(ctx, candidate.ID, target, "scheduled migration: recall below threshold")
			if err != nil {
				log.Error("migration failed, continuing", "id", candidate.ID, "from", source, "to", target, "error", err)
				mgr.recordMigration(source, target, err)
				continue
			}
			mgr.recordMigration(source, target, nil)
		}
	}
}

// PromoteIfEligible promotes id from warm to working on access when
// recall_probability crosses the promotion threshold and working capacity
// allows (§4.1, §4.4). Returns (promoted, error).
func (mgr *Manager) PromoteIfEligible(ctx context.Context, id string, currentTier model.Tier, recall float64) (bool, error) {
	if currentTier != model.TierWarm || !mathengine.PromotionEligible(mgr.mathCfg, recall) {
		return false, nil
	}

	count, err := mgr.st.CountActiveInTier(ctx, nil, model.TierWorking)
	if err != nil {
		return false, err
	}
	if count >= int64(mgr.cfg.WorkingCapacity) {
		return false, nil
	}

	_, err = mgr.st.MigrateMemory(ctx, id, model.TierWorking, "promotion: recall_probability above threshold with working capacity available")
	if err != nil {
		return false, err
	}
	mgr.recordMigration(model.TierWarm, model.TierWorking, nil)
	return true, nil
}

func (mgr *Manager) recordMigration(from, to model.Tier, failure error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	key := pairKey{from, to}
	m, ok := mgr.metrics[key]
	if !ok {
		m = &pairMetrics{}
		mgr.metrics[key] = m
	}
	if failure != nil {
		m.failures++
	} else {
		m.migrationsPerformed++
	}
}

// PairStats is a snapshot of one source/target pair's counters.
type PairStats struct {
	From, To            model.Tier
	MigrationsPerformed int64
	Failures            int64
}

// Stats returns a snapshot of all tracked source/target pair metrics.
func (mgr *Manager) Stats() []PairStats {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	out := make([]PairStats, 0, len(mgr.metrics))
	for key, m := range mgr.metrics {
		out = append(out, PairStats{
			From: key.from, To: key.to,
			MigrationsPerformed: m.migrationsPerformed,
			Failures:            m.failures,
		})
	}
	return out
}
