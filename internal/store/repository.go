package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/mathengine"
	"github.com/synapsedb/synapse/internal/model"
)

// memoryColumns lists every memories column read back into a model.Memory,
// in scan order. Shared by get_memory and the non-search CRUD paths so a
// column addition only needs updating in one place.
const memoryColumns = `
	id::text, content, content_hash, embedding, tier, status,
	importance_score, access_count, successful_retrievals, failed_retrievals,
	ease_factor, consolidation_strength, decay_rate, recall_probability,
	last_recall_interval_seconds, recency_score, relevance_score, combined_score,
	created_at, updated_at, last_accessed_at, expires_at, metadata,
	parent_id::text, compressed_payload
`

func scanMemory(row pgx.Row) (*model.Memory, error) {
	var m model.Memory
	var tier, status string
	var metadataJSON []byte
	var parentID *string
	var lastRecallSeconds int64
	var embedding *pgvector.Vector
	var content *string // NULL for frozen-tier rows

	err := row.Scan(
		&m.ID, &content, &m.ContentHash, &embedding, &tier, &status,
		&m.ImportanceScore, &m.AccessCount, &m.SuccessfulRetrievals, &m.FailedRetrievals,
		&m.EaseFactor, &m.ConsolidationStrength, &m.DecayRate, &m.RecallProbability,
		&lastRecallSeconds, &m.RecencyScore, &m.RelevanceScore, &m.CombinedScore,
		&m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt, &m.ExpiresAt, &metadataJSON,
		&parentID, &m.CompressedPayload,
	)
	if err != nil {
		return nil, err
	}

	if content != nil {
		m.Content = *content
	}
	m.Tier = model.Tier(tier)
	m.Status = model.Status(status)
	m.Embedding = embedding
	m.ParentID = parentID
	m.LastRecallInterval = time.Duration(lastRecallSeconds) * time.Second

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// CreateMemory inserts a new memory, deduplicating atomically on
// (content_hash, tier) among active rows via a conditional insert (§4.3,
// §9 "Dedup race"). Exactly one of two concurrent identical inserts
// succeeds; the loser gets DuplicateContent, never a check-then-insert race.
func (s *Store) CreateMemory(ctx context.Context, m *model.Memory) (*model.Memory, error) {
	if len(m.Content) > 1<<20 {
		return nil, apperr.InvalidInputf(nil, "content exceeds 1 MiB")
	}
	m.Defaults()
	if len(m.ContentHash) == 0 {
		sum := sha256.Sum256([]byte(m.Content))
		m.ContentHash = sum[:]
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	metadataJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, apperr.InvalidInputf(err, "encode metadata")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin create_memory")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO memories (
			id, content, content_hash, embedding, tier, status,
			importance_score, created_at, updated_at, metadata, parent_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (content_hash, tier) WHERE status = 'active' DO NOTHING
		RETURNING `+memoryColumns,
		m.ID, m.Content, m.ContentHash, m.Embedding, string(m.Tier), string(m.Status),
		m.ImportanceScore, m.CreatedAt, m.UpdatedAt, metadataJSON, m.ParentID,
	)
	created, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.DuplicateContentf(err, "memory with identical content already active in tier %s", m.Tier)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "insert memory")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit create_memory")
	}
	return created, nil
}

// GetMemory retrieves a memory by id. Read-only: no transaction opened
// (§4.3 "Read-only operations must not open transactions").
func (s *Store) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "get memory")
	}
	return m, nil
}

// RecordAccess applies the access-time recompute of consolidation_strength,
// ease_factor, recall_probability, recency_score, and relevance_score inside
// a single locked transaction (§3 "recomputed on access"), then increments
// access_count and the matching retrieval counter. latencyMillis is the
// caller's own request latency, used as a difficulty proxy (§4.1 Difficulty).
// Read-only callers that do not want this side effect should use GetMemory.
func (s *Store) RecordAccess(ctx context.Context, id string, latencyMillis float64, success bool) (*model.Memory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin record_access")
	}
	defer tx.Rollback(ctx)

	var strength, ease, importance float64
	var accessCount int64
	var lastAccessedAt *time.Time
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT consolidation_strength, ease_factor, importance_score, access_count,
		       last_accessed_at, created_at
		FROM memories WHERE id = $1 FOR UPDATE
	`, id).Scan(&strength, &ease, &importance, &accessCount, &lastAccessedAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "lock memory for access")
	}

	since := createdAt
	if lastAccessedAt != nil {
		since = *lastAccessedAt
	}
	now := time.Now().UTC()
	elapsedHours := now.Sub(since).Hours()
	if elapsedHours < 0 {
		elapsedHours = 0
	}

	difficulty := mathengine.Difficulty(latencyMillis)
	strength = mathengine.ConsolidationUpdate(strength, elapsedHours, difficulty)
	strength, ease = mathengine.ApplyTestingEffect(s.mathCfg, strength, ease, success)
	recall := mathengine.RecallProbability(0, strength)
	recency := mathengine.RecencyScore(s.mathCfg, 0)
	relevance := mathengine.RelevanceScore(s.mathCfg, importance, int(accessCount)+1)

	successCol, failCol := "successful_retrievals", "failed_retrievals"
	retrievalIncrement := successCol
	if !success {
		retrievalIncrement = failCol
	}

	row := tx.QueryRow(ctx, `
		UPDATE memories SET
			consolidation_strength = $1, ease_factor = $2, recall_probability = $3,
			recency_score = $4, relevance_score = $5,
			access_count = access_count + 1, `+retrievalIncrement+` = `+retrievalIncrement+` + 1,
			last_accessed_at = $6, updated_at = $6
		WHERE id = $7
		RETURNING `+memoryColumns,
		strength, ease, recall, recency, relevance, now, id,
	)
	m, err := scanMemory(row)
	if err != nil {
		return nil, apperr.Databasef(err, "apply access update")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit record_access")
	}
	return m, nil
}

// MemoryUpdate carries partial field updates; nil fields are left
// untouched.
type MemoryUpdate struct {
	Content         *string
	ImportanceScore *float64
	Metadata        map[string]any
	LastAccessedAt  *time.Time
}

// UpdateMemory applies a partial update inside a transaction, rolling back
// on every early-return path (§4.3, §9 "Connection-pool leakage").
func (s *Store) UpdateMemory(ctx context.Context, id string, updates *MemoryUpdate) (*model.Memory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin update_memory")
	}
	defer tx.Rollback(ctx)

	setClauses := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if updates.Content != nil {
		if len(*updates.Content) > 1<<20 {
			return nil, apperr.InvalidInputf(nil, "content exceeds 1 MiB")
		}
		setClauses = append(setClauses, "content = "+arg(*updates.Content))
	}
	if updates.ImportanceScore != nil {
		if *updates.ImportanceScore < 0 || *updates.ImportanceScore > 1 {
			return nil, apperr.InvalidInputf(nil, "importance_score out of [0,1]")
		}
		setClauses = append(setClauses, "importance_score = "+arg(*updates.ImportanceScore))
	}
	if updates.Metadata != nil {
		metadataJSON, err := json.Marshal(updates.Metadata)
		if err != nil {
			return nil, apperr.InvalidInputf(err, "encode metadata")
		}
		setClauses = append(setClauses, "metadata = "+arg(metadataJSON))
	}
	if updates.LastAccessedAt != nil {
		setClauses = append(setClauses, "last_accessed_at = "+arg(*updates.LastAccessedAt))
	}

	idArg := arg(id)
	query := "UPDATE memories SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = " + idArg + " RETURNING " + memoryColumns

	row := tx.QueryRow(ctx, query, args...)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "update memory")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit update_memory")
	}
	return m, nil
}

func placeholder(n int) string {
	return "$" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 4)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// DeleteMemory soft-deletes a memory: status becomes deleted, a tombstone
// retained for the audit window rather than an immediate hard delete (§3).
func (s *Store) DeleteMemory(ctx context.Context, id string) (*model.Memory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin delete_memory")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE memories SET status = 'deleted', updated_at = $1
		WHERE id = $2 AND status != 'deleted'
		RETURNING `+memoryColumns,
		time.Now().UTC(), id,
	)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "delete memory")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit delete_memory")
	}
	return m, nil
}

// MigrateMemory transitions a memory to targetTier inside a transaction,
// validating the edge against model.CanTransition before mutating. A
// same-tier transition is a documented no-op that still commits cleanly
// (§8 round-trip property).
func (s *Store) MigrateMemory(ctx context.Context, id string, targetTier model.Tier, reason string) (*model.Memory, error) {
	if !targetTier.Valid() {
		return nil, apperr.InvalidInputf(nil, "unknown tier %q", targetTier)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin migrate_memory")
	}
	defer tx.Rollback(ctx)

	var currentTier string
	err = tx.QueryRow(ctx, `SELECT tier FROM memories WHERE id = $1 FOR UPDATE`, id).Scan(&currentTier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "lock memory for migration")
	}

	if !model.CanTransition(model.Tier(currentTier), targetTier) {
		return nil, apperr.InvalidTierTransitionf(nil, "cannot migrate from %s to %s", currentTier, targetTier)
	}

	row := tx.QueryRow(ctx, `
		UPDATE memories SET tier = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+memoryColumns,
		string(targetTier), time.Now().UTC(), id,
	)
	m, err := scanMemory(row)
	if err != nil {
		return nil, apperr.Databasef(err, "apply migration")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit migrate_memory")
	}
	log.Info("migrated memory", "id", id, "from", currentTier, "to", targetTier, "reason", reason)
	return m, nil
}

// FreezeMemory compresses content and metadata into compressed_payload and
// nulls embedding/content, per §4.4. Only valid from tier=cold with
// recall_probability < 0.2.
func (s *Store) FreezeMemory(ctx context.Context, id string, reason string) (*model.Memory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin freeze_memory")
	}
	defer tx.Rollback(ctx)

	var tier string
	var recall float64
	var content string
	var metadataJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT tier, recall_probability, content, metadata FROM memories WHERE id = $1 FOR UPDATE
	`, id).Scan(&tier, &recall, &content, &metadataJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "lock memory for freeze")
	}
	if tier != string(model.TierCold) || recall >= 0.2 {
		return nil, apperr.InvalidRequestf(nil, "freeze requires tier=cold and recall_probability < 0.2, got tier=%s recall=%f", tier, recall)
	}

	payload, err := compressPayload(content, metadataJSON)
	if err != nil {
		return nil, apperr.Databasef(err, "compress payload")
	}

	row := tx.QueryRow(ctx, `
		UPDATE memories
		SET tier = 'frozen', content = NULL, embedding = NULL,
		    compressed_payload = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+memoryColumns,
		payload, time.Now().UTC(), id,
	)
	m, err := scanMemory(row)
	if err != nil {
		return nil, apperr.Databasef(err, "apply freeze")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit freeze_memory")
	}
	log.Info("froze memory", "id", id, "reason", reason)
	return m, nil
}

// UnfreezeMemory restores content and metadata from compressed_payload and
// sets tier=cold, per §4.4.
func (s *Store) UnfreezeMemory(ctx context.Context, id string) (*model.Memory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Databasef(err, "begin unfreeze_memory")
	}
	defer tx.Rollback(ctx)

	var payload []byte
	err = tx.QueryRow(ctx, `SELECT compressed_payload FROM memories WHERE id = $1 FOR UPDATE`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf(err, "memory %s", id)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "lock memory for unfreeze")
	}
	if payload == nil {
		return nil, apperr.InvalidRequestf(nil, "memory %s has no compressed payload", id)
	}

	content, metadataJSON, err := decompressPayload(payload)
	if err != nil {
		return nil, apperr.Databasef(err, "decompress payload")
	}

	row := tx.QueryRow(ctx, `
		UPDATE memories
		SET tier = 'cold', content = $1, metadata = $2,
		    compressed_payload = NULL, updated_at = $3
		WHERE id = $4
		RETURNING `+memoryColumns,
		content, metadataJSON, time.Now().UTC(), id,
	)
	m, err := scanMemory(row)
	if err != nil {
		return nil, apperr.Databasef(err, "apply unfreeze")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Databasef(err, "commit unfreeze_memory")
	}
	return m, nil
}

// ConsolidationUpdate is one row of a batch_update_consolidation call.
type ConsolidationUpdate struct {
	ID                    string
	ConsolidationStrength float64
	RecallProbability     float64
	RecencyScore          float64
}

// BatchUpdateConsolidation applies the whole update list as a single
// set-based UPDATE...FROM joined against a derived relation built from
// unnest() arrays, never a per-row loop (§4.3, §9 "Batch update shape").
// Idempotent at the field level: applying the same input twice yields the
// same final state.
func (s *Store) BatchUpdateConsolidation(ctx context.Context, updates []ConsolidationUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	ids := make([]string, len(updates))
	strengths := make([]float64, len(updates))
	recalls := make([]float64, len(updates))
	recencies := make([]float64, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		strengths[i] = u.ConsolidationStrength
		recalls[i] = u.RecallProbability
		recencies[i] = u.RecencyScore
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE memories AS m
		SET consolidation_strength = u.strength,
		    recall_probability = u.recall,
		    recency_score = u.recency,
		    updated_at = now()
		FROM (
			SELECT * FROM unnest($1::uuid[], $2::float8[], $3::float8[], $4::float8[])
			AS t(id, strength, recall, recency)
		) AS u
		WHERE m.id = u.id
	`, ids, strengths, recalls, recencies)
	if err != nil {
		return 0, apperr.Databasef(err, "batch update consolidation")
	}
	return tag.RowsAffected(), nil
}

// DecayCandidate is one row considered by the scheduler's consolidation
// sweep: enough state to recompute recall_probability and recency_score
// without a per-row access event.
type DecayCandidate struct {
	ID                    string
	ConsolidationStrength float64
	LastAccessedAt        *time.Time
	CreatedAt             time.Time
}

// GetActiveForDecay returns up to limit active memories ordered by least
// recently touched, for the scheduler's periodic recall/recency recompute
// (§3 "recomputed ... by scheduler"). Read-only.
func (s *Store) GetActiveForDecay(ctx context.Context, limit int) ([]DecayCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, consolidation_strength, last_accessed_at, created_at
		FROM memories
		WHERE status = 'active'
		ORDER BY coalesce(last_accessed_at, created_at) ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.Databasef(err, "get active for decay")
	}
	defer rows.Close()

	var out []DecayCandidate
	for rows.Next() {
		var c DecayCandidate
		if err := rows.Scan(&c.ID, &c.ConsolidationStrength, &c.LastAccessedAt, &c.CreatedAt); err != nil {
			return nil, apperr.Databasef(err, "scan decay candidate")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Databasef(err, "iterate decay candidates")
	}
	return out, nil
}

// GetMigrationCandidates returns up to limit memories in tier whose
// recall_probability falls below that tier's forward-migration threshold.
// Read-only: no transaction opened.
func (s *Store) GetMigrationCandidates(ctx context.Context, tier model.Tier, threshold float64, limit int) ([]*model.Memory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE tier = $1 AND status = 'active' AND recall_probability < $2
		ORDER BY recall_probability ASC
		LIMIT $3
	`, string(tier), threshold, limit)
	if err != nil {
		return nil, apperr.Databasef(err, "get migration candidates")
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, apperr.Databasef(err, "scan migration candidate")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Databasef(err, "iterate migration candidates")
	}
	return out, nil
}

// LowestScoredWorking returns the id of the active working-tier memory with
// the lowest combined_score, for capacity-driven demotion (§4.4).
func (s *Store) LowestScoredWorking(ctx context.Context, tx pgx.Tx) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id::text FROM memories
		WHERE tier = 'working' AND status = 'active'
		ORDER BY combined_score ASC
		LIMIT 1
	`).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// TierStats reports active memory counts and score averages per tier.
type TierStats struct {
	Tier              string
	Count             int64
	AvgCombinedScore  float64
	AvgRecallProb     float64
	AvgConsolidation  float64
}

// Stats returns per-tier counts and averages. Read-only.
func (s *Store) Stats(ctx context.Context) ([]TierStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tier, count(*),
		       coalesce(avg(combined_score), 0), coalesce(avg(recall_probability), 0),
		       coalesce(avg(consolidation_strength), 0)
		FROM memories
		WHERE status = 'active'
		GROUP BY tier
	`)
	if err != nil {
		return nil, apperr.Databasef(err, "stats")
	}
	defer rows.Close()

	var out []TierStats
	for rows.Next() {
		var t TierStats
		if err := rows.Scan(&t.Tier, &t.Count, &t.AvgCombinedScore, &t.AvgRecallProb, &t.AvgConsolidation); err != nil {
			return nil, apperr.Databasef(err, "scan stats row")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Databasef(err, "iterate stats")
	}
	return out, nil
}

// CountActiveInTier returns the number of active memories in tier. Used by
// the Tier Manager to enforce the working-tier capacity invariant. Accepts
// an optional transaction so capacity checks can participate in the same
// transaction as the insert that triggered them.
func (s *Store) CountActiveInTier(ctx context.Context, tx pgx.Tx, tier model.Tier) (int64, error) {
	var count int64
	var err error
	if tx != nil {
		err = tx.QueryRow(ctx, `SELECT count(*) FROM memories WHERE tier = $1 AND status = 'active'`, string(tier)).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM memories WHERE tier = $1 AND status = 'active'`, string(tier)).Scan(&count)
	}
	if err != nil {
		return 0, apperr.Databasef(err, "count active in tier")
	}
	return count, nil
}

// Begin exposes transaction control to callers that must coordinate a
// capacity-driven demotion with an insert in the same transaction (§4.4),
// such as the Tier Manager.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// CreateMemoryTx is CreateMemory's body run against an already-open
// transaction, so the Tier Manager can demote an overflow victim in the
// same transaction as the new insert (§4.4, scenario #2).
func (s *Store) CreateMemoryTx(ctx context.Context, tx pgx.Tx, m *model.Memory) (*model.Memory, error) {
	if len(m.Content) > 1<<20 {
		return nil, apperr.InvalidInputf(nil, "content exceeds 1 MiB")
	}
	m.Defaults()
	if len(m.ContentHash) == 0 {
		sum := sha256.Sum256([]byte(m.Content))
		m.ContentHash = sum[:]
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	metadataJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, apperr.InvalidInputf(err, "encode metadata")
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO memories (
			id, content, content_hash, embedding, tier, status,
			importance_score, created_at, updated_at, metadata, parent_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (content_hash, tier) WHERE status = 'active' DO NOTHING
		RETURNING `+memoryColumns,
		m.ID, m.Content, m.ContentHash, m.Embedding, string(m.Tier), string(m.Status),
		m.ImportanceScore, m.CreatedAt, m.UpdatedAt, metadataJSON, m.ParentID,
	)
	created, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.DuplicateContentf(err, "memory with identical content already active in tier %s", m.Tier)
	}
	if err != nil {
		return nil, apperr.Databasef(err, "insert memory")
	}
	return created, nil
}

// DemoteTx demotes id to warm inside tx, for use alongside CreateMemoryTx
// when working-tier capacity is exceeded.
func (s *Store) DemoteTx(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE memories SET tier = 'warm', updated_at = now() WHERE id = $1`, id)
	return err
}
