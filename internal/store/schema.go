package store

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the memories table, its generated combined_score
// column, and the composite indexes from §6 for dedup, capacity queries,
// candidate selection, maintenance sweeps, and combined_score ranking. The
// HNSW index on embedding is created separately from VectorIndexSchema.
//
// combined_score is baked in as GENERATED ALWAYS ... STORED using the
// default equal weights (1/3, 1/3, 1/3) from the math engine. This column
// cannot be re-derived at query time if weights are overridden at runtime;
// application code treats mathengine.CombinedScore as the source of truth
// and the column as an index-backed approximation under default weights.
const CoreSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS memories (
	id UUID PRIMARY KEY,
	content TEXT,
	content_hash BYTEA NOT NULL,
	embedding vector,
	tier TEXT NOT NULL DEFAULT 'working'
		CHECK (tier IN ('working', 'warm', 'cold', 'frozen')),
	status TEXT NOT NULL DEFAULT 'active'
		CHECK (status IN ('active', 'archived', 'deleted')),
	importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5
		CHECK (importance_score >= 0 AND importance_score <= 1),
	access_count BIGINT NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	successful_retrievals BIGINT NOT NULL DEFAULT 0 CHECK (successful_retrievals >= 0),
	failed_retrievals BIGINT NOT NULL DEFAULT 0 CHECK (failed_retrievals >= 0),
	ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5
		CHECK (ease_factor >= 1.3 AND ease_factor <= 2.5),
	consolidation_strength DOUBLE PRECISION NOT NULL DEFAULT 1.0
		CHECK (consolidation_strength > 0 AND consolidation_strength <= 10),
	decay_rate DOUBLE PRECISION NOT NULL DEFAULT 1.0
		CHECK (decay_rate > 0 AND decay_rate <= 5),
	recall_probability DOUBLE PRECISION NOT NULL DEFAULT 1.0
		CHECK (recall_probability >= 0 AND recall_probability <= 1),
	last_recall_interval_seconds BIGINT NOT NULL DEFAULT 0,
	recency_score DOUBLE PRECISION NOT NULL DEFAULT 1.0
		CHECK (recency_score >= 0 AND recency_score <= 1),
	relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0.0
		CHECK (relevance_score >= 0 AND relevance_score <= 1),
	combined_score DOUBLE PRECISION GENERATED ALWAYS AS (
		(recency_score / 3.0) + (importance_score / 3.0) + (relevance_score / 3.0)
	) STORED,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_accessed_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	parent_id UUID REFERENCES memories(id) ON DELETE SET NULL,
	compressed_payload BYTEA
);

-- Uniqueness is scoped to active rows only: deleted/archived tombstones do
-- not block re-storing the same content.
CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_dedup
	ON memories (content_hash, tier)
	WHERE status = 'active';

CREATE INDEX IF NOT EXISTS idx_memories_tier_status
	ON memories (tier, status);

CREATE INDEX IF NOT EXISTS idx_memories_tier_recall
	ON memories (tier, recall_probability);

CREATE INDEX IF NOT EXISTS idx_memories_status_last_accessed
	ON memories (status, last_accessed_at);

CREATE INDEX IF NOT EXISTS idx_memories_combined_score
	ON memories (combined_score DESC);

CREATE INDEX IF NOT EXISTS idx_memories_parent
	ON memories (parent_id);
`

// VectorIndexSchema creates the HNSW index on embedding. Parameters are
// tuned for dimension >= 1000 per §6; m and ef_construction are supplied by
// the caller since they depend on the configured embedding dimension.
const VectorIndexSchema = `
CREATE INDEX IF NOT EXISTS idx_memories_embedding_hnsw
	ON memories USING hnsw (embedding vector_cosine_ops)
	WITH (m = %d, ef_construction = %d);
`

// FullTextSchema adds a generated tsvector column and GIN index backing the
// fulltext search variant.
const FullTextSchema = `
ALTER TABLE memories ADD COLUMN IF NOT EXISTS content_tsv tsvector
	GENERATED ALWAYS AS (to_tsvector('english', coalesce(content, ''))) STORED;

CREATE INDEX IF NOT EXISTS idx_memories_content_tsv
	ON memories USING gin (content_tsv);
`

// DefaultHNSWParams returns (m, ef_construction) tuned for the given
// embedding dimension, per §6 (m~=48, ef_construct~=200 for dim>=1000).
func DefaultHNSWParams(dimension int) (m int, efConstruction int) {
	if dimension >= 1000 {
		return 48, 200
	}
	return 16, 64
}
