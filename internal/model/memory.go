// Package model defines the Memory entity, its enums, and the tier
// transition table. It has no dependency on the storage or protocol layers:
// invariants here are structural, not persistence-specific.
package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Tier is the four-tier lifecycle bucket from §4.4.
type Tier string

const (
	TierWorking Tier = "working"
	TierWarm    Tier = "warm"
	TierCold    Tier = "cold"
	TierFrozen  Tier = "frozen"
)

func (t Tier) Valid() bool {
	switch t {
	case TierWorking, TierWarm, TierCold, TierFrozen:
		return true
	}
	return false
}

// Status is the soft-delete lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// transitionEdges enumerates every permitted tier transition (§4.4). All
// other (from, to) pairs fail with InvalidTierTransition. This is the tagged
// transition table the design notes call for; invalid transitions are caught
// here at runtime since Go's enums cannot be restricted at compile time.
var transitionEdges = map[Tier]map[Tier]bool{
	TierWorking: {TierWarm: true},
	TierWarm:    {TierCold: true, TierWorking: true},
	TierCold:    {TierFrozen: true, TierWarm: true},
	TierFrozen:  {},
}

// CanTransition reports whether from->to is one of the permitted edges in
// §4.4: working->warm, warm->cold, cold->frozen, warm->working (promote),
// cold->warm (unfreeze-adjacent). A same-tier "transition" (from == to) is
// always allowed as a no-op commit per §8's idempotence requirement.
func CanTransition(from, to Tier) bool {
	if from == to {
		return true
	}
	edges, ok := transitionEdges[from]
	return ok && edges[to]
}

// Memory is the engine's sole persisted entity (§3).
type Memory struct {
	ID         string
	Content    string
	ContentHash []byte
	Embedding  *pgvector.Vector

	Tier   Tier
	Status Status

	ImportanceScore float64
	AccessCount     int64

	SuccessfulRetrievals int64
	FailedRetrievals     int64
	EaseFactor           float64
	ConsolidationStrength float64
	DecayRate             float64
	RecallProbability     float64
	LastRecallInterval    time.Duration

	RecencyScore   float64
	RelevanceScore float64
	CombinedScore  float64

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt *time.Time
	ExpiresAt      *time.Time

	Metadata map[string]any

	ParentID           *string
	CompressedPayload []byte
}

// Defaults applies the entity-level defaults spec §3 assigns at creation:
// ease_factor=2.5, consolidation_strength=1 (so RecallProbability never
// divides by zero), decay_rate=1, recall_probability=1.
func (m *Memory) Defaults() {
	if m.Tier == "" {
		m.Tier = TierWorking
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.EaseFactor == 0 {
		m.EaseFactor = 2.5
	}
	if m.ConsolidationStrength == 0 {
		m.ConsolidationStrength = 1.0
	}
	if m.DecayRate == 0 {
		m.DecayRate = 1.0
	}
	if m.RecallProbability == 0 {
		m.RecallProbability = 1.0
	}
}

// HasEmbedding reports whether the memory carries a populated embedding
// vector. §3's exactly-one-of invariant uses this alongside HasCompressed.
func (m *Memory) HasEmbedding() bool {
	return m.Embedding != nil
}

// HasCompressed reports whether the memory carries a populated
// compressed_payload (only true in the frozen tier).
func (m *Memory) HasCompressed() bool {
	return len(m.CompressedPayload) > 0
}
