package protocol

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/model"
	"github.com/synapsedb/synapse/internal/store"
)

const defaultImportance = 0.5

type storeMemoryArgs struct {
	Content         string         `json:"content"`
	ImportanceScore *float64       `json:"importance_score"`
	Tier            string         `json:"tier"`
	Metadata        map[string]any `json:"metadata"`
}

func (s *Server) handleStoreMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	var args storeMemoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.InvalidInputf(nil, "invalid store_memory arguments: %v", err)
	}
	if err := validateContent(args.Content); err != nil {
		return nil, err
	}
	importance := defaultImportance
	if args.ImportanceScore != nil {
		importance = *args.ImportanceScore
	}
	if err := validateImportance(importance); err != nil {
		return nil, err
	}

	tier := model.TierWorking
	if args.Tier != "" {
		tier = model.Tier(args.Tier)
		if !tier.Valid() {
			return nil, apperr.InvalidInputf(nil, "tier %q is not a valid tier", args.Tier)
		}
	}

	m := &model.Memory{
		Content:         args.Content,
		Tier:            tier,
		ImportanceScore: importance,
		Metadata:        args.Metadata,
	}

	vec, err := s.embed(ctx, args.Content)
	if err != nil {
		log.Warn("embedding unavailable, storing without vector", "error", err)
	} else {
		m.Embedding = vec
	}

	var created *model.Memory
	if tier == model.TierWorking {
		err = s.storeBreaker.Call(ctx, func(ctx context.Context) error {
			var cErr error
			created, cErr = s.tiers.StoreWorking(ctx, m)
			return cErr
		})
	} else {
		err = s.storeBreaker.Call(ctx, func(ctx context.Context) error {
			var cErr error
			created, cErr = s.st.CreateMemory(ctx, m)
			return cErr
		})
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

type searchMemoryArgs struct {
	Query         string         `json:"query"`
	SearchType    string         `json:"search_type"`
	Limit         int            `json:"limit"`
	Threshold     *float64       `json:"threshold"`
	Tier          string         `json:"tier"`
	TimeRange     *timeRangeArgs `json:"time_range"`
	MinImportance *float64       `json:"min_importance"`
}

type timeRangeArgs struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) handleSearchMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	var args searchMemoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.InvalidInputf(nil, "invalid search_memory arguments: %v", err)
	}
	if args.Query == "" {
		return nil, apperr.InvalidInputf(nil, "query must not be empty")
	}
	if args.Limit == 0 {
		args.Limit = 10
	}
	if err := validateLimit(args.Limit); err != nil {
		return nil, err
	}
	if args.Threshold != nil {
		if err := validateThreshold(*args.Threshold); err != nil {
			return nil, err
		}
	}
	if args.MinImportance != nil {
		if err := validateImportance(*args.MinImportance); err != nil {
			return nil, err
		}
	}

	searchType := store.SearchType(args.SearchType)
	if searchType == "" {
		searchType = store.SearchHybrid
	}

	req := store.SearchRequest{
		Type:          searchType,
		QueryText:     args.Query,
		Limit:         args.Limit,
		Threshold:     args.Threshold,
		MinImportance: args.MinImportance,
	}
	if args.Tier != "" {
		tier := model.Tier(args.Tier)
		if !tier.Valid() {
			return nil, apperr.InvalidInputf(nil, "tier %q is not a valid tier", args.Tier)
		}
		req.Tier = &tier
	}
	if args.TimeRange != nil {
		req.TimeRangeFrom = &args.TimeRange.Start
		req.TimeRangeTo = &args.TimeRange.End
	}

	if searchType == store.SearchSemantic || searchType == store.SearchHybrid {
		vec, err := s.embed(ctx, args.Query)
		if err != nil {
			if searchType == store.SearchSemantic {
				return nil, err
			}
			log.Warn("embedding unavailable for hybrid search, falling back to non-vector terms", "error", err)
		} else {
			req.QueryEmbedding = vec
		}
	}

	var results []store.SearchResult
	err := s.storeBreaker.Call(ctx, func(ctx context.Context) error {
		var sErr error
		results, sErr = s.st.Search(ctx, req)
		return sErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

type getMemoryArgs struct {
	ID string `json:"id"`
}

func (s *Server) handleGetMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	start := time.Now()
	var args getMemoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.InvalidInputf(nil, "invalid get_memory arguments: %v", err)
	}
	if args.ID == "" {
		return nil, apperr.InvalidInputf(nil, "id is required")
	}

	// §3 "recomputed on access": retrieving a memory also recomputes its
	// consolidation/recall/recency state, using this request's own latency
	// as the difficulty signal (§4.1 Difficulty).
	var m *model.Memory
	err := s.storeBreaker.Call(ctx, func(ctx context.Context) error {
		var aErr error
		latencyMillis := float64(time.Since(start).Milliseconds())
		m, aErr = s.st.RecordAccess(ctx, args.ID, latencyMillis, true)
		return aErr
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

type deleteMemoryArgs struct {
	ID      string `json:"id"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleDeleteMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	var args deleteMemoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.InvalidInputf(nil, "invalid delete_memory arguments: %v", err)
	}
	if args.ID == "" {
		return nil, apperr.InvalidInputf(nil, "id is required")
	}
	if !args.Confirm {
		return nil, apperr.InvalidInputf(nil, "confirm must be true to delete a memory")
	}

	var m *model.Memory
	err := s.storeBreaker.Call(ctx, func(ctx context.Context) error {
		var dErr error
		m, dErr = s.st.DeleteMemory(ctx, args.ID)
		return dErr
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

type migrateMemoryArgs struct {
	ID         string `json:"id"`
	TargetTier string `json:"target_tier"`
	Reason     string `json:"reason"`
}

func (s *Server) handleMigrateMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	var args migrateMemoryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.InvalidInputf(nil, "invalid migrate_memory arguments: %v", err)
	}
	if args.ID == "" {
		return nil, apperr.InvalidInputf(nil, "id is required")
	}
	target := model.Tier(args.TargetTier)
	if !target.Valid() {
		return nil, apperr.InvalidInputf(nil, "target_tier %q is not a valid tier", args.TargetTier)
	}
	reason := args.Reason
	if reason == "" {
		reason = "manual migration via tool call"
	}

	var m *model.Memory
	err := s.storeBreaker.Call(ctx, func(ctx context.Context) error {
		var mErr error
		m, mErr = s.st.MigrateMemory(ctx, args.ID, target, reason)
		return mErr
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// statsResult is the get_stats response shape: per-tier repository counts
// alongside the Tier Manager's migration counters and pool saturation.
type statsResult struct {
	Tiers      []store.TierStats `json:"tiers"`
	Migrations []interface{}     `json:"migrations"`
	Pool       *store.PoolStats  `json:"pool"`
}

func (s *Server) handleGetStats(ctx context.Context, _ json.RawMessage) (any, error) {
	var tierStats []store.TierStats
	err := s.storeBreaker.Call(ctx, func(ctx context.Context) error {
		var sErr error
		tierStats, sErr = s.st.Stats(ctx)
		return sErr
	})
	if err != nil {
		return nil, err
	}

	pairStats := s.tiers.Stats()
	migrations := make([]interface{}, len(pairStats))
	for i, p := range pairStats {
		migrations[i] = p
	}

	return statsResult{
		Tiers:      tierStats,
		Migrations: migrations,
		Pool:       s.st.PoolStats(s.poolSaturationThreshold),
	}, nil
}

// embed wraps the embedding gateway call in the embedding circuit breaker.
func (s *Server) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	var vec *pgvector.Vector
	err := s.embedBreaker.Call(ctx, func(ctx context.Context) error {
		result, eErr := s.embedder.Embed(ctx, text)
		if eErr != nil {
			return eErr
		}
		vec = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}
