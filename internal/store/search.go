package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/model"
)

// SearchType selects which of the four ranking variants to run.
type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchTemporal SearchType = "temporal"
	SearchFulltext SearchType = "fulltext"
	SearchHybrid   SearchType = "hybrid"
)

// requiredColumns is the column contract every search variant must satisfy
// (§4.3 "Search contract"). The validator checks this list before result
// assembly, never trusting a variant's query to produce the right shape
// (§9 "Search column contract").
var requiredColumns = []string{
	"similarity_score",
	"temporal_score",
	"importance_score",
	"relevance_score",
	"access_frequency_score",
	"combined_score",
}

// SearchRequest carries the filters common to every variant; unset
// pointers mean "no filter".
type SearchRequest struct {
	Type          SearchType
	QueryText     string
	QueryEmbedding *pgvector.Vector
	Tier          *model.Tier
	TimeRangeFrom *time.Time
	TimeRangeTo   *time.Time
	MinImportance *float64
	Threshold     *float64
	Limit         int
	Offset        int
}

// SearchResult is a single ranked row, satisfying the column contract.
type SearchResult struct {
	Memory               *model.Memory
	SimilarityScore      float64
	TemporalScore        float64
	ImportanceScore      float64
	RelevanceScore       float64
	AccessFrequencyScore float64
	CombinedScore        float64
}

// validateColumnContract checks presence of the required column contract against the
// columns a query actually returned, per §4.3/§9. Missing columns produce a
// diagnostic naming both the missing and the available columns rather than
// a silent empty result.
func validateColumnContract(available []string) error {
	have := make(map[string]bool, len(available))
	for _, c := range available {
		have[c] = true
	}
	var missing []string
	for _, req := range requiredColumns {
		if !have[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return apperr.InvalidInputf(nil,
			"search result missing required columns %v (available: %v)", missing, available)
	}
	return nil
}

// Search runs one of the four ranking variants against filters and returns
// a validated, uniformly-shaped result set (§4.3). Read-only: no
// transaction opened.
func (s *Store) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if req.Limit <= 0 || req.Limit > 1000 {
		return nil, apperr.InvalidInputf(nil, "limit must be in [1,1000]")
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return nil, apperr.InvalidInputf(nil, "threshold must be in [0,1]")
	}

	query, args := req.build()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Databasef(err, "search query")
	}
	defer rows.Close()

	var colNames []string
	for _, fd := range rows.FieldDescriptions() {
		colNames = append(colNames, string(fd.Name))
	}
	if err := validateColumnContract(colNames); err != nil {
		return nil, err
	}

	var out []SearchResult
	for rows.Next() {
		r, err := scanSearchResult(rows)
		if err != nil {
			return nil, apperr.Databasef(err, "scan search result")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Databasef(err, "iterate search results")
	}
	return out, nil
}

type searchRow interface {
	Scan(dest ...any) error
}

func scanSearchResult(row searchRow) (*SearchResult, error) {
	var m model.Memory
	var tier, status string
	var metadataJSON []byte
	var parentID *string
	var lastRecallSeconds int64
	var embedding *pgvector.Vector
	var content *string // NULL for frozen-tier rows
	var r SearchResult

	err := row.Scan(
		&m.ID, &content, &m.ContentHash, &embedding, &tier, &status,
		&m.ImportanceScore, &m.AccessCount, &m.SuccessfulRetrievals, &m.FailedRetrievals,
		&m.EaseFactor, &m.ConsolidationStrength, &m.DecayRate, &m.RecallProbability,
		&lastRecallSeconds, &m.RecencyScore, &m.RelevanceScore, &m.CombinedScore,
		&m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt, &m.ExpiresAt, &metadataJSON,
		&parentID, &m.CompressedPayload,
		&r.SimilarityScore, &r.TemporalScore, &r.ImportanceScore, &r.RelevanceScore,
		&r.AccessFrequencyScore, &r.CombinedScore,
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
	r.Memory = &m
	return &r, nil
}

// build renders the SQL for this request's variant. All user-supplied
// values bind as parameters; none are interpolated (§4.3
// "Parameterisation").
func (req SearchRequest) build() (string, []any) {
	selectCols := memoryColumns + `,
		%s AS similarity_score,
		%s AS temporal_score,
		importance_score AS importance_score,
		relevance_score AS relevance_score,
		ln(1 + access_count) * 0.1 AS access_frequency_score,
		combined_score AS combined_score
	`

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	// thresholdExpr is the SQL expression `threshold` is compared against.
	// It always names the score this variant actually ranks by, never the
	// dummy "0" placeholder similarityExpr uses for variants with no
	// cosine-similarity term — otherwise a positive threshold would silently
	// zero out every result for those variants (§6 "threshold" is a generic
	// search_memory parameter, not restricted to similarity-bearing types).
	var similarityExpr, temporalExpr, thresholdExpr, orderBy string
	switch req.Type {
	case SearchSemantic:
		vecArg := arg(req.QueryEmbedding)
		similarityExpr = fmt.Sprintf("1 - (embedding <=> %s)", vecArg)
		temporalExpr = "recency_score"
		thresholdExpr = similarityExpr
		orderBy = "similarity_score DESC"
	case SearchTemporal:
		similarityExpr = "0"
		temporalExpr = "recency_score"
		thresholdExpr = "recency_score"
		orderBy = "recency_score DESC"
	case SearchFulltext:
		queryArg := arg(req.QueryText)
		similarityExpr = fmt.Sprintf("ts_rank(content_tsv, plainto_tsquery('english', %s))", queryArg)
		temporalExpr = "recency_score"
		thresholdExpr = similarityExpr
		orderBy = "similarity_score DESC"
	case SearchHybrid:
		if req.QueryEmbedding != nil {
			vecArg := arg(req.QueryEmbedding)
			similarityExpr = fmt.Sprintf("1 - (embedding <=> %s)", vecArg)
			thresholdExpr = similarityExpr
		} else {
			similarityExpr = "0"
			thresholdExpr = "combined_score"
		}
		temporalExpr = "recency_score"
		orderBy = "combined_score DESC, similarity_score DESC"
	default:
		similarityExpr = "0"
		temporalExpr = "recency_score"
		thresholdExpr = "combined_score"
		orderBy = "combined_score DESC"
	}

	query := "SELECT " + fmt.Sprintf(selectCols, similarityExpr, temporalExpr) + " FROM memories WHERE status = 'active'"

	if req.Tier != nil {
		query += " AND tier = " + arg(string(*req.Tier))
	}
	if req.TimeRangeFrom != nil {
		query += " AND created_at >= " + arg(*req.TimeRangeFrom)
	}
	if req.TimeRangeTo != nil {
		query += " AND created_at <= " + arg(*req.TimeRangeTo)
	}
	if req.MinImportance != nil {
		query += " AND importance_score >= " + arg(*req.MinImportance)
	}
	if req.Type == SearchSemantic || (req.Type == SearchHybrid && req.QueryEmbedding != nil) {
		query += " AND embedding IS NOT NULL"
	}
	if req.Threshold != nil {
		query += fmt.Sprintf(" AND (%s) >= %s", thresholdExpr, arg(*req.Threshold))
	}

	query += " ORDER BY " + orderBy
	query += " LIMIT " + arg(req.Limit)
	query += " OFFSET " + arg(req.Offset)

	return query, args
}

// sortByCombinedScore is a defensive in-process re-sort used by tests that
// fabricate rows out of order; production queries already ORDER BY in SQL.
func sortByCombinedScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
}
