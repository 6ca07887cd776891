package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/synapsedb/synapse/internal/apperr"
	"github.com/synapsedb/synapse/internal/mathengine"
	"github.com/synapsedb/synapse/internal/model"
)

// newMockStore builds a Store backed by a pgxmock pool instead of a live
// database, for asserting transactional shape (commit/rollback ordering,
// round-trip/idempotence properties) without a Postgres instance.
func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return &Store{pool: mock, dim: 3, mathCfg: mathengine.DefaultConfig()}, mock
}

func reQuote(s string) string { return regexp.QuoteMeta(s) }

// memoryRowValues returns a value slice in memoryColumns' scan order, for
// building a pgxmock.Rows fixture out of a model.Memory. Tests keep Embedding
// nil throughout: pgvector's wire codec is exercised by the Repository's real
// driver path, not by this mock, which only stands in for control flow.
func memoryRowValues(m *model.Memory) []any {
	return []any{
		m.ID, m.Content, m.ContentHash, m.Embedding, string(m.Tier), string(m.Status),
		m.ImportanceScore, m.AccessCount, m.SuccessfulRetrievals, m.FailedRetrievals,
		m.EaseFactor, m.ConsolidationStrength, m.DecayRate, m.RecallProbability,
		int64(m.LastRecallInterval / time.Second), m.RecencyScore, m.RelevanceScore, m.CombinedScore,
		m.CreatedAt, m.UpdatedAt, m.LastAccessedAt, m.ExpiresAt, []byte("{}"),
		m.ParentID, m.CompressedPayload,
	}
}

func memoryRows(m *model.Memory) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "content", "content_hash", "embedding", "tier", "status",
		"importance_score", "access_count", "successful_retrievals", "failed_retrievals",
		"ease_factor", "consolidation_strength", "decay_rate", "recall_probability",
		"last_recall_interval_seconds", "recency_score", "relevance_score", "combined_score",
		"created_at", "updated_at", "last_accessed_at", "expires_at", "metadata",
		"parent_id", "compressed_payload",
	}).AddRow(memoryRowValues(m)...)
}

func testMemory(id string, tier model.Tier) *model.Memory {
	now := time.Now().UTC()
	m := &model.Memory{
		ID:        id,
		Content:   "remember this",
		Tier:      tier,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.Defaults()
	return m
}

// TestCreateMemory_ThenGetMemory_RoundTrips covers §8's store->get round
// trip: a memory read back by id has the created memory's id, content, and tier.
func TestCreateMemory_ThenGetMemory_RoundTrips(t *testing.T) {
	s, mock := newMockStore(t)
	want := testMemory("11111111-1111-1111-1111-111111111111", model.TierWorking)

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("INSERT INTO memories")).
		WillReturnRows(memoryRows(want))
	mock.ExpectCommit()

	created, err := s.CreateMemory(context.Background(), &model.Memory{ID: want.ID, Content: want.Content})
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	mock.ExpectQuery(reQuote("FROM memories WHERE id = $1")).
		WillReturnRows(memoryRows(want))

	got, err := s.GetMemory(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}

	if got.ID != created.ID || got.Content != created.Content || got.Tier != created.Tier {
		t.Errorf("round trip mismatch: created=%+v got=%+v", created, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestCreateMemory_DuplicateContentReturnsNoRowsAsDuplicate exercises the
// ON CONFLICT ... DO NOTHING dedup path: zero rows back means DuplicateContent,
// and the transaction is rolled back rather than committed.
func TestCreateMemory_DuplicateContentReturnsNoRowsAsDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("INSERT INTO memories")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.CreateMemory(context.Background(), &model.Memory{Content: "dup"})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.DuplicateContent {
		t.Fatalf("expected DuplicateContent, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestMigrateMemory_SameTierIsIdempotent covers §8's same-tier migration
// idempotence: migrating a memory to the tier it is already in is a
// documented no-op that still commits cleanly rather than rejecting.
func TestMigrateMemory_SameTierIsIdempotent(t *testing.T) {
	s, mock := newMockStore(t)
	want := testMemory("22222222-2222-2222-2222-222222222222", model.TierWarm)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(reQuote("SELECT tier FROM memories WHERE id = $1 FOR UPDATE")).
			WillReturnRows(pgxmock.NewRows([]string{"tier"}).AddRow(string(model.TierWarm)))
		mock.ExpectQuery(reQuote("UPDATE memories SET tier")).
			WillReturnRows(memoryRows(want))
		mock.ExpectCommit()

		got, err := s.MigrateMemory(context.Background(), want.ID, model.TierWarm, "idempotence check")
		if err != nil {
			t.Fatalf("MigrateMemory iteration %d: %v", i, err)
		}
		if got.Tier != model.TierWarm {
			t.Fatalf("expected tier to remain warm, got %s", got.Tier)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestMigrateMemory_InvalidTransitionRollsBackWithoutMutating asserts the
// early-return branch after the invalid-transition check issues no UPDATE
// and still rolls back the transaction it opened (§9 "connection-pool
// leakage" / no row locks held past the early return).
func TestMigrateMemory_InvalidTransitionRollsBackWithoutMutating(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("SELECT tier FROM memories WHERE id = $1 FOR UPDATE")).
		WillReturnRows(pgxmock.NewRows([]string{"tier"}).AddRow(string(model.TierFrozen)))
	mock.ExpectRollback()

	_, err := s.MigrateMemory(context.Background(), "33333333-3333-3333-3333-333333333333", model.TierWorking, "bad transition")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.InvalidTierTransition {
		t.Fatalf("expected InvalidTierTransition, got %v", err)
	}
	// The UPDATE after the transition check must never be attempted: asserting
	// on expectations confirms only Begin/SELECT FOR UPDATE/Rollback ran, no
	// row lock escaping past this early return.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations (extra statements executed past early return?): %v", err)
	}
}

// TestMigrateMemory_NotFoundRollsBackWithoutBeginningUpdate covers the
// not-found early return: no such id locked, transaction still rolls back
// cleanly rather than leaking the connection back to the pool mid-transaction.
func TestMigrateMemory_NotFoundRollsBackWithoutBeginningUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("SELECT tier FROM memories WHERE id = $1 FOR UPDATE")).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.MigrateMemory(context.Background(), "does-not-exist", model.TierWarm, "")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestFreezeMemory_ThenUnfreezeMemory_RestoresContentAndMetadataExactly
// covers §8's freeze -> unfreeze exact restoration property.
func TestFreezeMemory_ThenUnfreezeMemory_RestoresContentAndMetadataExactly(t *testing.T) {
	s, mock := newMockStore(t)
	id := "44444444-4444-4444-4444-444444444444"
	originalContent := "a memory worth keeping cold"
	originalMetadata := []byte(`{"tags":["archive"]}`)

	payload, err := compressPayload(originalContent, originalMetadata)
	if err != nil {
		t.Fatalf("compressPayload: %v", err)
	}

	frozen := testMemory(id, model.TierFrozen)
	frozen.CompressedPayload = payload

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("SELECT tier, recall_probability, content, metadata FROM memories WHERE id = $1 FOR UPDATE")).
		WillReturnRows(pgxmock.NewRows([]string{"tier", "recall_probability", "content", "metadata"}).
			AddRow(string(model.TierCold), 0.1, originalContent, originalMetadata))
	mock.ExpectQuery(reQuote("SET tier = 'frozen'")).
		WillReturnRows(memoryRows(frozen))
	mock.ExpectCommit()

	frozenResult, err := s.FreezeMemory(context.Background(), id, "cold and unused")
	if err != nil {
		t.Fatalf("FreezeMemory: %v", err)
	}
	if frozenResult.Tier != model.TierFrozen {
		t.Fatalf("expected frozen tier, got %s", frozenResult.Tier)
	}

	cold := testMemory(id, model.TierCold)
	cold.Content = originalContent

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("SELECT compressed_payload FROM memories WHERE id = $1 FOR UPDATE")).
		WillReturnRows(pgxmock.NewRows([]string{"compressed_payload"}).AddRow(payload))
	mock.ExpectQuery(reQuote("SET tier = 'cold'")).
		WillReturnRows(memoryRows(cold))
	mock.ExpectCommit()

	unfrozen, err := s.UnfreezeMemory(context.Background(), id)
	if err != nil {
		t.Fatalf("UnfreezeMemory: %v", err)
	}
	if unfrozen.Content != originalContent {
		t.Errorf("expected content restored exactly, got %q want %q", unfrozen.Content, originalContent)
	}
	if unfrozen.Tier != model.TierCold {
		t.Errorf("expected tier restored to cold, got %s", unfrozen.Tier)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestFreezeMemory_RejectedRequestRollsBackWithoutMutating covers the
// tier/recall-probability guard's early return: the lock is released via
// rollback, no UPDATE is attempted.
func TestFreezeMemory_RejectedRequestRollsBackWithoutMutating(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("SELECT tier, recall_probability, content, metadata FROM memories WHERE id = $1 FOR UPDATE")).
		WillReturnRows(pgxmock.NewRows([]string{"tier", "recall_probability", "content", "metadata"}).
			AddRow(string(model.TierWarm), 0.9, "still active", []byte("{}")))
	mock.ExpectRollback()

	_, err := s.FreezeMemory(context.Background(), "55555555-5555-5555-5555-555555555555", "premature freeze attempt")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations (no UPDATE should have been attempted): %v", err)
	}
}

// TestUnfreezeMemory_NoPayloadRollsBackWithoutMutating covers the
// no-compressed-payload early return.
func TestUnfreezeMemory_NoPayloadRollsBackWithoutMutating(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reQuote("SELECT compressed_payload FROM memories WHERE id = $1 FOR UPDATE")).
		WillReturnRows(pgxmock.NewRows([]string{"compressed_payload"}).AddRow([]byte(nil)))
	mock.ExpectRollback()

	_, err := s.UnfreezeMemory(context.Background(), "66666666-6666-6666-6666-666666666666")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestBatchUpdateConsolidation_IdempotentAppliedTwice covers §4.3/§9's batch
// update idempotence: applying the same update list twice affects the same
// row count both times and leaves no residual state dependent on call count.
func TestBatchUpdateConsolidation_IdempotentAppliedTwice(t *testing.T) {
	s, mock := newMockStore(t)
	updates := []ConsolidationUpdate{
		{ID: "77777777-7777-7777-7777-777777777777", ConsolidationStrength: 2.5, RecallProbability: 0.8, RecencyScore: 0.6},
	}

	for i := 0; i < 2; i++ {
		mock.ExpectExec(reQuote("UPDATE memories AS m")).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		n, err := s.BatchUpdateConsolidation(context.Background(), updates)
		if err != nil {
			t.Fatalf("BatchUpdateConsolidation iteration %d: %v", i, err)
		}
		if n != 1 {
			t.Fatalf("iteration %d: expected 1 row affected, got %d", i, n)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestBatchUpdateConsolidation_EmptyInputIsNoop asserts the zero-length guard
// never opens a connection at all.
func TestBatchUpdateConsolidation_EmptyInputIsNoop(t *testing.T) {
	s, mock := newMockStore(t)

	n, err := s.BatchUpdateConsolidation(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) for empty input, got (%d, %v)", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected zero queries issued, got: %v", err)
	}
}

// TestUpdateMemory_InvalidImportanceRollsBackBeforeAnyStatement covers
// UpdateMemory's validation early return: the transaction is still rolled
// back even though nothing beyond Begin ran.
func TestUpdateMemory_InvalidImportanceRollsBackBeforeAnyStatement(t *testing.T) {
	s, mock := newMockStore(t)
	bad := 1.5

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.UpdateMemory(context.Background(), "88888888-8888-8888-8888-888888888888", &MemoryUpdate{ImportanceScore: &bad})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
