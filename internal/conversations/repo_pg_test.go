package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crm-backend/internal/ai"
)

func conversationRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "lead_name", "lead_phone", "status",
		"ai_summary", "ai_summary_version", "ai_priority", "ai_priority_reason", "ai_tags", "ai_tag_confidence", "ai_updated_at",
		"ai_update_policy", "messages_since_last_ai", "created_at", "updated_at",
	}).AddRow(
		"c1", "t1", "Dana", "+15550100", StatusOpen,
		"summary", 3, "HIGH", "buying intent", `["pricing"]`, `{"pricing":0.9}`, now,
		`{"mode":"EVERY_N_MESSAGES","n":5}`, 2, now, now,
	)
}

// The tenant ID is part of the WHERE clause, not an afterthought: a lookup
// with the wrong tenant behaves exactly like a missing row.
func TestPGRepoGetByIDScopesTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE id = \\$1 AND tenant_id = \\$2").
		WithArgs("c1", "t1").
		WillReturnRows(conversationRows(now))

	conv, err := repo.GetByID(context.Background(), "t1", "c1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if conv.AISummaryVersion != 3 || conv.AIUpdatePolicy == nil || conv.AIUpdatePolicy.N != 5 {
		t.Fatalf("conv = %+v", conv)
	}
	if len(conv.AITags) != 1 || conv.AITags[0] != "pricing" {
		t.Fatalf("tags = %v", conv.AITags)
	}

	mock.ExpectQuery("WHERE id = \\$1 AND tenant_id = \\$2").
		WithArgs("c1", "other-tenant").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "other-tenant", "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant lookup: want ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

// ApplyAnalysis is one statement: version bump, counter reset and all AI
// fields together.
func TestPGRepoApplyAnalysisAtomicUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()
	result := ai.AnalysisResult{
		Summary:        "updated summary",
		Priority:       ai.PriorityHigh,
		PriorityReason: "asked for contract",
		Tags:           []ai.Tag{{Tag: "pricing", Confidence: 0.9}},
	}

	mock.ExpectQuery("ai_summary_version = ai_summary_version \\+ 1").
		WithArgs(
			"c1",
			"t1",
			"updated summary",
			"HIGH",
			"asked for contract",
			sqlmock.AnyArg(), // tags jsonb
			sqlmock.AnyArg(), // confidence jsonb
			now,
		).
		WillReturnRows(conversationRows(now))

	conv, err := repo.ApplyAnalysis(context.Background(), "t1", "c1", result, now)
	if err != nil {
		t.Fatalf("ApplyAnalysis: %v", err)
	}
	if conv.ID != "c1" {
		t.Fatalf("conv = %+v", conv)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoApplyAnalysisMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectQuery("UPDATE conversations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.ApplyAnalysis(context.Background(), "t1", "gone", ai.AnalysisResult{
		Summary:  "s",
		Priority: ai.PriorityLow,
	}, time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGRepoIncrementMessagesSinceAI(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectExec("messages_since_last_ai = messages_since_last_ai \\+ 1").
		WithArgs("c1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementMessagesSinceAI(context.Background(), "t1", "c1"); err != nil {
		t.Fatalf("IncrementMessagesSinceAI: %v", err)
	}

	mock.ExpectExec("messages_since_last_ai = messages_since_last_ai \\+ 1").
		WithArgs("gone", "t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.IncrementMessagesSinceAI(context.Background(), "t1", "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
