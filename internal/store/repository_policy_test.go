package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/models"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	l := logger.Nop()
	return &DB{
		DB:      conn,
		breaker: newStorageBreaker(3, time.Second, l),
		logger:  l,
	}, mock
}

func policyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "rule_name", "url_pattern", "file_hash", "mime_type", "action",
		"match_type", "enforcement_action", "created_at", "created_by",
		"expires_at", "hit_count", "last_hit",
	})
}

func TestCreatePolicy_Success(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	policy := models.Policy{
		RuleName:  "eicar-test",
		FileHash:  "44d88612fea8a8f36de82e1278abb02f44d88612fea8a8f36de82e1278abb02f",
		Action:    models.ActionQuarantine,
		MatchType: models.MatchDownload,
		CreatedAt: time.Now(),
		CreatedBy: "test",
	}

	mock.ExpectExec("INSERT INTO policies").
		WithArgs(
			policy.RuleName, policy.URLPattern, policy.FileHash,
			policy.MimeType, string(policy.Action), string(policy.MatchType),
			policy.EnforcementAction, sqlmock.AnyArg(), policy.CreatedBy, nil,
		).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.CreatePolicy(context.Background(), policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 {
		t.Errorf("expected id=7, got %d", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetPolicy_NotFound(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	mock.ExpectQuery("SELECT (.+) FROM policies").
		WithArgs(int64(42)).
		WillReturnRows(policyRows())

	_, err := repo.GetPolicy(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPolicy_Success(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	now := time.Now().UTC()
	rows := policyRows().AddRow(
		int64(3), "block-exes", "https://evil.example/%", "", "", "block",
		"download", "", now, "admin", nil, int64(2), now,
	)

	mock.ExpectQuery("SELECT (.+) FROM policies").
		WithArgs(int64(3)).
		WillReturnRows(rows)

	policy, err := repo.GetPolicy(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.RuleName != "block-exes" {
		t.Errorf("expected rule_name=block-exes, got %s", policy.RuleName)
	}
	if policy.Action != models.ActionBlock {
		t.Errorf("expected action=block, got %s", policy.Action)
	}
	if policy.LastHit == nil {
		t.Error("expected last_hit to be set")
	}
}

func TestDeletePolicy_NotFound(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	mock.ExpectExec("DELETE FROM policies").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeletePolicy(context.Background(), 9)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePolicy_NotFound(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	mock.ExpectExec("UPDATE policies SET").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), int64(11),
		).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePolicy(context.Background(), 11, models.Policy{RuleName: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMatchPolicy_HashHitUpdatesCounters(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	now := time.Now().UTC()
	hash := "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM policies").
		WithArgs(hash, sqlmock.AnyArg()).
		WillReturnRows(policyRows().AddRow(
			int64(1), "hash-rule", "", hash, "", "quarantine", "download",
			"", now, "admin", nil, int64(0), nil,
		))
	mock.ExpectExec("UPDATE policies SET").
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	matched, err := repo.MatchPolicy(context.Background(), models.ThreatMetadata{
		URL:      "https://evil.example/payload.exe",
		FileHash: hash,
		RuleName: "hash-rule",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched == nil {
		t.Fatal("expected a match")
	}
	if matched.HitCount != 1 {
		t.Errorf("expected hit_count=1 after match, got %d", matched.HitCount)
	}
	if matched.LastHit == nil {
		t.Error("expected last_hit to be stamped")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMatchPolicy_NoMatchFallsThroughAllTiers(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM policies").WillReturnRows(policyRows())
	mock.ExpectQuery("SELECT (.+) FROM policies").WillReturnRows(policyRows())
	mock.ExpectQuery("SELECT (.+) FROM policies").WillReturnRows(policyRows())
	mock.ExpectCommit()

	matched, err := repo.MatchPolicy(context.Background(), models.ThreatMetadata{
		URL:      "https://clean.example/file.txt",
		FileHash: "bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22",
		RuleName: "nonexistent",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched != nil {
		t.Fatalf("expected no match, got policy %d", matched.ID)
	}
}

func TestMatchAndRecord_SharesOneTransaction(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	now := time.Now().UTC()
	hash := "cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33cc33"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM policies").
		WithArgs(hash, sqlmock.AnyArg()).
		WillReturnRows(policyRows().AddRow(
			int64(5), "hash-rule", "", hash, "", "quarantine", "download",
			"", now, "admin", nil, int64(3), nil,
		))
	mock.ExpectExec("UPDATE policies SET").
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO threat_history").
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectCommit()

	matched, threatID, err := repo.MatchAndRecord(context.Background(),
		models.ThreatMetadata{FileHash: hash, URL: "https://x.example/a"},
		models.ActionQuarantine, []byte(`{"level":"high"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched == nil || matched.ID != 5 {
		t.Fatalf("expected policy 5 to match, got %+v", matched)
	}
	if threatID != 21 {
		t.Errorf("expected threat id 21, got %d", threatID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMatchAndRecord_InsertFailureRollsBack(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM policies").WillReturnRows(policyRows())
	mock.ExpectQuery("SELECT (.+) FROM policies").WillReturnRows(policyRows())
	mock.ExpectExec("INSERT INTO threat_history").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, _, err := repo.MatchAndRecord(context.Background(),
		models.ThreatMetadata{URL: "https://x.example/a", FileHash: "dd44"},
		models.ActionBlock, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCleanupExpiredPolicies_ReturnsRemovedCount(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewPolicyRepository(db, logger.Nop())

	mock.ExpectExec("DELETE FROM policies").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := repo.CleanupExpiredPolicies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 4 {
		t.Errorf("expected 4 removed, got %d", removed)
	}
}
