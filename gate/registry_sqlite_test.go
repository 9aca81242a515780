package gate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testSQLiteStores(t *testing.T) *SQLiteStores {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "gate.db")
	s, err := NewSQLiteStores(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStores error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStores_RequireDSN(t *testing.T) {
	if _, err := NewSQLiteStores("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestSQLitePending_PutTakeList(t *testing.T) {
	s := testSQLiteStores(t)
	ctx := context.Background()
	pending := s.Pending()

	first := ActionRequest{
		ID:        "act_sql_1",
		Tool:      "email_send",
		Params:    map[string]any{"to": "ops@example.com"},
		Scopes:    []string{"act:email_send"},
		RiskLevel: RiskHigh,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	second := first
	second.ID = "act_sql_2"
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	if err := pending.Put(ctx, first); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := pending.Put(ctx, second); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	listed, err := pending.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "act_sql_1" || listed[1].ID != "act_sql_2" {
		t.Fatalf("unexpected list order: %+v", listed)
	}

	got, ok, err := pending.Take(ctx, "act_sql_1")
	if err != nil {
		t.Fatalf("Take error: %v", err)
	}
	if !ok {
		t.Fatal("expected to take act_sql_1")
	}
	if got.Tool != "email_send" || got.Params["to"] != "ops@example.com" {
		t.Fatalf("request did not round-trip: %+v", got)
	}

	if _, ok, _ := pending.Take(ctx, "act_sql_1"); ok {
		t.Fatal("second take of the same id must fail")
	}

	listed, err = pending.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(listed))
	}
}

func TestSQLitePending_TakeUnknown(t *testing.T) {
	s := testSQLiteStores(t)

	_, ok, err := s.Pending().Take(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Take error: %v", err)
	}
	if ok {
		t.Fatal("unknown id must not be takeable")
	}
}

func TestSQLiteApprovals_PutGet(t *testing.T) {
	s := testSQLiteStores(t)
	ctx := context.Background()
	approvals := s.Approvals()

	approval := HumanApproval{
		ID:          "apr_test",
		ActionID:    "act_sql_3",
		ApproverID:  "admin",
		ApprovedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		ExpiresAt:   time.Date(2026, 8, 1, 10, 15, 0, 0, time.UTC),
		Constraints: map[string]any{"max_cost": 25.0},
	}
	if err := approvals.Put(ctx, approval); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, ok, err := approvals.Get(ctx, "act_sql_3")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("expected approval to exist")
	}
	if got.ApproverID != "admin" || !got.ExpiresAt.Equal(approval.ExpiresAt) {
		t.Fatalf("approval did not round-trip: %+v", got)
	}
	if got.Constraints["max_cost"] != 25.0 {
		t.Fatalf("constraints did not round-trip: %v", got.Constraints)
	}

	if _, ok, _ := approvals.Get(ctx, "act_unknown"); ok {
		t.Fatal("unknown action id must not have an approval")
	}
}

func TestSQLiteStores_GatewayAtMostOnce(t *testing.T) {
	s := testSQLiteStores(t)
	g, err := New(Config{
		SigningKey: "sqlite-test-secret",
		Rules:      testRules(),
	}, WithStores(s.Pending(), s.Approvals()))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx := context.Background()

	req := ActionRequest{ID: "act_sql_race", Tool: "email_send", RiskLevel: RiskHigh, CreatedAt: time.Now().UTC()}
	if _, err := g.Evaluate(ctx, req); err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Approve(ctx, req.ID, "admin", nil)
			if err != nil {
				t.Errorf("Approve error: %v", err)
				return
			}
			if res.Allowed {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning approve, got %d", count)
	}
}

func TestSQLiteStores_StateSurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "gate.db")
	ctx := context.Background()

	s, err := NewSQLiteStores(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStores error: %v", err)
	}
	req := ActionRequest{ID: "act_persist", Tool: "email_send", RiskLevel: RiskHigh, CreatedAt: time.Now().UTC()}
	if err := s.Pending().Put(ctx, req); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := NewSQLiteStores(dsn)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Pending().Take(ctx, "act_persist")
	if err != nil {
		t.Fatalf("Take error: %v", err)
	}
	if !ok || got.ID != "act_persist" {
		t.Fatalf("pending entry did not survive reopen: ok=%v req=%+v", ok, got)
	}
}
