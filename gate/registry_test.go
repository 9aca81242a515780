package gate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPendingStore_TakeIsAtomic(t *testing.T) {
	s := NewMemoryPendingStore()
	ctx := context.Background()

	req := ActionRequest{ID: "act_mem_1", Tool: "email_send"}
	if err := s.Put(ctx, req); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, ok, err := s.Take(ctx, "act_mem_1")
	if err != nil || !ok {
		t.Fatalf("first take failed: ok=%v err=%v", ok, err)
	}
	if got.ID != "act_mem_1" {
		t.Fatalf("unexpected request: %+v", got)
	}

	if _, ok, _ := s.Take(ctx, "act_mem_1"); ok {
		t.Fatal("second take must fail")
	}
}

func TestMemoryPendingStore_ListOrderedByCreation(t *testing.T) {
	s := NewMemoryPendingStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"act_c", "act_a", "act_b"} {
		req := ActionRequest{ID: id, Tool: "t", CreatedAt: base.Add(time.Duration(2-i) * time.Minute)}
		if err := s.Put(ctx, req); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	listed, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(listed))
	}
	// act_b is newest-inserted but oldest-created order wins.
	if listed[0].ID != "act_b" || listed[1].ID != "act_a" || listed[2].ID != "act_c" {
		t.Fatalf("unexpected order: %s %s %s", listed[0].ID, listed[1].ID, listed[2].ID)
	}
}

func TestMemoryApprovalStore_PutGet(t *testing.T) {
	s := NewMemoryApprovalStore()
	ctx := context.Background()

	approval := HumanApproval{ID: "apr_1", ActionID: "act_mem_2", ApproverID: "admin"}
	if err := s.Put(ctx, approval); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, ok, err := s.Get(ctx, "act_mem_2")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.ApproverID != "admin" {
		t.Fatalf("unexpected approval: %+v", got)
	}

	if _, ok, _ := s.Get(ctx, "act_unknown"); ok {
		t.Fatal("unknown action id must not resolve")
	}
}
