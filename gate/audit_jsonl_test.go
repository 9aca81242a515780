package gate

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJSONLAuditSink_OneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLAuditSink error: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for i, op := range []AuditOp{AuditEvaluate, AuditApprove, AuditCanExecute} {
		err := sink.Emit(ctx, AuditEvent{
			EventID:   "evt_test",
			Timestamp: time.Now().UTC(),
			Op:        op,
			ActionID:  "act_audit",
			Tool:      "email_send",
			Allowed:   i%2 == 0,
		})
		if err != nil {
			t.Fatalf("Emit error: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if e.ActionID != "act_audit" {
			t.Fatalf("unexpected action id: %q", e.ActionID)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}
}

func TestJSONLAuditSink_RotatesPastCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 512)
	if err != nil {
		t.Fatalf("NewJSONLAuditSink error: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		err := sink.Emit(ctx, AuditEvent{
			EventID:      "evt_rotate",
			Timestamp:    time.Now().UTC(),
			Op:           AuditEvaluate,
			ActionID:     "act_rotate",
			Tool:         "calculator",
			ParamSummary: strings.Repeat("x", 64),
		})
		if err != nil {
			t.Fatalf("Emit %d error: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotated files alongside the active one, got %d files", len(entries))
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat active file: %v", err)
	}
	if st.Size() > 1024 {
		t.Fatalf("active file grew past the cap: %d bytes", st.Size())
	}
}

func TestGateway_EmitsAuditEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLAuditSink error: %v", err)
	}
	defer sink.Close()

	g := testGateway(t, WithAuditSink(sink))
	ctx := context.Background()

	req := ActionRequest{ID: "act_audited", Tool: "email_send", RiskLevel: RiskHigh}
	if _, err := g.Evaluate(ctx, req); err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if _, err := g.Approve(ctx, req.ID, "admin", nil); err != nil {
		t.Fatalf("Approve error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"op":"evaluate"`) || !strings.Contains(text, `"op":"approve"`) {
		t.Fatalf("missing lifecycle events in audit log:\n%s", text)
	}
	if !strings.Contains(text, `"approver":"admin"`) {
		t.Fatalf("missing approver attribution:\n%s", text)
	}
}
