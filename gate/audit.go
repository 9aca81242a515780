package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// AuditOp names the gateway operation an audit event describes.
type AuditOp string

const (
	AuditEvaluate   AuditOp = "evaluate"
	AuditApprove    AuditOp = "approve"
	AuditReject     AuditOp = "reject"
	AuditCanExecute AuditOp = "can_execute"
)

// AuditEvent is one gateway lifecycle transition. Parameter values never
// appear; only the redacted summary does.
type AuditEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"ts"`
	Op        AuditOp   `json:"op"`

	ActionID  string    `json:"action_id"`
	Tool      string    `json:"tool,omitempty"`
	RiskLevel RiskLevel `json:"risk_level,omitempty"`

	Allowed          bool     `json:"allowed"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	MatchedRuleID    string   `json:"matched_rule_id,omitempty"`
	Violations       []string `json:"violations,omitempty"`

	Approver     string `json:"approver,omitempty"`
	ParamSummary string `json:"param_summary,omitempty"`
}

// AuditSink receives gateway audit events. The host owns durable audit
// persistence; the JSONL sink in this package is a reference
// implementation it may replace.
type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent) error
	Close() error
}

func newAuditEventID(op AuditOp, actionID string, ts time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s", op, actionID, ts.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return "evt_" + hex.EncodeToString(sum[:8])
}
