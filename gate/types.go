package gate

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Outcome is what a policy rule decides for a matching request.
type Outcome string

const (
	OutcomeAllow    Outcome = "allow"
	OutcomeDeny     Outcome = "deny"
	OutcomeAskHuman Outcome = "ask_human"
)

// ActionRequest describes one proposed tool invocation awaiting
// authorization. It is treated as immutable after creation: the gateway
// never mutates it, and any downstream mutation is detected by signature
// verification rather than prevented.
//
// A request id is used for exactly one policy decision. A denied or
// expired action cannot be resubmitted under the same id; callers build a
// fresh request to try again.
type ActionRequest struct {
	ID        string         `json:"id" yaml:"id"`
	Tool      string         `json:"tool" yaml:"tool"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Scopes    []string       `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	RiskLevel RiskLevel      `json:"risk_level" yaml:"risk_level"`
	Requester string         `json:"requester,omitempty" yaml:"requester,omitempty"`
	ContextID string         `json:"context_id,omitempty" yaml:"context_id,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
}

// RequiresHumanOK reports whether the request's risk level mandates an
// explicit human approval before execution.
func (r ActionRequest) RequiresHumanOK() bool {
	switch r.RiskLevel {
	case RiskHigh, RiskCritical:
		return true
	}
	return false
}

const AlgorithmHMACSHA256 = "HMAC-SHA256"

// ActionSignature binds a signing decision to the canonical form of one
// request. Once ExpiresAt passes it is permanently unusable; there is no
// renewal path short of re-evaluating the original request.
type ActionSignature struct {
	ID        string    `json:"id"`
	ActionID  string    `json:"action_id"`
	Algorithm string    `json:"algorithm"`
	KeyID     string    `json:"key_id"`
	Signature string    `json:"signature"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HumanApproval records one operator's decision for one action id. It is
// created exactly once per approved action and never mutated afterward.
type HumanApproval struct {
	ID          string         `json:"id"`
	ActionID    string         `json:"action_id"`
	ApproverID  string         `json:"approver_id"`
	ApprovedAt  time.Time      `json:"approved_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Result is the structured outcome of every gateway operation. Violations
// and reasons are always reported to the immediate caller; the gateway
// never retries and never mutates a request to clear a violation.
type Result struct {
	Allowed          bool             `json:"allowed"`
	RequiresApproval bool             `json:"requires_approval"`
	Reason           string           `json:"reason,omitempty"`
	MatchedRuleID    string           `json:"matched_rule_id,omitempty"`
	Violations       []string         `json:"violations,omitempty"`
	Signature        *ActionSignature `json:"signature,omitempty"`

	// Constraints carries approval-time execution constraints (for example
	// a spend cap) for the executor to enforce. The gateway stores and
	// returns them; it cannot interpret tool-specific constraints itself.
	Constraints map[string]any `json:"constraints,omitempty"`
}

// PendingSummary is a redacted view of a parked request, safe to show on
// an approval surface without leaking parameter values.
type PendingSummary struct {
	ActionID     string    `json:"action_id"`
	Tool         string    `json:"tool"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Scopes       []string  `json:"scopes,omitempty"`
	Requester    string    `json:"requester,omitempty"`
	ParamSummary string    `json:"param_summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Violation codes shared across gateway operations.
const (
	ViolationActionNotFound = "action_not_found"
	ViolationHumanRejected  = "human_rejected"
)

func randHex(nbytes int) string {
	if nbytes <= 0 {
		nbytes = 12
	}
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
