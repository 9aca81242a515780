package gate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const DefaultApprovalTTL = 15 * time.Minute

// Gateway composes the policy engine and the signature service and owns
// the pending/approved registries. It decides whether an exact action may
// run and issues proof of that decision; it never performs the action.
type Gateway struct {
	engine   *Engine
	signer   *Signer
	pending  PendingStore
	approved ApprovalStore
	audit    AuditSink

	approvalTTL time.Duration
	now         func() time.Time
}

// Option customizes gateway construction.
type Option func(*Gateway)

// WithStores replaces the default in-memory registries, e.g. with the
// SQLite-backed ones when state must outlive the process.
func WithStores(pending PendingStore, approved ApprovalStore) Option {
	return func(g *Gateway) {
		if pending != nil {
			g.pending = pending
		}
		if approved != nil {
			g.approved = approved
		}
	}
}

// WithAuditSink attaches a sink for lifecycle events. A nil sink disables
// auditing.
func WithAuditSink(sink AuditSink) Option {
	return func(g *Gateway) { g.audit = sink }
}

// New builds a Gateway from config. The signing key is required; every
// other field has a default.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	signer, err := NewSigner(SignerConfig{
		Key:   []byte(cfg.SigningKey),
		KeyID: cfg.KeyID,
		TTL:   cfg.SignatureTTL,
	})
	if err != nil {
		return nil, err
	}

	approvalTTL := cfg.ApprovalTTL
	if approvalTTL <= 0 {
		approvalTTL = DefaultApprovalTTL
	}

	g := &Gateway{
		engine:      NewEngine(cfg.Rules),
		signer:      signer,
		pending:     NewMemoryPendingStore(),
		approved:    NewMemoryApprovalStore(),
		approvalTTL: approvalTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Evaluate runs the policy decision for a request. An allow is signed
// immediately; an ask_human parks the request for an operator; a deny
// stores nothing.
func (g *Gateway) Evaluate(ctx context.Context, req ActionRequest) (Result, error) {
	if strings.TrimSpace(req.ID) == "" {
		return Result{}, fmt.Errorf("missing action id")
	}

	decision := g.engine.Evaluate(req)

	var res Result
	switch decision.Outcome {
	case OutcomeAllow:
		sig, err := g.signer.Sign(req)
		if err != nil {
			return Result{}, fmt.Errorf("sign request %s: %w", req.ID, err)
		}
		res = Result{
			Allowed:       true,
			Reason:        decision.Reason,
			MatchedRuleID: decision.MatchedRuleID,
			Signature:     &sig,
		}
	case OutcomeAskHuman:
		if err := g.pending.Put(ctx, req); err != nil {
			return Result{}, fmt.Errorf("park request %s: %w", req.ID, err)
		}
		res = Result{
			RequiresApproval: true,
			Reason:           decision.Reason,
			MatchedRuleID:    decision.MatchedRuleID,
		}
	default:
		res = Result{
			Reason:        decision.Reason,
			MatchedRuleID: decision.MatchedRuleID,
			Violations:    decision.Violations,
		}
	}

	g.emit(ctx, AuditEvaluate, req.ID, req, res, "")
	return res, nil
}

// Approve resolves a pending request. The stored request is signed, never
// a caller-supplied copy, so an approver cannot substitute parameters. At
// most one of Approve/Reject succeeds per action id; late callers see
// action_not_found.
func (g *Gateway) Approve(ctx context.Context, actionID, approverID string, constraints map[string]any) (Result, error) {
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		if fromCtx, ok := ApproverFromContext(ctx); ok {
			approverID = fromCtx
		}
	}
	if approverID == "" {
		return Result{}, fmt.Errorf("missing approver id")
	}

	req, ok, err := g.pending.Take(ctx, actionID)
	if err != nil {
		return Result{}, fmt.Errorf("take pending %s: %w", actionID, err)
	}
	if !ok {
		res := Result{Violations: []string{ViolationActionNotFound}}
		g.emit(ctx, AuditApprove, actionID, ActionRequest{}, res, approverID)
		return res, nil
	}

	now := g.now().UTC()
	approval := HumanApproval{
		ID:          "apr_" + randHex(12),
		ActionID:    req.ID,
		ApproverID:  approverID,
		ApprovedAt:  now,
		ExpiresAt:   now.Add(g.approvalTTL),
		Constraints: constraints,
	}
	if err := g.approved.Put(ctx, approval); err != nil {
		return Result{}, fmt.Errorf("store approval %s: %w", actionID, err)
	}

	sig, err := g.signer.Sign(req)
	if err != nil {
		return Result{}, fmt.Errorf("sign request %s: %w", req.ID, err)
	}

	res := Result{
		Allowed:     true,
		Reason:      fmt.Sprintf("approved by %s", approverID),
		Signature:   &sig,
		Constraints: constraints,
	}
	g.emit(ctx, AuditApprove, req.ID, req, res, approverID)
	return res, nil
}

// Reject removes a pending request if present. Rejection is idempotent:
// rejecting an unknown or already-resolved id reports the same outcome
// without touching the approved registry.
func (g *Gateway) Reject(ctx context.Context, actionID, reason string) (Result, error) {
	req, _, err := g.pending.Take(ctx, actionID)
	if err != nil {
		return Result{}, fmt.Errorf("take pending %s: %w", actionID, err)
	}

	res := Result{
		Reason:     reason,
		Violations: []string{ViolationHumanRejected},
	}
	g.emit(ctx, AuditReject, actionID, req, res, "")
	return res, nil
}

// CanExecute is the final go/no-go immediately before the real tool runs.
// The signature is verified first; only then is the approval registry
// consulted for requests that need a human, so a tampered payload is
// reported as such rather than as a missing approval.
func (g *Gateway) CanExecute(ctx context.Context, req ActionRequest, sig ActionSignature) (Result, error) {
	if v := g.signer.Verify(req, sig); !v.Valid {
		res := Result{Reason: v.Reason}
		g.emit(ctx, AuditCanExecute, req.ID, req, res, "")
		return res, nil
	}

	var res Result
	if req.RequiresHumanOK() {
		approval, ok, err := g.approved.Get(ctx, req.ID)
		if err != nil {
			return Result{}, fmt.Errorf("load approval %s: %w", req.ID, err)
		}
		switch {
		case !ok:
			res = Result{Reason: "approval required"}
		case g.now().UTC().After(approval.ExpiresAt):
			res = Result{Reason: "approval expired"}
		default:
			res = Result{Allowed: true, Constraints: approval.Constraints}
		}
	} else {
		res = Result{Allowed: true}
	}

	g.emit(ctx, AuditCanExecute, req.ID, req, res, "")
	return res, nil
}

// Pending lists parked requests as redacted summaries for an approval
// surface. Stale entries stay listed until resolved; there is no sweeper.
func (g *Gateway) Pending(ctx context.Context) ([]PendingSummary, error) {
	reqs, err := g.pending.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	out := make([]PendingSummary, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, PendingSummary{
			ActionID:     req.ID,
			Tool:         req.Tool,
			RiskLevel:    req.RiskLevel,
			Scopes:       normalizeScopes(req.Scopes),
			Requester:    req.Requester,
			ParamSummary: summarizeParams(req.Params),
			CreatedAt:    req.CreatedAt,
		})
	}
	return out, nil
}

// emit reports a lifecycle transition. Audit failures never block or fail
// the decision itself.
func (g *Gateway) emit(ctx context.Context, op AuditOp, actionID string, req ActionRequest, res Result, approver string) {
	if g.audit == nil {
		return
	}
	ts := g.now().UTC()
	_ = g.audit.Emit(ctx, AuditEvent{
		EventID:          newAuditEventID(op, actionID, ts),
		Timestamp:        ts,
		Op:               op,
		ActionID:         actionID,
		Tool:             req.Tool,
		RiskLevel:        req.RiskLevel,
		Allowed:          res.Allowed,
		RequiresApproval: res.RequiresApproval,
		Reason:           res.Reason,
		MatchedRuleID:    res.MatchedRuleID,
		Violations:       res.Violations,
		Approver:         approver,
		ParamSummary:     summarizeParams(req.Params),
	})
}
