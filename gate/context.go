package gate

import (
	"context"
	"strings"
)

type ctxKeyApprover struct{}

// WithApprover attaches an operator identity to the context for hosts that
// thread identity that way. An explicit approver argument to Approve
// always wins over the context value.
func WithApprover(ctx context.Context, approverID string) context.Context {
	return context.WithValue(ctx, ctxKeyApprover{}, strings.TrimSpace(approverID))
}

func ApproverFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKeyApprover{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
