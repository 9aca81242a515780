package gate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// tokenLike matches long opaque strings (API keys, JWT segments) so they
// never leak into summaries even under a non-sensitive key.
var tokenLike = regexp.MustCompile(`\b[A-Za-z0-9._-]{24,}\b`)

const maxSummaryValueLen = 48

// summarizeParams renders a one-line, redacted view of a parameter map for
// approval surfaces and audit events. Values under secret-like keys are
// replaced wholesale; other string values have token-like substrings
// masked and are truncated.
func summarizeParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+summarizeValue(k, params[k]))
	}
	return strings.Join(parts, " ")
}

func summarizeValue(key string, v any) string {
	if isSensitiveKeyLike(key) {
		return "[redacted]"
	}
	var rendered string
	switch x := v.(type) {
	case string:
		rendered = tokenLike.ReplaceAllString(x, "[redacted]")
	case map[string]any:
		return fmt.Sprintf("{%d fields}", len(x))
	case []any:
		return fmt.Sprintf("[%d items]", len(x))
	default:
		rendered = fmt.Sprintf("%v", x)
	}
	if len(rendered) > maxSummaryValueLen {
		rendered = rendered[:maxSummaryValueLen] + "…"
	}
	return rendered
}

func isSensitiveKeyLike(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	n := strings.ReplaceAll(strings.ReplaceAll(k, "-", ""), "_", "")
	switch {
	case strings.Contains(n, "apikey"):
		return true
	case strings.Contains(n, "authorization"):
		return true
	case strings.Contains(n, "token"):
		return true
	case strings.Contains(n, "secret"):
		return true
	case strings.Contains(n, "password"):
		return true
	case strings.Contains(n, "credential"):
		return true
	}
	return false
}
