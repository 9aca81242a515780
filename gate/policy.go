package gate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PolicyRule is one entry in an ordered rule list. All predicate fields
// are optional; an unset field matches everything. The first rule whose
// predicate matches decides the outcome.
type PolicyRule struct {
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Tool, when set, requires exact tool-name equality.
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty" mapstructure:"tool"`

	// RiskLevels, when set, requires the request's risk level to be a member.
	RiskLevels []RiskLevel `json:"risk_levels,omitempty" yaml:"risk_levels,omitempty" mapstructure:"risk_levels"`

	// ScopeContains, when set, matches if any request scope tag contains
	// this substring. Containment is deliberately loose: a rule configured
	// for "get" also matches a scope named "net:http_get". Operators who
	// want exact matching should configure the full tag, which still
	// matches via containment.
	ScopeContains string `json:"scope_contains,omitempty" yaml:"scope_contains,omitempty" mapstructure:"scope_contains"`

	Outcome Outcome `json:"outcome" yaml:"outcome" mapstructure:"outcome"`
	Reason  string  `json:"reason,omitempty" yaml:"reason,omitempty" mapstructure:"reason"`

	// AllowedScopes, when set on a matched rule, is an allow-list: every
	// scope on the request must appear in it or the outcome is forced to
	// deny.
	AllowedScopes []string `json:"allowed_scopes,omitempty" yaml:"allowed_scopes,omitempty" mapstructure:"allowed_scopes"`

	// ParamConstraints checks named parameters against a declared type and
	// optional bound. A constraint applies only when the parameter is
	// present; pair it with an earlier deny rule to require presence.
	ParamConstraints map[string]ParamConstraint `json:"param_constraints,omitempty" yaml:"param_constraints,omitempty" mapstructure:"param_constraints"`
}

// ParamConstraint declares the expected shape of one parameter.
type ParamConstraint struct {
	Type      string   `json:"type" yaml:"type" mapstructure:"type"` // "string" | "number" | "bool"
	MaxLength int      `json:"max_length,omitempty" yaml:"max_length,omitempty" mapstructure:"max_length"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
}

// PolicyDecision is the engine's verdict for one request.
type PolicyDecision struct {
	Outcome       Outcome  `json:"outcome"`
	Reason        string   `json:"reason,omitempty"`
	MatchedRuleID string   `json:"matched_rule_id"`
	Violations    []string `json:"violations,omitempty"`
}

const defaultDenyRuleID = "default_deny"

// Engine evaluates requests against a fixed, ordered rule list. It is a
// pure function of (rules, request): no mutation, no hidden state, no I/O.
type Engine struct {
	rules []PolicyRule
}

// NewEngine copies the rule list so later mutation of the caller's slice
// cannot change decisions.
func NewEngine(rules []PolicyRule) *Engine {
	return &Engine{rules: append([]PolicyRule(nil), rules...)}
}

// Evaluate walks the rule list in order and returns the outcome of the
// first matching rule; if nothing matches, a terminal default-deny fires.
// Any scope or parameter violation on the matched rule forces the outcome
// to deny, overriding whatever the rule originally said.
func (e *Engine) Evaluate(req ActionRequest) PolicyDecision {
	for _, rule := range e.rules {
		if !ruleMatches(rule, req) {
			continue
		}

		violations := checkScopes(rule, req)
		violations = append(violations, checkParams(rule, req)...)

		outcome := rule.Outcome
		if len(violations) > 0 {
			outcome = OutcomeDeny
		}
		return PolicyDecision{
			Outcome:       outcome,
			Reason:        rule.Reason,
			MatchedRuleID: rule.ID,
			Violations:    violations,
		}
	}

	return PolicyDecision{
		Outcome:       OutcomeDeny,
		Reason:        "no policy rule matched",
		MatchedRuleID: defaultDenyRuleID,
	}
}

func ruleMatches(rule PolicyRule, req ActionRequest) bool {
	if rule.Tool != "" && rule.Tool != req.Tool {
		return false
	}
	if len(rule.RiskLevels) > 0 {
		found := false
		for _, lvl := range rule.RiskLevels {
			if lvl == req.RiskLevel {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if rule.ScopeContains != "" {
		found := false
		for _, scope := range req.Scopes {
			if strings.Contains(scope, rule.ScopeContains) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func checkScopes(rule PolicyRule, req ActionRequest) []string {
	if len(rule.AllowedScopes) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(rule.AllowedScopes))
	for _, s := range rule.AllowedScopes {
		allowed[s] = true
	}

	var unauthorized []string
	for _, scope := range normalizeScopes(req.Scopes) {
		if !allowed[scope] {
			unauthorized = append(unauthorized, scope)
		}
	}
	if len(unauthorized) == 0 {
		return nil
	}
	sort.Strings(unauthorized)
	return []string{fmt.Sprintf("unauthorized scopes: %s", strings.Join(unauthorized, ", "))}
}

func checkParams(rule PolicyRule, req ActionRequest) []string {
	if len(rule.ParamConstraints) == 0 {
		return nil
	}

	names := make([]string, 0, len(rule.ParamConstraints))
	for name := range rule.ParamConstraints {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []string
	for _, name := range names {
		value, ok := req.Params[name]
		if !ok {
			continue
		}
		if !paramSatisfies(rule.ParamConstraints[name], value) {
			violations = append(violations, fmt.Sprintf("invalid parameter: %s", name))
		}
	}
	return violations
}

func paramSatisfies(c ParamConstraint, value any) bool {
	switch c.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return false
		}
		if c.MaxLength > 0 && len(s) > c.MaxLength {
			return false
		}
		return true
	case "number":
		n, ok := numericValue(value)
		if !ok {
			return false
		}
		if c.Max != nil && n > *c.Max {
			return false
		}
		return true
	case "bool":
		_, ok := value.(bool)
		return ok
	default:
		// An unknown type tag can never be satisfied.
		return false
	}
}

// numericValue tolerates the numeric types produced both by encoding/json
// and by programmatic request construction.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
