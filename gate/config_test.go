package gate

import (
	"testing"
)

const rulesYAML = `
rules:
  - id: allow_calculator
    tool: calculator
    risk_levels: [low]
    outcome: allow
    reason: calculator is safe at low risk
    param_constraints:
      expression:
        type: string
        max_length: 256
  - id: ask_high_risk
    risk_levels: [high, critical]
    outcome: ask_human
    reason: high risk requires a human
  - id: cap_payment
    tool: payment
    outcome: allow
    param_constraints:
      amount:
        type: number
        max: 100
`

func TestLoadRulesYAML(t *testing.T) {
	rules, err := LoadRulesYAML([]byte(rulesYAML))
	if err != nil {
		t.Fatalf("LoadRulesYAML error: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	// File order is evaluation order.
	if rules[0].ID != "allow_calculator" || rules[2].ID != "cap_payment" {
		t.Fatalf("rule order not preserved: %q, %q", rules[0].ID, rules[2].ID)
	}
	if rules[0].ParamConstraints["expression"].MaxLength != 256 {
		t.Fatalf("constraint did not decode: %+v", rules[0].ParamConstraints)
	}
	if max := rules[2].ParamConstraints["amount"].Max; max == nil || *max != 100 {
		t.Fatalf("numeric bound did not decode: %+v", rules[2].ParamConstraints)
	}
}

func TestLoadRulesYAML_SameDecisionsAsProgrammaticRules(t *testing.T) {
	rules, err := LoadRulesYAML([]byte(rulesYAML))
	if err != nil {
		t.Fatalf("LoadRulesYAML error: %v", err)
	}
	engine := NewEngine(rules)

	req := ActionRequest{
		ID:        "act_yaml",
		Tool:      "calculator",
		RiskLevel: RiskLow,
		Params:    map[string]any{"expression": "6*7"},
	}
	decision := engine.Evaluate(req)
	if decision.Outcome != OutcomeAllow || decision.MatchedRuleID != "allow_calculator" {
		t.Fatalf("unexpected decision from yaml rules: %+v", decision)
	}

	over := ActionRequest{
		ID:        "act_yaml_2",
		Tool:      "payment",
		RiskLevel: RiskMedium,
		Params:    map[string]any{"amount": 250.0},
	}
	if d := engine.Evaluate(over); d.Outcome != OutcomeDeny {
		t.Fatalf("expected constraint deny, got %+v", d)
	}
}

func TestLoadRulesYAML_Invalid(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no_rules", "rules: []"},
		{"missing_id", "rules:\n  - outcome: allow\n"},
		{"bad_outcome", "rules:\n  - id: r1\n    outcome: maybe\n"},
		{"bad_risk_level", "rules:\n  - id: r1\n    outcome: allow\n    risk_levels: [extreme]\n"},
		{"bad_constraint_type", "rules:\n  - id: r1\n    outcome: allow\n    param_constraints:\n      x:\n        type: blob\n"},
		{"not_yaml", "rules: ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadRulesYAML([]byte(tc.doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
