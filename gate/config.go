package gate

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config assembles everything a Gateway needs. One Gateway is constructed
// per process (or tenant) and injected into the dispatcher, approval
// surface and executor; there is no process-wide singleton.
type Config struct {
	SigningKey string `yaml:"signing_key"`
	KeyID      string `yaml:"key_id"`

	SignatureTTL time.Duration `yaml:"signature_ttl"`
	ApprovalTTL  time.Duration `yaml:"approval_ttl"`

	Rules []PolicyRule `yaml:"rules"`

	Audit AuditConfig `yaml:"audit"`
}

type AuditConfig struct {
	JSONLPath      string `yaml:"jsonl_path"`
	RotateMaxBytes int64  `yaml:"rotate_max_bytes"`
}

// rulesDocument is the YAML shape of a standalone rules file.
type rulesDocument struct {
	Rules []PolicyRule `yaml:"rules"`
}

// LoadRulesYAML decodes an ordered rule list from a YAML document with a
// top-level "rules" key. Rule order in the file is evaluation order.
func LoadRulesYAML(data []byte) ([]PolicyRule, error) {
	var doc rulesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rules yaml contains no rules")
	}
	if err := ValidateRules(doc.Rules); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// ValidateRules checks a rule list for malformed entries before an engine
// is built from it.
func ValidateRules(rules []PolicyRule) error {
	for i, rule := range rules {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
		}
	}
	return nil
}

func validateRule(rule PolicyRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("missing id")
	}
	switch rule.Outcome {
	case OutcomeAllow, OutcomeDeny, OutcomeAskHuman:
	default:
		return fmt.Errorf("invalid outcome: %q", rule.Outcome)
	}
	for _, lvl := range rule.RiskLevels {
		switch lvl {
		case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		default:
			return fmt.Errorf("invalid risk level: %q", lvl)
		}
	}
	for name, c := range rule.ParamConstraints {
		switch c.Type {
		case "string", "number", "bool":
		default:
			return fmt.Errorf("parameter %s: invalid constraint type: %q", name, c.Type)
		}
	}
	return nil
}
