package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RiskLevel classifies how dangerous a tool invocation is estimated to be.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskRule maps a set of keywords to a risk level. Rules are evaluated in
// order; the first rule with a matching keyword wins.
type RiskRule struct {
	Level    RiskLevel `yaml:"level" json:"level"`
	Keywords []string  `yaml:"keywords" json:"keywords"`
}

// RiskTable is an ordered keyword rule set for classifying tool identifiers.
// Substring matching against tool IDs is heuristic and best-effort: the
// allow-list check is the actual security boundary, not this classifier.
type RiskTable struct {
	Rules []RiskRule `yaml:"rules" json:"rules"`
}

// DefaultRiskTable returns the built-in classification rules. Critical
// covers destructive or irreversible operations, high covers mutating and
// outbound operations, medium covers reads of sensitive data. Everything
// else classifies low.
func DefaultRiskTable() RiskTable {
	return RiskTable{
		Rules: []RiskRule{
			{
				Level: RiskCritical,
				Keywords: []string{
					"delete_database", "drop_table", "truncate",
					"system_command", "exec_shell", "sudo",
					"payment", "transfer_funds", "charge",
					"delete_user", "revoke_access",
				},
			},
			{
				Level: RiskHigh,
				Keywords: []string{
					"write", "update", "insert", "create", "delete",
					"send_email", "post_message", "http_request", "webhook",
					"deploy", "publish",
				},
			},
			{
				Level: RiskMedium,
				Keywords: []string{
					"read_pii", "read_secret", "read_credential",
					"export", "query_financial", "list_users",
				},
			},
		},
	}
}

// Classify returns the risk level for a tool invocation by case-insensitive
// substring matching against the ordered rule set. Unmatched tools default
// to low.
func (t RiskTable) Classify(toolID string) RiskLevel {
	needle := strings.ToLower(toolID)
	for _, rule := range t.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(needle, strings.ToLower(kw)) {
				return rule.Level
			}
		}
	}
	return RiskLow
}

// Validate checks every rule names a known risk level and carries keywords.
func (t RiskTable) Validate() error {
	for i, rule := range t.Rules {
		switch rule.Level {
		case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		default:
			return fmt.Errorf("rule[%d]: invalid risk level %q", i, rule.Level)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("rule[%d]: keywords are required", i)
		}
	}
	return nil
}

// LoadRiskTable reads a RiskTable from a YAML file. An empty path returns
// the built-in default table.
func LoadRiskTable(path string) (RiskTable, error) {
	if path == "" {
		return DefaultRiskTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RiskTable{}, fmt.Errorf("read risk table %s: %w", path, err)
	}

	var t RiskTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return RiskTable{}, fmt.Errorf("parse risk table %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return RiskTable{}, fmt.Errorf("validate risk table %s: %w", path, err)
	}
	return t, nil
}
