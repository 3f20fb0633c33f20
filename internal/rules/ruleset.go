package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleSet is the portable YAML form used by import and export.
type RuleSet struct {
	Version int    `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// MarshalYAML renders rules as a versioned rule set document.
func MarshalYAML(rs []Rule) ([]byte, error) {
	b, err := yaml.Marshal(RuleSet{Version: 1, Rules: rs})
	if err != nil {
		return nil, fmt.Errorf("marshal rule set: %w", err)
	}
	return b, nil
}

// ParseYAML decodes a rule set. Each rule is validated; rules without an
// origin are treated as user_defined.
func ParseYAML(b []byte) ([]Rule, error) {
	var set RuleSet
	if err := yaml.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	for i := range set.Rules {
		r := &set.Rules[i]
		if r.Origin == "" {
			r.Origin = OriginUserDefined
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, r.Column, err)
		}
	}
	return set.Rules, nil
}
