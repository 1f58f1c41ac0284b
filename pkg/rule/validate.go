package rule

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/types"
)

// ValidateRule checks required fields, that the signature compiles, that
// StructuralID is consistent and that every example and negative example
// behaves as documented.
func ValidateRule(r *types.Rule) error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}

	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Signature == "" {
		return fmt.Errorf("rule %s: signature is required", r.ID)
	}

	p, err := signature.Parse(r.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature for rule %s: %w", r.ID, err)
	}

	expectedID := r.ComputeStructuralID()
	if r.StructuralID != "" && r.StructuralID != expectedID {
		return fmt.Errorf("rule %s has inconsistent StructuralID: got %s, expected %s",
			r.ID, r.StructuralID, expectedID)
	}

	for i, example := range r.Examples {
		buf, err := DecodeExample(example)
		if err != nil {
			return fmt.Errorf("rule %s example %d: %w", r.ID, i, err)
		}
		if _, err := p.Scan(buf).Next(); err != nil {
			return fmt.Errorf("rule %s example %d does not match", r.ID, i)
		}
	}

	for i, example := range r.NegativeExamples {
		buf, err := DecodeExample(example)
		if err != nil {
			return fmt.Errorf("rule %s negative example %d: %w", r.ID, i, err)
		}
		if hit, err := p.Scan(buf).Next(); err == nil {
			return fmt.Errorf("rule %s negative example %d matches at offset %d", r.ID, i, hit.Offset)
		}
	}

	return nil
}

// ValidateRuleset checks ruleset consistency and required fields.
// knownRuleIDs is a map of valid rule IDs for reference checking.
func ValidateRuleset(rs *types.Ruleset, knownRuleIDs map[string]bool) error {
	if rs == nil {
		return fmt.Errorf("ruleset is nil")
	}

	if rs.ID == "" {
		return fmt.Errorf("ruleset ID is required")
	}
	if rs.Name == "" {
		return fmt.Errorf("ruleset name is required")
	}
	if len(rs.RuleIDs) == 0 {
		return fmt.Errorf("ruleset %s must reference at least one rule", rs.ID)
	}

	seen := make(map[string]bool)
	for _, ruleID := range rs.RuleIDs {
		if knownRuleIDs != nil && !knownRuleIDs[ruleID] {
			return fmt.Errorf("ruleset %s references unknown rule ID: %s", rs.ID, ruleID)
		}
		if seen[ruleID] {
			return fmt.Errorf("ruleset %s contains duplicate rule ID: %s", rs.ID, ruleID)
		}
		seen[ruleID] = true
	}

	return nil
}

// ValidateRules validates every rule and rejects duplicate IDs.
func ValidateRules(rules []*types.Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule ID: %s", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// DecodeExample decodes a hex example buffer. Spaces are ignored so
// examples may be written grouped, e.g. "7F45 4C46".
func DecodeExample(example string) ([]byte, error) {
	buf, err := hex.DecodeString(strings.ReplaceAll(example, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex example: %w", err)
	}
	return buf, nil
}
