package rule

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/praetorian-inc/sigscan/pkg/types"
)

// FilterConfig specifies include and exclude patterns for rule filtering.
type FilterConfig struct {
	Include    []string // Regex patterns on rule ID - only matching rules included
	Exclude    []string // Regex patterns on rule ID - matching rules excluded
	Categories []string // When set, a rule must carry at least one of these categories
}

// ParsePatterns splits a comma-separated string into individual patterns.
// Patterns are trimmed of whitespace.
func ParsePatterns(patterns string) []string {
	if patterns == "" {
		return []string{}
	}

	parts := strings.Split(patterns, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Filter applies category, include and exclude filters to rules, in that
// order. Empty include means "include all".
// Returns error if any pattern is invalid regex.
func Filter(rules []*types.Rule, config FilterConfig) ([]*types.Rule, error) {
	if len(rules) == 0 {
		return rules, nil
	}

	include, err := compileAll(config.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(config.Exclude)
	if err != nil {
		return nil, err
	}

	filtered := make([]*types.Rule, 0, len(rules))
	for _, r := range rules {
		if len(config.Categories) > 0 && !hasAnyCategory(r, config.Categories) {
			continue
		}
		if len(include) > 0 && !matchesAny(r.ID, include) {
			continue
		}
		if matchesAny(r.ID, exclude) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	regexes := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		regexes = append(regexes, re)
	}
	return regexes, nil
}

func hasAnyCategory(r *types.Rule, categories []string) bool {
	for _, c := range r.Categories {
		if slices.Contains(categories, c) {
			return true
		}
	}
	return false
}

func matchesAny(ruleID string, regexes []*regexp.Regexp) bool {
	for _, re := range regexes {
		if re.MatchString(ruleID) {
			return true
		}
	}
	return false
}
