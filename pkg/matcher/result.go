package matcher

import (
	"time"

	"github.com/praetorian-inc/sigscan/pkg/types"
)

// RuleStatus represents the status of a rule for one blob.
type RuleStatus int

const (
	// RuleCompleted indicates the rule was scanned to the end of the blob
	RuleCompleted RuleStatus = iota
	// RuleFiltered indicates the prefilter ruled the rule out
	RuleFiltered
	// RuleTruncated indicates scanning stopped at MaxMatchesPerBlob
	RuleTruncated
)

// String returns the string representation of RuleStatus
func (rs RuleStatus) String() string {
	switch rs {
	case RuleCompleted:
		return "completed"
	case RuleFiltered:
		return "filtered"
	case RuleTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// RuleStat contains statistics about a single rule execution
type RuleStat struct {
	RuleID   string        // Rule identifier
	Status   RuleStatus    // Execution status
	Duration time.Duration // Time taken to scan
	Matches  int           // Number of hits found before deduplication
}

// ResultSummary provides aggregate statistics for a scan
type ResultSummary struct {
	TotalRules     int `json:"total"`     // Total number of rules loaded
	ScannedRules   int `json:"scanned"`   // Rules that passed the prefilter
	FilteredRules  int `json:"filtered"`  // Rules skipped by the prefilter
	TruncatedRules int `json:"truncated"` // Rules that hit MaxMatchesPerBlob
}

// MatchResult contains matches and execution statistics
type MatchResult struct {
	Matches   []*types.Match      // Deduplicated, ordered matches
	RuleStats map[string]RuleStat // Statistics for each rule (keyed by RuleID)
	Summary   ResultSummary       // Aggregate statistics
}
