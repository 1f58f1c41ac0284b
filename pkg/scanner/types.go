package scanner

import (
	"time"

	"github.com/praetorian-inc/sigscan/pkg/matcher"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
)

// Config wires a Core to its collaborators.
type Config struct {
	// Rules the matcher was built from; used for finding IDs and stored
	// so reports can describe each rule.
	Rules []*types.Rule

	// Matcher scans each blob. Required.
	Matcher matcher.Matcher

	// Store receives blobs, provenance, matches and findings. Required.
	Store store.Store

	// Blobs, when set, keeps the content of every blob that matched so
	// results can be inspected after the source is gone.
	Blobs *store.BlobStore

	// Incremental skips blobs the store has already seen. Their
	// provenance is still recorded.
	Incremental bool

	// Logger receives per-blob debug output; nil means no logging.
	Logger *zap.Logger
}

// ScanResult holds the outcome of scanning one blob.
type ScanResult struct {
	BlobID      types.BlobID     `json:"blob_id"`
	Source      string           `json:"source"`
	Skipped     bool             `json:"skipped,omitempty"`
	Matches     []*types.Match   `json:"matches"`
	Findings    []*types.Finding `json:"-"`
	NewFindings int              `json:"new_findings"`

	// Rules summarises what the matcher did with each rule for this blob.
	// Zero when the blob was skipped.
	Rules     matcher.ResultSummary       `json:"rules"`
	RuleStats map[string]matcher.RuleStat `json:"-"`
}

// Stats summarises a Run.
type Stats struct {
	Blobs       int64 `json:"blobs"`
	Skipped     int64 `json:"skipped"`
	Bytes       int64 `json:"bytes"`
	Matches     int64 `json:"matches"`
	NewFindings int64 `json:"new_findings"`

	// Rule scans summed over every scanned blob
	RuleScans      int64 `json:"rule_scans"`
	RulesFiltered  int64 `json:"rules_filtered"`
	RulesTruncated int64 `json:"rules_truncated"`

	// Rules holds per-rule totals keyed by rule ID, for rules that were
	// scanned at least once.
	Rules map[string]*RuleTotals `json:"rules,omitempty"`
}

// RuleTotals accumulates one rule's statistics across a Run.
type RuleTotals struct {
	Blobs     int64         `json:"blobs"`     // blobs the rule was scanned against
	Matches   int64         `json:"matches"`   // hits before deduplication
	Truncated int64         `json:"truncated"` // blobs where MaxMatchesPerBlob cut the scan short
	Duration  time.Duration `json:"duration"`
}
