package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/praetorian-inc/sigscan/pkg/types"
)

// DedupeMode controls how matches are deduplicated.
type DedupeMode int

const (
	// DedupeByLocation deduplicates by exact location (rule signature + blob + span).
	// Rules sharing a signature report a location once.
	DedupeByLocation DedupeMode = iota

	// DedupeByContent deduplicates by matched bytes (rule + window).
	// The same byte window appearing several times in a blob counts once.
	DedupeByContent
)

// String returns the flag spelling of the mode.
func (d DedupeMode) String() string {
	switch d {
	case DedupeByLocation:
		return "location"
	case DedupeByContent:
		return "content"
	default:
		return "unknown"
	}
}

// ParseDedupeMode parses "location" or "content".
func ParseDedupeMode(s string) (DedupeMode, error) {
	switch s {
	case "location", "":
		return DedupeByLocation, nil
	case "content":
		return DedupeByContent, nil
	default:
		return 0, fmt.Errorf("unknown dedupe mode: %s (want location or content)", s)
	}
}

// Deduplicator removes duplicate matches based on configurable criteria.
// It is not safe for concurrent use.
type Deduplicator struct {
	seen map[string]bool
	mode DedupeMode
}

// NewDeduplicator creates a deduplicator for one blob.
func NewDeduplicator(mode DedupeMode) *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]bool),
		mode: mode,
	}
}

// IsDuplicate returns true if match was already seen.
func (d *Deduplicator) IsDuplicate(m *types.Match) bool {
	return d.seen[d.computeKey(m)]
}

// Add marks a match as seen.
func (d *Deduplicator) Add(m *types.Match) {
	d.seen[d.computeKey(m)] = true
}

func (d *Deduplicator) computeKey(m *types.Match) string {
	switch d.mode {
	case DedupeByContent:
		h := sha256.New()
		h.Write([]byte(m.RuleID))
		h.Write([]byte{0})
		h.Write(m.Snippet.Matching)
		return hex.EncodeToString(h.Sum(nil))
	default:
		return m.StructuralID
	}
}
