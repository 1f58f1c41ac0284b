package types

import (
	"crypto/sha1"
	"encoding/hex"
)

// Finding groups matches of one rule that matched the same bytes.
// Wildcard bytes are part of the matched window, so two hits of the same
// signature with different wildcard contents are separate findings.
type Finding struct {
	ID       string // SHA-1(rule_structural_id + '\0' + matched bytes)
	RuleID   string
	Matching []byte
	Matches  []*Match // matches belonging to this finding
}

// ComputeFindingID computes a content-based finding ID.
func ComputeFindingID(ruleStructuralID string, matching []byte) string {
	h := sha1.New()
	h.Write([]byte(ruleStructuralID))
	h.Write([]byte{0})
	h.Write(matching)
	return hex.EncodeToString(h.Sum(nil))
}
