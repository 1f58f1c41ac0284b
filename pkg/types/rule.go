package types

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Rule is a detection rule built around a single byte signature.
type Rule struct {
	ID               string   // e.g., "elf.header"
	Name             string   // human-readable name
	Signature        string   // hex signature, "??" for wildcard bytes
	StructuralID     string   // SHA-1 of normalized signature (computed)
	Description      string   // optional
	Examples         []string // hex-encoded buffers the signature must match
	NegativeExamples []string // hex-encoded buffers the signature must not match
	References       []string // documentation URLs
	Categories       []string // classification tags
}

// ComputeStructuralID computes SHA-1 of the signature with whitespace
// collapsed and hex digits upper-cased, so "48 8b ??" and "48  8B ??"
// share an ID.
func (r *Rule) ComputeStructuralID() string {
	normalized := strings.ToUpper(strings.Join(strings.Fields(r.Signature), " "))
	h := sha1.New()
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

// Ruleset groups rules together.
type Ruleset struct {
	ID          string
	Name        string
	Description string
	RuleIDs     []string
}
