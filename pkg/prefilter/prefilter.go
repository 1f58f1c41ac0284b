// Package prefilter narrows the set of signature rules worth scanning for a
// blob. Each rule's longest literal run is fed into an Aho-Corasick
// automaton; a rule is only a candidate when its anchor occurs in the blob.
package prefilter

import (
	"github.com/cloudflare/ahocorasick"
	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/types"
)

// MinAnchorLen is the shortest anchor worth indexing. Rules whose longest
// literal run is shorter are always checked.
const MinAnchorLen = 2

// Prefilter uses Aho-Corasick for efficient anchor matching.
type Prefilter struct {
	matcher     *ahocorasick.Matcher
	anchors     [][]byte                 // anchor at each dictionary index
	anchorRules map[string][]*types.Rule // anchor -> rules needing it
	unanchored  []*types.Rule            // rules without a usable anchor (always checked)
}

// New creates a prefilter from rules using MinAnchorLen.
func New(rules []*types.Rule) *Prefilter {
	return NewWithMinAnchor(rules, MinAnchorLen)
}

// NewWithMinAnchor creates a prefilter that only indexes anchors of at
// least minLen bytes. Rules whose signature does not parse are kept in the
// always-checked set so the matcher can report them.
func NewWithMinAnchor(rules []*types.Rule, minLen int) *Prefilter {
	if minLen < 1 {
		minLen = 1
	}
	pf := &Prefilter{
		anchorRules: make(map[string][]*types.Rule),
		unanchored:  make([]*types.Rule, 0),
	}

	for _, rule := range rules {
		anchor := ruleAnchor(rule)
		if len(anchor) < minLen {
			pf.unanchored = append(pf.unanchored, rule)
			continue
		}
		key := string(anchor)
		if _, ok := pf.anchorRules[key]; !ok {
			pf.anchors = append(pf.anchors, anchor)
		}
		pf.anchorRules[key] = append(pf.anchorRules[key], rule)
	}

	if len(pf.anchors) > 0 {
		pf.matcher = ahocorasick.NewMatcher(pf.anchors)
	}

	return pf
}

// Filter returns rules that might match content (anchor found OR no usable
// anchor). Safe for concurrent use.
func (pf *Prefilter) Filter(content []byte) []*types.Rule {
	result := make([]*types.Rule, 0, len(pf.unanchored))
	result = append(result, pf.unanchored...)

	if pf.matcher == nil {
		return result
	}

	seen := make(map[*types.Rule]bool)
	for _, hit := range pf.matcher.MatchThreadSafe(content) {
		for _, rule := range pf.anchorRules[string(pf.anchors[hit])] {
			if !seen[rule] {
				seen[rule] = true
				result = append(result, rule)
			}
		}
	}

	return result
}

// AnchoredCount reports how many rules are gated by an anchor.
func (pf *Prefilter) AnchoredCount() int {
	n := 0
	for _, rules := range pf.anchorRules {
		n += len(rules)
	}
	return n
}

func ruleAnchor(rule *types.Rule) []byte {
	p, err := signature.Parse(rule.Signature)
	if err != nil {
		return nil
	}
	_, anchor := p.Anchor()
	return anchor
}
