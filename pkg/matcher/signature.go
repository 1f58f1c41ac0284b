package matcher

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/praetorian-inc/sigscan/pkg/prefilter"
	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Blobs at least this large have their candidate rules scanned in parallel.
const parallelThreshold = 1 << 20 // bytes

type compiledRule struct {
	rule         *types.Rule
	pattern      *signature.Pattern
	structuralID string
}

// SignatureMatcher implements Matcher by running one signature scanner per
// candidate rule. Rules are compiled once at construction; all per-blob
// state is allocated per call, so Match may be called concurrently.
type SignatureMatcher struct {
	rules        []compiledRule
	index        map[*types.Rule]int // rule -> position in rules
	prefilter    *prefilter.Prefilter
	contextBytes int
	maxMatches   int
	dedupeMode   DedupeMode
	logger       *zap.Logger
}

// NewSignature compiles every rule signature. A rule whose signature does
// not decode, or decodes to zero bytes, is a configuration error. A rule
// listed twice is compiled once.
func NewSignature(cfg Config) (*SignatureMatcher, error) {
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("no rules provided")
	}
	if cfg.DedupeMode != DedupeByLocation && cfg.DedupeMode != DedupeByContent {
		return nil, fmt.Errorf("unknown dedupe mode: %d", cfg.DedupeMode)
	}
	if cfg.ContextBytes < 0 {
		return nil, fmt.Errorf("context bytes must not be negative: %d", cfg.ContextBytes)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SignatureMatcher{
		rules:        make([]compiledRule, 0, len(cfg.Rules)),
		index:        make(map[*types.Rule]int, len(cfg.Rules)),
		contextBytes: cfg.ContextBytes,
		maxMatches:   cfg.MaxMatchesPerBlob,
		dedupeMode:   cfg.DedupeMode,
		logger:       logger,
	}

	for _, r := range cfg.Rules {
		p, err := signature.Parse(r.Signature)
		if err != nil {
			return nil, fmt.Errorf("failed to compile signature %q for rule %s: %w", r.Signature, r.ID, err)
		}
		if p.Size() == 0 {
			return nil, fmt.Errorf("rule %s has an empty signature", r.ID)
		}

		if _, dup := m.index[r]; dup {
			continue
		}

		sid := r.StructuralID
		if sid == "" {
			sid = r.ComputeStructuralID()
		}
		m.index[r] = len(m.rules)
		m.rules = append(m.rules, compiledRule{rule: r, pattern: p, structuralID: sid})
	}

	if !cfg.DisablePrefilter {
		m.prefilter = prefilter.New(cfg.Rules)
		logger.Debug("built prefilter",
			zap.Int("rules", len(m.rules)),
			zap.Int("anchored", m.prefilter.AnchoredCount()))
	}

	return m, nil
}

// Match scans content against all loaded rules.
func (m *SignatureMatcher) Match(content []byte) ([]*types.Match, error) {
	return m.MatchWithBlobID(content, types.ComputeBlobID(content))
}

// MatchWithBlobID scans content with a known BlobID.
func (m *SignatureMatcher) MatchWithBlobID(content []byte, blobID types.BlobID) ([]*types.Match, error) {
	result, err := m.MatchDetailed(content, blobID)
	if err != nil {
		return nil, err
	}
	return result.Matches, nil
}

// MatchDetailed scans content and reports per-rule statistics alongside the
// matches. Matches are ordered by start offset, then rule ID.
func (m *SignatureMatcher) MatchDetailed(content []byte, blobID types.BlobID) (*MatchResult, error) {
	candidates := m.candidates(content)

	result := &MatchResult{
		RuleStats: make(map[string]RuleStat, len(m.rules)),
		Summary: ResultSummary{
			TotalRules:    len(m.rules),
			ScannedRules:  len(candidates),
			FilteredRules: len(m.rules) - len(candidates),
		},
	}

	scanned := make([][]*types.Match, len(candidates))
	stats := make([]RuleStat, len(candidates))

	if len(content) >= parallelThreshold && len(candidates) > 1 {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, idx := range candidates {
			g.Go(func() error {
				scanned[i], stats[i] = m.scanRule(&m.rules[idx], content, blobID)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, idx := range candidates {
			scanned[i], stats[i] = m.scanRule(&m.rules[idx], content, blobID)
		}
	}

	inCandidates := make([]bool, len(m.rules))
	for _, idx := range candidates {
		inCandidates[idx] = true
	}
	for i, cr := range m.rules {
		if !inCandidates[i] {
			result.RuleStats[cr.rule.ID] = RuleStat{RuleID: cr.rule.ID, Status: RuleFiltered}
		}
	}

	var all []*types.Match
	for i, stat := range stats {
		result.RuleStats[stat.RuleID] = stat
		if stat.Status == RuleTruncated {
			result.Summary.TruncatedRules++
		}
		all = append(all, scanned[i]...)
	}

	slices.SortStableFunc(all, func(a, b *types.Match) int {
		if c := cmp.Compare(a.Location.Offset.Start, b.Location.Offset.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})

	dedup := NewDeduplicator(m.dedupeMode)
	matches := make([]*types.Match, 0, len(all))
	for _, match := range all {
		if m.maxMatches > 0 && len(matches) >= m.maxMatches {
			break
		}
		if dedup.IsDuplicate(match) {
			continue
		}
		dedup.Add(match)
		matches = append(matches, match)
	}
	result.Matches = matches

	m.logger.Debug("scanned blob",
		zap.String("blob_id", blobID.Hex()),
		zap.Int("size", len(content)),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)))

	return result, nil
}

// Close releases resources.
func (m *SignatureMatcher) Close() error {
	return nil
}

// candidates returns the indices of rules worth scanning, in load order.
func (m *SignatureMatcher) candidates(content []byte) []int {
	if m.prefilter == nil {
		all := make([]int, len(m.rules))
		for i := range all {
			all[i] = i
		}
		return all
	}

	filtered := m.prefilter.Filter(content)
	seen := make([]bool, len(m.rules))
	out := make([]int, 0, len(filtered))
	for _, r := range filtered {
		idx, ok := m.index[r]
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// scanRule drives one scanner over content, stopping once MaxMatchesPerBlob
// hits are collected. The global cap is applied after ordering, and a rule's
// hits arrive in offset order, so no needed hit is dropped here.
func (m *SignatureMatcher) scanRule(cr *compiledRule, content []byte, blobID types.BlobID) ([]*types.Match, RuleStat) {
	start := time.Now()
	stat := RuleStat{RuleID: cr.rule.ID, Status: RuleCompleted}

	var matches []*types.Match
	sc := cr.pattern.Scan(content)
	for {
		hit, err := sc.Next()
		if err != nil {
			break
		}
		if m.maxMatches > 0 && len(matches) >= m.maxMatches {
			stat.Status = RuleTruncated
			break
		}
		matches = append(matches, m.buildMatch(cr, content, blobID, hit))
	}

	stat.Matches = len(matches)
	stat.Duration = time.Since(start)
	return matches, stat
}

func (m *SignatureMatcher) buildMatch(cr *compiledRule, content []byte, blobID types.BlobID, hit signature.Hit) *types.Match {
	end := hit.Offset + len(hit.Window)
	match := &types.Match{
		BlobID:   blobID,
		RuleID:   cr.rule.ID,
		RuleName: cr.rule.Name,
		Location: types.Location{
			Offset: types.OffsetSpan{Start: int64(hit.Offset), End: int64(end)},
		},
		Snippet: types.NewSnippet(content, hit.Offset, end, m.contextBytes),
	}
	match.StructuralID = match.ComputeStructuralID(cr.structuralID)
	return match
}
