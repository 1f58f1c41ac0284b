package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/praetorian-inc/sigscan/pkg/enum"
	"github.com/praetorian-inc/sigscan/pkg/matcher"
	"github.com/praetorian-inc/sigscan/pkg/rule"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
)

var (
	// cachedBuiltinRules holds builtin rules loaded once per process
	cachedBuiltinRules []*types.Rule
	cachedRulesErr     error
	cacheOnce          sync.Once
)

// loadBuiltinRulesCached loads builtin rules once and caches them
func loadBuiltinRulesCached() ([]*types.Rule, error) {
	cacheOnce.Do(func() {
		loader := rule.NewLoader()
		cachedBuiltinRules, cachedRulesErr = loader.LoadBuiltinRules()
	})
	return cachedBuiltinRules, cachedRulesErr
}

// GetBuiltinRules returns the built-in rules (cached)
func GetBuiltinRules() ([]*types.Rule, error) {
	return loadBuiltinRulesCached()
}

// Core drives blobs from an enumerator through the matcher into the store.
type Core struct {
	cfg      Config
	ruleSIDs map[string]string
	logger   *zap.Logger

	// findingMu serialises the exists-then-add sequence so concurrent
	// blobs sharing a finding count it as new exactly once.
	findingMu sync.Mutex
}

// NewCore validates cfg and records every rule in the store.
func NewCore(cfg Config) (*Core, error) {
	if cfg.Matcher == nil {
		return nil, errors.New("matcher is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sids := make(map[string]string, len(cfg.Rules))
	for _, r := range cfg.Rules {
		sid := r.StructuralID
		if sid == "" {
			sid = r.ComputeStructuralID()
		}
		sids[r.ID] = sid
		if err := cfg.Store.AddRule(r); err != nil {
			return nil, fmt.Errorf("storing rule %s: %w", r.ID, err)
		}
	}

	return &Core{cfg: cfg, ruleSIDs: sids, logger: logger}, nil
}

// Run enumerates e and processes every blob it yields. The first error
// from the store or matcher stops the run.
func (c *Core) Run(ctx context.Context, e enum.Enumerator) (*Stats, error) {
	var blobs, skipped, size, matches, newFindings atomic.Int64
	var ruleScans, rulesFiltered, rulesTruncated atomic.Int64

	var rulesMu sync.Mutex
	rules := make(map[string]*RuleTotals)

	err := e.Enumerate(ctx, func(content []byte, blobID types.BlobID, prov types.Provenance) error {
		res, err := c.ScanBlob(content, blobID, prov)
		if err != nil {
			return err
		}
		blobs.Add(1)
		if res.Skipped {
			skipped.Add(1)
			return nil
		}
		size.Add(int64(len(content)))
		matches.Add(int64(len(res.Matches)))
		newFindings.Add(int64(res.NewFindings))
		ruleScans.Add(int64(res.Rules.ScannedRules))
		rulesFiltered.Add(int64(res.Rules.FilteredRules))
		rulesTruncated.Add(int64(res.Rules.TruncatedRules))

		rulesMu.Lock()
		addRuleTotals(rules, res.RuleStats)
		rulesMu.Unlock()
		return nil
	})

	stats := &Stats{
		Blobs:          blobs.Load(),
		Skipped:        skipped.Load(),
		Bytes:          size.Load(),
		Matches:        matches.Load(),
		NewFindings:    newFindings.Load(),
		RuleScans:      ruleScans.Load(),
		RulesFiltered:  rulesFiltered.Load(),
		RulesTruncated: rulesTruncated.Load(),
		Rules:          rules,
	}
	if err != nil {
		return stats, fmt.Errorf("enumeration failed: %w", err)
	}
	return stats, nil
}

// ScanBlob stores one blob with its provenance, matches it and records the
// resulting matches and findings. Safe for concurrent use.
func (c *Core) ScanBlob(content []byte, blobID types.BlobID, prov types.Provenance) (*ScanResult, error) {
	res := &ScanResult{BlobID: blobID, Source: sourceOf(blobID, prov)}

	if c.cfg.Incremental {
		exists, err := c.cfg.Store.BlobExists(blobID)
		if err != nil {
			return nil, fmt.Errorf("checking blob: %w", err)
		}
		if exists {
			if err := c.addProvenance(blobID, prov); err != nil {
				return nil, err
			}
			c.logger.Debug("skipping known blob", zap.String("source", res.Source))
			res.Skipped = true
			return res, nil
		}
	}

	if err := c.cfg.Store.AddBlob(blobID, int64(len(content))); err != nil {
		return nil, fmt.Errorf("storing blob: %w", err)
	}
	if err := c.addProvenance(blobID, prov); err != nil {
		return nil, err
	}

	detailed, err := c.cfg.Matcher.MatchDetailed(content, blobID)
	if err != nil {
		return nil, fmt.Errorf("matching %s: %w", res.Source, err)
	}
	matches := detailed.Matches
	res.Matches = matches
	res.Rules = detailed.Summary
	res.RuleStats = detailed.RuleStats

	for _, m := range matches {
		if err := c.cfg.Store.AddMatch(m); err != nil {
			return nil, fmt.Errorf("storing match: %w", err)
		}
	}

	if c.cfg.Blobs != nil && len(matches) > 0 {
		if err := c.cfg.Blobs.Put(blobID, content); err != nil {
			return nil, fmt.Errorf("saving blob: %w", err)
		}
	}

	res.Findings = c.groupFindings(matches)
	for _, f := range res.Findings {
		isNew, err := c.addFinding(f)
		if err != nil {
			return nil, err
		}
		if isNew {
			res.NewFindings++
		}
	}

	if len(matches) > 0 {
		c.logger.Debug("blob matched",
			zap.String("source", res.Source),
			zap.Int("matches", len(matches)),
			zap.Int("new_findings", res.NewFindings))
	}
	return res, nil
}

// groupFindings groups matches of the same rule over identical bytes,
// keeping the order in which each finding first appears.
func (c *Core) groupFindings(matches []*types.Match) []*types.Finding {
	var findings []*types.Finding
	byID := make(map[string]*types.Finding)

	for _, m := range matches {
		sid, ok := c.ruleSIDs[m.RuleID]
		if !ok {
			sid = m.RuleID
		}
		id := types.ComputeFindingID(sid, m.Snippet.Matching)

		f, ok := byID[id]
		if !ok {
			f = &types.Finding{ID: id, RuleID: m.RuleID, Matching: m.Snippet.Matching}
			byID[id] = f
			findings = append(findings, f)
		}
		f.Matches = append(f.Matches, m)
	}
	return findings
}

func (c *Core) addFinding(f *types.Finding) (bool, error) {
	c.findingMu.Lock()
	defer c.findingMu.Unlock()

	exists, err := c.cfg.Store.FindingExists(f.ID)
	if err != nil {
		return false, fmt.Errorf("checking finding: %w", err)
	}
	if err := c.cfg.Store.AddFinding(f); err != nil {
		return false, fmt.Errorf("storing finding: %w", err)
	}
	return !exists, nil
}

// addRuleTotals folds one blob's rule statistics into totals. Filtered
// rules are not counted.
func addRuleTotals(totals map[string]*RuleTotals, stats map[string]matcher.RuleStat) {
	for id, st := range stats {
		if st.Status == matcher.RuleFiltered {
			continue
		}
		t, ok := totals[id]
		if !ok {
			t = &RuleTotals{}
			totals[id] = t
		}
		t.Blobs++
		t.Matches += int64(st.Matches)
		t.Duration += st.Duration
		if st.Status == matcher.RuleTruncated {
			t.Truncated++
		}
	}
}

func (c *Core) addProvenance(blobID types.BlobID, prov types.Provenance) error {
	if prov == nil {
		return nil
	}
	if err := c.cfg.Store.AddProvenance(blobID, prov); err != nil {
		return fmt.Errorf("storing provenance: %w", err)
	}
	return nil
}

// Close releases the matcher and store.
func (c *Core) Close() error {
	return errors.Join(c.cfg.Matcher.Close(), c.cfg.Store.Close())
}

func sourceOf(blobID types.BlobID, prov types.Provenance) string {
	if prov != nil && prov.Path() != "" {
		return prov.Path()
	}
	return "blob:" + blobID.Hex()
}
