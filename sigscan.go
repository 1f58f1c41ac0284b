// Package sigscan finds binary byte signatures in memory, files, and
// directory trees.
//
// A signature is written as space-separated hex bytes where ?? matches any
// byte, for example "7F 45 4C 46 ?? ?? 01".
//
// # Single signature
//
//	p, err := sigscan.Compile("11 ?? 33")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for offset, window := range p.Scan(data).All() {
//	    fmt.Printf("found at %d: % X\n", offset, window)
//	}
//
// # Rules
//
// Create a scanner with the builtin rules and scan content:
//
//	scanner, err := sigscan.NewScanner()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	matches, err := scanner.ScanFile("/bin/ls")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, match := range matches {
//	    fmt.Printf("%s at offset %d\n", match.RuleName, match.Location.Offset.Start)
//	}
package sigscan

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/praetorian-inc/sigscan/pkg/enum"
	"github.com/praetorian-inc/sigscan/pkg/matcher"
	"github.com/praetorian-inc/sigscan/pkg/rule"
	"github.com/praetorian-inc/sigscan/pkg/scanner"
	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
)

// Re-export commonly used types for convenience.
// Users can import just "github.com/praetorian-inc/sigscan" without subpackages.
type (
	// Match is a single rule hit inside scanned content.
	Match = types.Match

	// Rule pairs a signature with an ID, a name, and examples.
	Rule = types.Rule

	// Finding groups matches of one rule over identical bytes.
	Finding = types.Finding

	// Location describes where a match was found within content.
	Location = types.Location

	// Snippet contains the matched bytes with surrounding context.
	Snippet = types.Snippet

	// Pattern is a compiled signature.
	Pattern = signature.Pattern

	// Hit is one occurrence reported by a Pattern scan.
	Hit = signature.Hit
)

// Scanner matches content against a fixed set of rules. It is safe for
// concurrent use.
type Scanner struct {
	matcher matcher.Matcher
	config  *scannerConfig
	mu      sync.RWMutex
}

// scannerConfig holds scanner configuration.
type scannerConfig struct {
	rules        []*types.Rule
	contextBytes int
	maxMatches   int
	logger       *zap.Logger
}

// Option configures a Scanner.
type Option func(*scannerConfig)

// WithRules uses custom rules instead of builtin rules.
func WithRules(rules []*Rule) Option {
	return func(c *scannerConfig) {
		c.rules = rules
	}
}

// WithContextBytes sets how many bytes before and after each match are
// kept in its snippet. Default is 16.
func WithContextBytes(n int) Option {
	return func(c *scannerConfig) {
		c.contextBytes = n
	}
}

// WithMaxMatchesPerBlob caps the matches returned for one input.
// Default is 0, meaning unlimited.
func WithMaxMatchesPerBlob(n int) Option {
	return func(c *scannerConfig) {
		c.maxMatches = n
	}
}

// WithLogger sends debug output to l.
func WithLogger(l *zap.Logger) Option {
	return func(c *scannerConfig) {
		c.logger = l
	}
}

// NewScanner creates a new Scanner with the given options. Without
// WithRules it uses every builtin rule.
func NewScanner(opts ...Option) (*Scanner, error) {
	config := &scannerConfig{
		contextBytes: 16,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(config)
	}

	// Load rules if not provided
	if config.rules == nil {
		rules, err := scanner.GetBuiltinRules()
		if err != nil {
			return nil, fmt.Errorf("loading builtin rules: %w", err)
		}
		config.rules = rules
	}

	m, err := matcher.New(matcher.Config{
		Rules:             config.rules,
		ContextBytes:      config.contextBytes,
		MaxMatchesPerBlob: config.maxMatches,
		Logger:            config.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating matcher: %w", err)
	}

	return &Scanner{matcher: m, config: config}, nil
}

// ScanBytes scans raw bytes and returns matches ordered by offset.
func (s *Scanner) ScanBytes(content []byte) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.matcher.Match(content)
}

// ScanFile reads and scans a file.
func (s *Scanner) ScanFile(path string) ([]*Match, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return s.ScanBytes(content)
}

// ScanPath scans a file or every non-hidden file below a directory and
// returns the findings, each with the matches that make it up. Identical
// files are scanned once.
func (s *Scanner) ScanPath(ctx context.Context, root string) ([]*Finding, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("target does not exist: %s", root)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := store.NewMemory()
	defer results.Close()

	core, err := scanner.NewCore(scanner.Config{
		Rules:   s.config.rules,
		Matcher: s.matcher,
		Store:   results,
		Logger:  s.config.logger,
	})
	if err != nil {
		return nil, err
	}

	e := enum.NewCombinedEnumerator(enum.NewFilesystemEnumerator(enum.Config{
		Root:   root,
		Logger: s.config.logger,
	}))
	if _, err := core.Run(ctx, e); err != nil {
		return nil, err
	}
	return results.GetFindings()
}

// Close releases scanner resources.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.matcher != nil {
		return s.matcher.Close()
	}
	return nil
}

// RuleCount returns the number of detection rules loaded.
func (s *Scanner) RuleCount() int {
	return len(s.config.rules)
}

// Rules returns a copy of the loaded detection rules.
func (s *Scanner) Rules() []*Rule {
	rules := make([]*Rule, len(s.config.rules))
	copy(rules, s.config.rules)
	return rules
}

// Compile parses a signature such as "48 8B ?? ?? 90".
func Compile(text string) (*Pattern, error) {
	return signature.Parse(text)
}

// LoadRulesFromFile loads detection rules from a YAML file or a directory
// of YAML files. Use this with WithRules.
func LoadRulesFromFile(path string) ([]*Rule, error) {
	rules, err := rule.NewLoader().LoadRulesPath(path)
	if err != nil {
		return nil, err
	}
	if err := rule.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadBuiltinRules returns all builtin detection rules.
// This can be used to inspect available rules or create a subset.
func LoadBuiltinRules() ([]*Rule, error) {
	return rule.NewLoader().LoadBuiltinRules()
}
