package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/praetorian-inc/sigscan/pkg/enum"
	"github.com/praetorian-inc/sigscan/pkg/matcher"
	"github.com/praetorian-inc/sigscan/pkg/rule"
	"github.com/praetorian-inc/sigscan/pkg/scanner"
	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanRulesPath       string
	scanRuleset         string
	scanRulesInclude    string
	scanRulesExclude    string
	scanOutputPath      string
	scanOutputFormat    string
	scanGit             bool
	scanGitRef          string
	scanExtractArchives string
	scanMaxFileSize     int64
	scanIncludeHidden   bool
	scanFollowSymlinks  bool
	scanContextBytes    int
	scanMaxMatches      int
	scanIncremental     bool
	scanWorkers         int
	scanStoreBlobs      string
	scanDedupe          string
)

var scanCmd = &cobra.Command{
	Use:   "scan <target> [target...]",
	Short: "Scan targets for byte signatures",
	Long: `Scan files, directories, or git repositories for byte signatures
using detection rules. Results are stored in a database that the report
command can read back later.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRulesPath, "rules", "", "Path to custom rules file or directory")
	scanCmd.Flags().StringVar(&scanRuleset, "ruleset", "", "Only use rules from this builtin ruleset (e.g. default, code)")
	scanCmd.Flags().StringVar(&scanRulesInclude, "rules-include", "", "Include rules matching regex pattern (comma-separated)")
	scanCmd.Flags().StringVar(&scanRulesExclude, "rules-exclude", "", "Exclude rules matching regex pattern (comma-separated)")
	scanCmd.Flags().StringVarP(&scanOutputPath, "output", "o", "sigscan.db", "Output database path (:memory: to keep nothing)")
	scanCmd.Flags().StringVar(&scanOutputFormat, "format", "human", "Output format: human, json, sarif")
	scanCmd.Flags().BoolVar(&scanGit, "git", false, "Treat targets as git repositories (scan the committed tree)")
	scanCmd.Flags().StringVar(&scanGitRef, "git-ref", "HEAD", "Revision to scan with --git")
	scanCmd.Flags().StringVar(&scanExtractArchives, "extract-archives", "", "Scan archive members: comma-separated zip,7z,gz,xz,zst or all")
	scanCmd.Flags().Int64Var(&scanMaxFileSize, "max-file-size", 64*1024*1024, "Maximum file size to scan (bytes, 0 = no limit)")
	scanCmd.Flags().BoolVar(&scanIncludeHidden, "include-hidden", false, "Include hidden files and directories")
	scanCmd.Flags().BoolVar(&scanFollowSymlinks, "follow-symlinks", false, "Follow symbolic links to files")
	scanCmd.Flags().IntVar(&scanContextBytes, "context-bytes", 16, "Bytes of context before/after matches (0 to disable)")
	scanCmd.Flags().IntVar(&scanMaxMatches, "max-matches", 0, "Maximum matches per blob (0 = unlimited)")
	scanCmd.Flags().BoolVar(&scanIncremental, "incremental", false, "Skip already-scanned blobs")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Parallel file readers (0 = number of CPUs)")
	scanCmd.Flags().StringVar(&scanDedupe, "dedupe", "location", "Collapse repeated matches in a blob by: location, content")
	scanCmd.Flags().StringVar(&scanStoreBlobs, "store-blobs", "", "Directory to keep a copy of every blob that matched")
}

func runScan(cmd *cobra.Command, args []string) error {
	// Validate targets exist
	for _, target := range args {
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("target does not exist: %s", target)
		}
	}

	switch scanOutputFormat {
	case "human", "json", "sarif":
	default:
		return fmt.Errorf("unknown output format: %s", scanOutputFormat)
	}

	dedupeMode, err := matcher.ParseDedupeMode(scanDedupe)
	if err != nil {
		return err
	}

	rules, err := loadRules(scanRulesPath, scanRuleset, scanRulesInclude, scanRulesExclude)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if len(rules) == 0 {
		return fmt.Errorf("no rules selected")
	}
	logger.Debug("rules loaded", zap.Int("count", len(rules)))

	m, err := matcher.New(matcher.Config{
		Rules:             rules,
		ContextBytes:      scanContextBytes,
		MaxMatchesPerBlob: scanMaxMatches,
		DedupeMode:        dedupeMode,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating matcher: %w", err)
	}

	s, err := store.New(store.Config{Path: scanOutputPath})
	if err != nil {
		m.Close()
		return fmt.Errorf("creating store: %w", err)
	}

	var blobs *store.BlobStore
	if scanStoreBlobs != "" {
		blobs, err = store.NewBlobStore(scanStoreBlobs)
		if err != nil {
			m.Close()
			s.Close()
			return err
		}
	}

	core, err := scanner.NewCore(scanner.Config{
		Rules:       rules,
		Matcher:     m,
		Store:       s,
		Blobs:       blobs,
		Incremental: scanIncremental,
		Logger:      logger,
	})
	if err != nil {
		m.Close()
		s.Close()
		return fmt.Errorf("creating scanner: %w", err)
	}
	defer core.Close()

	enumerator := createEnumerator(args)
	stats, err := core.Run(commandContext(cmd), enumerator)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}
	if dups := enumerator.Duplicates(); dups > 0 {
		logger.Debug("duplicate blobs suppressed", zap.Int64("count", dups))
	}

	// Summary goes to stderr for json/sarif to keep stdout machine readable
	summary := cmd.OutOrStdout()
	if scanOutputFormat != "human" {
		summary = cmd.ErrOrStderr()
	}
	fmt.Fprintf(summary, "Scan complete: %d blobs, %s, %d matches, %d new findings",
		stats.Blobs, formatBytes(stats.Bytes), stats.Matches, stats.NewFindings)
	if scanIncremental {
		fmt.Fprintf(summary, " (%d blobs skipped)", stats.Skipped)
	}
	fmt.Fprintln(summary)
	if stats.RulesTruncated > 0 {
		fmt.Fprintf(summary, "Match cap reached: %d rule scans stopped at --max-matches %d\n",
			stats.RulesTruncated, scanMaxMatches)
	}
	logRuleStats(stats)
	if scanOutputPath != store.MemoryPath {
		fmt.Fprintf(summary, "Results stored in: %s\n", scanOutputPath)
	}

	switch scanOutputFormat {
	case "json":
		matches, err := s.GetAllMatches()
		if err != nil {
			return fmt.Errorf("retrieving matches: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), matches)
	case "sarif":
		matches, err := s.GetAllMatches()
		if err != nil {
			return fmt.Errorf("retrieving matches: %w", err)
		}
		return writeSARIF(cmd.OutOrStdout(), s, rules, matches)
	default:
		findings, err := s.GetFindings()
		if err != nil {
			return fmt.Errorf("retrieving findings: %w", err)
		}
		return outputFindings(cmd, findings, rules)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// logRuleStats writes prefilter effectiveness and per-rule totals, slowest
// rule first, at debug level.
func logRuleStats(stats *scanner.Stats) {
	logger.Debug("prefilter",
		zap.Int64("rule_scans", stats.RuleScans),
		zap.Int64("rules_filtered", stats.RulesFiltered),
		zap.Int64("rules_truncated", stats.RulesTruncated))

	ids := make([]string, 0, len(stats.Rules))
	for id := range stats.Rules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := stats.Rules[ids[i]], stats.Rules[ids[j]]
		if a.Duration != b.Duration {
			return a.Duration > b.Duration
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		t := stats.Rules[id]
		logger.Debug("rule stats",
			zap.String("rule", id),
			zap.Int64("blobs", t.Blobs),
			zap.Int64("matches", t.Matches),
			zap.Int64("truncated", t.Truncated),
			zap.Duration("time", t.Duration))
	}
}

// loadRules returns builtin rules or the rules under path, narrowed to a
// builtin ruleset and then by the include/exclude patterns.
func loadRules(path, ruleset, include, exclude string) ([]*types.Rule, error) {
	loader := rule.NewLoader()

	var rules []*types.Rule
	var err error
	if path != "" {
		rules, err = loader.LoadRulesPath(path)
	} else {
		rules, err = scanner.GetBuiltinRules()
	}
	if err != nil {
		return nil, err
	}

	if err := rule.ValidateRules(rules); err != nil {
		return nil, err
	}

	if ruleset != "" {
		rulesets, err := loader.LoadBuiltinRulesets()
		if err != nil {
			return nil, fmt.Errorf("loading rulesets: %w", err)
		}
		rules, err = rule.SelectRuleset(rules, rulesets, ruleset)
		if err != nil {
			return nil, err
		}
	}

	// Apply filtering if patterns specified
	if include != "" || exclude != "" {
		config := rule.FilterConfig{
			Include: rule.ParsePatterns(include),
			Exclude: rule.ParsePatterns(exclude),
		}
		rules, err = rule.Filter(rules, config)
		if err != nil {
			return nil, fmt.Errorf("filtering rules: %w", err)
		}
	}

	return rules, nil
}

// createEnumerator builds one enumerator per target and combines them so a
// blob reachable from several targets is scanned once.
func createEnumerator(targets []string) *enum.CombinedEnumerator {
	enumerators := make([]enum.Enumerator, 0, len(targets))
	for _, target := range targets {
		config := enum.Config{
			Root:            target,
			IncludeHidden:   scanIncludeHidden,
			MaxFileSize:     scanMaxFileSize,
			FollowSymlinks:  scanFollowSymlinks,
			ExtractArchives: scanExtractArchives,
			ExtractLimits:   enum.DefaultExtractLimits(),
			Workers:         scanWorkers,
			Logger:          logger,
		}

		if scanGit {
			g := enum.NewGitEnumerator(config)
			if scanGitRef != "" {
				g.CommitRef = scanGitRef
			}
			enumerators = append(enumerators, g)
			continue
		}
		enumerators = append(enumerators, enum.NewFilesystemEnumerator(config))
	}
	return enum.NewCombinedEnumerator(enumerators...)
}

func outputFindings(cmd *cobra.Command, findings []*types.Finding, rules []*types.Rule) error {
	out := cmd.OutOrStdout()
	if len(findings) == 0 {
		fmt.Fprintf(out, "\nNo findings.\n")
		return nil
	}

	names := make(map[string]string, len(rules))
	for _, r := range rules {
		names[r.ID] = r.Name
	}

	fmt.Fprintf(out, "\nFindings:\n")
	for i, f := range findings {
		name := names[f.RuleID]
		if name == "" {
			name = f.RuleID
		}
		fmt.Fprintf(out, "%d. %s (%s): %s [%d matches]\n",
			i+1, name, f.RuleID, signature.Encode(truncate(f.Matching, 32), nil), len(f.Matches))
	}
	return nil
}

// truncate caps b at n bytes for display.
func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
