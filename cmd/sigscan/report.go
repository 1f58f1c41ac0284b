package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	reportDatastore  string
	reportFormat     string
	reportColor      string
	reportMaxMatches int
)

// styles holds the color formatters used by the human report
type styles struct {
	findingHeading *color.Color
	id             *color.Color
	ruleName       *color.Color
	heading        *color.Color
	match          *color.Color
	metadata       *color.Color
}

// newStyles creates color formatters for report output
// enabled=false respects --color=never and the NO_COLOR env var
func newStyles(enabled bool) *styles {
	s := &styles{
		findingHeading: color.New(color.Bold, color.FgHiWhite),
		id:             color.New(color.FgHiGreen),
		ruleName:       color.New(color.Bold, color.FgHiBlue),
		heading:        color.New(color.Bold),
		match:          color.New(color.FgYellow),
		metadata:       color.New(color.FgHiBlue),
	}

	if !enabled {
		for _, c := range []*color.Color{s.findingHeading, s.id, s.ruleName, s.heading, s.match, s.metadata} {
			c.DisableColor()
		}
	}

	return s
}

// snippetParts holds a hex snippet split for colored output
type snippetParts struct {
	prefix   string // "... " if context was cut at the start
	before   string
	matching string
	after    string
	suffix   string // " ..." if context was cut at the end
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a report from scan results",
	Long:  "Read findings from a datastore and print them as human, json, or sarif output",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDatastore, "datastore", "sigscan.db", "Path to the datastore written by scan")
	reportCmd.Flags().StringVar(&reportFormat, "format", "human", "Output format: human, json, sarif")
	reportCmd.Flags().StringVar(&reportColor, "color", "auto", "Color output: auto, always, never")
	reportCmd.Flags().IntVar(&reportMaxMatches, "max-matches", 3, "Matches shown per finding in human output (0 = all)")
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportDatastore == store.MemoryPath {
		return fmt.Errorf("cannot report from in-memory store")
	}

	info, err := os.Stat(reportDatastore)
	if err != nil {
		return fmt.Errorf("datastore not found: %s", reportDatastore)
	}
	if info.IsDir() {
		return fmt.Errorf("datastore is a directory: %s", reportDatastore)
	}

	s, err := store.New(store.Config{Path: reportDatastore})
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer s.Close()

	rules, err := s.GetRules()
	if err != nil {
		return fmt.Errorf("retrieving rules: %w", err)
	}

	switch reportFormat {
	case "json":
		findings, err := s.GetFindings()
		if err != nil {
			return fmt.Errorf("retrieving findings: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), findings)
	case "sarif":
		matches, err := s.GetAllMatches()
		if err != nil {
			return fmt.Errorf("retrieving matches: %w", err)
		}
		return writeSARIF(cmd.OutOrStdout(), s, rules, matches)
	case "human":
		findings, err := s.GetFindings()
		if err != nil {
			return fmt.Errorf("retrieving findings: %w", err)
		}
		return outputReportHuman(cmd.OutOrStdout(), s, findings, rules, newStyles(colorEnabled(reportColor)))
	default:
		return fmt.Errorf("unknown output format: %s", reportFormat)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// colorEnabled resolves the --color mode. auto colors only a terminal
// stdout and honours NO_COLOR.
func colorEnabled(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	}
}

// formatSnippetWithParts renders a snippet as hex, keeping at most maxBytes
// bytes. Context is cut evenly on both sides of the match; a match longer
// than maxBytes is itself cut.
func formatSnippetWithParts(before, matching, after []byte, maxBytes int) snippetParts {
	var parts snippetParts

	if len(before)+len(matching)+len(after) > maxBytes {
		if len(matching) >= maxBytes {
			return snippetParts{
				matching: signature.Encode(matching[:maxBytes], nil),
				suffix:   " ...",
			}
		}

		avail := maxBytes - len(matching)
		keepBefore := min(len(before), avail/2)
		keepAfter := min(len(after), avail-keepBefore)
		// Give unused room on the right back to the left
		keepBefore = min(len(before), avail-keepAfter)

		if keepBefore < len(before) {
			parts.prefix = "... "
			before = before[len(before)-keepBefore:]
		}
		if keepAfter < len(after) {
			parts.suffix = " ..."
			after = after[:keepAfter]
		}
	}

	if len(before) > 0 {
		parts.before = signature.Encode(before, nil) + " "
	}
	parts.matching = signature.Encode(matching, nil)
	if len(after) > 0 {
		parts.after = " " + signature.Encode(after, nil)
	}
	return parts
}

func outputReportHuman(out io.Writer, s store.Store, findings []*types.Finding, rules []*types.Rule, st *styles) error {
	if len(findings) == 0 {
		fmt.Fprintln(out, "No findings.")
		return nil
	}

	ruleMap := make(map[string]*types.Rule, len(rules))
	for _, r := range rules {
		ruleMap[r.ID] = r
	}

	total := len(findings)
	for i, f := range findings {
		fmt.Fprintf(out, "%s (%s %s)\n",
			st.findingHeading.Sprintf("Finding %d/%d", i+1, total),
			st.heading.Sprint("id"),
			st.id.Sprint(f.ID))

		ruleName := f.RuleID
		if r, ok := ruleMap[f.RuleID]; ok {
			ruleName = fmt.Sprintf("%s (%s)", r.Name, r.ID)
		}
		fmt.Fprintf(out, "%s %s\n", st.heading.Sprint("Rule:"), st.ruleName.Sprint(ruleName))
		fmt.Fprintf(out, "%s %s\n", st.heading.Sprint("Matching:"), st.match.Sprint(signature.Encode(truncate(f.Matching, 64), nil)))

		shown := f.Matches
		if reportMaxMatches > 0 && len(shown) > reportMaxMatches {
			fmt.Fprintf(out, "Showing %d/%d matches:\n", reportMaxMatches, len(shown))
			shown = shown[:reportMaxMatches]
		}

		for k, match := range shown {
			fmt.Fprintf(out, "\n    %s (%s %s)\n",
				st.heading.Sprintf("Match %d/%d", k+1, len(f.Matches)),
				st.heading.Sprint("id"),
				st.id.Sprint(match.StructuralID))

			provs, err := s.GetProvenance(match.BlobID)
			if err != nil {
				return fmt.Errorf("retrieving provenance: %w", err)
			}
			for _, prov := range provs {
				writeProvenance(out, st, prov)
			}

			fmt.Fprintf(out, "    %s %s\n", st.heading.Sprint("Blob:"), st.metadata.Sprint(match.BlobID.Hex()))
			span := match.Location.Offset
			fmt.Fprintf(out, "    %s 0x%08x-0x%08x (%d bytes)\n", st.heading.Sprint("Offset:"), span.Start, span.End, span.Len())

			parts := formatSnippetWithParts(match.Snippet.Before, match.Snippet.Matching, match.Snippet.After, 48)
			fmt.Fprintf(out, "\n        %s%s%s%s%s\n",
				parts.prefix,
				parts.before,
				st.match.Sprint(parts.matching),
				parts.after,
				parts.suffix)
		}

		fmt.Fprintf(out, "\n\n")
	}

	return nil
}

func writeProvenance(out io.Writer, st *styles, prov types.Provenance) {
	switch p := prov.(type) {
	case types.GitProvenance:
		fmt.Fprintf(out, "    %s %s %s\n", st.heading.Sprint("Git:"), st.metadata.Sprint(p.RepoPath), st.metadata.Sprint(p.BlobPath))
		if p.Commit != nil {
			fmt.Fprintf(out, "    %s %s (%s)\n", st.heading.Sprint("Commit:"), st.metadata.Sprint(p.Commit.CommitID), p.Commit.AuthorName)
		}
	case types.ArchiveProvenance:
		fmt.Fprintf(out, "    %s %s %s %s\n", st.heading.Sprint("Archive:"), st.metadata.Sprint(p.ArchivePath), st.heading.Sprint("Member:"), st.metadata.Sprint(p.MemberPath))
	default:
		fmt.Fprintf(out, "    %s %s\n", st.heading.Sprint("File:"), st.metadata.Sprint(prov.Path()))
	}
}
