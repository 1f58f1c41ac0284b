package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/praetorian-inc/sigscan/pkg/rule"
	"github.com/praetorian-inc/sigscan/pkg/scanner"
	"github.com/praetorian-inc/sigscan/pkg/types"
	"github.com/spf13/cobra"
)

var (
	rulesPath    string
	rulesRuleset string
	outputFormat string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage detection rules",
	Long:  "Commands for listing and checking signature rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available rules",
	Long:  "Display all available detection rules with their IDs, names, and signatures",
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check rules against their examples",
	Long: `Decode every rule signature and verify that each example matches and
no negative example does. Builtin rulesets are checked for unknown rule IDs.`,
	RunE: runRulesCheck,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesCheckCmd)

	rulesCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Path to custom rules file or directory")
	rulesListCmd.Flags().StringVar(&rulesRuleset, "ruleset", "", "Only list rules from this builtin ruleset")
	rulesListCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	rules, err := loadRulesUnchecked(rulesPath)
	if err != nil {
		return err
	}

	if rulesRuleset != "" {
		rulesets, err := rule.NewLoader().LoadBuiltinRulesets()
		if err != nil {
			return fmt.Errorf("loading rulesets: %w", err)
		}
		rules, err = rule.SelectRuleset(rules, rulesets, rulesRuleset)
		if err != nil {
			return err
		}
	}

	// Output based on format
	switch outputFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), rules)
	case "table":
		return outputRulesTable(cmd, rules)
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	rules, err := loadRulesUnchecked(rulesPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	known := make(map[string]bool, len(rules))
	for _, r := range rules {
		err := rule.ValidateRule(r)
		if err == nil && known[r.ID] {
			err = fmt.Errorf("duplicate rule ID: %s", r.ID)
		}
		known[r.ID] = true

		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %v\n", r.ID, err)
			continue
		}
		fmt.Fprintf(out, "ok    %s (%d examples, %d negative)\n", r.ID, len(r.Examples), len(r.NegativeExamples))
	}

	if rulesPath == "" {
		rulesets, err := rule.NewLoader().LoadBuiltinRulesets()
		if err != nil {
			return fmt.Errorf("loading rulesets: %w", err)
		}
		for _, rs := range rulesets {
			if err := rule.ValidateRuleset(rs, known); err != nil {
				failed++
				fmt.Fprintf(out, "FAIL  ruleset %s: %v\n", rs.ID, err)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	fmt.Fprintf(out, "%d rules ok\n", len(rules))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// loadRulesUnchecked loads rules without validating them so that check can
// report every problem instead of the first.
func loadRulesUnchecked(path string) ([]*types.Rule, error) {
	if path == "" {
		rules, err := scanner.GetBuiltinRules()
		if err != nil {
			return nil, fmt.Errorf("loading builtin rules: %w", err)
		}
		return rules, nil
	}

	rules, err := rule.NewLoader().LoadRulesPath(path)
	if err != nil {
		return nil, fmt.Errorf("loading rules from %s: %w", path, err)
	}
	return rules, nil
}

func outputRulesTable(cmd *cobra.Command, rules []*types.Rule) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID\tName\tSignature\tCategories\n")
	fmt.Fprintf(w, "--\t----\t---------\t----------\n")

	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, abbreviate(r.Signature, 36), strings.Join(r.Categories, ","))
	}

	return nil
}

// abbreviate shortens s to at most n characters, marking the cut.
func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
