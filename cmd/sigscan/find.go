package main

import (
	"fmt"
	"os"

	"github.com/praetorian-inc/sigscan/pkg/signature"
	"github.com/spf13/cobra"
)

var (
	findLimit  int
	findFormat string
)

var findCmd = &cobra.Command{
	Use:   "find <signature> <file>",
	Short: "Find every occurrence of one signature in a file",
	Long: `Scan a single file for one signature given on the command line and
print each offset with the bytes found there. Overlapping occurrences are
all reported.

Example:
  sigscan find "11 ?? 33" firmware.bin`,
	Args: cobra.ExactArgs(2),
	RunE: runFind,
}

func init() {
	findCmd.Flags().IntVar(&findLimit, "limit", 0, "Stop after this many hits (0 = all)")
	findCmd.Flags().StringVar(&findFormat, "format", "text", "Output format: text, json")
}

// findHit is the json form of one occurrence.
type findHit struct {
	Offset int    `json:"offset"`
	Bytes  string `json:"bytes"`
}

func runFind(cmd *cobra.Command, args []string) error {
	pattern, err := signature.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}

	content, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	if findFormat != "text" && findFormat != "json" {
		return fmt.Errorf("unknown output format: %s", findFormat)
	}

	out := cmd.OutOrStdout()
	hits := []findHit{}
	for offset, window := range pattern.Scan(content).All() {
		if findLimit > 0 && len(hits) >= findLimit {
			break
		}
		hit := findHit{Offset: offset, Bytes: signature.Encode(window, nil)}
		hits = append(hits, hit)
		if findFormat == "text" {
			fmt.Fprintf(out, "0x%08x  %s\n", hit.Offset, hit.Bytes)
		}
	}

	if findFormat == "json" {
		return writeJSON(out, hits)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d hits for %s in %s\n", len(hits), pattern, args[1])
	return nil
}
