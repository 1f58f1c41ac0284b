package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/praetorian-inc/sigscan/pkg/matcher"
	"github.com/praetorian-inc/sigscan/pkg/scanner"
	"github.com/praetorian-inc/sigscan/pkg/serve"
	"github.com/praetorian-inc/sigscan/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveRulesPath    string
	serveRuleset      string
	serveOutputPath   string
	serveContextBytes int
	serveMaxMatches   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a streaming scanner over stdin/stdout",
	Long: `Run sigscan as a long-lived process that reads NDJSON requests from
stdin and writes one NDJSON response per request to stdout.

Rules are compiled once at startup. Requests:
  {"type":"scan","payload":{"content":"<base64>","source":"name"}}
  {"type":"scan_batch","payload":{"items":[{"content":"<base64>","source":"name"}]}}
  {"type":"find","payload":{"signature":"11 ?? 33","content":"<base64>"}}
  {"type":"close"}

The process exits when stdin closes, on close, or on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRulesPath, "rules", "", "Path to custom rules file or directory")
	serveCmd.Flags().StringVar(&serveRuleset, "ruleset", "", "Only use rules from this builtin ruleset")
	serveCmd.Flags().StringVarP(&serveOutputPath, "output", "o", store.MemoryPath, "Database recording served scans")
	serveCmd.Flags().IntVar(&serveContextBytes, "context-bytes", 16, "Bytes of context before/after matches")
	serveCmd.Flags().IntVar(&serveMaxMatches, "max-matches", 0, "Maximum matches per request (0 = unlimited)")
}

func runServe(cmd *cobra.Command, args []string) error {
	rules, err := loadRules(serveRulesPath, serveRuleset, "", "")
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if len(rules) == 0 {
		return fmt.Errorf("no rules selected")
	}

	m, err := matcher.New(matcher.Config{
		Rules:             rules,
		ContextBytes:      serveContextBytes,
		MaxMatchesPerBlob: serveMaxMatches,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating matcher: %w", err)
	}

	s, err := store.New(store.Config{Path: serveOutputPath})
	if err != nil {
		m.Close()
		return fmt.Errorf("creating store: %w", err)
	}

	core, err := scanner.NewCore(scanner.Config{
		Rules:   rules,
		Matcher: m,
		Store:   s,
		Logger:  logger,
	})
	if err != nil {
		m.Close()
		s.Close()
		return fmt.Errorf("creating scanner: %w", err)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger.Info("serving", zap.Int("rules", len(rules)))
	srv := serve.NewServer(core, len(rules), cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
