package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is prepended to flag names when read from the environment,
// e.g. SIGSCAN_MAX_FILE_SIZE or SIGSCAN_SCAN_FORMAT.
const envPrefix = "SIGSCAN"

var (
	verbose    bool
	quiet      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "sigscan",
	Short: "sigscan - binary byte signature scanner",
	Long: `sigscan finds byte signatures such as "7F 45 4C 46 ?? ?? 01" in files,
archives, and git repositories.

Signatures are written as space-separated hex bytes with ?? marking a
wildcard byte. Rules group a signature with an ID, a name, and examples.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file providing flag defaults")

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	v, err := newConfig(configFile)
	if err != nil {
		return err
	}
	if err := applyConfig(cmd, v); err != nil {
		return err
	}

	l, err := newLogger(verbose, quiet)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	logger = l
	return nil
}

// newConfig returns a viper instance reading SIGSCAN_* environment
// variables and, when path is set, a config file.
func newConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

// applyConfig fills every flag the user did not set on the command line
// from v. A key scoped to the command ("scan.format") wins over a bare one
// ("format").
func applyConfig(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" {
			return
		}

		key := cmd.Name() + "." + f.Name
		if !v.IsSet(key) {
			key = f.Name
			if !v.IsSet(key) {
				return
			}
		}

		if err := cmd.Flags().Set(f.Name, v.GetString(key)); err != nil {
			errs = append(errs, fmt.Errorf("applying %s from config: %w", key, err))
		}
	})
	return errors.Join(errs...)
}

// commandContext returns the command's context, or Background when the
// command was invoked without Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
