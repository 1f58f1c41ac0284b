package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is replaced by the root command before any subcommand runs.
// Commands invoked directly (as the tests do) log nowhere.
var logger = zap.NewNop()

// newLogger builds the console logger used by every command. Log output
// always goes to stderr so stdout stays clean for json and sarif.
func newLogger(verbose, quiet bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch {
	case quiet:
		level = zapcore.ErrorLevel
	case verbose:
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !verbose
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return cfg.Build()
}
