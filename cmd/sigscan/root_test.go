package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// newConfigTestCmd builds a parsed command named scan with a few flags.
func newConfigTestCmd(t *testing.T, args ...string) (*cobra.Command, *string, *int64) {
	t.Helper()
	var format string
	var maxSize int64
	cmd := &cobra.Command{Use: "scan"}
	cmd.Flags().StringVar(&format, "format", "human", "")
	cmd.Flags().Int64Var(&maxSize, "max-file-size", 100, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, &format, &maxSize
}

func TestApplyConfig_Environment(t *testing.T) {
	t.Setenv("SIGSCAN_MAX_FILE_SIZE", "42")
	t.Setenv("SIGSCAN_SCAN_FORMAT", "json")

	cmd, format, maxSize := newConfigTestCmd(t)
	v, err := newConfig("")
	require.NoError(t, err)
	require.NoError(t, applyConfig(cmd, v))

	assert.Equal(t, "json", *format)
	assert.Equal(t, int64(42), *maxSize)
}

func TestApplyConfig_CommandLineWins(t *testing.T) {
	t.Setenv("SIGSCAN_FORMAT", "json")

	cmd, format, _ := newConfigTestCmd(t, "--format", "sarif")
	v, err := newConfig("")
	require.NoError(t, err)
	require.NoError(t, applyConfig(cmd, v))

	assert.Equal(t, "sarif", *format)
}

func TestApplyConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: json\nscan:\n  max-file-size: 7\n"), 0o644))

	cmd, format, maxSize := newConfigTestCmd(t)
	v, err := newConfig(path)
	require.NoError(t, err)
	require.NoError(t, applyConfig(cmd, v))

	assert.Equal(t, "json", *format)
	assert.Equal(t, int64(7), *maxSize)
}

func TestApplyConfig_InvalidValue(t *testing.T) {
	t.Setenv("SIGSCAN_MAX_FILE_SIZE", "lots")

	cmd, _, _ := newConfigTestCmd(t)
	v, err := newConfig("")
	require.NoError(t, err)
	assert.ErrorContains(t, applyConfig(cmd, v), "max-file-size")
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := newConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		quiet   bool
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"default", false, false, zapcore.InfoLevel, zapcore.DebugLevel},
		{"verbose", true, false, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"quiet", false, true, zapcore.ErrorLevel, zapcore.WarnLevel},
		{"quiet wins", true, true, zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := newLogger(tt.verbose, tt.quiet)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.muted))
		})
	}
}

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"scan", "find", "rules", "report", "merge", "serve", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
