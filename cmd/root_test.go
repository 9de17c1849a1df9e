package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/assessment-cli/internal/config"
)

// testConfig returns a valid config with millisecond delays.
func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{BaseURL: baseURL, Key: "test-key", TimeoutSecs: 5},
		Fetch: config.FetchConfig{
			MaxAttempts:    8,
			ThrottleBaseMs: 1,
			ThrottleStepMs: 1,
			FlatDelayMs:    1,
			NetworkBaseMs:  1,
			NetworkStepMs:  1,
		},
		Pipeline: config.PipelineConfig{PageSize: 5, CooldownMs: 1, InterPageDelayMs: 1},
		MockAPI:  config.MockAPIConfig{Port: 8089},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"assess", "score", "mockapi"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "assessment-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestAssessCommand_Flags(t *testing.T) {
	flag := assessCmd.Flags().Lookup("dry-run")
	require.NotNil(t, flag, "assess command should have --dry-run flag")
	assert.Equal(t, "false", flag.DefValue)

	flag = assessCmd.Flags().Lookup("base-url")
	require.NotNil(t, flag, "assess command should have --base-url flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestScoreCommand_Flags(t *testing.T) {
	flag := scoreCmd.Flags().Lookup("file")
	require.NotNil(t, flag, "score command should have --file flag")
}

func TestMockAPICommand_Flags(t *testing.T) {
	for _, name := range []string{"fixture", "port"} {
		assert.NotNil(t, mockapiCmd.Flags().Lookup(name), "mockapi should have --%s flag", name)
	}
}

// executeRootIn runs the root command with args from dir and restores the
// command globals afterwards.
func executeRootIn(t *testing.T, dir string, args ...string) error {
	t.Helper()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(origDir) //nolint:errcheck
		rootCmd.SetArgs(nil)
		scoreFile = ""
		loggerReady = false
		cfg = nil
	})

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestRootCommand_BadLogLevelReportedWithoutLogger(t *testing.T) {
	t.Setenv("ASSESS_LOG_LEVEL", "verbose")

	err := executeRootIn(t, t.TempDir(), "score", "--file", "patients.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
	assert.False(t, loggerReady)

	var stderr bytes.Buffer
	reportError(&stderr, err)
	assert.Contains(t, stderr.String(), "Error: ")
	assert.Contains(t, stderr.String(), "init logger")
}

func TestRootCommand_MalformedConfigFileReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [\n"), 0o600))

	err := executeRootIn(t, dir, "score", "--file", "patients.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")

	var stderr bytes.Buffer
	reportError(&stderr, err)
	assert.Contains(t, stderr.String(), "load config")
}

func TestReportError_UsesLoggerOnceInitialized(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	loggerReady = true
	t.Cleanup(func() {
		restore()
		loggerReady = false
	})

	var stderr bytes.Buffer
	reportError(&stderr, errors.New("submit failed"))

	assert.Empty(t, stderr.String())
	require.Equal(t, 1, logs.FilterMessage("command failed").Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "submit failed")
}
