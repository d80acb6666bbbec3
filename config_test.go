package subtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/flags"
	"github.com/ethereum-optimism/infra/op-subtest/options"
)

// parseConfig runs NewConfig against args the way the CLI does
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"op-subtest"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseConfig(t, "--testdir", dir, "--compiler", "chpl")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.TestDir)
	assert.Equal(t, dir, cfg.DisplayDir)
	assert.Equal(t, "chpl", cfg.Compiler)
	assert.Equal(t, "diff", cfg.DiffTool)
	assert.Equal(t, executor.StrategyCooperative, cfg.Strategy)
	assert.Equal(t, []string{".chpl"}, cfg.Extensions)
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.Equal(t, options.DefaultTimeout, cfg.Defaults.Timeout)
	assert.Equal(t, options.DefaultKillTimeout, cfg.Defaults.KillTimeout)
	assert.Equal(t, options.DefaultNumTrials, cfg.Defaults.NumTrials)
	assert.Equal(t, options.FuturesSkip, cfg.Defaults.Futures)
	assert.Equal(t, "none", cfg.Defaults.Comm)
	assert.True(t, cfg.Defaults.StdinRedirect)
	assert.False(t, cfg.Serve)
}

func TestNewConfigFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseConfig(t,
		"--testdir", dir,
		"--compiler", "chpl",
		"--compiler-prefix", "valgrind -q",
		"--compopts", "--fast --no-checks",
		"--execopts", "--quiet",
		"--launch-cmd", "srun -n 1",
		"--supervisor", "/usr/bin/timedexec",
		"--timeout", "30s",
		"--num-trials", "3",
		"--futures", "2",
		"--comm", "gasnet",
		"--no-stdin-redirect",
		"--precomp", "/opt/hooks/precomp",
		"--perf",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"valgrind", "-q"}, cfg.CompilerPrefix)
	assert.Equal(t, []string{"--fast", "--no-checks"}, cfg.CompOpts)
	assert.Equal(t, []string{"--quiet"}, cfg.ExecOpts)
	assert.Equal(t, []string{"srun", "-n", "1"}, cfg.LaunchCmd)
	assert.Equal(t, executor.StrategySupervisor, cfg.Strategy)
	assert.Equal(t, 30*time.Second, cfg.Defaults.Timeout)
	assert.Equal(t, 3, cfg.Defaults.NumTrials)
	assert.Equal(t, options.FuturesOnly, cfg.Defaults.Futures)
	assert.Equal(t, "gasnet", cfg.Defaults.Comm)
	assert.Equal(t, "gasnet", cfg.Environment.Comm)
	assert.False(t, cfg.Defaults.StdinRedirect)
	assert.Equal(t, []string{"/opt/hooks/precomp"}, cfg.Defaults.SystemHooks.Precomp)
	assert.Nil(t, cfg.Defaults.SystemHooks.Prediff)

	rc := cfg.RunContext("run-1")
	assert.Equal(t, "run-1", rc.RunID)
	assert.True(t, rc.Mode.IsPerformance())
	assert.Equal(t, "perf", rc.Mode.Label())
	assert.Equal(t, cfg.LaunchCmd, rc.LaunchCmd)
}

func TestNewConfigHooksAreAbsolute(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	cfg, err := parseConfig(t,
		"--testdir", t.TempDir(),
		"--precomp", "hooks/precomp",
		"--preexec", "./preexec",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(cwd, "hooks", "precomp")}, cfg.Defaults.SystemHooks.Precomp)
	assert.Equal(t, []string{filepath.Join(cwd, "preexec")}, cfg.Defaults.SystemHooks.Preexec)
	assert.Nil(t, cfg.Defaults.SystemHooks.Prediff)
}

func TestNewConfigValgrindRaisesTimeout(t *testing.T) {
	cfg, err := parseConfig(t, "--testdir", t.TempDir(), "--compiler-prefix", "valgrind")
	require.NoError(t, err)
	assert.Equal(t, options.DefaultValgrindTimeout, cfg.Defaults.Timeout)
}

func TestNewConfigRunFile(t *testing.T) {
	runFile := filepath.Join(t.TempDir(), "subtest.yaml")
	require.NoError(t, os.WriteFile(runFile, []byte(`
compiler: /opt/chapel/bin/chpl
diff_tool: /opt/chapel/util/diff
extensions: [.chpl, .test.c]
execopts: --memLeaks
environment:
  machine: node7
  comm: none
  locale_model: flat
hooks:
  prediff: /opt/hooks/prediff
defaults:
  timeout: 45s
  num_locales: 2
  futures: 1
`), 0o644))

	t.Run("file values", func(t *testing.T) {
		cfg, err := parseConfig(t, "--testdir", t.TempDir(), "--run-file", runFile)
		require.NoError(t, err)
		assert.Equal(t, "/opt/chapel/bin/chpl", cfg.Compiler)
		assert.Equal(t, "/opt/chapel/util/diff", cfg.DiffTool)
		assert.Equal(t, []string{".chpl", ".test.c"}, cfg.Extensions)
		assert.Equal(t, []string{"--memLeaks"}, cfg.ExecOpts)
		assert.Equal(t, "node7", cfg.Environment.Machine)
		assert.Equal(t, "flat", cfg.Environment.LocaleModel)
		assert.Equal(t, 45*time.Second, cfg.Defaults.Timeout)
		assert.Equal(t, 2, cfg.Defaults.NumLocales)
		assert.Equal(t, options.FuturesAll, cfg.Defaults.Futures)
		assert.Equal(t, []string{"/opt/hooks/prediff"}, cfg.Defaults.SystemHooks.Prediff)
	})

	t.Run("flags override", func(t *testing.T) {
		cfg, err := parseConfig(t, "--testdir", t.TempDir(), "--run-file", runFile,
			"--compiler", "chpl", "--machine", "laptop", "--timeout", "5s", "--futures", "0")
		require.NoError(t, err)
		assert.Equal(t, "chpl", cfg.Compiler)
		assert.Equal(t, "laptop", cfg.Environment.Machine)
		assert.Equal(t, "flat", cfg.Environment.LocaleModel)
		assert.Equal(t, 5*time.Second, cfg.Defaults.Timeout)
		assert.Equal(t, options.FuturesSkip, cfg.Defaults.Futures)
	})
}

func TestNewConfigErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		contains string
	}{
		{"invalid futures", []string{"--futures", "4"}, "invalid futures mode"},
		{"invalid strategy", []string{"--timeout-strategy", "magic"}, "invalid timeout strategy"},
		{"unbalanced quotes", []string{"--execopts", `"--quiet`}, "invalid execopts"},
		{"missing run file", []string{"--run-file", "/nonexistent/subtest.yaml"}, "reading run file"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig(t, append([]string{"--testdir", t.TempDir()}, tc.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}
