package options

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newResolver(dir string, mode Mode, defaults Defaults) *Resolver {
	predicates := &PredicateRunner{
		Runner: executor.NewCooperative(discard()),
		Limit:  executor.Limit{Deadline: 10 * time.Second, Grace: time.Second},
	}
	return NewResolver(dir, mode, defaults, predicates, discard())
}

func isConfigurationError(err error) bool {
	var cfgErr *types.ConfigurationError
	return errors.As(err, &cfgErr)
}

func TestLoadDirectory(t *testing.T) {
	t.Run("defaults without files", func(t *testing.T) {
		dir := t.TempDir()
		dc, err := newResolver(dir, Normal, NewDefaults(false)).LoadDirectory()
		require.NoError(t, err)
		assert.Equal(t, DefaultTimeout, dc.Timeout)
		assert.Equal(t, DefaultKillTimeout, dc.KillTimeout)
		assert.Equal(t, 1, dc.NumTrials)
		assert.Empty(t, dc.CompOpts)
		assert.False(t, dc.NoExec)
	})

	t.Run("directory files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "TIMEOUT", "120\n")
		writeFile(t, dir, "KILLTIMEOUT", "3\n")
		writeFile(t, dir, "NUMLOCALES", "4\n")
		writeFile(t, dir, "COMPOPTS", "-O\n# comment\n-g\n")
		writeFile(t, dir, "EXECOPTS", "--quiet --msg='hello there'\n--ignored\n")
		writeFile(t, dir, "EXECENV", "A=1\nB = two\n")
		writeFile(t, dir, "LASTCOMPOPTS", "-lm\n")
		writeFile(t, dir, "CATFILES", "extra.txt\n")
		writeFile(t, dir, "NOEXEC", "")
		writeScript(t, dir, "PREDIFF", "exit 0")
		writeFile(t, dir, "PREEXEC", "not executable")

		defaults := NewDefaults(false)
		defaults.SystemHooks = Hooks{Prediff: []string{"/opt/system-prediff"}}
		dc, err := newResolver(dir, Normal, defaults).LoadDirectory()
		require.NoError(t, err)

		assert.Equal(t, 120*time.Second, dc.Timeout)
		assert.Equal(t, 3*time.Second, dc.KillTimeout)
		assert.Equal(t, 4, dc.NumLocales)
		assert.Equal(t, []string{"-O", "-g"}, dc.CompOpts)
		assert.Equal(t, []string{"--quiet", "--msg=hello there"}, dc.ExecOpts)
		assert.Equal(t, map[string]string{"A": "1", "B": "two"}, dc.Env)
		assert.Equal(t, []string{"-lm"}, dc.LastCompOpts)
		assert.Equal(t, []string{"extra.txt"}, dc.CatFiles)
		assert.True(t, dc.NoExec)
		assert.Equal(t, []string{"/opt/system-prediff", filepath.Join(dir, "PREDIFF")}, dc.Hooks.Prediff)
		assert.Empty(t, dc.Hooks.Preexec)
	})

	t.Run("performance files take precedence", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "COMPOPTS", "-normal\n")
		writeFile(t, dir, "PERFCOMPOPTS", "-perf\n")
		writeFile(t, dir, "PERFNUMTRIALS", "5\n")
		writeFile(t, dir, "EXECOPTS", "--normal\n")

		dc, err := newResolver(dir, Performance(""), NewDefaults(false)).LoadDirectory()
		require.NoError(t, err)
		assert.Equal(t, []string{"-perf"}, dc.CompOpts)
		assert.Equal(t, []string{"--normal"}, dc.ExecOpts)
		assert.Equal(t, 5, dc.NumTrials)

		dc, err = newResolver(dir, Normal, NewDefaults(false)).LoadDirectory()
		require.NoError(t, err)
		assert.Equal(t, []string{"-normal"}, dc.CompOpts)
		assert.Equal(t, 1, dc.NumTrials)
	})

	t.Run("malformed timeout is fatal", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "TIMEOUT", "soon\n")
		_, err := newResolver(dir, Normal, NewDefaults(false)).LoadDirectory()
		require.Error(t, err)
		assert.True(t, isConfigurationError(err))
	})

	t.Run("malformed kill timeout is fatal", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "KILLTIMEOUT", "1.5\n")
		_, err := newResolver(dir, Normal, NewDefaults(false)).LoadDirectory()
		assert.True(t, isConfigurationError(err))
	})

	t.Run("malformed locale count keeps the default", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "NUMLOCALES", "many\n")
		defaults := NewDefaults(false)
		defaults.NumLocales = 2
		dc, err := newResolver(dir, Normal, defaults).LoadDirectory()
		require.NoError(t, err)
		assert.Equal(t, 2, dc.NumLocales)
	})
}

func resolve(t *testing.T, r *Resolver, name string) (*TestConfig, *Exclusion, error) {
	t.Helper()
	dc, err := r.LoadDirectory()
	require.NoError(t, err)
	return r.ResolveTest(context.Background(), dc, types.TestCase{Name: name, Source: name + ".chpl"})
}

func TestResolveTest(t *testing.T) {
	t.Run("merges test files over directory files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "EXECENV", "A=dir\nB=dir\n")
		writeFile(t, dir, "hello.execenv", "B=test\nC=test\n")
		writeFile(t, dir, "LASTEXECOPTS", "--dir\n")
		writeFile(t, dir, "hello.lastexecopts", "--test\n")
		writeFile(t, dir, "hello.compopts", "--a #a.good\n--b\n")
		writeFile(t, dir, "hello.execopts", "-x\n# skipped\n-y\n")
		writeFile(t, dir, "hello.timeout", "30\n")
		writeFile(t, dir, "hello.numlocales", "3\n")
		writeFile(t, dir, "hello.stdin", "input\n")
		writeScript(t, dir, "hello.preexec", "exit 0")

		defaults := NewDefaults(false)
		defaults.Comm = "gasnet"
		cfg, excl, err := resolve(t, newResolver(dir, Normal, defaults), "hello")
		require.NoError(t, err)
		require.Nil(t, excl)

		assert.Equal(t, map[string]string{"A": "dir", "B": "test", "C": "test"}, cfg.Env)
		assert.Equal(t, []string{"--dir", "--test"}, cfg.LastExecOpts)
		assert.Equal(t, []string{"--a #a.good", "--b"}, cfg.CompOpts)
		assert.Equal(t, []string{"-x", "-y"}, cfg.ExecOpts)
		assert.Equal(t, types.NewTimeoutSpec(30*time.Second, DefaultKillTimeout), cfg.Timeouts)
		assert.Equal(t, 60*time.Second, cfg.Timeouts.Compile)
		assert.Equal(t, []string{"-nl", "3"}, cfg.LocaleArgs(defaults.Comm))
		assert.Nil(t, cfg.LocaleArgs("none"))
		assert.Equal(t, filepath.Join(dir, "hello.stdin"), cfg.Stdin)
		assert.Equal(t, []string{filepath.Join(dir, "hello.preexec")}, cfg.Hooks.Preexec)
	})

	t.Run("directory env is not mutated by tests", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "EXECENV", "A=dir\n")
		writeFile(t, dir, "one.execenv", "A=one\n")
		r := newResolver(dir, Normal, NewDefaults(false))
		dc, err := r.LoadDirectory()
		require.NoError(t, err)

		one, _, err := r.ResolveTest(context.Background(), dc, types.TestCase{Name: "one"})
		require.NoError(t, err)
		two, _, err := r.ResolveTest(context.Background(), dc, types.TestCase{Name: "two"})
		require.NoError(t, err)
		assert.Equal(t, "one", one.Env["A"])
		assert.Equal(t, "dir", two.Env["A"])
		assert.Equal(t, "dir", dc.Env["A"])
	})

	t.Run("absent per-test files equal empty per-test files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "COMPOPTS", "-O\n")
		writeFile(t, dir, "EXECENV", "A=1\n")
		writeFile(t, dir, "TIMEOUT", "60\n")
		for _, suffix := range []string{".compopts", ".execopts", ".execenv", ".timeout", ".numlocales", ".lastcompopts", ".catfiles"} {
			writeFile(t, dir, "empty"+suffix, "# nothing here\n")
		}
		r := newResolver(dir, Normal, NewDefaults(false))

		absent, excl, err := resolve(t, r, "absent")
		require.NoError(t, err)
		require.Nil(t, excl)
		empty, excl, err := resolve(t, r, "empty")
		require.NoError(t, err)
		require.Nil(t, excl)

		absent.Test = empty.Test
		assert.Equal(t, absent, empty)
	})

	t.Run("malformed test timeout is fatal", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "hello.timeout", "never\n")
		_, _, err := resolve(t, newResolver(dir, Normal, NewDefaults(false)), "hello")
		assert.True(t, isConfigurationError(err))
	})

	t.Run("malformed test locale count is ignored", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "NUMLOCALES", "2\n")
		writeFile(t, dir, "hello.numlocales", "lots\n")
		cfg, _, err := resolve(t, newResolver(dir, Normal, NewDefaults(false)), "hello")
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.NumLocales)
	})

	t.Run("skipif", func(t *testing.T) {
		tests := []struct {
			name     string
			script   string
			excluded bool
			err      bool
		}{
			{"true skips", "echo True", true, false},
			{"one skips", "echo 1", true, false},
			{"false runs", "echo False", false, false},
			{"zero runs", "echo 0", false, false},
			{"garbage excludes with error", "echo maybe", true, true},
			{"other integer excludes with error", "echo 2", true, true},
			{"negative integer excludes with error", "echo -1", true, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				dir := t.TempDir()
				writeScript(t, dir, "hello.skipif", tt.script)
				cfg, excl, err := resolve(t, newResolver(dir, Normal, NewDefaults(false)), "hello")
				require.NoError(t, err)
				if !tt.excluded {
					require.Nil(t, excl)
					assert.True(t, cfg.HasSkipIf)
					return
				}
				require.NotNil(t, excl)
				assert.Equal(t, tt.err, excl.Err != nil)
			})
		}
	})

	t.Run("non-executable predicate uses the evaluator", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "hello.skipif", "CHPL_COMM==gasnet\n")
		writeScript(t, dir, "evaluator", `grep -q gasnet "$1" && echo True || echo False`)
		r := newResolver(dir, Normal, NewDefaults(false))
		r.predicates.Evaluator = filepath.Join(dir, "evaluator")

		_, excl, err := resolve(t, r, "hello")
		require.NoError(t, err)
		require.NotNil(t, excl)
		assert.NoError(t, excl.Err)
	})

	t.Run("suppressif annotates the test", func(t *testing.T) {
		dir := t.TempDir()
		writeScript(t, dir, "hello.suppressif", "# flaky on this platform\necho True")
		cfg, excl, err := resolve(t, newResolver(dir, Normal, NewDefaults(false)), "hello")
		require.NoError(t, err)
		require.Nil(t, excl)
		assert.Equal(t, "Suppress (flaky on this platform) ", cfg.Future)
		assert.False(t, cfg.IsFuture)
	})

	t.Run("future annotation and futures mode", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "hello.future", "bug: off by one\ndetails\n")

		defaults := NewDefaults(false)
		_, excl, err := resolve(t, newResolver(dir, Normal, defaults), "hello")
		require.NoError(t, err)
		require.NotNil(t, excl)

		defaults.Futures = FuturesAll
		cfg, excl, err := resolve(t, newResolver(dir, Normal, defaults), "hello")
		require.NoError(t, err)
		require.Nil(t, excl)
		assert.True(t, cfg.IsFuture)
		assert.Equal(t, "Future (bug: off by one) ", cfg.Future)
	})

	t.Run("notest and stdin exclusions", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "helper.notest", "")
		writeFile(t, dir, "reader.stdin", "data")

		defaults := NewDefaults(false)
		defaults.StdinRedirect = false
		r := newResolver(dir, Normal, defaults)
		_, excl, err := resolve(t, r, "helper")
		require.NoError(t, err)
		assert.NotNil(t, excl)
		_, excl, err = resolve(t, r, "reader")
		require.NoError(t, err)
		assert.NotNil(t, excl)

		defaults.RunNoTests = true
		_, excl, err = resolve(t, newResolver(dir, Normal, defaults), "helper")
		require.NoError(t, err)
		assert.Nil(t, excl)
	})

	t.Run("performance mode", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "fast.perfkeys", "time:\n")
		writeFile(t, dir, "fast.perfcompopts", "--perf\n")
		writeFile(t, dir, "fast.compopts", "--normal\n")
		writeFile(t, dir, "fast.perfnumtrials", "3\n")
		writeFile(t, dir, "slow.perfexecopts", "--n=1\n")
		writeFile(t, dir, "slow.perfnumtrials", "3\n")
		writeFile(t, dir, "slow.perftimeout", "900\n")

		r := newResolver(dir, Performance(""), NewDefaults(false))

		_, excl, err := resolve(t, r, "plain")
		require.NoError(t, err)
		require.NotNil(t, excl)

		cfg, excl, err := resolve(t, r, "fast")
		require.NoError(t, err)
		require.Nil(t, excl)
		assert.Equal(t, []string{"--perf"}, cfg.CompOpts)
		assert.Equal(t, 3, cfg.NumTrials)
		assert.Equal(t, filepath.Join(dir, "fast.perfkeys"), cfg.PerfKeys)

		cfg, excl, err = resolve(t, r, "slow")
		require.NoError(t, err)
		require.Nil(t, excl)
		assert.Equal(t, 1, cfg.NumTrials)
		assert.Equal(t, 900*time.Second, cfg.Timeouts.Execute)
	})
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.chpl", "alpha.chpl", "alpha.good", "notes.txt", "beta.chpl"} {
		writeFile(t, dir, name, "")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.chpl"), 0o755))

	tests, err := Discover(dir, []string{".chpl"}, "")
	require.NoError(t, err)
	require.Len(t, tests, 3)
	assert.Equal(t, types.TestCase{Name: "alpha", Source: "alpha.chpl"}, tests[0])
	assert.Equal(t, "beta", tests[1].Name)
	assert.Equal(t, "zeta", tests[2].Name)

	tests, err = Discover(dir, []string{".chpl"}, "beta.chpl")
	require.NoError(t, err)
	assert.Equal(t, []types.TestCase{{Name: "beta", Source: "beta.chpl"}}, tests)

	_, err = Discover(dir, []string{".chpl"}, "notes.txt")
	assert.True(t, isConfigurationError(err))
}

func TestLoadRunFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
compiler: /usr/bin/chpl
supervisor: /opt/timedexec
extensions: [".chpl"]
environment:
  machine: node1
  comm: gasnet
  locale_model: flat
  no_local: true
defaults:
  timeout: 120s
  num_trials: 2
  futures: 1
`)
	rf, err := LoadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/chpl", rf.Compiler)
	assert.Equal(t, "gasnet", rf.Environment.Comm)
	assert.True(t, rf.Environment.NoLocal)
	assert.Equal(t, 120*time.Second, rf.Defaults.Timeout)
	assert.Equal(t, 2, rf.Defaults.NumTrials)

	bad := writeFile(t, dir, "bad.yaml", "defaults:\n  futures: 9\n")
	_, err = LoadRunFile(bad)
	assert.Error(t, err)

	_, err = LoadRunFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
