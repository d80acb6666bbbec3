package options

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/shlex"
)

// Resolver reads option files from one directory
type Resolver struct {
	dir        string
	mode       Mode
	defaults   Defaults
	predicates *PredicateRunner
	log        log.Logger
}

// NewResolver creates a resolver for dir. predicates may be nil when no test uses them.
func NewResolver(dir string, mode Mode, defaults Defaults, predicates *PredicateRunner, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.New()
	}
	return &Resolver{dir: dir, mode: mode, defaults: defaults, predicates: predicates, log: logger}
}

func (r *Resolver) path(name string) string {
	return filepath.Join(r.dir, name)
}

// first returns the first readable candidate
func (r *Resolver) first(candidates []string) (string, bool) {
	for _, c := range candidates {
		if isReadable(r.path(c)) {
			return c, true
		}
	}
	return "", false
}

func (r *Resolver) dirFile(c Category) (string, bool) {
	return r.first(DirCandidates(c, r.mode))
}

func (r *Resolver) testFile(test string, c Category) (string, bool) {
	return r.first(TestCandidates(test, c, r.mode))
}

// integer reads an integer setting. A fatal field turns a malformed value into a
// ConfigurationError; other fields keep the fallback. A file holding only comments
// leaves the fallback in place.
func (r *Resolver) integer(name string, fallback int, fatal bool) (int, error) {
	n, err := ReadInteger(r.path(name))
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, ErrNoValue):
		return fallback, nil
	case fatal:
		return 0, types.NewConfigurationError(filepath.Join(r.dir, name), err)
	default:
		r.log.Warn("Ignoring malformed integer setting", "file", name, "err", err)
		return fallback, nil
	}
}

func (r *Resolver) seconds(name string, fallback time.Duration) (time.Duration, error) {
	n, err := r.integer(name, int(fallback/time.Second), true)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// LoadDirectory reads the directory-wide settings
func (r *Resolver) LoadDirectory() (*DirConfig, error) {
	dc := &DirConfig{
		Dir:         r.dir,
		Mode:        r.mode,
		Env:         map[string]string{},
		Timeout:     r.defaults.Timeout,
		KillTimeout: r.defaults.KillTimeout,
		NumLocales:  r.defaults.NumLocales,
		NumTrials:   r.defaults.NumTrials,
		Hooks:       r.defaults.SystemHooks.with(Hooks{}),
	}

	var err error
	if name, ok := r.dirFile(CategoryTimeout); ok {
		if dc.Timeout, err = r.seconds(name, dc.Timeout); err != nil {
			return nil, err
		}
	}
	if name, ok := r.dirFile(CategoryKillTimeout); ok {
		if dc.KillTimeout, err = r.seconds(name, dc.KillTimeout); err != nil {
			return nil, err
		}
	}
	if name, ok := r.dirFile(CategoryNumLocales); ok {
		if dc.NumLocales, err = r.integer(name, dc.NumLocales, false); err != nil {
			return nil, err
		}
	}
	if r.mode.IsPerformance() {
		if name, ok := r.first([]string{FileName(CategoryNumTrials, r.mode)}); ok {
			if dc.NumTrials, err = r.integer(name, dc.NumTrials, true); err != nil {
				return nil, err
			}
		}
	}

	if name, ok := r.dirFile(CategoryCompOpts); ok {
		if dc.CompOpts, err = ReadFileWithComments(r.path(name), true); err != nil {
			return nil, err
		}
	}
	if name, ok := r.dirFile(CategoryExecOpts); ok {
		lines, err := ReadFileWithComments(r.path(name), true)
		if err != nil {
			return nil, err
		}
		if len(lines) > 0 {
			if dc.ExecOpts, err = shlex.Split(lines[0]); err != nil {
				return nil, types.NewConfigurationError(r.path(name), err)
			}
		}
	}
	if name, ok := r.dirFile(CategoryExecEnv); ok {
		if err := r.readEnv(name, dc.Env); err != nil {
			return nil, err
		}
	}
	if name, ok := r.dirFile(CategoryLastCompOpts); ok {
		if dc.LastCompOpts, err = ReadWords(r.path(name)); err != nil {
			return nil, err
		}
	}
	if name, ok := r.dirFile(CategoryLastExecOpts); ok {
		if dc.LastExecOpts, err = ReadWords(r.path(name)); err != nil {
			return nil, err
		}
	}
	if name, ok := r.dirFile(CategoryCatFiles); ok {
		if dc.CatFiles, err = ReadWords(r.path(name)); err != nil {
			return nil, err
		}
	}
	if _, ok := r.dirFile(CategoryNoExec); ok {
		dc.NoExec = true
	}
	if name, ok := r.dirFile(CategoryCompStdin); ok {
		dc.CompStdin = r.path(name)
	}

	var dirHooks Hooks
	for _, h := range []struct {
		category Category
		target   *[]string
	}{
		{CategoryPrecomp, &dirHooks.Precomp},
		{CategoryPrediff, &dirHooks.Prediff},
		{CategoryPreexec, &dirHooks.Preexec},
	} {
		full := r.path(FileName(h.category, Normal))
		if isExecutable(full) {
			*h.target = append(*h.target, full)
		}
	}
	dc.Hooks = dc.Hooks.with(dirHooks)

	r.log.Debug("Loaded directory settings", "dir", r.dir, "mode", r.mode, "timeout", dc.Timeout,
		"compopts", len(dc.CompOpts), "execopts", dc.ExecOpts)
	return dc, nil
}

// readEnv merges KEY=VALUE lines into env; later entries override earlier ones
func (r *Resolver) readEnv(name string, env map[string]string) error {
	lines, err := ReadFileWithComments(r.path(name), true)
	if err != nil {
		return err
	}
	for _, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			r.log.Warn("Ignoring environment line without '='", "file", name, "line", line)
			continue
		}
		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return nil
}

// ResolveTest merges the per-test files of tc over dc. A non-nil Exclusion means the
// test must not run; a non-nil error is fatal for the directory.
func (r *Resolver) ResolveTest(ctx context.Context, dc *DirConfig, tc types.TestCase) (*TestConfig, *Exclusion, error) {
	name := tc.Name
	cfg := &TestConfig{
		Test:         tc,
		DirCompOpts:  dc.CompOpts,
		DirExecOpts:  dc.ExecOpts,
		LastCompOpts: append([]string{}, dc.LastCompOpts...),
		LastExecOpts: append([]string{}, dc.LastExecOpts...),
		Env:          maps.Clone(dc.Env),
		NumLocales:   dc.NumLocales,
		NumTrials:    dc.NumTrials,
		CatFiles:     append([]string{}, dc.CatFiles...),
		NoExec:       dc.NoExec,
		CompStdin:    dc.CompStdin,
	}
	timeout := dc.Timeout
	kill := dc.KillTimeout

	if r.mode.IsPerformance() {
		keys, hasKeys := r.first([]string{TestFileName(name, CategoryPerfKeys, r.mode)})
		_, hasExec := r.first([]string{TestFileName(name, CategoryExecOpts, r.mode)})
		if !hasKeys && !hasExec {
			return nil, &Exclusion{Reason: "Skipping noperf test"}, nil
		}
		if hasKeys {
			cfg.PerfKeys = r.path(keys)
		}
	}

	if _, ok := r.testFile(name, CategoryNoTest); ok && !r.defaults.RunNoTests {
		return nil, &Exclusion{Reason: "Skipping notest test"}, nil
	}

	if file, ok := r.testFile(name, CategorySkipIf); ok {
		cfg.HasSkipIf = true
		skip, err := r.evaluate(ctx, file)
		if err != nil {
			return nil, &Exclusion{Reason: "Error processing .skipif file", Err: err}, nil
		}
		if skip {
			return nil, &Exclusion{Reason: "Skipping test based on .skipif environment settings"}, nil
		}
	}

	if file, ok := r.testFile(name, CategorySuppressIf); ok {
		suppress, err := r.evaluate(ctx, file)
		if err != nil {
			return nil, &Exclusion{Reason: "Error processing .suppressif file", Err: err}, nil
		}
		if suppress {
			cfg.Future = "Suppress (" + suppressReason(r.path(file)) + ") "
		}
	}

	var err error
	if file, ok := r.testFile(name, CategoryTimeout); ok {
		if timeout, err = r.seconds(file, timeout); err != nil {
			return nil, nil, err
		}
		r.log.Info("Overriding default timeout", "test", name, "timeout", timeout)
	}
	if file, ok := r.testFile(name, CategoryKillTimeout); ok {
		if kill, err = r.seconds(file, kill); err != nil {
			return nil, nil, err
		}
	}
	if r.mode.IsPerformance() {
		if file, ok := r.first([]string{TestFileName(name, CategoryNumTrials, r.mode)}); ok {
			if cfg.NumTrials, err = r.integer(file, cfg.NumTrials, true); err != nil {
				return nil, nil, err
			}
		}
	}
	if file, ok := r.testFile(name, CategoryNumLocales); ok {
		if cfg.NumLocales, err = r.integer(file, cfg.NumLocales, false); err != nil {
			return nil, nil, err
		}
	}

	if file, ok := r.testFile(name, CategoryCatFiles); ok {
		words, err := ReadWords(r.path(file))
		if err != nil {
			return nil, nil, err
		}
		cfg.CatFiles = append(cfg.CatFiles, words...)
	}
	if file, ok := r.testFile(name, CategoryLastCompOpts); ok {
		words, err := ReadWords(r.path(file))
		if err != nil {
			return nil, nil, err
		}
		cfg.LastCompOpts = append(cfg.LastCompOpts, words...)
	}
	if file, ok := r.testFile(name, CategoryLastExecOpts); ok {
		words, err := ReadWords(r.path(file))
		if err != nil {
			return nil, nil, err
		}
		cfg.LastExecOpts = append(cfg.LastExecOpts, words...)
	}

	if file, ok := r.testFile(name, CategoryFuture); ok {
		cfg.IsFuture = true
		reason, err := ReadFirstLine(r.path(file))
		if err != nil {
			return nil, nil, err
		}
		cfg.Future = "Future (" + reason + ") "
	}
	if _, ok := r.testFile(name, CategoryNoExec); ok {
		cfg.NoExec = true
	}

	var testHooks Hooks
	for _, h := range []struct {
		category Category
		target   *[]string
	}{
		{CategoryPrecomp, &testHooks.Precomp},
		{CategoryPrediff, &testHooks.Prediff},
		{CategoryPreexec, &testHooks.Preexec},
	} {
		full := r.path(TestFileName(name, h.category, Normal))
		if isExecutable(full) {
			*h.target = append(*h.target, full)
		}
	}
	cfg.Hooks = dc.Hooks.with(testHooks)

	if file, ok := r.testFile(name, CategoryStdin); ok {
		if !r.defaults.StdinRedirect {
			return nil, &Exclusion{Reason: "Skipping test with .stdin input since stdin redirection is disabled"}, nil
		}
		cfg.Stdin = r.path(file)
	}

	if reason, excluded := r.defaults.Futures.Exclude(cfg.IsFuture, cfg.HasSkipIf); excluded {
		return nil, &Exclusion{Reason: reason}, nil
	}

	if file, ok := r.testFile(name, CategoryCompOpts); ok {
		if cfg.CompOpts, err = ReadFileWithComments(r.path(file), false); err != nil {
			return nil, nil, err
		}
		if len(cfg.CompOpts) == 0 {
			r.log.Warn("Ignoring an empty compopts file", "file", file)
		}
	}
	if file, ok := r.testFile(name, CategoryExecOpts); ok {
		if cfg.ExecOpts, err = ReadFileWithComments(r.path(file), false); err != nil {
			return nil, nil, err
		}
	}
	if file, ok := r.testFile(name, CategoryExecEnv); ok {
		if err := r.readEnv(file, cfg.Env); err != nil {
			return nil, nil, err
		}
	}

	// long-running performance tests only run once
	if timeout > r.defaults.Timeout && cfg.NumTrials != 1 {
		r.log.Info("Lowering number of trials to 1", "test", name, "timeout", timeout)
		cfg.NumTrials = 1
	}
	if cfg.NumTrials < 1 {
		cfg.NumTrials = 1
	}

	cfg.Timeouts = types.NewTimeoutSpec(timeout, kill)
	return cfg, nil, nil
}

func (r *Resolver) evaluate(ctx context.Context, file string) (bool, error) {
	if r.predicates == nil {
		return false, fmt.Errorf("no predicate runner configured for %s", file)
	}
	return r.predicates.Evaluate(ctx, r.dir, file)
}

// suppressReason returns the first '#' comment of a .suppressif file, ignoring a shebang
func suppressReason(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#!") {
			return strings.TrimSpace(strings.ReplaceAll(line, "#", ""))
		}
	}
	return ""
}

// Discover lists the tests in dir: regular files with one of the source extensions,
// sorted by name. A non-empty only restricts discovery to that single file.
func Discover(dir string, extensions []string, only string) ([]types.TestCase, error) {
	if only != "" {
		tc, ok := testCase(only, extensions)
		if !ok {
			return nil, types.NewConfigurationError(only, fmt.Errorf("not a test source, expected one of %v", extensions))
		}
		return []types.TestCase{tc}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read test directory %s: %w", dir, err)
	}
	var tests []types.TestCase
	for _, e := range entries {
		if e.Type()&fs.ModeType != 0 && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if tc, ok := testCase(e.Name(), extensions); ok {
			tests = append(tests, tc)
		}
	}
	// os.ReadDir returns entries sorted by file name
	return tests, nil
}

func testCase(file string, extensions []string) (types.TestCase, bool) {
	for _, ext := range extensions {
		if base, ok := strings.CutSuffix(file, ext); ok && base != "" {
			return types.TestCase{Name: base, Source: file}, true
		}
	}
	return types.TestCase{}, false
}
