package subtest

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/shlex"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/flags"
	"github.com/ethereum-optimism/infra/op-subtest/golden"
	"github.com/ethereum-optimism/infra/op-subtest/options"
	"github.com/ethereum-optimism/infra/op-subtest/runner"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	TestDir    string // absolute test directory
	DisplayDir string // test directory as given on the command line

	Compiler       string
	CompilerPrefix []string
	CompOpts       []string
	ExecOpts       []string
	LaunchCmd      []string

	Strategy       executor.Strategy
	Supervisor     string
	LauncherFormat string

	DiffTool           string
	BadDiffTool        string
	PredicateEvaluator string

	Extensions []string
	OneTest    string
	CompOnly   bool

	Environment golden.Environment
	Defaults    options.Defaults

	Perf          bool
	PerfLabel     string
	PerfStatsTool string
	PerfDir       string
	PerfDate      string

	LogDir          string // Directory to store event logs
	MetricsTextfile string // Optional node-exporter textfile written after the run

	Serve       bool // Expose healthz and metrics endpoints during the run
	HealthzAddr string
	MetricsAddr string

	Log log.Logger
}

// NewConfig creates a new Config from cli context. Values set on the command line
// override the run file, which overrides the built-in defaults.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}

	rf := &options.RunFile{}
	if path := ctx.String(flags.RunFile.Name); path != "" {
		loaded, err := options.LoadRunFile(path)
		if err != nil {
			return nil, err
		}
		rf = loaded
	}

	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	compilerPrefix := rf.CompilerPrefix
	if ctx.IsSet(flags.CompilerPrefix.Name) {
		if compilerPrefix, err = shlex.Split(ctx.String(flags.CompilerPrefix.Name)); err != nil {
			return nil, fmt.Errorf("invalid compiler prefix: %w", err)
		}
	}
	compOpts, err := splitOpt(ctx, flags.CompOpts, rf.CompOpts)
	if err != nil {
		return nil, fmt.Errorf("invalid compopts: %w", err)
	}
	execOpts, err := splitOpt(ctx, flags.ExecOpts, rf.ExecOpts)
	if err != nil {
		return nil, fmt.Errorf("invalid execopts: %w", err)
	}
	launchCmd, err := splitOpt(ctx, flags.LaunchCmd, rf.LaunchCmd)
	if err != nil {
		return nil, fmt.Errorf("invalid launch command: %w", err)
	}

	supervisor := stringOpt(ctx, flags.Supervisor, rf.Supervisor)
	strategy := executor.Strategy(ctx.String(flags.TimeoutStrategy.Name))
	if strategy == "" {
		strategy = executor.StrategyCooperative
		if supervisor != "" {
			strategy = executor.StrategySupervisor
		}
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("invalid timeout strategy: %s. Must be one of: %v", strategy, executor.Strategies)
	}

	env := rf.Environment
	if ctx.IsSet(flags.Machine.Name) {
		env.Machine = ctx.String(flags.Machine.Name)
	}
	if ctx.IsSet(flags.Comm.Name) {
		env.Comm = ctx.String(flags.Comm.Name)
	}
	if ctx.IsSet(flags.LocaleModel.Name) {
		env.LocaleModel = ctx.String(flags.LocaleModel.Name)
	}
	if ctx.IsSet(flags.Platform.Name) {
		env.Platform = ctx.String(flags.Platform.Name)
	}
	if ctx.IsSet(flags.NoLocal.Name) {
		env.NoLocal = ctx.Bool(flags.NoLocal.Name)
	}

	defaults, err := newDefaults(ctx, rf, len(compilerPrefix) > 0, env)
	if err != nil {
		return nil, err
	}

	extensions := rf.Extensions
	if ctx.IsSet(flags.Extensions.Name) || len(extensions) == 0 {
		extensions = ctx.StringSlice(flags.Extensions.Name)
	}

	return &Config{
		TestDir:            absTestDir,
		DisplayDir:         testDir,
		Compiler:           stringOpt(ctx, flags.Compiler, rf.Compiler),
		CompilerPrefix:     compilerPrefix,
		CompOpts:           compOpts,
		ExecOpts:           execOpts,
		LaunchCmd:          launchCmd,
		Strategy:           strategy,
		Supervisor:         supervisor,
		LauncherFormat:     stringOpt(ctx, flags.LauncherFormat, rf.LauncherFormat),
		DiffTool:           stringOpt(ctx, flags.DiffTool, rf.DiffTool),
		BadDiffTool:        stringOpt(ctx, flags.BadDiffTool, rf.BadDiffTool),
		PredicateEvaluator: stringOpt(ctx, flags.PredicateEvaluator, rf.PredicateEvaluator),
		Extensions:         extensions,
		OneTest:            ctx.String(flags.OneTest.Name),
		CompOnly:           ctx.Bool(flags.CompOnly.Name),
		Environment:        env,
		Defaults:           defaults,
		Perf:               ctx.Bool(flags.Perf.Name),
		PerfLabel:          ctx.String(flags.PerfLabel.Name),
		PerfStatsTool:      stringOpt(ctx, flags.PerfStatsTool, rf.PerfStatsTool),
		PerfDir:            ctx.String(flags.PerfDir.Name),
		PerfDate:           ctx.String(flags.PerfDate.Name),
		LogDir:             logDir,
		MetricsTextfile:    ctx.String(flags.MetricsTextfile.Name),
		Serve:              ctx.Bool(flags.Serve.Name),
		HealthzAddr:        ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:        ctx.String(flags.MetricsAddr.Name),
		Log:                log,
	}, nil
}

// newDefaults layers the run file and the flags over the built-in defaults
func newDefaults(ctx *cli.Context, rf *options.RunFile, valgrind bool, env golden.Environment) (options.Defaults, error) {
	d := options.NewDefaults(valgrind)

	if timeout := durationOpt(ctx, flags.Timeout, rf.Defaults.Timeout); timeout > 0 {
		d.Timeout = timeout
	}
	if kill := durationOpt(ctx, flags.KillTimeout, rf.Defaults.KillTimeout); kill > 0 {
		d.KillTimeout = kill
	}
	d.NumLocales = intOpt(ctx, flags.NumLocales, rf.Defaults.NumLocales)
	if trials := intOpt(ctx, flags.NumTrials, rf.Defaults.NumTrials); trials > 0 {
		d.NumTrials = trials
	}
	futures, err := options.ParseFuturesMode(intOpt(ctx, flags.Futures, rf.Defaults.Futures))
	if err != nil {
		return d, err
	}
	d.Futures = futures
	if env.Comm != "" {
		d.Comm = env.Comm
	}
	d.RunNoTests = ctx.Bool(flags.RunNoTests.Name)
	d.StdinRedirect = !ctx.Bool(flags.NoStdinRedirect.Name)

	if d.SystemHooks.Precomp, err = hookOpt(ctx, flags.Precomp, rf.Hooks.Precomp); err != nil {
		return d, err
	}
	if d.SystemHooks.Prediff, err = hookOpt(ctx, flags.Prediff, rf.Hooks.Prediff); err != nil {
		return d, err
	}
	if d.SystemHooks.Preexec, err = hookOpt(ctx, flags.Preexec, rf.Hooks.Preexec); err != nil {
		return d, err
	}
	return d, nil
}

// ExecutorConfig returns the settings of the run-wide bounded runner
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		Strategy:       c.Strategy,
		SupervisorPath: c.Supervisor,
		LauncherFormat: c.LauncherFormat,
		Log:            c.Log,
	}
}

// RunContext freezes the configuration for one directory run
func (c *Config) RunContext(runID string) runner.RunContext {
	mode := options.Normal
	if c.Perf {
		mode = options.Performance(c.PerfLabel)
	}
	return runner.RunContext{
		RunID:              runID,
		Dir:                c.TestDir,
		DisplayDir:         c.DisplayDir,
		Compiler:           c.Compiler,
		CompilerPrefix:     c.CompilerPrefix,
		EnvCompOpts:        c.CompOpts,
		EnvExecOpts:        c.ExecOpts,
		LaunchCmd:          c.LaunchCmd,
		DiffTool:           c.DiffTool,
		BadDiffTool:        c.BadDiffTool,
		PredicateEvaluator: c.PredicateEvaluator,
		Environment:        c.Environment,
		Mode:               mode,
		Defaults:           c.Defaults,
		Extensions:         c.Extensions,
		OnlyTest:           c.OneTest,
		CompOnly:           c.CompOnly,
		PerfStatsTool:      c.PerfStatsTool,
		PerfDir:            c.PerfDir,
		PerfDate:           c.PerfDate,
	}
}

func stringOpt(ctx *cli.Context, f *cli.StringFlag, fromFile string) string {
	if ctx.IsSet(f.Name) || fromFile == "" {
		return ctx.String(f.Name)
	}
	return fromFile
}

func splitOpt(ctx *cli.Context, f *cli.StringFlag, fromFile string) ([]string, error) {
	s := stringOpt(ctx, f, fromFile)
	if s == "" {
		return nil, nil
	}
	return shlex.Split(s)
}

// hookOpt resolves a system hook against the working directory, since hooks run
// from inside the test directory
func hookOpt(ctx *cli.Context, f *cli.StringFlag, fromFile string) ([]string, error) {
	s := stringOpt(ctx, f, fromFile)
	if s == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s hook '%s': %w", f.Name, s, err)
	}
	return []string{abs}, nil
}

func intOpt(ctx *cli.Context, f *cli.IntFlag, fromFile int) int {
	if ctx.IsSet(f.Name) {
		return ctx.Int(f.Name)
	}
	return fromFile
}

func durationOpt(ctx *cli.Context, f *cli.DurationFlag, fromFile time.Duration) time.Duration {
	if ctx.IsSet(f.Name) {
		return ctx.Duration(f.Name)
	}
	return fromFile
}
