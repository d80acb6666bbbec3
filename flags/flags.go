package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "OP_SUBTEST"

var (
	TestDir = &cli.StringFlag{
		Name:     "testdir",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:    "Test directory to run",
	}
	RunFile = &cli.StringFlag{
		Name:    "run-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_FILE"),
		Usage:   "YAML file describing tools and environment (eg. 'subtest.yaml'); flags override it",
	}
	Compiler = &cli.StringFlag{
		Name:    "compiler",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPILER"),
		Usage:   "Compiler used to build every test",
	}
	CompilerPrefix = &cli.StringFlag{
		Name:    "compiler-prefix",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPILER_PREFIX"),
		Usage:   "Command run in front of the compiler (eg. 'valgrind -q'); also raises the default timeout",
	}
	CompOpts = &cli.StringFlag{
		Name:    "compopts",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPOPTS"),
		Usage:   "Options appended to every compile",
	}
	ExecOpts = &cli.StringFlag{
		Name:    "execopts",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXECOPTS"),
		Usage:   "Options appended to every execution",
	}
	LaunchCmd = &cli.StringFlag{
		Name:    "launch-cmd",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LAUNCH_CMD"),
		Usage:   "Command that launches every test program",
	}
	TimeoutStrategy = &cli.StringFlag{
		Name:    "timeout-strategy",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT_STRATEGY"),
		Usage:   "How deadlines are enforced: supervisor, launcher or cooperative (default supervisor when --supervisor is set, else cooperative)",
	}
	Supervisor = &cli.StringFlag{
		Name:    "supervisor",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUPERVISOR"),
		Usage:   "Bounded execution supervisor invoked as '<supervisor> <seconds> <command>'",
	}
	LauncherFormat = &cli.StringFlag{
		Name:    "launcher-format",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LAUNCHER_FORMAT"),
		Usage:   "Walltime argument format for the launcher strategy: pbs or slurm",
	}
	DiffTool = &cli.StringFlag{
		Name:    "diff-tool",
		Value:   "diff",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DIFF_TOOL"),
		Usage:   "Output comparison tool; exit status 0 means identical",
	}
	BadDiffTool = &cli.StringFlag{
		Name:    "bad-diff-tool",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BAD_DIFF_TOOL"),
		Usage:   "Line-number insensitive comparison tool for .bad files (defaults to --diff-tool)",
	}
	PredicateEvaluator = &cli.StringFlag{
		Name:    "predicate-evaluator",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PREDICATE_EVALUATOR"),
		Usage:   "Program evaluating non-executable .skipif and .suppressif files",
	}
	Extensions = &cli.StringSliceFlag{
		Name:    "extensions",
		Value:   cli.NewStringSlice(".chpl"),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXTENSIONS"),
		Usage:   "Source file extensions that identify tests",
	}
	OneTest = &cli.StringFlag{
		Name:    "onetest",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ONETEST"),
		Usage:   "Run only this source file of the directory",
	}
	CompOnly = &cli.BoolFlag{
		Name:    "comp-only",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMP_ONLY"),
		Usage:   "Compile tests without executing them",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Default execution deadline (compilation gets twice as much); 0 uses the built-in default",
	}
	KillTimeout = &cli.DurationFlag{
		Name:    "kill-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KILL_TIMEOUT"),
		Usage:   "Grace period between the graceful and the forceful signal",
	}
	NumLocales = &cli.IntFlag{
		Name:    "num-locales",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NUM_LOCALES"),
		Usage:   "Default locale count passed to programs when a communication layer is configured",
	}
	NumTrials = &cli.IntFlag{
		Name:    "num-trials",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NUM_TRIALS"),
		Usage:   "Default number of executions per variant",
	}
	Futures = &cli.IntFlag{
		Name:    "futures",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FUTURES"),
		Usage:   "0 skips futures, 1 runs everything, 2 runs only futures, 3 runs futures and .skipif tests",
	}
	RunNoTests = &cli.BoolFlag{
		Name:    "run-notests",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_NOTESTS"),
		Usage:   "Run tests that carry a .notest file",
	}
	NoStdinRedirect = &cli.BoolFlag{
		Name:    "no-stdin-redirect",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NO_STDIN_REDIRECT"),
		Usage:   "Skip tests that need stdin redirection",
	}
	Precomp = &cli.StringFlag{
		Name:    "precomp",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PRECOMP"),
		Usage:   "System-wide hook run before every compile",
	}
	Prediff = &cli.StringFlag{
		Name:    "prediff",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PREDIFF"),
		Usage:   "System-wide hook run before every comparison",
	}
	Preexec = &cli.StringFlag{
		Name:    "preexec",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PREEXEC"),
		Usage:   "System-wide hook run before every execution",
	}
	Machine = &cli.StringFlag{
		Name:    "machine",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MACHINE"),
		Usage:   "Machine name used in golden file resolution",
	}
	Comm = &cli.StringFlag{
		Name:    "comm",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMM"),
		Usage:   "Communication layer; 'none' or empty disables locale arguments",
	}
	LocaleModel = &cli.StringFlag{
		Name:    "locale-model",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOCALE_MODEL"),
		Usage:   "Locale model used in golden file resolution",
	}
	Platform = &cli.StringFlag{
		Name:    "platform",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PLATFORM"),
		Usage:   "Target platform used in golden file resolution",
	}
	NoLocal = &cli.BoolFlag{
		Name:    "no-local",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NO_LOCAL"),
		Usage:   "Prefer .no-local golden files",
	}
	Perf = &cli.BoolFlag{
		Name:    "perf",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PERF"),
		Usage:   "Run in performance mode",
	}
	PerfLabel = &cli.StringFlag{
		Name:    "perf-label",
		Value:   "perf",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PERF_LABEL"),
		Usage:   "Prefix of performance option files (eg. 'perf' selects .perfexecopts)",
	}
	PerfStatsTool = &cli.StringFlag{
		Name:    "perf-stats-tool",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PERF_STATS_TOOL"),
		Usage:   "Tool extracting performance keys from program output",
	}
	PerfDir = &cli.StringFlag{
		Name:    "perf-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PERF_DIR"),
		Usage:   "Directory receiving performance data",
	}
	PerfDate = &cli.StringFlag{
		Name:    "perf-date",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PERF_DATE"),
		Usage:   "Date recorded with performance data (mm/dd/yy); defaults to today",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory receiving the event log of each run",
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics-textfile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_TEXTFILE"),
		Usage:   "Write run metrics in the node-exporter textfile format to this path",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVE"),
		Usage:   "Expose healthz and metrics endpoints while the run is in progress",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz endpoint",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "0.0.0.0:7300",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_ADDR"),
		Usage:   "Listen address of the metrics endpoint",
	}
)

var requiredFlags = []cli.Flag{
	TestDir,
}

var optionalFlags = []cli.Flag{
	RunFile,
	Compiler,
	CompilerPrefix,
	CompOpts,
	ExecOpts,
	LaunchCmd,
	TimeoutStrategy,
	Supervisor,
	LauncherFormat,
	DiffTool,
	BadDiffTool,
	PredicateEvaluator,
	Extensions,
	OneTest,
	CompOnly,
	Timeout,
	KillTimeout,
	NumLocales,
	NumTrials,
	Futures,
	RunNoTests,
	NoStdinRedirect,
	Precomp,
	Prediff,
	Preexec,
	Machine,
	Comm,
	LocaleModel,
	Platform,
	NoLocal,
	Perf,
	PerfLabel,
	PerfStatsTool,
	PerfDir,
	PerfDate,
	LogDir,
	MetricsTextfile,
	Serve,
	HealthzAddr,
	MetricsAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
