package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/classify"
	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/golden"
	"github.com/ethereum-optimism/infra/op-subtest/logging"
	"github.com/ethereum-optimism/infra/op-subtest/metrics"
	"github.com/ethereum-optimism/infra/op-subtest/options"
	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"
)

// Config holds what is needed to create a TestDriver
type Config struct {
	Run    RunContext
	Runner executor.BoundedRunner
	Events *logging.EventLog
	Log    log.Logger
}

// TestDriver runs every test of one directory
type TestDriver struct {
	rc         RunContext
	runner     executor.BoundedRunner
	events     *logging.EventLog
	resolver   *options.Resolver
	classifier *classify.Classifier
	hooks      *classify.HookRunner
	log        log.Logger
	tracer     trace.Tracer
}

// NewTestDriver binds the collaborators of a directory run
func NewTestDriver(cfg Config) (*TestDriver, error) {
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	if cfg.Runner == nil {
		return nil, errors.New("bounded runner is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("event log is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	rc := cfg.Run
	logger := cfg.Log.New("run_id", rc.RunID)

	// helper processes get the run's kill grace before the forceful signal
	grace := rc.Defaults.KillTimeout
	predicates := &options.PredicateRunner{
		Runner:    cfg.Runner,
		Evaluator: rc.PredicateEvaluator,
		Limit:     executor.Limit{Deadline: options.DefaultPredicateTimeout, Grace: grace},
	}
	diffLimit := executor.Limit{Deadline: classify.DefaultDiffTimeout, Grace: grace}
	var badDiff *classify.Differ
	if rc.BadDiffTool != "" {
		badDiff = &classify.Differ{Tool: rc.BadDiffTool, Dir: rc.Dir, Runner: cfg.Runner, Limit: diffLimit}
	}

	return &TestDriver{
		rc:       rc,
		runner:   cfg.Runner,
		events:   cfg.Events,
		resolver: options.NewResolver(rc.Dir, rc.Mode, rc.Defaults, predicates, logger),
		classifier: &classify.Classifier{
			Dir:        rc.Dir,
			DisplayDir: rc.displayDir(),
			Env:        rc.Environment,
			Golden:     golden.NewResolver(rc.Dir),
			Diff:       &classify.Differ{Tool: rc.DiffTool, Dir: rc.Dir, Runner: cfg.Runner, Limit: diffLimit},
			BadDiff:    badDiff,
			Events:     cfg.Events,
			Log:        logger,
		},
		hooks: &classify.HookRunner{
			Dir:    rc.Dir,
			Runner: cfg.Runner,
			Limit:  executor.Limit{Deadline: classify.DefaultHookTimeout, Grace: grace},
			Events: cfg.Events,
		},
		log:    logger,
		tracer: otel.Tracer("subtest driver"),
	}, nil
}

// Run executes every discovered test. Per-variant failures become records; an error is
// returned only for configuration problems or cancellation.
func (d *TestDriver) Run(ctx context.Context) (*types.DirectoryResult, error) {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("directory %s", d.rc.displayDir()))
	defer span.End()

	start := time.Now()
	result := &types.DirectoryResult{
		RunID: d.rc.RunID,
		Dir:   d.rc.displayDir(),
		Stats: types.ResultStats{StartTime: start},
	}
	defer func() {
		result.Duration = time.Since(start)
		result.Stats.EndTime = time.Now()
		d.events.Event("Finished subtest %q - %.3f seconds", d.finishedName(), result.Duration.Seconds())
	}()

	d.events.Event("Starting subtest - %s", start.Format(time.UnixDate))
	d.log.Info("Running directory", "dir", d.rc.Dir, "mode", d.rc.Mode)

	if err := d.checkTools(); err != nil {
		return result, err
	}

	dc, err := d.resolver.LoadDirectory()
	if err != nil {
		return result, err
	}
	tests, err := options.Discover(d.rc.Dir, d.rc.extensions(), d.rc.OnlyTest)
	if err != nil {
		return result, err
	}
	d.log.Debug("Discovered tests", "count", len(tests))

	for _, tc := range tests {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := d.runTest(ctx, dc, tc, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (d *TestDriver) finishedName() string {
	if d.rc.OnlyTest == "" {
		return d.rc.displayDir()
	}
	return d.testPath(strings.TrimSuffix(d.rc.OnlyTest, filepath.Ext(d.rc.OnlyTest)))
}

// checkTools rejects a run whose compiler, system hooks or perf directory are unusable
func (d *TestDriver) checkTools() error {
	if _, err := exec.LookPath(d.rc.Compiler); err != nil {
		return types.NewConfigurationError(d.rc.Compiler, fmt.Errorf("compiler is not executable: %w", err))
	}
	hooks := d.rc.Defaults.SystemHooks
	for _, list := range [][]string{hooks.Precomp, hooks.Prediff, hooks.Preexec} {
		for _, hook := range list {
			if err := unix.Access(hook, unix.R_OK|unix.X_OK); err != nil {
				return types.NewConfigurationError(hook, fmt.Errorf("system hook is not executable: %w", err))
			}
		}
	}
	if d.rc.Mode.IsPerformance() {
		if err := os.MkdirAll(d.rc.PerfDir, 0o755); err != nil {
			return types.NewConfigurationError(d.rc.PerfDir, fmt.Errorf("cannot create performance directory: %w", err))
		}
		if err := unix.Access(d.rc.PerfDir, unix.R_OK|unix.X_OK); err != nil {
			return types.NewConfigurationError(d.rc.PerfDir, fmt.Errorf("performance directory is not accessible: %w", err))
		}
	}
	return nil
}

func (d *TestDriver) testPath(name string) string {
	return d.rc.displayDir() + "/" + name
}

// record publishes an outcome to the result, the record sinks and metrics
func (d *TestDriver) record(result *types.DirectoryResult, rec *types.OutcomeRecord) {
	result.Add(*rec)
	if err := d.events.Record(rec); err != nil {
		d.log.Warn("Failed to store outcome record", "test", rec.Test, "err", err)
	}
	metrics.RecordOutcome(d.rc.displayDir(), rec)
	d.log.Debug("Recorded outcome", "test", rec.DisplayName(), "phase", rec.Phase, "outcome", rec.Outcome)
}

// runTest resolves and runs one test
func (d *TestDriver) runTest(ctx context.Context, dc *options.DirConfig, tc types.TestCase, result *types.DirectoryResult) error {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Name))
	defer span.End()

	start := time.Now()
	d.events.Event("test: %s", d.testPath(tc.Source))

	cfg, excl, err := d.resolver.ResolveTest(ctx, dc, tc)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", tc.Source, err)
	}
	if excl != nil {
		if excl.Err != nil {
			d.events.Event("Error: %s %s: %v", excl.Reason, d.testPath(tc.Name), excl.Err)
		} else {
			d.events.Event("%s %s", excl.Reason, d.testPath(tc.Name))
		}
		span.SetAttributes(attribute.String("skipped", excl.Reason))
		d.record(result, &types.OutcomeRecord{
			Test:    tc.Name,
			Phase:   types.PhaseSetup,
			Outcome: types.OutcomeSkipped,
			Detail:  excl.Reason,
		})
		return nil
	}

	set := expand(cfg)
	span.SetAttributes(
		attribute.Int("compile_variants", len(set.Compile)),
		attribute.Int("exec_variants", len(set.Exec)),
	)
	for _, cv := range set.Compile {
		if err := d.runCompileVariant(ctx, cfg, set, cv, result); err != nil {
			return err
		}
	}

	d.events.Event("Elapsed time to compile and execute all versions of %q - %.3f seconds",
		d.testPath(tc.Name), time.Since(start).Seconds())
	return nil
}
