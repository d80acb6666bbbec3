package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/classify"
	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/options"
	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum-optimism/infra/op-subtest/variants"
	"github.com/google/shlex"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sys/unix"
)

// execution carries the per-variant state shared by every trial
type execution struct {
	cfg       *options.TestConfig
	set       variants.Set
	cv        types.CompileVariant
	ev        types.ExecVariant
	execLog   string
	goodFile  string
	variation string
	path      string
	args      []string
	stdin     string
	env       map[string]string
	timeFile  string
	preExec   []byte
}

func (e *execution) record(outcome types.Outcome, trial int) *types.OutcomeRecord {
	return &types.OutcomeRecord{
		Test:         e.cfg.Test.Name,
		Phase:        types.PhaseExecute,
		CompileIndex: e.cv.Index,
		ExecIndex:    e.ev.Index,
		Trial:        trial,
		Outcome:      outcome,
		Future:       e.cfg.Future,
	}
}

// elapsedName renders "dir/test (compopts: c execopts: e)" for timing lines
func (d *TestDriver) elapsedName(e *execution) string {
	var parts []string
	if e.cv.Index != 0 {
		parts = append(parts, fmt.Sprintf("compopts: %d", e.cv.Index))
	}
	if e.ev.Index != 0 {
		parts = append(parts, fmt.Sprintf("execopts: %d", e.ev.Index))
	}
	name := d.testPath(e.cfg.Test.Name)
	if len(parts) > 0 {
		name += " (" + strings.Join(parts, " ") + ")"
	}
	return name
}

// buildExecution assembles
// `[launch prefix] ./name dirExecOpts opts [-nl N] envExecOpts lastExecOpts`
// and resolves stdin for this iteration. A non-empty reason means the variant cannot run.
func (d *TestDriver) buildExecution(e *execution) (reason string, err error) {
	opts, err := shlex.Split(e.ev.Options)
	if err != nil {
		return "", fmt.Errorf("splitting exec options %q: %w", e.ev.Options, err)
	}

	binary := "./" + e.cfg.Test.Name
	e.path = binary
	var args []string
	if len(d.rc.LaunchCmd) > 0 {
		e.timeFile = e.cfg.Test.Name + "_launchcmd_exec_time.txt"
		e.env[LaunchTimeEnv] = e.timeFile
		e.path = d.rc.LaunchCmd[0]
		args = append(args, d.rc.LaunchCmd[1:]...)
		args = append(args, binary)
	}
	args = append(args, e.cfg.DirExecOpts...)
	args = append(args, opts...)
	args = append(args, e.cfg.LocaleArgs(d.rc.Defaults.Comm)...)
	args = append(args, d.rc.EnvExecOpts...)
	args = append(args, e.cfg.LastExecOpts...)

	rest, file, found, err := variants.ExtractRedirect(args)
	if err != nil {
		return "", err
	}
	e.args = rest
	if !found {
		return "", nil
	}
	switch {
	case !d.rc.Defaults.StdinRedirect:
		return fmt.Sprintf(`Skipping test with stdin redirection ("<") in execopts since stdin redirection is disabled %s`,
			d.testPath(e.cfg.Test.Name)), nil
	case e.stdin != "":
		return "", fmt.Errorf("a redirection file already exists: %s", e.stdin)
	case unix.Access(filepath.Join(d.rc.Dir, file), unix.R_OK) != nil:
		return "", fmt.Errorf("redirection file %s does not exist", file)
	}
	e.stdin = filepath.Join(d.rc.Dir, file)
	return "", nil
}

// runExecVariant runs every trial of one exec variant. stop reports that the remaining
// exec variants of this compile variant must not run.
func (d *TestDriver) runExecVariant(ctx context.Context, cfg *options.TestConfig, set variants.Set, cv types.CompileVariant, ev types.ExecVariant, result *types.DirectoryResult) (stop bool, err error) {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("execute %s", cfg.Test.Name))
	defer span.End()
	span.SetAttributes(attribute.Int("compile_index", cv.Index), attribute.Int("exec_index", ev.Index))

	name := cfg.Test.Name
	e := &execution{
		cfg:       cfg,
		set:       set,
		cv:        cv,
		ev:        ev,
		execLog:   set.ExecLogName(name, cv, ev),
		goodFile:  variants.GoodFile(cv, ev),
		variation: set.Variation(cv, &ev),
		stdin:     cfg.Stdin,
		env:       make(map[string]string, len(cfg.Env)+1),
	}
	for k, v := range cfg.Env {
		e.env[k] = v
	}

	d.hooks.Run(ctx, "preexec", cfg.Hooks.Preexec, classify.HookArgs{
		Executable: name,
		LogFile:    e.execLog,
		Compiler:   d.rc.Compiler,
	})
	preExec, err := os.ReadFile(filepath.Join(d.rc.Dir, e.execLog))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("reading execution log: %w", err)
	}
	e.preExec = preExec

	if err := unix.Access(filepath.Join(d.rc.Dir, name), unix.R_OK|unix.X_OK); err != nil {
		d.events.Line(cfg.Future + "[Error could not locate executable " + name + " for " + d.testPath(name) + e.variation + "]")
		rec := e.record(types.OutcomeMissingExecutable, 0)
		rec.Detail = name
		d.record(result, rec)
		return true, nil
	}

	reason, err := d.buildExecution(e)
	if err != nil {
		d.events.Event("Error: %v", err)
		rec := e.record(types.OutcomeSkipped, 0)
		rec.Detail = err.Error()
		d.record(result, rec)
		return true, nil
	}
	if reason != "" {
		d.events.Event("%s", reason)
		rec := e.record(types.OutcomeSkipped, 0)
		rec.Detail = reason
		d.record(result, rec)
		return true, nil
	}

	for trial := 1; trial <= cfg.NumTrials; trial++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		again, err := d.runTrial(ctx, e, trialNumber(trial, cfg.NumTrials), result)
		if err != nil {
			return false, err
		}
		if !again {
			break
		}
	}
	return false, nil
}

func trialNumber(trial, total int) int {
	if total <= 1 {
		return 0
	}
	return trial
}

// runTrial executes the program once and classifies the result. It reports whether
// further trials should run.
func (d *TestDriver) runTrial(ctx context.Context, e *execution, trial int, result *types.DirectoryResult) (bool, error) {
	name := e.cfg.Test.Name
	shown := "[Executing program " + e.path
	if len(e.args) > 0 {
		shown += " " + strings.Join(e.args, " ")
	}
	if e.stdin != "" {
		shown += " < " + e.stdin
	}
	d.events.Line(shown + "]")

	start := time.Now()
	res, err := d.runner.Run(ctx, executor.Command{
		Path:  e.path,
		Args:  e.args,
		Env:   e.env,
		Stdin: e.stdin,
		Dir:   d.rc.Dir,
		Phase: types.PhaseExecute,
	}, executor.Limit{Deadline: e.cfg.Timeouts.Execute, Grace: e.cfg.Timeouts.Kill})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		d.events.Line(e.cfg.Future + "[Error could not execute " + e.path + " for " + d.testPath(name) + e.variation + ": " + err.Error() + "]")
		rec := e.record(types.OutcomeMissingExecutable, trial)
		rec.Detail = err.Error()
		d.record(result, rec)
		return false, nil
	}
	elapsed := time.Since(start)

	switch {
	case res.InfraError != "":
		d.events.Line(e.cfg.Future + "[Error: " + res.InfraError + " " + d.testPath(name) + e.variation + "]")
		d.events.Event("Execution output was as follows:")
		d.events.Output(res.Output)
	case res.TimedOut:
		d.events.Line(e.cfg.Future + "[Error: Timed out executing program " + d.testPath(name) + e.variation + "]")
		if len(res.Output) > 0 {
			d.events.Event("Execution output was as follows:")
			d.events.Output(res.Output)
		}
	}

	d.reportLaunchTime(e)
	d.events.Event("Elapsed execution time for %q - %.3f seconds", d.elapsedName(e), elapsed.Seconds())

	output := append(append([]byte{}, e.preExec...), res.Output...)
	output = append(output, d.catFiles(ctx, e.cfg)...)
	logPath := filepath.Join(d.rc.Dir, e.execLog)
	if err := os.WriteFile(logPath, output, 0o644); err != nil {
		return false, fmt.Errorf("writing execution log: %w", err)
	}

	failed := res.TimedOut || res.InfraError != ""
	if !failed {
		d.hooks.Run(ctx, "prediff", e.cfg.Hooks.Prediff, classify.HookArgs{
			Executable: name,
			LogFile:    e.execLog,
			Compiler:   d.rc.Compiler,
			Diff:       true,
			CompOpts:   d.compileOpts(e.cv),
			Args:       strings.Join(e.args, " "),
		})
	}

	if d.rc.Mode.IsPerformance() {
		return d.perfStats(ctx, e, res, trial, elapsed, result)
	}

	if failed {
		rec := e.record(types.OutcomeTimeout, trial)
		if res.InfraError != "" {
			rec.Outcome = types.OutcomeLauncherInfraError
			rec.Detail = res.InfraError
		}
		rec.Artifact = e.execLog
		rec.Duration = elapsed
		d.record(result, rec)
		return true, nil
	}

	// the comparison sees the log as rewritten by prediff hooks
	final, err := os.ReadFile(logPath)
	if err != nil {
		final = output
	}
	rec := d.classifier.Classify(ctx, classify.Request{
		Test:         name,
		Phase:        types.PhaseExecute,
		CompileIndex: e.cv.Index,
		ExecIndex:    e.ev.Index,
		Trial:        trial,
		Variation:    e.variation,
		Future:       e.cfg.Future,
		Basename:     variants.GoldenBasename(name, e.goodFile),
		Suffixes:     e.set.GoldenSuffixes(e.cv, e.ev),
		Artifact:     e.execLog,
		Output:       final,
		Duration:     elapsed,
	})
	d.record(result, rec)
	return true, nil
}

// reportLaunchTime logs and removes the timing file written by a launch prefix
func (d *TestDriver) reportLaunchTime(e *execution) {
	if e.timeFile == "" {
		return
	}
	path := filepath.Join(d.rc.Dir, e.timeFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if seconds, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
		d.events.Event("launchcmd reports elapsed execution time for %q - %.3f seconds", d.elapsedName(e), seconds)
	} else {
		d.events.Line("Could not parse launchcmd time file " + e.timeFile)
	}
	if err := os.Remove(path); err != nil {
		d.log.Warn("Failed to remove launch time file", "file", path, "err", err)
	}
}
