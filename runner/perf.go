package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/options"
	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// DefaultPerfStatsTimeout bounds one perf-stats invocation
const DefaultPerfStatsTimeout = 5 * time.Minute

// perfTarget returns the dataset name and key file of a performance execution. An
// explicit key file from the exec options names the dataset after itself.
func (d *TestDriver) perfTarget(e *execution) (dataset, keyFile string) {
	name := e.cfg.Test.Name
	keyFile = e.cfg.PerfKeys
	if keyFile == "" {
		keyFile = options.TestFileName(name, options.CategoryPerfKeys, d.rc.Mode)
	}
	if e.goodFile == "" {
		return name, keyFile
	}
	dataset = strings.TrimSuffix(e.goodFile, options.Suffix(options.CategoryPerfKeys, d.rc.Mode))
	if info, err := os.Stat(filepath.Join(d.rc.Dir, e.goodFile)); err == nil && info.Mode().IsRegular() {
		keyFile = e.goodFile
	}
	return dataset, keyFile
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// perfStats hands the execution log to the perf-stats tool:
// `<tool> <dataset> <perfDir> <keyFile> <log> <timedOut> <date>`.
// Exit status 0 means every key was found. Trials stop after a timeout or a failure.
func (d *TestDriver) perfStats(ctx context.Context, e *execution, res *executor.Result, trial int, elapsed time.Duration, result *types.DirectoryResult) (bool, error) {
	name := e.cfg.Test.Name
	dataset, keyFile := d.perfTarget(e)
	date := d.rc.PerfDate
	if date == "" {
		date = time.Now().Format(PerfDateFormat)
	}
	args := []string{dataset, d.rc.PerfDir, keyFile, e.execLog, pythonBool(res.TimedOut), date}
	d.events.Event("Executing %s %s", d.rc.PerfStatsTool, strings.Join(args, " "))

	stats, err := d.runner.Run(ctx, executor.Command{
		Path:  d.rc.PerfStatsTool,
		Args:  args,
		Dir:   d.rc.Dir,
		Phase: types.PhaseSetup,
	}, executor.Limit{Deadline: DefaultPerfStatsTimeout, Grace: e.cfg.Timeouts.Kill})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, types.NewConfigurationError(d.rc.PerfStatsTool, err)
	}
	d.events.Output(stats.Output)

	status := stats.ExitCode
	if stats.TimedOut {
		status = -1
	}

	rec := e.record(types.OutcomeSuccess, trial)
	rec.Duration = elapsed
	switch {
	case res.InfraError != "":
		rec.Outcome = types.OutcomeLauncherInfraError
		rec.Detail = res.InfraError
		rec.Artifact = e.execLog
	case res.TimedOut:
		rec.Outcome = types.OutcomeTimeout
		rec.Artifact = e.execLog
	case status == 0:
		d.removeArtifact(e.execLog)
		d.events.Line(e.cfg.Future + "[Success matching performance keys for " + d.testPath(name) + "]")
	default:
		d.events.Line(e.cfg.Future + "[Error matching performance keys for " + d.testPath(name) + e.variation + "]")
		rec.Outcome = types.OutcomeOutputMismatch
		rec.Detail = keyFile
		rec.Artifact = e.execLog
	}
	d.record(result, rec)

	return !res.TimedOut && status == 0, nil
}
