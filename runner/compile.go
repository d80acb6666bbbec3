package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/classify"
	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/options"
	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum-optimism/infra/op-subtest/variants"
	"github.com/google/shlex"
	"go.opentelemetry.io/otel/attribute"
)

func expand(cfg *options.TestConfig) variants.Set {
	return variants.Expand(cfg.DirCompOpts, cfg.CompOpts, cfg.ExecOpts)
}

// compileCommand builds `[prefix] compiler -o name envCompOpts opts source lastCompOpts`
func (d *TestDriver) compileCommand(cfg *options.TestConfig, cv types.CompileVariant) (string, []string, error) {
	opts, err := shlex.Split(cv.Options)
	if err != nil {
		return "", nil, fmt.Errorf("splitting compile options %q: %w", cv.Options, err)
	}
	args := []string{"-o", cfg.Test.Name}
	args = append(args, d.rc.EnvCompOpts...)
	args = append(args, opts...)
	args = append(args, cfg.Test.Source)
	args = append(args, cfg.LastCompOpts...)

	if len(d.rc.CompilerPrefix) == 0 {
		return d.rc.Compiler, args, nil
	}
	prefixed := append([]string{}, d.rc.CompilerPrefix[1:]...)
	prefixed = append(prefixed, d.rc.Compiler)
	return d.rc.CompilerPrefix[0], append(prefixed, args...), nil
}

// compileOpts is the option string handed to prediff hooks
func (d *TestDriver) compileOpts(cv types.CompileVariant) string {
	return strings.Join(d.rc.EnvCompOpts, " ") + " " + cv.Options
}

// runCompileVariant compiles one variant and, when the build succeeds, runs its exec
// variants. The binary is removed afterwards whatever happened.
func (d *TestDriver) runCompileVariant(ctx context.Context, cfg *options.TestConfig, set variants.Set, cv types.CompileVariant, result *types.DirectoryResult) error {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("compile %s", cfg.Test.Name))
	defer span.End()
	span.SetAttributes(attribute.Int("compile_index", cv.Index))

	name := cfg.Test.Name
	defer d.cleanup(name)

	variation := set.Variation(cv, nil)
	compLog := variants.CompileLogName(name, cv)
	d.hooks.Run(ctx, "precomp", cfg.Hooks.Precomp, classify.HookArgs{
		Executable: name,
		LogFile:    compLog,
		Compiler:   d.rc.Compiler,
	})

	path, args, err := d.compileCommand(cfg, cv)
	if err != nil {
		d.events.Event("Error: %v for %s%s", err, d.testPath(name), variation)
		d.record(result, &types.OutcomeRecord{
			Test: name, Phase: types.PhaseCompile, CompileIndex: cv.Index,
			Outcome: types.OutcomeSkipped, Future: cfg.Future, Detail: err.Error(),
		})
		return nil
	}

	compStdin := cfg.CompStdin
	shownStdin := compStdin
	if shownStdin == "" {
		shownStdin = os.DevNull
	}
	d.events.Event("Executing compiler %s %s < %s", executor.ShellEscapeCommand(path), strings.Join(args, " "), shownStdin)

	start := time.Now()
	res, err := d.runner.Run(ctx, executor.Command{
		Path:  path,
		Args:  args,
		Stdin: compStdin,
		Dir:   d.rc.Dir,
		Phase: types.PhaseCompile,
	}, executor.Limit{Deadline: cfg.Timeouts.Compile, Grace: cfg.Timeouts.Kill})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.NewConfigurationError(d.rc.Compiler, fmt.Errorf("cannot run compiler: %w", err))
	}
	elapsed := time.Since(start)

	if res.TimedOut {
		d.events.Line(cfg.Future + "[Error: Timed out compilation for " + d.testPath(name) + variation + "]")
		if len(res.Output) > 0 {
			d.events.Event("Compiler output was as follows:")
			d.events.Output(res.Output)
		}
		d.record(result, &types.OutcomeRecord{
			Test: name, Phase: types.PhaseCompile, CompileIndex: cv.Index,
			Outcome: types.OutcomeTimeout, Future: cfg.Future, Duration: elapsed,
		})
		return nil
	}

	elapsedName := d.testPath(name)
	if cv.Index != 0 {
		elapsedName += fmt.Sprintf(" (compopts: %d)", cv.Index)
	}
	d.events.Event("Elapsed compilation time for %q - %.3f seconds", elapsedName, elapsed.Seconds())

	if res.ExitCode != 0 || cfg.NoExec {
		output := append(res.Output, d.catFiles(ctx, cfg)...)
		if err := os.WriteFile(filepath.Join(d.rc.Dir, compLog), output, 0o644); err != nil {
			return fmt.Errorf("writing compiler log: %w", err)
		}
		d.hooks.Run(ctx, "prediff", cfg.Hooks.Prediff, classify.HookArgs{
			Executable: name,
			LogFile:    compLog,
			Compiler:   d.rc.Compiler,
			Diff:       true,
			CompOpts:   d.compileOpts(cv),
			Args:       strings.Join(args, " "),
		})
		rec := d.classifier.Classify(ctx, classify.Request{
			Test:         name,
			Phase:        types.PhaseCompile,
			CompileIndex: cv.Index,
			Variation:    variation,
			Future:       cfg.Future,
			Basename:     variants.GoldenBasename(name, cv.GoodFile),
			Suffixes:     []string{""},
			Artifact:     compLog,
			Output:       res.Output,
			Duration:     elapsed,
		})
		d.record(result, rec)
		return nil
	}

	// preexec hooks and compiler warnings become part of the expected program output
	execLogs := set.ExecLogNames(name, cv)
	for _, execLog := range execLogs {
		if err := os.WriteFile(filepath.Join(d.rc.Dir, execLog), res.Output, 0o644); err != nil {
			return fmt.Errorf("seeding execution log: %w", err)
		}
	}
	d.events.Event("Success compiling %s", d.testPath(name))

	if d.rc.CompOnly {
		d.events.Event("Note: Not executing or comparing the output due to -noexec flags")
		for _, execLog := range execLogs {
			d.removeArtifact(execLog)
		}
		d.record(result, &types.OutcomeRecord{
			Test: name, Phase: types.PhaseCompile, CompileIndex: cv.Index,
			Outcome: types.OutcomeSuccess, Future: cfg.Future, Detail: "compile only", Duration: elapsed,
		})
		return nil
	}

	for _, ev := range set.Exec {
		stop, err := d.runExecVariant(ctx, cfg, set, cv, ev, result)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// catFiles returns the concatenated contents of the test's catfiles, as `cat` prints them
func (d *TestDriver) catFiles(ctx context.Context, cfg *options.TestConfig) []byte {
	if len(cfg.CatFiles) == 0 {
		return nil
	}
	d.events.Event("Concatenating extra files: %s", cfg.Test.Name+".catfiles")
	res, err := d.runner.Run(ctx, executor.Command{
		Path:  "cat",
		Args:  cfg.CatFiles,
		Dir:   d.rc.Dir,
		Phase: types.PhaseSetup,
	}, executor.Limit{Deadline: classify.DefaultHookTimeout, Grace: cfg.Timeouts.Kill})
	if err != nil {
		d.log.Warn("Failed to concatenate extra files", "test", cfg.Test.Name, "err", err)
		return nil
	}
	return res.Output
}
