// Package classify turns captured output into an outcome by comparing it with the
// resolved golden file, applying future and .bad file overrides.
package classify

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/golden"
	"github.com/ethereum-optimism/infra/op-subtest/logging"
	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
)

// BadSuffix names the known-failure output of a future test
const BadSuffix = ".bad"

// Classifier compares actual output with golden files in one test directory
type Classifier struct {
	Dir        string // test directory
	DisplayDir string // directory name used in event lines
	Env        golden.Environment
	Golden     *golden.Resolver
	Diff       *Differ
	BadDiff    *Differ // line-number insensitive; falls back to Diff when nil
	Events     *logging.EventLog
	Log        log.Logger
}

// Request describes one comparison
type Request struct {
	Test         string
	Phase        types.Phase
	CompileIndex int
	ExecIndex    int
	Trial        int
	Variation    string // " (compopts: 1, execopts: 2)" or empty
	Future       string // future/suppress annotation, empty for ordinary tests
	Basename     string // golden basename, the test name unless overridden
	Suffixes     []string
	Artifact     string // captured output file relative to Dir
	Output       []byte // original output, logged verbatim when the golden file is missing
	Duration     time.Duration
}

func (r Request) record(outcome types.Outcome) *types.OutcomeRecord {
	return &types.OutcomeRecord{
		Test:         r.Test,
		Phase:        r.Phase,
		CompileIndex: r.CompileIndex,
		ExecIndex:    r.ExecIndex,
		Trial:        r.Trial,
		Outcome:      outcome,
		Future:       r.Future,
		Duration:     r.Duration,
	}
}

func (r Request) subject() string {
	if r.Phase == types.PhaseCompile {
		return "compiler"
	}
	return "program"
}

// Classify resolves the golden file, diffs it against the artifact and records the
// outcome. The artifact is removed on success and kept otherwise.
func (c *Classifier) Classify(ctx context.Context, req Request) *types.OutcomeRecord {
	testPath := filepath.Join(c.DisplayDir, req.Test)

	goodFile, found := c.Golden.Resolve(golden.Query{Basename: req.Basename, Env: c.Env, Suffixes: req.Suffixes})
	if !found {
		c.Events.Event("Error cannot locate %s output comparison file %s", req.subject(), filepath.Join(c.DisplayDir, goodFile))
		if req.Phase == types.PhaseCompile {
			c.Events.Event("Compiler output was as follows:")
		} else {
			c.Events.Event("Execution output was as follows:")
		}
		c.Events.Output(req.Output)
		rec := req.record(types.OutcomeMissingGoldenFile)
		rec.Detail = goodFile
		rec.Artifact = req.Artifact
		return rec
	}

	c.Events.Event("Executing diff %s %s", goodFile, req.Artifact)
	identical, diffOutput, err := c.Diff.Diff(ctx, goodFile, req.Artifact)
	if err != nil {
		c.Log.Error("Diff failed", "test", req.Test, "err", err)
		c.Events.Event("Error executing diff for %s: %v", testPath, err)
	} else if !identical {
		c.Events.Output(diffOutput)
	}

	if identical {
		c.remove(req.Artifact)
		// exec successes omit the variation
		variation := ""
		if req.Phase == types.PhaseCompile {
			variation = req.Variation
		}
		c.Events.Line(req.Future + "[Success matching " + req.subject() + " output for " + testPath + variation + "]")
		return req.record(types.OutcomeSuccess)
	}

	c.Events.Line(req.Future + "[Error matching " + req.subject() + " output for " + testPath + req.Variation + "]")
	rec := req.record(types.OutcomeOutputMismatch)
	rec.Artifact = req.Artifact
	rec.Detail = goodFile
	if err != nil {
		rec.Detail = err.Error()
	}

	if req.Future == "" {
		return rec
	}
	badFile := req.Test + BadSuffix
	if !golden.FileReadable(filepath.Join(c.Dir, badFile)) {
		return rec
	}

	badDiff := c.BadDiff
	if badDiff == nil {
		badDiff = c.Diff
	}
	c.Events.Event("Executing diff %s %s", badFile, req.Artifact)
	matched, badOutput, err := badDiff.Diff(ctx, badFile, req.Artifact)
	if err != nil {
		c.Log.Error("Bad file diff failed", "test", req.Test, "err", err)
	}
	if matched {
		c.remove(req.Artifact)
		c.Events.Event("Clean match against .bad file for %s%s", testPath, req.Variation)
		known := req.record(types.OutcomeFutureAnnotated)
		known.Detail = badFile
		return known
	}
	c.Events.Output(badOutput)
	c.Events.Event("Error matching .bad file for %s%s", testPath, req.Variation)
	rec.BadFileMismatch = true
	return rec
}

func (c *Classifier) remove(artifact string) {
	if err := os.Remove(filepath.Join(c.Dir, artifact)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.Log.Warn("Failed to remove comparison artifact", "file", artifact, "err", err)
	}
}
