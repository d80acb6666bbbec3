package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// DefaultPredicateTimeout bounds a single predicate evaluation
const DefaultPredicateTimeout = time.Minute

// ErrPredicateOutput is wrapped when a predicate prints something other than a boolean
var ErrPredicateOutput = errors.New("predicate output is not a boolean")

// ParsePredicate interprets predicate output: "True"/"1" or "False"/"0"
func ParsePredicate(output string) (bool, error) {
	switch s := strings.TrimSpace(output); s {
	case "True", "1":
		return true, nil
	case "False", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrPredicateOutput, s)
	}
}

// PredicateRunner evaluates .skipif and .suppressif files. Executable files are run
// directly; anything else is handed to Evaluator as its only argument.
type PredicateRunner struct {
	Runner    executor.BoundedRunner
	Evaluator string
	Limit     executor.Limit
}

// Evaluate runs the predicate at path (relative to dir) and parses its output
func (p *PredicateRunner) Evaluate(ctx context.Context, dir, path string) (bool, error) {
	full := filepath.Join(dir, path)
	cmd := executor.Command{Dir: dir, Phase: types.PhaseSetup}
	if isExecutable(full) {
		cmd.Path = full
	} else {
		if p.Evaluator == "" {
			return false, fmt.Errorf("%s is not executable and no predicate evaluator is configured", path)
		}
		cmd.Path = p.Evaluator
		cmd.Args = []string{full}
	}

	limit := p.Limit
	if limit.Deadline <= 0 {
		limit.Deadline = DefaultPredicateTimeout
	}
	res, err := p.Runner.Run(ctx, cmd, limit)
	if err != nil {
		return false, fmt.Errorf("failed to run predicate %s: %w", path, err)
	}
	if res.TimedOut {
		return false, fmt.Errorf("predicate %s timed out", path)
	}
	return ParsePredicate(string(res.Output))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

func isReadable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
