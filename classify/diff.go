package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// DefaultDiffTimeout bounds a single diff invocation
const DefaultDiffTimeout = 2 * time.Minute

// Differ compares two files with an external tool: `<tool> <expected> <actual>`,
// where exit status 0 means identical.
type Differ struct {
	Tool   string
	Dir    string
	Runner executor.BoundedRunner
	Limit  executor.Limit
}

// Diff runs the tool and returns whether the files match together with its output
func (d *Differ) Diff(ctx context.Context, expected, actual string) (bool, []byte, error) {
	if d.Tool == "" {
		return false, nil, errors.New("no diff tool configured")
	}
	limit := d.Limit
	if limit.Deadline <= 0 {
		limit.Deadline = DefaultDiffTimeout
	}
	res, err := d.Runner.Run(ctx, executor.Command{
		Path:  d.Tool,
		Args:  []string{expected, actual},
		Dir:   d.Dir,
		Phase: types.PhaseSetup,
	}, limit)
	if err != nil {
		return false, nil, fmt.Errorf("failed to run %s: %w", d.Tool, err)
	}
	if res.TimedOut {
		return false, nil, fmt.Errorf("%s timed out comparing %s and %s", d.Tool, expected, actual)
	}
	return res.ExitCode == 0, res.Output, nil
}
