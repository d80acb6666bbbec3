package classify

import (
	"context"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/logging"
	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// DefaultHookTimeout bounds a single hook invocation
const DefaultHookTimeout = 5 * time.Minute

// HookArgs are passed to every hook: `<hook> <executable> <log> <compiler>`, followed by
// the compile options and the full argument string for prediff hooks.
type HookArgs struct {
	Executable string
	LogFile    string
	Compiler   string
	Diff       bool // append CompOpts and Args
	CompOpts   string
	Args       string
}

func (a HookArgs) argv() []string {
	argv := []string{a.Executable, a.LogFile, a.Compiler}
	if a.Diff {
		argv = append(argv, a.CompOpts, a.Args)
	}
	return argv
}

// HookRunner runs side-effecting hooks in order. Exit codes are ignored; output goes to
// the event log.
type HookRunner struct {
	Dir    string
	Runner executor.BoundedRunner
	Limit  executor.Limit
	Events *logging.EventLog
}

// Run executes hooks of the given kind ("precomp", "prediff", "preexec") in order
func (h *HookRunner) Run(ctx context.Context, kind string, hooks []string, args HookArgs) {
	limit := h.Limit
	if limit.Deadline <= 0 {
		limit.Deadline = DefaultHookTimeout
	}
	for _, hook := range hooks {
		h.Events.Event("Executing %s %s", kind, filepath.Base(hook))
		res, err := h.Runner.Run(ctx, executor.Command{
			Path:  hook,
			Args:  args.argv(),
			Dir:   h.Dir,
			Phase: types.PhaseSetup,
		}, limit)
		switch {
		case err != nil:
			h.Events.Event("Error executing %s %s: %v", kind, hook, err)
		case res.TimedOut:
			h.Events.Event("Error: Timed out executing %s %s", kind, hook)
		default:
			h.Events.Output(res.Output)
		}
	}
}
