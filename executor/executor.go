// Package executor runs external commands under a hard wall-clock deadline.
//
// Three interchangeable strategies implement BoundedRunner: delegating to an external
// bounded-execution supervisor, passing wall-time limits to a job launcher, and reading
// output cooperatively in-process with poll(2). Whatever the strategy, every child runs in
// its own process group and no member of that group survives a returned Run.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
)

// SupervisorTimeoutExitCode is the exit status the supervisor uses for an exceeded deadline
const SupervisorTimeoutExitCode = 222

// Strategy selects a BoundedRunner implementation
type Strategy string

const (
	StrategySupervisor  Strategy = "supervisor"
	StrategyLauncher    Strategy = "launcher"
	StrategyCooperative Strategy = "cooperative"
)

// Strategies lists the accepted strategy names
var Strategies = []Strategy{StrategySupervisor, StrategyLauncher, StrategyCooperative}

// IsValid checks if the strategy is one of the known values
func (s Strategy) IsValid() bool {
	for _, v := range Strategies {
		if s == v {
			return true
		}
	}
	return false
}

// Command describes a single child process
type Command struct {
	Path  string
	Args  []string
	Env   map[string]string // overrides applied on top of the ambient environment
	Stdin string            // file connected to stdin; empty means the null device
	Dir   string
	Phase types.Phase
}

// Limit bounds a single Run
type Limit struct {
	Deadline time.Duration // hard wall-clock limit
	Grace    time.Duration // time between the graceful and the forceful signal
}

// Result is the merged stdout/stderr and status of a finished command
type Result struct {
	Output     []byte
	ExitCode   int
	TimedOut   bool
	InfraError string // launcher failure unrelated to the program under test
	Duration   time.Duration
}

// BoundedRunner executes a command and guarantees termination by the deadline.
// A non-nil error means the command could not be started at all.
type BoundedRunner interface {
	Run(ctx context.Context, cmd Command, limit Limit) (*Result, error)
}

// Config holds the settings needed to construct a BoundedRunner
type Config struct {
	Strategy       Strategy
	SupervisorPath string
	LauncherFormat string // walltime argument style for the launcher strategy (pbs, slurm)
	Log            log.Logger
}

// New binds the configured strategy once for the whole run
func New(cfg Config) (BoundedRunner, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	switch cfg.Strategy {
	case StrategySupervisor, "":
		return NewSupervisorDelegate(cfg.SupervisorPath, cfg.Log)
	case StrategyLauncher:
		fallback, err := NewSupervisorDelegate(cfg.SupervisorPath, cfg.Log)
		if err != nil {
			return nil, err
		}
		return NewLauncherNative(cfg.LauncherFormat, fallback, cfg.Log)
	case StrategyCooperative:
		return NewCooperative(cfg.Log), nil
	default:
		return nil, fmt.Errorf("unknown timeout strategy %q", cfg.Strategy)
	}
}
