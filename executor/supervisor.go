package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

var _ BoundedRunner = (*SupervisorDelegate)(nil)

// SupervisorDelegate hands the escaped command line and a deadline in seconds to an
// external supervisor which enforces the limit itself.
type SupervisorDelegate struct {
	path string
	log  log.Logger
}

// NewSupervisorDelegate validates the supervisor path and returns the runner
func NewSupervisorDelegate(path string, logger log.Logger) (*SupervisorDelegate, error) {
	if path == "" {
		return nil, errors.New("supervisor path cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot execute supervisor %q: %w", path, err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return nil, fmt.Errorf("cannot execute supervisor %q: not an executable file", path)
	}
	if logger == nil {
		logger = log.New()
	}
	return &SupervisorDelegate{path: path, log: logger}, nil
}

// deadlineSeconds rounds a deadline up to whole seconds, minimum one
func deadlineSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Run implements BoundedRunner
func (s *SupervisorDelegate) Run(ctx context.Context, c Command, limit Limit) (*Result, error) {
	seconds := deadlineSeconds(limit.Deadline)
	whole := CommandString(c.Path, c.Args)

	wrapped := c
	wrapped.Path = s.path
	wrapped.Args = []string{strconv.Itoa(seconds), whole}

	cmd, cleanup, err := buildCmd(wrapped, limit.Grace)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	s.log.Debug("Delegating to supervisor", "supervisor", s.path, "seconds", seconds, "command", whole)

	start := time.Now()
	waitCh, err := startWait(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start supervisor: %w", err)
	}

	// The supervisor owns the deadline; the backstop only covers a hung supervisor.
	backstop := time.NewTimer(time.Duration(seconds)*time.Second + limit.Grace + time.Second)
	defer backstop.Stop()

	var waitErr error
	select {
	case waitErr = <-waitCh:
		reap(cmd)
	case <-backstop.C:
		s.log.Warn("Supervisor exceeded its own deadline, terminating", "supervisor", s.path)
		terminate(cmd, waitCh, limit.Grace)
		return &Result{TimedOut: true, ExitCode: SupervisorTimeoutExitCode, Duration: time.Since(start)}, nil
	case <-ctx.Done():
		terminate(cmd, waitCh, limit.Grace)
		return nil, ctx.Err()
	}

	res := &Result{
		Output:   out.Bytes(),
		ExitCode: exitCode(cmd, waitErr),
		Duration: time.Since(start),
	}
	if res.ExitCode == SupervisorTimeoutExitCode {
		res.TimedOut = true
		res.Output = nil
	}
	return res, nil
}
