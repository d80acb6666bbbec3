package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
)

var _ BoundedRunner = (*LauncherNative)(nil)

// Launcher walltime argument formats
const (
	LauncherFormatPBS   = "pbs"
	LauncherFormatSlurm = "slurm"
)

// Infra failures reported by launchers, matched case-insensitively against the output
var (
	expiredCredentialRe = regexp.MustCompile(`(?i)slurmstepd: Munge decode failed: Expired credential`)
	missingJobOutputRe  = regexp.MustCompile(`(?i)output file from job .* does not exist`)
	pbsWalltimeRe       = regexp.MustCompile(`(?i)PBS: job killed: walltime`)
	slurmTimeLimitRe    = regexp.MustCompile(`(?i)slurm.* CANCELLED .* DUE TO TIME LIMIT`)
)

const (
	InfraExpiredCredential = "Expired slurm credential for"
	InfraMissingOutputFile = "Missing output file for"
)

// LauncherNative lets the launcher enforce the deadline through its own wall-time option
// and classifies timeouts and infrastructure failures from the captured output.
// Only execute-phase commands go through the launcher; everything else uses fallback.
type LauncherNative struct {
	format   string
	fallback BoundedRunner
	log      log.Logger

	// QueueAllowance is extra time granted on top of the deadline before the backstop
	// kills the launcher, covering time spent waiting for a reservation. Zero means the
	// deadline itself.
	QueueAllowance time.Duration
}

// NewLauncherNative returns a launcher runner for a known walltime format
func NewLauncherNative(format string, fallback BoundedRunner, logger log.Logger) (*LauncherNative, error) {
	if format != LauncherFormatPBS && format != LauncherFormatSlurm {
		return nil, fmt.Errorf("unknown launcher timeout format %q", format)
	}
	if fallback == nil {
		return nil, errors.New("fallback runner cannot be nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &LauncherNative{format: format, fallback: fallback, log: logger}, nil
}

// WalltimeArgs formats a deadline as launcher arguments
func WalltimeArgs(format string, deadline time.Duration) ([]string, error) {
	switch format {
	case LauncherFormatPBS, LauncherFormatSlurm:
		total := deadlineSeconds(deadline)
		h, m, s := total/3600, (total%3600)/60, total%60
		return []string{fmt.Sprintf("--walltime=%02d:%02d:%02d", h, m, s)}, nil
	default:
		return nil, fmt.Errorf("unknown launcher timeout format %q", format)
	}
}

// ClassifyLauncherOutput inspects launcher output for timeouts and infra failures
func ClassifyLauncherOutput(output []byte) (timedOut bool, infraError string) {
	switch {
	case expiredCredentialRe.Match(output):
		return false, InfraExpiredCredential
	case missingJobOutputRe.Match(output):
		return false, InfraMissingOutputFile
	case pbsWalltimeRe.Match(output), slurmTimeLimitRe.Match(output):
		return true, ""
	}
	return false, ""
}

// Run implements BoundedRunner
func (l *LauncherNative) Run(ctx context.Context, c Command, limit Limit) (*Result, error) {
	if c.Phase != types.PhaseExecute {
		return l.fallback.Run(ctx, c, limit)
	}

	walltime, err := WalltimeArgs(l.format, limit.Deadline)
	if err != nil {
		return nil, err
	}
	launched := c
	launched.Args = append(append([]string{}, c.Args...), walltime...)

	cmd, cleanup, err := buildCmd(launched, limit.Grace)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	l.log.Debug("Running through launcher", "command", c.Path, "walltime", walltime[0])

	start := time.Now()
	waitCh, err := startWait(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start launcher: %w", err)
	}

	allowance := l.QueueAllowance
	if allowance <= 0 {
		allowance = limit.Deadline
	}
	backstop := time.NewTimer(limit.Deadline + allowance + limit.Grace)
	defer backstop.Stop()

	var waitErr error
	select {
	case waitErr = <-waitCh:
		reap(cmd)
	case <-backstop.C:
		l.log.Warn("Launcher did not honour walltime, terminating", "command", c.Path)
		terminate(cmd, waitCh, limit.Grace)
		return &Result{Output: out.Bytes(), ExitCode: -1, TimedOut: true, Duration: time.Since(start)}, nil
	case <-ctx.Done():
		terminate(cmd, waitCh, limit.Grace)
		return nil, ctx.Err()
	}

	res := &Result{
		Output:   out.Bytes(),
		ExitCode: exitCode(cmd, waitErr),
		Duration: time.Since(start),
	}
	// launcher diagnostics are kept with the output on timeout
	res.TimedOut, res.InfraError = ClassifyLauncherOutput(res.Output)
	return res, nil
}
