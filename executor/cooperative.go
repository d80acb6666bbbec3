package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sys/unix"
)

var _ BoundedRunner = (*Cooperative)(nil)

// ErrReadTimeout is returned by readWithDeadline when the deadline passes before EOF
var ErrReadTimeout = errors.New("read deadline exceeded")

const readChunk = 64 * 1024

// Cooperative reads merged output from a non-blocking pipe, waiting for readiness with
// poll(2) bounded by the remaining deadline. On expiry the process group is terminated.
type Cooperative struct {
	log log.Logger
}

// NewCooperative returns the in-process runner
func NewCooperative(logger log.Logger) *Cooperative {
	if logger == nil {
		logger = log.New()
	}
	return &Cooperative{log: logger}
}

// Run implements BoundedRunner
func (c *Cooperative) Run(ctx context.Context, cmdSpec Command, limit Limit) (*Result, error) {
	cmd, cleanup, err := buildCmd(cmdSpec, limit.Grace)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	readFd := fds[0]
	writer := os.NewFile(uintptr(fds[1]), "child-output")
	defer unix.Close(readFd)

	cmd.Stdout = writer
	cmd.Stderr = writer

	start := time.Now()
	end := start.Add(limit.Deadline)
	waitCh, err := startWait(cmd)
	// the child holds its own copy; EOF arrives once every writer in the tree is gone
	_ = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmdSpec.Path, err)
	}

	if err := unix.SetNonblock(readFd, true); err != nil {
		terminate(cmd, waitCh, limit.Grace)
		return nil, fmt.Errorf("failed to set output non-blocking: %w", err)
	}

	output, err := readWithDeadline(ctx, readFd, end)
	if err != nil {
		c.log.Debug("Terminating command", "command", cmdSpec.Path, "reason", err)
		terminate(cmd, waitCh, limit.Grace)
		if errors.Is(err, ErrReadTimeout) {
			return &Result{TimedOut: true, ExitCode: -1, Duration: time.Since(start)}, nil
		}
		return nil, err
	}

	// Output is closed but the process may still be running.
	remaining := time.Until(end)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case waitErr := <-waitCh:
		reap(cmd)
		return &Result{
			Output:   output,
			ExitCode: exitCode(cmd, waitErr),
			Duration: time.Since(start),
		}, nil
	case <-timer.C:
		terminate(cmd, waitCh, limit.Grace)
		return &Result{TimedOut: true, ExitCode: -1, Duration: time.Since(start)}, nil
	case <-ctx.Done():
		terminate(cmd, waitCh, limit.Grace)
		return nil, ctx.Err()
	}
}

// readWithDeadline accumulates bytes from a non-blocking fd until EOF or the deadline
func readWithDeadline(ctx context.Context, fd int, end time.Time) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(end)
		if remaining <= 0 {
			return nil, ErrReadTimeout
		}
		// cap each wait so a cancelled context is noticed promptly
		wait := min(remaining, 250*time.Millisecond)
		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pollFds, int((wait+time.Millisecond-1)/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("poll failed: %w", err)
		}
		if n == 0 {
			continue
		}
		for {
			r, err := unix.Read(fd, chunk)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					break
				}
				return nil, fmt.Errorf("read failed: %w", err)
			}
			if r == 0 {
				return buf, nil
			}
			buf = append(buf, chunk[:r]...)
		}
	}
}
