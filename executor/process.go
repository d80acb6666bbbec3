package executor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// buildCmd prepares an exec.Cmd in its own process group with a copy-then-override
// environment. The returned cleanup closes the stdin file.
func buildCmd(c Command, grace time.Duration) (*exec.Cmd, func(), error) {
	stdinPath := c.Stdin
	if stdinPath == "" {
		stdinPath = os.DevNull
	}
	stdin, err := os.Open(stdinPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stdin %s: %w", stdinPath, err)
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = MergeEnv(os.Environ(), c.Env)
	cmd.Stdin = stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// descendants holding the output pipe must not keep Wait blocked forever
	cmd.WaitDelay = max(grace, minWaitDelay)

	return cmd, func() { _ = stdin.Close() }, nil
}

const minWaitDelay = time.Second

// MergeEnv copies base and applies overrides; overridden keys keep their position and
// new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if v, ok := overrides[key]; ok {
			if !seen[key] {
				env = append(env, key+"="+v)
				seen[key] = true
			}
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// signalGroup sends sig to every process in the group led by pid
func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// terminate stops a started command: SIGTERM to the group, up to grace for the leader
// to exit, then SIGKILL. It returns only after the leader has been reaped.
func terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) {
	pid := cmd.Process.Pid
	_ = signalGroup(pid, unix.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-waitCh:
	case <-timer.C:
		_ = signalGroup(pid, unix.SIGKILL)
		<-waitCh
	}
	// stragglers that ignored SIGTERM or outlived the leader
	_ = signalGroup(pid, unix.SIGKILL)
}

// reap kills anything left in the group of an already-exited command
func reap(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = signalGroup(cmd.Process.Pid, unix.SIGKILL)
	}
}

// exitCode extracts the exit status from a finished command
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// startWait starts cmd and returns a channel that yields its Wait error
func startWait(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()
	return waitCh, nil
}
