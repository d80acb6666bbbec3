package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"

	subtest "github.com/ethereum-optimism/infra/op-subtest"
	"github.com/ethereum-optimism/infra/op-subtest/exitcodes"
)

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, exitcodes.Success},
		{"configuration", subtest.NewConfigurationError("numlocales", errors.New("bad integer")), exitcodes.ConfigFatal},
		{"wrapped configuration", fmt.Errorf("failed to start: %w", subtest.NewConfigurationError("", errors.New("x"))), exitcodes.ConfigFatal},
		{"runtime", subtest.NewRuntimeError(errors.New("disk full")), exitcodes.RuntimeErr},
		{"test failure", subtest.NewTestFailureError("2 failed"), exitcodes.TestFailure},
		{"joined test failure", errors.Join(errors.New("failed to start"), subtest.NewTestFailureError("1 failed")), exitcodes.TestFailure},
		{"exit coder", cli.Exit("custom", 7), 7},
		{"other", errors.New("boom"), exitcodes.TestFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, exitCode(tc.err))
		})
	}
}

func TestNewApp(t *testing.T) {
	app := newApp()
	assert.Equal(t, "op-subtest", app.Name)
	assert.NotNil(t, app.ExitErrHandler)

	names := make(map[string]bool)
	for _, f := range app.Flags {
		names[f.Names()[0]] = true
	}
	for _, name := range []string{"testdir", "compiler", "timeout-strategy", "futures", "log.level"} {
		assert.True(t, names[name], "missing flag %s", name)
	}
}
