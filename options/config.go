// Package options resolves the cascading option files of a test directory into one
// configuration per test.
package options

import (
	"strconv"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
)

const (
	DefaultTimeout         = 300 * time.Second
	DefaultValgrindTimeout = 1000 * time.Second
	DefaultKillTimeout     = 10 * time.Second
	DefaultNumTrials       = 1
)

// Defaults are the run-wide values that directory and test files override
type Defaults struct {
	Timeout       time.Duration
	KillTimeout   time.Duration
	NumLocales    int
	NumTrials     int
	Comm          string // communication layer; "none" disables the locale count argument
	Futures       FuturesMode
	RunNoTests    bool // run tests that carry a .notest file
	StdinRedirect bool // false when stdin redirection is disabled for the run
	SystemHooks   Hooks
}

// NewDefaults returns the built-in defaults
func NewDefaults(valgrind bool) Defaults {
	timeout := DefaultTimeout
	if valgrind {
		timeout = DefaultValgrindTimeout
	}
	return Defaults{
		Timeout:       timeout,
		KillTimeout:   DefaultKillTimeout,
		NumTrials:     DefaultNumTrials,
		Comm:          "none",
		StdinRedirect: true,
	}
}

// Hooks are the side-effecting scripts run around each step, in execution order
type Hooks struct {
	Precomp []string
	Prediff []string
	Preexec []string
}

func (h Hooks) with(other Hooks) Hooks {
	return Hooks{
		Precomp: append(append([]string{}, h.Precomp...), other.Precomp...),
		Prediff: append(append([]string{}, h.Prediff...), other.Prediff...),
		Preexec: append(append([]string{}, h.Preexec...), other.Preexec...),
	}
}

// DirConfig holds the directory-wide settings shared by every test in the directory
type DirConfig struct {
	Dir          string
	Mode         Mode
	CompOpts     []string // one entry per line
	ExecOpts     []string // first line, shell-split
	LastCompOpts []string
	LastExecOpts []string
	Env          map[string]string
	Timeout      time.Duration
	KillTimeout  time.Duration
	NumLocales   int
	NumTrials    int
	CatFiles     []string
	Hooks        Hooks // system-wide then directory-wide
	NoExec       bool
	CompStdin    string // stdin for the compiler; empty means the null device
}

// TestConfig is the fully resolved configuration of one test
type TestConfig struct {
	Test         types.TestCase
	DirCompOpts  []string
	CompOpts     []string // per-test compile option lines
	ExecOpts     []string // per-test exec option lines
	DirExecOpts  []string
	LastCompOpts []string
	LastExecOpts []string
	Env          map[string]string
	Timeouts     types.TimeoutSpec
	NumLocales   int
	NumTrials    int
	CatFiles     []string
	Hooks        Hooks  // system, directory, test
	Future       string // "Future (reason) " or "Suppress (reason) "
	IsFuture     bool
	HasSkipIf    bool
	NoExec       bool
	CompStdin    string
	Stdin        string // per-test stdin file; empty means the null device
	PerfKeys     string // key file in performance mode
}

// LocaleArgs returns the locale count arguments for the program
func (c *TestConfig) LocaleArgs(comm string) []string {
	if c.NumLocales <= 0 || comm == "none" || comm == "" {
		return nil
	}
	return []string{"-nl", strconv.Itoa(c.NumLocales)}
}

// Exclusion explains why a test was not run
type Exclusion struct {
	Reason string
	Err    error // set when the exclusion comes from a failed predicate
}
