package runner

import (
	"errors"
	"slices"

	"github.com/ethereum-optimism/infra/op-subtest/golden"
	"github.com/ethereum-optimism/infra/op-subtest/options"
)

const (
	// DefaultExtension is the source extension used when none are configured
	DefaultExtension = ".chpl"

	// LaunchTimeEnv names the file a launch prefix writes its own timing to
	LaunchTimeEnv = "CHPL_LAUNCHCMD_EXEC_TIME_FILE"

	// PerfDateFormat is the date layout passed to the perf-stats tool
	PerfDateFormat = "01/02/06"
)

// RunContext holds everything fixed for one directory invocation. It is built once,
// passed by value and never modified.
type RunContext struct {
	RunID      string
	Dir        string // test directory
	DisplayDir string // directory name used in event lines

	Compiler       string
	CompilerPrefix []string // e.g. valgrind and its options, run in front of the compiler
	EnvCompOpts    []string // appended to every compile after -o
	EnvExecOpts    []string // appended to every execution
	LaunchCmd      []string // shell-split launch prefix; empty runs the binary directly

	DiffTool           string
	BadDiffTool        string
	PredicateEvaluator string

	Environment golden.Environment
	Mode        options.Mode
	Defaults    options.Defaults
	Extensions  []string
	OnlyTest    string // restrict the run to one source file
	CompOnly    bool   // compile and stop

	PerfStatsTool string
	PerfDir       string
	PerfDate      string // passed verbatim; empty means today
}

// Validate checks the fields every run needs
func (rc RunContext) Validate() error {
	if rc.RunID == "" {
		return errors.New("run id is required")
	}
	if rc.Dir == "" {
		return errors.New("test directory is required")
	}
	if rc.Compiler == "" {
		return errors.New("compiler is required")
	}
	if rc.DiffTool == "" {
		return errors.New("diff tool is required")
	}
	if rc.Mode.IsPerformance() && (rc.PerfStatsTool == "" || rc.PerfDir == "") {
		return errors.New("performance mode requires a perf-stats tool and a perf directory")
	}
	return nil
}

func (rc RunContext) extensions() []string {
	if len(rc.Extensions) == 0 {
		return []string{DefaultExtension}
	}
	return slices.Clone(rc.Extensions)
}

func (rc RunContext) displayDir() string {
	if rc.DisplayDir == "" {
		return rc.Dir
	}
	return rc.DisplayDir
}
