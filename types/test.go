package types

import (
	"fmt"
	"strings"
	"time"
)

// Outcome represents the possible classifications of a single variant execution
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeOutputMismatch     Outcome = "mismatch"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeLauncherInfraError Outcome = "launcher-error"
	OutcomeMissingGoldenFile  Outcome = "missing-good"
	OutcomeSkipped            Outcome = "skip"
	OutcomeFutureAnnotated    Outcome = "known-failure"
	OutcomeMissingExecutable  Outcome = "missing-executable"
)

// AllOutcomes lists every outcome in reporting order
var AllOutcomes = []Outcome{
	OutcomeSuccess,
	OutcomeFutureAnnotated,
	OutcomeSkipped,
	OutcomeOutputMismatch,
	OutcomeTimeout,
	OutcomeLauncherInfraError,
	OutcomeMissingGoldenFile,
	OutcomeMissingExecutable,
}

// IsFailure reports whether the outcome should fail the directory run
func (o Outcome) IsFailure() bool {
	switch o {
	case OutcomeSuccess, OutcomeSkipped, OutcomeFutureAnnotated:
		return false
	default:
		return true
	}
}

// Phase identifies which step of a variant produced an outcome
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseCompile Phase = "compile"
	PhaseExecute Phase = "execute"
)

// TestCase is a single discovered test source file
type TestCase struct {
	Name   string // base name without the source extension
	Source string // file name as found in the directory
}

// CompileVariant is one resolved compile option string.
// Index is 0 when the test has a single blank compile variant.
type CompileVariant struct {
	Index    int
	Options  string
	GoodFile string // explicit golden basename from a trailing "#<goodfile>"
}

// ExecVariant is one resolved execution option string
type ExecVariant struct {
	Index    int
	Options  string
	GoodFile string
}

// TimeoutSpec holds the deadlines applied to a test
type TimeoutSpec struct {
	Compile time.Duration
	Execute time.Duration
	Kill    time.Duration
}

// NewTimeoutSpec builds a TimeoutSpec whose compile deadline is twice the execute deadline
func NewTimeoutSpec(execute, kill time.Duration) TimeoutSpec {
	return TimeoutSpec{
		Compile: 2 * execute,
		Execute: execute,
		Kill:    kill,
	}
}

// OutcomeRecord is the immutable result of one (compile, exec, trial) triple
type OutcomeRecord struct {
	Test            string
	Phase           Phase
	CompileIndex    int
	ExecIndex       int
	Trial           int
	Outcome         Outcome
	Future          string // annotation such as "Future (reason) "; empty for ordinary tests
	BadFileMismatch bool   // a future test whose output did not match its .bad file either
	Detail          string
	Artifact        string // comparison artifact left on disk, empty once deleted
	Duration        time.Duration
}

// Key returns a stable identifier for the record's triple
func (r OutcomeRecord) Key() string {
	return fmt.Sprintf("%s#%d-%d/%d", r.Test, r.CompileIndex, r.ExecIndex, r.Trial)
}

// DisplayName renders the test name with the variant indices that are set
func (r OutcomeRecord) DisplayName() string {
	var parts []string
	if r.CompileIndex != 0 {
		parts = append(parts, fmt.Sprintf("compopts: %d", r.CompileIndex))
	}
	if r.ExecIndex != 0 {
		parts = append(parts, fmt.Sprintf("execopts: %d", r.ExecIndex))
	}
	if r.Trial > 1 {
		parts = append(parts, fmt.Sprintf("trial: %d", r.Trial))
	}
	if len(parts) == 0 {
		return r.Test
	}
	return fmt.Sprintf("%s (%s)", r.Test, strings.Join(parts, ", "))
}

// IsFuture reports whether the record belongs to a future or suppressed test
func (r OutcomeRecord) IsFuture() bool {
	return r.Future != ""
}
