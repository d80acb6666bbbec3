package options

import "strings"

// Category names one kind of option file
type Category string

const (
	CategoryCompOpts     Category = "compopts"
	CategoryLastCompOpts Category = "lastcompopts"
	CategoryExecOpts     Category = "execopts"
	CategoryLastExecOpts Category = "lastexecopts"
	CategoryExecEnv      Category = "execenv"
	CategoryTimeout      Category = "timeout"
	CategoryKillTimeout  Category = "killtimeout"
	CategoryNumLocales   Category = "numlocales"
	CategoryNumTrials    Category = "numtrials"
	CategoryCatFiles     Category = "catfiles"
	CategoryPrecomp      Category = "precomp"
	CategoryPrediff      Category = "prediff"
	CategoryPreexec      Category = "preexec"
	CategorySkipIf       Category = "skipif"
	CategorySuppressIf   Category = "suppressif"
	CategoryFuture       Category = "future"
	CategoryNoExec       Category = "noexec"
	CategoryNoTest       Category = "notest"
	CategoryStdin        Category = "stdin"
	CategoryCompStdin    Category = "compstdin"
	CategoryPerfKeys     Category = "keys"
)

// perfAware categories have a performance-mode variant of their file
var perfAware = map[Category]bool{
	CategoryCompOpts:   true,
	CategoryExecOpts:   true,
	CategoryExecEnv:    true,
	CategoryTimeout:    true,
	CategoryNumLocales: true,
	CategoryNumTrials:  true,
	CategoryPerfKeys:   true,
}

// PerfAware reports whether a category has a performance-mode file
func (c Category) PerfAware() bool {
	return perfAware[c]
}

// DefaultPerfLabel is the label used when performance mode is enabled without one
const DefaultPerfLabel = "perf"

// Mode is either normal or performance mode with a label
type Mode struct {
	label string
}

// Normal is the default mode
var Normal = Mode{}

// Performance returns the performance mode for label, defaulting to "perf"
func Performance(label string) Mode {
	if label == "" {
		label = DefaultPerfLabel
	}
	return Mode{label: label}
}

// IsPerformance reports whether m is a performance mode
func (m Mode) IsPerformance() bool {
	return m.label != ""
}

// Label returns the performance label, empty in normal mode
func (m Mode) Label() string {
	return m.label
}

func (m Mode) String() string {
	if !m.IsPerformance() {
		return "normal"
	}
	return "performance(" + m.label + ")"
}

// label applies only to categories that have a performance variant
func (m Mode) labelFor(c Category) string {
	if c.PerfAware() {
		return m.label
	}
	return ""
}

// FileName returns the directory-wide file for a category, e.g. COMPOPTS or PERFCOMPOPTS
func FileName(c Category, m Mode) string {
	return strings.ToUpper(m.labelFor(c) + string(c))
}

// TestFileName returns the per-test file for a category, e.g. foo.compopts or foo.perfcompopts
func TestFileName(test string, c Category, m Mode) string {
	return test + Suffix(c, m)
}

// Suffix returns the per-test file suffix for a category
func Suffix(c Category, m Mode) string {
	return "." + m.labelFor(c) + string(c)
}

// DirCandidates lists directory-wide files in precedence order: the performance file
// (when applicable) before the normal one
func DirCandidates(c Category, m Mode) []string {
	if m.IsPerformance() && c.PerfAware() {
		return []string{FileName(c, m), FileName(c, Normal)}
	}
	return []string{FileName(c, Normal)}
}

// TestCandidates lists per-test files in precedence order
func TestCandidates(test string, c Category, m Mode) []string {
	if m.IsPerformance() && c.PerfAware() {
		return []string{TestFileName(test, c, m), TestFileName(test, c, Normal)}
	}
	return []string{TestFileName(test, c, Normal)}
}
