// Package variants expands resolved option lists into indexed compile and exec variants
// and derives the artifact names that depend on those indices.
package variants

import (
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-subtest/types"
)

const (
	compileLogSuffix = ".comp.out.tmp"
	execLogSuffix    = ".exec.out.tmp"
)

// Set holds every variant of one test
type Set struct {
	Compile []types.CompileVariant
	Exec    []types.ExecVariant
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// splitGood separates "<opts> #<good>" into its parts
func splitGood(line string) (opts, good string, hasGood bool) {
	opts, rest, ok := strings.Cut(line, "#")
	if !ok {
		return line, "", false
	}
	// only the segment up to a further '#' names the file
	good, _, _ = strings.Cut(rest, "#")
	return opts, strings.TrimSpace(good), true
}

// ExpandCompile cross-multiplies directory and test compile options, each side
// defaulting to a single blank entry. Non-blank results are numbered from 1 in input
// order; a blank result keeps index 0.
func ExpandCompile(dirOpts, testOpts []string) []types.CompileVariant {
	if len(dirOpts) == 0 {
		dirOpts = []string{""}
	}
	if len(testOpts) == 0 {
		testOpts = []string{""}
	}

	var out []types.CompileVariant
	index := 0
	for _, d := range dirOpts {
		for _, t := range testOpts {
			joined := d + " " + t
			if isBlank(joined) {
				out = append(out, types.CompileVariant{})
				continue
			}
			opts, good, _ := splitGood(joined)
			index++
			out = append(out, types.CompileVariant{
				Index:    index,
				Options:  strings.TrimSpace(opts),
				GoodFile: good,
			})
		}
	}
	return out
}

// ExpandExec turns the per-test exec option lines into a flat list. compileCount is the
// number of compile variants the list is paired with; indices are assigned to non-blank
// entries unless there is exactly one compile and one exec variant.
func ExpandExec(lines []string, compileCount int) []types.ExecVariant {
	if len(lines) == 0 {
		lines = []string{""}
	}
	onlyOne := compileCount == 1 && len(lines) == 1

	out := make([]types.ExecVariant, 0, len(lines))
	index := 0
	for _, line := range lines {
		v := types.ExecVariant{}
		if !onlyOne && !isBlank(line) {
			index++
			v.Index = index
		}
		opts, good, hasGood := splitGood(line)
		v.Options = strings.TrimSpace(opts)
		if hasGood {
			// only the first token names the file
			if fields := strings.Fields(good); len(fields) > 0 {
				v.GoodFile = fields[0]
			}
		}
		out = append(out, v)
	}
	return out
}

// Expand builds the full variant set for one test
func Expand(dirCompOpts, testCompOpts, execLines []string) Set {
	compile := ExpandCompile(dirCompOpts, testCompOpts)
	return Set{
		Compile: compile,
		Exec:    ExpandExec(execLines, len(compile)),
	}
}

// OnlyOne reports whether the test has exactly one compile and one exec variant
func (s Set) OnlyOne() bool {
	return len(s.Compile) == 1 && len(s.Exec) == 1
}

// Groups is the number of distinct (compile, exec) executions per trial
func (s Set) Groups() int {
	return len(s.Compile) * len(s.Exec)
}

// CompileLogName names the compiler output log of a compile variant
func CompileLogName(name string, cv types.CompileVariant) string {
	if cv.Index == 0 {
		return name + compileLogSuffix
	}
	return fmt.Sprintf("%s.%d%s", name, cv.Index, compileLogSuffix)
}

// ExecLogName names the execution output log of a (compile, exec) pair. When the test
// has more than one variant the name always carries both indices, using 0 for a blank side.
func (s Set) ExecLogName(name string, cv types.CompileVariant, ev types.ExecVariant) string {
	if s.OnlyOne() {
		return name + execLogSuffix
	}
	return fmt.Sprintf("%s.%d-%d%s", name, cv.Index, ev.Index, execLogSuffix)
}

// ExecLogNames lists the exec logs of a compile variant in exec order
func (s Set) ExecLogNames(name string, cv types.CompileVariant) []string {
	names := make([]string, 0, len(s.Exec))
	for _, ev := range s.Exec {
		names = append(names, s.ExecLogName(name, cv, ev))
	}
	return names
}

// GoldenSuffixes lists the disambiguation suffixes for an exec golden file, most
// specific first. An explicit golden file is never disambiguated.
func (s Set) GoldenSuffixes(cv types.CompileVariant, ev types.ExecVariant) []string {
	if s.OnlyOne() || GoodFile(cv, ev) != "" {
		return []string{""}
	}
	return []string{fmt.Sprintf(".%d-%d", cv.Index, ev.Index), ""}
}

// GoodFile is the explicit golden file of a pair; the exec entry overrides the compile one
func GoodFile(cv types.CompileVariant, ev types.ExecVariant) string {
	if ev.GoodFile != "" {
		return ev.GoodFile
	}
	return cv.GoodFile
}

// GoldenBasename strips the ".good" extension from an explicit golden file, or returns
// the test name when there is none
func GoldenBasename(testName, explicit string) string {
	if explicit == "" {
		return testName
	}
	return strings.Replace(explicit, ".good", "", 1)
}

// Variation renders " (compopts: c, execopts: e)" for the sides that have more than one
// variant. ev may be nil for compile-only messages.
func (s Set) Variation(cv types.CompileVariant, ev *types.ExecVariant) string {
	var parts []string
	if cv.Index != 0 && len(s.Compile) > 1 {
		parts = append(parts, fmt.Sprintf("compopts: %d", cv.Index))
	}
	if ev != nil && ev.Index != 0 && len(s.Exec) > 1 {
		parts = append(parts, fmt.Sprintf("execopts: %d", ev.Index))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
