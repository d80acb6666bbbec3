package options

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/golden"
	"gopkg.in/yaml.v3"
)

// RunFile is the optional YAML file describing the tools and target environment of a
// run. Command-line flags override anything set here.
type RunFile struct {
	Compiler           string             `yaml:"compiler"`
	CompilerPrefix     []string           `yaml:"compiler_prefix"` // e.g. [valgrind, -q]
	Supervisor         string             `yaml:"supervisor"`
	DiffTool           string             `yaml:"diff_tool"`
	BadDiffTool        string             `yaml:"bad_diff_tool"`
	PerfStatsTool      string             `yaml:"perf_stats_tool"`
	PredicateEvaluator string             `yaml:"predicate_evaluator"`
	LaunchCmd          string             `yaml:"launch_cmd"`
	LauncherFormat     string             `yaml:"launcher_format"`
	Extensions         []string           `yaml:"extensions"`
	CompOpts           string             `yaml:"compopts"` // appended to every compile
	ExecOpts           string             `yaml:"execopts"` // appended to every execution
	Environment        golden.Environment `yaml:"environment"`
	Hooks              struct {
		Precomp string `yaml:"precomp"`
		Prediff string `yaml:"prediff"`
		Preexec string `yaml:"preexec"`
	} `yaml:"hooks"`
	Defaults struct {
		Timeout     time.Duration `yaml:"timeout"`
		KillTimeout time.Duration `yaml:"kill_timeout"`
		NumLocales  int           `yaml:"num_locales"`
		NumTrials   int           `yaml:"num_trials"`
		Futures     int           `yaml:"futures"`
	} `yaml:"defaults"`
}

// LoadRunFile reads a run file from path
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}

	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing run file: %w", err)
	}
	if _, err := ParseFuturesMode(rf.Defaults.Futures); err != nil {
		return nil, fmt.Errorf("parsing run file: %w", err)
	}
	return &rf, nil
}
