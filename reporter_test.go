package subtest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-subtest/types"
)

func sampleResult() *types.DirectoryResult {
	result := &types.DirectoryResult{RunID: "run-1", Dir: "release/examples", Duration: 3 * time.Second}
	result.Add(types.OutcomeRecord{Test: "hello", Phase: types.PhaseExecute, Outcome: types.OutcomeSuccess, Duration: time.Second})
	result.Add(types.OutcomeRecord{Test: "fib", Phase: types.PhaseExecute, ExecIndex: 2, Outcome: types.OutcomeOutputMismatch, Detail: "fib.exec.out.tmp"})
	result.Add(types.OutcomeRecord{Test: "todo", Phase: types.PhaseExecute, Outcome: types.OutcomeOutputMismatch, Future: "Future (bug) "})
	result.Add(types.OutcomeRecord{Test: "slow", Phase: types.PhaseSetup, Outcome: types.OutcomeSkipped})
	return result
}

func TestRenderResultsTable(t *testing.T) {
	var buf bytes.Buffer
	summary := renderResultsTable(&buf, sampleResult())

	assert.NotEmpty(t, buf.String())
	assert.NotContains(t, summary, "\x1b[")
	assert.Contains(t, summary, "release/examples")
	assert.Contains(t, summary, "fib (execopts: 2)")
	assert.Contains(t, summary, "✗ mismatch")
	assert.Contains(t, summary, "~ mismatch")
	assert.Contains(t, summary, "✓ pass")
	assert.Contains(t, summary, "- skip")
	assert.Contains(t, summary, "1 passed, 1 failed")
	assert.Contains(t, summary, "1 futures")

	// every record keeps its phase in the stored summary
	assert.Equal(t, 3, strings.Count(summary, "execute"))
	assert.Contains(t, summary, "setup")
}

func TestGetOutcomeString(t *testing.T) {
	testCases := []struct {
		rec      types.OutcomeRecord
		expected string
	}{
		{types.OutcomeRecord{Outcome: types.OutcomeSuccess}, "✓ pass"},
		{types.OutcomeRecord{Outcome: types.OutcomeSkipped}, "- skip"},
		{types.OutcomeRecord{Outcome: types.OutcomeFutureAnnotated, Future: "Future (x) "}, "~ known-failure"},
		{types.OutcomeRecord{Outcome: types.OutcomeTimeout}, "✗ timeout"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, getOutcomeString(tc.rec))
	}
}

func TestMetricsReporterTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subtest.prom")
	reporter := NewDefaultMetricsReporter(path)

	require.NoError(t, reporter.ReportResults("run-1", sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "subtest_run_result")
	assert.Contains(t, string(data), `result="fail"`)
}

func TestMetricsReporterWithoutTextfile(t *testing.T) {
	result := &types.DirectoryResult{RunID: "run-2", Dir: "empty"}
	assert.NoError(t, NewDefaultMetricsReporter("").ReportResults("run-2", result))
	assert.Equal(t, "pass", runResultString(result))
}
