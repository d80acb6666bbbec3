package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeoutSpec(t *testing.T) {
	spec := NewTimeoutSpec(30*time.Second, 5*time.Second)
	assert.Equal(t, 60*time.Second, spec.Compile)
	assert.Equal(t, 30*time.Second, spec.Execute)
	assert.Equal(t, 5*time.Second, spec.Kill)
}

func TestOutcomeIsFailure(t *testing.T) {
	tests := []struct {
		outcome Outcome
		failure bool
	}{
		{OutcomeSuccess, false},
		{OutcomeSkipped, false},
		{OutcomeFutureAnnotated, false},
		{OutcomeOutputMismatch, true},
		{OutcomeTimeout, true},
		{OutcomeLauncherInfraError, true},
		{OutcomeMissingGoldenFile, true},
		{OutcomeMissingExecutable, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.failure, tt.outcome.IsFailure())
		})
	}
	assert.Len(t, AllOutcomes, len(tests))
}

func TestOutcomeRecordDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		record   OutcomeRecord
		expected string
	}{
		{"unindexed", OutcomeRecord{Test: "dir/hello"}, "dir/hello"},
		{"compile only", OutcomeRecord{Test: "hello", CompileIndex: 2}, "hello (compopts: 2)"},
		{"both", OutcomeRecord{Test: "hello", CompileIndex: 1, ExecIndex: 3}, "hello (compopts: 1, execopts: 3)"},
		{"trial", OutcomeRecord{Test: "hello", ExecIndex: 1, Trial: 2}, "hello (execopts: 1, trial: 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.record.DisplayName())
		})
	}
}

func TestDirectoryResultAdd(t *testing.T) {
	result := &DirectoryResult{RunID: "run", Dir: "tests"}
	result.Add(OutcomeRecord{Test: "a", Outcome: OutcomeSuccess})
	result.Add(OutcomeRecord{Test: "b", Outcome: OutcomeOutputMismatch})
	result.Add(OutcomeRecord{Test: "c", Outcome: OutcomeSkipped})
	result.Add(OutcomeRecord{Test: "d", Outcome: OutcomeOutputMismatch, Future: "Future (bug) "})
	result.Add(OutcomeRecord{Test: "e", Outcome: OutcomeFutureAnnotated, Future: "Future (bug) "})

	require.Len(t, result.Records, 5)
	assert.Equal(t, 5, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.Passed)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Equal(t, 2, result.Stats.Futures)
	assert.Equal(t, 2, result.Stats.ByOutcome[OutcomeOutputMismatch])
	assert.True(t, result.Failed())
	assert.Contains(t, result.String(), "5 variants")
}

func TestOutcomeRecordKeyIsUnique(t *testing.T) {
	a := OutcomeRecord{Test: "t", CompileIndex: 1, ExecIndex: 2, Trial: 1}
	b := OutcomeRecord{Test: "t", CompileIndex: 1, ExecIndex: 2, Trial: 2}
	assert.NotEqual(t, a.Key(), b.Key())
}
