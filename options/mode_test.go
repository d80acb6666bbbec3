package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerTestFileName(t *testing.T) {
	tests := []struct {
		category Category
		mode     Mode
		dir      string
		suffix   string
	}{
		{CategoryCompOpts, Normal, "COMPOPTS", ".compopts"},
		{CategoryCompOpts, Performance(""), "PERFCOMPOPTS", ".perfcompopts"},
		{CategoryExecOpts, Performance("gpu"), "GPUEXECOPTS", ".gpuexecopts"},
		{CategoryKillTimeout, Performance("perf"), "KILLTIMEOUT", ".killtimeout"},
		{CategoryPerfKeys, Performance("perf"), "PERFKEYS", ".perfkeys"},
		{CategoryFuture, Normal, "FUTURE", ".future"},
	}
	for _, tt := range tests {
		t.Run(string(tt.category)+"/"+tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.dir, FileName(tt.category, tt.mode))
			assert.Equal(t, "hello"+tt.suffix, TestFileName("hello", tt.category, tt.mode))
		})
	}
}

func TestPerTestCandidates(t *testing.T) {
	assert.Equal(t, []string{"PERFTIMEOUT", "TIMEOUT"}, DirCandidates(CategoryTimeout, Performance("")))
	assert.Equal(t, []string{"TIMEOUT"}, DirCandidates(CategoryTimeout, Normal))
	assert.Equal(t, []string{"a.perfexecenv", "a.execenv"}, TestCandidates("a", CategoryExecEnv, Performance("")))
	assert.Equal(t, []string{"a.prediff"}, TestCandidates("a", CategoryPrediff, Performance("")))
}

func TestMode(t *testing.T) {
	assert.False(t, Normal.IsPerformance())
	assert.Equal(t, "perf", Performance("").Label())
	assert.True(t, Performance("x").IsPerformance())
}

func TestFuturesMode(t *testing.T) {
	tests := []struct {
		mode      FuturesMode
		isFuture  bool
		hasSkipIf bool
		excluded  bool
	}{
		{FuturesSkip, true, false, true},
		{FuturesSkip, false, false, false},
		{FuturesAll, true, false, false},
		{FuturesOnly, false, false, true},
		{FuturesOnly, true, false, false},
		{FuturesWithSkipIf, true, false, true},
		{FuturesWithSkipIf, true, true, false},
		{FuturesWithSkipIf, false, false, false},
	}
	for _, tt := range tests {
		_, excluded := tt.mode.Exclude(tt.isFuture, tt.hasSkipIf)
		assert.Equal(t, tt.excluded, excluded, "mode %d future %v skipif %v", tt.mode, tt.isFuture, tt.hasSkipIf)
	}

	_, err := ParseFuturesMode(4)
	assert.Error(t, err)
	m, err := ParseFuturesMode(2)
	assert.NoError(t, err)
	assert.Equal(t, FuturesOnly, m)
}
