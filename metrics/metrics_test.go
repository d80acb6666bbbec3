package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads the current value of a counter or gauge
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "nil error", err: nil},
		{name: "simple error", err: errors.New("test error")},
		{name: "error with special chars", err: errors.New("test@error#123")},
		{name: "error with multiple spaces", err: errors.New("test   error")},
	}

	validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Regexp(t, validLabelRegex, errToLabel(tt.err))
		})
	}
}

func TestRecordOutcome(t *testing.T) {
	dir := "record-outcome"
	rec := &types.OutcomeRecord{Test: "hello", Phase: types.PhaseExecute, Outcome: types.OutcomeTimeout, Duration: time.Second}
	RecordOutcome(dir, rec)
	RecordOutcome(dir, rec)
	assert.Equal(t, 2.0, value(t, outcomesTotal.WithLabelValues(dir, "execute", "timeout")))

	// unknown outcomes are dropped
	RecordOutcome(dir, &types.OutcomeRecord{Phase: types.PhaseExecute, Outcome: "weird"})
	assert.Equal(t, 0.0, value(t, outcomesTotal.WithLabelValues(dir, "execute", "weird")))
}

func TestRecordRun(t *testing.T) {
	stats := types.ResultStats{Total: 5, Passed: 3, Failed: 1, Skipped: 1}
	RecordRun("record-run", "id-1", "fail", stats, 90*time.Second)

	assert.Equal(t, 1.0, value(t, runResult.WithLabelValues("record-run", "id-1", "fail")))
	assert.Equal(t, 5.0, value(t, runTests.WithLabelValues("record-run", "id-1", "total")))
	assert.Equal(t, 1.0, value(t, runTests.WithLabelValues("record-run", "id-1", "failed")))
	assert.Equal(t, 90.0, value(t, runDuration.WithLabelValues("record-run", "id-1")))
}

func TestRecordErrorDetails(t *testing.T) {
	RecordErrorDetails("cleanup", errors.New("device busy"))
	assert.Equal(t, 1.0, value(t, errorsTotal.WithLabelValues("cleanup.device_busy")))
	RecordErrorDetails("cleanup", nil)
}

func TestWriteTextfile(t *testing.T) {
	RecordRun("textfile", "id-2", "pass", types.ResultStats{Total: 1, Passed: 1}, time.Second)
	path := filepath.Join(t.TempDir(), "subtest.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `subtest_run_duration_seconds{dir="textfile",run_id="id-2"} 1`)
}
