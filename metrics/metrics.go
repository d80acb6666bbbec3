// Package metrics exposes prometheus counters and gauges for test outcomes.
package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "subtest"
)

var (
	Debug                = false
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_total",
		Help:      "Count of variant outcomes",
	}, []string{
		"dir",
		"phase",
		"outcome",
	})

	variantDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "variant_duration_seconds",
		Help:      "Duration of compile and execute steps",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{
		"phase",
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Result of the last directory run (1 for the recorded result)",
	}, []string{
		"dir",
		"run_id",
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_records",
		Help:      "Number of records of the last directory run by category",
	}, []string{
		"dir",
		"run_id",
		"category",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last directory run",
	}, []string{
		"dir",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc", "m", "errors_total", "error", error)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	RecordError(fmt.Sprintf("%s.%s", label, errToLabel(err)))
}

// RecordOutcome counts one outcome record and observes its duration
func RecordOutcome(dir string, rec *types.OutcomeRecord) {
	if !slices.Contains(types.AllOutcomes, rec.Outcome) {
		log.Error("RecordOutcome - invalid outcome", "outcome", rec.Outcome)
		return
	}
	if Debug {
		log.Debug("metric inc", "m", "outcomes_total", "dir", dir, "phase", rec.Phase, "outcome", rec.Outcome)
	}
	outcomesTotal.WithLabelValues(dir, string(rec.Phase), string(rec.Outcome)).Inc()
	if rec.Duration > 0 {
		variantDuration.WithLabelValues(string(rec.Phase)).Observe(rec.Duration.Seconds())
	}
}

// RecordRun sets the gauges describing a finished directory run
func RecordRun(dir, runID, result string, stats types.ResultStats, duration time.Duration) {
	runResult.WithLabelValues(dir, runID, result).Set(1)
	runTests.WithLabelValues(dir, runID, "total").Set(float64(stats.Total))
	runTests.WithLabelValues(dir, runID, "passed").Set(float64(stats.Passed))
	runTests.WithLabelValues(dir, runID, "failed").Set(float64(stats.Failed))
	runTests.WithLabelValues(dir, runID, "skipped").Set(float64(stats.Skipped))
	runTests.WithLabelValues(dir, runID, "futures").Set(float64(stats.Futures))
	runDuration.WithLabelValues(dir, runID).Set(duration.Seconds())
}

// WriteTextfile writes the default registry in the node-exporter textfile format
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
