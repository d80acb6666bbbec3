// Package subtest runs the compile-and-execute regression tests of one directory and
// reports how every variant compared with its expected output.
package subtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-subtest/executor"
	"github.com/ethereum-optimism/infra/op-subtest/exitcodes"
	"github.com/ethereum-optimism/infra/op-subtest/logging"
	"github.com/ethereum-optimism/infra/op-subtest/runner"
	"github.com/ethereum-optimism/infra/op-subtest/service"
	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// Subtest is the cliapp.Lifecycle of a single directory run
type Subtest struct {
	config   *Config
	version  string
	bounded  executor.BoundedRunner
	service  *service.Service
	reporter MetricsReporter
	console  io.Writer
	result   *types.DirectoryResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New binds the run-wide bounded runner. A strategy that cannot be constructed is a
// configuration error.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Subtest, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating subtest with config",
		"testDir", config.TestDir,
		"compiler", config.Compiler,
		"strategy", config.Strategy,
		"perf", config.Perf)

	bounded, err := executor.New(config.ExecutorConfig())
	if err != nil {
		return nil, NewConfigurationError(string(config.Strategy), fmt.Errorf("failed to create bounded runner: %w", err))
	}

	s := &Subtest{
		config:           config,
		version:          version,
		bounded:          bounded,
		reporter:         NewDefaultMetricsReporter(config.MetricsTextfile),
		console:          os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	if config.Serve {
		s.service = service.New(service.Config{
			HealthzAddr: config.HealthzAddr,
			MetricsAddr: config.MetricsAddr,
			Log:         config.Log,
		})
	}
	return s, nil
}

// Start runs the directory once and then asks the application to shut down.
// Start implements the cliapp.Lifecycle interface.
func (s *Subtest) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.running.Store(true)
	if s.service != nil {
		s.service.Start(ctx)
	}

	if err := s.runDirectory(ctx); err != nil {
		if IsConfigurationError(err) || IsRuntimeError(err) {
			return err
		}
		s.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	if s.result.Failed() {
		s.config.Log.Warn("Directory run completed with failures", "failed", s.result.Stats.Failed)
		return NewTestFailureError(s.result.String())
	}

	s.config.Log.Info("Tests completed, exiting")
	go func() {
		s.shutdownCallback(nil)
	}()
	return nil
}

// runDirectory creates the run's event log, drives every test and reports the result
func (s *Subtest) runDirectory(ctx context.Context) error {
	runID := uuid.New().String()

	events, err := logging.NewEventLog(s.config.LogDir, runID, s.console, s.config.Log)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create event log: %w", err))
	}
	defer func() {
		if err := events.Close(); err != nil {
			s.config.Log.Warn("Failed to close event log", "err", err)
		}
	}()

	driver, err := runner.NewTestDriver(runner.Config{
		Run:    s.config.RunContext(runID),
		Runner: s.bounded,
		Events: events,
		Log:    s.config.Log,
	})
	if err != nil {
		return NewConfigurationError("run context", err)
	}

	s.config.Log.Info("Running directory", "runID", runID, "dir", s.config.TestDir)
	result, err := driver.Run(ctx)
	s.result = result
	if err != nil {
		return err
	}

	summary := renderResultsTable(s.console, result)
	if err := events.LogSummary(result.String() + "\n" + summary + "\n"); err != nil {
		s.config.Log.Warn("Failed to write summary", "err", err)
	}
	if err := s.reporter.ReportResults(runID, result); err != nil {
		s.config.Log.Warn("Failed to report metrics", "err", err)
	}
	s.config.Log.Info("Directory finished", "summary", result.String(), "logDir", events.LogDir())
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (s *Subtest) Stop(ctx context.Context) error {
	if !s.running.Load() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)
	if s.service != nil {
		s.service.Shutdown()
	}
	s.config.Log.Info("op-subtest stopped successfully")
	return nil
}

// Stopped returns true if the run is not in progress.
// Stopped implements the cliapp.Lifecycle interface.
func (s *Subtest) Stopped() bool {
	return !s.running.Load()
}

// Result returns the result of the last run, nil before Start
func (s *Subtest) Result() *types.DirectoryResult {
	return s.result
}
