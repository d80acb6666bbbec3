package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	subtest "github.com/ethereum-optimism/infra/op-subtest"
	"github.com/ethereum-optimism/infra/op-subtest/exitcodes"
	"github.com/ethereum-optimism/infra/op-subtest/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-subtest"
	app.Usage = "Compile-and-execute regression test driver"
	app.Description = "op-subtest compiles every test of a directory under each option variant, runs it, and compares its output with the expected output"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}
	return app
}

// exitCode maps a run error to the process exit status
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case err == nil:
		return exitcodes.Success
	case subtest.IsConfigurationError(err):
		return exitcodes.ConfigFatal
	case subtest.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case subtest.IsTestFailureError(err):
		return exitcodes.TestFailure
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return exitcodes.TestFailure
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := subtest.NewConfig(ctx, log)
	if err != nil {
		// Bad flags or an unreadable run file abort the run with the configuration status
		return nil, subtest.NewConfigurationError("config", fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc, err := subtest.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		if subtest.IsConfigurationError(err) {
			return nil, err
		}
		return nil, subtest.NewRuntimeError(fmt.Errorf("failed to create subtest: %w", err))
	}

	return svc, nil
}
