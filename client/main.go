// Command authprobe drives load against an authentication service and verifies its hardening features: hash
// concurrency limiting, per-identity rate limiting, refresh token replay detection and the metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/croessner/authprobe/client/engine"
	"github.com/croessner/authprobe/client/report"
	"github.com/croessner/authprobe/client/scenario"
	"github.com/croessner/authprobe/server/definitions"
	svrlog "github.com/croessner/authprobe/server/log"
	"github.com/croessner/authprobe/server/monitoring"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

const exitSetup = 2

var version = "dev"

type options struct {
	verbose     bool
	showVersion bool
}

func loadConfig(args []string) (*engine.Config, options, error) {
	var opts options

	fs := pflag.NewFlagSet("authprobe", pflag.ContinueOnError)
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Show the metric evidence of every scenario")
	fs.BoolVarP(&opts.showVersion, "version", "V", false, "Print the version and exit")

	v := viper.New()

	if err := engine.BindFlags(fs, v); err != nil {
		return nil, opts, err
	}

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}

	if opts.showVersion {
		return nil, opts, nil
	}

	configFile, _ := fs.GetString("config")

	cfg, err := engine.Load(v, configFile)

	return cfg, opts, err
}

func tracingConfig(cfg *engine.Config) monitoring.Config {
	return monitoring.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Propagators: cfg.Tracing.Propagators,
	}
}

func main() {
	cfg, opts, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitSetup)
	}

	if opts.showVersion {
		fmt.Printf("authprobe %s\n", version)

		return
	}

	logger, err := svrlog.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON, report.UseColor(cfg.Color), "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitSetup)
	}

	fx.New(
		fx.Supply(cfg, opts),
		fx.Provide(func() log.Logger { return logger }),
		fx.WithLogger(func() fxevent.Logger { return svrlog.NewFxEventLogger(logger) }),
		engine.Module,
		scenario.Module,
		fx.Invoke(runApp),
	).Run()
}

// runApp executes the scenario list once and shuts the application down with the report's exit code.
func runApp(lifecycle fx.Lifecycle, cfg *engine.Config, opts options, runner *scenario.Runner, logger log.Logger, shutdown fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	tel := monitoring.New(logger)

	lifecycle.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := tel.Start(startCtx, tracingConfig(cfg), version, "authprobe"); err != nil {
				level.Warn(logger).Log(definitions.LogKeyMsg, "Tracing disabled", definitions.LogKeyError, err)
			}

			go func() {
				defer close(done)

				agg := report.NewAggregator()

				if err := runner.RunAll(ctx, agg); err != nil {
					level.Error(logger).Log(definitions.LogKeyMsg, "Run aborted", definitions.LogKeyError, err)

					_ = shutdown.Shutdown(fx.ExitCode(exitSetup))

					return
				}

				if err := agg.Render(os.Stdout, report.OptionsFor(cfg.Color, opts.verbose)); err != nil {
					level.Error(logger).Log(definitions.LogKeyMsg, "Rendering the report failed", definitions.LogKeyError, err)
				}

				_ = shutdown.Shutdown(fx.ExitCode(agg.ExitCode()))
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
			case <-stopCtx.Done():
			}

			return tel.Shutdown(stopCtx)
		},
	})
}
