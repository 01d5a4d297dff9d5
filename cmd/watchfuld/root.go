package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/time/rate"

	"github.com/kylerisse/watchful/pkg/check"
	"github.com/kylerisse/watchful/pkg/check/builtin"
	"github.com/kylerisse/watchful/pkg/config"
	"github.com/kylerisse/watchful/pkg/monitor"
	"github.com/kylerisse/watchful/pkg/notify"
	"github.com/kylerisse/watchful/pkg/server"
	"github.com/kylerisse/watchful/pkg/status"
	"github.com/kylerisse/watchful/pkg/telemetry"
)

type options struct {
	configPath string
	daemon     bool
	interval   time.Duration
	clear      bool
	verbose    bool
	listen     string
}

func newRootCmd(out io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "watchfuld",
		Short: "Run host health checks and alert on state changes",
		Long: `watchfuld runs the configured checks, compares every result with the
last recorded state and sends a notification for each key whose state changed.

Examples:
	# Run every check once and exit
	watchfuld -c /etc/watchful/config.json

	# Run every five minutes and serve the status API
	watchfuld -c /etc/watchful/config.json -d -t 5m

	# Forget all recorded state
	watchfuld -c /etc/watchful/config.json --clear`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("interval") {
				opts.interval = 0
			}
			if !cmd.Flags().Changed("listen") {
				opts.listen = ""
			}
			return run(cmd.Context(), opts, out, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "config.json", "Path to the configuration file")
	f.BoolVarP(&opts.daemon, "daemon", "d", false, "Keep running and check every interval")
	f.DurationVarP(&opts.interval, "interval", "t", config.DefaultInterval, "Check interval in daemon mode (overrides the config file)")
	f.BoolVar(&opts.clear, "clear", false, "Clear all recorded status and exit")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	f.StringVar(&opts.listen, "listen", config.DefaultListen, "Status API listen address in daemon mode, \"-\" disables it (overrides the config file)")

	return cmd
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newSink(cfg *config.Config, out io.Writer) notify.Sink {
	if cfg.Telegram.Enabled() {
		return &notify.Telegram{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
			APIURL: cfg.Telegram.APIURL,
		}
	}
	return notify.NewConsole(out)
}

func run(ctx context.Context, opts options, out, errOut io.Writer) error {
	logger := newLogger(errOut, opts.verbose)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	if opts.interval > 0 {
		cfg.Monitor.Interval = config.Duration(opts.interval)
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	if !opts.daemon {
		cfg.Server.Listen = config.ListenDisabled
	}

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("could not create metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warnf("Metrics shutdown: %v", err)
		}
	}()
	metrics, err := telemetry.New(provider.Meter(telemetry.MeterName))
	if err != nil {
		return err
	}

	ch, err := notify.NewChannel(newSink(cfg, out),
		notify.WithLogger(logger),
		notify.WithGrouping(cfg.Telegram.GroupMessages),
		notify.WithRateLimit(rate.Limit(cfg.Telegram.Rate), cfg.Telegram.Burst),
		notify.WithTelemetry(metrics),
	)
	if err != nil {
		return err
	}

	mon, err := monitor.New(status.NewFile(cfg.Monitor.StatusFile, logger),
		monitor.WithCheckTimeout(time.Duration(cfg.Monitor.CheckTimeout)),
		monitor.WithLogger(logger),
		monitor.WithNotifier(ch),
		monitor.WithTelemetry(metrics),
	)
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	if err := metrics.RegisterStatusGauge(mon.Store().Statuses); err != nil {
		return fmt.Errorf("could not register status gauge: %w", err)
	}

	if opts.clear {
		if err := mon.ClearStatus(); err != nil {
			logger.Errorf("%v", err)
			return err
		}
		return nil
	}

	checks, err := builtin.Registry().Build(cfg.Checks, check.Env{Status: mon, Logger: logger})
	if err != nil {
		logger.Errorf("Invalid check configuration: %v", err)
		return err
	}
	if len(checks) == 0 {
		logger.Warn("No checks configured")
	}

	srv, err := server.New(cfg, mon, ch, checks, logger,
		server.WithTelemetry(metrics),
		server.WithGatherer(reg),
	)
	if err != nil {
		return err
	}

	if !opts.daemon {
		_, err := srv.RunOnce(ctx)
		srv.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Errorf("%v", err)
		return err
	}
	logger.Info("Server is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("Shutting down server...")
	srv.Stop()
	return nil
}
