package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/usbcamd/usbcamd/internal/config"
	"github.com/usbcamd/usbcamd/internal/events"
	"github.com/usbcamd/usbcamd/internal/logging"
	"github.com/usbcamd/usbcamd/internal/metrics"
	"github.com/usbcamd/usbcamd/internal/poller"
	"github.com/usbcamd/usbcamd/internal/session"
)

// runOptions is the flat, TOML/env/flag-bound configuration for the
// run subcommand.
type runOptions struct {
	Config string `help:"Path to configuration file" toml:"-"`

	IgnoreNodes []string `help:"Video nodes to skip during output-device discovery" toml:"device.ignore_nodes" env:"IGNORE_NODES"`
	MetricsAddr string   `help:"Address to serve Prometheus metrics on" toml:"metrics.addr" env:"METRICS_ADDR"`

	PollerTimeoutMs int `help:"Readiness poller wait bound in milliseconds" toml:"device.poller_timeout_ms" env:"POLLER_TIMEOUT_MS"`

	LoggingLevel   string `help:"Global logging level" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPoller  string `help:"Poller logging level" toml:"logging.poller" env:"LOGGING_POLLER"`
	LoggingV4L2    string `help:"V4L2 logging level" toml:"logging.v4l2" env:"LOGGING_V4L2"`
	LoggingUVC     string `help:"UVC control logging level" toml:"logging.uvc" env:"LOGGING_UVC"`
	LoggingEncoder string `help:"Encoder logging level" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingSession string `help:"Session orchestrator logging level" toml:"logging.session" env:"LOGGING_SESSION"`
}

// runOptionsDefaults returns a runOptions populated with the same
// defaults used at startup. The config watcher reloads against a fresh
// copy of this so a value removed from usbcamd.toml falls back to the
// default instead of sticking at whatever was last loaded.
func runOptionsDefaults() *runOptions {
	return &runOptions{
		MetricsAddr:     ":9090",
		PollerTimeoutMs: poller.WaitTimeout,
		LoggingLevel:    "info",
		LoggingFormat:   "text",
		LoggingPoller:   "info",
		LoggingV4L2:     "info",
		LoggingUVC:      "info",
		LoggingEncoder:  "info",
		LoggingSession:  "info",
	}
}

// NewRunCmd builds the run subcommand: starts the UVC control-plane
// poller, opens the output device on demand, and serves metrics until
// interrupted.
func NewRunCmd() *cobra.Command {
	opts := runOptionsDefaults()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gadget daemon",
		Long:  `Watches for a V4L2 output-capable gadget node, negotiates a UVC streaming format, and runs the encode pipeline until the host disconnects or the process is signaled to stop.`,
		Run: func(c *cobra.Command, _ []string) {
			runDaemon(c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "usbcamd.toml", "Path to configuration file")
	cmd.Flags().StringSliceVar(&opts.IgnoreNodes, "ignore-nodes", nil, "Video nodes to skip during output-device discovery")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", opts.MetricsAddr, "Address to serve Prometheus metrics on")
	cmd.Flags().IntVar(&opts.PollerTimeoutMs, "poller-timeout-ms", opts.PollerTimeoutMs, "Readiness poller wait bound in milliseconds")
	cmd.Flags().StringVar(&opts.LoggingLevel, "logging-level", opts.LoggingLevel, "Global logging level")
	cmd.Flags().StringVar(&opts.LoggingFormat, "logging-format", opts.LoggingFormat, "Logging format (text, json)")
	cmd.Flags().StringVar(&opts.LoggingPoller, "logging-poller", opts.LoggingPoller, "Poller logging level")
	cmd.Flags().StringVar(&opts.LoggingV4L2, "logging-v4l2", opts.LoggingV4L2, "V4L2 logging level")
	cmd.Flags().StringVar(&opts.LoggingUVC, "logging-uvc", opts.LoggingUVC, "UVC control logging level")
	cmd.Flags().StringVar(&opts.LoggingEncoder, "logging-encoder", opts.LoggingEncoder, "Encoder logging level")
	cmd.Flags().StringVar(&opts.LoggingSession, "logging-session", opts.LoggingSession, "Session orchestrator logging level")

	return cmd
}

func runDaemon(c *cobra.Command, opts *runOptions) {
	if err := config.LoadConfig(opts, c); err != nil {
		// Config is optional; a missing or malformed file falls back to flags/env.
		os.Stderr.WriteString("warning: failed to load config: " + err.Error() + "\n")
	}

	logging.Initialize(logging.Config{
		Level:  opts.LoggingLevel,
		Format: opts.LoggingFormat,
		Modules: map[string]string{
			"poller":  opts.LoggingPoller,
			"v4l2":    opts.LoggingV4L2,
			"uvc":     opts.LoggingUVC,
			"encoder": opts.LoggingEncoder,
			"session": opts.LoggingSession,
		},
	})
	logger := logging.GetLogger("main")

	configWatcher := config.NewConfigWatcher(opts.Config, reloadLoggingOptions, logger)
	configWatcher.OnReload(func(reloaded runOptions) {
		logging.Initialize(logging.Config{
			Level:  reloaded.LoggingLevel,
			Format: reloaded.LoggingFormat,
			Modules: map[string]string{
				"poller":  reloaded.LoggingPoller,
				"v4l2":    reloaded.LoggingV4L2,
				"uvc":     reloaded.LoggingUVC,
				"encoder": reloaded.LoggingEncoder,
				"session": reloaded.LoggingSession,
			},
		})
		logging.GetLogger("main").Info("logging configuration reloaded")
	})
	if err := configWatcher.Start(); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer configWatcher.Stop()
	}

	eventBus := events.New()
	logSubscriptions(eventBus, logger)

	metricsRegistry := metrics.New()
	metricsServer := &http.Server{Addr: opts.MetricsAddr, Handler: metricsRegistry.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	callbacks := newLoggingCallbacks(logger)
	orch := session.New(callbacks, eventBus, metricsRegistry, session.WithPollerTimeout(opts.PollerTimeoutMs))

	ignored := make(map[string]bool, len(opts.IgnoreNodes))
	for _, node := range opts.IgnoreNodes {
		ignored[node] = true
	}

	if !orch.ShouldStart(ignored) {
		logger.Error("no usable V4L2 output device found, exiting")
		os.Exit(1)
	}

	if code := orch.SetupAndStart(ignored); code != 0 {
		logger.Error("failed to start gadget session", "code", code)
		os.Exit(1)
	}
	logger.Info("usbcamd started", "metrics_addr", opts.MetricsAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	orch.OnDestroy()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}
}

// reloadLoggingOptions is the config.Watcher loader for the run
// subcommand: it re-parses usbcamd.toml (and env overrides) on top of
// fresh defaults, ignoring CLI flags entirely since those only apply
// at process start. Only the logging fields of the result are acted
// on by the watcher's OnReload handler.
func reloadLoggingOptions(path string) (runOptions, error) {
	fresh := runOptionsDefaults()
	fresh.Config = path
	if err := config.LoadConfig(fresh, nil); err != nil {
		return runOptions{}, err
	}
	return *fresh, nil
}

// logSubscriptions wires the event bus to the session logger so every
// negotiation, stream transition, and drop shows up in the log stream
// independent of metrics collection.
func logSubscriptions(bus *events.Bus, logger logging.Logger) {
	bus.Subscribe(func(e events.NegotiatedEvent) {
		logger.Info("format negotiated", "format_index", e.FormatIndex, "frame_index", e.FrameIndex, "width", e.Width, "height", e.Height)
	})
	bus.Subscribe(func(e events.StreamOnEvent) {
		logger.Info("stream on", "width", e.Width, "height", e.Height)
	})
	bus.Subscribe(func(e events.StreamOffEvent) {
		logger.Info("stream off")
	})
	bus.Subscribe(func(e events.DeviceLostEvent) {
		logger.Warn("output device lost", "path", e.DevicePath)
	})
	bus.Subscribe(func(e events.FrameDroppedEvent) {
		logger.Warn("frame dropped", "reason", e.Reason)
	})
	bus.Subscribe(func(e events.EncodeFailedEvent) {
		logger.Warn("encode failed", "format", e.Format, "error", e.Error)
	})
}
