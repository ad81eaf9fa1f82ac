package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evdemand/internal/config"
	"evdemand/internal/logging"
	"evdemand/internal/metrics"
	"evdemand/internal/metrics/datadog"
	"evdemand/internal/metrics/prompush"
	"evdemand/internal/pipeline"

	// register every panel sink backend; config picks one at run time.
	_ "evdemand/internal/storage/all"
)

// main builds the state-month EV demand panel: it loads config, optionally
// initializes a metrics backend, and runs the pipeline once.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exit, so tests can drive it.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("evdemand", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath           string
		dataDir           string
		format            string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
		verbose           bool
	)
	fs.StringVar(&cfgPath, "config", "", "optional YAML config path")
	fs.StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	fs.StringVar(&format, "format", "", "panel output format: csv or xlsx (overrides config)")
	fs.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: none, datadog, pushgateway (overrides config)")
	fs.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides config and env PUSHGATEWAY_URL)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable debug logs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	applyFlags(&cfg, dataDir, format, metricsBackendFlg, pushGatewayURLFlg, verbose)

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", orDash(cfgPath))
		return 1
	}
	if validate {
		fmt.Fprintf(stderr, "configuration is valid: %s\n", orDash(cfgPath))
		return 0
	}

	zl, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()

	runID := uuid.NewString()
	zl = zl.With(zap.String("run_id", runID))

	closeMetrics := setupMetrics(ctx, cfg, runID, zl)
	defer closeMetrics()

	runner := pipeline.NewDefaultRunner(logging.StdLogger(zl))
	runner.RunID = runID

	start := time.Now()
	res, err := runner.Run(ctx, cfg)
	if err != nil {
		zl.Error("build failed", zap.Error(err))
		return 1
	}
	zl.Info("build completed",
		zap.String("panel", res.Paths.Panel),
		zap.Int("panel_rows", res.PanelRows),
		zap.Int64("sink_rows", res.SinkRows),
		zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)),
	)
	return 0
}

func applyFlags(cfg *config.Build, dataDir, format, backend, gwURL string, verbose bool) {
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if format != "" {
		cfg.Output.Format = strings.ToLower(format)
	}
	if backend != "" {
		cfg.Metrics.Backend = backend
	}
	// Pushgateway URL: flag, then config, then env.
	switch {
	case gwURL != "":
		cfg.Metrics.PushgatewayURL = gwURL
	case cfg.Metrics.PushgatewayURL == "":
		cfg.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// setupMetrics installs the configured backend and returns its shutdown
// function. Backend init failures are logged and leave metrics disabled.
func setupMetrics(ctx context.Context, cfg config.Build, runID string, zl *zap.Logger) func() {
	m := cfg.Metrics
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL, map[string]string{"run_id": runID})
		if err != nil {
			zl.Warn("metrics: prom push backend init failed; using nop", zap.Error(err))
			return func() {}
		}
		zl.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("url", m.PushgatewayURL), zap.String("job", m.Job))
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				zl.Warn("metrics: flush error", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		extra := m.Tags
		if len(extra) == 0 {
			extra = datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		}
		tags := append([]string{"run_id:" + runID}, extra...)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    m.Job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			zl.Warn("metrics: datadog backend init failed; using nop", zap.Error(err))
			return func() {}
		}
		zl.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("job", m.Job), zap.Strings("tags", tags))
		metrics.SetBackend(b)
		// Close stops the flush loop and submits the remainder.
		return func() {
			if err := b.Close(); err != nil {
				zl.Warn("metrics: datadog close/flush error", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	default:
		zl.Debug("metrics disabled", zap.String("backend", m.Backend))
		return func() {}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
