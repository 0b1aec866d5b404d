// Command lb-churn generates TCP connection churn against a load balancer.
//
// Each of -num-threads workers keeps up to -max-connections live connections
// to the target and randomly opens and closes them for -runtime seconds. On
// SIGINT or SIGTERM the workers stop early, close every connection they hold,
// and the command exits 0.
//
// Usage:
//
//	lb-churn [flags]
//
// Flags:
//
//	-host string                Target address (default "10.0.1.2")
//	-port int                   Target port (default 3000)
//	-max-connections int        Per-worker connection ceiling (default 10)
//	-connection-timeout float   Per-connect timeout in seconds (default 5)
//	-runtime float              Total run duration in seconds (default 30)
//	-num-threads int            Number of independent workers (default 1)
//	-seed uint                  Random seed for reproducible runs (0: time-based)
//	-config string              YAML configuration file
//	-log-level string           Log level: debug, info, warn, error (default "info")
//	-metrics-addr string        Serve Prometheus metrics on this address
//
// Examples:
//
//	# Four workers against the load balancer VIP for one minute
//	lb-churn -host 10.0.1.2 -port 3000 -num-threads 4 -runtime 60
//
//	# Reproduce a previous run
//	lb-churn -seed 1234 -runtime 10
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/netlab-course/lbharness/internal/config"
	"github.com/netlab-course/lbharness/pkg/churn"
	"github.com/netlab-course/lbharness/pkg/log"
	"github.com/netlab-course/lbharness/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// bindFlags registers the flags on fs, using the current values of cfg as
// defaults.
func bindFlags(fs *flag.FlagSet, cfg *config.ChurnConfig, configPath *string) {
	fs.StringVar(configPath, "config", *configPath, "YAML configuration file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Target address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Target port")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Per-worker connection ceiling")
	fs.Float64Var(&cfg.ConnectionTimeout, "connection-timeout", cfg.ConnectionTimeout, "Per-connect timeout in seconds")
	fs.Float64Var(&cfg.Runtime, "runtime", cfg.Runtime, "Total run duration in seconds")
	fs.IntVar(&cfg.NumThreads, "num-threads", cfg.NumThreads, "Number of independent workers")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for reproducible runs (0: time-based)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
}

// parseArgs layers defaults, the optional config file and explicit flags.
func parseArgs(args []string, stderr io.Writer) (config.ChurnConfig, error) {
	cfg := config.DefaultChurn()
	var configPath string

	fs := flag.NewFlagSet("lb-churn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg, &configPath)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if configPath == "" {
		return cfg, nil
	}

	fileCfg, err := config.LoadChurn(configPath)
	if err != nil {
		return cfg, err
	}

	// Parse again on top of the file so explicit flags win.
	fs = flag.NewFlagSet("lb-churn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &fileCfg, &configPath)
	if err := fs.Parse(args); err != nil {
		return fileCfg, err
	}
	return fileCfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "lb-churn: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "lb-churn: invalid configuration: %v\n", err)
		return 1
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))

	workerConfig := churn.WorkerConfig{
		Address:        cfg.Address(),
		MaxConnections: cfg.MaxConnections,
		ConnectTimeout: cfg.ConnectTimeout(),
		Dialer:         &net.Dialer{},
		Logger:         log.NewSlogAdapter(logger),
	}

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		workerConfig.Metrics = metrics.NewChurn(reg)
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	logger.Info("starting churn",
		"target", cfg.Address(),
		"workers", cfg.NumThreads,
		"max_connections", cfg.MaxConnections,
		"runtime", cfg.RuntimeDuration(),
		"seed", cfg.Seed)

	report, err := churn.RunAll(ctx, churn.Options{
		NumWorkers: cfg.NumThreads,
		Runtime:    cfg.RuntimeDuration(),
		Seed:       cfg.Seed,
		Worker:     workerConfig,
	})
	var panicErr *churn.WorkerPanicError
	if errors.As(err, &panicErr) {
		logger.Error("churn worker failed", "worker", panicErr.WorkerID, "error", err)
		return 1
	}
	if err != nil {
		logger.Error("invalid churn configuration", "error", err)
		return 1
	}

	if errors.Is(report.Cause, churn.ErrInterrupted) {
		logger.Info("interrupt received, connections drained")
	}

	totals := report.Totals()
	logger.Info("churn finished",
		"cause", report.Cause,
		"elapsed", report.Elapsed,
		"attempts", totals.Attempts,
		"connected", totals.Connected,
		"failed", totals.Failed,
		"timeouts", totals.Timeouts,
		"closed", totals.Closed,
		"peak_pool", totals.PeakPool)
	return 0
}
