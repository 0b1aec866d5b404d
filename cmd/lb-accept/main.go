// Command lb-accept is the receiving end of the load-balancer churn harness.
//
// It listens on a TCP address, admits at most -max-threads connections at a
// time, and drains each connection until the client closes it. Payload bytes
// are discarded; only connect and disconnect events matter. Every event is
// logged to standard output with the current active-connection count.
//
// Usage:
//
//	lb-accept [flags]
//
// Flags:
//
//	-host string          Bind address (default "0.0.0.0")
//	-port int             Bind port (default 8000)
//	-buffer-size int      Read buffer size per connection (default 1024)
//	-max-threads int      Maximum concurrent connections (default 100)
//	-idle-timeout float   Close connections idle this many seconds (0 disables)
//	-config string        YAML configuration file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-metrics-addr string  Serve Prometheus metrics on this address
//
// Examples:
//
//	# Backend behind the load balancer
//	lb-accept -port 3000
//
//	# Tight admission ceiling to observe queuing
//	lb-accept -port 3000 -max-threads 2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/netlab-course/lbharness/internal/config"
	"github.com/netlab-course/lbharness/pkg/acceptor"
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
func bindFlags(fs *flag.FlagSet, cfg *config.AcceptConfig, configPath *string) {
	fs.StringVar(configPath, "config", *configPath, "YAML configuration file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Bind port")
	fs.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "Read buffer size per connection")
	fs.IntVar(&cfg.MaxThreads, "max-threads", cfg.MaxThreads, "Maximum concurrent connections")
	fs.Float64Var(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close connections idle this many seconds (0 disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
}

// parseArgs layers defaults, the optional config file and explicit flags.
func parseArgs(args []string, stderr io.Writer) (config.AcceptConfig, error) {
	cfg := config.DefaultAccept()
	var configPath string

	fs := flag.NewFlagSet("lb-accept", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg, &configPath)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if configPath == "" {
		return cfg, nil
	}

	fileCfg, err := config.LoadAccept(configPath)
	if err != nil {
		return cfg, err
	}

	// Parse again on top of the file so explicit flags win.
	fs = flag.NewFlagSet("lb-accept", flag.ContinueOnError)
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
		fmt.Fprintf(stderr, "lb-accept: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "lb-accept: invalid configuration: %v\n", err)
		return 1
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))

	srvConfig := acceptor.Config{
		Address:       cfg.Address(),
		BufferSize:    cfg.BufferSize,
		MaxConcurrent: cfg.MaxThreads,
		IdleTimeout:   cfg.IdleTimeoutDuration(),
		Logger:        log.NewSlogAdapter(logger),
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		srvConfig.Metrics = metrics.NewAcceptor(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	srv, err := acceptor.NewServer(srvConfig)
	if err != nil {
		logger.Error("invalid server configuration", "error", err)
		return 1
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		return 1
	}
	logger.Info("listening",
		"addr", srv.Addr().String(),
		"max_threads", cfg.MaxThreads,
		"buffer_size", cfg.BufferSize)

	<-ctx.Done()
	logger.Info("shutting down", "active", srv.ActiveCount())
	if err := srv.Stop(); err != nil {
		logger.Error("error stopping server", "error", err)
	}
	return 0
}
