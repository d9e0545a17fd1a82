// Command ftpgate serves a pooled FTP endpoint over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darshan-rambhia/goftp"
	"github.com/darshan-rambhia/goftp/internal/config"
	"github.com/darshan-rambhia/goftp/internal/httpapi"
	"github.com/darshan-rambhia/goftp/metrics"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file (default ./ftpgate.yaml if present)")
	flag.Parse()

	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("ftpgate")

	if err := run(*configPath, logger); err != nil {
		logger.Error(err, "ftpgate exited")
		os.Exit(1)
	}
}

func run(configPath string, logger logr.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	stdr.SetVerbosity(cfg.Logging.Verbosity)

	if err := os.MkdirAll(cfg.Transfer.LocalDir, 0o755); err != nil {
		return fmt.Errorf("failed to create local dir: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheus(reg)

	endpoint := cfg.Endpoint(logger)
	factory, err := goftp.NewSessionFactory(endpoint)
	if err != nil {
		return err
	}

	pool := goftp.NewPool(factory, cfg.PoolSettings(), goftp.WithPoolMetrics(sink))
	defer pool.Close()

	if cfg.Pool.InitialSize > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), endpoint.WithDefaults().Timeout)
		added := pool.PreWarm(ctx, cfg.Pool.InitialSize)
		cancel()
		logger.Info("pool pre-warmed", "requested", cfg.Pool.InitialSize, "added", added)
	}

	reconciler := goftp.NewDirectoryReconciler(endpoint)
	reconciler.TolerateRaceOnCreate = cfg.Transfer.TolerateRaceOnCreate

	opts := []goftp.ProcessorOption{goftp.WithReconciler(reconciler), goftp.WithMetrics(sink)}
	if cfg.Transfer.StrictDownload {
		opts = append(opts, goftp.WithStrictDownload())
	}
	processor := goftp.NewProcessor(pool, opts...)

	handler := httpapi.NewHandler(processor, pool, httpapi.Options{
		LocalDir:      cfg.Transfer.LocalDir,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("listening", "addr", cfg.Server.Addr, "ftp", endpoint.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil

	case err := <-serverDone:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
