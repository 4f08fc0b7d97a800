// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/b2bgate/xmlgate/internal/bootstrap"
	"github.com/b2bgate/xmlgate/internal/config"
	"github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/ui"
)

// statusSnapshot is served at /status alongside /metrics so `xmlgate
// status` can report a live breaker/batch/queue snapshot instead of only
// the processed_files ledger counts it can read directly from Postgres.
type statusSnapshot struct {
	BatchSize  int               `json:"batch_size"`
	QueueDepth int               `json:"queue_depth"`
	Breakers   map[string]string `json:"breakers"`
}

func statusHandler(svc *bootstrap.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		breakers := make(map[string]string)
		for _, name := range svc.Breakers.Names() {
			breakers[name] = svc.Breakers.State(name)
		}
		snapshot := statusSnapshot{
			BatchSize:  svc.Sizer.CurrentSize(),
			QueueDepth: svc.Queue.QueueDepth(),
			Breakers:   breakers,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	}
}

// runServe executes the 'serve' CLI command: it builds the full ingestion
// service tree and runs the worker pool until an interrupt or SIGTERM asks
// it to drain gracefully.
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: xmlgate serve [options]

Description:
  Runs the ingestion worker pool: consumes inbound document envelopes from
  RabbitMQ, validates and transforms them, and persists the results to
  Postgres. Blocks until SIGINT/SIGTERM, then drains in-flight work before
  exiting.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ui.InitColors(globals.NoColor)
	ui.Header("Starting xmlgate")

	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Failed to start the ingestion service",
			err.Error(),
			"Check XMLGATE_DATABASE_DSN and XMLGATE_RABBITMQ_URL",
			err,
		), globals.JSON)
	}
	ui.Success("Connected to database and broker")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/status", statusHandler(svc))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("serve.metrics.listen_failed", "error", err)
		}
	}()
	ui.Infof("Metrics listening on %s/metrics", cfg.MetricsAddr)

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Queue.Run(ctx) }()

	ui.Success("Worker pool running; press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		ui.Info("Shutdown signal received, draining in-flight work...")
	case err := <-runErr:
		if err != nil {
			log.Error("serve.worker_pool.exited", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	if err := svc.Queue.Shutdown(shutdownCtx); err != nil {
		log.Error("serve.queue.shutdown_failed", "error", err)
	}

	ui.Success("xmlgate stopped cleanly")
}
