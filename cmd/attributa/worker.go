package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/attributa/attributa/internal/config"
	"github.com/attributa/attributa/internal/logging"
	"github.com/attributa/attributa/internal/metrics"
	"github.com/attributa/attributa/internal/scheduler"
)

var workerCmd = &cobra.Command{
	Use:         "worker",
	Short:       "Run the background sync loop without the HTTP API.",
	Args:        cobra.NoArgs,
	Annotations: structuredLogAnnotation(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd)
	},
}

func runWorker(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.SyncInterval <= 0 {
		return errors.New("SYNC_INTERVAL must be > 0 to run the worker")
	}
	log, err := logging.Bootstrap(os.Stderr, cmd.CommandPath())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	_, metricsErrCh := metrics.StartServer(ctx, cfg.MetricsAddr)
	go func() {
		if metricsErrCh == nil {
			return
		}
		if err := <-metricsErrCh; err != nil {
			log.Error("metrics server failed", "err", err)
		}
	}()

	log.Info("sync worker started", "interval", cfg.SyncInterval, "workers", cfg.SyncWorkers)
	loop := &scheduler.Loop{Scheduler: app.scheduler, Interval: cfg.SyncInterval, Logger: log}
	loop.Run(ctx)
	return nil
}
