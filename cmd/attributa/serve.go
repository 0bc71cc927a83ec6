package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/attributa/attributa/internal/config"
	"github.com/attributa/attributa/internal/httpapp"
	"github.com/attributa/attributa/internal/logging"
	"github.com/attributa/attributa/internal/metrics"
	"github.com/attributa/attributa/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the HTTP API, background sync loop, and metrics endpoint.",
	Args:        cobra.NoArgs,
	Annotations: structuredLogAnnotation(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
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

	// StartServer stops itself when ctx is done. The error channel is nil
	// when the metrics endpoint is disabled; a nil case never fires.
	_, metricsErrCh := metrics.StartServer(ctx, cfg.MetricsAddr)

	loop := &scheduler.Loop{Scheduler: app.scheduler, Interval: cfg.SyncInterval, Logger: log}
	go loop.Run(ctx)

	srv := httpapp.NewEchoServer(&httpapp.Handlers{
		Provisioner: app.saga,
		Registry:    app.registryStore,
		Mappings:    app.tenantStore,
		Syncer:      app.scheduler,
		Logger:      log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.StartServer(httpapp.DefaultHTTPServer(cfg.HTTPAddr, srv.Handler()))
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-metricsErrCh:
		return err
	}
}
