package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/attributa/attributa/internal/config"
	"github.com/attributa/attributa/internal/logging"
)

var syncCmd = &cobra.Command{
	Use:         "sync",
	Short:       "Run a one-off synchronization pass over every connector.",
	Args:        cobra.NoArgs,
	Annotations: structuredLogAnnotation(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd)
	},
}

func runSync(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.Bootstrap(os.Stderr, cmd.CommandPath())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.scheduler.SynchronizeAll(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &exitError{code: 130, err: err, silent: true}
		}
		return &exitError{code: 1, err: err}
	}

	if n := report.Failures(); n > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d connectors failed to synchronize", n, len(report.Connectors))}
	}
	log.Info("synchronization complete", "connectors", len(report.Connectors))
	return nil
}
