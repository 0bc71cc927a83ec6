package main

import (
	"errors"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/attributa/attributa/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Run registry and tenant database migrations",
	Args:        cobra.NoArgs,
	Annotations: structuredLogAnnotation(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		if err := migrateUp("file://db/migrations", cfg.DatabaseURL, "registry"); err != nil {
			return err
		}
		return migrateUp("file://db/tenant_migrations", cfg.TenantDatabaseURL, "tenant")
	},
}

func migrateUp(source, databaseURL, name string) error {
	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no changes to apply", "store", name)
			return nil
		}
		return err
	}

	slog.Info("migrations applied successfully", "store", name)
	return nil
}
