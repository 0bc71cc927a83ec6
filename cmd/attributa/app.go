package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attributa/attributa/internal/config"
	"github.com/attributa/attributa/internal/ingestion"
	"github.com/attributa/attributa/internal/provider"
	"github.com/attributa/attributa/internal/provision"
	"github.com/attributa/attributa/internal/registry"
	"github.com/attributa/attributa/internal/scheduler"
	"github.com/attributa/attributa/internal/tenantstore"
	"github.com/attributa/attributa/internal/vault"
)

// application holds the wired dependencies shared by the serve, worker, and
// sync commands.
type application struct {
	cfg config.Config

	registryPool *pgxpool.Pool
	tenantPool   *pgxpool.Pool

	registryStore *registry.Store
	tenantStore   *tenantstore.Store

	saga      *provision.Saga
	scheduler *scheduler.Scheduler
}

func buildApplication(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	registryPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("registry pool: %w", err)
	}
	tenantPool, err := pgxpool.New(ctx, cfg.TenantDatabaseURL)
	if err != nil {
		registryPool.Close()
		return nil, fmt.Errorf("tenant pool: %w", err)
	}

	secrets, err := vault.New(vault.Options{
		Address: cfg.VaultAddr,
		Token:   cfg.VaultToken,
		Mount:   cfg.VaultMount,
	})
	if err != nil {
		registryPool.Close()
		tenantPool.Close()
		return nil, err
	}

	ing, err := ingestion.New(cfg.IngestionBaseURL, cfg.IngestionToken)
	if err != nil {
		registryPool.Close()
		tenantPool.Close()
		return nil, err
	}

	registryStore := registry.NewStore(registryPool)
	tenantStore := tenantstore.NewStore(tenantPool)
	providers := provider.Default()

	app := &application{
		cfg:           cfg,
		registryPool:  registryPool,
		tenantPool:    tenantPool,
		registryStore: registryStore,
		tenantStore:   tenantStore,
		saga: &provision.Saga{
			Secrets:         secrets,
			Registry:        provision.WrapRegistryStore(registryStore),
			Tenant:          provision.WrapTenantStore(tenantStore),
			Ingestion:       ing,
			Providers:       providers,
			InitialLookback: cfg.InitialLookback,
			Logger:          log,
		},
		scheduler: &scheduler.Scheduler{
			Registry:         registryStore,
			Ingestion:        ing,
			Providers:        providers,
			Workers:          cfg.SyncWorkers,
			HistoricalWindow: cfg.HistoricalWindow,
			FutureWindow:     cfg.FutureWindow,
			Logger:           log,
		},
	}
	return app, nil
}

func (a *application) Close() {
	a.tenantPool.Close()
	a.registryPool.Close()
}
