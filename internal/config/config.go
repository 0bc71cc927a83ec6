package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultMetricsAddr = ":9090"

	defaultSyncInterval = 6 * time.Hour
	defaultSyncWorkers  = 4

	// Window covered by each recurring historical backfill call.
	defaultHistoricalWindow = 60 * 24 * time.Hour
	// Window covered by each recurring future/incremental resync call.
	defaultFutureWindow = 15 * 24 * time.Hour
	// Lookback requested by the one-off ingestion call issued right after provisioning.
	defaultInitialLookback = 45 * 24 * time.Hour

	defaultVaultMount = "connectors"
)

type Config struct {
	DatabaseURL       string
	TenantDatabaseURL string

	VaultAddr  string
	VaultToken string
	VaultMount string

	IngestionBaseURL string
	IngestionToken   string

	HTTPAddr    string
	MetricsAddr string

	SyncInterval     time.Duration
	SyncWorkers      int
	HistoricalWindow time.Duration
	FutureWindow     time.Duration
	InitialLookback  time.Duration
}

type LoadOptions struct {
	RequireDatabaseURLs bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURLs: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURLs: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		TenantDatabaseURL: os.Getenv("TENANT_DATABASE_URL"),
		VaultAddr:         os.Getenv("VAULT_ADDR"),
		VaultToken:        os.Getenv("VAULT_TOKEN"),
		VaultMount:        getenvDefault("VAULT_MOUNT", defaultVaultMount),
		IngestionBaseURL:  os.Getenv("INGESTION_BASE_URL"),
		IngestionToken:    os.Getenv("INGESTION_TOKEN"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:       getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		SyncInterval:      getenvDurationDefault("SYNC_INTERVAL", defaultSyncInterval),
		SyncWorkers:       getenvIntDefault("SYNC_WORKERS", defaultSyncWorkers),
		HistoricalWindow:  getenvDurationDefault("SYNC_HISTORICAL_WINDOW", defaultHistoricalWindow),
		FutureWindow:      getenvDurationDefault("SYNC_FUTURE_WINDOW", defaultFutureWindow),
		InitialLookback:   getenvDurationDefault("PROVISION_INITIAL_LOOKBACK", defaultInitialLookback),
	}

	if opts.RequireDatabaseURLs {
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required")
		}
		if cfg.TenantDatabaseURL == "" {
			return cfg, errors.New("TENANT_DATABASE_URL is required")
		}
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
