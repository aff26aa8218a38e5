// Package storage selects the eventlog.EventStore backend for the
// configured deployment profile: SQLite for "lite", PostgreSQL for
// "standard".
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rydnr/bytehot-go/internal/config"
	"github.com/rydnr/bytehot-go/internal/eventlog"
	"github.com/rydnr/bytehot-go/internal/storage/postgres"
	"github.com/rydnr/bytehot-go/internal/storage/sqlite"
)

// Open creates the event-log backend appropriate for cfg.Profile.
//
//	Lite:     SQLite file under cfg.EventLog.Root
//	Standard: PostgreSQL, DSN from cfg.GetDatabaseURL()
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (eventlog.EventStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ErrInvalidProfile{Profile: string(cfg.Profile), Cause: err}
	}

	startTime := time.Now()
	logger.Info("initializing event log backend", "profile", cfg.Profile)

	var store eventlog.EventStore
	var err error

	switch {
	case cfg.IsLiteProfile():
		store, err = openLite(ctx, cfg, logger)
		if err != nil {
			return nil, &ErrStorageInitFailed{Backend: "sqlite", Profile: string(cfg.Profile), Cause: err}
		}
	case cfg.IsStandardProfile():
		store, err = openStandard(ctx, cfg, logger)
		if err != nil {
			return nil, &ErrStorageInitFailed{Backend: "postgres", Profile: string(cfg.Profile), Cause: err}
		}
	default:
		return nil, &ErrInvalidProfile{Profile: string(cfg.Profile), Cause: fmt.Errorf("unknown deployment profile: %s", cfg.Profile)}
	}

	duration := time.Since(startTime)
	backend := backendLabel(cfg)
	logger.Info("event log backend ready", "profile", cfg.Profile, "backend", backend, "duration_ms", duration.Milliseconds())

	RecordOperation("init", backend, "success")
	RecordOperationDuration("init", backend, duration.Seconds())
	SetBackendType(backend, backendValue(backend))
	SetHealthStatus(backend, 1)

	return store, nil
}

func backendLabel(cfg *config.Config) string {
	if cfg.IsLiteProfile() {
		return "sqlite"
	}
	return "postgres"
}

func backendValue(backend string) float64 {
	switch backend {
	case "sqlite":
		return 1
	case "postgres":
		return 2
	default:
		return 0
	}
}

func openLite(ctx context.Context, cfg *config.Config, logger *slog.Logger) (eventlog.EventStore, error) {
	if cfg.EventLog.Root == "" {
		return nil, fmt.Errorf("lite profile requires event_log.root")
	}
	path := cfg.EventLog.Root + "/events.db"
	store, err := sqlite.Open(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite event log: %w", err)
	}
	return store, nil
}

func openStandard(ctx context.Context, cfg *config.Config, logger *slog.Logger) (eventlog.EventStore, error) {
	pgCfg := postgres.Config{
		DSN:             cfg.GetDatabaseURL(),
		MaxConns:        cfg.Database.MaxConnections,
		MinConns:        cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}
	metrics := postgres.NewMetrics("bytehot")
	store, err := postgres.Open(ctx, pgCfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres event log: %w", err)
	}
	return store, nil
}

