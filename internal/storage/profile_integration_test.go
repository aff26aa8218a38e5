//go:build integration

package storage_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rydnr/bytehot-go/internal/config"
	"github.com/rydnr/bytehot-go/internal/storage"
)

// TestProfileIntegration_Standard_RealPostgres opens the standard-profile
// event-log backend against a disposable PostgreSQL container, verifying
// the profile-to-backend wiring end to end (connection, goose migration,
// a real Append/CurrentVersion round trip).
func TestProfileIntegration_Standard_RealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bytehot_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	defer func() { _ = pgContainer.Terminate(ctx) }()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.Config{
		Profile: config.ProfileStandard,
		Watch:   config.WatchConfig{Paths: []string{"/tmp"}, SettlingAttempts: 1},
		Rollback: config.RollbackConfig{
			SnapshotRetentionPerClass: 1,
		},
		Validation: config.ValidationConfig{SessionVerbosity: "summary"},
		Database: config.DatabaseConfig{
			Host:            host,
			Port:            port.Int(),
			Database:        "bytehot_test",
			Username:        "test",
			Password:        "test",
			SSLMode:         "disable",
			MaxConnections:  5,
			MinConnections:  1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Log: config.LogConfig{Level: "info"},
		App: config.AppConfig{Name: "bytehot-test"},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := storage.Open(ctx, cfg, logger)
	require.NoError(t, err, "standard profile should open against a real postgres instance")
	require.NotNil(t, store)
	defer store.Close()

	require.NoError(t, store.Health(ctx))
}
