// Package sqlite implements eventlog.EventStore on an embedded SQLite
// database. This is the backend for the "lite" deployment profile: a single
// developer machine or CI runner with no external database dependency.
//
// Adapted from the teacher's embedded-storage adapter: WAL mode for
// concurrent reads during writes, restrictive file permissions, a pure-Go
// driver (modernc.org/sqlite) so the engine can be embedded into a host
// process without requiring a C toolchain, and goose-driven migrations
// instead of a hand-rolled CREATE TABLE IF NOT EXISTS string.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	// Pure Go SQLite driver: no CGO, straightforward to embed into a host
	// JVM-tooling process without a C toolchain requirement.
	_ "modernc.org/sqlite"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/eventlog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements eventlog.EventStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	path   string
}

// Open creates (or reopens) the SQLite-backed event log at path, applying
// pending migrations before returning.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite: path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("sqlite: invalid path contains '..': %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Lite profile: single node, modest concurrency.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("could not restrict event log file permissions", "path", path, "error", err)
	}

	logger.Info("sqlite event log opened", "path", path)
	return &Store{db: db, logger: logger, path: path}, nil
}

func (s *Store) Append(ctx context.Context, event domain.AggregateEvent) error {
	ref := eventlog.AggregateRef{Kind: event.Kind, ID: event.AggregateID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	var lastID string
	row := tx.QueryRowContext(ctx, `SELECT version, id FROM events WHERE aggregate_kind = ? AND aggregate_id = ? ORDER BY version DESC LIMIT 1`, ref.Kind, ref.ID)
	switch err := row.Scan(&currentVersion, &lastID); err {
	case sql.ErrNoRows:
		currentVersion, lastID = 0, ""
	case nil:
		// fall through with scanned values
	default:
		return fmt.Errorf("sqlite: read current version: %w", err)
	}

	if event.Version != currentVersion+1 || event.Previous != lastID {
		return &eventlog.ErrVersionConflict{Aggregate: ref, ExpectedVersion: currentVersion + 1, ActualVersion: event.Version}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Kind, event.AggregateID, event.Version, event.Timestamp.UTC().UnixNano(),
		event.Previous, event.SchemaVersion, event.UserID, event.CorrelationID, event.Type, event.Payload,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) scanEvents(rows *sql.Rows) ([]domain.AggregateEvent, error) {
	defer rows.Close()
	var out []domain.AggregateEvent
	for rows.Next() {
		var e domain.AggregateEvent
		var tsNanos int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.AggregateID, &e.Version, &tsNanos, &e.Previous, &e.SchemaVersion, &e.UserID, &e.CorrelationID, &e.Type, &e.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, tsNanos).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EventsOf(ctx context.Context, ref eventlog.AggregateRef) ([]domain.AggregateEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload
		FROM events WHERE aggregate_kind = ? AND aggregate_id = ? ORDER BY version ASC`, ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events_of: %w", err)
	}
	return s.scanEvents(rows)
}

func (s *Store) EventsOfType(ctx context.Context, t domain.EventType) ([]domain.AggregateEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload
		FROM events WHERE event_type = ? ORDER BY timestamp ASC`, t)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events_of_type: %w", err)
	}
	return s.scanEvents(rows)
}

func (s *Store) EventsBetween(ctx context.Context, t0, t1 time.Time) ([]domain.AggregateEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload
		FROM events WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp ASC, version ASC`, t0.UTC().UnixNano(), t1.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events_between: %w", err)
	}
	return s.scanEvents(rows)
}

func (s *Store) CurrentVersion(ctx context.Context, ref eventlog.AggregateRef) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM events WHERE aggregate_kind = ? AND aggregate_id = ? ORDER BY version DESC LIMIT 1`, ref.Kind, ref.ID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: current_version: %w", err)
	}
	return version, nil
}

func (s *Store) LastEventID(ctx context.Context, ref eventlog.AggregateRef) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM events WHERE aggregate_kind = ? AND aggregate_id = ? ORDER BY version DESC LIMIT 1`, ref.Kind, ref.ID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: last_event_id: %w", err)
	}
	return id, nil
}

func (s *Store) Exists(ctx context.Context, ref eventlog.AggregateRef) (bool, error) {
	version, err := s.CurrentVersion(ctx, ref)
	return version > 0, err
}

func (s *Store) AggregateKinds(ctx context.Context) ([]domain.AggregateKind, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT aggregate_kind FROM events`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregate_kinds: %w", err)
	}
	defer rows.Close()

	var out []domain.AggregateKind
	for rows.Next() {
		var k domain.AggregateKind
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) AggregateIDs(ctx context.Context, kind domain.AggregateKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT aggregate_id FROM events WHERE aggregate_kind = ?`, kind)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregate_ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.logger.Info("sqlite event log closed", "path", s.path)
	return s.db.Close()
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
