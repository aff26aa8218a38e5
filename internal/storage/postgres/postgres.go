// Package postgres implements eventlog.EventStore on PostgreSQL. This is the
// backend for the "standard" deployment profile: a shared, durable event
// log used by a CI fleet or a team's long-running watch service.
//
// Grounded on the teacher's internal/infrastructure/repository package: a
// pgxpool.Pool, one Prometheus histogram/counter pair per operation, and
// the same "version monotonicity guarantee" the teacher's config storage
// enforces, here implemented with a row lock on the aggregate's current head
// instead of a single-writer mutex.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for goose migrations
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/eventlog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config configures the PostgreSQL event-log backend's connection pool.
type Config struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	ConnectTimeout    time.Duration
}

// DefaultConfig returns sane pool sizing for the "standard" profile.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 10 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// Metrics is the set of Prometheus instruments recorded by Store, grounded
// on HistoryMetrics from the teacher's postgres history repository.
type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics registers the event-log query instruments.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "query_duration_seconds",
			Help:      "Duration of event-log queries.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation", "status"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "query_errors_total",
			Help:      "Total event-log query errors.",
		}, []string{"operation", "error_type"}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.QueryErrors.WithLabelValues(op, "query_failed").Inc()
	}
	m.QueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// Store implements eventlog.EventStore backed by a pgxpool.Pool.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *Metrics
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, metrics *Metrics) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn cannot be empty")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := migrate(cfg.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	logger.Info("postgres event log opened", "max_conns", cfg.MaxConns)
	return &Store{pool: pool, logger: logger, metrics: metrics}, nil
}

func migrate(dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *Store) Append(ctx context.Context, event domain.AggregateEvent) error {
	start := time.Now()
	err := s.append(ctx, event)
	s.metrics.observe("append", start, err)
	return err
}

func (s *Store) append(ctx context.Context, event domain.AggregateEvent) error {
	ref := eventlog.AggregateRef{Kind: event.Kind, ID: event.AggregateID}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentVersion int64
	var lastID string
	row := tx.QueryRow(ctx, `SELECT version, id FROM events WHERE aggregate_kind = $1 AND aggregate_id = $2 ORDER BY version DESC LIMIT 1 FOR UPDATE`, ref.Kind, ref.ID)
	switch err := row.Scan(&currentVersion, &lastID); err {
	case pgx.ErrNoRows:
		currentVersion, lastID = 0, ""
	case nil:
	default:
		return fmt.Errorf("postgres: read current version: %w", err)
	}

	if event.Version != currentVersion+1 || event.Previous != lastID {
		return &eventlog.ErrVersionConflict{Aggregate: ref, ExpectedVersion: currentVersion + 1, ActualVersion: event.Version}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.Kind, event.AggregateID, event.Version, event.Timestamp.UTC(),
		event.Previous, event.SchemaVersion, event.UserID, event.CorrelationID, event.Type, event.Payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) scan(rows pgx.Rows) ([]domain.AggregateEvent, error) {
	defer rows.Close()
	var out []domain.AggregateEvent
	for rows.Next() {
		var e domain.AggregateEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.AggregateID, &e.Version, &e.Timestamp, &e.Previous, &e.SchemaVersion, &e.UserID, &e.CorrelationID, &e.Type, &e.Payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EventsOf(ctx context.Context, ref eventlog.AggregateRef) ([]domain.AggregateEvent, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload
		FROM events WHERE aggregate_kind = $1 AND aggregate_id = $2 ORDER BY version ASC`, ref.Kind, ref.ID)
	if err != nil {
		s.metrics.observe("events_of", start, err)
		return nil, fmt.Errorf("postgres: events_of: %w", err)
	}
	out, err := s.scan(rows)
	s.metrics.observe("events_of", start, err)
	return out, err
}

func (s *Store) EventsOfType(ctx context.Context, t domain.EventType) ([]domain.AggregateEvent, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload
		FROM events WHERE event_type = $1 ORDER BY timestamp ASC`, t)
	if err != nil {
		s.metrics.observe("events_of_type", start, err)
		return nil, fmt.Errorf("postgres: events_of_type: %w", err)
	}
	out, err := s.scan(rows)
	s.metrics.observe("events_of_type", start, err)
	return out, err
}

func (s *Store) EventsBetween(ctx context.Context, t0, t1 time.Time) ([]domain.AggregateEvent, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_kind, aggregate_id, version, timestamp, previous, schema_version, user_id, correlation_id, event_type, payload
		FROM events WHERE timestamp BETWEEN $1 AND $2 ORDER BY timestamp ASC, version ASC`, t0.UTC(), t1.UTC())
	if err != nil {
		s.metrics.observe("events_between", start, err)
		return nil, fmt.Errorf("postgres: events_between: %w", err)
	}
	out, err := s.scan(rows)
	s.metrics.observe("events_between", start, err)
	return out, err
}

func (s *Store) CurrentVersion(ctx context.Context, ref eventlog.AggregateRef) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM events WHERE aggregate_kind = $1 AND aggregate_id = $2 ORDER BY version DESC LIMIT 1`, ref.Kind, ref.ID).Scan(&version)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return version, err
}

func (s *Store) LastEventID(ctx context.Context, ref eventlog.AggregateRef) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM events WHERE aggregate_kind = $1 AND aggregate_id = $2 ORDER BY version DESC LIMIT 1`, ref.Kind, ref.ID).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return id, err
}

func (s *Store) Exists(ctx context.Context, ref eventlog.AggregateRef) (bool, error) {
	v, err := s.CurrentVersion(ctx, ref)
	return v > 0, err
}

func (s *Store) AggregateKinds(ctx context.Context) ([]domain.AggregateKind, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT aggregate_kind FROM events`)
	if err != nil {
		return nil, fmt.Errorf("postgres: aggregate_kinds: %w", err)
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
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT aggregate_id FROM events WHERE aggregate_kind = $1`, kind)
	if err != nil {
		return nil, fmt.Errorf("postgres: aggregate_ids: %w", err)
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
	s.pool.Close()
	s.logger.Info("postgres event log closed")
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
