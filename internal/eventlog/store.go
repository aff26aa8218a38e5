// Package eventlog implements the append-only, per-aggregate event store
// (§4.11) and aggregate replay by folding. Two backends share the EventStore
// interface: an embedded SQLite backend for the "lite" deployment profile
// (internal/storage/sqlite) and a PostgreSQL backend for the "standard"
// profile (internal/storage/postgres); an in-memory backend here serves
// tests and graceful degradation when the configured backend is
// unreachable at startup.
package eventlog

import (
	"context"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// AggregateRef identifies one (kind, id) event stream.
type AggregateRef struct {
	Kind domain.AggregateKind
	ID   string
}

// ErrVersionConflict is returned by Append when the caller's expected
// version or previous-event id does not match the stream's current head.
type ErrVersionConflict struct {
	Aggregate       AggregateRef
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ErrVersionConflict) Error() string {
	return "eventlog: version conflict on " + string(e.Aggregate.Kind) + "/" + e.Aggregate.ID
}

// ErrNotFound is returned when an aggregate stream does not exist.
type ErrNotFound struct{ Aggregate AggregateRef }

func (e *ErrNotFound) Error() string {
	return "eventlog: aggregate not found: " + string(e.Aggregate.Kind) + "/" + e.Aggregate.ID
}

// EventStore is the append-only, per-aggregate persistence contract from
// §4.11 and §6. Implementations must not acknowledge Append until the event
// is durable, and must reject an event whose Version/Previous do not match
// the stream's current head.
type EventStore interface {
	// Append validates and persists one event. It rejects the write with
	// ErrVersionConflict if event.Version != CurrentVersion(ref)+1 or
	// event.Previous != the id of the last event in the stream (empty on
	// the first event of a stream).
	Append(ctx context.Context, event domain.AggregateEvent) error

	// EventsOf returns every event of one aggregate stream, oldest first.
	EventsOf(ctx context.Context, ref AggregateRef) ([]domain.AggregateEvent, error)

	// EventsOfType returns every event of a given type across all aggregates.
	EventsOfType(ctx context.Context, t domain.EventType) ([]domain.AggregateEvent, error)

	// EventsBetween returns every event with Timestamp in [t0, t1], ordered
	// by timestamp then by version for ties.
	EventsBetween(ctx context.Context, t0, t1 time.Time) ([]domain.AggregateEvent, error)

	// CurrentVersion returns the version of the last appended event for
	// ref, or 0 if the aggregate does not exist.
	CurrentVersion(ctx context.Context, ref AggregateRef) (int64, error)

	// LastEventID returns the id of the last appended event for ref, or ""
	// if the aggregate does not exist.
	LastEventID(ctx context.Context, ref AggregateRef) (string, error)

	// Exists reports whether any event has been appended for ref.
	Exists(ctx context.Context, ref AggregateRef) (bool, error)

	// AggregateKinds enumerates every distinct aggregate kind with at least
	// one event.
	AggregateKinds(ctx context.Context) ([]domain.AggregateKind, error)

	// AggregateIDs enumerates every aggregate id of a given kind.
	AggregateIDs(ctx context.Context, kind domain.AggregateKind) ([]string, error)

	// Close releases backend resources. Idempotent.
	Close() error

	// Health reports whether the backend can currently serve reads/writes.
	Health(ctx context.Context) error
}

// NextEvent builds the next AggregateEvent for a stream, taking care of the
// version/previous bookkeeping so callers never have to compute it by hand.
func NextEvent(ctx context.Context, store EventStore, ref AggregateRef, t domain.EventType, payload []byte, userID, correlationID string) (domain.AggregateEvent, error) {
	version, err := store.CurrentVersion(ctx, ref)
	if err != nil {
		return domain.AggregateEvent{}, err
	}

	previous, err := store.LastEventID(ctx, ref)
	if err != nil {
		return domain.AggregateEvent{}, err
	}

	return domain.AggregateEvent{
		Kind:          ref.Kind,
		AggregateID:   ref.ID,
		Version:       version + 1,
		Timestamp:     time.Now().UTC(),
		Previous:      previous,
		SchemaVersion: domain.CurrentSchemaVersion,
		UserID:        userID,
		CorrelationID: correlationID,
		Type:          t,
		Payload:       payload,
	}, nil
}
