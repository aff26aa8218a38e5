package eventlog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// MemoryStore implements EventStore using an in-process map. It is used for
// unit tests and as a graceful-degradation fallback when the configured
// durable backend cannot be reached at startup; data does not survive a
// process restart.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[AggregateRef][]domain.AggregateEvent
	logger  *slog.Logger
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		streams: make(map[AggregateRef][]domain.AggregateEvent),
		logger:  logger,
	}
}

func (m *MemoryStore) Append(ctx context.Context, event domain.AggregateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := AggregateRef{Kind: event.Kind, ID: event.AggregateID}
	existing := m.streams[ref]

	var expectedVersion int64 = 1
	var expectedPrevious string
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		expectedVersion = last.Version + 1
		expectedPrevious = last.ID
	}

	if event.Version != expectedVersion || event.Previous != expectedPrevious {
		return &ErrVersionConflict{Aggregate: ref, ExpectedVersion: expectedVersion, ActualVersion: event.Version}
	}

	m.streams[ref] = append(existing, event)
	m.logger.Debug("event appended", "kind", ref.Kind, "aggregate_id", ref.ID, "version", event.Version, "type", event.Type)
	return nil
}

func (m *MemoryStore) EventsOf(ctx context.Context, ref AggregateRef) ([]domain.AggregateEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.streams[ref]
	out := make([]domain.AggregateEvent, len(events))
	copy(out, events)
	return out, nil
}

func (m *MemoryStore) EventsOfType(ctx context.Context, t domain.EventType) ([]domain.AggregateEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.AggregateEvent
	for _, events := range m.streams {
		for _, e := range events {
			if e.Type == t {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) EventsBetween(ctx context.Context, t0, t1 time.Time) ([]domain.AggregateEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.AggregateEvent
	for _, events := range m.streams {
		for _, e := range events {
			if (e.Timestamp.Equal(t0) || e.Timestamp.After(t0)) && (e.Timestamp.Equal(t1) || e.Timestamp.Before(t1)) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Version < out[j].Version
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) CurrentVersion(ctx context.Context, ref AggregateRef) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.streams[ref]
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Version, nil
}

func (m *MemoryStore) LastEventID(ctx context.Context, ref AggregateRef) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.streams[ref]
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].ID, nil
}

func (m *MemoryStore) Exists(ctx context.Context, ref AggregateRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.streams[ref]
	return ok, nil
}

func (m *MemoryStore) AggregateKinds(ctx context.Context) ([]domain.AggregateKind, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[domain.AggregateKind]bool)
	for ref := range m.streams {
		seen[ref.Kind] = true
	}
	out := make([]domain.AggregateKind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryStore) AggregateIDs(ctx context.Context, kind domain.AggregateKind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for ref := range m.streams {
		if ref.Kind == kind {
			out = append(out, ref.ID)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.logger.Info("memory event store closed (data discarded)")
	return nil
}

func (m *MemoryStore) Health(ctx context.Context) error { return nil }
