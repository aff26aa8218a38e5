// Package rollback implements the snapshot & rollback manager (§4.9): it
// captures RollbackSnapshots per type-key, retaining the most recent K, and
// can re-install a previous bytecode plus the instance states captured
// alongside it.
//
// The keep-most-recent-K-per-key retention and versioned-snapshot shape are
// adapted from the teacher's PostgreSQLConfigStorage
// (internal/config/update_storage.go): a monotonic version counter guards
// each save, with history retained for rollback. Here the store is an
// in-memory ring per type-key (not the durable config_versions table,
// since RollbackSnapshots are already persisted as RollbackCaptured events
// in the event log — this package is the fast-path index, not the source
// of truth).
package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/instance"
)

// Redefiner is the host's redefinition primitive, used here to re-install
// the previous bytecode during a rollback.
type Redefiner interface {
	Redefine(ctx context.Context, typeKey string, bytecode []byte) domain.RedefinitionOutcome
}

// Manager captures and replays RollbackSnapshots, per §4.9.
type Manager struct {
	retention int
	timeout   time.Duration

	tracker   *instance.Tracker
	preserver *instance.Preserver
	redefiner Redefiner

	mu keyedLocks // serializes same-type-key capture/rollback ordering only

	// storeMu guards snapshots/byID, which are shared across all type-keys:
	// mu's per-key locks let different type-keys proceed concurrently, so a
	// separate lock is required to make the shared map reads/writes safe.
	storeMu   sync.RWMutex
	snapshots map[string][]domain.RollbackSnapshot // keyed by type-key, newest last
	byID      map[string]domain.RollbackSnapshot
}

// NewManager builds a Manager retaining the most recent `retention`
// snapshots per type-key (default 1, per §4.9) with a wall-clock rollback
// timeout.
func NewManager(tracker *instance.Tracker, preserver *instance.Preserver, redefiner Redefiner, retention int, timeout time.Duration) *Manager {
	if retention <= 0 {
		retention = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		retention: retention,
		timeout:   timeout,
		tracker:   tracker,
		preserver: preserver,
		redefiner: redefiner,
		mu:        newKeyedLocks(),
		snapshots: make(map[string][]domain.RollbackSnapshot),
		byID:      make(map[string]domain.RollbackSnapshot),
	}
}

// Capture builds and indexes a RollbackSnapshot for typeKey, capturing the
// state of every currently tracked instance plus the bytecode being
// replaced. It returns the new snapshot's id.
func (m *Manager) Capture(typeKey string, previousBytecode []byte) (string, error) {
	instances := m.tracker.Find(typeKey)
	states := make([]domain.StateSnapshot, 0, len(instances))
	for _, inst := range instances {
		snap, err := m.preserver.Snapshot(typeKey, inst)
		if err != nil {
			return "", fmt.Errorf("rollback: capture failed for %s: %w", typeKey, err)
		}
		states = append(states, snap)
	}

	snapshot := domain.RollbackSnapshot{
		ID:               uuid.NewString(),
		TypeKey:          typeKey,
		InstanceCount:    len(instances),
		PreviousBytecode: previousBytecode,
		InstanceStates:   states,
		CapturedAt:       time.Now().UTC(),
	}

	m.mu.lock(typeKey)
	defer m.mu.unlock(typeKey)

	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	list := append(m.snapshots[typeKey], snapshot)
	if len(list) > m.retention {
		evicted := list[:len(list)-m.retention]
		list = list[len(list)-m.retention:]
		for _, e := range evicted {
			delete(m.byID, e.ID)
		}
	}
	m.snapshots[typeKey] = list
	m.byID[snapshot.ID] = snapshot

	return snapshot.ID, nil
}

// Rollback re-installs the snapshot identified by snapshotID: the previous
// bytecode via the redefinition primitive, then the captured instance
// states subject to resolution, per the §4.9 conflict rules.
func (m *Manager) Rollback(ctx context.Context, snapshotID string, resolution domain.ConflictResolution) domain.RollbackResult {
	start := time.Now()

	m.storeMu.RLock()
	snapshot, ok := m.byID[snapshotID]
	m.storeMu.RUnlock()
	if !ok {
		return domain.RollbackResult{SnapshotID: snapshotID, Status: domain.RollbackFailed, Reason: "snapshot not found", Duration: time.Since(start)}
	}

	m.mu.lock(snapshot.TypeKey)
	defer m.mu.unlock(snapshot.TypeKey)

	rollbackCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan domain.RollbackResult, 1)
	go func() {
		done <- m.doRollback(snapshot, resolution, start)
	}()

	select {
	case result := <-done:
		return result
	case <-rollbackCtx.Done():
		return domain.RollbackResult{SnapshotID: snapshotID, Status: domain.RollbackTimeout, Reason: "rollback exceeded wall-clock budget", Duration: time.Since(start)}
	}
}

func (m *Manager) doRollback(snapshot domain.RollbackSnapshot, resolution domain.ConflictResolution, start time.Time) domain.RollbackResult {
	// An empty PreviousBytecode (the first change of a type-key) has nothing
	// to re-install, so only instance state is reconciled.
	if len(snapshot.PreviousBytecode) > 0 {
		outcome := m.redefiner.Redefine(context.Background(), snapshot.TypeKey, snapshot.PreviousBytecode)
		if !outcome.Succeeded() {
			return domain.RollbackResult{SnapshotID: snapshot.ID, Status: domain.RollbackFailed, Reason: fmt.Sprintf("redefinition of previous bytecode failed: %s", outcome.Reason), Duration: time.Since(start)}
		}
	}

	if resolution == domain.ResolutionAbort || resolution == domain.ResolutionManual {
		return domain.RollbackResult{SnapshotID: snapshot.ID, Status: domain.RollbackSucceeded, Reason: "bytecode reinstalled; state left for manual/aborted resolution", Duration: time.Since(start)}
	}

	current := m.tracker.Find(snapshot.TypeKey)
	conflict := len(current) != snapshot.InstanceCount

	for i, inst := range current {
		var target domain.StateSnapshot
		if i < len(snapshot.InstanceStates) {
			target = snapshot.InstanceStates[i]
		} else {
			conflict = true
			continue
		}

		switch resolution {
		case domain.ResolutionPreferCurrent:
			continue
		case domain.ResolutionMerge:
			if err := m.mergeRestore(target, inst); err != nil {
				return domain.RollbackResult{SnapshotID: snapshot.ID, Status: domain.RollbackFailed, Reason: err.Error(), Duration: time.Since(start)}
			}
		case domain.ResolutionForceSnapshot, domain.ResolutionPreferSnapshot:
			if err := m.preserver.Restore(target, inst); err != nil {
				return domain.RollbackResult{SnapshotID: snapshot.ID, Status: domain.RollbackFailed, Reason: err.Error(), Duration: time.Since(start)}
			}
		default:
			if !conflict {
				if err := m.preserver.Restore(target, inst); err != nil {
					return domain.RollbackResult{SnapshotID: snapshot.ID, Status: domain.RollbackFailed, Reason: err.Error(), Duration: time.Since(start)}
				}
			}
		}
	}

	return domain.RollbackResult{SnapshotID: snapshot.ID, Status: domain.RollbackSucceeded, Duration: time.Since(start)}
}

// mergeRestore applies snapshot values only to keys not already present on
// the live instance's current state, per the `merge` resolution mode.
func (m *Manager) mergeRestore(snapshot domain.StateSnapshot, target any) error {
	current, err := m.preserver.Snapshot(snapshot.TypeKey, target)
	if err != nil {
		return err
	}

	merged := domain.StateSnapshot{
		TypeKey:    snapshot.TypeKey,
		FieldOrder: snapshot.FieldOrder,
		Fields:     make(map[string]domain.FieldValue, len(snapshot.Fields)),
		CapturedAt: snapshot.CapturedAt,
	}
	for k, v := range snapshot.Fields {
		if _, present := current.Get(k); !present {
			merged.Fields[k] = v
		}
	}
	return m.preserver.Restore(merged, target)
}

// RollbackMany rolls back several snapshots together, collecting per-item
// results, per §4.9.
func (m *Manager) RollbackMany(ctx context.Context, snapshotIDs []string, resolution domain.ConflictResolution) domain.CascadingRollbackResult {
	results := make([]domain.RollbackResult, 0, len(snapshotIDs))
	overall := true
	for _, id := range snapshotIDs {
		r := m.Rollback(ctx, id, resolution)
		results = append(results, r)
		if r.Status != domain.RollbackSucceeded {
			overall = false
		}
	}
	return domain.CascadingRollbackResult{Items: results, OverallSuccess: overall}
}

// Latest returns the most recently captured snapshot for typeKey, if any.
func (m *Manager) Latest(typeKey string) (domain.RollbackSnapshot, bool) {
	m.mu.lock(typeKey)
	defer m.mu.unlock(typeKey)

	m.storeMu.RLock()
	defer m.storeMu.RUnlock()

	list := m.snapshots[typeKey]
	if len(list) == 0 {
		return domain.RollbackSnapshot{}, false
	}
	return list[len(list)-1], true
}
