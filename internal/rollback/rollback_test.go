package rollback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/instance"
)

type counter struct {
	Hits int
	Name string
}

type fakeRedefiner struct {
	outcome domain.RedefinitionOutcome
}

func (f *fakeRedefiner) Redefine(ctx context.Context, typeKey string, bytecode []byte) domain.RedefinitionOutcome {
	return f.outcome
}

func newManager(t *testing.T, outcome domain.RedefinitionOutcome) (*Manager, *instance.Tracker) {
	t.Helper()
	tracker := instance.NewTracker()
	preserver := instance.NewPreserver()
	return NewManager(tracker, preserver, &fakeRedefiner{outcome: outcome}, 2, time.Second), tracker
}

func TestCapture_IndexesSnapshotByTypeKey(t *testing.T) {
	mgr, tracker := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded})
	tracker.Enable("com.example.Counter")
	inst := &counter{Hits: 1, Name: "a"}
	tracker.Track("com.example.Counter", inst)

	id, err := mgr.Capture("com.example.Counter", []byte("old-bytecode"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	latest, ok := mgr.Latest("com.example.Counter")
	require.True(t, ok)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, 1, latest.InstanceCount)
}

func TestCapture_RetainsOnlyMostRecentK(t *testing.T) {
	mgr, tracker := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded})
	tracker.Enable("com.example.Counter")

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := mgr.Capture("com.example.Counter", []byte("v"))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, ok := mgr.byID[ids[0]]
	assert.False(t, ok, "oldest snapshot beyond retention should be evicted")
	_, ok = mgr.byID[ids[2]]
	assert.True(t, ok)
}

func TestRollback_RestoresPreviousStateOnSuccess(t *testing.T) {
	mgr, tracker := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded})
	tracker.Enable("com.example.Counter")
	inst := &counter{Hits: 5, Name: "before"}
	tracker.Track("com.example.Counter", inst)

	id, err := mgr.Capture("com.example.Counter", []byte("old"))
	require.NoError(t, err)

	inst.Hits = 99
	inst.Name = "after"

	result := mgr.Rollback(context.Background(), id, domain.ResolutionPreferSnapshot)
	assert.Equal(t, domain.RollbackSucceeded, result.Status)
	assert.Equal(t, 5, inst.Hits)
	assert.Equal(t, "before", inst.Name)
}

func TestRollback_UnknownSnapshotFails(t *testing.T) {
	mgr, _ := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded})
	result := mgr.Rollback(context.Background(), "nonexistent", domain.ResolutionPreferSnapshot)
	assert.Equal(t, domain.RollbackFailed, result.Status)
}

func TestRollback_RedefinitionFailureIsReported(t *testing.T) {
	mgr, tracker := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionRejectedByRuntime, Reason: "bad bytecode"})
	tracker.Enable("com.example.Counter")
	id, err := mgr.Capture("com.example.Counter", []byte("old"))
	require.NoError(t, err)

	result := mgr.Rollback(context.Background(), id, domain.ResolutionPreferSnapshot)
	assert.Equal(t, domain.RollbackFailed, result.Status)
	assert.Contains(t, result.Reason, "bad bytecode")
}

func TestRollback_AbortResolutionLeavesStateUntouched(t *testing.T) {
	mgr, tracker := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded})
	tracker.Enable("com.example.Counter")
	inst := &counter{Hits: 5, Name: "before"}
	tracker.Track("com.example.Counter", inst)
	id, err := mgr.Capture("com.example.Counter", []byte("old"))
	require.NoError(t, err)

	inst.Hits = 42
	result := mgr.Rollback(context.Background(), id, domain.ResolutionAbort)
	assert.Equal(t, domain.RollbackSucceeded, result.Status)
	assert.Equal(t, 42, inst.Hits, "abort must not touch per-instance state")
}

func TestRollbackMany_AggregatesOverallSuccess(t *testing.T) {
	mgr, tracker := newManager(t, domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded})
	tracker.Enable("com.example.A")
	tracker.Enable("com.example.B")
	idA, err := mgr.Capture("com.example.A", []byte("a"))
	require.NoError(t, err)
	idB, err := mgr.Capture("com.example.B", []byte("b"))
	require.NoError(t, err)

	result := mgr.RollbackMany(context.Background(), []string{idA, idB}, domain.ResolutionPreferSnapshot)
	assert.True(t, result.OverallSuccess)
	assert.Len(t, result.Items, 2)
}

func TestRollback_TimeoutIsDistinctFromFailure(t *testing.T) {
	tracker := instance.NewTracker()
	preserver := instance.NewPreserver()
	slow := &fakeRedefiner{outcome: domain.RedefinitionOutcome{Status: domain.RedefinitionSucceeded}}
	mgr := NewManager(tracker, preserver, slowRedefiner{slow}, 1, 10*time.Millisecond)

	tracker.Enable("com.example.Counter")
	id, err := mgr.Capture("com.example.Counter", []byte("old"))
	require.NoError(t, err)

	result := mgr.Rollback(context.Background(), id, domain.ResolutionPreferSnapshot)
	assert.Equal(t, domain.RollbackTimeout, result.Status)
}

// slowRedefiner wraps a Redefiner with an artificial delay to exercise the
// rollback timeout path deterministically.
type slowRedefiner struct {
	inner *fakeRedefiner
}

func (s slowRedefiner) Redefine(ctx context.Context, typeKey string, bytecode []byte) domain.RedefinitionOutcome {
	time.Sleep(50 * time.Millisecond)
	return s.inner.Redefine(ctx, typeKey, bytecode)
}
