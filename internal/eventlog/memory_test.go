package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendEnforcesVersionChain(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	ref := AggregateRef{Kind: domain.AggregateHotSwapRequest, ID: "com.example.A"}

	first, err := NextEvent(ctx, store, ref, domain.EventHotSwapRequested, nil, "", "corr-1")
	require.NoError(t, err)
	first.ID = "evt-1"
	require.NoError(t, store.Append(ctx, first))

	t.Run("rejects a gap in version", func(t *testing.T) {
		bad := first
		bad.ID = "evt-bad"
		bad.Version = 3
		bad.Previous = first.ID
		err := store.Append(ctx, bad)
		var conflict *ErrVersionConflict
		assert.ErrorAs(t, err, &conflict)
	})

	t.Run("rejects a mismatched previous id", func(t *testing.T) {
		bad := first
		bad.ID = "evt-bad-2"
		bad.Version = 2
		bad.Previous = "not-the-real-previous"
		err := store.Append(ctx, bad)
		var conflict *ErrVersionConflict
		assert.ErrorAs(t, err, &conflict)
	})

	second, err := NextEvent(ctx, store, ref, domain.EventRedefined, nil, "", "corr-1")
	require.NoError(t, err)
	second.ID = "evt-2"
	require.NoError(t, store.Append(ctx, second))

	version, err := store.CurrentVersion(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	events, err := store.EventsOf(ctx, ref)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventHotSwapRequested, events[0].Type)
	assert.Equal(t, domain.EventRedefined, events[1].Type)
}

func TestMemoryStore_EventsBetweenFiltersByTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	ref := AggregateRef{Kind: domain.AggregateRuntime, ID: "jvm-1"}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		evt := domain.AggregateEvent{
			Kind: ref.Kind, AggregateID: ref.ID, Version: int64(i + 1),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Type:      domain.EventArtifactDetected, SchemaVersion: domain.CurrentSchemaVersion,
			ID: "evt-" + string(rune('a'+i)),
		}
		if i > 0 {
			evt.Previous = "evt-" + string(rune('a'+i-1))
		}
		require.NoError(t, store.Append(ctx, evt))
	}

	out, err := store.EventsBetween(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Version)
}

func TestReplay_SkipsUnknownEventTypes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	ref := AggregateRef{Kind: domain.AggregateValidationSession, ID: "com.example.B"}

	e1, _ := NextEvent(ctx, store, ref, domain.EventValidated, nil, "", "")
	e1.ID = "e1"
	require.NoError(t, store.Append(ctx, e1))

	e2, _ := NextEvent(ctx, store, ref, domain.EventType("SomeFutureEvent"), nil, "", "")
	e2.ID = "e2"
	require.NoError(t, store.Append(ctx, e2))

	type state struct{ validated int }
	known := map[domain.EventType]bool{domain.EventValidated: true}
	apply := func(s state, e domain.AggregateEvent) state {
		if e.Type == domain.EventValidated {
			s.validated++
		}
		return s
	}

	final, err := Replay(ctx, store, ref, state{}, apply, known, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, final.validated)
}
