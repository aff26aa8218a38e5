package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// Applier folds one event onto an aggregate state value of type T. It must
// be pure and total over the event taxonomy: unknown event types are the
// caller's responsibility to ignore (Replay already skips them before
// calling Applier, but a future payload shape within a known type must still
// be handled without panicking).
type Applier[T any] func(state T, event domain.AggregateEvent) T

// Replay reconstructs aggregate state by folding every event of one stream,
// oldest first, starting from seed. Events of a type the applier does not
// recognize are skipped with a logged warning rather than aborting the
// fold, per the §4.11 contract ("unknown event kinds are skipped with a
// warning").
func Replay[T any](ctx context.Context, store EventStore, ref AggregateRef, seed T, apply Applier[T], known map[domain.EventType]bool, logger *slog.Logger) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	events, err := store.EventsOf(ctx, ref)
	if err != nil {
		return seed, err
	}

	state := seed
	for _, e := range events {
		if known != nil && !known[e.Type] {
			logger.Warn("skipping unknown event type during replay", "kind", ref.Kind, "aggregate_id", ref.ID, "type", e.Type)
			continue
		}
		state = apply(state, e)
	}
	return state, nil
}

// DecodePayload is a small helper so Applier implementations do not each
// repeat the same json.Unmarshal-and-wrap-error boilerplate.
func DecodePayload[T any](event domain.AggregateEvent) (T, error) {
	var payload T
	if len(event.Payload) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(event.Payload, &payload)
	return payload, err
}

// EncodePayload is the Append-side counterpart of DecodePayload.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}
