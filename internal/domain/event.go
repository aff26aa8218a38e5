package domain

import "time"

// AggregateKind is the closed set of consistency boundaries the event log
// tracks. Every AggregateEvent belongs to exactly one (kind, id) stream.
type AggregateKind string

const (
	AggregateRuntime          AggregateKind = "runtime"
	AggregateUser             AggregateKind = "user"
	AggregateValidationSession AggregateKind = "validation-session"
	AggregateHotSwapRequest    AggregateKind = "hot-swap-request"
	AggregateInstanceTracking  AggregateKind = "instance-tracking"
	AggregateRollback          AggregateKind = "rollback"
)

// EventType names the payload shape carried by an AggregateEvent. Unknown
// event types are skipped (with a warning) during replay rather than
// failing it, per the §4.11 fold contract.
type EventType string

const (
	EventArtifactDetected   EventType = "ArtifactDetected"
	EventValidated          EventType = "Validated"
	EventRejected           EventType = "Rejected"
	EventMalformed          EventType = "Malformed"
	EventHotSwapRequested   EventType = "HotSwapRequested"
	EventRedefined          EventType = "Redefined"
	EventRedefinitionFailed EventType = "RedefinitionFailed"
	EventInstancesUpdated   EventType = "InstancesUpdated"
	EventRollbackCaptured   EventType = "RollbackCaptured"
	EventRolledBack         EventType = "RolledBack"
	EventChangeCommitted    EventType = "ChangeCommitted"
	EventUserIdentified     EventType = "UserIdentified"
)

// AggregateEvent is one durable, versioned fact about one aggregate stream.
// Version starts at 1 and increases with no gaps; Previous is the id of the
// event immediately before it in the same stream (absent iff Version==1).
type AggregateEvent struct {
	ID            string        `json:"id"`
	Kind          AggregateKind `json:"aggregate_kind"`
	AggregateID   string        `json:"aggregate_id"`
	Version       int64         `json:"version"`
	Timestamp     time.Time     `json:"timestamp"` // UTC
	Previous      string        `json:"previous,omitempty"`
	SchemaVersion int           `json:"schema_version"`
	UserID        string        `json:"user_id,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Type          EventType     `json:"type"`
	Payload       []byte        `json:"payload"` // JSON-encoded typed payload
}

// FirstVersion is the version of the first event appended to any aggregate.
const FirstVersion int64 = 1

// CurrentSchemaVersion is the schema version new events are written with.
const CurrentSchemaVersion = 1

// IsFirst reports whether e is the first event of its aggregate.
func (e AggregateEvent) IsFirst() bool {
	return e.Version == FirstVersion && e.Previous == ""
}
