// Package realtime broadcasts hot-swap lifecycle events to the admin
// dashboard feed over the EventBus (§7 supplemented feature).
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a real-time event broadcast to subscribers.
type Event struct {
	// Type is the event type (artifact_detected, change_committed, etc.)
	Type string `json:"type"`

	// ID is a unique event ID (UUID)
	ID string `json:"id"`

	// Data is the event payload (varies by event type)
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Source is the event source (watcher, orchestrator, rollback_manager, etc.)
	Source string `json:"source"`

	// Sequence is a sequence number for event ordering (monotonically increasing)
	Sequence int64 `json:"sequence"`
}

// EventType constants for dashboard events.
const (
	EventTypeArtifactDetected      = "artifact_detected"
	EventTypeValidationRejected    = "validation_rejected"
	EventTypeRedefinitionSucceeded = "redefinition_succeeded"
	EventTypeRedefinitionFailed    = "redefinition_failed"
	EventTypeInstancesUpdated      = "instances_updated"
	EventTypeRollbackExecuted      = "rollback_executed"
	EventTypeChangeCommitted       = "change_committed"
	EventTypeErrorReported         = "error_reported"
	EventTypeSystemNotification    = "system_notification"
)

// EventSource constants.
const (
	EventSourceWatcher         = "watcher"
	EventSourceOrchestrator    = "orchestrator"
	EventSourceRollbackManager = "rollback_manager"
	EventSourceErrorClassifier = "error_classifier"
	EventSourceSystem          = "system"
)

// NewEvent creates a new Event with the given type, data, and source.
func NewEvent(eventType string, data map[string]interface{}, source string) *Event {
	return &Event{
		Type:      eventType,
		ID:        generateEventID(),
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Sequence:  0, // set by EventBus
	}
}

func generateEventID() string {
	return uuid.New().String()
}
