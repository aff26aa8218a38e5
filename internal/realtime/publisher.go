// Package realtime provides real-time event broadcasting system for dashboard updates.
package realtime

import (
	"log/slog"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/orchestrator"
)

// EventPublisher publishes events to EventBus from various sources.
type EventPublisher struct {
	eventBus *DefaultEventBus
	logger   *slog.Logger
	metrics  *RealtimeMetrics
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(eventBus *DefaultEventBus, logger *slog.Logger, metrics *RealtimeMetrics) *EventPublisher {
	return &EventPublisher{
		eventBus: eventBus,
		logger:   logger.With("component", "event_publisher"),
		metrics:  metrics,
	}
}

// PublishChangeResult publishes the outcome of one hot-swap change, choosing
// the event type from its final state.
func (p *EventPublisher) PublishChangeResult(result orchestrator.ChangeResult) error {
	if p.eventBus == nil {
		return nil
	}

	data := map[string]interface{}{
		"type_key":    result.TypeKey,
		"final_state": string(result.FinalState),
		"duration_ms": result.Duration.Milliseconds(),
	}

	eventType := EventTypeChangeCommitted
	switch result.FinalState {
	case orchestrator.StateRejected:
		eventType = EventTypeValidationRejected
		data["reason"] = result.Validation.Reason
	case orchestrator.StateRollingBack, orchestrator.StateFailed:
		eventType = EventTypeRedefinitionFailed
		data["reason"] = result.Redefinition.Reason
		if result.Rollback != nil {
			data["rollback_status"] = string(result.Rollback.Status)
		}
	case orchestrator.StateDone:
		if result.Updated.Total > 0 {
			data["instances_updated"] = result.Updated.Updated
			data["instances_failed"] = result.Updated.Failed
		}
	}

	event := NewEvent(eventType, data, EventSourceOrchestrator)
	return p.eventBus.Publish(*event)
}

// PublishArtifactDetected publishes the watcher's classified event for one
// observed filesystem transition, before validation has run.
func (p *EventPublisher) PublishArtifactDetected(event domain.ArtifactEvent, who domain.UserIdentity) error {
	if p.eventBus == nil {
		return nil
	}

	data := map[string]interface{}{
		"kind":           string(event.Kind),
		"type_key":       event.Path.TypeKey(),
		"class_name":     event.Path.ClassName,
		"correlation_id": event.CorrelationID,
		"detected_by":    who.Value,
	}

	evt := NewEvent(EventTypeArtifactDetected, data, EventSourceWatcher)
	return p.eventBus.Publish(*evt)
}

// PublishRollback publishes a standalone rollback execution (triggered
// outside the normal change pipeline, e.g. manual operator rollback).
func (p *EventPublisher) PublishRollback(result domain.RollbackResult) error {
	if p.eventBus == nil {
		return nil
	}

	data := map[string]interface{}{
		"snapshot_id": result.SnapshotID,
		"status":      string(result.Status),
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Reason != "" {
		data["reason"] = result.Reason
	}

	event := NewEvent(EventTypeRollbackExecuted, data, EventSourceRollbackManager)
	return p.eventBus.Publish(*event)
}

// PublishErrorReport publishes a classified error (§4.10) to the dashboard
// feed, regardless of which subsystem produced it.
func (p *EventPublisher) PublishErrorReport(report domain.ErrorReport) error {
	if p.eventBus == nil {
		return nil
	}

	data := map[string]interface{}{
		"kind":           string(report.Kind),
		"severity":       string(report.Severity),
		"recovery":       string(report.Recovery),
		"recoverable":    report.Recoverable,
		"message":        report.Message,
		"class_context":  report.ClassContext,
		"operation":      report.Operation,
		"correlation_id": report.CorrelationID,
	}

	event := NewEvent(EventTypeErrorReported, data, EventSourceErrorClassifier)
	return p.eventBus.Publish(*event)
}

// PublishSystemNotification publishes a system notification event.
func (p *EventPublisher) PublishSystemNotification(level string, message string) error {
	if p.eventBus == nil {
		return nil
	}

	data := map[string]interface{}{
		"level":   level, // info, warning, error
		"message": message,
	}

	event := NewEvent(EventTypeSystemNotification, data, EventSourceSystem)
	return p.eventBus.Publish(*event)
}
