// Package realtime provides real-time event broadcasting system for dashboard updates.
package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/rydnr/bytehot-go/internal/orchestrator"
)

func TestEventPublisher_PublishChangeResult_Committed(t *testing.T) {
	eventBus := NewEventBus(slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, eventBus.Start(ctx))
	defer eventBus.Stop(context.Background())

	publisher := NewEventPublisher(eventBus, slog.Default(), nil)

	result := orchestrator.ChangeResult{
		TypeKey:    "com.example.Widget",
		FinalState: orchestrator.StateDone,
		Duration:   10 * time.Millisecond,
	}

	err := publisher.PublishChangeResult(result)
	assert.NoError(t, err)
}

func TestEventPublisher_PublishChangeResult_Rejected(t *testing.T) {
	eventBus := NewEventBus(slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, eventBus.Start(ctx))
	defer eventBus.Stop(context.Background())

	publisher := NewEventPublisher(eventBus, slog.Default(), nil)

	result := orchestrator.ChangeResult{
		TypeKey:    "com.example.Widget",
		FinalState: orchestrator.StateRejected,
		Validation: domain.ValidationOutcome{Reason: "signature changed"},
	}

	err := publisher.PublishChangeResult(result)
	assert.NoError(t, err)
}

func TestEventPublisher_PublishErrorReport(t *testing.T) {
	eventBus := NewEventBus(slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, eventBus.Start(ctx))
	defer eventBus.Stop(context.Background())

	publisher := NewEventPublisher(eventBus, slog.Default(), nil)

	report := domain.ErrorReport{
		Kind:     domain.ErrorRedefinitionFail,
		Severity: domain.SeverityError,
		Message:  "redefinition rejected by runtime",
	}

	err := publisher.PublishErrorReport(report)
	assert.NoError(t, err)
}

func TestEventPublisher_PublishSystemNotification(t *testing.T) {
	eventBus := NewEventBus(slog.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, eventBus.Start(ctx))
	defer eventBus.Stop(context.Background())

	publisher := NewEventPublisher(eventBus, slog.Default(), nil)

	err := publisher.PublishSystemNotification("info", "watcher session restarted")
	assert.NoError(t, err)
}

func TestEventPublisher_NilEventBus(t *testing.T) {
	publisher := NewEventPublisher(nil, slog.Default(), nil)

	err := publisher.PublishChangeResult(orchestrator.ChangeResult{TypeKey: "com.example.Widget", FinalState: orchestrator.StateDone})
	assert.NoError(t, err)
}
