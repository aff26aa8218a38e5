package realtime

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHandlerBroadcastsEventsToConnectedClient(t *testing.T) {
	bus := NewEventBus(slog.Default(), nil)

	handler := NewHandler(bus, nil)
	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.GetActiveSubscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if bus.GetActiveSubscribers() != 1 {
		t.Fatalf("expected 1 active subscriber, got %d", bus.GetActiveSubscribers())
	}

	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	event := NewEvent(EventTypeChangeCommitted, map[string]interface{}{"type_key": "com.example.A"}, EventSourceOrchestrator)
	if err := bus.Publish(*event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Type != EventTypeChangeCommitted {
		t.Errorf("expected type %q, got %q", EventTypeChangeCommitted, got.Type)
	}
}
