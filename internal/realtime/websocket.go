package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader upgrades the admin dashboard's /ws endpoint to a WebSocket
// connection. Origin checking is left permissive here (the admin surface is
// expected to sit behind the deployer's own reverse proxy / network
// boundary); tightening it is a deployment concern, not this package's.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketSubscriber adapts one gorilla/websocket connection to the
// EventSubscriber interface, grounded on the teacher's WebSocketHub
// (cmd/server/handlers/silence_ws.go): a buffered per-connection send
// queue, periodic ping to keep the connection alive, and a read pump whose
// only job is to notice the client going away.
type WebSocketSubscriber struct {
	baseSubscriber
	conn *websocket.Conn
	send chan Event
	done chan struct{}
}

// NewWebSocketSubscriber wraps conn and starts its write pump. Call
// Context().Done() or Close() to tear it down.
func NewWebSocketSubscriber(id string, conn *websocket.Conn) *WebSocketSubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketSubscriber{
		baseSubscriber: baseSubscriber{id: id, ctx: ctx, onClose: cancel},
		conn:           conn,
		send:           make(chan Event, 256),
		done:           make(chan struct{}),
	}
	go s.writePump()
	return s
}

// Send queues event for delivery. Non-blocking: a full queue drops the
// event rather than stalling the broadcaster.
func (s *WebSocketSubscriber) Send(event Event) error {
	select {
	case s.send <- event:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Close tears down the write pump and the underlying connection.
func (s *WebSocketSubscriber) Close() error {
	if s.onClose != nil {
		s.onClose()
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.conn.Close()
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (s *WebSocketSubscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(event); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// readPump keeps the connection's read deadline fresh via pong handling;
// the admin dashboard never sends meaningful data, only close frames.
func (s *WebSocketSubscriber) readPump() {
	defer s.Close()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers each one with bus as a subscriber.
type Handler struct {
	bus    EventBus
	logger *slog.Logger
}

// NewHandler builds a Handler broadcasting bus's events to every connected
// dashboard client.
func NewHandler(bus EventBus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bus:    bus,
		logger: logger.With("component", "realtime_ws_handler"),
	}
}

// ServeHTTP implements http.Handler, upgrading the request and registering
// the resulting connection with the event bus until it disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	sub := NewWebSocketSubscriber(generateEventID(), conn)
	if err := h.bus.Subscribe(sub); err != nil {
		h.logger.Error("failed to register dashboard subscriber", "error", err)
		sub.Close()
		return
	}

	h.logger.Info("dashboard client connected", "subscriber_id", sub.ID(), "remote_addr", conn.RemoteAddr().String())
	sub.readPump()
	h.bus.Unsubscribe(sub)
}
