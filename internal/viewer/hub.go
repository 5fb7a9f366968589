// Package viewer fans live transcript segments out to dashboard clients
// over WebSocket.
package viewer

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability/logging"
)

// Event is one broadcast transcript update.
type Event struct {
	MeetingID string         `json:"meetingId"`
	Segment   models.Segment `json:"segment"`
}

// Hub manages dashboard WebSocket connections and broadcasts merged
// segments to all of them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	logger     zerolog.Logger
}

// NewHub creates an empty hub. Call Run before serving connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logging.WithComponent("viewer"),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.logger.Info().Int("total", len(h.clients)).Msg("Viewer connected")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.logger.Info().Int("total", len(h.clients)).Msg("Viewer disconnected")

		case event := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					h.logger.Warn().Err(err).Msg("Viewer write error")
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

// BroadcastSegments queues one event per segment for delivery to every
// connected viewer. Drops events when the hub is backed up rather than
// blocking the merge path.
func (h *Hub) BroadcastSegments(meeting models.MeetingID, segments []models.Segment) {
	for _, seg := range segments {
		select {
		case h.broadcast <- Event{MeetingID: meeting.String(), Segment: seg}:
		default:
			h.logger.Warn().Str("meetingId", meeting.String()).Msg("Viewer broadcast queue full, dropping event")
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from a different origin in dev.
		return true
	},
}

// ServeWS upgrades an HTTP request to a viewer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Viewer upgrade failed")
		return
	}
	h.register <- conn

	// Drain client frames so pings and closes are processed.
	go func() {
		defer func() {
			h.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
