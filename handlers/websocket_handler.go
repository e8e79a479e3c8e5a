package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub    *events.Hub
	engine *services.Engine
	logger *slog.Logger
}

func NewWebSocketHandler(hub *events.Hub, engine *services.Engine, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{hub: hub, engine: engine, logger: logger}
}

// ServeWs subscribes the connection to /ws/tournaments/{tournamentID}.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if _, err := h.engine.Tournament(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "tournament_id", id, "error", err)
		return
	}
	h.hub.Attach(conn, id)
	h.logger.Info("websocket client attached", "tournament_id", id, "room", events.RoomFor(id))
}
