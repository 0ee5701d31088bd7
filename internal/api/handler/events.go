package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/web/sse"
	"github.com/mcoot/tileclaim/internal/web/ws"
)

// EventHandler streams board events to observers
type EventHandler struct {
	hubs      *notify.HubManager
	wsOptions ws.Options
	logger    *slog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(hubs *notify.HubManager, wsOptions ws.Options, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		hubs:      hubs,
		wsOptions: wsOptions,
		logger:    logger,
	}
}

// SSE handles GET /api/v1/events
func (h *EventHandler) SSE(w http.ResponseWriter, r *http.Request) {
	hub := h.hubs.GetOrCreateHub(model.BoardTopic)
	sse.ServeSSE(w, r, hub, uuid.NewString(), h.logger)
}

// WebSocket handles GET /api/v1/ws
func (h *EventHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	hub := h.hubs.GetOrCreateHub(model.BoardTopic)
	ws.ServeWS(w, r, hub, uuid.NewString(), h.wsOptions, h.logger)
}
