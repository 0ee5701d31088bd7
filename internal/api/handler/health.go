package handler

import (
	"net/http"
	"time"

	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/storage"
)

// ResetScheduler reports when the next scheduled reset fires
type ResetScheduler interface {
	Next() time.Time
}

// HealthHandler handles liveness and board info endpoints
type HealthHandler struct {
	store     storage.BoardStore
	scheduler ResetScheduler
	hubs      *notify.HubManager
	clock     clock.Clock
	schedule  string
	timeout   time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	store storage.BoardStore,
	scheduler ResetScheduler,
	hubs *notify.HubManager,
	clock clock.Clock,
	schedule string,
	timeout time.Duration,
) *HealthHandler {
	return &HealthHandler{
		store:     store,
		scheduler: scheduler,
		hubs:      hubs,
		clock:     clock,
		schedule:  schedule,
		timeout:   timeout,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := storage.Exec(r.Context(), h.timeout, h.store.Ping); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, response.Health{
			Status: "degraded",
			Store:  "unavailable",
			Error:  err.Error(),
		})
		return
	}

	response.JSON(w, http.StatusOK, response.Health{Status: "ok", Store: "ok"})
}

// Info handles GET /api/v1/info
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	board, err := storage.Call(r.Context(), h.timeout, h.store.GetBoard)
	if err != nil {
		WriteError(w, err)
		return
	}

	info := response.Info{
		BoardSize:     board.Size(),
		Unclaimed:     board.UnclaimedCount(),
		Generation:    board.Generation,
		LastResetAt:   board.ResetAt,
		Observers:     h.hubs.SubscriberCount(),
		ServerTime:    h.clock.Now(),
		ResetSchedule: h.schedule,
	}
	if next := h.scheduler.Next(); !next.IsZero() {
		info.NextResetAt = &next
	}

	response.JSON(w, http.StatusOK, info)
}
