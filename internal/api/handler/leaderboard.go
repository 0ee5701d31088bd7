package handler

import (
	"net/http"

	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/services/leaderboard"
)

// LeaderboardHandler handles the leaderboard endpoint
type LeaderboardHandler struct {
	service *leaderboard.Service
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(service *leaderboard.Service) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// Get handles GET /api/v1/leaderboard
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	entries, generation, err := h.service.Get(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LeaderboardFromModel(entries, generation))
}
