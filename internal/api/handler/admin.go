package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/services/cooldown"
	"github.com/mcoot/tileclaim/internal/services/reset"
)

// AdminHandler handles operator endpoints
type AdminHandler struct {
	resets    *reset.Coordinator
	cooldowns *cooldown.Service
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(resets *reset.Coordinator, cooldowns *cooldown.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		resets:    resets,
		cooldowns: cooldowns,
		logger:    logger,
	}
}

// Reset handles POST /api/v1/admin/reset
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.resets.CheckAndReset(r.Context(), true)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Info("admin reset",
		slog.String("status", string(outcome.Status)),
		slog.Int64("generation", outcome.Generation),
	)

	response.JSON(w, http.StatusOK, response.ResetFromModel(outcome))
}

// GetCooldownPolicy handles GET /api/v1/admin/cooldown-policy
func (h *AdminHandler) GetCooldownPolicy(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.cooldowns.Current())
}

// PutCooldownPolicy handles PUT /api/v1/admin/cooldown-policy
func (h *AdminHandler) PutCooldownPolicy(w http.ResponseWriter, r *http.Request) {
	var policy cooldown.Policy
	if err := decodeJSON(w, r, &policy); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.cooldowns.Replace(&policy); err != nil {
		h.logger.Warn("rejected cooldown policy", slog.String("error", err.Error()))
		WriteError(w, NewInvalidRequestError(err.Error()))
		return
	}

	response.JSON(w, http.StatusOK, h.cooldowns.Current())
}
