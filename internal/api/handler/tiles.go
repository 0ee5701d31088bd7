package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/tileclaim/internal/api/middleware"
	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/services/claim"
	"github.com/mcoot/tileclaim/internal/storage"
)

// TileHandler handles board endpoints
type TileHandler struct {
	store   storage.BoardStore
	arbiter *claim.Arbiter
	timeout time.Duration
}

// NewTileHandler creates a new tile handler
func NewTileHandler(store storage.BoardStore, arbiter *claim.Arbiter, timeout time.Duration) *TileHandler {
	return &TileHandler{
		store:   store,
		arbiter: arbiter,
		timeout: timeout,
	}
}

// List handles GET /api/v1/tiles
func (h *TileHandler) List(w http.ResponseWriter, r *http.Request) {
	board, err := storage.Call(r.Context(), h.timeout, h.store.GetBoard)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.BoardFromModel(board))
}

// Claim handles POST /api/v1/tiles/{tileId}/claim
func (h *TileHandler) Claim(w http.ResponseWriter, r *http.Request) {
	profileID := middleware.MustGetProfileID(r.Context())
	tileID := model.TileID(mux.Vars(r)["tileId"])

	result, err := h.arbiter.Claim(r.Context(), profileID, tileID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ClaimFromModel(result))
}
