package handler

import (
	"net/http"

	"github.com/mcoot/tileclaim/internal/api/middleware"
	"github.com/mcoot/tileclaim/internal/api/request"
	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/services/auth"
	"github.com/mcoot/tileclaim/internal/services/profile"
)

// ProfileHandler handles profile endpoints
type ProfileHandler struct {
	profiles *profile.Service
	auth     *auth.Service
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles *profile.Service, authService *auth.Service) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		auth:     authService,
	}
}

// Join handles POST /api/v1/profiles.
// A caller presenting a valid token gets their existing profile back.
func (h *ProfileHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req request.JoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	p, created, err := h.profiles.Join(r.Context(), profile.JoinRequest{
		ID:       middleware.GetProfileID(r.Context()),
		Username: req.Username,
		Color:    req.Color,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	token, expires, err := h.auth.Issue(p.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(w, status, response.Join{
		Profile:        response.ProfileFromModel(p),
		Token:          token,
		TokenExpiresAt: expires,
		Created:        created,
	})
}

// GetMe handles GET /api/v1/profiles/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), middleware.MustGetProfileID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ProfileFromModel(p))
}

// UpdateMe handles PATCH /api/v1/profiles/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.profiles.UpdateColor(r.Context(), middleware.MustGetProfileID(r.Context()), req.Color)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ProfileFromModel(p))
}
