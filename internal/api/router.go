package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/tileclaim/internal/api/handler"
	"github.com/mcoot/tileclaim/internal/api/middleware"
	"github.com/mcoot/tileclaim/internal/factory"
	"github.com/mcoot/tileclaim/internal/web/ws"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger *slog.Logger
	App    *factory.App

	// AdminToken guards the admin endpoints; empty disables them
	AdminToken string
	// AllowedOrigins lists cross-origin hosts allowed to open websockets
	AllowedOrigins []string
	// ResetSchedule is reported by the info endpoint
	ResetSchedule string
	// StoreTimeout bounds store calls made directly by handlers
	StoreTimeout time.Duration
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	app := cfg.App

	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	// Create handlers
	tileHandler := handler.NewTileHandler(app.Store, app.ClaimArbiter, timeout)
	profileHandler := handler.NewProfileHandler(app.ProfileService, app.AuthService)
	leaderboardHandler := handler.NewLeaderboardHandler(app.LeaderboardService)
	eventHandler := handler.NewEventHandler(app.HubManager, ws.Options{OriginPatterns: cfg.AllowedOrigins}, cfg.Logger)
	adminHandler := handler.NewAdminHandler(app.ResetCoordinator, app.CooldownService, cfg.Logger)
	healthHandler := handler.NewHealthHandler(app.Store, app.Scheduler, app.HubManager, app.Clock, cfg.ResetSchedule, timeout)

	// Create middleware
	authMiddleware := middleware.Auth(app.AuthService)
	optionalAuthMiddleware := middleware.OptionalAuth(app.AuthService)
	adminMiddleware := middleware.Admin(cfg.AdminToken)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)

	// Health check endpoint (no auth)
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/info", healthHandler.Info).Methods(http.MethodGet)
	api.HandleFunc("/tiles", tileHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", leaderboardHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/events", eventHandler.SSE).Methods(http.MethodGet)
	api.HandleFunc("/ws", eventHandler.WebSocket).Methods(http.MethodGet)

	// Joining works with or without an existing token
	api.Handle("/profiles", optionalAuthMiddleware(http.HandlerFunc(profileHandler.Join))).Methods(http.MethodPost)

	// Protected routes
	profiles := api.PathPrefix("/profiles").Subrouter()
	profiles.Use(authMiddleware)
	profiles.HandleFunc("/me", profileHandler.GetMe).Methods(http.MethodGet)
	profiles.HandleFunc("/me", profileHandler.UpdateMe).Methods(http.MethodPatch)

	tiles := api.PathPrefix("/tiles").Subrouter()
	tiles.Use(authMiddleware)
	tiles.HandleFunc("/{tileId}/claim", tileHandler.Claim).Methods(http.MethodPost)

	// Operator routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminMiddleware)
	admin.HandleFunc("/reset", adminHandler.Reset).Methods(http.MethodPost)
	admin.HandleFunc("/cooldown-policy", adminHandler.GetCooldownPolicy).Methods(http.MethodGet)
	admin.HandleFunc("/cooldown-policy", adminHandler.PutCooldownPolicy).Methods(http.MethodPut)

	return r
}
