package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/mcoot/tileclaim/internal/api"
	"github.com/mcoot/tileclaim/internal/config"
	"github.com/mcoot/tileclaim/internal/factory"
)

func main() {
	settings, err := config.FromEnv()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: settings.LogLevel,
	}))
	slog.SetDefault(logger)

	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Build factory config from settings
	cfg, err := factory.ConfigFromSettings(settings, logger)
	if err != nil {
		logger.Error("failed to load data files", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create application factory
	app, err := factory.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := app.Seed(ctx); err != nil {
		logger.Error("failed to seed board", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if settings.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin endpoints are disabled")
	}

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		App:            app,
		AdminToken:     settings.AdminToken,
		AllowedOrigins: settings.AllowedOrigins,
		ResetSchedule:  settings.ResetSchedule,
		StoreTimeout:   settings.StoreTimeout,
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = settings.Port
	server := api.NewServer(router, serverConfig, logger)
	// Observer streams stay open until their hub closes
	server.RegisterOnShutdown(app.HubManager.CloseAll)

	app.Start(ctx)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown or error
	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	// Drain queued broadcasts and stop the scheduler before closing the store
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("application shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
