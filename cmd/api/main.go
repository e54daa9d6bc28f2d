// Package main is the entrypoint for the scimit server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/royletron/scimit/internal/audit"
	"github.com/royletron/scimit/internal/config"
	"github.com/royletron/scimit/internal/handler"
	"github.com/royletron/scimit/internal/middleware"
	"github.com/royletron/scimit/internal/repository"
	"github.com/royletron/scimit/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database",
			slog.String("error", err.Error()),
			slog.String("database_path", cfg.DatabasePath),
		)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DatabasePath)

	// First boot generates the bearer token an IDP must present; it is
	// only ever logged here and served by the admin API.
	token, created, err := repo.EnsureActiveToken(ctx)
	if err != nil {
		logger.Error("failed to ensure bearer token", "error", err)
		os.Exit(1)
	}
	if created {
		logger.Info("generated initial bearer token", "token", token.Token)
	}

	hub := audit.NewHub()
	recorder := audit.NewRecorder(repo, hub, logger)

	r := setupRouter(repo, hub, recorder, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("repository", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("audit hub", hub.Close)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	repo *repository.Repository,
	hub *audit.Hub,
	recorder *audit.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.BodyLimit(cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg.AllowedOrigins = origins
	}
	r.Use(middleware.CORS(corsCfg))

	healthHandler := handler.NewHealthHandler(repo)
	userHandler := handler.NewUserHandler(repo, logger)
	groupHandler := handler.NewGroupHandler(repo, logger)
	discoveryHandler := handler.NewDiscoveryHandler()
	adminHandler := handler.NewAdminHandler(repo, logger)
	logsHandler := handler.NewLogsHandler(repo, hub, logger)

	// Liveness (no auth, not captured)
	r.Get("/health", healthHandler.Health)

	// Operator API (no auth, not captured)
	r.Route("/api", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", adminHandler.Reset)
			r.Get("/token", adminHandler.GetToken)
			r.Post("/token/generate", adminHandler.GenerateToken)
			r.Get("/users", adminHandler.GetUsers)
			r.Get("/groups", adminHandler.GetGroups)
		})
		r.Route("/logs", func(r chi.Router) {
			r.Get("/", logsHandler.List)
			r.Get("/stream", logsHandler.Stream)
			r.Get("/ws", logsHandler.StreamWS)
			r.Get("/{id}", logsHandler.Get)
		})
	})

	// SCIM surface: every request is captured, then authenticated.
	r.Route("/scim/v2", func(r chi.Router) {
		r.Use(recorder.Middleware())
		r.Use(middleware.BearerAuth(middleware.BearerAuthConfig{
			Logger:     logger,
			Repository: repo,
		}))

		r.Route("/Users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
			r.Get("/{id}", userHandler.Get)
			r.Put("/{id}", userHandler.Replace)
			r.Patch("/{id}", userHandler.Patch)
			r.Delete("/{id}", userHandler.Delete)
		})

		r.Route("/Groups", func(r chi.Router) {
			r.Get("/", groupHandler.List)
			r.Post("/", groupHandler.Create)
			r.Get("/{id}", groupHandler.Get)
			r.Put("/{id}", groupHandler.Replace)
			r.Patch("/{id}", groupHandler.Patch)
			r.Delete("/{id}", groupHandler.Delete)
		})

		r.Get("/ServiceProviderConfig", discoveryHandler.ServiceProviderConfig)
		r.Get("/Schemas", discoveryHandler.Schemas)
		r.Get("/ResourceTypes", discoveryHandler.ResourceTypes)
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
