package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"beacon/internal/analytics"
	"beacon/internal/config"
	"beacon/internal/handlers"
	"beacon/internal/middleware"
	"beacon/internal/repository"
	"beacon/internal/services"
	"beacon/internal/transport"
	"beacon/pkg/logger"
	"beacon/pkg/session"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// Set log level
	logger.SetLevel(logger.ParseLevel(cfg.Monitoring.LogLevel))
	logger.Info("Starting Beacon", map[string]any{
		"version":     "1.0.0",
		"environment": cfg.API.Environment,
	})

	log := logger.New(logger.ParseLevel(cfg.Monitoring.LogLevel), os.Stdout)

	// Initialize the audit database with retry logic. Auditing is optional;
	// without it excluded and delivered hits are only logged.
	var repo *repository.Repository
	if cfg.Audit.Enabled {
		err = repository.WithRetry(context.Background(), repository.DefaultRetryConfig, func() error {
			var retryErr error
			repo, retryErr = repository.NewRepository(
				cfg.Audit.DatabaseURL,
				cfg.Audit.MaxConns,
				cfg.Audit.MaxIdleConns,
			)
			return retryErr
		})
		if err != nil {
			logger.Error("Failed to connect to audit database", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer repo.Close()

		if err := repo.EnsureSchema(context.Background()); err != nil {
			logger.Error("Failed to prepare audit schema", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		logger.Info("Connected to audit database")
	}

	// Initialize the Redis session store for campaign attribution
	var sessions *session.Sessions
	if cfg.Session.RedisAddr != "" {
		err = repository.WithRetry(context.Background(), repository.DefaultRetryConfig, func() error {
			var retryErr error
			sessions, retryErr = session.NewSessions(
				cfg.Session.RedisAddr,
				cfg.Session.RedisPassword,
				cfg.Session.RedisDB,
				cfg.Tracking.SessionDuration,
			)
			return retryErr
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer sessions.Close()
		logger.Info("Connected to Redis", map[string]any{"addr": cfg.Session.RedisAddr})
	} else {
		logger.Warn("No Redis configured, campaign context will not persist across requests")
	}

	// Initialize the measurement collector and pipeline
	collector := transport.NewCollector(cfg.Collect, &cfg.Tracking, log)

	var deliveryAudit analytics.AuditRecorder
	var exclusionAudit services.ExclusionRecorder
	var healthCheck handlers.HealthChecker
	if repo != nil {
		deliveryAudit = repo
		exclusionAudit = repo
		healthCheck = repo
	}
	pipeline := services.NewPipeline(cfg, collector, deliveryAudit, exclusionAudit, log)
	logger.Info("Initialized tracking pipeline", map[string]any{
		"measurement_id": cfg.Tracking.MeasurementID,
		"auto_page_view": cfg.Tracking.AutoSendPageView,
	})

	// Initialize handlers
	handler := handlers.NewHandler(pipeline, healthCheck, log)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
		ServerHeader:          "Beacon",
		AppName:               "Beacon v1.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			logger.Error("Request error", map[string]any{
				"error": err.Error(),
				"path":  c.Path(),
				"code":  code,
			})
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(middleware.Recover(log))
	app.Use(middleware.RequestLogger(log))
	app.Use(middleware.NewTracking(pipeline, sessions, cfg, log).Handler())

	// Routes
	app.Get("/health", handler.Health)
	app.Get("/track/page-view/:filename?", handler.TrackPageView)
	app.Get("/track/event/:filename?", handler.TrackEvent)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = app.ShutdownWithContext(ctx)
		logger.Info("Server shutdown complete")
		os.Exit(0)
	}()

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	logger.Info("Beacon started", map[string]any{"address": addr})

	if err := app.Listen(addr); err != nil {
		logger.Error("Server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
