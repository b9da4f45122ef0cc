package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/internal/database"
	"github.com/quillshelf/quillshelf/internal/handlers"
	"github.com/quillshelf/quillshelf/internal/middleware"
	"github.com/quillshelf/quillshelf/internal/services"
	"github.com/quillshelf/quillshelf/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	// Initialize handlers
	app.handlers = handlers.New(app.logger, services)

	// Setup router
	if err := app.setupRouter(); err != nil {
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() error {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	schemaValidator, err := validation.NewDefaultValidator()
	if err != nil {
		return fmt.Errorf("failed to load request schemas: %w", err)
	}
	validate := middleware.NewValidationMiddleware(schemaValidator)

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Security())
	router.Use(middleware.Compression())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Token exchange does not require an existing token
		api.POST("/auth/token", validate.ValidateHeaders(), a.handlers.Auth.Token)

		authed := api.Group("")
		authed.Use(middleware.Auth(a.services.Auth, a.logger))
		authed.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
		authed.Use(middleware.CacheInvalidationMiddleware(a.db.Redis.Warm, a.logger))

		// Library routes
		library := authed.Group("/library")
		{
			library.GET("", a.handlers.Library.List)
			library.POST("", validate.ValidateLibraryEntry(), a.handlers.Library.Add)
			library.GET("/:id", validate.ValidateQueryParams(), a.handlers.Library.Get)
			library.PUT("/:id", validate.ValidateLibraryEntry(), a.handlers.Library.Update)
			library.DELETE("/:id", validate.ValidateQueryParams(), a.handlers.Library.Delete)
			library.POST("/import", validate.ValidateLibraryImport(), a.handlers.Library.Import)
		}

		// Recommendation route, with short-lived response caching
		recommendations := authed.Group("/recommendations")
		recommendations.Use(middleware.CacheMiddleware(a.db.Redis.Warm, &middleware.CacheConfig{
			DefaultTTL: 5 * time.Minute,
			MaxSize:    1 << 20,
			KeyPrefix:  "cache",
		}, a.logger))
		{
			recommendations.GET("", validate.ValidateQueryParams(), a.handlers.Recommendation.Get)
		}

		// Preference routes
		authed.POST("/preferences", validate.ValidatePreference(), a.handlers.Preference.Record)
	}

	a.router = router
	return nil
}
