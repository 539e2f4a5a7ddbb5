// Package server contains the HTTP handlers and wiring for the access-queue API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"greenroom/internal/cache"
	"greenroom/internal/config"
	"greenroom/internal/database"
	"greenroom/internal/middleware"
	"greenroom/internal/models"
	"greenroom/internal/notifications"
	"greenroom/internal/observability"
	"greenroom/internal/queue"
	"greenroom/internal/repository"
	"greenroom/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	requestRepo  repository.AccessRequestRepository
	auditRepo    repository.AuditRepository
	settingsRepo repository.SettingsRepository

	engine        *queue.Engine
	accessService *service.AccessService
	reconciler    *service.Reconciler
	sweeper       *service.Sweeper
	dispatcher    *notifications.Dispatcher
}

// NewServer creates a server instance, establishing database and Redis
// connections from config.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Used by tests and by bootstrap layers that establish DB/Redis explicitly.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	requestRepo := repository.NewAccessRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	engine := queue.NewEngine(requestRepo, settingsRepo, cfg.MaxSlots, cfg.AccessDurationDays)

	dispatcher := notifications.NewDispatcher(
		notifications.LogEmailSender{},
		notifications.NewWebhookAdminSender(cfg.AdminWebhookURL, cfg.AppName),
	)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: fiberprometheus.New("greenroom-api"),
		requestRepo:    requestRepo,
		auditRepo:      auditRepo,
		settingsRepo:   settingsRepo,
		engine:         engine,
		dispatcher:     dispatcher,
	}
	server.accessService = service.NewAccessService(requestRepo, auditRepo, engine)
	server.reconciler = service.NewReconciler(requestRepo, auditRepo, engine, dispatcher)
	server.sweeper = service.NewSweeper(requestRepo, settingsRepo, dispatcher, cfg.ExpiryWarningDays)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Public access routes
	access := api.Group("/access")
	access.Post("/request", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "access_request"), s.SubmitAccessRequest)
	access.Get("/status/:email", middleware.RateLimit(
		s.redis, 30, time.Minute, "access_status"), s.GetAccessStatus)

	// Admin routes
	adminAuth := api.Group("/admin")
	adminAuth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "admin_login"), s.AdminLogin)

	admin := api.Group("/admin", middleware.AdminRequired)
	admin.Get("/queue", s.GetQueue)
	admin.Post("/manual/:id", s.ManualIntervention)
	admin.Post("/remove/:id", s.RemoveUser)
	admin.Get("/audit", s.GetAuditLog)
	admin.Get("/settings", s.GetSettings)
	admin.Put("/settings", s.UpdateSettings)

	// Automation webhook, authenticated by shared secret
	api.Post("/webhook/automation", middleware.WebhookSecretRequired, s.AutomationReport)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so a
// missing Redis degrades the report without failing readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// refreshQueueGauges updates the capacity gauges from current counts.
func (s *Server) refreshQueueGauges(ctx context.Context) {
	if active, err := s.requestRepo.CountByStatus(ctx, models.AccessStatusActive); err == nil {
		observability.ActiveSlots.Set(float64(active))
	}
	if pending, err := s.requestRepo.CountByStatus(ctx, models.AccessStatusPending); err == nil {
		observability.PendingRequests.Set(float64(pending))
	}
}

// Start starts the server and the background expiry-warning sweep.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Greenroom Access API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			middleware.Logger.Error("unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	s.dispatcher.Start(ctx)
	go s.sweeper.Run(ctx, time.Hour)

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.dispatcher != nil {
		s.dispatcher.Shutdown()
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
