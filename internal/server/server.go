// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/francozeta/musicbox/internal/bootstrap"
	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/featureflags"
	"github.com/francozeta/musicbox/internal/identity"
	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/notifications"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/revalidate"
	"github.com/francozeta/musicbox/internal/service"
	"github.com/francozeta/musicbox/internal/upload"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Store    repository.Store
	Backend  bootstrap.Backend
	Redis    *redis.Client
	Verifier identity.Verifier
	Uploads  *upload.Service
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	store          repository.Store
	backend        bootstrap.Backend
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	verifier       identity.Verifier
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	uploads        *upload.Service

	reviewService    *service.ReviewService
	userService      *service.UserService
	communityService *service.CommunityService
}

// NewServer opens the configured store, Redis, identity verifier and upload
// storage, then builds the server over them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}

	verifier, err := identity.NewVerifier(ctx, cfg)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	uploads, err := upload.New(ctx, cfg)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	return NewServerWithDeps(cfg, Deps{
		Store:    rt.Store,
		Backend:  rt.Backend,
		Redis:    rt.Redis,
		Verifier: verifier,
		Uploads:  uploads,
	}), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use it with a SQLite store and an in-process verifier.
func NewServerWithDeps(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		config:         cfg,
		store:          deps.Store,
		backend:        deps.Backend,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("musicbox-api"),
		verifier:       deps.Verifier,
		uploads:        deps.Uploads,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		hub:            notifications.NewHub(),
	}

	// Without Redis the notifier hands events straight to the local hub.
	s.notifier = notifications.NewNotifier(deps.Redis)
	s.notifier.SetLocal(s.hub)
	signal := revalidate.NewRedisSignaler(s.notifier)

	s.reviewService = service.NewReviewService(s.store, signal)
	s.reviewService.SetFlags(s.featureFlags)
	s.userService = service.NewUserService(s.store, signal)
	s.communityService = service.NewCommunityService(s.store, signal)
	return s
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	// After requestid and context so every line carries the request id.
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 100 requests per minute per IP; preflights are never limited.
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

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if s.config.UploadDriver == "" || s.config.UploadDriver == config.UploadDriverDisk {
		app.Static("/uploads", s.config.UploadDir)
	}

	api := app.Group("/api")
	api.Get("/navigation", s.GetNavigation)

	auth := middleware.AuthRequired(s.verifier)

	reviews := api.Group("/reviews")
	reviews.Get("/", s.ListReviews)
	reviews.Post("/", auth, middleware.RateLimit(
		s.redis, 5, time.Minute, "create_review"), s.CreateReview)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	reviews.Post("/:id/comments", auth, middleware.RateLimit(
		s.redis, 10, time.Minute, "create_comment"), s.AddComment)
	reviews.Get("/:id", s.GetReview)
	reviews.Delete("/:id", auth, s.DeleteReview)

	users := api.Group("/users")
	users.Get("/", auth, middleware.RateLimit(
		s.redis, 30, time.Minute, "search_users"), s.SearchUsers)
	users.Get("/me", auth, s.GetMyProfile)
	users.Put("/me", auth, middleware.RateLimit(
		s.redis, 10, time.Minute, "update_profile"), s.UpdateMyProfile)
	users.Get("/:id/reviews", s.GetUserReviews)
	users.Get("/:id", s.GetUserProfile)

	api.Get("/activity", auth, s.GetActivity)

	communities := api.Group("/communities")
	communities.Get("/", s.ListCommunities)
	communities.Post("/", auth, middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "create_community"), s.CreateCommunity)
	communities.Get("/:id/reviews", s.GetCommunityReviews)
	communities.Post("/:id/members", auth, s.JoinCommunity)
	communities.Delete("/:id/members", auth, s.LeaveCommunity)
	communities.Get("/:id", s.GetCommunity)

	api.Post("/uploads/:route", s.UploadAuth(), middleware.RateLimit(
		s.redis, 20, time.Minute, "upload"), s.Upload)

	api.Get("/ws", auth, s.WebsocketHandler())
	api.Get("/feature-flags", auth, s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so only
// an unreachable store makes the service unready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if s.backend == nil {
		storeStatus = "unavailable"
	} else if err := s.backend.Ping(ctx); err != nil {
		storeStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "disabled"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if storeStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// App builds the Fiber app with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "MusicBox API",
		BodyLimit: bodyLimit(s.config),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// bodyLimit admits a multipart batch of a few maximum-size uploads.
func bodyLimit(cfg *config.Config) int {
	maxMB := cfg.UploadMaxSizeMB
	if maxMB <= 0 {
		maxMB = upload.DefaultMaxUploadSizeMB
	}
	return (maxMB*maxFilesPerUpload + 1) * 1024 * 1024
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if s.redis != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the Redis subscriber.
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Warn("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Warn("error shutting down hub", slog.String("error", err.Error()))
	}

	if s.backend != nil {
		if err := s.backend.Shutdown(ctx); err != nil {
			middleware.Logger.Warn("error closing store", slog.String("error", err.Error()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Warn("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
