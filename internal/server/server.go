// Package server contains the HTTP handlers and routing for the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "dietlog/docs" // swagger docs
	"dietlog/internal/auth"
	"dietlog/internal/cache"
	"dietlog/internal/config"
	"dietlog/internal/database"
	"dietlog/internal/middleware"
	"dietlog/internal/models"
	"dietlog/internal/notify"
	"dietlog/internal/repository"
	"dietlog/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	startedAt      time.Time

	userRepo repository.UserRepository
	mealRepo repository.MealRepository

	userService    *service.UserService
	mealService    *service.MealService
	metricsService *service.MetricsService

	sessionGate *auth.SessionGate
	apiKeyGate  *auth.APIKeyGate
}

// NewServer creates a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	mailer, err := notify.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mailer setup failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, cache.GetClient(), mailer)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, mailer notify.Mailer) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if db == nil {
		return nil, errors.New("database is required")
	}
	if mailer == nil {
		mailer = notify.NewLogMailer(middleware.Logger)
	}

	userRepo := repository.NewUserRepository(db)
	mealRepo := repository.NewMealRepository(db)

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("dietlog-api"),
		startedAt:      time.Now(),
		userRepo:       userRepo,
		mealRepo:       mealRepo,
		userService:    service.NewUserService(userRepo, mailer),
		mealService:    service.NewMealService(mealRepo),
		metricsService: service.NewMetricsService(mealRepo),
		sessionGate:    auth.NewSessionGate(userRepo),
		apiKeyGate:     auth.NewAPIKeyGate(cfg.AdminAPIKey),
	}, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Propagate request and trace IDs into the request context for logging.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	app.Use(cors.New(s.corsConfig()))

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
			return models.RespondWithAppError(c,
				models.NewTooManyRequestsError("Too many requests, please try again later."))
		},
	}))
}

func (s *Server) corsConfig() cors.Config {
	origins := s.config.OriginList()
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	suffixes := s.config.OriginSuffixes()
	dev := s.config.IsDevelopment()

	return cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowOriginsFunc: func(origin string) bool {
			if dev {
				return true
			}
			return originMatchesSuffix(origin, suffixes)
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, x-api-key, x-session-id",
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// originMatchesSuffix reports whether the host of origin is one of suffixes or a subdomain of one.
func originMatchesSuffix(origin string, suffixes []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimPrefix(suffix, "."))
		if suffix == "" {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/prometheus")
	}

	app.Get("/docs/*", swagger.HandlerDefault)

	users := app.Group("/users")
	users.Get("/", s.apiKeyGate.Middleware(), s.ListUsers)
	users.Post("/", middleware.RateLimit(s.redis, s.config.Env, 5, 10*time.Minute, "register"), s.Register)
	users.Post("/verify", middleware.RateLimit(s.redis, s.config.Env, 10, 5*time.Minute, "verify"), s.Verify)
	users.Post("/resend-code", middleware.RateLimit(s.redis, s.config.Env, 3, 10*time.Minute, "resend_code"), s.ResendCode)
	users.Post("/session", middleware.RateLimit(s.redis, s.config.Env, 10, 5*time.Minute, "login"), s.Login)
	users.Delete("/session", s.Logout)
	users.Get("/me", s.session(s.GetMe))

	meals := app.Group("/meals")
	meals.Get("/", s.session(s.ListMeals))
	meals.Post("/", s.session(s.CreateMeal))
	meals.Get("/:id", s.session(s.GetMeal))
	meals.Put("/:id", s.session(s.UpdateMeal))
	meals.Delete("/:id", s.session(s.DeleteMeal))

	app.Get("/metrics", s.session(s.GetDietMetrics))
}

// NewApp builds the Fiber app with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "dietlog API",
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// errorHandler renders errors that escaped a handler in the standard error shape.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{
			Error:   utils.StatusMessage(fe.Code),
			Message: fe.Message,
		})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithAppError(c, err)
}

// Start starts the server
func (s *Server) Start() error {
	s.app = s.NewApp()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
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
