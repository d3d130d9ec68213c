// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "hearth/docs" // swagger docs
	"hearth/internal/bootstrap"
	"hearth/internal/config"
	"hearth/internal/events"
	"hearth/internal/featureflags"
	"hearth/internal/middleware"
	"hearth/internal/models"
	"hearth/internal/notifications"
	"hearth/internal/repository"
	"hearth/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Deps are the already-connected stores a Server runs on.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	// MongoDB, when set, stores chats as documents instead of rows.
	MongoDB   *mongo.Database
	Publisher events.Publisher
	// Google overrides the verifier built from the config. Optional.
	Google service.GoogleVerifier
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	runtime        *bootstrap.Runtime
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	featureFlags   *featureflags.Manager
	publisher      events.Publisher

	hub      *notifications.RoomHub
	tracker  notifications.ActiveChatTracker
	delivery *notifications.Delivery

	authService    *service.AuthService
	userService    *service.UserService
	groupService   *service.GroupService
	postService    *service.PostService
	commentService *service.CommentService
	chatService    *service.ChatService
}

// NewServer connects every store named by cfg and builds the server on them.
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	s, err := NewServerWithDeps(cfg, Deps{
		DB:        rt.DB,
		Redis:     rt.Redis,
		MongoDB:   rt.MongoDB,
		Publisher: rt.Publisher,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	s.runtime = rt
	return s, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the stores.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("server requires a database")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewNoop("no publisher configured")
	}
	flags := featureflags.NewManager(cfg.FeatureFlags)

	userRepo := repository.NewUserRepository(deps.DB)
	followRepo := repository.NewFollowRepository(deps.DB)
	groupRepo := repository.NewGroupRepository(deps.DB)
	postRepo := repository.NewPostRepository(deps.DB)
	commentRepo := repository.NewCommentRepository(deps.DB)
	tokenRepo := repository.NewRefreshTokenRepository(deps.DB, cfg.MaxRefreshTokens)

	var chatRepo repository.ChatRepository
	if deps.MongoDB != nil {
		chatRepo = repository.NewMongoChatRepository(deps.MongoDB, userRepo)
	} else {
		chatRepo = repository.NewChatRepository(deps.DB)
	}

	google := deps.Google
	if google == nil {
		google = service.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("hearth-api"),
		featureFlags:   flags,
		publisher:      publisher,
	}

	s.authService = service.NewAuthService(userRepo, tokenRepo, deps.Redis, publisher, google, flags, service.AuthConfig{
		Secret:        cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	s.userService = service.NewUserService(userRepo, followRepo, groupRepo, postRepo, publisher)
	s.groupService = service.NewGroupService(groupRepo, chatRepo, userRepo, publisher)
	s.postService = service.NewPostService(postRepo, groupRepo, publisher, cfg.ExplorePageSize)
	s.commentService = service.NewCommentService(commentRepo, postRepo)
	s.chatService = service.NewChatService(chatRepo, userRepo, publisher)

	if cfg.ActiveChatStore == config.TrackerRedis && deps.Redis != nil {
		s.tracker = notifications.NewRedisTracker(deps.Redis)
	} else {
		s.tracker = notifications.NewMemoryTracker()
	}
	s.hub = notifications.NewRoomHub(deps.Redis)
	s.delivery = notifications.NewDelivery(s.hub, s.chatService, s.tracker, flags)

	return s, nil
}

// App builds the Fiber application with middleware and routes attached.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Hearth API",
		ErrorHandler: ErrorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// ErrorHandler maps any error a handler returns onto the standard error body.
func ErrorHandler(c *fiber.Ctx, err error) error {
	appErr := models.AsAppError(err)
	if appErr.Code == models.CodeInternal {
		middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithAppError(c, appErr)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultAllowedOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Refresh-Token, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		ExposeHeaders:    "X-Trace-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After",
		AllowCredentials: origins != "*",
		MaxAge:           int((24 * time.Hour).Seconds()),
	}))

	// Per-IP ceiling across the whole API. Preflights are left to CORS.
	app.Use(limiter.New(limiter.Config{
		Max:        globalRequestsPerMinute,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "[TooManyRequests]: too many requests, slow down",
				"code":  "RATE_LIMITED",
			})
		},
	}))
}

const (
	defaultAllowedOrigins   = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	globalRequestsPerMinute = 100
)

// Per-route quotas. Credential endpoints fail closed when Redis is down.
var (
	registerLimit      = middleware.Limit{Name: "register", Requests: 3, Window: 10 * time.Minute, Policy: middleware.FailClosed}
	loginLimit         = middleware.Limit{Name: "login", Requests: 10, Window: 5 * time.Minute, Policy: middleware.FailClosed}
	googleLoginLimit   = middleware.Limit{Name: "google_login", Requests: 10, Window: 5 * time.Minute, Policy: middleware.FailClosed}
	createGroupLimit   = middleware.Limit{Name: "create_group", Requests: 5, Window: 10 * time.Minute}
	createPostLimit    = middleware.Limit{Name: "create_post", Requests: 10, Window: time.Minute}
	createCommentLimit = middleware.Limit{Name: "create_comment", Requests: 20, Window: time.Minute}
	searchLimit        = middleware.Limit{Name: "search", Requests: 30, Window: time.Minute}
)

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Hearth Backend Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Get("/features", s.OptionalAuth(), s.GetFeatureFlags)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, registerLimit), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, loginLimit), s.Login)
	auth.Post("/google", middleware.RateLimit(s.redis, googleLoginLimit), s.GoogleLogin)
	auth.Post("/refreshToken", s.RefreshToken)
	auth.Post("/logout", s.OptionalAuth(), s.Logout)
	auth.Get("/verify", s.AuthRequired(), s.Verify)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// Chat routes; specific paths before /:chatId
	chats := protected.Group("/chats")
	chats.Get("/", s.GetChats)
	chats.Get("/messages/unread", s.GetUnreadChats)
	chats.Post("/direct/:userId", s.OpenDirectChat)
	chats.Put("/:chatId/read", s.MarkChatRead)
	chats.Get("/:chatId", s.GetChat)

	// Group routes
	groups := protected.Group("/groups")
	groups.Get("/", s.GetGroups)
	groups.Post("/", middleware.RateLimit(s.redis, createGroupLimit), s.CreateGroup)
	groups.Post("/:groupId/join", s.ToggleGroupMembership)
	groups.Get("/:groupId", s.GetGroup)

	// Post routes; specific paths before /:postId
	posts := protected.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", middleware.RateLimit(s.redis, createPostLimit), s.CreatePost)
	posts.Get("/explore", s.GetExplorePosts)
	posts.Get("/group/:groupId", s.GetGroupPosts)
	posts.Post("/like/:postId", s.LikePost)
	posts.Post("/unlike/:postId", s.UnlikePost)
	posts.Get("/:postId", s.GetPost)
	posts.Put("/:postId", s.CheckPostOwner(), s.UpdatePost)
	posts.Delete("/:postId", s.CheckPostOwner(), s.DeletePost)

	// Comment routes
	comments := protected.Group("/comments")
	comments.Post("/", middleware.RateLimit(s.redis, createCommentLimit), s.CreateComment)
	comments.Get("/", s.GetComments)
	comments.Delete("/:commentId", s.CheckCommentOwner(), s.DeleteComment)

	// User routes; /me before /:userId
	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Post("/toggle-follow/:userId", s.ToggleFollow)
	users.Get("/:userId", s.GetUserProfile)

	protected.Get("/search/:query", middleware.RateLimit(s.redis, searchLimit), s.Search)

	// WebSocket ticket issuance and the realtime endpoint. The ticket is
	// accepted as ?ticket= because browsers cannot set headers on upgrade.
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.AuthRequired(), s.WebSocketUpgrade, s.WebSocketHandler())
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return middleware.AuthRequired(s.authOptions())
}

// OptionalAuth sets the user when a valid access token is presented.
func (s *Server) OptionalAuth() fiber.Handler {
	return middleware.OptionalAuth(s.authOptions())
}

func (s *Server) authOptions() middleware.AuthOptions {
	return middleware.AuthOptions{
		Secret:        s.config.JWTSecret,
		ResolveTicket: s.authService.ResolveTicket,
		IsRevoked:     s.authService.IsRevoked,
	}
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
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
		// Tickets, revocation and the relay need Redis.
		redisStatus = "unavailable"
	}

	checks := fiber.Map{
		"database": dbStatus,
		"redis":    redisStatus,
	}
	mongoStatus := ""
	if s.runtime != nil && s.runtime.Mongo != nil {
		mongoStatus = "healthy"
		if err := s.runtime.Mongo.Ping(ctx, nil); err != nil {
			mongoStatus = "unhealthy"
		}
		checks["mongo"] = mongoStatus
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" || mongoStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overallStatus,
		"version": "1.0.0",
		"checks":  checks,
		"events":  events.Mode(s.publisher),
		"time":    time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if err := s.hub.StartRelay(s.shutdownCtx); err != nil {
		middleware.Logger.Warn("room relay unavailable, delivery stays local",
			slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the relay subscriber
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down chat hub", slog.String("error", err.Error()))
	}

	if s.runtime != nil {
		if err := s.runtime.Close(); err != nil {
			middleware.Logger.Error("error closing connections", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
