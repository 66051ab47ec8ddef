package api

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/roomchat/modules/activity"
	"github.com/example/roomchat/modules/auth"
	"github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/ratelimit"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// APIModule serves the REST API and the WebSocket event protocol.
type APIModule struct {
	app             *fiber.App
	port            string
	allowedOrigins  string
	rateLimit       string
	redis           ratelimit.RedisOptions
	authAdapter     auth.AuthPort
	chatAdapter     chat.ChatPort
	activityAdapter activity.ActivityPort
	chatModule      *chat.Module
	limiter         ratelimit.Limiter
	logger          types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule configured from the environment.
func NewModule(logger types.Logger) *APIModule {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	return &APIModule{
		port:           port,
		allowedOrigins: allowedOrigins,
		rateLimit:      os.Getenv("SEND_RATE_LIMIT"),
		redis: ratelimit.RedisOptions{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth", "chat", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authAdapter = auth.NewAuthAdapter(container)
	case "chat":
		m.chatAdapter = chat.NewChatAdapter(container)
	case "activity":
		m.activityAdapter = activity.NewActivityAdapter(container)
	}
}

// SetChatModule gives WebSocket connections direct access to the chat engine
// (called from main.go). Live subscriptions hold connection handles, which
// cannot cross the service container.
func (m *APIModule) SetChatModule(chatModule *chat.Module) {
	m.chatModule = chatModule
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(ctx context.Context) error {
	if m.authAdapter == nil || m.chatAdapter == nil || m.activityAdapter == nil {
		return fmt.Errorf("api dependencies not set")
	}
	if m.chatModule == nil || m.chatModule.Service() == nil {
		return fmt.Errorf("chat engine not available")
	}

	config, err := ratelimit.ParseConfig(m.rateLimit)
	if err != nil {
		return fmt.Errorf("invalid SEND_RATE_LIMIT: %w", err)
	}
	m.limiter = ratelimit.New(ctx, config, m.redis, m.logger)
	gate := &sendGate{limiter: m.limiter, logger: m.logger}

	m.app = newApp(m.allowedOrigins)
	m.setupRoutes(
		NewHandlers(m.authAdapter, m.chatAdapter, m.activityAdapter, gate),
		NewWebSocketHandler(m.chatModule.Service(), gate, m.logger),
	)

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		_ = m.limiter.Close()
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.port,
		"rateLimit", ratelimit.Describe(config), "rateLimitBackend", m.limiter.Backend())
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if m.limiter != nil {
		if err := m.limiter.Close(); err != nil {
			m.logger.Warn("Failed to close rate limiter", "error", err)
		}
	}
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{
		"port": m.port,
	}
	if m.limiter != nil {
		details["rate_limit_backend"] = m.limiter.Backend()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

func newApp(allowedOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Next: func(c *fiber.Ctx) bool {
			return websocket.IsWebSocketUpgrade(c)
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	return app
}

// setupRoutes configures all API routes.
func (m *APIModule) setupRoutes(handlers *Handlers, ws *WebSocketHandler) {
	registerRoutes(m.app, m.authAdapter, handlers, ws, m.health)
}

func (m *APIModule) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module": "api",
			"chat":   m.chatModule.Service().Stats(),
		},
	})
}

func registerRoutes(app *fiber.App, authAdapter auth.AuthPort, handlers *Handlers, ws *WebSocketHandler, health fiber.Handler) {
	app.Get("/health", health)

	// WebSocket endpoint; the guard authenticates before the upgrade
	app.Use("/ws", WebSocketGuard(authAdapter))
	app.Get("/ws", websocket.New(ws.Handle))

	v1 := app.Group("/api/v1")

	// Public auth routes
	authRoutes := v1.Group("/auth")
	authRoutes.Post("/register", handlers.Register)
	authRoutes.Post("/login", handlers.Login)

	// Protected routes (require authentication)
	protected := v1.Group("")
	protected.Use(AuthMiddleware(authAdapter))
	protected.Get("/activity", handlers.Activity)
	protected.Get("/rooms", handlers.ListRooms)
	protected.Post("/rooms", handlers.CreateRoom)
	protected.Get("/rooms/:id", handlers.GetRoom)
	protected.Post("/rooms/:id/join", handlers.JoinRoom)
	protected.Post("/rooms/:id/leave", handlers.LeaveRoom)
	protected.Get("/rooms/:id/messages", handlers.GetMessages)
	protected.Post("/rooms/:id/messages", handlers.SendMessage)
	protected.Get("/rooms/:id/online", handlers.OnlineUsers)
}
