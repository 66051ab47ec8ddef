package api

import (
	"strings"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/auth"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	// UserContextKey is the key used to store the verified identity in the Fiber context.
	UserContextKey = "user"
)

// AuthMiddleware creates a middleware that validates Bearer tokens.
func AuthMiddleware(authAdapter auth.AuthPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Use: Bearer <token>")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return unauthorized(c, "Token is required")
		}

		return authenticate(c, authAdapter, token)
	}
}

// WebSocketGuard admits only WebSocket upgrades that carry a valid token,
// either as the token query parameter or as a Bearer header. Rejections
// happen before the upgrade, so no connection state exists yet.
func WebSocketGuard(authAdapter auth.AuthPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			return unauthorized(c, "Token is required")
		}

		return authenticate(c, authAdapter, token)
	}
}

func authenticate(c *fiber.Ctx, authAdapter auth.AuthPort, token string) error {
	identity, err := authAdapter.ValidateToken(c.UserContext(), token)
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}

	c.Locals(UserContextKey, identity)
	return c.Next()
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Error:   domain.CodeUnauthorized,
		Message: message,
	})
}

// identityFrom returns the identity stored by the auth middleware.
func identityFrom(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(UserContextKey).(*domain.Identity)
	if !ok || identity == nil {
		return domain.Identity{}, false
	}
	return *identity, true
}
