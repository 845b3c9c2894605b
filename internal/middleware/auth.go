package middleware

import (
	"context"
	"strings"

	"github.com/francozeta/musicbox/internal/identity"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WithUserID returns ctx carrying the caller's external user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The token
// query parameter is honoured only on websocket upgrades, since browsers cannot
// set headers there.
func bearerToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if websocket.IsWebSocketUpgrade(c) {
		return c.Query("token")
	}
	return ""
}

func authenticate(c *fiber.Ctx, v identity.Verifier) (identity.Principal, bool) {
	token := bearerToken(c)
	if token == "" {
		return identity.Principal{}, false
	}
	p, err := v.Verify(c.UserContext(), token)
	if err != nil {
		Logger.DebugContext(c.UserContext(), "token rejected", "error", err.Error())
		return identity.Principal{}, false
	}
	c.Locals("userID", p.ID)
	c.SetUserContext(WithUserID(c.UserContext(), p.ID))
	return p, true
}

// AuthRequired rejects requests without a valid bearer token and stores the
// verified external id in the "userID" local.
func AuthRequired(v identity.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" && !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}
		if _, ok := authenticate(c, v); !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}
		return c.Next()
	}
}

// OptionalAuth resolves the caller when a valid token is present and continues otherwise.
func OptionalAuth(v identity.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authenticate(c, v)
		return c.Next()
	}
}
