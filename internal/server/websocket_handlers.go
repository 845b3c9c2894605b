package server

import (
	"log/slog"

	"github.com/francozeta/musicbox/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler registers the connection with the hub so the client
// receives path_stale events. Authentication is handled by route middleware.
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals("userID").(string)
		if !ok || uid == "" {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket register failed",
				slog.String("user_id", uid), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		client.Run()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return upgrade(c)
	}
}

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}

// NavLink is one sidebar entry.
type NavLink struct {
	Route string `json:"route"`
	Label string `json:"label"`
}

var navigation = []NavLink{
	{Route: "/", Label: "Home"},
	{Route: "/search", Label: "Search"},
	{Route: "/activity", Label: "Activity"},
	{Route: "/create-review", Label: "Create Review"},
	{Route: "/communities", Label: "Communities"},
	{Route: "/profile", Label: "Profile"},
}

// GetNavigation handles GET /api/navigation
func (s *Server) GetNavigation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"links": navigation})
}
