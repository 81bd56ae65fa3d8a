package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat-gateway/internal/config"
	"github.com/noah-isme/gema-chat-gateway/internal/handler"
	"github.com/noah-isme/gema-chat-gateway/internal/middleware"
	"github.com/noah-isme/gema-chat-gateway/internal/observability"
)

const (
	roomRequestsPerWindow = 60
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler   *handler.ChatHandler
	RoomHandler   *handler.RoomHandler
	JWTMiddleware fiber.Handler
	Connections   func() int
}

// Register wires the HTTP and websocket routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Connections))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.RoomHandler != nil {
		rooms := api.Group("/rooms", jwtMiddleware, middleware.RateLimit("rooms", roomRequestsPerWindow, 0))
		deps.RoomHandler.Register(rooms)
	}

	// The gateway authenticates inside the socket, so no JWT middleware here.
	if deps.ChatHandler != nil {
		gateway := app.Group("/gateway")
		deps.ChatHandler.Register(gateway)
	}
}
