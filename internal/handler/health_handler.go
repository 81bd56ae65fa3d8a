package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat-gateway/internal/config"
	"github.com/noah-isme/gema-chat-gateway/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Connections int       `json:"connections"`
}

// HealthCheck returns a handler that reports application health and the
// number of websocket sessions on this node.
func HealthCheck(cfg config.Config, connections func() int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}
		if connections != nil {
			payload.Connections = connections()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
