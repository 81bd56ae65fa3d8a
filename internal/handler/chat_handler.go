package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/middleware"
	"github.com/noah-isme/gema-chat-gateway/internal/realtime"
)

// ChatHandler upgrades chat connections and hands them to the gateway.
type ChatHandler struct {
	gateway *realtime.Gateway
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(gateway *realtime.Gateway, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		gateway: gateway,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds the websocket endpoint under the provided router group.
// Authentication happens inside the socket so that failures reach the client
// as an error event.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/chat", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := auth.ExtractBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		c.Locals("ws_token", token)
		return c.Next()
	})

	router.Get("/chat", websocket.New(h.handleConnection))
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	token, _ := conn.Locals("ws_token").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	// the fasthttp request context is recycled once the upgrade completes
	ctx := middleware.ContextWithCorrelation(context.Background(), correlation)

	h.logger.Debug().Str("correlation_id", correlation).Msg("chat websocket upgraded")
	h.gateway.Serve(ctx, conn, token, correlation)
}
