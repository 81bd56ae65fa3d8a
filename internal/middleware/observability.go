package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/observability"
)

// Observability records REST request metrics and one structured log line per
// request. Websocket upgrades hand the connection off before the session runs,
// so they are logged but kept out of the REST histogram.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		upgrade := websocket.IsWebSocketUpgrade(c)
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := routeTemplate(c)
		status := c.Response().StatusCode()
		entry := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Logger()

		if upgrade {
			entry.Info().Dur("handshake", elapsed).Msg("websocket upgrade handled")
			return err
		}

		if strings.HasPrefix(c.Path(), "/api/") {
			recordRequest(c.Method(), route, status, elapsed)
		}

		level := zerolog.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zerolog.WarnLevel
		}
		entry.WithLevel(level).Float64("latency_ms", float64(elapsed)/float64(time.Millisecond)).Msg("request completed")

		return err
	}
}

func recordRequest(method, route string, status int, elapsed time.Duration) {
	statusLabel := strconv.Itoa(status)
	observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
	observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
	if status >= fiber.StatusBadRequest {
		observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}
