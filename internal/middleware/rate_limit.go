package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-chat-gateway/internal/utils"
)

// RateLimit limits requests per authenticated user, falling back to the client
// IP before JWTProtected has run. A zero window means one second.
func RateLimit(scope string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := c.Locals("user_id").(uint); ok && id != 0 {
				return scope + ":user:" + strconv.FormatUint(uint64(id), 10)
			}
			return scope + ":ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "Too many requests")
		},
	})
}
