package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/utils"
)

// JWTProtected returns a middleware that validates bearer tokens with the
// verifier and stores the caller in the request locals.
func JWTProtected(verifier auth.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrInvalidToken) {
				message = err.Error()
			}
			return utils.SendError(c, fiber.StatusUnauthorized, message)
		}

		c.Locals("user_id", claims.UserID)
		if claims.Username != "" {
			c.Locals("username", claims.Username)
		}

		return c.Next()
	}
}
