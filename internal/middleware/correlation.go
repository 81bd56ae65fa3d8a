package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderCorrelationID is echoed on every response.
const HeaderCorrelationID = "X-Correlation-ID"

const correlationLocal = "correlation_id"

type correlationIDKey struct{}

// correlationSources are checked in order. Browsers cannot set headers on a
// websocket upgrade, so the query string comes last.
var correlationSources = []func(c *fiber.Ctx) string{
	func(c *fiber.Ctx) string { return c.Get(HeaderCorrelationID) },
	func(c *fiber.Ctx) string { return c.Get(fiber.HeaderXRequestID) },
	func(c *fiber.Ctx) string { return c.Query(correlationLocal) },
}

// CorrelationID binds a correlation identifier to the request locals, the user
// context and the response headers, generating one when the caller sent none.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := ""
		for _, source := range correlationSources {
			if id = strings.TrimSpace(source(c)); id != "" {
				break
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

// CorrelationIDFromContext extracts the correlation identifier from ctx.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation identifier bound to the request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation returns ctx carrying the correlation identifier. Blank
// identifiers leave ctx untouched.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}
