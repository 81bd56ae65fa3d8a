package utils

import "github.com/gofiber/fiber/v2"

// Envelope is the JSON shape shared by every REST response of the gateway.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SendSuccess sends a 200 envelope without metadata.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return OK(c, data, message, nil)
}

// OK sends a 200 envelope with optional pagination or other metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	if message == "" {
		message = "success"
	}

	return c.Status(fiber.StatusOK).JSON(Envelope{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	})
}

// SendError sends an error envelope with only a message.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail sends an error envelope carrying structured details, such as the
// validation errors of a query.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(Envelope{
		Success: false,
		Message: message,
		Details: details,
	})
}
