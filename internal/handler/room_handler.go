package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/service"
	"github.com/noah-isme/gema-chat-gateway/internal/utils"
	"github.com/noah-isme/gema-chat-gateway/internal/validation"
)

// RoomHandler serves the read side of rooms: the caller's room list, room
// details and message history.
type RoomHandler struct {
	rooms     service.RoomService
	messages  service.MessageService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoomHandler constructs a room handler.
func NewRoomHandler(rooms service.RoomService, messages service.MessageService, validate *validator.Validate, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		messages:  messages,
		validator: validate,
		logger:    logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register binds room routes under the provided router group.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:id", h.details)
	router.Get("/:id/messages", h.history)
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListForUser(requestContext(c), userIDFromContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list rooms")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list rooms")
	}
	return utils.OK(c, rooms, "rooms", nil)
}

func (h *RoomHandler) details(c *fiber.Ctx) error {
	room, err := h.rooms.Details(requestContext(c), userIDFromContext(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "failed to load room")
	}
	return utils.OK(c, room, "room", nil)
}

func (h *RoomHandler) history(c *fiber.Ctx) error {
	var query dto.RoomMessagesQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return utils.Fail(c, fiber.StatusBadRequest, "Invalid data", validation.FlattenFieldErrors(fieldErrs))
		}
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page, err := h.messages.Page(requestContext(c), userIDFromContext(c), c.Params("id"), query)
	if err != nil {
		return h.fail(c, err, "failed to load messages")
	}
	return utils.OK(c, page.Messages, "messages", fiber.Map{"hasMore": page.HasMore})
}

func (h *RoomHandler) fail(c *fiber.Ctx, err error, message string) error {
	if errors.Is(err, service.ErrRoomNotFound) {
		return utils.SendError(c, fiber.StatusNotFound, "Room not found")
	}
	requestLogger(h.logger, c).Error().Err(err).Msg(message)
	return utils.SendError(c, fiber.StatusInternalServerError, message)
}
