package service

import (
	"context"
	"errors"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/observability"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

// MessageService runs the message pipeline. Requests that reference missing
// rooms, messages or users, or that come from someone other than the sender,
// are dropped without an error.
type MessageService interface {
	Send(ctx context.Context, senderID uint, input dto.SendMessageInput) error
	Update(ctx context.Context, senderID uint, input dto.UpdateMessageInput) error
	Delete(ctx context.Context, requesterID uint, input dto.ReadDeleteMessageInput) error
	MarkRead(ctx context.Context, readerID uint, input dto.ReadDeleteMessageInput) error
	Page(ctx context.Context, viewerID uint, roomID string, query dto.RoomMessagesQuery) (dto.MessagesPage, error)
}

type messageService struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	users     repository.UserRepository
	emitter   Emitter
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewMessageService constructs the message pipeline.
func NewMessageService(rooms repository.RoomRepository, messages repository.MessageRepository, users repository.UserRepository, emitter Emitter, logger zerolog.Logger) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		rooms:     rooms,
		messages:  messages,
		users:     users,
		emitter:   emitter,
		sanitizer: sanitizer,
		tracer:    observability.Tracer("message"),
		logger:    logger.With().Str("component", "message_service").Logger(),
	}
}

func (s *messageService) Send(ctx context.Context, senderID uint, input dto.SendMessageInput) error {
	ctx, span := s.tracer.Start(ctx, "chat.message.send", trace.WithAttributes(
		attribute.String("chat.room_id", input.RoomID),
		attribute.Int64("chat.sender_id", int64(senderID)),
	))
	defer span.End()

	room, ok, err := s.findRoom(ctx, input.RoomID)
	if err != nil || !ok {
		return recordSpanError(span, err)
	}
	if _, err := s.users.FindByID(ctx, senderID); err != nil {
		return recordSpanError(span, ignoreNotFound(err))
	}
	if !room.HasParticipant(senderID) {
		s.logger.Debug().Uint("room_id", room.ID).Uint("user_id", senderID).Msg("dropping message from non participant")
		return nil
	}

	message := models.Message{
		RoomID:      room.ID,
		SenderID:    senderID,
		Content:     s.cleanContent(input.Message.Content),
		Attachments: toAttachments(input.Message.Attachments),
	}
	if message.Content == nil && len(message.Attachments) == 0 {
		return ErrEmptyMessage
	}

	replyOnID, err := s.resolveReply(ctx, room.ID, input.Message.ReplyOn)
	if err != nil {
		return recordSpanError(span, err)
	}
	message.ReplyOnID = replyOnID

	if err := s.messages.Create(ctx, &message); err != nil {
		return recordSpanError(span, err)
	}

	stored, err := s.messages.FindByID(ctx, message.ID)
	if err != nil {
		return recordSpanError(span, err)
	}

	observability.ChatMessages().WithLabelValues("sent").Inc()
	s.emitter.ToRoom(ctx, dto.FormatID(room.ID), dto.EventMessageReceived, dto.HydrateMessage(stored, room.Participants, senderID))
	return nil
}

// Update replaces the fields present in the payload. Content or reply target
// given as an empty string clears them; absent fields keep their stored value.
func (s *messageService) Update(ctx context.Context, senderID uint, input dto.UpdateMessageInput) error {
	ctx, span := s.tracer.Start(ctx, "chat.message.update", trace.WithAttributes(
		attribute.String("chat.room_id", input.RoomID),
		attribute.String("chat.message_id", input.MessageID),
	))
	defer span.End()

	room, message, ok, err := s.findRoomMessage(ctx, input.RoomID, input.MessageID)
	if err != nil || !ok {
		return recordSpanError(span, err)
	}
	if message.SenderID != senderID {
		return nil
	}

	if input.Message.Content != nil {
		message.Content = s.cleanContent(input.Message.Content)
	}
	if input.Message.Attachments != nil {
		message.Attachments = toAttachments(input.Message.Attachments)
	}
	if input.Message.ReplyOn != nil {
		replyOnID, err := s.resolveReply(ctx, room.ID, input.Message.ReplyOn)
		if err != nil {
			return recordSpanError(span, err)
		}
		if replyOnID != nil && *replyOnID == message.ID {
			replyOnID = nil
		}
		message.ReplyOnID = replyOnID
	}
	if message.Content == nil && len(message.Attachments) == 0 {
		return ErrEmptyMessage
	}

	if err := s.messages.Update(ctx, &message); err != nil {
		return recordSpanError(span, err)
	}

	stored, err := s.messages.FindByID(ctx, message.ID)
	if err != nil {
		return recordSpanError(span, err)
	}

	observability.ChatMessages().WithLabelValues("updated").Inc()
	s.emitter.ToRoom(ctx, dto.FormatID(room.ID), dto.EventMessageUpdated, dto.HydrateMessage(stored, room.Participants, senderID))
	return nil
}

func (s *messageService) Delete(ctx context.Context, requesterID uint, input dto.ReadDeleteMessageInput) error {
	ctx, span := s.tracer.Start(ctx, "chat.message.delete", trace.WithAttributes(
		attribute.String("chat.room_id", input.RoomID),
		attribute.String("chat.message_id", input.MessageID),
	))
	defer span.End()

	room, message, ok, err := s.findRoomMessage(ctx, input.RoomID, input.MessageID)
	if err != nil || !ok {
		return recordSpanError(span, err)
	}
	if message.SenderID != requesterID {
		return nil
	}

	if err := s.messages.Delete(ctx, message); err != nil {
		return recordSpanError(span, err)
	}

	observability.ChatMessages().WithLabelValues("deleted").Inc()
	s.emitter.ToRoom(ctx, dto.FormatID(room.ID), dto.EventMessageDeleted, dto.DeleteMessageResponse{
		RoomID:    dto.FormatID(room.ID),
		MessageID: dto.FormatID(message.ID),
	})
	return nil
}

func (s *messageService) MarkRead(ctx context.Context, readerID uint, input dto.ReadDeleteMessageInput) error {
	room, message, ok, err := s.findRoomMessage(ctx, input.RoomID, input.MessageID)
	if err != nil || !ok {
		return err
	}
	if message.SenderID == readerID || !room.HasParticipant(readerID) || message.ReadBy(readerID) {
		return nil
	}

	read := models.MessageRead{MessageID: message.ID, ReaderID: readerID}
	if err := s.messages.CreateRead(ctx, &read); err != nil {
		if errors.Is(err, repository.ErrAlreadyRead) {
			return nil
		}
		return err
	}

	observability.ChatMessages().WithLabelValues("read").Inc()
	s.emitter.ToRoom(ctx, dto.FormatID(room.ID), dto.EventMessageRead, dto.ReadMessageResponse{
		RoomID:    dto.FormatID(room.ID),
		MessageID: dto.FormatID(message.ID),
		ReadAt:    read.CreatedAt,
	})
	return nil
}

// Page returns room history older than query.LastMessageID for a participant.
func (s *messageService) Page(ctx context.Context, viewerID uint, roomID string, query dto.RoomMessagesQuery) (dto.MessagesPage, error) {
	room, err := loadRoom(ctx, s.rooms, roomID)
	if err != nil {
		return dto.MessagesPage{}, err
	}
	if !room.HasParticipant(viewerID) {
		return dto.MessagesPage{}, ErrRoomNotFound
	}

	var beforeID uint
	if strings.TrimSpace(query.LastMessageID) != "" {
		id, ok := dto.ParseID(query.LastMessageID)
		if !ok {
			return dto.MessagesPage{Messages: []dto.MessageResponse{}}, nil
		}
		beforeID = id
	}

	limit := repository.NormalizePageSize(query.Limit)
	messages, err := s.messages.FindPage(ctx, room.ID, beforeID, limit)
	if err != nil {
		return dto.MessagesPage{}, err
	}

	return dto.MessagesPage{
		Messages: dto.HydrateMessages(messages, room.Participants, viewerID),
		HasMore:  len(messages) == limit,
	}, nil
}

func (s *messageService) findRoom(ctx context.Context, roomID string) (models.Room, bool, error) {
	room, err := loadRoom(ctx, s.rooms, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return models.Room{}, false, nil
		}
		return models.Room{}, false, err
	}
	return room, true, nil
}

// findRoomMessage resolves both ids and requires the message to belong to the room.
func (s *messageService) findRoomMessage(ctx context.Context, roomID, messageID string) (models.Room, models.Message, bool, error) {
	room, ok, err := s.findRoom(ctx, roomID)
	if err != nil || !ok {
		return models.Room{}, models.Message{}, false, err
	}

	id, ok := dto.ParseID(messageID)
	if !ok {
		return models.Room{}, models.Message{}, false, nil
	}
	message, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return models.Room{}, models.Message{}, false, ignoreNotFound(err)
	}
	if message.RoomID != room.ID {
		return models.Room{}, models.Message{}, false, nil
	}
	return room, message, true, nil
}

// resolveReply keeps a reply target only when it exists in the same room.
func (s *messageService) resolveReply(ctx context.Context, roomID uint, raw *string) (*uint, error) {
	if raw == nil {
		return nil, nil
	}
	id, ok := dto.ParseID(*raw)
	if !ok {
		return nil, nil
	}
	target, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	if target.RoomID != roomID {
		return nil, nil
	}
	return &target.ID, nil
}

func (s *messageService) cleanContent(content *string) *string {
	if content == nil {
		return nil
	}
	clean := strings.TrimSpace(s.sanitizer.Sanitize(*content))
	if clean == "" {
		return nil
	}
	return &clean
}

func toAttachments(inputs []dto.MessageAttachmentInput) []models.MessageAttachment {
	attachments := make([]models.MessageAttachment, 0, len(inputs))
	for _, input := range inputs {
		attachments = append(attachments, models.MessageAttachment{URL: input.URL, MimeType: input.MimeType})
	}
	return attachments
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func recordSpanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
