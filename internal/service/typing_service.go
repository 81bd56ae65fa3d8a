package service

import (
	"context"
	"errors"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

// TypingService relays typing indicators. Nothing is stored and clients are
// responsible for sending the matching stop event.
type TypingService interface {
	Start(ctx context.Context, userID uint, input dto.StartStopTypingInput) error
	Stop(ctx context.Context, userID uint, input dto.StartStopTypingInput) error
}

type typingService struct {
	rooms   repository.RoomRepository
	users   repository.UserRepository
	emitter Emitter
}

// NewTypingService constructs the typing relay.
func NewTypingService(rooms repository.RoomRepository, users repository.UserRepository, emitter Emitter) TypingService {
	return &typingService{rooms: rooms, users: users, emitter: emitter}
}

func (s *typingService) Start(ctx context.Context, userID uint, input dto.StartStopTypingInput) error {
	return s.relay(ctx, userID, input.RoomID, dto.EventTypingStarted)
}

func (s *typingService) Stop(ctx context.Context, userID uint, input dto.StartStopTypingInput) error {
	return s.relay(ctx, userID, input.RoomID, dto.EventTypingStopped)
}

func (s *typingService) relay(ctx context.Context, userID uint, roomID, event string) error {
	room, err := loadRoom(ctx, s.rooms, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil
		}
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ignoreNotFound(err)
	}

	s.emitter.ToRoom(ctx, dto.FormatID(room.ID), event, dto.TypingResponse{
		RoomID: dto.FormatID(room.ID),
		User:   dto.NewUserResponse(user),
	})
	return nil
}
