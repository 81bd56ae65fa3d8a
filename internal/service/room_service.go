package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

// CreateRoomInput describes a room created by tooling.
type CreateRoomInput struct {
	Name           string
	Type           models.RoomType
	CreatorID      uint
	ParticipantIDs []uint
}

// RoomService resolves memberships and owns the room roster invariants.
type RoomService interface {
	ResolveMemberships(ctx context.Context, userID uint) ([]string, error)
	Find(ctx context.Context, roomID string) (models.Room, error)
	ListForUser(ctx context.Context, userID uint) ([]dto.RoomResponse, error)
	Details(ctx context.Context, userID uint, roomID string) (dto.RoomDetailsResponse, error)
	Create(ctx context.Context, input CreateRoomInput) (models.Room, error)
	AddParticipant(ctx context.Context, roomID, userID uint, role models.ParticipantRole) error
	RemoveParticipant(ctx context.Context, roomID, userID uint) error
	Rename(ctx context.Context, roomID uint, name string) error
}

type roomService struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewRoomService constructs the room service.
func NewRoomService(rooms repository.RoomRepository, messages repository.MessageRepository, logger zerolog.Logger) RoomService {
	return &roomService{
		rooms:     rooms,
		messages:  messages,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "room_service").Logger(),
	}
}

// ResolveMemberships returns the wire ids of every room of the user, most
// recently active first.
func (s *roomService) ResolveMemberships(ctx context.Context, userID uint) ([]string, error) {
	rooms, err := s.rooms.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve memberships: %w", err)
	}
	ids := make([]string, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, dto.FormatID(room.ID))
	}
	return ids, nil
}

func (s *roomService) Find(ctx context.Context, roomID string) (models.Room, error) {
	return loadRoom(ctx, s.rooms, roomID)
}

func (s *roomService) ListForUser(ctx context.Context, userID uint) ([]dto.RoomResponse, error) {
	rooms, err := s.rooms.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		last, err := s.lastMessage(ctx, room)
		if err != nil {
			return nil, err
		}
		out = append(out, dto.NewRoomResponse(room, last, userID))
	}
	return out, nil
}

// Details renders a room for one of its participants. Non-participants get
// ErrRoomNotFound so room existence is not revealed.
func (s *roomService) Details(ctx context.Context, userID uint, roomID string) (dto.RoomDetailsResponse, error) {
	room, err := loadRoom(ctx, s.rooms, roomID)
	if err != nil {
		return dto.RoomDetailsResponse{}, err
	}
	if !room.HasParticipant(userID) {
		return dto.RoomDetailsResponse{}, ErrRoomNotFound
	}

	last, err := s.lastMessage(ctx, room)
	if err != nil {
		return dto.RoomDetailsResponse{}, err
	}
	return dto.NewRoomDetailsResponse(room, last, userID), nil
}

// Create stores a room. A private room keeps the first two distinct users and
// never stores a name; the creator of a group room becomes its admin.
func (s *roomService) Create(ctx context.Context, input CreateRoomInput) (models.Room, error) {
	ids := distinctIDs(append([]uint{input.CreatorID}, input.ParticipantIDs...))

	room := models.Room{Type: input.Type}
	switch input.Type {
	case models.RoomTypePrivate:
		if len(ids) > models.PrivateRoomSize {
			ids = ids[:models.PrivateRoomSize]
		}
		if len(ids) != models.PrivateRoomSize {
			return models.Room{}, ErrPrivateRoomParticipants
		}
	case models.RoomTypeGroup:
		if len(ids) == 0 {
			return models.Room{}, ErrEmptyRoom
		}
		room.Name = strings.TrimSpace(s.sanitizer.Sanitize(input.Name))
	default:
		return models.Room{}, fmt.Errorf("unsupported room type %q", input.Type)
	}

	for _, id := range ids {
		role := models.ParticipantRoleMember
		if input.Type == models.RoomTypeGroup && id == input.CreatorID {
			role = models.ParticipantRoleAdmin
		}
		room.Participants = append(room.Participants, models.RoomParticipant{UserID: id, Role: role})
	}

	if err := s.rooms.Create(ctx, &room); err != nil {
		return models.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	s.logger.Info().Uint("room_id", room.ID).Str("type", string(room.Type)).Int("participants", len(ids)).Msg("room created")

	return s.rooms.FindByID(ctx, room.ID)
}

func (s *roomService) AddParticipant(ctx context.Context, roomID, userID uint, role models.ParticipantRole) error {
	room, err := s.findByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsPrivate() {
		return ErrPrivateRoomRoster
	}
	return s.rooms.AddParticipant(ctx, room.ID, userID, role)
}

func (s *roomService) RemoveParticipant(ctx context.Context, roomID, userID uint) error {
	room, err := s.findByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsPrivate() {
		return ErrPrivateRoomRoster
	}
	if !room.HasParticipant(userID) {
		return nil
	}
	if len(room.Participants) == 1 {
		return ErrEmptyRoom
	}
	return s.rooms.RemoveParticipant(ctx, room.ID, userID)
}

// Rename updates a group room name. Private rooms are left untouched.
func (s *roomService) Rename(ctx context.Context, roomID uint, name string) error {
	room, err := s.findByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsPrivate() {
		return nil
	}
	return s.rooms.UpdateName(ctx, room.ID, strings.TrimSpace(s.sanitizer.Sanitize(name)))
}

func (s *roomService) findByID(ctx context.Context, roomID uint) (models.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, ErrRoomNotFound
		}
		return models.Room{}, err
	}
	return room, nil
}

func (s *roomService) lastMessage(ctx context.Context, room models.Room) (*models.Message, error) {
	if room.LastMessageID == nil {
		return nil, nil
	}
	message, err := s.messages.FindByID(ctx, *room.LastMessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// loadRoom resolves a wire room id. Ids that do not parse are reported as not found.
func loadRoom(ctx context.Context, rooms repository.RoomRepository, rawID string) (models.Room, error) {
	id, ok := dto.ParseID(rawID)
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	room, err := rooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, ErrRoomNotFound
		}
		return models.Room{}, err
	}
	return room, nil
}

func distinctIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
