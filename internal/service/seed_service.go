package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

// ErrSeedUnknownUser indicates a seed room references a username missing from the plan.
var ErrSeedUnknownUser = errors.New("seed room references unknown user")

// SeedUser describes a user created by the seeder.
type SeedUser struct {
	Name     string                 `json:"name"`
	Username string                 `json:"username"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SeedRoom describes a room created by the seeder. Members and admins are
// usernames; admins are added after the room exists.
type SeedRoom struct {
	Name    string          `json:"name"`
	Type    models.RoomType `json:"type"`
	Creator string          `json:"creator"`
	Members []string        `json:"members"`
	Admins  []string        `json:"admins,omitempty"`
}

// SeedPlan is the full dataset applied by Seed.
type SeedPlan struct {
	Users []SeedUser `json:"users"`
	Rooms []SeedRoom `json:"rooms"`
}

// SeedResult lists what the seeder stored.
type SeedResult struct {
	Users []models.User
	Rooms []models.Room
}

// SeedService loads demo users and rooms for local development.
type SeedService interface {
	Seed(ctx context.Context, plan SeedPlan) (SeedResult, error)
}

type seedService struct {
	users  repository.UserRepository
	rooms  RoomService
	logger zerolog.Logger
}

// NewSeedService constructs a seeding service. Rooms go through RoomService so
// the private room invariants hold for seeded data too.
func NewSeedService(users repository.UserRepository, rooms RoomService, logger zerolog.Logger) SeedService {
	return &seedService{
		users:  users,
		rooms:  rooms,
		logger: logger.With().Str("component", "seed_service").Logger(),
	}
}

// DefaultSeedPlan returns a small dataset with one private and one group room.
func DefaultSeedPlan() SeedPlan {
	return SeedPlan{
		Users: []SeedUser{
			{Name: "Alice Pratama", Username: "alice"},
			{Name: "Budi Santoso", Username: "budi"},
			{Name: "Citra Lestari", Username: "citra"},
		},
		Rooms: []SeedRoom{
			{Type: models.RoomTypePrivate, Creator: "alice", Members: []string{"budi"}},
			{Name: "Study Group", Type: models.RoomTypeGroup, Creator: "alice", Members: []string{"budi"}, Admins: []string{"citra"}},
		},
	}
}

// Seed creates the users that do not exist yet, then every room of the plan.
func (s *seedService) Seed(ctx context.Context, plan SeedPlan) (SeedResult, error) {
	byUsername := make(map[string]models.User, len(plan.Users))
	result := SeedResult{}

	for _, item := range plan.Users {
		user, err := s.ensureUser(ctx, item)
		if err != nil {
			return SeedResult{}, err
		}
		byUsername[user.Username] = user
		result.Users = append(result.Users, user)
	}

	for _, item := range plan.Rooms {
		room, err := s.createRoom(ctx, item, byUsername)
		if err != nil {
			return SeedResult{}, err
		}
		result.Rooms = append(result.Rooms, room)
	}

	s.logger.Info().Int("users", len(result.Users)).Int("rooms", len(result.Rooms)).Msg("chat data seeded")
	return result, nil
}

func (s *seedService) ensureUser(ctx context.Context, item SeedUser) (models.User, error) {
	username := strings.ToLower(strings.TrimSpace(item.Username))
	existing, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, err
	}

	user := models.User{Name: strings.TrimSpace(item.Name), Username: username, Metadata: item.Metadata}
	if user.Name == "" {
		user.Name = username
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return models.User{}, fmt.Errorf("failed to seed user %s: %w", username, err)
	}
	return user, nil
}

func (s *seedService) createRoom(ctx context.Context, item SeedRoom, byUsername map[string]models.User) (models.Room, error) {
	resolve := func(username string) (uint, error) {
		user, ok := byUsername[strings.ToLower(strings.TrimSpace(username))]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrSeedUnknownUser, username)
		}
		return user.ID, nil
	}

	creatorID, err := resolve(item.Creator)
	if err != nil {
		return models.Room{}, err
	}
	memberIDs := make([]uint, 0, len(item.Members))
	for _, member := range item.Members {
		id, err := resolve(member)
		if err != nil {
			return models.Room{}, err
		}
		memberIDs = append(memberIDs, id)
	}

	room, err := s.rooms.Create(ctx, CreateRoomInput{
		Name:           item.Name,
		Type:           item.Type,
		CreatorID:      creatorID,
		ParticipantIDs: memberIDs,
	})
	if err != nil {
		return models.Room{}, err
	}

	for _, admin := range item.Admins {
		id, err := resolve(admin)
		if err != nil {
			return models.Room{}, err
		}
		if room.HasParticipant(id) {
			continue
		}
		if err := s.rooms.AddParticipant(ctx, room.ID, id, models.ParticipantRoleAdmin); err != nil {
			return models.Room{}, fmt.Errorf("failed to add admin %s: %w", admin, err)
		}
	}

	if len(item.Admins) == 0 {
		return room, nil
	}
	return s.rooms.Find(ctx, dto.FormatID(room.ID))
}
