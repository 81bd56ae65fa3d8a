package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// RoomRepository persists rooms together with their embedded participant roster.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id uint) (models.Room, error)
	FindAllForUser(ctx context.Context, userID uint) ([]models.Room, error)
	AddParticipant(ctx context.Context, roomID, userID uint, role models.ParticipantRole) error
	RemoveParticipant(ctx context.Context, roomID, userID uint) error
	UpdateName(ctx context.Context, roomID uint, name string) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		participants := room.Participants
		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].RoomID = room.ID
			if participants[i].Role == "" {
				participants[i].Role = models.ParticipantRoleMember
			}
		}
		if len(participants) > 0 {
			if err := tx.Omit("User").Create(&participants).Error; err != nil {
				return err
			}
		}
		room.Participants = participants
		return nil
	})
}

func (r *roomRepository) FindByID(ctx context.Context, id uint) (models.Room, error) {
	var room models.Room
	if err := r.withRoster(r.db.WithContext(ctx)).First(&room, id).Error; err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// FindAllForUser lists the rooms of a participant, most recently active first.
func (r *roomRepository) FindAllForUser(ctx context.Context, userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := r.withRoster(r.db.WithContext(ctx)).
		Select("rooms.*").
		Joins("JOIN room_participants ON room_participants.room_id = rooms.id AND room_participants.user_id = ?", userID).
		Order("COALESCE(rooms.last_message_id, 0) DESC").
		Order("rooms.created_at DESC").
		Order("rooms.id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) AddParticipant(ctx context.Context, roomID, userID uint, role models.ParticipantRole) error {
	if role == "" {
		role = models.ParticipantRoleMember
	}
	participant := models.RoomParticipant{RoomID: roomID, UserID: userID, Role: role}
	err := r.db.WithContext(ctx).Omit("User").Create(&participant).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

func (r *roomRepository) RemoveParticipant(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomParticipant{}).Error
}

func (r *roomRepository) UpdateName(ctx context.Context, roomID uint, name string) error {
	return r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("name", name).Error
}

func (r *roomRepository) withRoster(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Participants", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("room_participants.id ASC")
		}).
		Preload("Participants.User")
}
