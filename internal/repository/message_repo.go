package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

const (
	defaultMessagePageSize = 30
	maxMessagePageSize     = 100
)

// MessageRepository persists messages with their attachments and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	FindPage(ctx context.Context, roomID, beforeID uint, limit int) ([]models.Message, error)
	Update(ctx context.Context, message *models.Message) error
	Delete(ctx context.Context, message models.Message) error
	CreateRead(ctx context.Context, read *models.MessageRead) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// NormalizePageSize clamps a requested page size to the supported range.
func NormalizePageSize(limit int) int {
	if limit <= 0 {
		return defaultMessagePageSize
	}
	if limit > maxMessagePageSize {
		return maxMessagePageSize
	}
	return limit
}

// Create stores the message and each attachment, then points the room's
// last message at it, all in one transaction.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attachments := message.Attachments
		if err := tx.Omit(clause.Associations).Create(message).Error; err != nil {
			return err
		}
		if err := createAttachments(tx, message.ID, attachments); err != nil {
			return err
		}
		message.Attachments = attachments
		return tx.Model(&models.Room{}).
			Where("id = ?", message.RoomID).
			Update("last_message_id", message.ID).Error
	})
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.withDetails(r.db.WithContext(ctx)).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}

	page := []models.Message{message}
	if err := r.attachReplies(ctx, page); err != nil {
		return models.Message{}, err
	}
	return page[0], nil
}

// FindPage returns up to limit messages of the room older than beforeID (when
// non-zero), newest first.
func (r *messageRepository) FindPage(ctx context.Context, roomID, beforeID uint, limit int) ([]models.Message, error) {
	limit = NormalizePageSize(limit)

	query := r.withDetails(r.db.WithContext(ctx)).Where("room_id = ?", roomID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var messages []models.Message
	if err := query.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	if err := r.attachReplies(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Update replaces content, reply target and the attachment list.
func (r *messageRepository) Update(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		err := tx.Model(&models.Message{}).
			Where("id = ?", message.ID).
			Updates(map[string]interface{}{
				"content":     message.Content,
				"reply_on_id": message.ReplyOnID,
				"updated_at":  now,
			}).Error
		if err != nil {
			return err
		}
		message.UpdatedAt = now

		if err := tx.Where("message_id = ?", message.ID).Delete(&models.MessageAttachment{}).Error; err != nil {
			return err
		}
		attachments := message.Attachments
		for i := range attachments {
			attachments[i].ID = 0
		}
		if err := createAttachments(tx, message.ID, attachments); err != nil {
			return err
		}
		message.Attachments = attachments
		return nil
	})
}

// Delete hard-deletes the message with its attachments and reads. When the
// message was the room's last message the pointer moves to the newest survivor.
func (r *messageRepository) Delete(ctx context.Context, message models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", message.ID).Delete(&models.MessageRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", message.ID).Delete(&models.MessageAttachment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Message{}, message.ID).Error; err != nil {
			return err
		}

		var latest models.Message
		if err := tx.Where("room_id = ?", message.RoomID).Order("id DESC").Limit(1).Find(&latest).Error; err != nil {
			return err
		}
		var next *uint
		if latest.ID != 0 {
			next = &latest.ID
		}
		return tx.Model(&models.Room{}).
			Where("id = ? AND last_message_id = ?", message.RoomID, message.ID).
			Update("last_message_id", next).Error
	})
}

func (r *messageRepository) CreateRead(ctx context.Context, read *models.MessageRead) error {
	err := r.db.WithContext(ctx).Create(read).Error
	if isUniqueViolation(err) {
		return ErrAlreadyRead
	}
	return err
}

func (r *messageRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("message_attachments.id ASC")
		}).
		Preload("Reads", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("message_reads.created_at ASC").Order("message_reads.id ASC")
		})
}

// attachReplies resolves one level of reply targets. Targets that were deleted
// are left nil.
func (r *messageRepository) attachReplies(ctx context.Context, messages []models.Message) error {
	ids := make([]uint, 0, len(messages))
	for _, message := range messages {
		if message.ReplyOnID != nil {
			ids = append(ids, *message.ReplyOnID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var targets []models.Message
	if err := r.withDetails(r.db.WithContext(ctx)).Where("id IN ?", ids).Find(&targets).Error; err != nil {
		return err
	}

	byID := make(map[uint]models.Message, len(targets))
	for _, target := range targets {
		byID[target.ID] = target
	}
	for i := range messages {
		if messages[i].ReplyOnID == nil {
			continue
		}
		if target, ok := byID[*messages[i].ReplyOnID]; ok {
			target := target
			messages[i].ReplyOn = &target
		}
	}
	return nil
}

func createAttachments(tx *gorm.DB, messageID uint, attachments []models.MessageAttachment) error {
	if len(attachments) == 0 {
		return nil
	}
	for i := range attachments {
		attachments[i].MessageID = messageID
	}
	return tx.Create(&attachments).Error
}
