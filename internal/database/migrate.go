package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// activeCallIndex keeps at most one Ringing or Ongoing call per room across every
// gateway process. Both PostgreSQL and SQLite support partial unique indexes.
const activeCallIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_calls_active_room ON calls (room_id) WHERE status IN ('Ringing', 'Ongoing')`

// Migrate creates or updates the chat schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomParticipant{},
		&models.Message{},
		&models.MessageAttachment{},
		&models.MessageRead{},
		&models.Call{},
	); err != nil {
		return fmt.Errorf("failed to migrate chat schema: %w", err)
	}

	if err := db.Exec(activeCallIndex).Error; err != nil {
		return fmt.Errorf("failed to create active call index: %w", err)
	}

	return nil
}
