package models

import (
	"time"

	"gorm.io/datatypes"
)

// User is a chat account. Online state is owned by the realtime gateway.
type User struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"size:128;not null" json:"name"`
	Username  string            `gorm:"size:64;not null;uniqueIndex" json:"username"`
	AvatarURL *string           `gorm:"size:512" json:"avatar_url"`
	IsOnline  bool              `gorm:"not null;default:false" json:"is_online"`
	LastSeen  *time.Time        `json:"last_seen"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
