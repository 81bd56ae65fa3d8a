package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// UserResponse is the public projection of a chat user.
type UserResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Username  string                 `json:"username"`
	AvatarURL *string                `json:"avatarURL"`
	IsOnline  bool                   `json:"isOnline"`
	LastSeen  *time.Time             `json:"lastSeen"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// NewUserResponse converts a user model into its public projection.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:        FormatID(user.ID),
		Name:      user.Name,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		IsOnline:  user.IsOnline,
		LastSeen:  user.LastSeen,
		Metadata:  user.Metadata,
	}
}

// UserPresenceResponse is broadcast server-wide when a user connects or disconnects.
type UserPresenceResponse struct {
	ID string `json:"id"`
}
