package models

import "time"

// RoomType distinguishes two-person rooms from group rooms.
type RoomType string

const (
	RoomTypePrivate RoomType = "Private"
	RoomTypeGroup   RoomType = "Group"
)

// ParticipantRole is the role of a user inside a room.
type ParticipantRole string

const (
	ParticipantRoleAdmin  ParticipantRole = "Admin"
	ParticipantRoleMember ParticipantRole = "Member"
)

// PrivateRoomSize is the exact participant count of a private room.
const PrivateRoomSize = 2

// Room groups participants and their messages. Private rooms never persist a
// display name; it is rendered per viewer.
type Room struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Name          string            `gorm:"size:255" json:"name"`
	Type          RoomType          `gorm:"size:16;not null;index" json:"type"`
	LastMessageID *uint             `gorm:"index" json:"last_message_id"`
	Participants  []RoomParticipant `json:"participants"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RoomParticipant embeds a user into a room with a role.
type RoomParticipant struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	RoomID    uint            `gorm:"not null;uniqueIndex:idx_room_participant" json:"room_id"`
	UserID    uint            `gorm:"not null;uniqueIndex:idx_room_participant;index" json:"user_id"`
	Role      ParticipantRole `gorm:"size:16;not null;default:Member" json:"role"`
	User      User            `gorm:"foreignKey:UserID" json:"user"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsPrivate reports whether the room is a two-person room.
func (r Room) IsPrivate() bool {
	return r.Type == RoomTypePrivate
}

// HasParticipant reports whether the user is part of the room roster.
func (r Room) HasParticipant(userID uint) bool {
	_, ok := r.Participant(userID)
	return ok
}

// Participant returns the roster entry of the user.
func (r Room) Participant(userID uint) (RoomParticipant, bool) {
	for _, participant := range r.Participants {
		if participant.UserID == userID {
			return participant, true
		}
	}
	return RoomParticipant{}, false
}

// Peers returns every participant except the given user.
func (r Room) Peers(userID uint) []RoomParticipant {
	peers := make([]RoomParticipant, 0, len(r.Participants))
	for _, participant := range r.Participants {
		if participant.UserID != userID {
			peers = append(peers, participant)
		}
	}
	return peers
}
