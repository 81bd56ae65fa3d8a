package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// RoomResponse is the room summary rendered for one viewer.
type RoomResponse struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Type              models.RoomType  `json:"type"`
	ParticipantsCount int              `json:"participantsCount"`
	LastMessage       *MessageResponse `json:"lastMessage"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// ParticipantResponse pairs a roster user with their role.
type ParticipantResponse struct {
	User UserResponse           `json:"user"`
	Role models.ParticipantRole `json:"role"`
}

// RoomDetailsResponse extends the summary with the full roster.
type RoomDetailsResponse struct {
	RoomResponse
	Participants []ParticipantResponse `json:"participants"`
}

// RoomDisplayName returns the stored name of a group room, or the other
// participant's name for a private room.
func RoomDisplayName(room models.Room, viewerID uint) string {
	if !room.IsPrivate() {
		return room.Name
	}
	for _, peer := range room.Peers(viewerID) {
		return peer.User.Name
	}
	return room.Name
}

// NewRoomResponse renders a room for the viewer. lastMessage may be nil.
func NewRoomResponse(room models.Room, lastMessage *models.Message, viewerID uint) RoomResponse {
	response := RoomResponse{
		ID:                FormatID(room.ID),
		Name:              RoomDisplayName(room, viewerID),
		Type:              room.Type,
		ParticipantsCount: len(room.Participants),
		CreatedAt:         room.CreatedAt,
	}
	if lastMessage != nil {
		hydrated := HydrateMessage(*lastMessage, room.Participants, viewerID)
		response.LastMessage = &hydrated
	}
	return response
}

// NewRoomDetailsResponse renders a room with its roster.
func NewRoomDetailsResponse(room models.Room, lastMessage *models.Message, viewerID uint) RoomDetailsResponse {
	participants := make([]ParticipantResponse, 0, len(room.Participants))
	for _, participant := range room.Participants {
		participants = append(participants, ParticipantResponse{
			User: NewUserResponse(participant.User),
			Role: participant.Role,
		})
	}
	return RoomDetailsResponse{
		RoomResponse: NewRoomResponse(room, lastMessage, viewerID),
		Participants: participants,
	}
}
