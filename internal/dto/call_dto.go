package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// CallResponse projects a call record for one recipient.
type CallResponse struct {
	ID          string            `json:"id"`
	RoomID      string            `json:"roomId"`
	CallerID    string            `json:"callerId"`
	Status      models.CallStatus `json:"status"`
	IsYouCaller bool              `json:"isYouCaller"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// NewCallResponse converts a call for the given viewer.
func NewCallResponse(call models.Call, viewerID uint) CallResponse {
	return CallResponse{
		ID:          FormatID(call.ID),
		RoomID:      FormatID(call.RoomID),
		CallerID:    FormatID(call.CallerID),
		Status:      call.Status,
		IsYouCaller: call.CallerID == viewerID,
		CreatedAt:   call.CreatedAt,
	}
}
