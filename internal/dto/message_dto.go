package dto

import (
	"time"

	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

// ReplyPreviewDepth is how many levels of reply targets a hydrated message expands.
const ReplyPreviewDepth = 1

// AttachmentResponse mirrors an attachment exactly as the sender supplied it.
type AttachmentResponse struct {
	ID       string `json:"id"`
	URL      string `json:"URL"`
	MimeType string `json:"mimeType"`
}

// MessageResponse is the hydrated message projection sent to clients.
type MessageResponse struct {
	ID          string               `json:"id"`
	RoomID      string               `json:"roomId"`
	Content     *string              `json:"content"`
	Sender      *UserResponse        `json:"sender"`
	Attachments []AttachmentResponse `json:"attachments"`
	ReplyOn     *MessageResponse     `json:"replyOn,omitempty"`
	ReadedByMe  bool                 `json:"readedByMe"`
	ReadAt      *time.Time           `json:"readAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// MessagesPage is one page of room history, newest first.
type MessagesPage struct {
	Messages []MessageResponse `json:"messages"`
	HasMore  bool              `json:"hasMore"`
}

// RoomMessagesQuery describes the history query string.
type RoomMessagesQuery struct {
	LastMessageID string `query:"lastMessageId" json:"lastMessageId" validate:"omitempty,numeric"`
	Limit         int    `query:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

// HydrateMessage projects a stored message for one viewer. Sender details come
// from the room roster, so a sender who left the room renders without identity.
func HydrateMessage(message models.Message, participants []models.RoomParticipant, viewerID uint) MessageResponse {
	return hydrate(message, participants, viewerID, ReplyPreviewDepth)
}

// HydrateMessages projects a page of messages for one viewer.
func HydrateMessages(messages []models.Message, participants []models.RoomParticipant, viewerID uint) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, HydrateMessage(message, participants, viewerID))
	}
	return out
}

func hydrate(message models.Message, participants []models.RoomParticipant, viewerID uint, depth int) MessageResponse {
	response := MessageResponse{
		ID:          FormatID(message.ID),
		RoomID:      FormatID(message.RoomID),
		Content:     message.Content,
		Attachments: make([]AttachmentResponse, 0, len(message.Attachments)),
		ReadedByMe:  message.ReadBy(viewerID),
		CreatedAt:   message.CreatedAt,
		UpdatedAt:   message.UpdatedAt,
	}

	for _, participant := range participants {
		if participant.UserID == message.SenderID {
			sender := NewUserResponse(participant.User)
			response.Sender = &sender
			break
		}
	}

	for _, attachment := range message.Attachments {
		response.Attachments = append(response.Attachments, AttachmentResponse{
			ID:       FormatID(attachment.ID),
			URL:      attachment.URL,
			MimeType: attachment.MimeType,
		})
	}

	for _, read := range message.Reads {
		if read.ReaderID == message.SenderID {
			continue
		}
		readAt := read.CreatedAt
		response.ReadAt = &readAt
		break
	}

	if depth > 0 && message.ReplyOn != nil {
		reply := hydrate(*message.ReplyOn, participants, viewerID, depth-1)
		response.ReplyOn = &reply
	}

	return response
}
