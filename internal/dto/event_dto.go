package dto

import (
	"encoding/json"
	"time"
)

// Inbound websocket payloads. Every event is first checked against its JSON
// schema, then decoded into these structs and checked with struct tags.

// JoinLeaveRoomInput is the payload of join-room and leave-room.
type JoinLeaveRoomInput struct {
	RoomID string `json:"roomId" validate:"required"`
}

// MessageAttachmentInput is one attachment reference supplied by the sender.
type MessageAttachmentInput struct {
	URL      string `json:"URL" validate:"required,max=2048"`
	MimeType string `json:"mimeType" validate:"required,max=255"`
}

// MessageInput carries the editable parts of a message.
type MessageInput struct {
	ReplyOn     *string                  `json:"replyOn" validate:"omitempty"`
	Content     *string                  `json:"content" validate:"omitempty,max=4000"`
	Attachments []MessageAttachmentInput `json:"attachments" validate:"required,dive"`
}

// SendMessageInput is the payload of send-message.
type SendMessageInput struct {
	RoomID  string       `json:"roomId" validate:"required"`
	Message MessageInput `json:"message" validate:"required"`
}

// UpdateMessageBody is MessageInput with optional attachments. A nil slice
// keeps the stored attachments; an empty one clears them.
type UpdateMessageBody struct {
	ReplyOn     *string                  `json:"replyOn" validate:"omitempty"`
	Content     *string                  `json:"content" validate:"omitempty,max=4000"`
	Attachments []MessageAttachmentInput `json:"attachments" validate:"omitempty,dive"`
}

// UpdateMessageInput is the payload of update-message.
type UpdateMessageInput struct {
	RoomID    string            `json:"roomId" validate:"required"`
	MessageID string            `json:"messageId" validate:"required"`
	Message   UpdateMessageBody `json:"message" validate:"required"`
}

// ReadDeleteMessageInput is the payload of read-message and delete-message.
type ReadDeleteMessageInput struct {
	RoomID    string `json:"roomId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

// StartStopTypingInput is the payload of start-typing and stop-typing.
type StartStopTypingInput struct {
	RoomID string `json:"roomId" validate:"required"`
}

// SendCallOfferInput is the payload of start-private-call.
type SendCallOfferInput struct {
	RoomID string          `json:"roomId" validate:"required"`
	Offer  json.RawMessage `json:"offer" validate:"required"`
}

// AnswerCallOfferInput is the payload of answer-private-call.
type AnswerCallOfferInput struct {
	RoomID string          `json:"roomId" validate:"required"`
	Answer json.RawMessage `json:"answer" validate:"required"`
}

// CallRoomInput is the payload of decline-private-call and end-private-call.
type CallRoomInput struct {
	RoomID string `json:"roomId" validate:"required"`
}

// ShareCandidateInput is the payload of share-candidate.
type ShareCandidateInput struct {
	RoomID    string          `json:"roomId" validate:"required"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

// Outbound payloads.

// RoomEventResponse acknowledges join-room and leave-room.
type RoomEventResponse struct {
	RoomID string `json:"roomId"`
}

// ReadMessageResponse is broadcast when a participant reads a message.
type ReadMessageResponse struct {
	RoomID    string    `json:"roomId"`
	MessageID string    `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

// DeleteMessageResponse is broadcast when a message is removed.
type DeleteMessageResponse struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// TypingResponse is broadcast on typing-started and typing-stopped.
type TypingResponse struct {
	RoomID string       `json:"roomId"`
	User   UserResponse `json:"user"`
}

// CallOfferResponse is relayed to the callee on private-call-received.
type CallOfferResponse struct {
	RoomID string          `json:"roomId"`
	From   string          `json:"from"`
	Offer  json.RawMessage `json:"offer"`
	Call   CallResponse    `json:"call"`
}

// CallAnswerResponse is relayed to the caller on private-call-answered.
type CallAnswerResponse struct {
	RoomID string          `json:"roomId"`
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

// CallPeerResponse is relayed on private-call-declined and private-call-ended.
type CallPeerResponse struct {
	RoomID string `json:"roomId"`
	From   string `json:"from"`
}

// CandidateResponse is relayed on candidate-received.
type CandidateResponse struct {
	RoomID    string          `json:"roomId"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

// ErrorResponse is sent to a single connection when an event is rejected.
type ErrorResponse struct {
	Event   string   `json:"event"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}
