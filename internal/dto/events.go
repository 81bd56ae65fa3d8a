package dto

import "encoding/json"

// Inbound websocket events.
const (
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventSendMessage        = "send-message"
	EventUpdateMessage      = "update-message"
	EventDeleteMessage      = "delete-message"
	EventReadMessage        = "read-message"
	EventStartTyping        = "start-typing"
	EventStopTyping         = "stop-typing"
	EventStartPrivateCall   = "start-private-call"
	EventAnswerPrivateCall  = "answer-private-call"
	EventDeclinePrivateCall = "decline-private-call"
	EventEndPrivateCall     = "end-private-call"
	EventShareCandidate     = "share-candidate"
)

// Outbound websocket events.
const (
	EventError               = "error"
	EventUserConnected       = "user-connected"
	EventUserDisconnected    = "user-disconnected"
	EventRoomJoined          = "room-joined"
	EventRoomLeft            = "room-leaved"
	EventMessageReceived     = "message-received"
	EventMessageUpdated      = "message-updated"
	EventMessageDeleted      = "message-deleted"
	EventMessageRead         = "message-readed"
	EventTypingStarted       = "typing-started"
	EventTypingStopped       = "typing-stopped"
	EventPrivateCallReceived = "private-call-received"
	EventPrivateCallAnswered = "private-call-answered"
	EventPrivateCallDeclined = "private-call-declined"
	EventPrivateCallEnded    = "private-call-ended"
	EventCandidateReceived   = "candidate-received"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// InboundFrame keeps the payload raw until the event's schema is known.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
