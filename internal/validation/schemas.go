package validation

import "github.com/noah-isme/gema-chat-gateway/internal/dto"

const (
	roomOnlySchema = `{
  "type": "object",
  "required": ["roomId"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1}
  }
}`

	messageRefSchema = `{
  "type": "object",
  "required": ["roomId", "messageId"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1},
    "messageId": {"type": "string", "minLength": 1}
  }
}`

	sendMessageSchema = `{
  "type": "object",
  "required": ["roomId", "message"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1},
    "message": {
      "type": "object",
      "required": ["attachments"],
      "properties": {
        "content": {"type": ["string", "null"]},
        "replyOn": {"type": ["string", "null"]},
        "attachments": {"type": "array", "items": {"$ref": "#/$defs/attachment"}}
      }
    }
  },
  "$defs": {
    "attachment": {
      "type": "object",
      "required": ["URL", "mimeType"],
      "properties": {
        "URL": {"type": "string", "minLength": 1},
        "mimeType": {"type": "string", "minLength": 1}
      }
    }
  }
}`

	updateMessageSchema = `{
  "type": "object",
  "required": ["roomId", "messageId", "message"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1},
    "messageId": {"type": "string", "minLength": 1},
    "message": {
      "type": "object",
      "minProperties": 1,
      "properties": {
        "content": {"type": ["string", "null"]},
        "replyOn": {"type": ["string", "null"]},
        "attachments": {"type": "array", "items": {"$ref": "#/$defs/attachment"}}
      }
    }
  },
  "$defs": {
    "attachment": {
      "type": "object",
      "required": ["URL", "mimeType"],
      "properties": {
        "URL": {"type": "string", "minLength": 1},
        "mimeType": {"type": "string", "minLength": 1}
      }
    }
  }
}`

	callOfferSchema = `{
  "type": "object",
  "required": ["roomId", "offer"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1},
    "offer": {"type": "object"}
  }
}`

	callAnswerSchema = `{
  "type": "object",
  "required": ["roomId", "answer"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1},
    "answer": {"type": "object"}
  }
}`

	candidateSchema = `{
  "type": "object",
  "required": ["roomId", "candidate"],
  "properties": {
    "roomId": {"type": "string", "minLength": 1},
    "candidate": {"type": "object"}
  }
}`
)

// eventSchemas maps every inbound event to the JSON schema of its payload.
var eventSchemas = map[string]string{
	dto.EventJoinRoom:           roomOnlySchema,
	dto.EventLeaveRoom:          roomOnlySchema,
	dto.EventSendMessage:        sendMessageSchema,
	dto.EventUpdateMessage:      updateMessageSchema,
	dto.EventDeleteMessage:      messageRefSchema,
	dto.EventReadMessage:        messageRefSchema,
	dto.EventStartTyping:        roomOnlySchema,
	dto.EventStopTyping:         roomOnlySchema,
	dto.EventStartPrivateCall:   callOfferSchema,
	dto.EventAnswerPrivateCall:  callAnswerSchema,
	dto.EventDeclinePrivateCall: roomOnlySchema,
	dto.EventEndPrivateCall:     roomOnlySchema,
	dto.EventShareCandidate:     candidateSchema,
}
