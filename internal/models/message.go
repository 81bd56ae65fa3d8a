package models

import "time"

// Message is a single chat entry owned by one room.
type Message struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	RoomID      uint                `gorm:"not null;index" json:"room_id"`
	SenderID    uint                `gorm:"not null;index" json:"sender_id"`
	Content     *string             `gorm:"type:text" json:"content"`
	ReplyOnID   *uint               `gorm:"index" json:"reply_on_id"`
	Attachments []MessageAttachment `json:"attachments"`
	Reads       []MessageRead       `json:"reads"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	// ReplyOn is resolved by the repository and never persisted through this field.
	ReplyOn *Message `gorm:"-" json:"-"`
}

// MessageAttachment is stored verbatim as supplied by the sender.
type MessageAttachment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;index" json:"message_id"`
	URL       string    `gorm:"size:2048;not null" json:"url"`
	MimeType  string    `gorm:"size:255;not null" json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRead records the first time a participant saw a message.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_message_reader" json:"message_id"`
	ReaderID  uint      `gorm:"not null;uniqueIndex:idx_message_reader" json:"reader_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadBy reports whether the user already has a read record on the message.
func (m Message) ReadBy(userID uint) bool {
	for _, read := range m.Reads {
		if read.ReaderID == userID {
			return true
		}
	}
	return false
}
