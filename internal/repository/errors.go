package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrActiveCallExists indicates the room already has a Ringing or Ongoing call.
	ErrActiveCallExists = errors.New("room already has an active call")
	// ErrAlreadyRead indicates the reader already has a read record on the message.
	ErrAlreadyRead = errors.New("message already read by user")
	// ErrStaleCallStatus indicates a conditional status update found the call in another state.
	ErrStaleCallStatus = errors.New("call status changed concurrently")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
