package models

import "time"

// CallStatus is the lifecycle state of a private call.
type CallStatus string

const (
	CallStatusRinging  CallStatus = "Ringing"
	CallStatusOngoing  CallStatus = "Ongoing"
	CallStatusNoAnswer CallStatus = "NoAnswer"
	CallStatusDeclined CallStatus = "Declined"
	CallStatusEnded    CallStatus = "Ended"
)

// ActiveCallStatuses lists the statuses covered by the one-active-call-per-room index.
var ActiveCallStatuses = []CallStatus{CallStatusRinging, CallStatusOngoing}

var callTransitions = map[CallStatus][]CallStatus{
	CallStatusRinging: {CallStatusOngoing, CallStatusNoAnswer, CallStatusDeclined},
	CallStatusOngoing: {CallStatusEnded},
}

// Active reports whether the status blocks a new call in the same room.
func (s CallStatus) Active() bool {
	return s == CallStatusRinging || s == CallStatusOngoing
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s CallStatus) CanTransition(next CallStatus) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Call is a single attempt to ring the other participant of a private room.
// A finished call is never reused; the next attempt creates a new row.
type Call struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"not null;index" json:"room_id"`
	CallerID  uint       `gorm:"not null;index" json:"caller_id"`
	Status    CallStatus `gorm:"size:16;not null;default:Ringing;index" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
