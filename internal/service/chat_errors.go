package service

import "errors"

var (
	// ErrRoomNotFound indicates the room id is unknown or not visible to the caller.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotPrivate indicates a call operation on a group room.
	ErrRoomNotPrivate = errors.New("room is not private")
	// ErrPrivateRoomParticipants indicates a private room would not have exactly two participants.
	ErrPrivateRoomParticipants = errors.New("private room requires exactly two participants")
	// ErrPrivateRoomRoster indicates an attempt to change the roster of a private room.
	ErrPrivateRoomRoster = errors.New("private room participants cannot change")
	// ErrEmptyRoom indicates a group room would be left without participants.
	ErrEmptyRoom = errors.New("room requires at least one participant")
	// ErrEmptyMessage indicates a message with neither content nor attachments.
	ErrEmptyMessage = errors.New("message requires content or an attachment")
)
