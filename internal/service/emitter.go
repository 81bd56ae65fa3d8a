package service

import "context"

// Emitter delivers outbound events. Room ids are the wire form so that rooms
// joined by arbitrary client ids can be addressed too.
type Emitter interface {
	ToRoom(ctx context.Context, roomID string, event string, payload interface{})
	ToUser(ctx context.Context, userID uint, event string, payload interface{})
	ToAll(ctx context.Context, event string, payload interface{})
}
