package service

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/database"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

type emittedEvent struct {
	Scope   string
	Target  string
	UserID  uint
	Event   string
	Payload interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (e *recordingEmitter) ToRoom(_ context.Context, roomID string, event string, payload interface{}) {
	e.record(emittedEvent{Scope: "room", Target: roomID, Event: event, Payload: payload})
}

func (e *recordingEmitter) ToUser(_ context.Context, userID uint, event string, payload interface{}) {
	e.record(emittedEvent{Scope: "user", UserID: userID, Event: event, Payload: payload})
}

func (e *recordingEmitter) ToAll(_ context.Context, event string, payload interface{}) {
	e.record(emittedEvent{Scope: "all", Event: event, Payload: payload})
}

func (e *recordingEmitter) record(event emittedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) Events() []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]emittedEvent, len(e.events))
	copy(out, e.events)
	return out
}

func (e *recordingEmitter) Named(event string) []emittedEvent {
	var out []emittedEvent
	for _, item := range e.Events() {
		if item.Event == event {
			out = append(out, item)
		}
	}
	return out
}

func (e *recordingEmitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

type chatFixture struct {
	db       *gorm.DB
	users    repository.UserRepository
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	calls    repository.CallRepository
	emitter  *recordingEmitter
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	db, err := database.ConnectSQLite("")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &chatFixture{
		db:       db,
		users:    repository.NewUserRepository(db),
		rooms:    repository.NewRoomRepository(db),
		messages: repository.NewMessageRepository(db),
		calls:    repository.NewCallRepository(db),
		emitter:  &recordingEmitter{},
	}
}

func (f *chatFixture) user(t *testing.T, username string) models.User {
	t.Helper()
	user := models.User{Name: username + " name", Username: username}
	require.NoError(t, f.users.Create(context.Background(), &user))
	return user
}

func (f *chatFixture) room(t *testing.T, roomType models.RoomType, users ...models.User) models.Room {
	t.Helper()
	room := models.Room{Name: "General", Type: roomType}
	for _, user := range users {
		room.Participants = append(room.Participants, models.RoomParticipant{UserID: user.ID})
	}
	require.NoError(t, f.rooms.Create(context.Background(), &room))
	stored, err := f.rooms.FindByID(context.Background(), room.ID)
	require.NoError(t, err)
	return stored
}

func strPtr(value string) *string {
	return &value
}
