package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
)

func TestPresenceServiceTogglesOnlineFlag(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	svc := NewPresenceService(f.users, f.emitter, time.Second, testLogger())
	alice := f.user(t, "alice")

	svc.Connected(ctx, alice.ID)
	svc.Wait()

	stored, err := f.users.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, stored.IsOnline)
	require.NotNil(t, stored.LastSeen)
	firstSeen := *stored.LastSeen

	svc.Disconnected(ctx, alice.ID)
	svc.Wait()

	stored, err = f.users.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	require.False(t, stored.IsOnline)
	require.False(t, stored.LastSeen.Before(firstSeen))

	events := f.emitter.Events()
	require.Len(t, events, 2)
	require.Equal(t, emittedEvent{Scope: "all", Event: dto.EventUserConnected, Payload: dto.UserPresenceResponse{ID: dto.FormatID(alice.ID)}}, events[0])
	require.Equal(t, dto.EventUserDisconnected, events[1].Event)
}

func TestTypingServiceBroadcastsToRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	svc := NewTypingService(f.rooms, f.users, f.emitter)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, models.RoomTypePrivate, alice, bob)

	input := dto.StartStopTypingInput{RoomID: dto.FormatID(room.ID)}
	require.NoError(t, svc.Start(ctx, alice.ID, input))
	require.NoError(t, svc.Start(ctx, alice.ID, input))
	require.NoError(t, svc.Stop(ctx, alice.ID, input))
	require.NoError(t, svc.Start(ctx, alice.ID, dto.StartStopTypingInput{RoomID: "404"}))
	require.NoError(t, svc.Start(ctx, 999, input))

	started := f.emitter.Named(dto.EventTypingStarted)
	require.Len(t, started, 2)
	payload := started[0].Payload.(dto.TypingResponse)
	require.Equal(t, dto.FormatID(room.ID), payload.RoomID)
	require.Equal(t, "alice", payload.User.Username)
	require.Len(t, f.emitter.Named(dto.EventTypingStopped), 1)
}
