package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/database"
	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
	"github.com/noah-isme/gema-chat-gateway/internal/service"
	"github.com/noah-isme/gema-chat-gateway/internal/validation"
)

const testSecret = "gateway-test-secret"

type gatewayFixture struct {
	db       *gorm.DB
	users    repository.UserRepository
	rooms    repository.RoomRepository
	hub      *Hub
	gateway  *Gateway
	presence service.PresenceService
}

func newGatewayFixture(t *testing.T, opts Options) *gatewayFixture {
	t.Helper()

	db, err := database.ConnectSQLite("")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	users := repository.NewUserRepository(db)
	rooms := repository.NewRoomRepository(db)
	messages := repository.NewMessageRepository(db)
	calls := repository.NewCallRepository(db)

	hub := NewHub(logger)
	bus := NewBus(hub, nil, nil, "", logger)

	validator, err := validation.New(nil)
	require.NoError(t, err)

	callService := service.NewCallService(rooms, calls, bus, 0, logger)
	services := Services{
		Presence: service.NewPresenceService(users, bus, time.Second, logger),
		Rooms:    service.NewRoomService(rooms, messages, logger),
		Messages: service.NewMessageService(rooms, messages, users, bus, logger),
		Typing:   service.NewTypingService(rooms, users, bus),
		Calls:    callService,
	}
	gateway := NewGateway(hub, bus, auth.NewHMACVerifier(testSecret), validator, services, opts, logger)

	t.Cleanup(func() {
		gateway.Wait()
		services.Presence.Wait()
		callService.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &gatewayFixture{db: db, users: users, rooms: rooms, hub: hub, gateway: gateway, presence: services.Presence}
}

func (f *gatewayFixture) user(t *testing.T, username string) models.User {
	t.Helper()
	user := models.User{Name: username, Username: username}
	require.NoError(t, f.users.Create(context.Background(), &user))
	return user
}

func (f *gatewayFixture) room(t *testing.T, roomType models.RoomType, users ...models.User) models.Room {
	t.Helper()
	room := models.Room{Name: "General", Type: roomType}
	for _, user := range users {
		room.Participants = append(room.Participants, models.RoomParticipant{UserID: user.ID})
	}
	require.NoError(t, f.rooms.Create(context.Background(), &room))
	return room
}

// connect serves a fake connection for the user and waits until the
// connection is registered.
func (f *gatewayFixture) connect(t *testing.T, user models.User) (*fakeConn, <-chan struct{}) {
	t.Helper()
	token, err := auth.IssueToken(testSecret, user.ID, user.Username, time.Hour)
	require.NoError(t, err)

	before := f.hub.ConnectionCount()
	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.gateway.Serve(context.Background(), conn, token, "test-correlation")
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		<-done
	})

	require.Eventually(t, func() bool { return f.hub.ConnectionCount() > before }, 2*time.Second, 5*time.Millisecond)
	return conn, done
}

func decodeData(t *testing.T, frame receivedFrame, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(frame.Data, target))
}

func TestGatewayRejectsMissingAndInvalidTokens(t *testing.T) {
	f := newGatewayFixture(t, Options{})

	conn := newFakeConn()
	f.gateway.Serve(context.Background(), conn, "", "")
	frame := conn.waitFrame(t, dto.EventError, 1)
	var message string
	decodeData(t, frame, &message)
	require.Equal(t, "Authorization failed!, there is no token in the Authorization header", message)
	require.True(t, conn.isClosed())
	require.Contains(t, conn.controlFrames(), websocket.CloseMessage)

	forged, err := auth.IssueToken("other-secret", 1, "mallory", time.Hour)
	require.NoError(t, err)
	conn = newFakeConn()
	f.gateway.Serve(context.Background(), conn, forged, "")
	decodeData(t, conn.waitFrame(t, dto.EventError, 1), &message)
	require.Contains(t, message, "Authorization failed!, ")
	require.True(t, conn.isClosed())
	require.Zero(t, f.hub.ConnectionCount())
}

func TestGatewayConnectJoinsMembershipsAndAnnouncesPresence(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	private := f.room(t, models.RoomTypePrivate, alice, bob)
	group := f.room(t, models.RoomTypeGroup, alice)

	bobConn, _ := f.connect(t, bob)
	aliceConn, aliceDone := f.connect(t, alice)

	joined := aliceConn.waitFrame(t, dto.EventRoomJoined, 2)
	require.NotEmpty(t, joined.Data)
	var roomIDs []string
	for _, frame := range aliceConn.frames(dto.EventRoomJoined) {
		var payload dto.RoomEventResponse
		decodeData(t, frame, &payload)
		roomIDs = append(roomIDs, payload.RoomID)
	}
	require.ElementsMatch(t, []string{dto.FormatID(private.ID), dto.FormatID(group.ID)}, roomIDs)
	require.Equal(t, 2, f.hub.MemberCount(dto.FormatID(private.ID)))

	var presence dto.UserPresenceResponse
	decodeData(t, bobConn.waitFrame(t, dto.EventUserConnected, 2), &presence)
	require.Equal(t, dto.FormatID(alice.ID), presence.ID)

	f.presence.Wait()
	stored, err := f.users.FindByID(context.Background(), alice.ID)
	require.NoError(t, err)
	require.True(t, stored.IsOnline)

	require.NoError(t, aliceConn.Close())
	<-aliceDone
	decodeData(t, bobConn.waitFrame(t, dto.EventUserDisconnected, 1), &presence)
	require.Equal(t, dto.FormatID(alice.ID), presence.ID)
	require.Equal(t, 1, f.hub.MemberCount(dto.FormatID(private.ID)))
	require.Zero(t, f.hub.MemberCount(dto.FormatID(group.ID)))

	f.presence.Wait()
	stored, err = f.users.FindByID(context.Background(), alice.ID)
	require.NoError(t, err)
	require.False(t, stored.IsOnline)
	require.NotNil(t, stored.LastSeen)
}

func TestGatewayJoinLeaveAckOnlyTheRequester(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	aliceConn, _ := f.connect(t, alice)
	bobConn, _ := f.connect(t, bob)

	aliceConn.send(t, dto.EventJoinRoom, map[string]string{"roomId": "lobby"})
	var ack dto.RoomEventResponse
	decodeData(t, aliceConn.waitFrame(t, dto.EventRoomJoined, 1), &ack)
	require.Equal(t, "lobby", ack.RoomID)
	require.Equal(t, 1, f.hub.MemberCount("lobby"))

	aliceConn.send(t, dto.EventLeaveRoom, map[string]string{"roomId": "lobby"})
	decodeData(t, aliceConn.waitFrame(t, dto.EventRoomLeft, 1), &ack)
	require.Equal(t, "lobby", ack.RoomID)
	require.Zero(t, f.hub.MemberCount("lobby"))

	require.Empty(t, bobConn.frames(dto.EventRoomJoined))
	require.Empty(t, bobConn.frames(dto.EventRoomLeft))
}

func TestGatewayReportsInvalidPayloads(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	alice := f.user(t, "alice")
	room := f.room(t, models.RoomTypeGroup, alice)
	conn, _ := f.connect(t, alice)

	conn.send(t, dto.EventJoinRoom, map[string]int{"roomId": 5})
	var response dto.ErrorResponse
	decodeData(t, conn.waitFrame(t, dto.EventError, 1), &response)
	require.Equal(t, dto.EventJoinRoom, response.Event)
	require.Equal(t, "Invalid data", response.Message)
	require.Equal(t, []string{"roomId: expected string, but got number"}, response.Errors)

	conn.send(t, "dance", map[string]string{})
	decodeData(t, conn.waitFrame(t, dto.EventError, 2), &response)
	require.Equal(t, "dance", response.Event)
	require.Equal(t, "Unknown event", response.Message)

	conn.sendRaw([]byte("not json"))
	decodeData(t, conn.waitFrame(t, dto.EventError, 3), &response)
	require.Equal(t, "Invalid data", response.Message)

	conn.send(t, dto.EventSendMessage, map[string]interface{}{
		"roomId":  dto.FormatID(room.ID),
		"message": map[string]interface{}{"content": "  ", "attachments": []interface{}{}},
	})
	decodeData(t, conn.waitFrame(t, dto.EventError, 4), &response)
	require.Equal(t, dto.EventSendMessage, response.Event)
	require.Equal(t, "Invalid data", response.Message)
	require.NotEmpty(t, response.Errors)
}

func TestGatewayRelaysMessagesToRoomMembers(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	room := f.room(t, models.RoomTypePrivate, alice, bob)
	roomID := dto.FormatID(room.ID)

	aliceConn, _ := f.connect(t, alice)
	bobConn, _ := f.connect(t, bob)
	carolConn, _ := f.connect(t, carol)
	bobConn.waitFrame(t, dto.EventRoomJoined, 1)

	aliceConn.send(t, dto.EventSendMessage, map[string]interface{}{
		"roomId": roomID,
		"message": map[string]interface{}{
			"content":     "hello <script>x</script>bob",
			"attachments": []map[string]string{{"URL": "https://cdn.local/a.png", "mimeType": "image/png"}},
		},
	})

	var message dto.MessageResponse
	decodeData(t, bobConn.waitFrame(t, dto.EventMessageReceived, 1), &message)
	require.Equal(t, roomID, message.RoomID)
	require.NotNil(t, message.Content)
	require.Equal(t, "hello bob", *message.Content)
	require.Equal(t, dto.FormatID(alice.ID), message.Sender.ID)
	require.Len(t, message.Attachments, 1)
	require.Equal(t, "image/png", message.Attachments[0].MimeType)
	aliceConn.waitFrame(t, dto.EventMessageReceived, 1)

	bobConn.send(t, dto.EventReadMessage, map[string]string{"roomId": roomID, "messageId": message.ID})
	var read dto.ReadMessageResponse
	decodeData(t, aliceConn.waitFrame(t, dto.EventMessageRead, 1), &read)
	require.Equal(t, message.ID, read.MessageID)

	bobConn.send(t, dto.EventStartTyping, map[string]string{"roomId": roomID})
	var typing dto.TypingResponse
	decodeData(t, aliceConn.waitFrame(t, dto.EventTypingStarted, 1), &typing)
	require.Equal(t, dto.FormatID(bob.ID), typing.User.ID)

	f.gateway.Wait()
	require.Empty(t, carolConn.frames(dto.EventMessageReceived))
	require.Empty(t, carolConn.frames(dto.EventMessageRead))
	require.Empty(t, carolConn.frames(dto.EventTypingStarted))
}

func TestGatewayCallSignalling(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	private := f.room(t, models.RoomTypePrivate, alice, bob)
	group := f.room(t, models.RoomTypeGroup, alice, bob)

	aliceConn, _ := f.connect(t, alice)
	bobConn, _ := f.connect(t, bob)

	aliceConn.send(t, dto.EventStartPrivateCall, map[string]interface{}{
		"roomId": dto.FormatID(group.ID),
		"offer":  map[string]string{"sdp": "x"},
	})
	var response dto.ErrorResponse
	decodeData(t, aliceConn.waitFrame(t, dto.EventError, 1), &response)
	require.Equal(t, "Room is not private", response.Message)

	aliceConn.send(t, dto.EventStartPrivateCall, map[string]interface{}{
		"roomId": "999",
		"offer":  map[string]string{"sdp": "x"},
	})
	decodeData(t, aliceConn.waitFrame(t, dto.EventError, 2), &response)
	require.Equal(t, "Room not found", response.Message)

	aliceConn.send(t, dto.EventStartPrivateCall, map[string]interface{}{
		"roomId": dto.FormatID(private.ID),
		"offer":  map[string]string{"sdp": "x"},
	})
	var offer dto.CallOfferResponse
	decodeData(t, bobConn.waitFrame(t, dto.EventPrivateCallReceived, 1), &offer)
	require.Equal(t, dto.FormatID(alice.ID), offer.From)
	require.JSONEq(t, `{"sdp":"x"}`, string(offer.Offer))

	bobConn.send(t, dto.EventAnswerPrivateCall, map[string]interface{}{
		"roomId": dto.FormatID(private.ID),
		"answer": map[string]string{"sdp": "y"},
	})
	var answer dto.CallAnswerResponse
	decodeData(t, aliceConn.waitFrame(t, dto.EventPrivateCallAnswered, 1), &answer)
	require.Equal(t, dto.FormatID(bob.ID), answer.From)

	bobConn.send(t, dto.EventShareCandidate, map[string]interface{}{
		"roomId":    dto.FormatID(private.ID),
		"candidate": map[string]string{"candidate": "c"},
	})
	aliceConn.waitFrame(t, dto.EventCandidateReceived, 1)

	f.gateway.Wait()
	require.Empty(t, aliceConn.frames(dto.EventPrivateCallReceived))
	require.Empty(t, bobConn.frames(dto.EventCandidateReceived))
}

func TestGatewayThrottlesBursts(t *testing.T) {
	f := newGatewayFixture(t, Options{EventsPerSecond: 0.001, EventBurst: 1})
	alice := f.user(t, "alice")
	conn, _ := f.connect(t, alice)

	conn.send(t, dto.EventJoinRoom, map[string]string{"roomId": "a"})
	conn.send(t, dto.EventJoinRoom, map[string]string{"roomId": "b"})

	var response dto.ErrorResponse
	decodeData(t, conn.waitFrame(t, dto.EventError, 1), &response)
	require.Equal(t, "Too many events", response.Message)
	require.Equal(t, dto.EventJoinRoom, response.Event)
}

func TestGatewayJoinNormalisesNumericRoomIDs(t *testing.T) {
	f := newGatewayFixture(t, Options{})
	alice, carol := f.user(t, "alice"), f.user(t, "carol")
	room := f.room(t, models.RoomTypeGroup, alice)
	roomID := dto.FormatID(room.ID)

	aliceConn, _ := f.connect(t, alice)
	aliceConn.waitFrame(t, dto.EventRoomJoined, 1)
	carolConn, _ := f.connect(t, carol)

	carolConn.send(t, dto.EventJoinRoom, map[string]string{"roomId": " 0" + roomID})
	var ack dto.RoomEventResponse
	decodeData(t, carolConn.waitFrame(t, dto.EventRoomJoined, 1), &ack)
	require.Equal(t, roomID, ack.RoomID)
	require.Equal(t, 2, f.hub.MemberCount(roomID))

	aliceConn.send(t, dto.EventSendMessage, map[string]interface{}{
		"roomId":  roomID,
		"message": map[string]interface{}{"content": "welcome", "attachments": []interface{}{}},
	})
	var message dto.MessageResponse
	decodeData(t, carolConn.waitFrame(t, dto.EventMessageReceived, 1), &message)
	require.Equal(t, roomID, message.RoomID)

	carolConn.send(t, dto.EventLeaveRoom, map[string]string{"roomId": "0" + roomID})
	decodeData(t, carolConn.waitFrame(t, dto.EventRoomLeft, 1), &ack)
	require.Equal(t, roomID, ack.RoomID)
	require.Equal(t, 1, f.hub.MemberCount(roomID))
}

func TestGatewayThrottlesMalformedFrames(t *testing.T) {
	f := newGatewayFixture(t, Options{EventsPerSecond: 0.001, EventBurst: 1})
	alice := f.user(t, "alice")
	conn, _ := f.connect(t, alice)

	conn.sendRaw([]byte("not json"))
	conn.sendRaw([]byte("still not json"))

	errorsSeen := conn.waitFrame(t, dto.EventError, 2)
	var last dto.ErrorResponse
	decodeData(t, errorsSeen, &last)
	require.Equal(t, "Too many events", last.Message)

	var first dto.ErrorResponse
	decodeData(t, conn.frames(dto.EventError)[0], &first)
	require.Equal(t, "Invalid data", first.Message)
}
