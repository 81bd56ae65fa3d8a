package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/database"
	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/handler"
	"github.com/noah-isme/gema-chat-gateway/internal/middleware"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/realtime"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
	"github.com/noah-isme/gema-chat-gateway/internal/service"
	"github.com/noah-isme/gema-chat-gateway/internal/validation"
)

const chatTestSecret = "chat-handler-secret"

type chatServer struct {
	url   string
	hub   *realtime.Hub
	users repository.UserRepository
	rooms service.RoomService
}

func startChatServer(t *testing.T) *chatServer {
	t.Helper()

	db, err := database.ConnectSQLite("")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	users := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	hub := realtime.NewHub(logger)
	bus := realtime.NewBus(hub, nil, nil, "", logger)
	eventValidator, err := validation.New(nil)
	require.NoError(t, err)

	presence := service.NewPresenceService(users, bus, time.Second, logger)
	rooms := service.NewRoomService(roomRepo, messageRepo, logger)
	calls := service.NewCallService(roomRepo, repository.NewCallRepository(db), bus, 0, logger)
	gateway := realtime.NewGateway(hub, bus, auth.NewHMACVerifier(chatTestSecret), eventValidator, realtime.Services{
		Presence: presence,
		Rooms:    rooms,
		Messages: service.NewMessageService(roomRepo, messageRepo, users, bus, logger),
		Typing:   service.NewTypingService(roomRepo, users, bus),
		Calls:    calls,
	}, realtime.Options{}, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	handler.NewChatHandler(gateway, logger).Register(app.Group("/gateway"))

	url := startFiberServer(t, app)
	t.Cleanup(func() {
		gateway.Wait()
		presence.Wait()
		calls.Close()
	})

	return &chatServer{
		url:   "ws" + strings.TrimPrefix(url, "http") + "/gateway/chat",
		hub:   hub,
		users: users,
		rooms: rooms,
	}
}

func (s *chatServer) user(t *testing.T, username string) (models.User, string) {
	t.Helper()
	user := models.User{Name: username, Username: username}
	require.NoError(t, s.users.Create(context.Background(), &user))
	token, err := auth.IssueToken(chatTestSecret, user.ID, username, time.Hour)
	require.NoError(t, err)
	return user, token
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads frames until one with the event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame wireFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == event {
			return frame
		}
	}
}

func TestChatHandler_QueryTokenJoinsRooms(t *testing.T) {
	server := startChatServer(t)
	alice, aliceToken := server.user(t, "alice")
	bob, _ := server.user(t, "bob")
	room, err := server.rooms.Create(context.Background(), service.CreateRoomInput{
		Type:           models.RoomTypePrivate,
		CreatorID:      alice.ID,
		ParticipantIDs: []uint{bob.ID},
	})
	require.NoError(t, err)

	conn := dial(t, server.url+"?token="+aliceToken, nil)

	var joined dto.RoomEventResponse
	require.NoError(t, json.Unmarshal(readUntil(t, conn, dto.EventRoomJoined).Data, &joined))
	require.Equal(t, dto.FormatID(room.ID), joined.RoomID)
}

func TestChatHandler_HeaderTokenAndRoundTrip(t *testing.T) {
	server := startChatServer(t)
	alice, aliceToken := server.user(t, "alice")
	bob, bobToken := server.user(t, "bob")
	room, err := server.rooms.Create(context.Background(), service.CreateRoomInput{
		Name:           "Project",
		Type:           models.RoomTypeGroup,
		CreatorID:      alice.ID,
		ParticipantIDs: []uint{bob.ID},
	})
	require.NoError(t, err)
	roomID := dto.FormatID(room.ID)

	aliceConn := dial(t, server.url, http.Header{"Authorization": {"Bearer " + aliceToken}})
	bobConn := dial(t, server.url, http.Header{"Authorization": {"Bearer " + bobToken}})
	readUntil(t, aliceConn, dto.EventRoomJoined)
	readUntil(t, bobConn, dto.EventRoomJoined)

	require.NoError(t, aliceConn.WriteJSON(map[string]interface{}{
		"event": dto.EventSendMessage,
		"data": map[string]interface{}{
			"roomId":  roomID,
			"message": map[string]interface{}{"content": "ship it", "attachments": []interface{}{}},
		},
	}))

	var message dto.MessageResponse
	require.NoError(t, json.Unmarshal(readUntil(t, bobConn, dto.EventMessageReceived).Data, &message))
	require.Equal(t, "ship it", *message.Content)
	require.Equal(t, roomID, message.RoomID)
}

func TestChatHandler_MissingTokenGetsErrorThenClose(t *testing.T) {
	server := startChatServer(t)
	conn := dial(t, server.url, nil)

	frame := readUntil(t, conn, dto.EventError)
	var message string
	require.NoError(t, json.Unmarshal(frame.Data, &message))
	require.Equal(t, "Authorization failed!, there is no token in the Authorization header", message)

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestChatHandler_RequiresUpgrade(t *testing.T) {
	server := startChatServer(t)
	httpURL := "http" + strings.TrimPrefix(server.url, "ws")

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestChatHandler_AbruptDisconnectsKeepServerAlive(t *testing.T) {
	server := startChatServer(t)

	const members = 40
	ids := make([]uint, 0, members)
	tokens := make([]string, 0, members)
	for i := 0; i < members; i++ {
		user, token := server.user(t, "member"+strconv.Itoa(i))
		ids = append(ids, user.ID)
		tokens = append(tokens, token)
	}
	_, err := server.rooms.Create(context.Background(), service.CreateRoomInput{
		Name:           "Everyone",
		Type:           models.RoomTypeGroup,
		CreatorID:      ids[0],
		ParticipantIDs: ids[1:],
	})
	require.NoError(t, err)

	// Every connect broadcasts user-connected, so each socket still has frames
	// queued when its peer drops without a close handshake.
	for _, token := range tokens {
		conn := dial(t, server.url+"?token="+token, nil)
		require.NoError(t, conn.UnderlyingConn().Close())
	}

	require.Eventually(t, func() bool {
		return server.hub.ConnectionCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	alice, aliceToken := server.user(t, "alice")
	bob, bobToken := server.user(t, "bob")
	room, err := server.rooms.Create(context.Background(), service.CreateRoomInput{
		Type:           models.RoomTypePrivate,
		CreatorID:      alice.ID,
		ParticipantIDs: []uint{bob.ID},
	})
	require.NoError(t, err)

	aliceConn := dial(t, server.url+"?token="+aliceToken, nil)
	bobConn := dial(t, server.url+"?token="+bobToken, nil)
	readUntil(t, aliceConn, dto.EventRoomJoined)
	readUntil(t, bobConn, dto.EventRoomJoined)

	require.NoError(t, aliceConn.WriteJSON(map[string]interface{}{
		"event": dto.EventStartTyping,
		"data":  map[string]string{"roomId": dto.FormatID(room.ID)},
	}))
	var typing dto.TypingResponse
	require.NoError(t, json.Unmarshal(readUntil(t, bobConn, dto.EventTypingStarted).Data, &typing))
	require.Equal(t, dto.FormatID(alice.ID), typing.User.ID)
}
