package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/observability"
)

// Hub tracks the live connections of this node and the rooms they joined.
// Rooms are plain group names; joining never checks that the room exists.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
	users map[uint]map[string]*Client
	rooms map[string]map[string]*Client
	joins map[string]map[string]struct{}
	log   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*Client),
		users: make(map[uint]map[string]*Client),
		rooms: make(map[string]map[string]*Client),
		joins: make(map[string]map[string]struct{}),
		log:   logger.With().Str("component", "chat_hub").Logger(),
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[client.id] = client
	if _, ok := h.users[client.userID]; !ok {
		h.users[client.userID] = make(map[string]*Client)
	}
	h.users[client.userID][client.id] = client
	h.joins[client.id] = make(map[string]struct{})

	observability.ChatConnections().Inc()
	h.log.Debug().Str("conn_id", client.id).Uint("user_id", client.userID).Msg("chat client connected")
}

// unregister drops the connection from every room it joined. Rooms left empty
// are removed.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client.id]; !ok {
		return
	}
	delete(h.conns, client.id)

	if conns, ok := h.users[client.userID]; ok {
		delete(conns, client.id)
		if len(conns) == 0 {
			delete(h.users, client.userID)
		}
	}

	for roomID := range h.joins[client.id] {
		h.removeLocked(roomID, client.id)
	}
	delete(h.joins, client.id)

	observability.ChatConnections().Dec()
	h.log.Debug().Str("conn_id", client.id).Uint("user_id", client.userID).Msg("chat client disconnected")
}

// Join subscribes the connection to the room. Joining twice is a no-op.
func (h *Hub) Join(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.joins[client.id]
	if !ok {
		return
	}
	if _, exists := h.rooms[roomID]; !exists {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][client.id] = client
	joined[roomID] = struct{}{}
}

// Leave unsubscribes the connection from the room. Leaving a room that was
// never joined is a no-op.
func (h *Hub) Leave(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if joined, ok := h.joins[client.id]; ok {
		delete(joined, roomID)
	}
	h.removeLocked(roomID, client.id)
}

func (h *Hub) removeLocked(roomID, connID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// MemberCount returns the number of connections subscribed to the room.
func (h *Hub) MemberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomCount returns the number of non-empty rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Rooms returns the rooms the connection joined.
func (h *Hub) Rooms(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.joins[client.id]))
	for roomID := range h.joins[client.id] {
		out = append(out, roomID)
	}
	return out
}

func (h *Hub) toRoom(roomID, event string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[roomID] {
		client.deliver(event, frame)
	}
}

func (h *Hub) toUser(userID uint, event string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.users[userID] {
		client.deliver(event, frame)
	}
}

func (h *Hub) toAll(event string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.conns {
		client.deliver(event, frame)
	}
}

// toConn sends a frame to a single connection.
func (h *Hub) toConn(client *Client, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}
	client.deliver(event, frame)
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(dto.Frame{Event: event, Data: payload})
}
