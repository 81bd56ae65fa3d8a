// Package realtime runs the websocket side of the chat: connection lifecycle,
// room subscriptions, inbound event dispatch and outbound fan-out.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/auth"
	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/observability"
	"github.com/noah-isme/gema-chat-gateway/internal/service"
	"github.com/noah-isme/gema-chat-gateway/internal/validation"
)

const (
	msgAuthFailed    = "Authorization failed!, "
	msgInvalidData   = "Invalid data"
	msgRoomNotFound  = "Room not found"
	msgRoomNotPriv   = "Room is not private"
	msgInternalError = "Internal error"
	msgUnknownEvent  = "Unknown event"
	msgTooManyEvents = "Too many events"
)

// Services groups the domain services the gateway dispatches to.
type Services struct {
	Presence service.PresenceService
	Rooms    service.RoomService
	Messages service.MessageService
	Typing   service.TypingService
	Calls    service.CallService
}

type eventHandler func(ctx context.Context, client *Client, raw json.RawMessage) error

// Gateway authenticates websocket connections and routes their events.
type Gateway struct {
	hub       *Hub
	emitter   service.Emitter
	verifier  auth.TokenVerifier
	validator *validation.Validator
	services  Services
	opts      Options
	handlers  map[string]eventHandler
	pending   sync.WaitGroup
	logger    zerolog.Logger
}

// NewGateway wires a gateway. emitter is normally the Bus wrapping hub.
func NewGateway(hub *Hub, emitter service.Emitter, verifier auth.TokenVerifier, validator *validation.Validator, services Services, opts Options, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		hub:       hub,
		emitter:   emitter,
		verifier:  verifier,
		validator: validator,
		services:  services,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "chat_gateway").Logger(),
	}

	g.handlers = map[string]eventHandler{
		dto.EventJoinRoom:           g.joinRoom,
		dto.EventLeaveRoom:          g.leaveRoom,
		dto.EventSendMessage:        g.sendMessage,
		dto.EventUpdateMessage:      g.updateMessage,
		dto.EventDeleteMessage:      g.deleteMessage,
		dto.EventReadMessage:        g.readMessage,
		dto.EventStartTyping:        g.startTyping,
		dto.EventStopTyping:         g.stopTyping,
		dto.EventStartPrivateCall:   g.startCall,
		dto.EventAnswerPrivateCall:  g.answerCall,
		dto.EventDeclinePrivateCall: g.declineCall,
		dto.EventEndPrivateCall:     g.endCall,
		dto.EventShareCandidate:     g.shareCandidate,
	}
	return g
}

// Serve runs the connection until the peer goes away. It blocks, so callers
// invoke it from the upgrade handler goroutine.
func (g *Gateway) Serve(ctx context.Context, conn Conn, token, correlationID string) {
	if ctx == nil {
		ctx = context.Background()
	}

	claims, err := g.authenticate(token)
	if err != nil {
		g.reject(conn, err)
		return
	}

	logger := g.logger
	if correlationID != "" {
		logger = logger.With().Str("correlation_id", correlationID).Logger()
	}
	client := newClient(conn, claims.UserID, claims.Username, g.opts, logger)

	g.hub.register(client)
	go client.writer(g.opts)

	g.services.Presence.Connected(ctx, client.userID)
	g.joinMemberships(ctx, client)

	client.logger.Info().Msg("chat websocket connected")
	g.read(ctx, client)

	g.hub.unregister(client)
	client.close()
	<-client.stopped
	g.services.Presence.Disconnected(context.WithoutCancel(ctx), client.userID)
	client.logger.Info().Msg("chat websocket disconnected")
}

// Wait blocks until every dispatched event handler has returned.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

func (g *Gateway) authenticate(token string) (auth.Claims, error) {
	if token == "" {
		return auth.Claims{}, auth.ErrMissingToken
	}
	return g.verifier.Verify(token)
}

func (g *Gateway) reject(conn Conn, reason error) {
	g.logger.Debug().Err(reason).Msg("rejecting websocket connection")

	frame, err := encodeFrame(dto.EventError, msgAuthFailed+reason.Error())
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authorization failed"))
	_ = conn.Close()
}

func (g *Gateway) joinMemberships(ctx context.Context, client *Client) {
	roomIDs, err := g.services.Rooms.ResolveMemberships(ctx, client.userID)
	if err != nil {
		client.logger.Warn().Err(err).Msg("failed to resolve room memberships")
		return
	}
	for _, roomID := range roomIDs {
		g.hub.Join(client, roomID)
		g.hub.toConn(client, dto.EventRoomJoined, dto.RoomEventResponse{RoomID: roomID})
	}
}

func (g *Gateway) read(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(g.opts.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			client.logger.Debug().Err(err).Msg("read loop ended")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))

		var frame dto.InboundFrame
		decodeErr := json.Unmarshal(data, &frame)

		// malformed frames count against the budget too
		if !client.limiter.Allow() {
			label := frame.Event
			if !g.validator.Known(label) {
				label = "unknown"
			}
			observability.ChatEvents().WithLabelValues(label, "throttled").Inc()
			g.hub.toConn(client, dto.EventError, dto.ErrorResponse{Event: frame.Event, Message: msgTooManyEvents})
			continue
		}

		if decodeErr != nil || frame.Event == "" {
			observability.ChatEvents().WithLabelValues("", "invalid").Inc()
			g.hub.toConn(client, dto.EventError, dto.ErrorResponse{
				Event:   frame.Event,
				Message: msgInvalidData,
				Errors:  []string{"frame must be a JSON object with an event name"},
			})
			continue
		}

		select {
		case client.inflight <- struct{}{}:
		case <-client.closed:
			return
		}

		g.pending.Add(1)
		go func(frame dto.InboundFrame) {
			defer func() {
				<-client.inflight
				g.pending.Done()
			}()
			g.dispatch(context.WithoutCancel(ctx), client, frame)
		}(frame)
	}
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, frame dto.InboundFrame) {
	handler, ok := g.handlers[frame.Event]
	if !ok {
		observability.ChatEvents().WithLabelValues("unknown", "unknown").Inc()
		g.hub.toConn(client, dto.EventError, dto.ErrorResponse{Event: frame.Event, Message: msgUnknownEvent})
		return
	}

	if err := handler(ctx, client, frame.Data); err != nil {
		g.fail(client, frame.Event, err)
		return
	}
	observability.ChatEvents().WithLabelValues(frame.Event, "ok").Inc()
}

// fail reports a handler error to the originating connection only.
func (g *Gateway) fail(client *Client, event string, err error) {
	response := dto.ErrorResponse{Event: event}
	outcome := "rejected"

	var validationErr *validation.Error
	switch {
	case errors.As(err, &validationErr):
		response.Message = msgInvalidData
		response.Errors = validationErr.Errors
	case errors.Is(err, service.ErrEmptyMessage):
		response.Message = msgInvalidData
		response.Errors = []string{"message: content or attachments are required"}
	case errors.Is(err, service.ErrRoomNotFound):
		response.Message = msgRoomNotFound
	case errors.Is(err, service.ErrRoomNotPrivate):
		response.Message = msgRoomNotPriv
	default:
		outcome = "failed"
		response.Message = msgInternalError
		client.logger.Error().Err(err).Str("event", event).Msg("event handler failed")
	}

	observability.ChatEvents().WithLabelValues(event, outcome).Inc()
	g.hub.toConn(client, dto.EventError, response)
}

func (g *Gateway) joinRoom(_ context.Context, client *Client, raw json.RawMessage) error {
	var input dto.JoinLeaveRoomInput
	if err := g.validator.Decode(dto.EventJoinRoom, raw, &input); err != nil {
		return err
	}
	roomID := groupKey(input.RoomID)
	g.hub.Join(client, roomID)
	g.hub.toConn(client, dto.EventRoomJoined, dto.RoomEventResponse{RoomID: roomID})
	return nil
}

func (g *Gateway) leaveRoom(_ context.Context, client *Client, raw json.RawMessage) error {
	var input dto.JoinLeaveRoomInput
	if err := g.validator.Decode(dto.EventLeaveRoom, raw, &input); err != nil {
		return err
	}
	roomID := groupKey(input.RoomID)
	g.hub.Leave(client, roomID)
	g.hub.toConn(client, dto.EventRoomLeft, dto.RoomEventResponse{RoomID: roomID})
	return nil
}

// groupKey maps a client room id onto the key services emit to, so "07" and
// " 7" land in room 7's group. Ids that do not parse are kept as sent.
func groupKey(raw string) string {
	if id, ok := dto.ParseID(raw); ok {
		return dto.FormatID(id)
	}
	return raw
}

func (g *Gateway) sendMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.SendMessageInput
	if err := g.validator.Decode(dto.EventSendMessage, raw, &input); err != nil {
		return err
	}
	return g.services.Messages.Send(ctx, client.userID, input)
}

func (g *Gateway) updateMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.UpdateMessageInput
	if err := g.validator.Decode(dto.EventUpdateMessage, raw, &input); err != nil {
		return err
	}
	return g.services.Messages.Update(ctx, client.userID, input)
}

func (g *Gateway) deleteMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.ReadDeleteMessageInput
	if err := g.validator.Decode(dto.EventDeleteMessage, raw, &input); err != nil {
		return err
	}
	return g.services.Messages.Delete(ctx, client.userID, input)
}

func (g *Gateway) readMessage(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.ReadDeleteMessageInput
	if err := g.validator.Decode(dto.EventReadMessage, raw, &input); err != nil {
		return err
	}
	return g.services.Messages.MarkRead(ctx, client.userID, input)
}

func (g *Gateway) startTyping(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.StartStopTypingInput
	if err := g.validator.Decode(dto.EventStartTyping, raw, &input); err != nil {
		return err
	}
	return g.services.Typing.Start(ctx, client.userID, input)
}

func (g *Gateway) stopTyping(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.StartStopTypingInput
	if err := g.validator.Decode(dto.EventStopTyping, raw, &input); err != nil {
		return err
	}
	return g.services.Typing.Stop(ctx, client.userID, input)
}

func (g *Gateway) startCall(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.SendCallOfferInput
	if err := g.validator.Decode(dto.EventStartPrivateCall, raw, &input); err != nil {
		return err
	}
	return g.services.Calls.Start(ctx, client.userID, input)
}

func (g *Gateway) answerCall(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.AnswerCallOfferInput
	if err := g.validator.Decode(dto.EventAnswerPrivateCall, raw, &input); err != nil {
		return err
	}
	return g.services.Calls.Answer(ctx, client.userID, input)
}

func (g *Gateway) declineCall(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.CallRoomInput
	if err := g.validator.Decode(dto.EventDeclinePrivateCall, raw, &input); err != nil {
		return err
	}
	return g.services.Calls.Decline(ctx, client.userID, input)
}

func (g *Gateway) endCall(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.CallRoomInput
	if err := g.validator.Decode(dto.EventEndPrivateCall, raw, &input); err != nil {
		return err
	}
	return g.services.Calls.End(ctx, client.userID, input)
}

func (g *Gateway) shareCandidate(ctx context.Context, client *Client, raw json.RawMessage) error {
	var input dto.ShareCandidateInput
	if err := g.validator.Decode(dto.EventShareCandidate, raw, &input); err != nil {
		return err
	}
	return g.services.Calls.ShareCandidate(ctx, client.userID, input)
}
