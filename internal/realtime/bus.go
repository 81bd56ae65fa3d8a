package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/observability"
)

const (
	scopeRoom = "room"
	scopeUser = "user"
	scopeAll  = "all"

	transportNATS  = "nats"
	transportRedis = "redis"
)

type envelope struct {
	Source string          `json:"source"`
	Scope  string          `json:"scope"`
	Target string          `json:"target,omitempty"`
	UserID uint            `json:"user_id,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

// Bus delivers events to the local hub and mirrors them to the other gateway
// nodes. NATS is used when connected, Redis pub/sub otherwise; with neither
// the bus is local only.
type Bus struct {
	hub     *Hub
	redis   *redis.Client
	channel string
	nats    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger
}

// NewBus creates a bus on top of the hub. channelBase namespaces the redis
// channel and the nats subject.
func NewBus(hub *Hub, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Bus {
	bus := &Bus{
		hub:    hub,
		redis:  redisClient,
		nats:   natsConn,
		nodeID: uuid.NewString(),
		logger: logger.With().Str("component", "chat_bus").Logger(),
	}
	if channelBase != "" {
		bus.channel = channelBase + ":chat:events"
		bus.subject = strings.ReplaceAll(channelBase, ":", ".") + ".chat.events"
	}
	return bus
}

// NodeID identifies this node on the bus.
func (b *Bus) NodeID() string { return b.nodeID }

func (b *Bus) transport() string {
	switch {
	case b.nats != nil && b.subject != "":
		return transportNATS
	case b.redis != nil && b.channel != "":
		return transportRedis
	default:
		return ""
	}
}

// Start subscribes to the remote transport. The subscription is active when
// Start returns and is released when ctx is cancelled.
func (b *Bus) Start(ctx context.Context) error {
	switch b.transport() {
	case transportNATS:
		sub, err := b.nats.Subscribe(b.subject, func(msg *nats.Msg) {
			b.handle(transportNATS, msg.Data)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to nats subject: %w", err)
		}
		if err := b.nats.Flush(); err != nil {
			return fmt.Errorf("failed to flush nats subscription: %w", err)
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				b.logger.Warn().Err(err).Msg("failed to drain nats subscription")
			}
		}()
	case transportRedis:
		pubsub := b.redis.Subscribe(ctx, b.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("failed to subscribe to redis channel: %w", err)
		}
		go b.consumeRedis(ctx, pubsub)
	}
	return nil
}

func (b *Bus) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("redis subscription closed")
			return
		}
		b.handle(transportRedis, []byte(msg.Payload))
	}
}

func (b *Bus) ToRoom(ctx context.Context, roomID string, event string, payload interface{}) {
	b.emit(ctx, envelope{Scope: scopeRoom, Target: roomID, Event: event}, payload)
}

func (b *Bus) ToUser(ctx context.Context, userID uint, event string, payload interface{}) {
	b.emit(ctx, envelope{Scope: scopeUser, UserID: userID, Event: event}, payload)
}

func (b *Bus) ToAll(ctx context.Context, event string, payload interface{}) {
	b.emit(ctx, envelope{Scope: scopeAll, Event: event}, payload)
}

func (b *Bus) emit(ctx context.Context, env envelope, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event", env.Event).Msg("failed to encode payload")
		return
	}
	env.Data = data

	if err := b.deliver(env); err != nil {
		b.logger.Error().Err(err).Str("event", env.Event).Msg("failed to deliver event")
		return
	}
	if err := b.publish(ctx, env); err != nil {
		b.logger.Warn().Err(err).Str("event", env.Event).Msg("failed to publish event")
	}
}

func (b *Bus) deliver(env envelope) error {
	frame, err := encodeFrame(env.Event, env.Data)
	if err != nil {
		return err
	}

	switch env.Scope {
	case scopeRoom:
		b.hub.toRoom(env.Target, env.Event, frame)
	case scopeUser:
		b.hub.toUser(env.UserID, env.Event, frame)
	case scopeAll:
		b.hub.toAll(env.Event, frame)
	default:
		return fmt.Errorf("unknown scope %q", env.Scope)
	}
	return nil
}

func (b *Bus) publish(ctx context.Context, env envelope) error {
	transport := b.transport()
	if transport == "" {
		return nil
	}

	env.Source = b.nodeID
	env.SentAt = time.Now().UTC()
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	switch transport {
	case transportNATS:
		err = b.nats.Publish(b.subject, payload)
	case transportRedis:
		err = b.redis.Publish(ctx, b.channel, payload).Err()
	}
	if err != nil {
		return err
	}
	observability.ChatBusEvents().WithLabelValues(transport, "out").Inc()
	return nil
}

func (b *Bus) handle(transport string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn().Err(err).Msg("invalid bus event")
		return
	}
	if env.Source == b.nodeID {
		return
	}

	observability.ChatBusEvents().WithLabelValues(transport, "in").Inc()
	if err := b.deliver(env); err != nil {
		b.logger.Warn().Err(err).Str("source", env.Source).Msg("dropping bus event")
	}
}
