package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/gema-chat-gateway/internal/observability"
)

// Conn is the subset of a websocket connection the gateway drives. Both the
// fiber websocket and gorilla connections satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type outbound struct {
	event string
	frame []byte
}

// Client is one authenticated websocket session.
type Client struct {
	id       string
	userID   uint
	username string
	conn     Conn
	send     chan outbound
	closed   chan struct{}
	stopped  chan struct{}
	once     sync.Once
	limiter  *rate.Limiter
	inflight chan struct{}
	logger   zerolog.Logger
}

func newClient(conn Conn, userID uint, username string, opts Options, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	limit := rate.Inf
	if opts.EventsPerSecond > 0 {
		limit = rate.Limit(opts.EventsPerSecond)
	}

	return &Client{
		id:       id,
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan outbound, opts.SendBuffer),
		closed:   make(chan struct{}),
		stopped:  make(chan struct{}),
		limiter:  rate.NewLimiter(limit, opts.EventBurst),
		inflight: make(chan struct{}, opts.MaxInflight),
		logger: logger.With().
			Str("conn_id", id).
			Uint("user_id", userID).
			Logger(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user.
func (c *Client) UserID() uint { return c.userID }

// deliver queues a frame without blocking. A full buffer drops the frame.
func (c *Client) deliver(event string, frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- outbound{event: event, frame: frame}:
		return true
	default:
		observability.ChatDroppedFrames().WithLabelValues(event).Inc()
		c.logger.Warn().Str("event", event).Msg("dropping frame for slow client")
		return false
	}
}

// writer owns every write to the connection. stopped is closed on return; the
// fiber handler must not return before that, since the conn is released with it.
func (c *Client) writer(opts Options) {
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		close(c.stopped)
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message.frame); err != nil {
				c.logger.Debug().Err(err).Msg("write loop terminated")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// Done is closed once the connection has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}
