package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// fakeConn is an in-memory websocket peer. Frames pushed with send are read
// by the gateway; text frames the gateway writes are recorded.
type fakeConn struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written []receivedFrame
	control []int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType != websocket.TextMessage {
		c.control = append(c.control, messageType)
		return nil
	}
	var frame receivedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.written = append(c.written, frame)
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                      {}
func (c *fakeConn) SetReadDeadline(time.Time) error         { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error        { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) controlFrames() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.control...)
}

func (c *fakeConn) send(t *testing.T, event string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	require.NoError(t, err)
	c.sendRaw(payload)
}

func (c *fakeConn) sendRaw(payload []byte) {
	c.incoming <- payload
}

func (c *fakeConn) frames(event string) []receivedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []receivedFrame
	for _, frame := range c.written {
		if frame.Event == event {
			out = append(out, frame)
		}
	}
	return out
}

// waitFrame blocks until at least n frames of the event were written and
// returns the last one.
func (c *fakeConn) waitFrame(t *testing.T, event string, n int) receivedFrame {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.frames(event)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %q frames", n, event)
	frames := c.frames(event)
	return frames[len(frames)-1]
}
