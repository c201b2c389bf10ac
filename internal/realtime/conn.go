package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/handoff/internal/relay"
	"github.com/charlesng35/handoff/pkg/logger"
)

// maxCloseReason is the largest close reason that fits a control frame.
const maxCloseReason = 123

var _ relay.Channel = (*Conn)(nil)

// Conn adapts a websocket to relay.Channel. Frames are queued and written by a single writer
// goroutine, so Send never blocks on the network.
type Conn struct {
	socket *websocket.Conn
	opts   Options
	log    *zap.Logger

	mu      sync.RWMutex
	send    chan []byte
	closing bool
	broken  bool
	code    int
	reason  string

	done chan struct{}
	once sync.Once
}

// NewConn wraps an upgraded websocket and starts its writer.
func NewConn(socket *websocket.Conn, opts Options) *Conn {
	c := newConn(socket, opts)
	go c.writeLoop()
	return c
}

func newConn(socket *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		socket: socket,
		opts:   opts,
		log:    logger.WithModule("realtime"),
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues a text frame. It fails fast with relay.ErrBackpressure when the queue is full and
// relay.ErrChannelClosed once the connection is closing or its writer has failed.
func (c *Conn) Send(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closing || c.broken {
		return relay.ErrChannelClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return relay.ErrBackpressure
	}
}

// Close flushes frames already queued, then sends a close frame carrying code and reason.
// Only the first call has an effect.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return relay.ErrChannelClosed
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	c.closing = true
	c.code = code
	c.reason = reason
	close(c.send)
	return nil
}

// Done is closed once the writer has stopped and the socket is released.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReadLoop hands every inbound frame to handle until the peer disconnects or the connection is
// closed locally. A nil return means the connection ended normally.
func (c *Conn) ReadLoop(ctx context.Context, handle func(context.Context, []byte)) error {
	c.socket.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.socket.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if c.isClosing() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			continue
		}
		handle(ctx, payload)
	}
}

func (c *Conn) writeLoop() {
	defer c.release()

	ticker := time.NewTicker(c.opts.PingPeriod())
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.writeClose()
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.markBroken(err)
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.markBroken(err)
				return
			}
		}
	}
}

func (c *Conn) writeClose() {
	c.mu.RLock()
	code, reason := c.code, c.reason
	c.mu.RUnlock()

	frame := websocket.FormatCloseMessage(code, reason)
	if err := c.socket.WriteMessage(websocket.CloseMessage, frame); err != nil {
		c.log.Debug("write close frame", zap.Int("code", code), zap.Error(err))
	}
}

func (c *Conn) markBroken(err error) {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
	c.log.Debug("websocket write failed", zap.String("remote", c.socket.RemoteAddr().String()), zap.Error(err))
}

func (c *Conn) isClosing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closing
}

func (c *Conn) release() {
	c.once.Do(func() {
		_ = c.socket.Close()
		close(c.done)
	})
}
