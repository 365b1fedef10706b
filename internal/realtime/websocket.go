package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classline/notify/internal/auth"
)

// OpenerConfig configures the WebSocket push channel.
type OpenerConfig struct {
	URL              string            // stream URL (e.g. wss://realtime.classline.app/v1/stream)
	Credentials      *auth.Credentials // nil = unsigned handshake (test servers)
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration // max wait for the subscribe acknowledgment
	PingInterval     time.Duration // how often to ping the server
	PongTimeout      time.Duration // max silence before the channel reports stale
	EventBufferSize  int
}

func (c OpenerConfig) withDefaults() OpenerConfig {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SubscribeTimeout == 0 {
		c.SubscribeTimeout = 10 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 45 * time.Second
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = 256
	}
	return c
}

// WSOpener opens WebSocket push channels against the Classline
// realtime backend.
type WSOpener struct {
	cfg    OpenerConfig
	logger *slog.Logger
}

// NewWSOpener creates an Opener backed by gorilla/websocket.
func NewWSOpener(cfg OpenerConfig, logger *slog.Logger) *WSOpener {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSOpener{
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Open creates a channel scoped to the given recipient identity. The
// network dial happens in Subscribe.
func (o *WSOpener) Open(identity string) (Channel, error) {
	if identity == "" {
		return nil, ErrMissingIdentity
	}

	return &wsChannel{
		cfg:      o.cfg,
		identity: identity,
		logger:   o.logger.With("recipient", identity),
		events:   make(chan Event, o.cfg.EventBufferSize),
		done:     make(chan struct{}),
	}, nil
}

// wsChannel is a single-use WebSocket subscription.
type wsChannel struct {
	cfg      OpenerConfig
	identity string
	logger   *slog.Logger

	conn   *websocket.Conn
	events chan Event
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	subscribed bool
	closed     bool
	lastPongAt time.Time

	cmdID int64
}

// Subscribe dials the stream, sends the subscribe command, and starts
// the read and keepalive loops. Lifecycle outcomes after a successful
// dial are reported through fn.
func (c *wsChannel) Subscribe(ctx context.Context, fn StatusFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.cfg.Credentials != nil {
		signed, err := c.cfg.Credentials.SignStream()
		if err != nil {
			return fmt.Errorf("sign handshake: %w", err)
		}
		for k, v := range signed {
			header.Set(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	cmd := command{
		ID:     atomic.AddInt64(&c.cmdID, 1),
		Cmd:    "subscribe",
		Params: subscribeParams{Recipient: c.identity},
	}
	data, _ := json.Marshal(cmd)
	if err := c.send(data); err != nil {
		conn.Close()
		return fmt.Errorf("send subscribe: %w", err)
	}

	go c.readLoop(fn)
	go c.keepaliveLoop(fn)
	go c.ackWatch(fn)

	c.logger.Debug("stream dialed", "url", c.cfg.URL)

	return nil
}

// Unsubscribe tears the channel down. Idempotent.
func (c *wsChannel) Unsubscribe() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
}

// Events returns the inbound payload stream.
func (c *wsChannel) Events() <-chan Event {
	return c.events
}

// Alive reports transport health based on connection state and recent
// ping/pong traffic.
func (c *wsChannel) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return false
	}
	return time.Since(c.lastPongAt) <= c.cfg.PongTimeout
}

// touch records inbound ping/pong traffic for staleness tracking.
func (c *wsChannel) touch() {
	c.mu.Lock()
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

// send writes raw bytes with a deadline, serializing writers.
func (c *wsChannel) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// report invokes the status callback unless the channel was already
// torn down locally.
func (c *wsChannel) report(fn StatusFunc, status ChannelStatus, err error) {
	select {
	case <-c.done:
		return
	default:
	}
	fn(status, err)
}

// readLoop reads frames, resolves the subscribe acknowledgment, and
// forwards notification payloads to the events channel.
func (c *wsChannel) readLoop(fn StatusFunc) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.report(fn, ChannelClosed, nil)
			} else {
				c.report(fn, ChannelError, err)
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("unparseable stream frame", "error", err)
			continue
		}

		switch msg.Type {
		case "subscribed":
			c.mu.Lock()
			c.subscribed = true
			c.mu.Unlock()
			c.report(fn, ChannelSubscribed, nil)

		case "error":
			var em errorMsg
			json.Unmarshal(msg.Msg, &em)
			c.report(fn, ChannelError, fmt.Errorf("%s: %s", em.Code, em.Message))
			return

		case "notification":
			ev := Event{Data: msg.Msg, ReceivedAt: receivedAt}
			select {
			case c.events <- ev:
			case <-c.done:
				return
			default:
				c.logger.Warn("event buffer full, dropping notification")
			}

		case "ok":
			// keepalive or ack for a command we don't track

		default:
			c.logger.Debug("unknown stream frame type", "type", msg.Type)
		}
	}
}

// ackWatch fails the subscription if no acknowledgment arrives in time.
func (c *wsChannel) ackWatch(fn StatusFunc) {
	select {
	case <-c.done:
		return
	case <-time.After(c.cfg.SubscribeTimeout):
	}

	c.mu.RLock()
	subscribed := c.subscribed
	c.mu.RUnlock()

	if !subscribed {
		c.report(fn, ChannelError, ErrSubscribeTimeout)
	}
}

// keepaliveLoop pings the server and reports staleness when the peer
// goes silent.
func (c *wsChannel) keepaliveLoop(fn StatusFunc) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPong) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, stream stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PongTimeout,
				)
				c.report(fn, ChannelError, ErrStaleChannel)
				return
			}
		}
	}
}
