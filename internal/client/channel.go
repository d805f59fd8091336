// Package client is the thin channel wrapper used by monitoring tools and
// tests: one long-lived websocket connection with automatic reconnect. Server
// side session state outlives any single connection, so a reconnect simply
// re-joins and receives a fresh snapshot; nothing is queued or replayed here.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/model"
)

// Handler receives the raw payload of one subscribed event.
type Handler func(payload json.RawMessage)

// Channel maintains one bidirectional connection.
type Channel struct {
	url        string
	maxBackoff time.Duration
	log        *zap.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[string]map[int]Handler
	nextID   int
	stop     chan struct{}

	writeMu sync.Mutex
}

// New creates a channel client for the given websocket URL.
func New(url string, maxBackoff time.Duration, log *zap.Logger) *Channel {
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	return &Channel{
		url:        url,
		maxBackoff: maxBackoff,
		handlers:   make(map[string]map[int]Handler),
		log:        log,
	}
}

// Connect dials the server and starts the read loop. Subsequent connection
// drops are retried with exponential backoff until Disconnect.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.stop = nil
		c.mu.Unlock()
		return err
	}
	c.attach(conn, stop)
	return nil
}

// Disconnect closes the connection and stops reconnecting.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Connected reports whether the channel currently has a live connection.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send delivers an event if connected; otherwise it is a silent no-op. It
// never returns an error and never queues.
func (c *Channel) Send(event string, payload any) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	frame, err := model.EncodeEvent(event, payload)
	if err != nil {
		c.log.Warn("send encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Debug("send failed", zap.String("event", event), zap.Error(err))
	}
}

// On subscribes a handler for an event and returns its unregister func.
func (c *Channel) On(event string, h Handler) func() {
	c.mu.Lock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[event][id] = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

func (c *Channel) attach(conn *websocket.Conn, stop chan struct{}) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn, stop)
}

func (c *Channel) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		env, err := model.DecodeEnvelope(data)
		if err != nil {
			c.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	select {
	case <-stop:
		return
	default:
		go c.reconnect(stop)
	}
}

func (c *Channel) dispatch(env *model.Envelope) {
	c.mu.RLock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	for _, h := range hs {
		h(env.Payload)
	}
}

// reconnect retries with exponential backoff until it succeeds or the
// channel is disconnected.
func (c *Channel) reconnect(stop chan struct{}) {
	backoff := time.Second
	for {
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err == nil {
			c.log.Info("channel reconnected")
			c.attach(conn, stop)
			return
		}
		c.log.Debug("reconnect failed", zap.Error(err))
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}
