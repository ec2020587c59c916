// ABOUTME: WebSocket transport channel
// ABOUTME: Handles connection, room membership and event routing over a relay link
package transport

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/protocol"
)

const (
	defaultPath             = "/ws"
	defaultHandshakeTimeout = 5 * time.Second
	defaultPingInterval     = 5 * time.Second
	defaultWriteWait        = 5 * time.Second
)

// Config holds channel configuration
type Config struct {
	// ServerURL is either host:port or a full ws:// or wss:// URL
	ServerURL string

	// ClientID identifies this channel to the relay (default: random uuid)
	ClientID string

	// PingInterval is the keepalive period; the link is considered dead
	// after two missed pongs
	PingInterval time.Duration

	// HandshakeTimeout bounds a single dial attempt
	HandshakeTimeout time.Duration

	Logger *zerolog.Logger
}

// WebSocket is a Channel over a gorilla/websocket connection
type WebSocket struct {
	config Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	// dialMu serializes connection attempts so Connect stays idempotent
	dialMu sync.Mutex

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}
	handlers  map[string]Handler
	rooms     map[string]struct{}

	writeMu sync.Mutex
	status  chan bool
}

// NewWebSocket creates a channel; no connection is made until Connect
func NewWebSocket(config Config) *WebSocket {
	if config.ClientID == "" {
		config.ClientID = uuid.NewString()
	}
	if config.PingInterval == 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "transport").Str("client", config.ClientID).Logger()
	}

	return &WebSocket{
		config:   config,
		dialer:   &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		logger:   logger,
		handlers: make(map[string]Handler),
		rooms:    make(map[string]struct{}),
		status:   make(chan bool, 8),
	}
}

// ClientID returns the id announced to the relay
func (c *WebSocket) ClientID() string {
	return c.config.ClientID
}

// Connect dials the relay. Failures are logged and leave the channel disconnected.
func (c *WebSocket) Connect(ctx context.Context) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.Connected() {
		return
	}

	target := c.dialURL()
	c.logger.Debug().Str("url", target).Msg("connecting")

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", target).Msg("connect failed")
		return
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = done
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.mu.Unlock()

	c.logger.Info().Str("url", target).Msg("connected")
	c.publishStatus(true)

	go c.readMessages(conn)
	go c.keepalive(conn, done)

	for _, roomID := range rooms {
		c.Emit(protocol.EventJoinRoom, roomID)
	}
}

// Disconnect closes the link if it is up
func (c *WebSocket) Disconnect() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultWriteWait))
	c.writeMu.Unlock()

	c.dropConn(conn)
}

// JoinRoom records membership and announces it, connecting first when needed
func (c *WebSocket) JoinRoom(ctx context.Context, roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()

	if c.Connected() {
		c.Emit(protocol.EventJoinRoom, roomID)
		return
	}

	// Connect announces every remembered room
	c.Connect(ctx)
}

// LeaveRoom forgets membership and tells the relay
func (c *WebSocket) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()

	c.Emit(protocol.EventLeaveRoom, roomID)
}

// Emit sends an event; dropped while disconnected
func (c *WebSocket) Emit(event string, data any) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		c.logger.Debug().Str("event", event).Msg("not connected, dropping emit")
		return
	}

	frame, err := protocol.EncodeEnvelope(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("write failed")
		c.dropConn(conn)
	}
}

// On registers the single handler for an event name
func (c *WebSocket) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Off removes the handler for an event name
func (c *WebSocket) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Connected returns connection status
func (c *WebSocket) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// StatusChanges delivers link transitions. Slow readers miss intermediate values.
func (c *WebSocket) StatusChanges() <-chan bool {
	return c.status
}

// readMessages reads and routes incoming frames until the link fails
func (c *WebSocket) readMessages(conn *websocket.Conn) {
	defer c.dropConn(conn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug().Int("type", messageType).Msg("ignoring non-text frame")
			continue
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping frame")
			continue
		}

		c.mu.RLock()
		handler := c.handlers[env.Event]
		c.mu.RUnlock()

		if handler == nil {
			c.logger.Debug().Str("event", env.Event).Msg("no handler")
			continue
		}
		handler(env.Data)
	}
}

// keepalive pings the relay and arms the read deadline
func (c *WebSocket) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	pongWait := 2 * c.config.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn().Err(err).Msg("ping failed")
				c.dropConn(conn)
				return
			}
		case <-done:
			return
		}
	}
}

// dropConn marks the link down if conn is still the current one
func (c *WebSocket) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn || !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	conn.Close()
	c.logger.Info().Msg("connection closed")
	c.publishStatus(false)
}

func (c *WebSocket) publishStatus(connected bool) {
	select {
	case c.status <- connected:
	default:
		// Drop the oldest value so the latest state always lands
		select {
		case <-c.status:
		default:
		}
		select {
		case c.status <- connected:
		default:
		}
	}
}

// dialURL builds the relay URL, accepting bare host:port addresses
func (c *WebSocket) dialURL() string {
	raw := c.config.ServerURL
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}
	q := u.Query()
	q.Set("client", c.config.ClientID)
	u.RawQuery = q.Encode()
	return u.String()
}
