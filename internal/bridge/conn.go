// ABOUTME: Stable message pipe to a browser surface
// ABOUTME: Survives page reloads by re-binding to the newest websocket
package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 5 * time.Second
	messageQueue = 64
)

// Conn carries messages to and from whichever page most recently connected
// to its endpoint. Posts without an attached page are dropped.
type Conn struct {
	name   string
	logger zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	closed   bool
	messages chan []byte

	writeMu sync.Mutex
}

func newConn(name string, logger zerolog.Logger) *Conn {
	return &Conn{
		name:     name,
		logger:   logger.With().Str("surface", name).Logger(),
		messages: make(chan []byte, messageQueue),
	}
}

// Attached reports whether a page is connected
func (c *Conn) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Post sends msg to the attached page
func (c *Conn) Post(msg []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		c.logger.Warn().Msg("no page attached, dropping message; reload the page or re-inject the script")
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.detach(ws)
		return err
	}
	return nil
}

// Messages delivers messages from the page
func (c *Conn) Messages() <-chan []byte {
	return c.messages
}

// Close detaches the page and ends the message stream
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	close(c.messages)
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

// attach makes ws the current page and reads from it until it goes away.
// A previous page is disconnected; last connection wins.
func (c *Conn) attach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	prev := c.ws
	c.ws = ws
	c.mu.Unlock()

	if prev != nil {
		c.logger.Info().Msg("page replaced")
		prev.Close()
	} else {
		c.logger.Info().Msg("page attached")
	}

	defer c.detach(ws)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("page read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.deliver(data)
	}
}

func (c *Conn) deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.messages <- data:
	default:
		c.logger.Warn().Msg("message queue full, dropping")
	}
}

func (c *Conn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	current := c.ws == ws
	if current {
		c.ws = nil
	}
	c.mu.Unlock()

	ws.Close()
	if current {
		c.logger.Info().Msg("page detached")
	}
}
