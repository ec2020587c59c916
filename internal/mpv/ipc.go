// ABOUTME: mpv JSON IPC client
// ABOUTME: Matches command replies by request id and forwards events
package mpv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultCommandTimeout = 5 * time.Second

// ErrClosed is returned for commands issued after the connection ended
var ErrClosed = errors.New("mpv: connection closed")

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// message is either a command reply or an event
type message struct {
	Event     string          `json:"event,omitempty"`
	ID        int64           `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID int64           `json:"request_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type reply struct {
	data json.RawMessage
	err  error
}

// client speaks newline-delimited JSON over an IPC socket
type client struct {
	conn    net.Conn
	logger  zerolog.Logger
	timeout time.Duration
	events  chan message

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan reply
	closed  bool
	done    chan struct{}
}

func newClient(conn net.Conn, logger zerolog.Logger) *client {
	c := &client{
		conn:    conn,
		logger:  logger,
		timeout: defaultCommandTimeout,
		events:  make(chan message, 64),
		pending: make(map[int64]chan reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// command sends a command and waits for its reply
func (c *client) command(args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	line, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("encode mpv command: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err = c.conn.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("write mpv command: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-c.done:
		return nil, ErrClosed
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("mpv command %v: timed out", args[0])
	}
}

func (c *client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *client) readLoop() {
	defer c.shutdown()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Debug().Err(err).Msg("skipping unreadable ipc line")
			continue
		}

		if msg.Event != "" {
			select {
			case c.events <- msg:
			default:
				c.logger.Warn().Str("event", msg.Event).Msg("event buffer full, dropping")
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if !ok {
			continue
		}

		if msg.Error != "" && msg.Error != "success" {
			ch <- reply{err: fmt.Errorf("mpv: %s", msg.Error)}
		} else {
			ch <- reply{data: msg.Data}
		}
	}
}

func (c *client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[int64]chan reply)
	close(c.done)
	c.mu.Unlock()

	close(c.events)
}

func (c *client) close() error {
	return c.conn.Close()
}
