// ABOUTME: Native media element backed by an mpv process
// ABOUTME: Controls playback and observes pause and time-pos over JSON IPC
package mpv

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/player/native"
)

const (
	defaultPath        = "mpv"
	defaultDialTimeout = 5 * time.Second
	dialRetryInterval  = 50 * time.Millisecond
)

// Observed property ids
const (
	propPause = iota + 1
	propTimePos
)

// Config holds mpv element configuration
type Config struct {
	// Path is the mpv executable (default: "mpv" on $PATH)
	Path string

	// SocketPath is the IPC socket (default: a fresh file in the temp dir)
	SocketPath string

	// DialTimeout bounds the wait for mpv to open its socket
	DialTimeout time.Duration

	// ExtraArgs are appended to the mpv command line
	ExtraArgs []string

	Logger *zerolog.Logger
}

// Element is a native.MediaElement driving mpv
type Element struct {
	client  *client
	cmd     *exec.Cmd
	socket  string
	logger  zerolog.Logger
	updates chan native.Status

	mu     sync.Mutex
	status native.Status
	closed bool

	watchDone chan struct{}
}

// Start launches mpv in idle mode and connects to its IPC socket
func Start(ctx context.Context, config Config) (*Element, error) {
	if config.Path == "" {
		config.Path = defaultPath
	}
	if config.SocketPath == "" {
		config.SocketPath = filepath.Join(os.TempDir(), "syncwatch-mpv-"+uuid.NewString()[:8]+".sock")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaultDialTimeout
	}
	logger := componentLogger(config.Logger)

	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=yes",
		"--no-terminal",
		"--input-ipc-server=" + config.SocketPath,
	}
	args = append(args, config.ExtraArgs...)

	cmd := exec.Command(config.Path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}
	logger.Info().Str("path", config.Path).Str("socket", config.SocketPath).Int("pid", cmd.Process.Pid).Msg("mpv started")

	conn, err := dialSocket(ctx, config.SocketPath, config.DialTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	e, err := attach(conn, logger)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	e.cmd = cmd
	e.socket = config.SocketPath
	return e, nil
}

// Dial connects to an mpv instance that is already listening on conn
func Dial(conn net.Conn, logger *zerolog.Logger) (*Element, error) {
	return attach(conn, componentLogger(logger))
}

func componentLogger(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.With().Str("component", "mpv").Logger()
}

// dialSocket retries until mpv has created its socket
func dialSocket(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to mpv socket %s: %w", path, err)
		case <-time.After(dialRetryInterval):
		}
	}
}

func attach(conn net.Conn, logger zerolog.Logger) (*Element, error) {
	e := &Element{
		client:    newClient(conn, logger),
		logger:    logger,
		updates:   make(chan native.Status, 16),
		watchDone: make(chan struct{}),
	}
	go e.watch()

	for id, name := range map[int]string{propPause: "pause", propTimePos: "time-pos"} {
		if _, err := e.client.command("observe_property", id, name); err != nil {
			e.client.close()
			return nil, fmt.Errorf("observe %s: %w", name, err)
		}
	}
	return e, nil
}

// Open loads a locator, replacing the current file, and starts playback
func (e *Element) Open(locator string) error {
	e.mu.Lock()
	e.status = native.Status{}
	e.mu.Unlock()

	if _, err := e.client.command("loadfile", locator, "replace"); err != nil {
		return fmt.Errorf("load %s: %w", locator, err)
	}
	return e.Play()
}

func (e *Element) Play() error {
	_, err := e.client.command("set_property", "pause", false)
	return err
}

func (e *Element) Pause() error {
	_, err := e.client.command("set_property", "pause", true)
	return err
}

func (e *Element) Seek(position time.Duration) error {
	_, err := e.client.command("seek", native.ToSeconds(position), "absolute")
	return err
}

// SetVolume maps 0..1 onto mpv's 0..100 scale
func (e *Element) SetVolume(level float64) error {
	_, err := e.client.command("set_property", "volume", level*100)
	return err
}

func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Position
}

func (e *Element) Updates() <-chan native.Status {
	return e.updates
}

// Close quits mpv and releases the socket
func (e *Element) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.cmd != nil {
		_, _ = e.client.command("quit")
	}
	err := e.client.close()
	<-e.watchDone

	if e.cmd != nil {
		done := make(chan struct{})
		go func() {
			_ = e.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = e.cmd.Process.Kill()
			<-done
		}
		_ = os.Remove(e.socket)
	}
	return err
}

// watch folds IPC events into status updates
func (e *Element) watch() {
	defer close(e.watchDone)
	defer close(e.updates)

	for msg := range e.client.events {
		st, ok := e.apply(msg)
		if !ok {
			continue
		}
		e.publish(st)
	}
}

func (e *Element) apply(msg message) (native.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch msg.Event {
	case "property-change":
		if len(msg.Data) == 0 || string(msg.Data) == "null" {
			// unset while nothing is loaded
			return e.status, false
		}
		switch msg.ID {
		case propPause:
			var paused bool
			if json.Unmarshal(msg.Data, &paused) != nil {
				return e.status, false
			}
			e.status.Playing = !paused
		case propTimePos:
			var seconds float64
			if json.Unmarshal(msg.Data, &seconds) != nil {
				return e.status, false
			}
			e.status.Position = native.ToDuration(seconds)
		default:
			return e.status, false
		}
	case "file-loaded":
		e.status.Loaded = true
	case "end-file":
		e.status.Loaded = false
		e.status.Playing = false
	case "seek", "playback-restart":
	default:
		return e.status, false
	}
	return e.status, true
}

// publish keeps the newest status when the reader falls behind
func (e *Element) publish(st native.Status) {
	select {
	case e.updates <- st:
		return
	default:
	}
	select {
	case <-e.updates:
	default:
	}
	select {
	case e.updates <- st:
	default:
	}
}

var _ native.MediaElement = (*Element)(nil)
