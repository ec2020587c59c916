// ABOUTME: Injected-script player adapter
// ABOUTME: Controls a video element inside an arbitrary page through the sandbox bridge
package sandbox

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
)

// Command types posted into the sandbox
const (
	CommandPlay   = "PLAY"
	CommandPause  = "PAUSE"
	CommandVolume = "VOLUME"
	CommandLoad   = "LOAD"
)

// Report types posted by the injected script
const (
	ReportPlay  = "PLAY"
	ReportPause = "PAUSE"
	ReportSeek  = "SEEK"
	ReportTime  = "TIME"
)

// Config holds adapter configuration
type Config struct {
	Surface player.Surface
	Logger  *zerolog.Logger
}

// Adapter implements player.Adapter over the injected script
type Adapter struct {
	surface player.Surface
	logger  zerolog.Logger
	events  *player.EventQueue

	mu         sync.Mutex
	position   float64
	positionAt time.Time
	playing    bool
	closed     bool
	done       chan struct{}
	stopped    chan struct{}
}

// New creates an adapter and starts reading sandbox reports
func New(config Config) *Adapter {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "sandbox").Logger()
	}

	a := &Adapter{
		surface: config.Surface,
		logger:  logger,
		events:  player.NewEventQueue(0),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.readLoop()
	return a
}

type command struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type report struct {
	Type string   `json:"type"`
	Time *float64 `json:"time"`
}

func (a *Adapter) post(kind string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	msg, err := json.Marshal(command{Type: kind, Payload: payload})
	if err != nil {
		return err
	}
	return a.surface.Post(msg)
}

// CurrentPosition returns the last reported time, advanced while playing
func (a *Adapter) CurrentPosition() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.playing && !a.positionAt.IsZero() {
		return a.position + time.Since(a.positionAt).Seconds()
	}
	return a.position
}

func (a *Adapter) SeekAndPlay(position float64) error {
	a.record(position, true)
	return a.post(CommandPlay, map[string]any{"position": position})
}

func (a *Adapter) Pause() error {
	a.mu.Lock()
	a.playing = false
	a.mu.Unlock()
	return a.post(CommandPause, nil)
}

func (a *Adapter) SetVolume(level float64) error {
	return a.post(CommandVolume, map[string]any{"level": player.ClampVolume(level)})
}

// Load navigates the sandbox to the locator
func (a *Adapter) Load(src media.Source) error {
	a.record(0, true)
	return a.post(CommandLoad, map[string]any{"locator": src.Locator})
}

func (a *Adapter) Events() <-chan player.Event {
	return a.events.C()
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.done)
	a.mu.Unlock()

	<-a.stopped
	a.events.Close()
	return nil
}

func (a *Adapter) record(position float64, playing bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = position
	a.positionAt = time.Now()
	a.playing = playing
}

func (a *Adapter) readLoop() {
	defer close(a.stopped)

	messages := a.surface.Messages()
	for {
		select {
		case <-a.done:
			return
		case raw, ok := <-messages:
			if !ok {
				return
			}
			a.handleReport(raw)
		}
	}
}

// handleReport swallows anything that is not a well-formed report
func (a *Adapter) handleReport(raw []byte) {
	var r report
	if err := json.Unmarshal(raw, &r); err != nil {
		a.logger.Debug().Err(err).Msg("non-JSON message from sandbox")
		return
	}

	position := a.CurrentPosition()
	if r.Time != nil {
		position = *r.Time
	}

	var kind player.EventKind
	switch strings.ToUpper(r.Type) {
	case ReportPlay:
		a.record(position, true)
		kind = player.StartedPlaying
	case ReportPause:
		a.record(position, false)
		kind = player.Paused
	case ReportSeek:
		a.mu.Lock()
		playing := a.playing
		a.mu.Unlock()
		a.record(position, playing)
		kind = player.PositionDrifted
	case ReportTime:
		a.mu.Lock()
		playing := a.playing
		a.mu.Unlock()
		a.record(position, playing)
		return
	default:
		a.logger.Debug().Str("type", r.Type).Msg("unknown sandbox report")
		return
	}

	if !a.events.Push(player.Event{Kind: kind, Position: position}) {
		a.logger.Warn().Stringer("kind", kind).Msg("event queue full, dropping")
	}
}

var _ player.Adapter = (*Adapter)(nil)
