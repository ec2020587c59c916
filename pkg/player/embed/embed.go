// ABOUTME: Streaming-embed player adapter
// ABOUTME: Drives an embedded streaming player through its iframe postMessage API
package embed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
)

// Player states reported by onStateChange
const (
	StateUnstarted = -1
	StateEnded     = 0
	StatePlaying   = 1
	StatePaused    = 2
	StateBuffering = 3
	StateCued      = 5
)

// Config holds adapter configuration
type Config struct {
	// Surface reaches the host page that embeds the iframe
	Surface player.Surface

	Logger *zerolog.Logger
}

// Adapter implements player.Adapter for the streaming embed
type Adapter struct {
	surface player.Surface
	logger  zerolog.Logger
	events  *player.EventQueue

	mu          sync.Mutex
	videoID     string
	lastState   int
	position    float64
	positionAt  time.Time
	playing     bool
	closed      bool
	done        chan struct{}
	readStopped chan struct{}
}

// New creates an adapter and starts reading player messages. Until a source
// with a video id is loaded the adapter is an inert placeholder.
func New(config Config) *Adapter {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "embed").Logger()
	}

	a := &Adapter{
		surface:     config.Surface,
		logger:      logger,
		events:      player.NewEventQueue(0),
		lastState:   StateUnstarted,
		done:        make(chan struct{}),
		readStopped: make(chan struct{}),
	}
	go a.readLoop()
	return a
}

// Placeholder reports whether no playable video is loaded
func (a *Adapter) Placeholder() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.videoID == ""
}

// VideoID returns the loaded video id
func (a *Adapter) VideoID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.videoID
}

// CurrentPosition extrapolates from the last reported time while playing
func (a *Adapter) CurrentPosition() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.positionAt.IsZero() {
		return a.position
	}
	if a.playing {
		return a.position + time.Since(a.positionAt).Seconds()
	}
	return a.position
}

// SeekAndPlay seeks and starts playback
func (a *Adapter) SeekAndPlay(position float64) error {
	if a.Placeholder() {
		return nil
	}
	a.setPosition(position)
	if err := a.command("seekTo", position, true); err != nil {
		return err
	}
	return a.command("playVideo")
}

// Pause pauses playback
func (a *Adapter) Pause() error {
	if a.Placeholder() {
		return nil
	}
	return a.command("pauseVideo")
}

// SetVolume is not available through the embed
func (a *Adapter) SetVolume(level float64) error {
	return player.ErrVolumeUnsupported
}

// Load cues a new video and starts it. A source without a video id turns
// the adapter into a placeholder.
func (a *Adapter) Load(src media.Source) error {
	a.mu.Lock()
	a.videoID = src.VideoID
	a.lastState = StateUnstarted
	a.position = 0
	a.positionAt = time.Time{}
	a.playing = false
	a.mu.Unlock()

	if src.VideoID == "" {
		a.logger.Warn().Str("locator", src.Locator).Msg("no video id, showing placeholder")
		return nil
	}
	return a.command("loadVideoById", src.VideoID, 0)
}

// Events delivers playing/paused transitions
func (a *Adapter) Events() <-chan player.Event {
	return a.events.C()
}

// Close stops the reader and closes the event stream
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.done)
	a.mu.Unlock()

	<-a.readStopped
	a.events.Close()
	return nil
}

type command struct {
	Event string `json:"event"`
	Func  string `json:"func"`
	Args  []any  `json:"args"`
}

func (a *Adapter) command(fn string, args ...any) error {
	if args == nil {
		args = []any{}
	}
	msg, err := json.Marshal(command{Event: "command", Func: fn, Args: args})
	if err != nil {
		return err
	}
	a.logger.Debug().Str("func", fn).Msg("posting command")
	return a.surface.Post(msg)
}

type inbound struct {
	Event string          `json:"event"`
	Info  json.RawMessage `json:"info"`
}

type infoDelivery struct {
	CurrentTime *float64 `json:"currentTime"`
	PlayerState *int     `json:"playerState"`
}

func (a *Adapter) readLoop() {
	defer close(a.readStopped)

	messages := a.surface.Messages()
	for {
		select {
		case <-a.done:
			return
		case raw, ok := <-messages:
			if !ok {
				return
			}
			a.handleMessage(raw)
		}
	}
}

func (a *Adapter) handleMessage(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Debug().Err(err).Msg("ignoring non-JSON player message")
		return
	}

	switch msg.Event {
	case "onStateChange":
		var state int
		if err := json.Unmarshal(msg.Info, &state); err != nil {
			a.logger.Debug().Err(err).Msg("bad state change")
			return
		}
		a.applyState(state)
	case "infoDelivery":
		var info infoDelivery
		if err := json.Unmarshal(msg.Info, &info); err != nil {
			a.logger.Debug().Err(err).Msg("bad info delivery")
			return
		}
		if info.CurrentTime != nil {
			a.setPosition(*info.CurrentTime)
		}
		if info.PlayerState != nil {
			a.applyState(*info.PlayerState)
		}
	case "onReady":
		a.logger.Debug().Msg("player ready")
	}
}

// applyState forwards clean playing/paused transitions only
func (a *Adapter) applyState(state int) {
	a.mu.Lock()
	if a.videoID == "" || state == a.lastState {
		a.mu.Unlock()
		return
	}
	if state == StateBuffering {
		// playing -> buffering -> playing stays collapsed
		a.mu.Unlock()
		return
	}
	a.lastState = state
	if state != StatePlaying && state != StatePaused {
		a.rebase()
		a.playing = false
		a.mu.Unlock()
		return
	}
	a.rebase()
	a.playing = state == StatePlaying
	position := a.position
	a.mu.Unlock()

	kind := player.Paused
	if state == StatePlaying {
		kind = player.StartedPlaying
	}
	if !a.events.Push(player.Event{Kind: kind, Position: position}) {
		a.logger.Warn().Stringer("kind", kind).Msg("event queue full, dropping")
	}
}

func (a *Adapter) setPosition(position float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = position
	a.positionAt = time.Now()
}

// rebase folds elapsed play time into position; caller holds mu
func (a *Adapter) rebase() {
	if a.playing && !a.positionAt.IsZero() {
		now := time.Now()
		a.position += now.Sub(a.positionAt).Seconds()
		a.positionAt = now
	}
}

var _ player.Adapter = (*Adapter)(nil)
