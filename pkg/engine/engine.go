// ABOUTME: Sync engine state machine
// ABOUTME: Serializes local, remote and adapter triggers and arms the suppression window
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
	"github.com/syncwatch/syncwatch-go/pkg/protocol"
)

// DefaultWindow is the echo suppression window
const DefaultWindow = 500 * time.Millisecond

// ErrEmptyLocator is returned when loading an empty locator
var ErrEmptyLocator = errors.New("empty locator")

// State is the content playback state
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Snapshot is a point-in-time view of the engine
type Snapshot struct {
	State      State
	Suppressed bool
	Source     media.Source
}

// Emitter sends relay events. transport.Channel satisfies it.
type Emitter interface {
	Emit(event string, data any)
}

// AdapterProvider supplies the adapter that should play a source. It may
// return the adapter already attached.
type AdapterProvider interface {
	AdapterFor(src media.Source) (player.Adapter, error)
}

// Config holds engine configuration
type Config struct {
	RoomID string

	// Window is the suppression window (default: 500ms)
	Window time.Duration

	// PausePosition makes PAUSE carry the current position
	PausePosition bool

	Emitter  Emitter
	Provider AdapterProvider

	// Clock drives the suppression window (default: wall clock)
	Clock clock.Clock

	Logger *zerolog.Logger

	// OnChange is called after every state or suppression change
	OnChange func(Snapshot)
}

// DefaultConfig returns the standard configuration for a room
func DefaultConfig(roomID string) Config {
	return Config{
		RoomID:        roomID,
		Window:        DefaultWindow,
		PausePosition: true,
	}
}

// Engine is the sync state machine. All transitions are serialized; adapter
// calls and emissions happen after a transition is committed, so adapters
// that report synchronously from inside a call re-enter safely.
type Engine struct {
	config Config
	clock  clock.Clock
	logger zerolog.Logger

	mu              sync.Mutex
	state           State
	source          media.Source
	adapter         player.Adapter
	pumpStop        chan struct{}
	suppressedUntil time.Time
	expiry          *clock.Timer
	closed          bool
}

// New creates an engine
func New(config Config) *Engine {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "engine").Str("room", config.RoomID).Logger()
	}

	return &Engine{
		config: config,
		clock:  config.Clock,
		logger: logger,
	}
}

// RoomID returns the room this engine synchronizes
func (e *Engine) RoomID() string {
	return e.config.RoomID
}

// State returns the content state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Suppressed reports whether a suppression window is open
func (e *Engine) Suppressed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suppressedLocked()
}

// Source returns the current media source
func (e *Engine) Source() media.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Adapter returns the attached adapter, or nil
func (e *Engine) Adapter() player.Adapter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adapter
}

// Snapshot returns the current state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Load plays a new source locally and announces it to the room
func (e *Engine) Load(locator string) error {
	src := media.Resolve(locator)
	if src.IsZero() {
		return ErrEmptyLocator
	}

	adapter, err := e.config.Provider.AdapterFor(src)
	if err != nil {
		e.mu.Lock()
		snap, changed := e.detachLocked()
		e.mu.Unlock()
		if changed {
			e.notify(snap)
		}
		return fmt.Errorf("no adapter for %s: %w", src.Kind, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.attachLocked(adapter)
	e.source = src
	e.state = Playing
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Info().Str("locator", src.Locator).Str("kind", string(src.Kind)).Msg("loading source")
	e.apply("load", func() error { return adapter.Load(src) })
	e.emit(protocol.NewLoad(e.config.RoomID, src.Locator))
	e.notify(snap)
	return nil
}

// Toggle flips between playing and paused on an explicit user action. It
// always emits, even while a suppression window is open. With nothing
// loaded there is nothing to toggle.
func (e *Engine) Toggle() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.state == Idle {
		e.mu.Unlock()
		e.logger.Debug().Msg("toggle ignored, nothing loaded")
		return
	}
	adapter := e.adapter
	pausing := e.state == Playing
	if pausing {
		e.state = Paused
	} else {
		e.state = Playing
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	position := 0.0
	if adapter != nil {
		position = adapter.CurrentPosition()
	}

	if pausing {
		if adapter != nil {
			e.apply("pause", adapter.Pause)
		}
		e.emit(e.pauseAction(position))
	} else {
		if adapter != nil {
			e.apply("play", func() error { return adapter.SeekAndPlay(position) })
		}
		e.emit(protocol.NewPlay(e.config.RoomID, position))
	}
	e.notify(snap)
}

// HandleRemote applies an action received from the room. The suppression
// window is re-armed by every inbound action.
func (e *Engine) HandleRemote(action protocol.SyncAction) {
	if action.RoomID != e.config.RoomID {
		e.logger.Debug().Str("target", action.RoomID).Msg("ignoring action for another room")
		return
	}

	var (
		src     media.Source
		adapter player.Adapter
		err     error
	)
	if action.Type == protocol.TypeLoad {
		src = media.Resolve(action.Payload.Locator)
		adapter, err = e.config.Provider.AdapterFor(src)
		if err != nil {
			e.logger.Warn().Err(err).Str("locator", src.Locator).Msg("no adapter for remote source")
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.armLocked()

	switch action.Type {
	case protocol.TypeLoad:
		if adapter == nil {
			// The previous player may already be gone; nothing plays src
			e.detachLocked()
			break
		}
		e.attachLocked(adapter)
		e.source = src
		e.state = Playing
	case protocol.TypePlay, protocol.TypeSeek:
		if e.state == Idle {
			break
		}
		adapter = e.adapter
		e.state = Playing
	case protocol.TypePause:
		if e.state == Idle {
			break
		}
		adapter = e.adapter
		e.state = Paused
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug().Str("type", string(action.Type)).Msg("applying remote action")

	if adapter != nil {
		switch action.Type {
		case protocol.TypeLoad:
			e.apply("load", func() error { return adapter.Load(src) })
		case protocol.TypePlay, protocol.TypeSeek:
			position := action.Payload.PositionOr(adapter.CurrentPosition())
			e.apply("play", func() error { return adapter.SeekAndPlay(position) })
		case protocol.TypePause:
			e.apply("pause", adapter.Pause)
		}
	}
	e.notify(snap)
}

// HandlePlayerEvent processes an event reported by adapter. Events from an
// adapter that is no longer attached, and any event while suppressed, are
// consumed without effect.
func (e *Engine) HandlePlayerEvent(adapter player.Adapter, ev player.Event) {
	e.mu.Lock()
	if e.closed || adapter == nil || adapter != e.adapter {
		e.mu.Unlock()
		return
	}
	if e.suppressedLocked() {
		e.mu.Unlock()
		e.logger.Debug().Stringer("kind", ev.Kind).Msg("suppressed player event")
		return
	}

	if e.state == Idle {
		e.mu.Unlock()
		return
	}

	var build func(position float64) protocol.SyncAction
	switch ev.Kind {
	case player.StartedPlaying:
		e.state = Playing
		build = func(p float64) protocol.SyncAction { return protocol.NewPlay(e.config.RoomID, p) }
	case player.Paused:
		e.state = Paused
		build = e.pauseAction
	case player.PositionDrifted:
		switch {
		case e.state == Playing:
			build = func(p float64) protocol.SyncAction { return protocol.NewPlay(e.config.RoomID, p) }
		case e.state == Paused && e.config.PausePosition:
			build = e.pauseAction
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if build == nil {
		return
	}
	e.emit(build(adapter.CurrentPosition()))
	e.notify(snap)
}

// Close detaches the adapter and stops the window timer. The adapter itself
// belongs to the provider and is not closed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.stopPumpLocked()
	e.adapter = nil
	if e.expiry != nil {
		e.expiry.Stop()
	}
}

func (e *Engine) pauseAction(position float64) protocol.SyncAction {
	if e.config.PausePosition {
		return protocol.NewPauseAt(e.config.RoomID, position)
	}
	return protocol.NewPause(e.config.RoomID)
}

func (e *Engine) suppressedLocked() bool {
	return e.clock.Now().Before(e.suppressedUntil)
}

// armLocked opens (or extends) the suppression window from now
func (e *Engine) armLocked() {
	e.suppressedUntil = e.clock.Now().Add(e.config.Window)
	if e.expiry != nil {
		e.expiry.Stop()
	}
	e.expiry = e.clock.AfterFunc(e.config.Window, e.expire)
}

func (e *Engine) expire() {
	e.mu.Lock()
	if e.closed || e.suppressedLocked() {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug().Msg("suppression window closed")
	e.notify(snap)
}

// attachLocked makes adapter current and pumps its events
func (e *Engine) attachLocked(adapter player.Adapter) {
	if adapter == e.adapter {
		return
	}
	e.stopPumpLocked()
	e.adapter = adapter

	stop := make(chan struct{})
	e.pumpStop = stop
	go e.pump(adapter, stop)
}

// detachLocked drops the adapter and returns to Idle. It reports whether
// anything changed.
func (e *Engine) detachLocked() (Snapshot, bool) {
	if e.closed || (e.adapter == nil && e.state == Idle) {
		return e.snapshotLocked(), false
	}
	e.stopPumpLocked()
	e.adapter = nil
	e.source = media.Source{}
	e.state = Idle
	return e.snapshotLocked(), true
}

func (e *Engine) stopPumpLocked() {
	if e.pumpStop != nil {
		close(e.pumpStop)
		e.pumpStop = nil
	}
}

func (e *Engine) pump(adapter player.Adapter, stop <-chan struct{}) {
	events := adapter.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.HandlePlayerEvent(adapter, ev)
		}
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		State:      e.state,
		Suppressed: e.suppressedLocked(),
		Source:     e.source,
	}
}

// apply runs an adapter call; failures are logged and otherwise ignored
func (e *Engine) apply(op string, call func() error) {
	if err := call(); err != nil {
		e.logger.Warn().Err(err).Str("op", op).Msg("player call failed")
	}
}

func (e *Engine) emit(action protocol.SyncAction) {
	if e.config.Emitter == nil {
		return
	}
	e.logger.Debug().Str("type", string(action.Type)).Msg("emitting")
	e.config.Emitter.Emit(protocol.EventSyncAction, action)
}

func (e *Engine) notify(snap Snapshot) {
	if e.config.OnChange != nil {
		e.config.OnChange(snap)
	}
}
