// ABOUTME: Session controller implementation
// ABOUTME: Joins rooms, routes sync actions to the engine and tracks link health
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/engine"
	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
	"github.com/syncwatch/syncwatch-go/pkg/protocol"
	"github.com/syncwatch/syncwatch-go/pkg/transport"
)

// DefaultHealthInterval is how often link health is polled
const DefaultHealthInterval = 2 * time.Second

var (
	// ErrNotInRoom is returned by operations that need a joined room
	ErrNotInRoom = errors.New("not in a room")

	// ErrEmptyRoom is returned when entering a room without an id
	ErrEmptyRoom = errors.New("room id is required")
)

// AdapterFactory builds the adapter for a media kind
type AdapterFactory func(kind media.Kind) (player.Adapter, error)

// Config holds session configuration
type Config struct {
	Channel transport.Channel
	Factory AdapterFactory

	// ForceKind routes every source to one adapter kind when set
	ForceKind media.Kind

	// Window is the echo suppression window (default: 500ms)
	Window time.Duration

	// PausePosition makes PAUSE carry the current position
	PausePosition bool

	// HealthInterval is the link health polling period (default: 2s)
	HealthInterval time.Duration

	// EventDrivenHealth consumes channel status changes as they happen
	// when the channel supports it
	EventDrivenHealth bool

	// Volume is the initial volume, 0..1 (default: 1)
	Volume *float64

	Clock  clock.Clock
	Logger *zerolog.Logger

	// OnStateChange is called when anything in Status changes
	OnStateChange func(Status)

	// OnError is called for non-fatal errors worth surfacing
	OnError func(error)
}

// DefaultConfig returns a configuration with standard sync settings
func DefaultConfig(channel transport.Channel, factory AdapterFactory) Config {
	return Config{
		Channel:        channel,
		Factory:        factory,
		Window:         engine.DefaultWindow,
		PausePosition:  true,
		HealthInterval: DefaultHealthInterval,
	}
}

// Status describes the session
type Status struct {
	RoomID     string
	Connected  bool
	State      engine.State
	Suppressed bool
	Source     media.Source
	Adapter    media.Kind
	Volume     float64
}

// Playing reports whether content is playing
func (s Status) Playing() bool {
	return s.State == engine.Playing
}

// Session is the user-facing watch surface
type Session struct {
	config Config
	clock  clock.Clock
	logger zerolog.Logger

	mu          sync.Mutex
	roomID      string
	engine      *engine.Engine
	adapter     player.Adapter
	adapterKind media.Kind
	volume      float64
	connected   bool
	cancel      context.CancelFunc
	healthDone  chan struct{}
}

// New creates a session
func New(config Config) (*Session, error) {
	if config.Channel == nil {
		return nil, errors.New("session: channel is required")
	}
	if config.Factory == nil {
		return nil, errors.New("session: adapter factory is required")
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = DefaultHealthInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	volume := 1.0
	if config.Volume != nil {
		volume = player.ClampVolume(*config.Volume)
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "session").Logger()
	}

	return &Session{
		config: config,
		clock:  config.Clock,
		logger: logger,
		volume: volume,
	}, nil
}

// EnterRoom joins roomID and, when initialLocator is set, loads it for the
// whole room. A relay that cannot be reached is not an error; the link
// shows up as offline until it recovers.
func (s *Session) EnterRoom(ctx context.Context, roomID, initialLocator string) error {
	if roomID == "" {
		return ErrEmptyRoom
	}
	if s.RoomID() != "" {
		s.LeaveRoom()
	}

	eng := engine.New(engine.Config{
		RoomID:        roomID,
		Window:        s.config.Window,
		PausePosition: s.config.PausePosition,
		Emitter:       s.config.Channel,
		Provider:      s,
		Clock:         s.clock,
		Logger:        s.config.Logger,
		OnChange:      func(engine.Snapshot) { s.notifyStateChange() },
	})

	healthCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.roomID = roomID
	s.engine = eng
	s.cancel = cancel
	s.healthDone = done
	s.mu.Unlock()

	s.config.Channel.On(protocol.EventSyncAction, s.handleSyncAction)
	s.config.Channel.JoinRoom(ctx, roomID)
	s.logger.Info().Str("room", roomID).Bool("connected", s.config.Channel.Connected()).Msg("entered room")

	s.checkHealth()
	ticker := s.clock.Ticker(s.config.HealthInterval)
	go s.watchHealth(healthCtx, ticker, done)

	if initialLocator != "" {
		if err := eng.Load(initialLocator); err != nil {
			return fmt.Errorf("initial source: %w", err)
		}
	}
	s.notifyStateChange()
	return nil
}

// LeaveRoom leaves the current room and releases the player
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	roomID := s.roomID
	eng := s.engine
	cancel := s.cancel
	done := s.healthDone
	adapter := s.adapter
	s.roomID = ""
	s.engine = nil
	s.cancel = nil
	s.healthDone = nil
	s.adapter = nil
	s.adapterKind = ""
	s.mu.Unlock()

	if roomID == "" {
		return
	}

	s.config.Channel.Off(protocol.EventSyncAction)
	s.config.Channel.LeaveRoom(roomID)
	cancel()
	<-done
	eng.Close()
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close player")
		}
	}

	s.logger.Info().Str("room", roomID).Msg("left room")
	s.notifyStateChange()
}

// Close leaves the room and disconnects the channel
func (s *Session) Close() error {
	s.LeaveRoom()
	s.config.Channel.Disconnect()
	return nil
}

// ChangeSource loads a new source for the whole room
func (s *Session) ChangeSource(locator string) error {
	eng := s.currentEngine()
	if eng == nil {
		return ErrNotInRoom
	}
	return eng.Load(locator)
}

// TogglePlayback flips play/pause for the whole room
func (s *Session) TogglePlayback() error {
	eng := s.currentEngine()
	if eng == nil {
		return ErrNotInRoom
	}
	eng.Toggle()
	return nil
}

// SetVolume sets the local volume, 0..1. Volume is never synchronized.
// Players without volume control report player.ErrVolumeUnsupported; the
// level is still remembered for the next adapter.
func (s *Session) SetVolume(level float64) error {
	level = player.ClampVolume(level)

	s.mu.Lock()
	s.volume = level
	adapter := s.adapter
	s.mu.Unlock()

	defer s.notifyStateChange()

	if adapter == nil {
		return nil
	}
	if err := adapter.SetVolume(level); err != nil {
		if errors.Is(err, player.ErrVolumeUnsupported) {
			s.notifyError(err)
		}
		return err
	}
	return nil
}

// Volume returns the local volume
func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Connected returns the link state last observed by the health check
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Playing reports whether content is playing
func (s *Session) Playing() bool {
	eng := s.currentEngine()
	return eng != nil && eng.State() == engine.Playing
}

// CurrentLocator returns the locator being watched
func (s *Session) CurrentLocator() string {
	eng := s.currentEngine()
	if eng == nil {
		return ""
	}
	return eng.Source().Locator
}

// RoomID returns the joined room, or ""
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		RoomID:    s.roomID,
		Connected: s.connected,
		Adapter:   s.adapterKind,
		Volume:    s.volume,
	}
	eng := s.engine
	s.mu.Unlock()

	if eng != nil {
		snap := eng.Snapshot()
		st.State = snap.State
		st.Suppressed = snap.Suppressed
		st.Source = snap.Source
	}
	return st
}

// AdapterFor returns the adapter for src, reusing the current one when the
// kind is unchanged and replacing it otherwise
func (s *Session) AdapterFor(src media.Source) (player.Adapter, error) {
	kind := src.Kind
	if s.config.ForceKind != "" {
		kind = s.config.ForceKind
	}

	s.mu.Lock()
	if s.adapter != nil && s.adapterKind == kind {
		adapter := s.adapter
		s.mu.Unlock()
		return adapter, nil
	}
	old := s.adapter
	volume := s.volume
	s.adapter = nil
	s.adapterKind = ""
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close previous player")
		}
	}

	adapter, err := s.config.Factory(kind)
	if err != nil {
		s.notifyError(err)
		return nil, err
	}
	if err := adapter.SetVolume(volume); err != nil && !errors.Is(err, player.ErrVolumeUnsupported) {
		s.logger.Warn().Err(err).Msg("failed to apply volume")
	}

	s.mu.Lock()
	s.adapter = adapter
	s.adapterKind = kind
	s.mu.Unlock()

	s.logger.Info().Str("kind", string(kind)).Msg("player ready")
	return adapter, nil
}

func (s *Session) currentEngine() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Session) handleSyncAction(data json.RawMessage) {
	action, err := protocol.DecodeSyncAction(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("data", string(data)).Msg("dropping sync action")
		return
	}

	s.mu.Lock()
	roomID := s.roomID
	eng := s.engine
	s.mu.Unlock()

	if eng == nil || action.RoomID != roomID {
		s.logger.Debug().Str("target", action.RoomID).Msg("ignoring sync action for another room")
		return
	}
	eng.HandleRemote(action)
}

// watchHealth polls the link and reconnects it when it drops. With
// event-driven health enabled, status changes are applied immediately too.
func (s *Session) watchHealth(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	var changes <-chan bool
	if notifier, ok := s.config.Channel.(transport.StatusNotifier); ok && s.config.EventDrivenHealth {
		changes = notifier.StatusChanges()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			s.setConnected(s.config.Channel.Connected())
		case <-ticker.C:
			if !s.config.Channel.Connected() {
				s.config.Channel.Connect(ctx)
			}
			s.checkHealth()
		}
	}
}

func (s *Session) checkHealth() {
	s.setConnected(s.config.Channel.Connected())
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()

	if changed {
		s.logger.Info().Bool("connected", connected).Msg("link health changed")
		s.notifyStateChange()
	}
}

func (s *Session) notifyStateChange() {
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(s.Status())
	}
}

func (s *Session) notifyError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}

var _ engine.AdapterProvider = (*Session)(nil)
