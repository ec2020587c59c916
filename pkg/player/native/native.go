// ABOUTME: Native-media player adapter
// ABOUTME: Converts seconds to element durations and status updates to events
package native

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
)

const defaultDriftThreshold = time.Second

// Status is a media element state report
type Status struct {
	Position time.Duration
	Playing  bool
	Loaded   bool
}

// MediaElement is a player with direct position control. Positions are
// durations; Open loads a locator and starts playback.
type MediaElement interface {
	Open(locator string) error
	Play() error
	Pause() error
	Seek(position time.Duration) error
	SetVolume(level float64) error
	Position() time.Duration
	Updates() <-chan Status
	Close() error
}

// Config holds adapter configuration
type Config struct {
	Element MediaElement

	// DriftThreshold is how far the reported position may stray from the
	// expected one before PositionDrifted fires
	DriftThreshold time.Duration

	Clock  clock.Clock
	Logger *zerolog.Logger
}

// Adapter implements player.Adapter over a MediaElement
type Adapter struct {
	element   MediaElement
	threshold time.Duration
	clock     clock.Clock
	logger    zerolog.Logger
	events    *player.EventQueue

	mu      sync.Mutex
	last    Status
	lastAt  time.Time
	seen    bool
	closed  bool
	done    chan struct{}
	stopped chan struct{}
}

// New wraps element and starts watching its status
func New(config Config) *Adapter {
	if config.DriftThreshold == 0 {
		config.DriftThreshold = defaultDriftThreshold
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "native").Logger()
	}

	a := &Adapter{
		element:   config.Element,
		threshold: config.DriftThreshold,
		clock:     config.Clock,
		logger:    logger,
		events:    player.NewEventQueue(0),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go a.watch()
	return a
}

// ToDuration converts seconds to a duration, treating invalid input as zero
// and saturating at the largest representable duration
func ToDuration(seconds float64) time.Duration {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	nanos := seconds * float64(time.Second)
	if nanos >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(nanos)
}

// ToSeconds converts a duration to seconds
func ToSeconds(d time.Duration) float64 {
	return d.Seconds()
}

func (a *Adapter) CurrentPosition() float64 {
	return ToSeconds(a.element.Position())
}

func (a *Adapter) SeekAndPlay(position float64) error {
	if err := a.element.Seek(ToDuration(position)); err != nil {
		return err
	}
	return a.element.Play()
}

func (a *Adapter) Pause() error {
	return a.element.Pause()
}

func (a *Adapter) SetVolume(level float64) error {
	return a.element.SetVolume(player.ClampVolume(level))
}

func (a *Adapter) Load(src media.Source) error {
	a.mu.Lock()
	a.seen = false
	a.mu.Unlock()
	return a.element.Open(src.Locator)
}

func (a *Adapter) Events() <-chan player.Event {
	return a.events.C()
}

// Close stops watching and closes the element
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
	return a.element.Close()
}

func (a *Adapter) watch() {
	defer close(a.stopped)

	updates := a.element.Updates()
	for {
		select {
		case <-a.done:
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			for _, ev := range a.observe(st) {
				if !a.events.Push(ev) {
					a.logger.Warn().Stringer("kind", ev.Kind).Msg("event queue full, dropping")
				}
			}
		}
	}
}

// observe turns a status report into events
func (a *Adapter) observe(st Status) []player.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	prev, prevAt, seen := a.last, a.lastAt, a.seen
	a.last, a.lastAt, a.seen = st, now, true

	if !st.Loaded {
		return nil
	}
	position := ToSeconds(st.Position)

	if !seen || !prev.Loaded {
		if st.Playing {
			return []player.Event{{Kind: player.StartedPlaying, Position: position}}
		}
		return nil
	}

	switch {
	case st.Playing && !prev.Playing:
		return []player.Event{{Kind: player.StartedPlaying, Position: position}}
	case !st.Playing && prev.Playing:
		return []player.Event{{Kind: player.Paused, Position: position}}
	}

	expected := prev.Position
	if prev.Playing {
		expected += now.Sub(prevAt)
	}
	drift := st.Position - expected
	if drift < 0 {
		drift = -drift
	}
	if drift > a.threshold {
		a.logger.Debug().Dur("drift", drift).Msg("position drifted")
		return []player.Event{{Kind: player.PositionDrifted, Position: position}}
	}
	return nil
}

var _ player.Adapter = (*Adapter)(nil)
