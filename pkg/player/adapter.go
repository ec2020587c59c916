// ABOUTME: Player adapter contract and normalized event vocabulary
// ABOUTME: Shared by every backend and consumed by the sync engine
package player

import (
	"errors"

	"github.com/syncwatch/syncwatch-go/pkg/media"
)

// ErrVolumeUnsupported is returned by adapters whose backend does not expose
// volume control. Callers treat it as a capability gap, not a failure.
var ErrVolumeUnsupported = errors.New("volume is not controllable on this player")

// EventKind is a normalized local player event
type EventKind int

const (
	StartedPlaying EventKind = iota
	Paused
	PositionDrifted
)

func (k EventKind) String() string {
	switch k {
	case StartedPlaying:
		return "started-playing"
	case Paused:
		return "paused"
	case PositionDrifted:
		return "position-drifted"
	default:
		return "unknown"
	}
}

// Event is a locally observed player event. Position is the backend's own
// report and may be stale; consumers sample CurrentPosition when they need
// an authoritative value.
type Event struct {
	Kind     EventKind
	Position float64
}

// Adapter normalizes a concrete player
type Adapter interface {
	// CurrentPosition returns the playback position in seconds, or 0 when
	// it cannot be determined
	CurrentPosition() float64

	// SeekAndPlay seeks to position (seconds) and starts playback
	SeekAndPlay(position float64) error

	// Pause pauses playback
	Pause() error

	// SetVolume sets the volume in the range 0..1
	SetVolume(level float64) error

	// Load replaces the current source and starts playback
	Load(src media.Source) error

	// Events delivers locally observed events
	Events() <-chan Event

	// Close releases the backend
	Close() error
}

// ClampVolume bounds a volume level to 0..1
func ClampVolume(level float64) float64 {
	if level < 0 || level != level {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// Surface is an unreliable message pipe into a player hosted elsewhere
// (an iframe host page or a page carrying the injected script). Posts carry
// no delivery confirmation; the last message wins.
type Surface interface {
	Post(msg []byte) error
	Messages() <-chan []byte
}
