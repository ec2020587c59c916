// ABOUTME: Test doubles for player adapters and surfaces
// ABOUTME: Records every call so engine and session tests can assert on effects
package playertest

import (
	"encoding/json"
	"sync"

	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
)

// Call is one recorded adapter invocation
type Call struct {
	Method   string
	Position float64
	Level    float64
	Source   media.Source
}

// Adapter is a scriptable player.Adapter
type Adapter struct {
	mu       sync.Mutex
	calls    []Call
	position float64
	volume   float64
	closed   bool
	err      error

	// Echo makes SeekAndPlay, Pause and Load report the resulting state
	// change as an event, the way real players do.
	Echo bool

	// NoVolume makes SetVolume return player.ErrVolumeUnsupported
	NoVolume bool

	events *player.EventQueue
}

// NewAdapter creates a fake adapter
func NewAdapter() *Adapter {
	return &Adapter{events: player.NewEventQueue(64), volume: 1}
}

// SetPosition sets what CurrentPosition returns
func (a *Adapter) SetPosition(position float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = position
}

// FailWith makes subsequent control calls return err
func (a *Adapter) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Fire delivers a local event as if the user touched the player
func (a *Adapter) Fire(kind player.EventKind) {
	a.events.Push(player.Event{Kind: kind, Position: a.CurrentPosition()})
}

// Calls returns a copy of the recorded calls
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// Methods returns the recorded method names in order
func (a *Adapter) Methods() []string {
	calls := a.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Volume returns the last volume applied
func (a *Adapter) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

// Closed reports whether Close was called
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) CurrentPosition() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func (a *Adapter) SeekAndPlay(position float64) error {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: "SeekAndPlay", Position: position})
	a.position = position
	err, echo := a.err, a.Echo
	a.mu.Unlock()

	if echo {
		a.Fire(player.StartedPlaying)
	}
	return err
}

func (a *Adapter) Pause() error {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: "Pause"})
	err, echo := a.err, a.Echo
	a.mu.Unlock()

	if echo {
		a.Fire(player.Paused)
	}
	return err
}

func (a *Adapter) SetVolume(level float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Method: "SetVolume", Level: level})
	if a.NoVolume {
		return player.ErrVolumeUnsupported
	}
	a.volume = level
	return a.err
}

func (a *Adapter) Load(src media.Source) error {
	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: "Load", Source: src})
	a.position = 0
	err, echo := a.err, a.Echo
	a.mu.Unlock()

	if echo {
		a.Fire(player.StartedPlaying)
	}
	return err
}

func (a *Adapter) Events() <-chan player.Event {
	return a.events.C()
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		a.events.Close()
	}
	return nil
}

// Surface is an in-memory player.Surface
type Surface struct {
	mu       sync.Mutex
	posts    [][]byte
	messages chan []byte
}

// NewSurface creates a surface with a buffered inbound queue
func NewSurface() *Surface {
	return &Surface{messages: make(chan []byte, 64)}
}

func (s *Surface) Post(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, append([]byte(nil), msg...))
	return nil
}

func (s *Surface) Messages() <-chan []byte {
	return s.messages
}

// Send injects a raw inbound message
func (s *Surface) Send(raw string) {
	s.messages <- []byte(raw)
}

// SendJSON injects v encoded as JSON
func (s *Surface) SendJSON(v any) {
	raw, _ := json.Marshal(v)
	s.messages <- raw
}

// Posts returns the outbound messages
func (s *Surface) Posts() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.posts))
	copy(out, s.posts)
	return out
}

// PostsDecoded decodes every outbound message into a generic map
func (s *Surface) PostsDecoded() []map[string]any {
	var out []map[string]any
	for _, p := range s.Posts() {
		var m map[string]any
		if json.Unmarshal(p, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

var (
	_ player.Adapter = (*Adapter)(nil)
	_ player.Surface = (*Surface)(nil)
)
