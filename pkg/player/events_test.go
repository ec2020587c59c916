// ABOUTME: Tests for the adapter event queue
// ABOUTME: Checks drop-on-full and close semantics
package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueDropsWhenFull(t *testing.T) {
	q := NewEventQueue(1)

	assert.True(t, q.Push(Event{Kind: StartedPlaying}))
	assert.False(t, q.Push(Event{Kind: Paused}))

	ev := <-q.C()
	assert.Equal(t, StartedPlaying, ev.Kind)
}

func TestEventQueueClose(t *testing.T) {
	q := NewEventQueue(0)
	q.Close()
	q.Close()

	assert.False(t, q.Push(Event{Kind: Paused}))
	_, ok := <-q.C()
	assert.False(t, ok)
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0.0, ClampVolume(-1))
	assert.Equal(t, 1.0, ClampVolume(3))
	assert.Equal(t, 0.25, ClampVolume(0.25))
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "started-playing", StartedPlaying.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "position-drifted", PositionDrifted.String())
}
