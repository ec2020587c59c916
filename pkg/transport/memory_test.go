// ABOUTME: Tests for the in-process hub and channels
// ABOUTME: Checks relay semantics: room scoping and no echo to the sender
package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/syncwatch-go/pkg/protocol"
)

func collect(ch *MemoryChannel) *[]protocol.SyncAction {
	var got []protocol.SyncAction
	ch.On(protocol.EventSyncAction, func(data json.RawMessage) {
		action, err := protocol.DecodeSyncAction(data)
		if err == nil {
			got = append(got, action)
		}
	})
	return &got
}

func TestHubRebroadcastsToOtherMembers(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a, b, c := hub.Channel("a"), hub.Channel("b"), hub.Channel("c")

	gotA, gotB, gotC := collect(a), collect(b), collect(c)

	a.JoinRoom(ctx, "room-1")
	b.JoinRoom(ctx, "room-1")
	c.JoinRoom(ctx, "room-2")
	require.Equal(t, 2, hub.Members("room-1"))

	a.Emit(protocol.EventSyncAction, protocol.NewPlay("room-1", 3))

	assert.Empty(t, *gotA, "sender must not receive its own frame")
	require.Len(t, *gotB, 1)
	assert.Equal(t, protocol.TypePlay, (*gotB)[0].Type)
	assert.Empty(t, *gotC, "other rooms must not receive the frame")
}

func TestHubDropsFramesForRoomsNotJoined(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a, b := hub.Channel("a"), hub.Channel("b")
	gotB := collect(b)

	a.Connect(ctx)
	b.JoinRoom(ctx, "room-1")

	a.Emit(protocol.EventSyncAction, protocol.NewPause("room-1"))
	assert.Empty(t, *gotB)
}

func TestMemoryChannelConnectIsIdempotent(t *testing.T) {
	ch := NewHub().Channel("a")
	ch.Connect(context.Background())
	ch.Connect(context.Background())

	assert.True(t, ch.Connected())
	assert.Equal(t, 1, ch.Dials())
}

func TestMemoryChannelUnreachable(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a, b := hub.Channel("a"), hub.Channel("b")
	gotB := collect(b)

	b.JoinRoom(ctx, "room-1")
	a.SetReachable(false)
	a.JoinRoom(ctx, "room-1")

	assert.False(t, a.Connected())
	assert.Equal(t, 0, a.Dials())

	assert.NotPanics(t, func() {
		a.Emit(protocol.EventSyncAction, protocol.NewPause("room-1"))
	})
	assert.Empty(t, *gotB)

	// Coming back re-announces remembered rooms
	a.SetReachable(true)
	a.Connect(ctx)
	a.Emit(protocol.EventSyncAction, protocol.NewPause("room-1"))
	assert.Len(t, *gotB, 1)
}

func TestMemoryChannelLeaveRoom(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a, b := hub.Channel("a"), hub.Channel("b")
	gotB := collect(b)

	a.JoinRoom(ctx, "room-1")
	b.JoinRoom(ctx, "room-1")
	b.LeaveRoom("room-1")

	a.Emit(protocol.EventSyncAction, protocol.NewPause("room-1"))
	assert.Empty(t, *gotB)
	assert.Equal(t, 1, hub.Members("room-1"))
}
