// ABOUTME: Tests for the WebSocket transport channel
// ABOUTME: Runs the channel against an httptest relay stub
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/syncwatch-go/pkg/protocol"
)

// stubRelay accepts websocket connections and records received frames
type stubRelay struct {
	srv      *httptest.Server
	upgrades atomic.Int32

	mu     sync.Mutex
	frames []protocol.Envelope
	conns  []*websocket.Conn
}

func newStubRelay(t *testing.T) *stubRelay {
	t.Helper()

	r := &stubRelay{}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns = append(r.conns, conn)
		r.mu.Unlock()
		r.upgrades.Add(1)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.DecodeEnvelope(data)
			if err != nil {
				continue
			}
			r.mu.Lock()
			r.frames = append(r.frames, env)
			r.mu.Unlock()
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *stubRelay) addr() string {
	return strings.TrimPrefix(r.srv.URL, "http://")
}

func (r *stubRelay) received() []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.frames...)
}

func (r *stubRelay) send(t *testing.T, event string, data any) {
	t.Helper()
	frame, err := protocol.EncodeEnvelope(event, data)
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.conns)
	require.NoError(t, r.conns[len(r.conns)-1].WriteMessage(websocket.TextMessage, frame))
}

func (r *stubRelay) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	relay := newStubRelay(t)
	ch := NewWebSocket(Config{ServerURL: relay.addr()})
	defer ch.Disconnect()

	ch.Connect(context.Background())
	ch.Connect(context.Background())

	require.True(t, ch.Connected())
	assert.Eventually(t, func() bool { return relay.upgrades.Load() == 1 }, time.Second, 10*time.Millisecond)

	// Give a stray second dial a chance to show up
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), relay.upgrades.Load())
}

func TestConnectFailureIsNonFatal(t *testing.T) {
	relay := newStubRelay(t)
	addr := relay.addr()
	relay.srv.Close()

	ch := NewWebSocket(Config{ServerURL: addr, HandshakeTimeout: 200 * time.Millisecond})
	ch.Connect(context.Background())
	assert.False(t, ch.Connected())

	ch.JoinRoom(context.Background(), "room-1")
	assert.False(t, ch.Connected())
}

func TestEmitWhileDisconnectedIsNoop(t *testing.T) {
	relay := newStubRelay(t)
	ch := NewWebSocket(Config{ServerURL: relay.addr()})

	assert.NotPanics(t, func() {
		ch.Emit(protocol.EventSyncAction, protocol.NewPause("room-1"))
	})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, relay.received())
	assert.Equal(t, int32(0), relay.upgrades.Load())
}

func TestJoinRoomConnectsAndAnnounces(t *testing.T) {
	relay := newStubRelay(t)
	ch := NewWebSocket(Config{ServerURL: relay.addr()})
	defer ch.Disconnect()

	ch.JoinRoom(context.Background(), "room-1")
	require.True(t, ch.Connected())

	require.Eventually(t, func() bool { return len(relay.received()) == 1 }, time.Second, 10*time.Millisecond)
	frame := relay.received()[0]
	assert.Equal(t, protocol.EventJoinRoom, frame.Event)

	roomID, err := protocol.DecodeRoomID(frame.Data)
	require.NoError(t, err)
	assert.Equal(t, "room-1", roomID)
}

func TestInboundEventsReachRegisteredHandler(t *testing.T) {
	relay := newStubRelay(t)
	ch := NewWebSocket(Config{ServerURL: relay.addr()})
	defer ch.Disconnect()

	var first, second atomic.Int32
	got := make(chan json.RawMessage, 1)
	ch.On(protocol.EventSyncAction, func(json.RawMessage) { first.Add(1) })
	ch.On(protocol.EventSyncAction, func(data json.RawMessage) {
		second.Add(1)
		got <- data
	})

	ch.Connect(context.Background())
	require.Eventually(t, func() bool { return relay.upgrades.Load() == 1 }, time.Second, 10*time.Millisecond)

	relay.send(t, protocol.EventSyncAction, protocol.NewPlay("room-1", 42.5))

	select {
	case data := <-got:
		action, err := protocol.DecodeSyncAction(data)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypePlay, action.Type)
		assert.Equal(t, 42.5, action.Payload.PositionOr(0))
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}

	assert.Equal(t, int32(0), first.Load(), "replaced handler must not run")
	assert.Equal(t, int32(1), second.Load())

	ch.Off(protocol.EventSyncAction)
	relay.send(t, protocol.EventSyncAction, protocol.NewPause("room-1"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), second.Load())
}

func TestStatusChangesOnLinkLoss(t *testing.T) {
	relay := newStubRelay(t)
	ch := NewWebSocket(Config{ServerURL: relay.addr()})

	ch.Connect(context.Background())
	require.True(t, <-ch.StatusChanges())
	require.Eventually(t, func() bool { return relay.upgrades.Load() == 1 }, time.Second, 10*time.Millisecond)

	relay.closeAll()

	select {
	case up := <-ch.StatusChanges():
		assert.False(t, up)
	case <-time.After(2 * time.Second):
		t.Fatal("no status change after link loss")
	}
	assert.False(t, ch.Connected())
}

func TestDialURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"localhost:8937", "ws://localhost:8937/ws?client=abc"},
		{"ws://relay.example.com/custom", "ws://relay.example.com/custom?client=abc"},
		{"https://relay.example.com", "wss://relay.example.com/ws?client=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			ch := NewWebSocket(Config{ServerURL: tt.server, ClientID: "abc"})
			assert.Equal(t, tt.want, ch.dialURL())
		})
	}
}
