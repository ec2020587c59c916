// ABOUTME: Tests for the relay server
// ABOUTME: Exercises room routing, the Redis backplane and full client sessions
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
	"github.com/syncwatch/syncwatch-go/pkg/player/playertest"
	"github.com/syncwatch/syncwatch-go/pkg/protocol"
	"github.com/syncwatch/syncwatch-go/pkg/session"
	"github.com/syncwatch/syncwatch-go/pkg/transport"
)

func startRelay(t *testing.T, config Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(config)
	require.NoError(t, s.StartBackplane(context.Background()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server, id string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?client=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) emit(event string, data any) {
	c.t.Helper()
	frame, err := protocol.EncodeEnvelope(event, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

func (c *wsClient) expect() protocol.SyncAction {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	env, err := protocol.DecodeEnvelope(frame)
	require.NoError(c.t, err)
	require.Equal(c.t, protocol.EventSyncAction, env.Event)
	action, err := protocol.DecodeSyncAction(env.Data)
	require.NoError(c.t, err)
	return action
}

func (c *wsClient) expectNothing() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, frame, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected frame %s", frame)
}

func waitMembers(t *testing.T, s *Server, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Rooms()[roomID] == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHealthAndRooms(t *testing.T) {
	s, ts := startRelay(t, Config{InstanceID: "relay-a"})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "relay-a", health["instance"])

	c := dial(t, ts, "alice")
	c.emit(protocol.EventJoinRoom, "movie-night")
	waitMembers(t, s, "movie-night", 1)

	resp, err = http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	var rooms map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	resp.Body.Close()
	assert.Equal(t, map[string]int{"movie-night": 1}, rooms)
}

func TestSyncActionReachesOtherMembersOnly(t *testing.T) {
	s, ts := startRelay(t, Config{})
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")
	carol := dial(t, ts, "carol")

	alice.emit(protocol.EventJoinRoom, "r1")
	bob.emit(protocol.EventJoinRoom, "r1")
	carol.emit(protocol.EventJoinRoom, "r2")
	waitMembers(t, s, "r1", 2)
	waitMembers(t, s, "r2", 1)

	alice.emit(protocol.EventSyncAction, protocol.NewPlay("r1", 42))

	got := bob.expect()
	assert.Equal(t, protocol.TypePlay, got.Type)
	assert.Equal(t, 42.0, got.Payload.PositionOr(-1))

	alice.expectNothing()
	carol.expectNothing()
}

func TestNonMemberCannotSend(t *testing.T) {
	s, ts := startRelay(t, Config{})
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	bob.emit(protocol.EventJoinRoom, "r1")
	waitMembers(t, s, "r1", 1)

	alice.emit(protocol.EventSyncAction, protocol.NewPause("r1"))
	bob.expectNothing()
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	s, ts := startRelay(t, Config{})
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	alice.emit(protocol.EventJoinRoom, "r1")
	bob.emit(protocol.EventJoinRoom, "r1")
	waitMembers(t, s, "r1", 2)

	bob.emit(protocol.EventLeaveRoom, "r1")
	waitMembers(t, s, "r1", 1)

	alice.emit(protocol.EventSyncAction, protocol.NewPause("r1"))
	bob.expectNothing()
}

func TestDisconnectRemovesMembership(t *testing.T) {
	s, ts := startRelay(t, Config{})
	alice := dial(t, ts, "alice")

	alice.emit(protocol.EventJoinRoom, "r1")
	waitMembers(t, s, "r1", 1)

	alice.conn.Close()
	require.Eventually(t, func() bool { return len(s.Rooms()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestMalformedFramesIgnored(t *testing.T) {
	s, ts := startRelay(t, Config{})
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	alice.emit(protocol.EventJoinRoom, "r1")
	bob.emit(protocol.EventJoinRoom, "r1")
	waitMembers(t, s, "r1", 2)

	require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	alice.emit(protocol.EventJoinRoom, "")
	alice.emit(protocol.EventSyncAction, map[string]string{"type": "PLAY"})
	alice.emit("mystery", 1)

	// the link survives and still relays
	alice.emit(protocol.EventSyncAction, protocol.NewLoad("r1", "/srv/a.mp4"))
	assert.Equal(t, "/srv/a.mp4", bob.expect().Payload.Locator)
}

func TestBackplaneSharesRooms(t *testing.T) {
	mr := miniredis.RunT(t)
	rdbA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdbA.Close()
		rdbB.Close()
	})

	relayA, tsA := startRelay(t, Config{InstanceID: "a", Redis: rdbA})
	relayB, tsB := startRelay(t, Config{InstanceID: "b", Redis: rdbB})

	alice := dial(t, tsA, "alice")
	bob := dial(t, tsB, "bob")
	alice.emit(protocol.EventJoinRoom, "shared")
	bob.emit(protocol.EventJoinRoom, "shared")
	waitMembers(t, relayA, "shared", 1)
	waitMembers(t, relayB, "shared", 1)

	alice.emit(protocol.EventSyncAction, protocol.NewPlay("shared", 7))
	got := bob.expect()
	assert.Equal(t, protocol.TypePlay, got.Type)
	assert.Equal(t, 7.0, got.Payload.PositionOr(-1))

	// the origin relay skips its own publication
	alice.expectNothing()
}

func TestBackplaneIgnoresForeignPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, ts := startRelay(t, Config{Redis: rdb})
	bob := dial(t, ts, "bob")
	bob.emit(protocol.EventJoinRoom, "r1")
	waitMembers(t, s, "r1", 1)

	mr.Publish(RoomChannel("r1"), "garbage")
	frame, err := protocol.EncodeEnvelope(protocol.EventSyncAction, protocol.NewPause("r1"))
	require.NoError(t, err)
	payload, _ := json.Marshal(busMessage{Origin: "elsewhere", Frame: frame})
	mr.Publish(RoomChannel("r1"), string(payload))

	assert.Equal(t, protocol.TypePause, bob.expect().Type)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

type fakeFactory struct {
	mu    sync.Mutex
	built []*playertest.Adapter
}

func (f *fakeFactory) build(media.Kind) (player.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := playertest.NewAdapter()
	f.built = append(f.built, a)
	return a, nil
}

func newSession(t *testing.T, ts *httptest.Server, name string) *session.Session {
	t.Helper()
	channel := transport.NewWebSocket(transport.Config{ServerURL: ts.URL, ClientID: name})
	f := &fakeFactory{}
	s, err := session.New(session.DefaultConfig(channel, f.build))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionsSyncThroughRelay(t *testing.T) {
	s, ts := startRelay(t, Config{})
	alice := newSession(t, ts, "alice")
	bob := newSession(t, ts, "bob")

	ctx := context.Background()
	require.NoError(t, alice.EnterRoom(ctx, "movie-night", ""))
	require.NoError(t, bob.EnterRoom(ctx, "movie-night", ""))
	waitMembers(t, s, "movie-night", 2)
	assert.True(t, alice.Connected())

	require.NoError(t, alice.ChangeSource("https://youtu.be/dQw4w9WgXcQ"))
	require.Eventually(t, func() bool {
		return bob.CurrentLocator() == "https://youtu.be/dQw4w9WgXcQ"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, bob.Playing())

	require.NoError(t, alice.TogglePlayback())
	require.Eventually(t, func() bool { return !bob.Playing() }, 2*time.Second, 10*time.Millisecond)
}
