// ABOUTME: Tests for the mpv media element
// ABOUTME: Drives the element against a fake IPC peer over net.Pipe
package mpv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/syncwatch-go/pkg/player/native"
)

// fakeMPV answers every command with success and records it
type fakeMPV struct {
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	commands [][]any
	failures map[string]string
}

func newFakeMPV(t *testing.T) (*fakeMPV, net.Conn) {
	t.Helper()
	server, clientConn := net.Pipe()
	f := &fakeMPV{conn: server, failures: make(map[string]string)}
	go f.serve()
	t.Cleanup(func() { server.Close() })
	return f, clientConn
}

func (f *fakeMPV) serve() {
	scanner := bufio.NewScanner(f.conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, req.Command)
		status := "success"
		if name, ok := req.Command[0].(string); ok {
			if failure, ok := f.failures[name]; ok {
				status = failure
			}
		}
		f.mu.Unlock()

		f.send(map[string]any{"error": status, "request_id": req.RequestID})
	}
}

func (f *fakeMPV) send(v any) {
	line, _ := json.Marshal(v)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, _ = f.conn.Write(append(line, '\n'))
}

func (f *fakeMPV) fail(command, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[command] = reason
}

func (f *fakeMPV) last() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func (f *fakeMPV) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		out = append(out, fmt.Sprint(c...))
	}
	return out
}

func (f *fakeMPV) property(id int, data any) {
	f.send(map[string]any{"event": "property-change", "id": id, "name": "x", "data": data})
}

func newElement(t *testing.T) (*Element, *fakeMPV) {
	t.Helper()
	fake, conn := newFakeMPV(t)
	e, err := Dial(conn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, fake
}

func nextStatus(t *testing.T, e *Element) native.Status {
	t.Helper()
	select {
	case st := <-e.Updates():
		return st
	case <-time.After(time.Second):
		t.Fatal("no status update")
		return native.Status{}
	}
}

func TestDialObservesProperties(t *testing.T) {
	_, fake := newElement(t)

	cmds := fake.all()
	assert.Contains(t, cmds, fmt.Sprint("observe_property", float64(propPause), "pause"))
	assert.Contains(t, cmds, fmt.Sprint("observe_property", float64(propTimePos), "time-pos"))
}

func TestCommands(t *testing.T) {
	e, fake := newElement(t)

	require.NoError(t, e.Seek(90*time.Second))
	assert.Equal(t, []any{"seek", 90.0, "absolute"}, fake.last())

	require.NoError(t, e.Pause())
	assert.Equal(t, []any{"set_property", "pause", true}, fake.last())

	require.NoError(t, e.Play())
	assert.Equal(t, []any{"set_property", "pause", false}, fake.last())

	require.NoError(t, e.SetVolume(0.4))
	assert.Equal(t, []any{"set_property", "volume", 40.0}, fake.last())
}

func TestOpenLoadsAndPlays(t *testing.T) {
	e, fake := newElement(t)

	require.NoError(t, e.Open("https://example.com/a.mp4"))

	cmds := fake.all()
	require.GreaterOrEqual(t, len(cmds), 2)
	assert.Equal(t, fmt.Sprint("loadfile", "https://example.com/a.mp4", "replace"), cmds[len(cmds)-2])
	assert.Equal(t, fmt.Sprint("set_property", "pause", false), cmds[len(cmds)-1])
}

func TestCommandError(t *testing.T) {
	e, fake := newElement(t)
	fake.fail("loadfile", "loading failed")

	err := e.Open("/missing.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading failed")
}

func TestStatusFromEvents(t *testing.T) {
	e, fake := newElement(t)

	fake.send(map[string]any{"event": "file-loaded"})
	st := nextStatus(t, e)
	assert.True(t, st.Loaded)
	assert.False(t, st.Playing)

	fake.property(propPause, false)
	st = nextStatus(t, e)
	assert.True(t, st.Playing)

	fake.property(propTimePos, 12.5)
	st = nextStatus(t, e)
	assert.Equal(t, 12500*time.Millisecond, st.Position)
	assert.Equal(t, 12500*time.Millisecond, e.Position())

	fake.property(propPause, true)
	st = nextStatus(t, e)
	assert.False(t, st.Playing)

	fake.send(map[string]any{"event": "end-file", "reason": "eof"})
	st = nextStatus(t, e)
	assert.False(t, st.Loaded)
}

func TestNullTimePosIgnored(t *testing.T) {
	e, fake := newElement(t)

	fake.property(propTimePos, nil)
	fake.send(map[string]any{"event": "file-loaded"})

	st := nextStatus(t, e)
	assert.True(t, st.Loaded)
	assert.Zero(t, st.Position)
}

func TestUnknownEventsIgnored(t *testing.T) {
	e, fake := newElement(t)

	fake.send(map[string]any{"event": "audio-reconfig"})
	_, _ = fake.conn.Write([]byte("not json\n"))
	fake.send(map[string]any{"event": "seek"})

	st := nextStatus(t, e)
	assert.False(t, st.Loaded)
	select {
	case extra := <-e.Updates():
		t.Fatalf("unexpected update %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseEndsUpdatesAndCommands(t *testing.T) {
	e, _ := newElement(t)

	require.NoError(t, e.Close())
	_, ok := <-e.Updates()
	assert.False(t, ok)

	assert.ErrorIs(t, e.Play(), ErrClosed)
	assert.NoError(t, e.Close())
}

func TestDrivesNativeAdapter(t *testing.T) {
	e, fake := newElement(t)
	adapter := native.New(native.Config{Element: e})

	fake.send(map[string]any{"event": "file-loaded"})
	fake.property(propPause, false)

	select {
	case ev := <-adapter.Events():
		assert.Equal(t, "started-playing", ev.Kind.String())
	case <-time.After(time.Second):
		t.Fatal("adapter saw no event")
	}
	require.NoError(t, adapter.Close())
}
