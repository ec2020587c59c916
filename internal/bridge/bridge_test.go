// ABOUTME: Tests for the browser bridge
// ABOUTME: Round trips through real websockets against an httptest server
package bridge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	b := New(Config{})
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		b.Stop()
		ts.Close()
	})
	return b, ts
}

func dialSurface(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestEmbedPage(t *testing.T) {
	_, ts := newTestBridge(t)

	resp, err := http.Get(ts.URL + "/embed/dQw4w9WgXcQ")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "https://www.youtube.com/embed/dQw4w9WgXcQ?enablejsapi=1")
	assert.Contains(t, string(body), "/ws/embed")
}

func TestEmbedPageRejectsBadID(t *testing.T) {
	_, ts := newTestBridge(t)

	resp, err := http.Get(ts.URL + "/embed/%3Cscript%3E")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInjectScript(t *testing.T) {
	_, ts := newTestBridge(t)

	resp, err := http.Get(ts.URL + "/inject.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	host := strings.TrimPrefix(ts.URL, "http://")
	assert.Contains(t, string(body), "ws://"+host+"/ws/sandbox")
	assert.Contains(t, string(body), `addEventListener("pause"`)
	// Loading swaps the element source; navigating would drop the script
	assert.Contains(t, string(body), "v.src = locator")
	assert.NotContains(t, string(body), "location.href")
}

func TestPostWithoutPageIsDropped(t *testing.T) {
	b, _ := newTestBridge(t)

	assert.False(t, b.Sandbox().Attached())
	assert.NoError(t, b.Sandbox().Post([]byte(`{"type":"PAUSE","payload":{}}`)))
}

func TestSurfaceRoundTrip(t *testing.T) {
	b, ts := newTestBridge(t)
	page := dialSurface(t, ts, "/ws/sandbox")

	require.Eventually(t, b.Sandbox().Attached, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Sandbox().Post([]byte(`{"type":"PLAY","payload":{"position":3}}`)))
	_ = page.SetReadDeadline(time.Now().Add(time.Second))
	_, got, err := page.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PLAY","payload":{"position":3}}`, string(got))

	require.NoError(t, page.WriteMessage(websocket.TextMessage, []byte(`{"type":"PAUSE","time":4}`)))
	select {
	case msg := <-b.Sandbox().Messages():
		assert.JSONEq(t, `{"type":"PAUSE","time":4}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message from page")
	}
}

func TestLastPageWins(t *testing.T) {
	b, ts := newTestBridge(t)

	first := dialSurface(t, ts, "/ws/embed")
	require.Eventually(t, b.Embed().Attached, time.Second, 5*time.Millisecond)

	second := dialSurface(t, ts, "/ws/embed")

	// The first page is disconnected once the second attaches
	_ = first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	require.NoError(t, b.Embed().Post([]byte(`{"event":"command","func":"pauseVideo","args":[]}`)))
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	_, got, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(got), "pauseVideo")
}

func TestStopEndsMessageStreams(t *testing.T) {
	b := New(Config{})
	b.Stop()

	_, ok := <-b.Embed().Messages()
	assert.False(t, ok)
	_, ok = <-b.Sandbox().Messages()
	assert.False(t, ok)
}
