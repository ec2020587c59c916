// ABOUTME: Tests for video metadata lookup
// ABOUTME: Exercises the oEmbed path and the page-scraping fallback
package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLookup(t *testing.T, oembed, page http.HandlerFunc) *Lookup {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", oembed)
	mux.HandleFunc("/page/", page)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &Lookup{
		Client:    srv.Client(),
		OEmbedURL: srv.URL + "/oembed",
		PageURL:   srv.URL + "/page/",
	}
}

func TestLookupOEmbed(t *testing.T) {
	l := newTestLookup(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", r.URL.Query().Get("url"))
			fmt.Fprint(w, `{"title":"Never Gonna Give You Up","author_name":"Rick Astley","thumbnail_url":"https://i.ytimg.com/x.jpg"}`)
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("page should not be scraped when oembed succeeds")
		},
	)

	data, err := l.Get(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", data.Title)
	assert.Equal(t, "Rick Astley", data.AuthorName)
}

func TestLookupFallsBackToPage(t *testing.T) {
	l := newTestLookup(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html><head><title>Private Song</title></head>
<body><span><link itemprop="name" content="Some Channel"></span></body></html>`)
		},
	)

	data, err := l.Get(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Private Song", data.Title)
	assert.Equal(t, "Some Channel", data.AuthorName)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", data.ThumbnailURL)
}

func TestLookupNotFound(t *testing.T) {
	l := newTestLookup(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	_, err := l.Get(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrVideoNotFound)

	_, err = l.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}
