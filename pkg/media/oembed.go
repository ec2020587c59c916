// ABOUTME: Video metadata lookup for streaming sources
// ABOUTME: Queries oEmbed and falls back to scraping the watch page
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html"
)

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotEmbeddable = errors.New("video is not embeddable")
)

const (
	defaultOEmbedURL = "https://www.youtube.com/oembed"
	defaultPageURL   = "https://youtu.be/"
)

// VideoData describes a streaming video
type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Lookup fetches video metadata from the streaming host
type Lookup struct {
	Client    *http.Client
	OEmbedURL string
	PageURL   string
}

// NewLookup creates a lookup against the public endpoints
func NewLookup() *Lookup {
	return &Lookup{
		Client:    &http.Client{Timeout: 5 * time.Second},
		OEmbedURL: defaultOEmbedURL,
		PageURL:   defaultPageURL,
	}
}

// Get returns metadata for a video id, scraping the page when oEmbed refuses
func (l *Lookup) Get(ctx context.Context, videoID string) (*VideoData, error) {
	if videoID == "" {
		return nil, ErrVideoNotFound
	}

	data, err := l.fromOEmbed(ctx, videoID)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrVideoNotEmbeddable) {
		return nil, fmt.Errorf("failed to get video data with oembed: %w", err)
	}

	data, err = l.fromPage(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video data from page: %w", err)
	}
	return data, nil
}

func (l *Lookup) fromOEmbed(ctx context.Context, videoID string) (*VideoData, error) {
	q := url.Values{}
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.OEmbedURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		return nil, ErrVideoNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrVideoNotEmbeddable
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data VideoData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode oembed response: %w", err)
	}
	return &data, nil
}

func (l *Lookup) fromPage(ctx context.Context, videoID string) (*VideoData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.PageURL+videoID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	return &VideoData{
		Title:        findTitle(doc),
		AuthorName:   findAuthor(doc),
		ThumbnailURL: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID),
	}, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// findAuthor reads <link itemprop="name" content="...">
func findAuthor(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "link" && attr(n, "itemprop") == "name" {
		if content := attr(n, "content"); content != "" {
			return content
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if content := findAuthor(c); content != "" {
			return content
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
