// ABOUTME: Media source type and locator classification
// ABOUTME: Deterministic streaming-embed vs native-media detection
package media

import (
	"regexp"
	"strings"
)

// Kind selects the player backend for a source
type Kind string

const (
	KindStreamingEmbed Kind = "streaming-embed"
	KindNativeMedia    Kind = "native-media"

	// KindWebPage is never produced by Resolve. It names the injected-script
	// player that web mode routes every source to.
	KindWebPage Kind = "web-page"
)

// streamingHosts mark a locator as streaming-embed when contained anywhere in it
var streamingHosts = []string{"youtube.com", "youtu.be"}

// videoIDPattern covers watch?v=, youtu.be/<id>, /embed/<id>, /v/<id> and /e/<id>
var videoIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)

// Source is a resolved media source. It is replaced wholesale on every load.
type Source struct {
	Kind    Kind
	Locator string

	// VideoID is set for streaming-embed sources when extractable
	VideoID string
}

// Resolve classifies a locator
func Resolve(locator string) Source {
	locator = strings.TrimSpace(locator)
	src := Source{Kind: KindNativeMedia, Locator: locator}
	if IsStreaming(locator) {
		src.Kind = KindStreamingEmbed
		src.VideoID = ExtractVideoID(locator)
	}
	return src
}

// IsStreaming reports whether the locator points at the streaming host
func IsStreaming(locator string) bool {
	for _, host := range streamingHosts {
		if strings.Contains(locator, host) {
			return true
		}
	}
	return false
}

// ExtractVideoID returns the 11-character video id or "" when none matches
func ExtractVideoID(locator string) string {
	m := videoIDPattern.FindStringSubmatch(locator)
	if m == nil {
		return ""
	}
	return m[1]
}

// Playable reports whether an adapter can do anything useful with the source.
// Streaming sources without a video id render as an inert placeholder.
func (s Source) Playable() bool {
	if s.Locator == "" {
		return false
	}
	if s.Kind == KindStreamingEmbed {
		return s.VideoID != ""
	}
	return true
}

// IsZero reports whether no source has been loaded
func (s Source) IsZero() bool {
	return s.Locator == ""
}
