// ABOUTME: In-process MP3 media element
// ABOUTME: Decodes with go-mp3, plays through oto and reports position from consumed bytes
package audio

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/internal/version"
	"github.com/syncwatch/syncwatch-go/pkg/player/native"
)

const (
	// go-mp3 always decodes to 16-bit stereo
	bytesPerFrame = 4

	defaultPollInterval = 250 * time.Millisecond
)

// ErrNotLoaded is returned by transport commands before Open
var ErrNotLoaded = errors.New("audio: nothing loaded")

// decoder is the subset of *mp3.Decoder the element needs
type decoder interface {
	io.ReadSeeker
	SampleRate() int
}

// sink is the subset of *oto.Player the element needs
type sink interface {
	io.Seeker
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	BufferedSize() int
	Close() error
}

// Config holds element configuration
type Config struct {
	// PollInterval is how often position reports are published
	PollInterval time.Duration

	Client *http.Client
	Clock  clock.Clock
	Logger *zerolog.Logger
}

// Element plays one MP3 at a time
type Element struct {
	config  Config
	logger  zerolog.Logger
	updates chan native.Status

	openDecoder func(io.Reader) (decoder, error)
	newSink     func(r io.Reader, sampleRate int) (sink, error)

	mu     sync.Mutex
	track  *track
	volume float64
	closed bool

	done    chan struct{}
	stopped chan struct{}
}

// track is the loaded file and its playback state
type track struct {
	body       io.Closer
	source     *countingReader
	sink       sink
	sampleRate int
}

// New creates an element and starts its position reporter
func New(config Config) *Element {
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "audio").Logger()
	}

	e := &Element{
		config:      config,
		logger:      logger,
		updates:     make(chan native.Status, 8),
		openDecoder: openMP3,
		newSink:     newOtoSink,
		volume:      1,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	ticker := config.Clock.Ticker(config.PollInterval)
	go e.report(ticker)
	return e
}

func openMP3(r io.Reader) (decoder, error) {
	return mp3.NewDecoder(r)
}

// Open loads a file path or http(s) URL and starts playback
func (e *Element) Open(locator string) error {
	body, err := e.fetch(locator)
	if err != nil {
		return err
	}

	dec, err := e.openDecoder(body)
	if err != nil {
		body.Close()
		return fmt.Errorf("decode %s: %w", locator, err)
	}

	source := &countingReader{dec: dec}
	out, err := e.newSink(source, dec.SampleRate())
	if err != nil {
		body.Close()
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		out.Close()
		body.Close()
		return ErrNotLoaded
	}
	previous := e.track
	e.track = &track{body: body, source: source, sink: out, sampleRate: dec.SampleRate()}
	out.SetVolume(e.volume)
	out.Play()
	st := e.statusLocked()
	e.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	e.logger.Info().Str("locator", locator).Int("sample_rate", dec.SampleRate()).Msg("loaded")
	e.publish(st)
	return nil
}

func (e *Element) fetch(locator string) (io.ReadCloser, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		req, err := http.NewRequest(http.MethodGet, locator, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", version.UserAgent())
		resp, err := e.config.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", locator, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: status %d", locator, resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(strings.TrimPrefix(locator, "file://"))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *Element) Play() error {
	return e.transport(func(t *track) error {
		t.sink.Play()
		return nil
	})
}

func (e *Element) Pause() error {
	return e.transport(func(t *track) error {
		t.sink.Pause()
		return nil
	})
}

// Seek moves to a frame boundary. Streams over http cannot seek.
func (e *Element) Seek(position time.Duration) error {
	return e.transport(func(t *track) error {
		offset := frameOffset(position, t.sampleRate)
		if _, err := t.sink.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		return nil
	})
}

func (e *Element) SetVolume(level float64) error {
	e.mu.Lock()
	e.volume = level
	t := e.track
	e.mu.Unlock()

	if t != nil {
		t.sink.SetVolume(level)
	}
	return nil
}

func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track == nil {
		return 0
	}
	return e.track.position()
}

func (e *Element) Updates() <-chan native.Status {
	return e.updates
}

// Close stops playback and the reporter
func (e *Element) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	t := e.track
	e.track = nil
	close(e.done)
	e.mu.Unlock()

	<-e.stopped
	close(e.updates)
	if t != nil {
		t.close()
	}
	return nil
}

// transport runs a command against the loaded track and publishes the result
func (e *Element) transport(fn func(*track) error) error {
	e.mu.Lock()
	t := e.track
	if t == nil {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	err := fn(t)
	st := e.statusLocked()
	e.mu.Unlock()

	e.publish(st)
	return err
}

func (e *Element) report(ticker *clock.Ticker) {
	defer close(e.stopped)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			loaded := e.track != nil
			st := e.statusLocked()
			e.mu.Unlock()
			if loaded {
				e.publish(st)
			}
		}
	}
}

func (e *Element) statusLocked() native.Status {
	if e.track == nil {
		return native.Status{}
	}
	return native.Status{
		Position: e.track.position(),
		Playing:  e.track.sink.IsPlaying(),
		Loaded:   true,
	}
}

// publish keeps the newest status when the reader falls behind
func (e *Element) publish(st native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.updates <- st:
		return
	default:
	}
	select {
	case <-e.updates:
	default:
	}
	select {
	case e.updates <- st:
	default:
	}
}

// position is what has left the output buffer
func (t *track) position() time.Duration {
	played := t.source.Offset() - int64(t.sink.BufferedSize())
	if played < 0 {
		played = 0
	}
	return framesToDuration(played/bytesPerFrame, t.sampleRate)
}

func (t *track) close() {
	_ = t.sink.Close()
	_ = t.body.Close()
}

func framesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// frameOffset converts a position to a byte offset on a frame boundary
func frameOffset(position time.Duration, sampleRate int) int64 {
	if position < 0 {
		position = 0
	}
	frames := int64(position) * int64(sampleRate) / int64(time.Second)
	return frames * bytesPerFrame
}

// countingReader tracks the decoded byte offset handed to the sink
type countingReader struct {
	mu     sync.Mutex
	dec    decoder
	offset int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.dec.Read(p)
	r.mu.Lock()
	r.offset += int64(n)
	r.mu.Unlock()
	return n, err
}

func (r *countingReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.dec.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.offset = pos
	r.mu.Unlock()
	return pos, nil
}

func (r *countingReader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

var _ native.MediaElement = (*Element)(nil)
