// ABOUTME: Client application orchestration
// ABOUTME: Wires relay, browser bridge, players, session and TUI together
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/internal/audio"
	"github.com/syncwatch/syncwatch-go/internal/bridge"
	"github.com/syncwatch/syncwatch-go/internal/config"
	"github.com/syncwatch/syncwatch-go/internal/discovery"
	"github.com/syncwatch/syncwatch-go/internal/mpv"
	"github.com/syncwatch/syncwatch-go/internal/ui"
	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/player"
	"github.com/syncwatch/syncwatch-go/pkg/player/embed"
	"github.com/syncwatch/syncwatch-go/pkg/player/native"
	"github.com/syncwatch/syncwatch-go/pkg/player/sandbox"
	"github.com/syncwatch/syncwatch-go/pkg/session"
	"github.com/syncwatch/syncwatch-go/pkg/transport"
)

// ElementFactory opens the native media element for a new adapter
type ElementFactory func() (native.MediaElement, error)

// Options configures the client
type Options struct {
	Settings *config.Client

	// Channel overrides the relay link; nil dials the configured or
	// discovered relay
	Channel transport.Channel

	// Elements overrides the native backend chosen by Settings
	Elements ElementFactory

	// Lookup resolves streaming titles for the TUI (default: public oEmbed)
	Lookup *media.Lookup

	Logger *zerolog.Logger
}

// Client is the running watch client
type Client struct {
	settings *config.Client
	logger   zerolog.Logger
	channel  transport.Channel
	elements ElementFactory
	lookup   *media.Lookup
	bridge   *bridge.Server
	controls *ui.Controls

	mu        sync.Mutex
	session   *session.Session
	program   *tea.Program
	serverTag string
	lastVideo string
	ready     chan struct{}
}

// New prepares a client; nothing connects until Run
func New(opts Options) (*Client, error) {
	if opts.Settings == nil {
		return nil, errors.New("app: settings are required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Lookup == nil {
		opts.Lookup = media.NewLookup()
	}

	c := &Client{
		settings: opts.Settings,
		logger:   logger,
		channel:  opts.Channel,
		elements: opts.Elements,
		lookup:   opts.Lookup,
		controls: ui.NewControls(),
		ready:    make(chan struct{}),
	}
	c.bridge = bridge.New(bridge.Config{Addr: opts.Settings.BridgeAddr, Logger: opts.Logger})
	if c.elements == nil {
		c.elements = c.defaultElements
	}
	return c, nil
}

// Controls returns the user intent channels
func (c *Client) Controls() *ui.Controls {
	return c.controls
}

// Ready is closed once the room has been entered
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Session returns the session once Run has created it
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Run enters the room and serves user controls until ctx ends or the user quits
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.bridge.Start(); err != nil {
		return fmt.Errorf("start browser bridge: %w", err)
	}
	defer c.bridge.Stop()
	c.logger.Info().Str("url", c.bridge.URL()+"/embed").Msg("open the player page in a browser")

	channel, tag, err := c.resolveChannel(ctx)
	if err != nil {
		return err
	}

	cfg := session.DefaultConfig(channel, c.buildAdapter)
	cfg.Window = c.settings.SyncWindow
	cfg.PausePosition = c.settings.PausePosition
	cfg.HealthInterval = c.settings.HealthInterval
	cfg.EventDrivenHealth = c.settings.EventHealth
	if c.settings.WebMode() {
		cfg.ForceKind = media.KindWebPage
	}
	cfg.Logger = &c.logger
	cfg.OnStateChange = c.handleStatus
	cfg.OnError = c.handleError

	sess, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if !c.settings.NoTUI {
		program, err := ui.Run(c.controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		go func() {
			if _, err := program.Run(); err != nil {
				c.logger.Error().Err(err).Msg("TUI stopped")
			}
			cancel()
		}()
		defer program.Quit()

		c.mu.Lock()
		c.program = program
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.session = sess
	c.serverTag = tag
	c.mu.Unlock()

	if err := sess.EnterRoom(ctx, c.settings.Room, c.settings.Link); err != nil {
		return fmt.Errorf("enter room %s: %w", c.settings.Room, err)
	}
	c.logger.Info().Str("room", c.settings.Room).Str("relay", tag).Msg("entered room")
	close(c.ready)

	c.handleControls(ctx, sess)
	return nil
}

// resolveChannel picks the relay link: injected, configured, or discovered
func (c *Client) resolveChannel(ctx context.Context) (transport.Channel, string, error) {
	if c.channel != nil {
		return c.channel, "local", nil
	}

	addr := c.settings.Server
	if addr == "" {
		c.logger.Info().Msg("looking for a relay on the local network")
		relay, err := discovery.FindRelay(ctx, c.settings.DiscoveryTimeout, &c.logger)
		if err != nil {
			return nil, "", fmt.Errorf("no --server given and discovery failed: %w", err)
		}
		addr = relay.Addr()
		c.logger.Info().Str("relay", relay.Name).Str("addr", addr).Msg("discovered relay")
	}

	return transport.NewWebSocket(transport.Config{
		ServerURL: addr,
		ClientID:  uuid.NewString(),
		Logger:    &c.logger,
	}), addr, nil
}

// buildAdapter is the session's adapter factory
func (c *Client) buildAdapter(kind media.Kind) (player.Adapter, error) {
	switch kind {
	case media.KindStreamingEmbed:
		return embed.New(embed.Config{Surface: c.bridge.Embed(), Logger: &c.logger}), nil
	case media.KindWebPage:
		return sandbox.New(sandbox.Config{Surface: c.bridge.Sandbox(), Logger: &c.logger}), nil
	case media.KindNativeMedia:
		element, err := c.elements()
		if err != nil {
			return nil, fmt.Errorf("open native player: %w", err)
		}
		return native.New(native.Config{Element: element, Logger: &c.logger}), nil
	default:
		return nil, fmt.Errorf("no player for %q", kind)
	}
}

func (c *Client) defaultElements() (native.MediaElement, error) {
	if c.settings.NativeBackend == "audio" {
		return audio.New(audio.Config{Logger: &c.logger}), nil
	}
	return mpv.Start(context.Background(), mpv.Config{Path: c.settings.MPVPath, Logger: &c.logger})
}

// handleControls applies TUI intents to the session
func (c *Client) handleControls(ctx context.Context, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.controls.Quit:
			c.logger.Info().Msg("quit requested")
			return
		case <-c.controls.Toggle:
			if err := sess.TogglePlayback(); err != nil {
				c.handleError(err)
			}
		case level := <-c.controls.Volume:
			// unsupported volume is reported through OnError
			_ = sess.SetVolume(level)
		case link := <-c.controls.Load:
			if err := sess.ChangeSource(link); err != nil {
				c.handleError(err)
			}
		}
	}
}

func (c *Client) handleStatus(st session.Status) {
	c.mu.Lock()
	program := c.program
	tag := c.serverTag
	lookup := st.Source.VideoID != "" && st.Source.VideoID != c.lastVideo
	if lookup {
		c.lastVideo = st.Source.VideoID
	}
	c.mu.Unlock()

	if program == nil {
		return
	}
	program.Send(ui.StatusMsg{Status: st, ServerName: tag})

	if lookup {
		go c.lookupTitle(program, st.Source)
	}
}

func (c *Client) lookupTitle(program *tea.Program, src media.Source) {
	data, err := c.lookup.Get(context.Background(), src.VideoID)
	if err != nil {
		c.logger.Debug().Err(err).Str("video", src.VideoID).Msg("title lookup failed")
		return
	}
	program.Send(ui.TitleMsg{Locator: src.Locator, Title: data.Title, Author: data.AuthorName})
}

func (c *Client) handleError(err error) {
	c.logger.Warn().Err(err).Msg("session error")

	c.mu.Lock()
	program := c.program
	c.mu.Unlock()
	if program != nil {
		program.Send(ui.ErrorMsg{Err: err})
	}
}
