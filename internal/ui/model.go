// ABOUTME: Bubbletea model for the watch TUI
// ABOUTME: Defines application state, key handling and rendering
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/syncwatch/syncwatch-go/pkg/engine"
	"github.com/syncwatch/syncwatch-go/pkg/media"
	"github.com/syncwatch/syncwatch-go/pkg/session"
)

const volumeStep = 0.05

// Model represents the TUI state
type Model struct {
	// Room
	roomID     string
	serverName string
	connected  bool

	// Content
	locator    string
	kind       media.Kind
	title      string
	author     string
	state      engine.State
	suppressed bool
	adapter    media.Kind

	// Local
	volume  float64
	lastErr string

	// Link entry
	linkMode bool
	input    string

	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.linkMode {
			return m.handleLinkKey(msg)
		}
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case TitleMsg:
		if msg.Locator == m.locator {
			m.title = msg.Title
			m.author = msg.Author
		}
	case ErrorMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderNowPlaying()
	s += m.renderControls()
	if m.linkMode {
		s += m.renderLinkInput()
	}
	if m.lastErr != "" {
		s += fmt.Sprintf("│ ! %-50s │\n", truncate(m.lastErr, 50))
	}
	s += m.renderHelp()

	return s
}

// renderHeader renders room and link status
func (m Model) renderHeader() string {
	linkIcon := "●"
	linkText := "Offline"
	if m.connected {
		linkText = "Synced"
		if m.serverName != "" {
			linkText = fmt.Sprintf("Synced via %s", m.serverName)
		}
	} else {
		linkIcon = "○"
	}

	room := m.roomID
	if room == "" {
		room = "(none)"
	}

	return fmt.Sprintf(`┌─ Syncwatch ──────────────────────────────────────────┐
│ Room:   %-45s │
│ Link:   %s %-43s │
├──────────────────────────────────────────────────────┤
`, truncate(room, 45), linkIcon, truncate(linkText, 43))
}

// renderNowPlaying renders the current source
func (m Model) renderNowPlaying() string {
	if m.locator == "" {
		return "│ Press l and paste a link to start watching           │\n"
	}

	s := "│ Now Playing:                                         │\n"
	if m.title != "" {
		s += fmt.Sprintf("│   Title:  %-42s │\n", truncate(m.title, 42))
		if m.author != "" {
			s += fmt.Sprintf("│   By:     %-42s │\n", truncate(m.author, 42))
		}
	}
	s += fmt.Sprintf("│   Link:   %-42s │\n", truncate(m.locator, 42))
	s += fmt.Sprintf("│   Player: %-42s │\n", playerName(m.adapter, m.kind))
	return s
}

// renderControls renders playback state and volume
func (m Model) renderControls() string {
	stateIcon := "■"
	switch m.state {
	case engine.Playing:
		stateIcon = "▶"
	case engine.Paused:
		stateIcon = "⏸"
	}

	syncing := ""
	if m.suppressed {
		syncing = " (syncing)"
	}

	percent := int(m.volume*100 + 0.5)
	return fmt.Sprintf("│                                                      │\n"+
		"│ State:  %s %-43s │\n"+
		"│ Volume: [%s] %3d%%%-26s │\n"+
		"├──────────────────────────────────────────────────────┤\n",
		stateIcon, m.state.String()+syncing,
		renderBar(percent, 100, 10), percent, "")
}

func (m Model) renderLinkInput() string {
	return fmt.Sprintf("│ Link: %-46s │\n", truncate(m.input+"_", 46))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	if m.linkMode {
		return `│ enter:Load  esc:Cancel                               │
└──────────────────────────────────────────────────────┘
`
	}
	return `│ space:Play/Pause  +/-:Volume  l:Link  q:Quit          │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case " ":
		m.controls.toggle()
	case "+", "=", "up":
		m.volume = clampVolume(m.volume + volumeStep)
		m.controls.setVolume(m.volume)
	case "-", "down":
		m.volume = clampVolume(m.volume - volumeStep)
		m.controls.setVolume(m.volume)
	case "l":
		m.linkMode = true
		m.input = ""
	}

	return m, nil
}

// handleLinkKey edits the link being typed
func (m Model) handleLinkKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.controls.quit()
		return m, tea.Quit
	case tea.KeyEsc:
		m.linkMode = false
		m.input = ""
	case tea.KeyEnter:
		link := strings.TrimSpace(m.input)
		m.linkMode = false
		m.input = ""
		if link != "" {
			m.lastErr = ""
			m.controls.load(link)
		}
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			r := []rune(m.input)
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}

	return m, nil
}

// applyStatus updates model from a session status
func (m *Model) applyStatus(msg StatusMsg) {
	st := msg.Status
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}

	m.roomID = st.RoomID
	m.connected = st.Connected
	m.state = st.State
	m.suppressed = st.Suppressed
	m.adapter = st.Adapter
	m.volume = st.Volume

	if st.Source.Locator != m.locator {
		m.title = ""
		m.author = ""
	}
	m.locator = st.Source.Locator
	m.kind = st.Source.Kind
}

// StatusMsg carries a session status into the TUI
type StatusMsg struct {
	Status     session.Status
	ServerName string
}

// TitleMsg carries looked-up metadata for a locator
type TitleMsg struct {
	Locator string
	Title   string
	Author  string
}

// ErrorMsg shows a non-fatal error
type ErrorMsg struct {
	Err error
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func playerName(adapter, kind media.Kind) string {
	if adapter == "" {
		adapter = kind
	}
	switch adapter {
	case media.KindStreamingEmbed:
		return "streaming embed"
	case media.KindNativeMedia:
		return "native"
	case media.KindWebPage:
		return "web page"
	default:
		return string(adapter)
	}
}
