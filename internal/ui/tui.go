// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the user control channels
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user intents from the TUI to the session
type Controls struct {
	Toggle chan struct{}
	Volume chan float64
	Load   chan string
	Quit   chan struct{}
}

// NewControls creates a control handler
func NewControls() *Controls {
	return &Controls{
		Toggle: make(chan struct{}, 10),
		Volume: make(chan float64, 10),
		Load:   make(chan string, 1),
		Quit:   make(chan struct{}, 1),
	}
}

func (c *Controls) toggle() {
	if c == nil {
		return
	}
	select {
	case c.Toggle <- struct{}{}:
	default:
	}
}

func (c *Controls) setVolume(level float64) {
	if c == nil {
		return
	}
	select {
	case c.Volume <- level:
	default:
	}
}

func (c *Controls) load(link string) {
	if c == nil {
		return
	}
	select {
	case c.Load <- link:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		volume:   1,
		controls: controls,
	}
}

// Run creates the TUI program; the caller starts it
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
