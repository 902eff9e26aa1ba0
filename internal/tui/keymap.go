package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the timer's keyboard shortcuts.
type KeyMap struct {
	Pause    key.Binding
	Stop     key.Binding
	Cancel   key.Binding
	Billable key.Binding
	Help     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Pause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space/p", "pause/resume"),
		),
		Stop: key.NewBinding(
			key.WithKeys("enter", "s"),
			key.WithHelp("enter/s", "stop and log"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc/q", "discard"),
		),
		Billable: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "toggle billable"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Stop, k.Cancel, k.Help}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Stop, k.Cancel},
		{k.Billable, k.Help},
	}
}
