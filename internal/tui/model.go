// Package tui implements the interactive time-tracking stopwatch.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/stopwatch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/billing"
)

// Config describes the work being timed.
type Config struct {
	Clock           func() time.Time
	Rate            *decimal.Decimal
	ClientReference string
	Description     string
	Billable        bool
}

// Model is the bubbletea model of a running timer. Billed time comes from
// the clock; the stopwatch only drives the display.
type Model struct {
	start     time.Time
	pausedAt  time.Time
	clock     func() time.Time
	session   *billing.TimerSession
	stopwatch stopwatch.Model
	help      help.Model
	keymap    KeyMap
	cfg       Config
	paused    time.Duration
	cancelled bool
}

// NewModel starts a timer at the current clock time.
func NewModel(cfg Config) Model {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return Model{
		start:     clock(),
		clock:     clock,
		stopwatch: stopwatch.NewWithInterval(time.Second),
		help:      help.New(),
		keymap:    DefaultKeyMap(),
		cfg:       cfg,
	}
}

// Init starts the stopwatch ticking.
func (m Model) Init() tea.Cmd {
	return m.stopwatch.Init()
}

// Update handles key presses and stopwatch ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keymap.Stop):
			m.finish()
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Cancel):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Pause):
			now := m.clock()
			if m.Paused() {
				m.paused += now.Sub(m.pausedAt)
				m.pausedAt = time.Time{}
			} else {
				m.pausedAt = now
			}
			return m, m.stopwatch.Toggle()
		case key.Matches(msg, m.keymap.Billable):
			m.cfg.Billable = !m.cfg.Billable
			return m, nil
		case key.Matches(msg, m.keymap.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.stopwatch, cmd = m.stopwatch.Update(msg)
	return m, cmd
}

func (m *Model) finish() {
	now := m.clock()
	if m.Paused() {
		m.paused += now.Sub(m.pausedAt)
		m.pausedAt = time.Time{}
	}
	m.session = &billing.TimerSession{
		Start:           m.start,
		Stop:            now,
		Paused:          m.paused,
		Rate:            m.cfg.Rate,
		ClientReference: m.cfg.ClientReference,
		Description:     m.cfg.Description,
		Billable:        m.cfg.Billable,
	}
}

// Paused reports whether the timer is currently paused.
func (m Model) Paused() bool {
	return !m.pausedAt.IsZero()
}

// Worked is the unpaused time so far.
func (m Model) Worked() time.Duration {
	now := m.clock()
	paused := m.paused
	if m.Paused() {
		paused += now.Sub(m.pausedAt)
	}
	return now.Sub(m.start) - paused
}

// Session returns the finished session, or nil when the timer was
// discarded or is still running.
func (m Model) Session() *billing.TimerSession {
	if m.cancelled {
		return nil
	}
	return m.session
}
