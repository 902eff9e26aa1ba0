package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	updated, ok := next.(Model)
	require.True(t, ok)
	return updated
}

func newTestModel() (Model, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	m := NewModel(Config{
		Clock:           clock.Now,
		ClientReference: "acme",
		Description:     "pairing",
		Billable:        true,
	})
	return m, clock
}

func TestModel_StopProducesSession(t *testing.T) {
	m, clock := newTestModel()

	clock.Advance(20 * time.Minute)
	m = press(t, m, runes("p"))
	assert.True(t, m.Paused())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 20*time.Minute, m.Worked())
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.False(t, m.Paused())

	clock.Advance(25 * time.Minute)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	session := m.Session()
	require.NotNil(t, session)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), session.Start)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 55, 0, 0, time.UTC), session.Stop)
	assert.Equal(t, 10*time.Minute, session.Paused)
	assert.Equal(t, "acme", session.ClientReference)
	assert.True(t, session.Billable)
	assert.Empty(t, m.View())
}

func TestModel_StopWhilePaused(t *testing.T) {
	m, clock := newTestModel()

	clock.Advance(30 * time.Minute)
	m = press(t, m, runes("p"))
	clock.Advance(15 * time.Minute)
	m = press(t, m, runes("s"))

	session := m.Session()
	require.NotNil(t, session)
	assert.Equal(t, 15*time.Minute, session.Paused)
}

func TestModel_ToggleBillable(t *testing.T) {
	m, _ := newTestModel()

	m = press(t, m, runes("b"))
	assert.Contains(t, m.View(), "non-billable")

	m = press(t, m, runes("s"))
	require.NotNil(t, m.Session())
	assert.False(t, m.Session().Billable)
}

func TestModel_Cancel(t *testing.T) {
	m, _ := newTestModel()
	assert.Nil(t, m.Session(), "no session while running")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, m.Session())
}

func TestModel_View(t *testing.T) {
	m, _ := newTestModel()
	view := m.View()

	assert.Contains(t, view, "acme")
	assert.Contains(t, view, "pairing")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "started 09:00")

	m = press(t, m, runes("p"))
	assert.Contains(t, m.View(), "paused")
}
