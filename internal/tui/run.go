package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/tally/internal/billing"
)

// Run shows the timer until it is stopped or discarded. A discarded timer
// returns a nil session.
func Run(ctx context.Context, cfg Config) (*billing.TimerSession, error) {
	program := tea.NewProgram(NewModel(cfg), tea.WithContext(ctx))

	final, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("timer failed: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("unexpected timer model %T", final)
	}
	return m.Session(), nil
}
