package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/cli"
)

// View renders the timer.
func (m Model) View() string {
	if m.session != nil || m.cancelled {
		return ""
	}

	status := cli.SuccessStyle.Render("running")
	if m.Paused() {
		status = cli.WarningStyle.Render("paused")
	}
	billable := "billable"
	if !m.cfg.Billable {
		billable = cli.SubtleStyle.Render("non-billable")
	}

	var b strings.Builder
	b.WriteString(cli.FormatTitle(cli.ClockIcon, m.cfg.ClientReference))
	b.WriteString("\n")
	b.WriteString(m.cfg.Description)
	b.WriteString("\n\n")
	b.WriteString(cli.BoldStyle.Render(m.stopwatch.View()))
	fmt.Fprintf(&b, "  %s · %s\n", status, billable)
	fmt.Fprintf(&b, "%s\n\n", cli.SubtleStyle.Render("started "+m.start.Format("15:04")))
	b.WriteString(m.help.View(m.keymap))
	b.WriteString("\n")
	return b.String()
}
