package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/keycast/keycast/internal/tui/client"
	"github.com/keycast/keycast/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	URL       string
	Received  int
	Server    *client.Status
	Err       error
	Width     int
}

func New(url string) Model {
	return Model{URL: url}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	parts := []string{connStr, theme.StyleDimmed.Render(m.URL), fmt.Sprintf("%d received", m.Received)}
	if m.Server != nil {
		parts = append(parts, fmt.Sprintf("%d clients", m.Server.Clients), inputBadge(m.Server.Input))
		if m.Server.Uptime != "" {
			parts = append(parts, "up "+m.Server.Uptime)
		}
	}
	if m.Err != nil {
		parts = append(parts, theme.StyleError.Render(m.Err.Error()))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(parts, sep))
}

func inputBadge(in client.InputStatus) string {
	switch {
	case in.Present && in.Simulated:
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(
			fmt.Sprintf("input: simulated (%d lines)", len(in.Lines)))
	case in.Present:
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render(
			fmt.Sprintf("input: %d lines", len(in.Lines)))
	default:
		return theme.StyleDimmed.Render("input: none")
	}
}
