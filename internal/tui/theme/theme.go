// Package theme provides the Lip Gloss color palette and reusable styles
// for the keycast TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Origin colors.
var (
	ColorClient  = lipgloss.Color("#06b6d4")
	ColorDevice  = lipgloss.Color("#f59e0b")
	ColorIngress = lipgloss.Color("#a855f7")
	ColorLocal   = lipgloss.Color("#22c55e")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// OriginColor returns the color for a message origin as reported in a JSON
// envelope. "sys" is used for entries the TUI adds itself.
func OriginColor(origin string) lipgloss.Color {
	switch origin {
	case "client":
		return ColorClient
	case "device":
		return ColorDevice
	case "ingress":
		return ColorIngress
	case "sys":
		return ColorLocal
	case "err":
		return ColorDanger
	default:
		return ColorDefault
	}
}

// OriginGlyph returns a short marker for an origin.
func OriginGlyph(origin string) string {
	switch origin {
	case "client":
		return "›"
	case "device":
		return "●"
	case "ingress":
		return "↯"
	case "sys":
		return "·"
	case "err":
		return "✗"
	default:
		return " "
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
