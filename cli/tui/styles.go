// Package tui provides the Bubble Tea watch screen for heliwatch.
//
// The screen is a view over a live session: a status header, the ASCII
// helicorder and a key legend. Keys drive the session (pause, connect
// toggle, quit); the screen never owns session state.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for the channel title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// LabelStyle for header field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(9)

	// ValueStyle for header field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for streaming.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for transitional and paused states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for errors and degraded sessions.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// TraceStyle for helicorder rows.
	TraceStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	// BoxStyle for the helicorder frame.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// HelpStyle for the key legend.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// StateStyle returns a style based on the session state string.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "streaming":
		return SuccessStyle
	case "connecting", "paused":
		return WarningStyle
	case "degraded", "error":
		return ErrorStyle
	default:
		return ValueStyle
	}
}
