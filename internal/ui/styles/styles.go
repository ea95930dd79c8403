// Package styles contains Lip Gloss style definitions shared across the
// dashboard.
package styles

import "github.com/charmbracelet/lipgloss"

// Adaptive colors pick a light or dark variant based on the terminal
// background. Components build their styles from these at render time so
// theme changes apply without a restart.
var (
	TextPrimaryColor = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"}
	TextMutedColor   = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}

	// HighlightColor marks the cursor row and interactive accents.
	HighlightColor = lipgloss.AdaptiveColor{Light: "#2E5AAC", Dark: "#54A0FF"}

	RecordingColor = lipgloss.AdaptiveColor{Light: "#2E5AAC", Dark: "#54A0FF"}
	SuccessColor   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	WarningColor   = lipgloss.AdaptiveColor{Light: "#B88700", Dark: "#FECA57"}
	ErrorColor     = lipgloss.AdaptiveColor{Light: "#D63031", Dark: "#FF8787"}

	OverlayTitleColor  = lipgloss.AdaptiveColor{Light: "#2E5AAC", Dark: "#54A0FF"}
	OverlayBorderColor = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
)

// ApplyTheme overrides the default palette with colors from the config.
// Empty values keep the defaults. Light and dark variants collapse to the
// configured color.
func ApplyTheme(highlight, subtle, errorColor, success string) {
	if highlight != "" {
		c := lipgloss.AdaptiveColor{Light: highlight, Dark: highlight}
		HighlightColor = c
		RecordingColor = c
		OverlayTitleColor = c
	}
	if subtle != "" {
		c := lipgloss.AdaptiveColor{Light: subtle, Dark: subtle}
		TextMutedColor = c
		OverlayBorderColor = c
	}
	if errorColor != "" {
		ErrorColor = lipgloss.AdaptiveColor{Light: errorColor, Dark: errorColor}
	}
	if success != "" {
		SuccessColor = lipgloss.AdaptiveColor{Light: success, Dark: success}
	}
}

// StatusBar returns the style for the footer line.
func StatusBar() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(TextMutedColor)
}

// ErrorText returns the style for error-severity text.
func ErrorText() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ErrorColor)
}
