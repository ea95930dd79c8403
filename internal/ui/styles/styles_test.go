package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

func TestApplyTheme_OverridesColors(t *testing.T) {
	origHighlight := HighlightColor
	origError := ErrorColor
	t.Cleanup(func() {
		HighlightColor = origHighlight
		RecordingColor = origHighlight
		OverlayTitleColor = origHighlight
		ErrorColor = origError
	})

	ApplyTheme("#112233", "", "#AABBCC", "")

	require.Equal(t, lipgloss.AdaptiveColor{Light: "#112233", Dark: "#112233"}, HighlightColor)
	require.Equal(t, HighlightColor, RecordingColor)
	require.Equal(t, lipgloss.AdaptiveColor{Light: "#AABBCC", Dark: "#AABBCC"}, ErrorColor)
}

func TestApplyTheme_EmptyKeepsDefaults(t *testing.T) {
	before := SuccessColor
	ApplyTheme("", "", "", "")
	require.Equal(t, before, SuccessColor)
}

func TestApplyTheme_ChangesRenderedOutput(t *testing.T) {
	// Force ANSI color output in test environment
	prior := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(prior) })

	orig := HighlightColor
	t.Cleanup(func() {
		HighlightColor = orig
		RecordingColor = orig
		OverlayTitleColor = orig
	})

	before := lipgloss.NewStyle().Foreground(HighlightColor).Render("row")
	ApplyTheme("#FF00FF", "", "", "")
	after := lipgloss.NewStyle().Foreground(HighlightColor).Render("row")

	require.NotEqual(t, "row", before, "ANSI256 profile should emit color sequences")
	require.NotEqual(t, before, after, "theme override should change the rendered color")
}
