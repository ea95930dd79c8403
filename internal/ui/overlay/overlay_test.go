package overlay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCenter_PlacesContentInMiddle(t *testing.T) {
	bg := strings.Join([]string{
		"..........",
		"..........",
		"..........",
		"..........",
		"..........",
	}, "\n")

	got := Center(10, 5, "XX", bg)

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "....XX....", lines[2])
	require.Equal(t, "..........", lines[0])
	require.Equal(t, "..........", lines[4])
}

func TestCenter_MultiLineForeground(t *testing.T) {
	bg := strings.Repeat("##########\n", 4) + "##########"

	got := Center(10, 5, "ab\ncd", bg)

	lines := strings.Split(got, "\n")
	require.Contains(t, lines[1], "ab")
	require.Contains(t, lines[2], "cd")
}

func TestCenter_ForegroundLargerThanViewport(t *testing.T) {
	got := Center(4, 2, "overlay content", "....\n....")

	lines := strings.Split(got, "\n")
	require.Equal(t, "overlay content", lines[0])
}

func TestCenter_PadsShortBackground(t *testing.T) {
	got := Center(10, 5, "XX", "")

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[2], "XX")
}

func TestCenter_PreservesBackgroundRightOfOverlay(t *testing.T) {
	bg := "0123456789"

	got := Center(10, 1, "XX", bg)

	require.Equal(t, "0123XX6789", got)
}
