// Package help contains the help overlay component.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/iagocq/amicus/internal/keys"
	"github.com/iagocq/amicus/internal/ui/overlay"
	"github.com/iagocq/amicus/internal/ui/styles"
)

// WireCommand describes one command workers can send over the wire.
type WireCommand struct {
	Syntax string
	Desc   string
}

// WireCommands returns the worker protocol reference for help text.
func WireCommands() []WireCommand {
	return []WireCommand{
		{Syntax: "progress <done> <total>", Desc: "report progress as a ratio"},
		{Syntax: "progress <text>", Desc: "report progress as free text"},
		{Syntax: "alert <message...>", Desc: "raise an alert"},
		{Syntax: "done", Desc: "mark the recording finished"},
		{Syntax: "keepalive", Desc: "feed the watchdog"},
	}
}

// Model holds the help view state.
type Model struct {
	keys   keys.KeyMap
	width  int
	height int
}

// New creates a new help view.
func New() Model {
	return Model{keys: keys.DefaultKeyMap()}
}

// SetSize updates dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	return m
}

// View renders the help overlay (standalone, no background).
func (m Model) View() string {
	return m.Overlay("")
}

// Overlay renders the help box on top of a background view.
func (m Model) Overlay(background string) string {
	helpBox := m.renderContent()

	if background == "" {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			helpBox,
		)
	}

	return overlay.Center(m.width, m.height, helpBox, background)
}

// renderContent builds the help box content. Styles are built per render
// so theme changes apply without a restart.
func (m Model) renderContent() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.OverlayTitleColor).
		PaddingLeft(2)

	dividerStyle := lipgloss.NewStyle().
		Foreground(styles.OverlayBorderColor)

	sectionStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.OverlayTitleColor).
		MarginTop(1)

	keyStyle := lipgloss.NewStyle().
		Foreground(styles.HighlightColor).
		Width(11)

	descStyle := lipgloss.NewStyle().
		Foreground(styles.TextMutedColor)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.OverlayBorderColor)

	contentStyle := lipgloss.NewStyle().
		Padding(0, 2)

	footerStyle := lipgloss.NewStyle().
		Foreground(styles.TextMutedColor).
		MarginTop(1)

	columnStyle := lipgloss.NewStyle().MarginRight(4)

	renderBinding := func(b key.Binding) string {
		h := b.Help()
		return keyStyle.Render(h.Key) + descStyle.Render(h.Desc) + "\n"
	}

	// Navigation column
	var navCol strings.Builder
	navCol.WriteString(sectionStyle.Render("Navigation"))
	navCol.WriteString("\n")
	navCol.WriteString(renderBinding(m.keys.Up))
	navCol.WriteString(renderBinding(m.keys.Down))

	// Actions column
	var actionsCol strings.Builder
	actionsCol.WriteString(sectionStyle.Render("Actions"))
	actionsCol.WriteString("\n")
	actionsCol.WriteString(renderBinding(m.keys.Rename))
	actionsCol.WriteString(renderBinding(m.keys.Escape))

	// General column
	var generalCol strings.Builder
	generalCol.WriteString(sectionStyle.Render("General"))
	generalCol.WriteString("\n")
	generalCol.WriteString(renderBinding(m.keys.ToggleLogs))
	generalCol.WriteString(renderBinding(m.keys.Help))
	generalCol.WriteString(renderBinding(m.keys.Quit))

	keyColumns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		columnStyle.Render(navCol.String()),
		columnStyle.Render(actionsCol.String()),
		generalCol.String(),
	)

	// Worker protocol section
	cmdStyle := lipgloss.NewStyle().Foreground(styles.HighlightColor).Width(25)
	cmdDescStyle := lipgloss.NewStyle().Foreground(styles.TextMutedColor)

	var protoCol strings.Builder
	protoCol.WriteString(sectionStyle.Render("Worker Protocol"))
	protoCol.WriteString("\n")
	for _, c := range WireCommands() {
		protoCol.WriteString(cmdStyle.Render(c.Syntax) + cmdDescStyle.Render(c.Desc) + "\n")
	}

	// Box width follows the widest section
	columnsWidth := lipgloss.Width(keyColumns)
	if w := lipgloss.Width(protoCol.String()); w > columnsWidth {
		columnsWidth = w
	}
	boxWidth := columnsWidth + 4

	body := contentStyle.Render(
		keyColumns + "\n" + protoCol.String() + "\n" +
			footerStyle.Render("Press ? or Esc to close"))

	divider := dividerStyle.Render(strings.Repeat("─", boxWidth))

	var content strings.Builder
	content.WriteString(titleStyle.Render("Keybindings"))
	content.WriteString("\n")
	content.WriteString(divider)
	content.WriteString("\n")
	content.WriteString(body)

	return boxStyle.Width(boxWidth).Render(content.String())
}
