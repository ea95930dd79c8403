// Package dashboard is the root Bubble Tea model: one row per worker
// slot, inline rename, a status line fed by the bus log topic, and the
// log and help overlays.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/rivo/uniseg"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/keys"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/monitor"
	"github.com/iagocq/amicus/internal/ui/help"
	"github.com/iagocq/amicus/internal/ui/logview"
	"github.com/iagocq/amicus/internal/ui/styles"
)

const (
	// nameColWidth is the fixed cell width names are padded into.
	nameColWidth = 16

	// bannerWidth fits the widest status banner.
	bannerWidth = 15

	statsInterval = time.Second
)

// Renamer publishes a rename request for the worker in a slot. The screen
// bridge implements it by publishing client-rename on the bus.
type Renamer interface {
	Rename(slot int, name string)
}

// StatsFn returns a snapshot of the bus delivery counters for the footer.
type StatsFn func() bus.StatsSnapshot

type tickMsg time.Time

// Model holds the dashboard state. Records arrive as monitor.RefreshEvent
// messages, the status line as bus.LogEvent messages; both are forwarded
// from the bus by the screen bridge.
type Model struct {
	keys    keys.KeyMap
	records []monitor.Record
	cursor  int

	width  int
	height int

	editing  bool
	editSlot int
	input    textinput.Model

	lastLog    *bus.LogEvent
	statsSnap  bus.StatsSnapshot

	showHelp bool
	help     help.Model
	logs     logview.Model

	renamer Renamer
	stats   StatsFn
}

// New creates the dashboard model. renamer and stats may be nil in tests.
func New(ctx context.Context, renamer Renamer, stats StatsFn) Model {
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "worker name"
	input.CharLimit = 64
	input.Width = nameColWidth + 8

	return Model{
		keys:    keys.DefaultKeyMap(),
		input:   input,
		help:    help.New(),
		logs:    logview.New(ctx),
		renamer: renamer,
		stats:   stats,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.logs.Init(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(statsInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help = m.help.SetSize(msg.Width, msg.Height)
		m.logs.SetSize(msg.Width, msg.Height)
		return m, nil

	case monitor.RefreshEvent:
		m = m.applyRefresh(msg.Record)
		return m, nil

	case bus.LogEvent:
		event := msg
		m.lastLog = &event
		return m, nil

	case log.LogEvent:
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd

	case logview.CloseMsg:
		return m, nil

	case tickMsg:
		if m.stats != nil {
			m.statsSnap = m.stats()
		}
		return m, tick()

	case tea.MouseMsg:
		if m.logs.Visible() {
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(msg)
			return m, cmd
		}
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey routes keyboard input by precedence: log overlay, rename
// editor, help overlay, then the row list.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.logs.Visible() {
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}

	if m.editing {
		return m.handleEditKey(msg)
	}

	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Escape):
			m.showHelp = false
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.records)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Rename):
		return m.startEditing()

	case key.Matches(msg, m.keys.ToggleLogs):
		m.logs.Toggle()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true

	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	}

	return m, nil
}

// handleEditKey drives the inline rename editor.
func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		name := strings.TrimSpace(m.input.Value())
		m.editing = false
		m.input.Blur()
		if m.renamer != nil {
			m.renamer.Rename(m.editSlot, name)
		}
		return m, nil

	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startEditing opens the rename editor for the cursor row, seeded with
// the worker's current name.
func (m Model) startEditing() (tea.Model, tea.Cmd) {
	if m.cursor < 0 || m.cursor >= len(m.records) {
		return m, nil
	}
	rec := m.records[m.cursor]
	m.editing = true
	m.editSlot = rec.Slot
	m.input.SetValue(rec.Name)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

// handleMouse moves the cursor to a clicked row.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Button != tea.MouseButtonLeft || msg.Action != tea.MouseActionRelease {
		return m, nil
	}
	for i := range m.records {
		if z := zone.Get(rowZoneID(i)); z != nil && z.InBounds(msg) {
			if m.editing {
				m.editing = false
				m.input.Blur()
			}
			m.cursor = i
			return m, nil
		}
	}
	return m, nil
}

// applyRefresh upserts a record by slot, keeping rows in slot order.
func (m Model) applyRefresh(rec monitor.Record) Model {
	replaced := false
	for i := range m.records {
		if m.records[i].Slot == rec.Slot {
			m.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		m.records = append(m.records, rec)
		sort.Slice(m.records, func(i, j int) bool {
			return m.records[i].Slot < m.records[j].Slot
		})
	}
	if m.cursor >= len(m.records) {
		m.cursor = len(m.records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	rowsHeight := m.height - 2
	rows := lipgloss.Place(m.width, rowsHeight, lipgloss.Left, lipgloss.Top, m.renderRows())

	view := lipgloss.JoinVertical(lipgloss.Left, rows, m.renderStatusLine(), m.renderFooter())

	if m.showHelp {
		view = m.help.Overlay(view)
	}
	view = m.logs.Overlay(view)

	return zone.Scan(view)
}

// renderRows renders one line per worker slot.
func (m Model) renderRows() string {
	if len(m.records) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			Italic(true).
			Render("No workers connected")
		return truncate.String(empty, uint(m.width))
	}

	lines := make([]string, 0, len(m.records))
	for i, rec := range m.records {
		lines = append(lines, m.renderRow(i, rec))
	}
	return strings.Join(lines, "\n")
}

// renderRow builds `{banner} | {name:<16}| {progress}` with an optional
// alert suffix.
func (m Model) renderRow(index int, rec monitor.Record) string {
	bannerText, bannerColor := banner(rec.Status)
	bannerCell := lipgloss.NewStyle().
		Bold(true).
		Foreground(bannerColor).
		Render(runewidth.FillRight(bannerText, bannerWidth))

	if m.editing && rec.Slot == m.editSlot {
		line := bannerCell + " | " + m.input.View()
		return zone.Mark(rowZoneID(index), truncate.String(line, uint(m.width)))
	}

	name := runewidth.FillRight(runewidth.Truncate(rec.Name, nameColWidth, "…"), nameColWidth)
	rest := fmt.Sprintf(" | %s| %s", name, rec.Progress.String())

	restStyle := lipgloss.NewStyle().Foreground(styles.TextPrimaryColor)
	if index == m.cursor {
		restStyle = lipgloss.NewStyle().Foreground(styles.HighlightColor).Bold(true)
	}
	line := bannerCell + restStyle.Render(rest)

	if rec.LastAlert != "" {
		used := bannerWidth + uniseg.StringWidth(rest) + 3
		if budget := m.width - used; budget > 0 {
			alert := truncateGraphemes(rec.LastAlert, budget)
			line += lipgloss.NewStyle().
				Foreground(styles.WarningColor).
				Render(" | " + alert)
		}
	}

	return zone.Mark(rowZoneID(index), truncate.String(line, uint(m.width)))
}

// renderStatusLine shows the latest bus log entry; warnings and errors
// render in the error style.
func (m Model) renderStatusLine() string {
	if m.lastLog == nil {
		return ""
	}
	style := lipgloss.NewStyle().Foreground(styles.TextPrimaryColor)
	if m.lastLog.Level >= log.LevelWarn {
		style = styles.ErrorText()
	}
	return truncate.StringWithTail(style.Render(m.lastLog.Message), uint(m.width), "…")
}

// renderFooter shows worker counts, bus delivery counters, and key hints.
func (m Model) renderFooter() string {
	recording := 0
	for _, rec := range m.records {
		if rec.Status == monitor.StatusRecording {
			recording++
		}
	}

	parts := []string{
		fmt.Sprintf("%d workers · %d recording", len(m.records), recording),
		fmt.Sprintf("bus pub %d · del %d · drop %d",
			m.statsSnap.Published, m.statsSnap.Delivered, m.statsSnap.Dropped),
		"? help · q quit",
	}
	footer := styles.StatusBar().Render(strings.Join(parts, "    "))
	return truncate.String(footer, uint(m.width))
}

// banner maps a record status to its banner text and color.
func banner(status monitor.Status) (string, lipgloss.AdaptiveColor) {
	switch status {
	case monitor.StatusSuccess:
		return "!! SUCCESS !!", styles.SuccessColor
	case monitor.StatusError:
		return "#### ERROR ####", styles.ErrorColor
	default:
		return "-- RECORDING --", styles.RecordingColor
	}
}

func rowZoneID(index int) string {
	return fmt.Sprintf("worker-row-%d", index)
}

// truncateGraphemes clips s to at most width terminal cells without
// splitting grapheme clusters, appending an ellipsis when it cuts.
func truncateGraphemes(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}

	var b strings.Builder
	used := 0
	state := -1
	for len(s) > 0 {
		cluster, rest, _, newState := uniseg.StepString(s, state)
		w := runewidth.StringWidth(cluster)
		if used+w > width-1 {
			break
		}
		b.WriteString(cluster)
		used += w
		s = rest
		state = newState
	}
	return b.String() + "…"
}
