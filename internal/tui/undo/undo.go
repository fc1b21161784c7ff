package undo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Digital-Shane/media-sidecar/internal/log"
	"github.com/Digital-Shane/media-sidecar/internal/tui/theme"
	"github.com/Digital-Shane/treeview"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var undoSessionFn = log.UndoSession

// maxPreviewFiles bounds the artifact list in the details panel.
const maxPreviewFiles = 8

// UndoCompleteMsg is emitted when undo operation completes.
type UndoCompleteMsg struct {
	summary      log.SessionSummary
	successCount int
	errorCount   int
	errs         []error
}

func (u UndoCompleteMsg) SuccessCount() int { return u.successCount }

func (u UndoCompleteMsg) ErrorCount() int { return u.errorCount }

// UndoModel lists saved sessions and removes the files of the chosen one.
type UndoModel struct {
	*treeview.TuiTreeModel[log.SessionSummary]
	confirmingUndo bool
	undoInProgress bool
	undoComplete   bool
	result         UndoCompleteMsg
	width          int
	height         int
	splitRatio     float64
	theme          theme.Theme

	detailsViewport *viewport.Model
	detailsFocused  bool
}

// Option configures an UndoModel during construction.
type Option func(*UndoModel)

// WithTheme overrides the default theme for the undo TUI.
func WithTheme(th theme.Theme) Option {
	return func(m *UndoModel) {
		m.theme = th
	}
}

// NewSessionTree builds the flat tree of sessions shown in the list.
func NewSessionTree(summaries []log.SessionSummary, th theme.Theme) *treeview.Tree[log.SessionSummary] {
	nodes := make([]*treeview.Node[log.SessionSummary], 0, len(summaries))
	for _, s := range summaries {
		md := s.Session.Metadata
		command := "?"
		if len(md.CommandArgs) > 0 {
			command = md.CommandArgs[0]
		}
		name := fmt.Sprintf("%s %s - %s (%d files)", th.Icon("stats"), command, s.RelativeTime, md.Processed)
		nodes = append(nodes, treeview.NewNode(md.SessionID, name, s))
	}
	return treeview.NewTree(nodes)
}

// NewUndoModel creates a new undo selection model
func NewUndoModel(tree *treeview.Tree[log.SessionSummary], opts ...Option) *UndoModel {
	m := &UndoModel{
		width:      80,
		height:     24,
		splitRatio: 0.5,
	}

	initOpts := append([]Option{WithTheme(theme.Default())}, opts...)
	for _, opt := range initOpts {
		opt(m)
	}

	keyMap := treeview.DefaultKeyMap()
	keyMap.SearchStart = []string{}
	keyMap.Reset = []string{}

	treeWidth := m.treeWidth()
	m.TuiTreeModel = treeview.NewTuiTreeModel(tree,
		treeview.WithTuiWidth[log.SessionSummary](treeWidth),
		treeview.WithTuiHeight[log.SessionSummary](m.height-4),
		treeview.WithTuiAllowResize[log.SessionSummary](true),
		treeview.WithTuiDisableNavBar[log.SessionSummary](true),
		treeview.WithTuiKeyMap[log.SessionSummary](keyMap),
	)

	vp := viewport.New(m.width-treeWidth-6, m.height-8)
	m.detailsViewport = &vp
	return m
}

func (m *UndoModel) treeWidth() int {
	return int(float64(m.width)*m.splitRatio) - 2
}

func (m *UndoModel) Init() tea.Cmd {
	return nil
}

func (m *UndoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		treeWidth := m.treeWidth()
		treeModel, cmd := m.TuiTreeModel.Update(tea.WindowSizeMsg{Width: treeWidth, Height: m.height - 4})
		m.TuiTreeModel = treeModel.(*treeview.TuiTreeModel[log.SessionSummary])

		m.detailsViewport.Width = m.width - treeWidth - 6
		m.detailsViewport.Height = m.height - 8
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit

		case "tab":
			m.detailsFocused = !m.detailsFocused
			return m, nil

		case "up", "down", "pgup", "pgdown":
			if m.detailsFocused {
				m.scrollDetails(msg.String())
				return m, nil
			}

		case "enter":
			if m.undoComplete || m.undoInProgress {
				return m, nil
			}
			if !m.confirmingUndo {
				m.confirmingUndo = true
				return m, nil
			}
			if focused := m.TuiTreeModel.Tree.GetFocusedNode(); focused != nil {
				m.undoInProgress = true
				m.confirmingUndo = false
				return m, m.performUndo(*focused.Data())
			}
			return m, nil

		case "n", "N":
			m.confirmingUndo = false
			return m, nil
		}

	case UndoCompleteMsg:
		m.undoInProgress = false
		m.undoComplete = true
		m.result = msg
		return m, nil
	}

	if !m.confirmingUndo && !m.undoInProgress && !m.undoComplete && !m.detailsFocused {
		treeModel, cmd := m.TuiTreeModel.Update(msg)
		m.TuiTreeModel = treeModel.(*treeview.TuiTreeModel[log.SessionSummary])
		return m, cmd
	}
	return m, nil
}

func (m *UndoModel) scrollDetails(key string) {
	switch key {
	case "up":
		m.detailsViewport.ScrollUp(1)
	case "down":
		m.detailsViewport.ScrollDown(1)
	case "pgup":
		m.detailsViewport.HalfPageUp()
	case "pgdown":
		m.detailsViewport.HalfPageDown()
	}
}

func (m *UndoModel) View() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderStyle().Width(m.width).Render("Media Sidecar Undo Sessions"))
	b.WriteByte('\n')

	switch {
	case m.undoComplete:
		text := fmt.Sprintf("Undo completed: %d files removed", m.result.successCount)
		if m.result.errorCount > 0 {
			text = fmt.Sprintf("Undo completed: %d removed, %d failed", m.result.successCount, m.result.errorCount)
		}
		b.WriteString(m.theme.StatusBarStyle().Width(m.width).Render(text))
		b.WriteByte('\n')
		for _, err := range m.result.errs {
			b.WriteString(m.theme.MutedStyle().Render(truncate(err.Error(), m.width)))
			b.WriteByte('\n')
		}
		b.WriteString(m.centeredMuted("Press 'Ctrl+C' or 'esc' to exit"))

	case m.undoInProgress:
		b.WriteString(m.theme.StatusBarStyle().Width(m.width).Render("Removing files..."))
		b.WriteByte('\n')

	case m.confirmingUndo:
		if focused := m.TuiTreeModel.Tree.GetFocusedNode(); focused != nil {
			b.WriteString(m.renderConfirmation(*focused.Data()))
		}

	default:
		b.WriteString(m.renderMainView())
	}
	return b.String()
}

func (m *UndoModel) centeredMuted(text string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Align(lipgloss.Center).
		Foreground(m.theme.Colors().Muted).
		Render(text)
}

func (m *UndoModel) renderMainView() string {
	leftWidth := int(float64(m.width) * m.splitRatio)
	rightWidth := m.width - leftWidth
	colors := m.theme.Colors()

	left := m.panel(leftWidth, m.height-3, colors.Primary).Render(
		m.panelTitle("Sessions", leftWidth, colors.Primary) + "\n" + m.TuiTreeModel.View(),
	)

	if focused := m.TuiTreeModel.Tree.GetFocusedNode(); focused != nil {
		m.detailsViewport.SetContent(m.formatSessionDetails(*focused.Data(), m.detailsViewport.Width))
	} else {
		m.detailsViewport.SetContent(m.theme.MutedStyle().Italic(true).Render("Select a session to view details"))
	}
	title := "Session Details"
	if m.detailsViewport.TotalLineCount() > m.detailsViewport.Height {
		title += " [Tab to scroll]"
	}
	right := m.panel(rightWidth, m.height-3, colors.Secondary).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.panelTitle(title, rightWidth, colors.Secondary), "", m.detailsViewport.View()),
	)

	focus := "Tab: Details Focus | "
	if m.detailsFocused {
		focus = "Tab: List Focus | "
	}
	instruction := lipgloss.NewStyle().
		Italic(true).
		Width(m.width).
		Align(lipgloss.Center).
		Foreground(colors.Muted).
		Render(focus + "↑↓ Navigate | Enter: Undo | Esc/Ctrl+C: Quit")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right) + "\n" + instruction
}

func (m *UndoModel) panel(width, height int, border lipgloss.Color) lipgloss.Style {
	style := m.theme.PanelStyle().BorderForeground(border)
	if width > 0 {
		style = style.Width(max(width-style.GetHorizontalFrameSize(), 0))
	}
	if height > 0 {
		style = style.Height(max(height-style.GetVerticalFrameSize(), 0))
	}
	return style.Padding(0, 1)
}

func (m *UndoModel) panelTitle(text string, width int, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(color).
		Width(max(width-4, 0)).
		Align(lipgloss.Center).
		Render(text)
}

// formatSessionDetails describes a session and the files it wrote.
func (m *UndoModel) formatSessionDetails(summary log.SessionSummary, width int) string {
	var b strings.Builder
	md := summary.Session.Metadata
	colors := m.theme.Colors()
	label := lipgloss.NewStyle().Bold(true).Foreground(colors.Accent)
	value := lipgloss.NewStyle().Foreground(colors.Primary)
	indent := lipgloss.NewStyle().MarginLeft(2)

	line := func(name, v string) {
		b.WriteString(label.Render(name + ": "))
		b.WriteString(value.Render(v))
		b.WriteByte('\n')
	}

	line("Command", strings.Join(md.CommandArgs, " "))
	line("Time", summary.RelativeTime)
	line("Date", md.Timestamp.Format("2006-01-02 15:04:05"))
	line("Directory", truncate(md.WorkingDir, width-11))
	b.WriteByte('\n')

	b.WriteString(label.Render("Files:"))
	b.WriteByte('\n')
	stats := fmt.Sprintf("Total: %d\nEnriched: %d\nUnmatched: %d\nSkipped: %d\nFailed: %d",
		md.TotalFiles, md.Processed, md.Unmatched, md.Unsupported, md.Failed)
	b.WriteString(indent.Render(value.Render(stats)))
	b.WriteString("\n\n")

	var artifacts []string
	for _, e := range summary.Session.Entries {
		artifacts = append(artifacts, e.Artifacts()...)
	}
	if len(artifacts) > 0 {
		b.WriteString(label.Render("Written:"))
		b.WriteByte('\n')
		shown := artifacts
		if len(shown) > maxPreviewFiles {
			shown = shown[len(shown)-maxPreviewFiles:]
		}
		for _, path := range shown {
			b.WriteString(indent.Render(truncate(m.theme.Icon("processed")+" "+filepath.Base(path), width-4)))
			b.WriteByte('\n')
		}
		if extra := len(artifacts) - len(shown); extra > 0 {
			b.WriteString(indent.Render(m.theme.MutedStyle().Render(fmt.Sprintf("... and %d more", extra))))
			b.WriteByte('\n')
		}
	}

	b.WriteByte('\n')
	b.WriteString(label.Render("Session ID: "))
	b.WriteString(m.theme.MutedStyle().Italic(true).Render(md.SessionID))
	return b.String()
}

func (m *UndoModel) renderConfirmation(summary log.SessionSummary) string {
	md := summary.Session.Metadata
	colors := m.theme.Colors()
	box := m.theme.PanelStyle().
		BorderForeground(colors.Accent).
		Padding(1, 2).
		Width(60).
		Align(lipgloss.Center)

	text := fmt.Sprintf(
		"Confirm Undo\n\n"+
			"Session: %s\n"+
			"Time: %s\n"+
			"Enriched files: %d\n"+
			"Directory: %s\n\n"+
			"This removes every sidecar and poster the session wrote.\n\n"+
			"Press ENTER to confirm or 'n' to cancel",
		strings.Join(md.CommandArgs, " "),
		summary.RelativeTime,
		md.Processed,
		md.WorkingDir)

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height-2).
		Align(lipgloss.Center, lipgloss.Center).
		Render(box.Render(text))
}

func (m *UndoModel) performUndo(summary log.SessionSummary) tea.Cmd {
	return func() tea.Msg {
		successful, failed, errs := undoSessionFn(summary.Session)
		return UndoCompleteMsg{summary: summary, successCount: successful, errorCount: failed, errs: errs}
	}
}

// Result reports the session that was undone, if any, and the counts.
func (m *UndoModel) Result() (log.SessionSummary, int, int, bool) {
	if !m.undoComplete {
		return log.SessionSummary{}, 0, 0, false
	}
	return m.result.summary, m.result.successCount, m.result.errorCount, true
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
