package progress

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Digital-Shane/media-sidecar/internal/core"
	"github.com/Digital-Shane/media-sidecar/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// RunFunc performs the enrichment run, reporting through observer.
type RunFunc func(ctx context.Context, observer func(core.Event)) (core.Summary, error)

// maxRecent bounds the list of recently handled files shown on screen.
const maxRecent = 5

type enrichEventMsg struct {
	event core.Event
	done  bool
}

// EnrichProgressModel shows a progress screen while a run is in flight. The
// run happens on its own goroutine; the model only renders its events.
type EnrichProgressModel struct {
	root string
	run  RunFunc

	summary core.Summary
	current string
	recent  []core.Event
	index   int

	width    int
	height   int
	progress progress.Model
	theme    theme.Theme

	events   chan core.Event
	finished chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	result    core.Summary
	err       error
	canceled  bool
	completed bool
}

// NewEnrichProgressModel creates a model for a run over root.
func NewEnrichProgressModel(root string, run RunFunc, th theme.Theme) *EnrichProgressModel {
	runewidth.DefaultCondition.EastAsianWidth = false
	runewidth.DefaultCondition.StrictEmojiNeutral = true

	gradient := th.ProgressGradient()
	if len(gradient) < 2 {
		colors := th.Colors()
		gradient = []string{string(colors.Primary), string(colors.Accent)}
	}
	p := progress.New(progress.WithGradient(gradient[0], gradient[1]))
	p.Width = 50

	return &EnrichProgressModel{
		root:     root,
		run:      run,
		width:    80,
		height:   16,
		progress: p,
		theme:    th,
		events:   make(chan core.Event, 64),
		finished: make(chan struct{}),
	}
}

// Init starts the run.
func (m *EnrichProgressModel) Init() tea.Cmd {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	go m.runAsync()
	return m.waitForEvent()
}

func (m *EnrichProgressModel) runAsync() {
	defer close(m.finished)
	defer close(m.events)

	m.result, m.err = m.run(m.ctx, func(e core.Event) {
		select {
		case m.events <- e:
		case <-m.ctx.Done():
		}
	})
}

func (m *EnrichProgressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return enrichEventMsg{done: true}
		}
		return enrichEventMsg{event: e}
	}
}

// Update processes Bubble Tea messages.
func (m *EnrichProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = msg.Width - 4
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.canceled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case enrichEventMsg:
		return m.handleEvent(msg)
	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *EnrichProgressModel) handleEvent(msg enrichEventMsg) (tea.Model, tea.Cmd) {
	if msg.done {
		m.completed = true
		m.summary = m.result
		return m, tea.Quit
	}

	e := msg.event
	m.summary = e.Summary
	if e.Kind == core.EventFile {
		m.index = e.Index
		m.current = e.Path
		m.recent = append(m.recent, e)
		if len(m.recent) > maxRecent {
			m.recent = m.recent[len(m.recent)-maxRecent:]
		}
	}

	ratio := 0.0
	if m.summary.Total > 0 {
		ratio = float64(m.index) / float64(m.summary.Total)
	}
	if e.Kind == core.EventFinished {
		ratio = 1
	}
	return m, tea.Batch(m.progress.SetPercent(ratio), m.waitForEvent())
}

// View renders the progress screen.
func (m *EnrichProgressModel) View() string {
	if m.err != nil && m.completed {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	sections := []string{
		m.theme.HeaderStyle().Width(m.width).Render("Enriching Media Library"),
		m.progress.View(),
		fmt.Sprintf("Files: %d/%d", m.index, m.summary.Total),
	}
	if m.current != "" {
		sections = append(sections, "Current: "+truncate(m.relative(m.current), m.width-9))
	}

	stats := []string{
		m.countLine(core.OutcomeProcessed, "Processed", m.summary.Processed),
		m.countLine(core.OutcomeUnmatched, "Unmatched", m.summary.Unmatched),
		m.countLine(core.OutcomeUnsupported, "Skipped", m.summary.Unsupported),
		m.countLine(core.OutcomeFailed, "Failed", m.summary.Failed),
	}
	panel := m.theme.PanelStyle()
	panelWidth := max(m.width-panel.GetHorizontalFrameSize(), 0)
	sections = append(sections, panel.Width(panelWidth).Render(strings.Join(stats, "\n")))

	if len(m.recent) > 0 {
		lines := make([]string, 0, len(m.recent))
		for _, e := range m.recent {
			icon := m.theme.Icon(string(e.Result.Outcome))
			lines = append(lines, m.theme.MutedStyle().Render(
				truncate(fmt.Sprintf("%s %s", icon, m.relative(e.Path)), m.width),
			))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	status := "Enriching... press esc to cancel"
	switch {
	case m.canceled:
		status = "Canceling..."
	case m.completed:
		status = "Done"
	}
	sections = append(sections, m.theme.StatusBarStyle().Width(m.width).Render(status))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *EnrichProgressModel) countLine(outcome core.Outcome, label string, n int) string {
	return fmt.Sprintf("%s %-10s %d", m.theme.Icon(string(outcome)), label+":", n)
}

func (m *EnrichProgressModel) relative(path string) string {
	if rel, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// truncate shortens s to width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// Wait blocks until the run has returned and reports its outcome. It must
// only be called after the program exits.
func (m *EnrichProgressModel) Wait() (core.Summary, error) {
	if m.cancel == nil {
		return core.Summary{}, nil
	}
	<-m.finished
	return m.result, m.err
}

// Canceled reports whether the user quit before the run finished.
func (m *EnrichProgressModel) Canceled() bool { return m.canceled }
