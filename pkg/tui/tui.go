// Package tui provides a Bubble Tea view of a running download batch.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"modelfetch/pkg/display"
	"modelfetch/pkg/download"
)

// PollInterval is how often the model asks for a state diff.
const PollInterval = 200 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().Faint(true)
)

// Source is the part of a download manager the view needs.
type Source interface {
	LatestState() download.OverallState
	Stop()
}

type tickMsg time.Time

// Model is the Bubble Tea model for a batch.
type Model struct {
	src      Source
	theme    *display.Theme
	spinner  spinner.Model
	progress progress.Model

	records  map[string]download.RecordState
	general  download.GeneralStatus
	summary  string
	stopping bool
	done     bool

	width int
}

// NewModel creates a model over src. The batch must already be started.
func NewModel(src Source) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))

	return Model{
		src:      src,
		theme:    display.DefaultTheme(),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		records:  make(map[string]download.RecordState),
		general:  download.GeneralIdle,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width/3, 10), 50)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.stopping {
				m.stopping = true
				m.src.Stop()
			}
		}
		return m, nil

	case tickMsg:
		m.apply(m.src.LatestState())
		if m.done {
			return m, tea.Quit
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply merges a state diff into the model.
func (m *Model) apply(st download.OverallState) {
	for id, r := range st.Records {
		m.records[id] = r
	}
	m.general = st.GeneralStatus
	m.summary = st.Exception
	switch st.GeneralStatus {
	case download.GeneralCompleted, download.GeneralError, download.GeneralCancelled:
		m.done = true
	}
}

// State returns the accumulated view of the batch.
func (m Model) State() download.OverallState {
	records := make(map[string]download.RecordState, len(m.records))
	for id, r := range m.records {
		records[id] = r.Clone()
	}
	return download.OverallState{GeneralStatus: m.general, Records: records, Exception: m.summary}
}

func (m Model) View() string {
	t := m.theme
	var b strings.Builder

	header := titleStyle.Render("modelfetch")
	status := t.GeneralStyle(m.general).Render(string(m.general))
	if m.done {
		b.WriteString(fmt.Sprintf("%s  %s\n", header, status))
	} else {
		b.WriteString(fmt.Sprintf("%s  %s %s\n", header, m.spinner.View(), status))
	}

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rows []string
	for _, id := range ids {
		rows = append(rows, m.renderRecord(id, m.records[id]))
	}
	if len(rows) == 0 {
		rows = append(rows, t.Dim.Render("waiting for state"))
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	if m.summary != "" {
		b.WriteString(t.Red.Render(m.summary) + "\n")
	}
	switch {
	case m.done:
	case m.stopping:
		b.WriteString(footerStyle.Render("stopping, waiting for transfers to wind down") + "\n")
	default:
		b.WriteString(footerStyle.Render("q: stop") + "\n")
	}
	return b.String()
}

func (m Model) renderRecord(id string, r download.RecordState) string {
	t := m.theme
	line := fmt.Sprintf("%-16s %s", id, t.StatusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)))
	if r.Filename != "" {
		line += " " + r.Filename
	}

	if p := r.Progress; p != nil && r.Status == download.StatusInProgress {
		if p.BytesTotal > 0 {
			line += "\n  " + m.progress.ViewAs(p.Fraction())
		}
		line += " " + p.Amount()
		if rate := p.Rate(); rate != "" {
			line += " " + t.Dim.Render(rate)
		}
	}
	if p := r.PreviewProgress; p != nil && r.PreviewException == "" && p.BytesTotal > 0 && p.BytesReady < p.BytesTotal {
		line += fmt.Sprintf("\n  preview %d%%", p.Percent())
	}
	if r.Exception != "" {
		line += "\n  " + t.Red.Render(r.Exception)
	}
	if r.PreviewException != "" {
		line += "\n  " + t.Yellow.Render("preview: "+r.PreviewException)
	}
	return line
}

// Run shows src until the batch reaches a final status and returns the
// accumulated state. Cancelling ctx stops the batch.
func Run(ctx context.Context, src Source) (download.OverallState, error) {
	p := tea.NewProgram(NewModel(src), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		src.Stop()
		return download.OverallState{}, fmt.Errorf("tui: %w", err)
	}
	return final.(Model).State(), nil
}
