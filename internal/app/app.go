// Package app is the optional terminal dashboard showing what the daemon
// sees: the player connection, the current file and the last scrobble.
package app

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/mpvtrakt/mpvtrakt/internal/status"
	"github.com/mpvtrakt/mpvtrakt/internal/ui"
)

// Source is where the dashboard reads status from; *status.Hub satisfies it.
type Source interface {
	Current() status.Status
	Subscribe() (<-chan status.Status, func())
}

const maxRecent = 8

type Model struct {
	theme   ui.Theme
	updates <-chan status.Status
	now     func() time.Time

	status   status.Status
	recent   []status.SyncResult
	diag     *Diagnostics
	showDiag bool
	width    int
	height   int
}

type statusMsg status.Status

type tickMsg time.Time

// New subscribes to src and returns the model plus the cancel func for the
// subscription.
func New(src Source, theme ui.Theme) (Model, func()) {
	updates, cancel := src.Subscribe()
	m := Model{
		theme:   theme,
		updates: updates,
		now:     time.Now,
		diag:    NewDiagnostics(time.Now()),
	}
	m = m.apply(src.Current())
	return m, cancel
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.watchStatusCmd(), tickCmd())
}

func (m Model) watchStatusCmd() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.updates
		if !ok {
			return nil
		}
		return statusMsg(s)
	}
}

// tickCmd keeps relative times fresh between status updates.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		return m.apply(status.Status(msg)), m.watchStatusCmd()
	case tickMsg:
		return m, tickCmd()
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "d":
			m.showDiag = !m.showDiag
		}
	}
	return m, nil
}

func (m Model) apply(s status.Status) Model {
	m.diag.Observe(s)
	if s.LastSync != nil && (len(m.recent) == 0 || !m.recent[0].At.Equal(s.LastSync.At)) {
		m.recent = append([]status.SyncResult{*s.LastSync}, m.recent...)
		if len(m.recent) > maxRecent {
			m.recent = m.recent[:maxRecent]
		}
	}
	m.status = s
	return m
}

func (m Model) View() string {
	now := m.now()
	top := m.theme.Title.Render("mpvtrakt") + "  " + m.theme.Connection(m.status.Connection) +
		m.theme.Dim.Render("  "+m.status.IPCPath)

	var main string
	if m.showDiag {
		main = m.diag.Render(m.theme, now)
	} else {
		main = lipgloss.JoinVertical(lipgloss.Left, m.renderPlayback(), "", m.renderRecent(now))
	}
	help := m.theme.Dim.Render("d diagnostics · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, top, "", main, "", help)
}

func (m Model) renderPlayback() string {
	var b strings.Builder
	b.WriteString(m.theme.Accent.Render("Now playing") + "\n")
	s := m.status
	if s.Path == "" {
		b.WriteString(m.theme.Dim.Render("  nothing"))
		return b.String()
	}
	b.WriteString("  " + m.theme.Text.Render(s.Path) + "\n")

	state := "playing"
	if s.Paused != nil && *s.Paused {
		state = "paused"
	}
	line := "  " + state
	if s.PercentPos != nil {
		line += "  " + m.theme.ProgressBar(*s.PercentPos, m.barWidth()) + fmt.Sprintf(" %5.1f%%", *s.PercentPos)
	}
	if s.Duration != nil {
		line += m.theme.Dim.Render(" of " + (time.Duration(*s.Duration) * time.Second).String())
	}
	b.WriteString(line + "\n")
	if s.Stale {
		b.WriteString(m.theme.Warning.Render("  waiting to sync"))
	} else {
		b.WriteString(m.theme.Success.Render("  in sync"))
	}
	return b.String()
}

func (m Model) renderRecent(now time.Time) string {
	var b strings.Builder
	b.WriteString(m.theme.Accent.Render("Recent scrobbles") + "\n")
	if len(m.recent) == 0 {
		b.WriteString(m.theme.Dim.Render("  none yet"))
		return b.String()
	}
	for i, r := range m.recent {
		if i > 0 {
			b.WriteString("\n")
		}
		outcome := m.theme.Success.Render(fmt.Sprintf("%d", r.StatusCode))
		if r.Error != "" {
			outcome = m.theme.Error.Render(r.Error)
		}
		fmt.Fprintf(&b, "  %s %s %5.1f%%  %s  %s",
			m.theme.Action(r.Action), m.theme.Text.Render(r.Title), r.Progress, outcome,
			m.theme.Dim.Render(humanize.RelTime(r.At, now, "ago", "from now")))
	}
	return b.String()
}

func (m Model) barWidth() int {
	if m.width > 60 {
		return min(m.width-30, 50)
	}
	return 20
}
