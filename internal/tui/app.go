// Package tui provides the interactive terminal dashboard for live
// session monitoring.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/query"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tmuxStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// dataMsg carries a refreshed session page.
type dataMsg struct {
	page *query.SessionsPage
	err  error
}

type tickMsg struct{}

// App is the root Bubble Tea model.
type App struct {
	facade *query.Facade

	spin    spinner.Model
	loaded  bool
	loading bool
	err     error

	sessions []model.SessionSummary
	width    int
	height   int
}

// NewApp returns the dashboard model over a query facade.
func NewApp(facade *query.Facade) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return App{facade: facade, spin: sp, loading: true}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spin.Tick, a.load())
}

func (a App) load() tea.Cmd {
	return func() tea.Msg {
		page, err := a.facade.Sessions(query.SessionsFilter{Limit: 30})
		return dataMsg{page: page, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		case "r":
			return a, a.load()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case dataMsg:
		a.loading = false
		a.loaded = true
		a.err = msg.err
		if msg.err == nil && msg.page != nil {
			a.sessions = msg.page.Sessions
		}
		return a, tick()

	case tickMsg:
		return a, a.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}
	return a, nil
}

// View implements tea.Model.
func (a App) View() string {
	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(titleStyle.Render("claude-remote"))
	b.WriteString("\n\n")

	if !a.loaded {
		b.WriteString(fmt.Sprintf("  %s loading sessions...\n", a.spin.View()))
		return b.String()
	}
	if a.err != nil {
		b.WriteString("  " + errStyle.Render("error: "+a.err.Error()) + "\n")
		return b.String()
	}

	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("%-10s %-24s %-16s %8s %10s %8s",
		"STATUS", "SLUG", "PROJECT", "MSGS", "TOKENS", "COST")))
	b.WriteString("\n")

	for _, s := range a.sessions {
		status := stoppedStyle.Render("stopped")
		if s.IsRunning && s.IsInTmux {
			status = tmuxStyle.Render("tmux")
		} else if s.IsRunning {
			status = runningStyle.Render("running")
		}

		slug := s.Slug
		if slug == "" {
			slug = s.SessionID
		}
		if len(slug) > 24 {
			slug = slug[:24]
		}
		project := s.Project
		if len(project) > 16 {
			project = project[:16]
		}

		b.WriteString(fmt.Sprintf("  %-19s %-24s %-16s %8d %10s %8s\n",
			status, slug, project, s.MessageCount,
			formatTokens(s.TotalTokens), fmt.Sprintf("$%.2f", s.CostEstimate)))
	}

	if len(a.sessions) == 0 {
		b.WriteString("  " + footerStyle.Render("no sessions indexed yet") + "\n")
	}

	b.WriteString("\n  " + footerStyle.Render("r refresh · q quit") + "\n")
	return b.String()
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
