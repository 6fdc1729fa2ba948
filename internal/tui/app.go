// Package tui provides the interactive duty board for shiftwatch.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/shiftwatch/internal/api"
)

// RefreshInterval is how often the board reloads on its own.
const RefreshInterval = 30 * time.Second

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

var dayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// App is the main TUI application model.
type App struct {
	client       *Client
	days         list.Model
	spinner      spinner.Model
	now          *api.NowView
	week         [][]api.ShiftView
	day          int
	loaded       bool
	loading      bool
	daemonOnline bool
	message      string
	width        int
	height       int
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	return &App{
		client:  NewClient(apiAddr),
		days:    newDayList(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(primaryColor))),
		loading: true,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		a.fetchBoard(),
		a.checkDaemon(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "left", "h":
			a.showDay(a.day - 1)
			return a, nil
		case "right", "l":
			a.showDay(a.day + 1)
			return a, nil
		case "r":
			a.loading = true
			return a, tea.Batch(a.fetchBoard(), a.checkDaemon(), a.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.days.SetSize(msg.Width-4, max(msg.Height-10, 5))
		return a, nil

	case boardLoadedMsg:
		a.loading = false
		a.now = msg.now
		a.week = msg.week
		a.message = ""
		if !a.loaded {
			a.loaded = true
			a.day = msg.now.Weekday
		}
		a.showDay(a.day)
		return a, nil

	case daemonStatusMsg:
		a.daemonOnline = msg.online
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.fetchBoard(), a.checkDaemon(), a.tickCmd())

	case spinner.TickMsg:
		if !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
		return a, nil
	}

	var cmd tea.Cmd
	a.days, cmd = a.days.Update(msg)
	return a, cmd
}

// showDay selects a working day, clamped to Monday..Friday, and loads its
// shifts into the list.
func (a *App) showDay(day int) {
	if day < 0 {
		day = 0
	}
	if day > len(dayNames)-1 {
		day = len(dayNames) - 1
	}
	a.day = day

	var shifts []api.ShiftView
	if day < len(a.week) {
		shifts = a.week[day]
	}
	a.days.Title = fmt.Sprintf("%s: %d shifts", dayNames[day], len(shifts))
	a.days.SetItems(dayItems(shifts))
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	b.WriteString(titleStyle.Render("shiftwatch duty board") + "  " + daemonStatus + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	b.WriteString(a.renderNow() + "\n")
	b.WriteString(a.renderTabs() + "\n")

	if a.loading && !a.loaded {
		b.WriteString("\n  " + a.spinner.View() + " Loading board...\n")
	} else {
		b.WriteString(a.days.View() + "\n")
	}

	if a.message != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render(a.message))
	}
	b.WriteString("\n")

	status := " ←→:day | ↑↓:nav | r:refresh | q:quit"
	if a.loading && a.loaded {
		status = " " + a.spinner.View() + status
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(status))
	return b.String()
}

func (a *App) renderNow() string {
	if a.now == nil {
		return panelStyle.Render("No data yet")
	}

	up := a.now.Upcoming
	state := lipgloss.NewStyle().Foreground(mutedColor).Render("upcoming")
	if a.now.Active {
		state = lipgloss.NewStyle().Foreground(warningColor).Bold(true).Render("check-in open")
	}

	var pair []string
	for _, m := range a.now.Pair {
		pair = append(pair, m.Nick)
	}
	duty := "nobody"
	if len(pair) > 0 {
		duty = strings.Join(pair, ", ")
	}

	lines := []string{
		fmt.Sprintf("%s  %s", a.now.Datetime.Format("Mon 2006-01-02"), a.now.Time),
		fmt.Sprintf("%s %s-%s  %s", up.Label, up.Checkin.Format("15:04"), up.Checkout.Format("15:04"), state),
		"On duty: " + duty,
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderTabs() string {
	tabs := make([]string, len(dayNames))
	for i, name := range dayNames {
		if i == a.day {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = tabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// --- Commands ---

func (a *App) fetchBoard() tea.Cmd {
	return func() tea.Msg {
		now, err := a.client.Now()
		if err != nil {
			return errMsg{err}
		}
		week, err := a.client.Week()
		if err != nil {
			return errMsg{err}
		}
		return boardLoadedMsg{now: now, week: week}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		return daemonStatusMsg{online: a.client.Healthy()}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Messages
type errMsg struct {
	err error
}

type boardLoadedMsg struct {
	now  *api.NowView
	week [][]api.ShiftView
}

type daemonStatusMsg struct {
	online bool
}

type tickMsg time.Time
