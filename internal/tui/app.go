package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/example/wayfinder/internal/models"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	statusDiscovered = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusExploring  = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // Blue
	statusExplored   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusTesting    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // Magenta
	statusTested     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

var filters = []string{"", "discovered", "exploring", "explored", "testing", "tested", "blocked"}
var filterLabels = []string{"all", "discovered", "exploring", "explored", "testing", "tested", "blocked"}

func formatStatus(status models.RouteStatus) string {
	switch status {
	case models.StatusDiscovered:
		return statusDiscovered.Render("● discovered")
	case models.StatusExploring:
		return statusExploring.Render("● exploring")
	case models.StatusExplored:
		return statusExplored.Render("● explored")
	case models.StatusTesting:
		return statusTesting.Render("● testing")
	case models.StatusTested:
		return statusTested.Render("● tested")
	case models.StatusBlocked:
		return statusBlocked.Render("● blocked")
	default:
		return string(status)
	}
}

// Model is the watch dashboard: a route table over /routes plus a /stats
// summary, refreshed on a timer.
type Model struct {
	client      *Client
	table       table.Model
	stats       *Stats
	userLevel   string
	filterIndex int
	err         error
	lastUpdate  time.Time
	width       int
	height      int
}

// NewModel creates the dashboard model. userLevel narrows the view; empty
// shows every identity.
func NewModel(client *Client, userLevel string) *Model {
	columns := []table.Column{
		{Title: "User Level", Width: 12},
		{Title: "Route", Width: 40},
		{Title: "Status", Width: 14},
		{Title: "Audit", Width: 10},
		{Title: "Test", Width: 10},
		{Title: "Bugs", Width: 6},
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	tbl.SetStyles(styles)

	return &Model{
		client:    client,
		table:     tbl,
		userLevel: userLevel,
	}
}

type refreshMsg struct {
	routes []models.Route
	stats  *Stats
}

type errMsg struct {
	err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) refresh() tea.Cmd {
	status := filters[m.filterIndex]
	return func() tea.Msg {
		routes, err := m.client.ListRoutes(m.userLevel, status)
		if err != nil {
			return errMsg{err}
		}
		stats, err := m.client.GetStats(m.userLevel)
		if err != nil {
			return errMsg{err}
		}
		return refreshMsg{routes: routes, stats: stats}
	}
}

// Init starts the refresh loop.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(msg.Height - 6)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case refreshMsg:
		m.err = nil
		m.stats = msg.stats
		m.lastUpdate = time.Now()

		rows := make([]table.Row, len(msg.routes))
		for i, r := range msg.routes {
			rows[i] = table.Row{
				r.UserLevel,
				r.Route,
				formatStatus(r.Status),
				r.AuditID,
				r.TestID,
				fmt.Sprintf("%d", len(r.BugIDs)),
			}
		}
		m.table.SetRows(rows)
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		case "f":
			m.filterIndex = (m.filterIndex + 1) % len(filters)
			return m, m.refresh()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the dashboard.
func (m *Model) View() string {
	var b strings.Builder

	title := "Wayfinder Campaign"
	if m.userLevel != "" {
		title += " / " + m.userLevel
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if m.stats != nil {
		parts := make([]string, 0, len(m.stats.Counts)+1)
		parts = append(parts, fmt.Sprintf("total %d", m.stats.Total))
		for _, s := range []models.RouteStatus{
			models.StatusDiscovered, models.StatusExploring, models.StatusExplored,
			models.StatusTesting, models.StatusTested, models.StatusBlocked,
		} {
			if n := m.stats.Counts[s]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", s, n))
			}
		}
		b.WriteString(statsStyle.Render(strings.Join(parts, " · ")))
		b.WriteString("\n\n")
	}

	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"[%s] f: filter · r: refresh · q: quit · updated %s",
		filterLabels[m.filterIndex], m.lastUpdate.Format("15:04:05"))))
	return b.String()
}

// Run starts the dashboard against the given API address.
func Run(apiURL, userLevel string) error {
	client := NewClient(apiURL)
	if ok, err := client.CheckHealth(); err != nil || !ok {
		return fmt.Errorf("daemon not reachable at %s (is `wayfinder daemon` running?)", apiURL)
	}

	p := tea.NewProgram(NewModel(client, userLevel), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
