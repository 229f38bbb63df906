package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

type gatewayStatus struct {
	Name             string  `json:"name"`
	Connected        bool    `json:"connected"`
	ErrorCount       int     `json:"errorCount"`
	LastError        string  `json:"lastError"`
	AvgLatencyMs     float64 `json:"avgLatencyMs"`
	OrdersCount      int64   `json:"ordersCount"`
	SuccessfulOrders int64   `json:"successfulOrders"`
	FailedOrders     int64   `json:"failedOrders"`
}

type gatewayStats struct {
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
	P95LatencyMs  float64 `json:"p95LatencyMs"`
	SuccessRate   float64 `json:"successRate"`
	ErrorRate     float64 `json:"errorRate"`
	UptimePercent float64 `json:"uptimePercent"`
}

type alertItem struct {
	RuleName    string  `json:"ruleName"`
	GatewayName string  `json:"gatewayName"`
	Level       string  `json:"level"`
	Message     string  `json:"message"`
	MetricValue float64 `json:"metricValue"`
}

type statusResponse struct {
	Gateways map[string]gatewayStatus `json:"gateways"`
	Primary  string                   `json:"primary"`
}

type metricsResponse struct {
	Gateways    map[string]gatewayStats `json:"gateways"`
	BestLatency string                  `json:"bestLatency"`
}

type alertsResponse struct {
	Active []alertItem `json:"active"`
}

type snapshot struct {
	status  statusResponse
	metrics metricsResponse
	alerts  alertsResponse
	err     error
	fetched time.Time
}

type tickMsg time.Time

type model struct {
	api      *resty.Client
	interval time.Duration
	snap     snapshot
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetch pulls all three ops endpoints in one command.
func (m model) fetch() tea.Msg {
	var snap snapshot
	snap.fetched = time.Now()

	if _, err := m.api.R().SetResult(&snap.status).Get("/api/status"); err != nil {
		snap.err = err
		return snap
	}
	if _, err := m.api.R().SetResult(&snap.metrics).Get("/api/metrics"); err != nil {
		snap.err = err
		return snap
	}
	if _, err := m.api.R().SetResult(&snap.alerts).Get("/api/alerts"); err != nil {
		snap.err = err
	}
	return snap
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())
	case snapshot:
		m.snap = msg
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("gogate monitor"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  (q quit, r refresh)\n\n",
		m.snap.fetched.Format("15:04:05"))))

	if m.snap.err != nil {
		b.WriteString(downStyle.Render(fmt.Sprintf("ops API unreachable: %v\n", m.snap.err)))
		return b.String()
	}

	names := make([]string, 0, len(m.snap.status.Gateways))
	for name := range m.snap.status.Gateways {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows strings.Builder
	rows.WriteString(titleStyle.Render(fmt.Sprintf("%-12s %-9s %-9s %-9s %-9s %-8s %-8s",
		"GATEWAY", "STATE", "AVG(ms)", "P95(ms)", "SUCC%", "UP%", "ORDERS")))
	rows.WriteString("\n")

	for _, name := range names {
		st := m.snap.status.Gateways[name]
		ms := m.snap.metrics.Gateways[name]

		state := downStyle.Render("DOWN")
		if st.Connected {
			state = upStyle.Render("UP")
		}
		label := name
		if name == m.snap.status.Primary {
			label = name + "*"
		}

		rows.WriteString(fmt.Sprintf("%-12s %-18s %-9.1f %-9.1f %-9.1f %-8.1f %-8d\n",
			label, state, ms.AvgLatencyMs, ms.P95LatencyMs, ms.SuccessRate,
			ms.UptimePercent, st.OrdersCount))
	}
	if m.snap.status.Primary != "" {
		rows.WriteString(dimStyle.Render(fmt.Sprintf("\n* primary   best latency: %s\n",
			m.snap.metrics.BestLatency)))
	}
	b.WriteString(borderStyle.Render(rows.String()))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("ACTIVE ALERTS"))
	b.WriteString("\n")
	if len(m.snap.alerts.Active) == 0 {
		b.WriteString(dimStyle.Render("  none\n"))
	}
	for _, a := range m.snap.alerts.Active {
		style := warnStyle
		if a.Level == "critical" {
			style = downStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("  [%s] %s\n", strings.ToUpper(a.Level), a.Message)))
	}

	return b.String()
}

func main() {
	apiURL := flag.String("api", "http://127.0.0.1:8090", "ops API base URL")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	api := resty.New().
		SetBaseURL(*apiURL).
		SetTimeout(3 * time.Second)

	p := tea.NewProgram(model{api: api, interval: *interval}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(1)
	}
}
