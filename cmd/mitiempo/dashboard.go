package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mitiempo/mitiempo/internal/config"
	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/mitiempo/mitiempo/internal/tracker"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive terminal dashboard",
	Long:  `Live terminal dashboard showing running activities and daily goal progress. Keys 1-4 start and stop activities.`,
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	goalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7DC6F"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	footStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// activityKeys maps dashboard keys to activity kinds.
var activityKeys = map[string]storage.ActivityKind{
	"1": storage.ActivityTransport,
	"2": storage.ActivityStudy,
	"3": storage.ActivityWalking,
	"4": storage.ActivitySport,
}

type dashboardModel struct {
	engine      *tracker.Engine
	goalMinutes int
	width       int
	height      int
	err         error
}

func (m dashboardModel) Init() tea.Cmd {
	return tickCmd()
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		if kind, ok := activityKeys[key]; ok {
			m.err = m.toggle(kind)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

// toggle starts the kind if idle, stops it if running.
func (m dashboardModel) toggle(kind storage.ActivityKind) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if m.engine.Snapshot().Activity(kind).Active {
		return m.engine.StopActivity(ctx, kind)
	}
	return m.engine.StartActivity(ctx, kind)
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	snap := m.engine.Snapshot()

	header := headerStyle.Width(m.width).Render(
		fmt.Sprintf("MiTiempo - %s", snap.Date),
	)

	var rows []string
	var totalMillis int64
	for i, kind := range storage.AllActivityKinds() {
		st := snap.Activity(kind)
		totalMillis += st.AccumulatedTodayMillis + st.LiveElapsedMillis

		label := fmt.Sprintf("[%d] %-10s", i+1, kind)
		if st.Active {
			rows = append(rows, activeStyle.Render(fmt.Sprintf(
				"%s RUNNING %s  (today %s)",
				label,
				formatMillis(st.LiveElapsedMillis),
				formatMinutes((st.AccumulatedTodayMillis+st.LiveElapsedMillis)/60000),
			)))
		} else {
			rows = append(rows, idleStyle.Render(fmt.Sprintf(
				"%s idle             (today %s)",
				label,
				formatMinutes(st.AccumulatedTodayMillis/60000),
			)))
		}
	}

	activitiesBox := boxStyle.Width(m.width - 4).Render(strings.Join(rows, "\n"))

	totalMinutes := totalMillis / 60000
	ratio := 0.0
	if m.goalMinutes > 0 {
		ratio = float64(totalMinutes) / float64(m.goalMinutes)
		if ratio > 1 {
			ratio = 1
		}
	}
	barWidth := m.width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	goalBox := boxStyle.Width(m.width - 4).Render(fmt.Sprintf(
		"DAILY GOAL\n%s %d%%\n%s",
		progressBar(ratio, barWidth),
		int(ratio*100),
		goalStyle.Render(fmt.Sprintf("%s of %dm", formatMinutes(totalMinutes), m.goalMinutes)),
	))

	footer := footStyle.Width(m.width).Render("1-4 toggle activity • q quit")
	if m.err != nil {
		footer = footStyle.Width(m.width).Render(fmt.Sprintf("error: %v", m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, activitiesBox, goalBox, footer)
}

func formatMillis(millis int64) string {
	d := time.Duration(millis) * time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	engine := tracker.New(store.Intervals(), tracker.Config{
		TickInterval:      parseDuration(cfg.Tracking.TickInterval, time.Second),
		ReconcileInterval: parseDuration(cfg.Tracking.ReconcileInterval, 2*time.Second),
	}, tracker.RealClock{}, zerolog.Nop())
	if err := engine.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start tracking engine: %w", err)
	}
	defer engine.Close()

	m := dashboardModel{
		engine:      engine,
		goalMinutes: cfg.Tracking.DailyGoalMinutes,
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
