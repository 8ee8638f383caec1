// Package tui provides the live dashboard for watching a scenario run:
// active strategy, ready queue, sampled load, switch history and
// adaptation advice, with keys to force switches by hand.
package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/microkernel-labs/schedswap/internal/adapt"
	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/microkernel-labs/schedswap/internal/migrate"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/sim"
	"github.com/microkernel-labs/schedswap/internal/tui/styles"
)

// queueRows is how many ready tasks the queue panel shows.
const queueRows = 8

// ipcBarCeiling normalizes the IPC rate bar; rates at or above this fill it.
const ipcBarCeiling = 2000

// tickMsg drives the simulation forward one frame.
type tickMsg time.Time

// Model is the Bubbletea model for the dashboard.
type Model struct {
	runner *sim.Runner
	cfg    *config.Config

	ticksPerFrame uint64
	refresh       time.Duration
	migStrategy   migrate.Strategy

	cpuBar  progress.Model
	ipcBar  progress.Model
	history table.Model

	width   int
	height  int
	paused  bool
	done    bool
	status  string
	quitted bool
}

// New creates a dashboard model for the given runner.
func New(runner *sim.Runner, cfg *config.Config) Model {
	if cfg == nil {
		cfg = config.Default()
	}

	refresh := cfg.TUI.Refresh()
	// One tick is one virtual millisecond. Speed scales virtual time
	// against wall time; zero runs real-time.
	ticksPerFrame := uint64(cfg.TUI.RefreshMs)
	if cfg.Sim.Speed > 0 {
		ticksPerFrame = uint64(float64(cfg.TUI.RefreshMs) * cfg.Sim.Speed)
	}
	if ticksPerFrame == 0 {
		ticksPerFrame = 1
	}

	migStrategy, err := migrate.ParseStrategy(cfg.Switch.MigrationStrategy)
	if err != nil {
		migStrategy = migrate.PreserveOrder
	}

	cpuBar := progress.New(progress.WithDefaultGradient())
	ipcBar := progress.New(progress.WithDefaultGradient())
	cpuBar.Width = 30
	ipcBar.Width = 30

	cols := []table.Column{
		{Title: "From", Width: 16},
		{Title: "To", Width: 16},
		{Title: "Reason", Width: 18},
		{Title: "Tasks", Width: 5},
		{Title: "µs", Width: 6},
		{Title: "Result", Width: 11},
	}
	historyStyles := table.DefaultStyles()
	historyStyles.Header = historyStyles.Header.
		Bold(true).
		Foreground(styles.SecondaryColor)
	historyStyles.Selected = lipgloss.NewStyle()
	history := table.New(
		table.WithColumns(cols),
		table.WithHeight(cfg.TUI.HistoryRows),
		table.WithStyles(historyStyles),
	)

	return Model{
		runner:        runner,
		cfg:           cfg,
		ticksPerFrame: ticksPerFrame,
		refresh:       refresh,
		migStrategy:   migStrategy,
		cpuBar:        cpuBar,
		ipcBar:        ipcBar,
		history:       history,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitted = true
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			return m, nil
		case "e":
			m.evaluate()
			return m, nil
		case "1":
			m.switchTo(sched.StrategyRoundRobin)
			return m, nil
		case "2":
			m.switchTo(sched.StrategyStaticPriority)
			return m, nil
		case "3":
			m.switchTo(sched.StrategyEDF)
			return m, nil
		}
		return m, nil

	case tickMsg:
		if m.paused || m.done {
			return m, m.tick()
		}
		for i := uint64(0); i < m.ticksPerFrame && m.runner.Tick() < m.runner.Duration(); i++ {
			if err := m.runner.Step(); err != nil {
				m.status = styles.Error.Render(err.Error())
				m.done = true
				break
			}
		}
		if m.runner.Tick() >= m.runner.Duration() {
			m.done = true
		}
		m.history.SetRows(m.historyRows())
		return m, m.tick()
	}

	return m, nil
}

// evaluate runs one adaptation evaluation by hand.
func (m *Model) evaluate() {
	rec, err := m.runner.Adapter().Evaluate(adapt.TriggerManual)
	switch {
	case err != nil:
		m.status = styles.Error.Render("evaluate: " + err.Error())
	case rec == nil:
		m.status = styles.Muted.Render("evaluate: current strategy is already optimal")
	default:
		m.status = fmt.Sprintf("recommend %s (confidence %d): %s",
			styles.Primary.Render(rec.Strategy.String()), rec.Confidence, rec.Result.Reason)
	}
}

// switchTo forces a switch to the given strategy.
func (m *Model) switchTo(target sched.StrategyID) {
	if m.runner.Core().ActiveID() == target {
		m.status = styles.Muted.Render(target.String() + " is already active")
		return
	}
	rec, err := m.runner.Controller().Switch(target, m.migStrategy, "operator")
	if err != nil {
		m.status = styles.Error.Render("switch: " + err.Error())
		return
	}
	m.status = fmt.Sprintf("switched %s -> %s (%d tasks, %dµs)",
		rec.From.String(), styles.Primary.Render(rec.To.String()), rec.TasksMoved, rec.DurationMicros)
}

func (m Model) historyRows() []table.Row {
	records := m.runner.Controller().History()
	limit := m.cfg.TUI.HistoryRows
	if len(records) > limit {
		records = records[len(records)-limit:]
	}

	rows := make([]table.Row, 0, len(records))
	// Latest first.
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.RolledBack {
				result = "rolled back"
			}
		}
		rows = append(rows, table.Row{
			r.From.String(),
			r.To.String(),
			r.Reason,
			strconv.Itoa(r.TasksMoved),
			strconv.FormatUint(r.DurationMicros, 10),
			result,
		})
	}
	return rows
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitted {
		return ""
	}

	header := m.viewHeader()
	load := m.viewLoad()
	queue := m.viewQueue()
	history := styles.Panel.Render(
		styles.PanelTitle.Render("Switch history") + "\n" + m.history.View())
	advice := m.viewAdvice()
	help := m.viewHelp()

	top := lipgloss.JoinHorizontal(lipgloss.Top, load, " ", queue)
	return lipgloss.JoinVertical(lipgloss.Left, header, top, history, advice, help)
}

func (m Model) viewHeader() string {
	active := m.runner.Core().ActiveID()
	state := ""
	switch {
	case m.done:
		state = styles.Secondary.Render(" [finished]")
	case m.paused:
		state = styles.Warning.Render(" [paused]")
	}

	return styles.Title.Render("schedswap") + "  " +
		styles.StrategyBadge.Render(active.String()) +
		fmt.Sprintf("  tick %d/%d", m.runner.Tick(), m.runner.Duration()) +
		state
}

func (m Model) viewLoad() string {
	f := m.runner.Collector().Factors()

	cpu := float64(f.CPUPercent) / 100
	ipc := float64(f.IPCRate) / ipcBarCeiling
	if ipc > 1 {
		ipc = 1
	}

	var b []string
	b = append(b, styles.PanelTitle.Render("Load"))
	b = append(b, fmt.Sprintf("CPU %3d%%  %s", f.CPUPercent, m.cpuBar.ViewAs(cpu)))
	b = append(b, fmt.Sprintf("IPC %4d  %s", f.IPCRate, m.ipcBar.ViewAs(ipc)))
	b = append(b, fmt.Sprintf("misses %d  latency %dµs  contention %d%%",
		f.DeadlineMisses, f.WorstLatency, f.Contention))

	stats := m.runner.Controller().Stats()
	b = append(b, fmt.Sprintf("switches %d ok / %d failed / %d rolled back",
		stats.Successes, stats.Failures, stats.Rollbacks))

	return styles.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, b...))
}

func (m Model) viewQueue() string {
	tasks := m.runner.Core().Active().Tasks()
	total := len(tasks)
	if len(tasks) > queueRows {
		tasks = tasks[:queueRows]
	}

	now := m.runner.Core().Context().Clock.Micros()
	var b []string
	b = append(b, styles.PanelTitle.Render(fmt.Sprintf("Ready queue (%d)", total)))
	if total == 0 {
		b = append(b, styles.Muted.Render("idle"))
	}
	for _, t := range tasks {
		deadline := "-"
		if remaining, ok := t.DeadlineRemaining(now); ok {
			if remaining == 0 {
				deadline = styles.Error.Render("passed")
			} else {
				deadline = fmt.Sprintf("%dt", remaining/clock.MicrosPerTick)
			}
		}
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("task-%d", t.ID)
		}
		b = append(b, fmt.Sprintf("%4d  %-12s p=%-3d dl=%s", t.ID, name, t.EffectivePriority, deadline))
	}

	return styles.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, b...))
}

func (m Model) viewAdvice() string {
	advice := m.runner.Advice()
	if len(advice) == 0 {
		return ""
	}
	latest := advice[len(advice)-1]
	return styles.Subtitle.Render(fmt.Sprintf("advice: switch to %s (confidence %d, %s)",
		latest.Strategy.String(), latest.Confidence, latest.Result.Reason))
}

func (m Model) viewHelp() string {
	keys := []struct{ key, label string }{
		{"space", "pause"},
		{"1", "round robin"},
		{"2", "priority"},
		{"3", "edf"},
		{"e", "evaluate"},
		{"q", "quit"},
	}
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "  "
		}
		out += styles.HelpKey.Render(k.key) + " " + k.label
	}
	if m.status != "" {
		out += "\n" + m.status
	}
	return styles.HelpBar.Render(out)
}

// Run starts the dashboard and blocks until the user quits.
func Run(runner *sim.Runner, cfg *config.Config) error {
	p := tea.NewProgram(New(runner, cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
