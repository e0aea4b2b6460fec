// Package tui renders a live dashboard for a running simulation. It uses
// bubbletea, which follows The Elm Architecture: the model holds all state,
// Update reacts to messages, and View renders the state to a string.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abmazitov/heox/internal/config"
	"github.com/abmazitov/heox/internal/pipeline"
	"github.com/abmazitov/heox/internal/report"
	"github.com/abmazitov/heox/internal/runner"
)

const logTailLines = 8

type appState int

const (
	stateRunning appState = iota
	stateDone
)

type progressMsg pipeline.Progress

type runDoneMsg struct {
	summary report.Summary
	err     error
}

type logRefreshMsg []string

// AppOption customizes App construction for tests.
type AppOption func(*App)

// WithRunnerOptions forwards extra options to the runner setup.
func WithRunnerOptions(opts ...runner.Option) AppOption {
	return func(a *App) {
		a.runnerOpts = append(a.runnerOpts, opts...)
	}
}

// App is the dashboard model. It owns the run and all display state.
type App struct {
	cfg        *config.Config
	run        *runner.Run
	runnerOpts []runner.Option

	ctx    context.Context
	cancel context.CancelFunc

	progressCh chan pipeline.Progress
	doneCh     chan runDoneMsg

	state       appState
	spin        spinner.Model
	latest      pipeline.Progress
	hasProgress bool
	logLines    []string
	summary     *report.Summary
	runErr      error

	width  int
	height int
}

// NewApp assembles the run described by cfg and prepares the dashboard.
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		progressCh: make(chan pipeline.Progress, 1),
		doneCh:     make(chan runDoneMsg, 1),
		state:      stateRunning,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	setupOpts := append([]runner.Option{
		runner.WithProgress(a.publishProgress),
	}, a.runnerOpts...)
	run, err := runner.Setup(cfg, setupOpts...)
	if err != nil {
		cancel()
		return nil, err
	}
	a.run = run

	a.spin = spinner.New()
	a.spin.Spinner = spinner.Dot
	a.spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return a, nil
}

// publishProgress forwards a pipeline tick without ever blocking the run.
// A stale tick still waiting in the channel is replaced by the newer one.
func (a *App) publishProgress(p pipeline.Progress) {
	select {
	case a.progressCh <- p:
	default:
		select {
		case <-a.progressCh:
		default:
		}
		select {
		case a.progressCh <- p:
		default:
		}
	}
}

// Init starts the run in the background and begins listening for its
// progress.
func (a *App) Init() tea.Cmd {
	go func() {
		summary, err := a.run.Execute(a.ctx)
		a.doneCh <- runDoneMsg{summary: summary, err: err}
	}()
	return tea.Batch(
		a.spin.Tick,
		a.waitForProgress(),
		a.waitForDone(),
		a.scheduleLogRefresh(),
	)
}

func (a *App) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		select {
		case p := <-a.progressCh:
			return progressMsg(p)
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return <-a.doneCh
	}
}

func (a *App) scheduleLogRefresh() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return logRefreshMsg(a.run.Log.Tail(logTailLines))
	})
}

// Update reacts to messages from the run and the keyboard.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case progressMsg:
		a.latest = pipeline.Progress(msg)
		a.hasProgress = true
		return a, a.waitForProgress()

	case runDoneMsg:
		a.state = stateDone
		summary := msg.summary
		a.summary = &summary
		a.runErr = msg.err
		a.logLines = a.run.Log.Tail(logTailLines)
		return a, nil

	case logRefreshMsg:
		a.logLines = []string(msg)
		if a.state == stateRunning {
			return a, a.scheduleLogRefresh()
		}
		return a, nil

	case spinner.TickMsg:
		if a.state != stateRunning {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			a.cancel()
			return a, tea.Quit
		case "enter":
			if a.state == stateDone {
				return a, tea.Quit
			}
		}
	}
	return a, nil
}

// View renders the dashboard.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 80
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render("heox · hybrid Monte Carlo of high-entropy oxides")

	var sections []string
	sections = append(sections, header, "")
	sections = append(sections, a.progressSection())
	if stats := a.statisticsSection(); stats != "" {
		sections = append(sections, "", stats)
	}
	if len(a.logLines) > 0 {
		sections = append(sections, "", a.logSection(width))
	}
	sections = append(sections, "", a.footer())

	box := lipgloss.NewStyle().
		Padding(1, 2).
		Width(max(40, width-4))
	return box.Render(strings.Join(sections, "\n"))
}

func (a *App) progressSection() string {
	switch a.state {
	case stateDone:
		if a.runErr != nil && (a.summary == nil || !a.summary.Interrupted) {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("203")).
				Render(fmt.Sprintf("✗ run failed: %v", a.runErr))
		}
		if a.summary != nil && a.summary.Interrupted {
			return fmt.Sprintf("■ stopped after %d of %d steps", a.summary.StepsDone, a.summary.Steps)
		}
		line := fmt.Sprintf("✓ finished %d steps", a.cfg.Run.Steps)
		if a.summary != nil && a.summary.FinalEnergy != nil {
			line += fmt.Sprintf(" · final energy %.6f eV", *a.summary.FinalEnergy)
		}
		return line
	default:
		if !a.hasProgress {
			return fmt.Sprintf("%s starting run (%d steps)", a.spin.View(), a.cfg.Run.Steps)
		}
		line := fmt.Sprintf("%s step %d / %d", a.spin.View(), a.latest.Step+1, a.latest.TotalSteps)
		if a.latest.Energy != nil {
			line += fmt.Sprintf(" · energy %.6f eV", *a.latest.Energy)
		}
		return line
	}
}

func (a *App) statisticsSection() string {
	var stats map[string]string
	if a.hasProgress {
		stats = a.latest.Options
	}
	if len(stats) == 0 {
		return ""
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s: %s", name, stats[name]))
	}
	return "Statistics\n" + strings.Join(lines, "\n")
}

func (a *App) logSection(width int) string {
	body := strings.Join(a.logLines, "\n")
	return lipgloss.NewStyle().
		Faint(true).
		Width(max(20, width-8)).
		Render("Logbook\n" + body)
}

func (a *App) footer() string {
	hint := "q quit"
	if a.state == stateDone {
		hint = "enter/q quit"
	}
	return lipgloss.NewStyle().Faint(true).Render(hint)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
