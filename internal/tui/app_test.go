package tui

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abmazitov/heox/internal/config"
	"github.com/abmazitov/heox/internal/mc"
	"github.com/abmazitov/heox/internal/pipeline"
	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/report"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Run: config.RunConfig{
			Steps: 10,
			Dir:   filepath.Join(t.TempDir(), "run"),
			Seed:  7,
		},
		Structure: config.StructureConfig{
			Pattern:     "rocksalt",
			A:           4.2,
			Supercell:   [3]int{2, 2, 2},
			Composition: map[string]float64{"Mg": 0.5, "Zn": 0.5},
		},
		Calculator: config.CalculatorConfig{
			Name: potential.PairTableName,
			Params: map[string]any{
				"cutoff":       3.0,
				"interactions": map[string]any{"Mg-O": -1.0},
			},
		},
		Protocols: []config.ProtocolConfig{{
			ID:   "swap",
			Type: mc.TypeAtomSwap,
			Settings: map[string]any{
				"temperature": 1000.0,
				"species":     []any{"Mg", "Zn"},
			},
		}},
	}
	if err := cfg.Check(); err != nil {
		t.Fatalf("config check: %v", err)
	}
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(app.cancel)
	return app
}

func TestViewShowsProgress(t *testing.T) {
	app := testApp(t)

	energy := -3.25
	model, cmd := app.Update(progressMsg(pipeline.Progress{
		Step:       4,
		TotalSteps: 10,
		Energy:     &energy,
		Options:    map[string]string{"module.swap.accepted_swaps": "2"},
	}))
	if cmd == nil {
		t.Fatalf("progress update should re-arm the listener")
	}
	view := model.(*App).View()
	if !strings.Contains(view, "step 5 / 10") {
		t.Fatalf("view missing step counter:\n%s", view)
	}
	if !strings.Contains(view, "-3.250000") {
		t.Fatalf("view missing energy:\n%s", view)
	}
	if !strings.Contains(view, "module.swap.accepted_swaps: 2") {
		t.Fatalf("view missing statistics:\n%s", view)
	}
}

func TestViewAfterCompletion(t *testing.T) {
	app := testApp(t)

	energy := -1.5
	model, _ := app.Update(runDoneMsg{summary: report.Summary{
		RunID:       "abc",
		Steps:       10,
		StepsDone:   10,
		FinalEnergy: &energy,
	}})
	view := model.(*App).View()
	if !strings.Contains(view, "finished 10 steps") {
		t.Fatalf("view missing completion line:\n%s", view)
	}
	if !strings.Contains(view, "-1.500000") {
		t.Fatalf("view missing final energy:\n%s", view)
	}
	if !strings.Contains(view, "enter/q quit") {
		t.Fatalf("view missing done footer:\n%s", view)
	}
}

func TestViewAfterInterruption(t *testing.T) {
	app := testApp(t)
	model, _ := app.Update(runDoneMsg{summary: report.Summary{
		Steps:       10,
		StepsDone:   3,
		Interrupted: true,
	}})
	view := model.(*App).View()
	if !strings.Contains(view, "stopped after 3 of 10 steps") {
		t.Fatalf("view missing interruption line:\n%s", view)
	}
}

func TestQuitKeyCancelsRun(t *testing.T) {
	app := testApp(t)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	select {
	case <-app.ctx.Done():
	default:
		t.Fatalf("run context should be cancelled")
	}
}

func TestPublishProgressNeverBlocks(t *testing.T) {
	app := testApp(t)
	for i := 0; i < 10; i++ {
		app.publishProgress(pipeline.Progress{Step: i})
	}
	select {
	case p := <-app.progressCh:
		if p.Step == 0 {
			t.Fatalf("stale tick should have been replaced: %+v", p)
		}
	default:
		t.Fatalf("expected a pending tick")
	}
}
