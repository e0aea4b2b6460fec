// Package runner assembles a configured simulation into a ready pipeline
// and drives it to completion, writing a report at the end.
package runner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/abmazitov/heox/internal/config"
	"github.com/abmazitov/heox/internal/logbook"
	"github.com/abmazitov/heox/internal/mc"
	"github.com/abmazitov/heox/internal/pipeline"
	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/report"
	"github.com/abmazitov/heox/internal/state"
	"github.com/abmazitov/heox/plugins"
)

// Run is a fully assembled simulation: state, calculator, protocols and
// pipeline, bound to one run directory.
type Run struct {
	Config     *config.Config
	ID         string
	Seed       int64
	Log        *logbook.Logbook
	State      *state.State
	Calculator potential.Calculator
	Protocols  []protocol.Protocol

	pipe *pipeline.Pipeline
	now  func() time.Time
}

type options struct {
	seed     *int64
	runID    string
	progress func(pipeline.Progress)
	now      func() time.Time
}

// Option customizes Setup.
type Option func(*options)

// WithSeed overrides the configured random seed.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// WithProgress forwards pipeline progress to fn on every log tick.
func WithProgress(fn func(pipeline.Progress)) Option {
	return func(o *options) { o.progress = fn }
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.now = clock }
}

// Setup scaffolds the run directory and builds every component the
// configuration names: structure, calculator, configured protocols plus any
// plugin-declared ones, and the pipeline wiring them together.
func Setup(cfg *config.Config, opts ...Option) (*Run, error) {
	if cfg == nil {
		return nil, fmt.Errorf("runner: configuration is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.runID == "" {
		o.runID = report.NewRunID()
	}
	if err := cfg.InitRunDir(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	lb, err := logbook.New(cfg.LogbookPath())
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	lb = lb.WithClock(o.now)

	seed := cfg.SeedOrNow()
	if o.seed != nil {
		seed = *o.seed
	}
	rng := rand.New(rand.NewSource(seed))

	structure, err := cfg.BuildStructure(rng)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	s, err := state.New(structure)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	calc, err := cfg.BuildCalculator(potential.DefaultRegistry())
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	protocols, err := buildProtocols(cfg, calc, rng)
	if err != nil {
		return nil, err
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithLogbook(lb),
		pipeline.WithLogInterval(cfg.Run.LogInterval),
	}
	if len(cfg.Run.LogOptions) > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithLogOptions(cfg.Run.LogOptions...))
	}
	if cfg.Run.Trajectory {
		pipeOpts = append(pipeOpts, pipeline.WithTrajectory(cfg.TrajectoryPath()))
	}
	if o.progress != nil {
		pipeOpts = append(pipeOpts, pipeline.WithProgress(o.progress))
	}
	pipe, err := pipeline.New(s, protocols, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	lb.Info("run %s: seed %d, %s", shortID(o.runID), seed, cfg.Describe())
	return &Run{
		Config:     cfg,
		ID:         o.runID,
		Seed:       seed,
		Log:        lb,
		State:      s,
		Calculator: calc,
		Protocols:  protocols,
		pipe:       pipe,
		now:        o.now,
	}, nil
}

// buildProtocols resolves the configured protocols and then the plugin
// definitions found under the run's plugins directory, rejecting duplicate
// instance ids across both sources.
func buildProtocols(cfg *config.Config, calc potential.Calculator, rng *rand.Rand) ([]protocol.Protocol, error) {
	reg := protocol.NewRegistry()
	mc.Register(reg)
	env := protocol.Env{Calculator: calc, Rand: rng}

	seen := make(map[string]bool, len(cfg.Protocols))
	protocols := make([]protocol.Protocol, 0, len(cfg.Protocols))
	for _, pc := range cfg.Protocols {
		p, err := reg.Resolve(pc.Info(), protocol.Settings(pc.Settings), env)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		seen[pc.ID] = true
		protocols = append(protocols, p)
	}

	defs, err := plugins.LoadDir(cfg.PluginsDir())
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	for _, def := range defs {
		if seen[def.Definition.ID] {
			return nil, fmt.Errorf("runner: %s: duplicate protocol id %s", def.Path, def.Definition.ID)
		}
		seen[def.Definition.ID] = true
	}
	pluginProtocols, err := plugins.Resolve(defs, reg, env)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	return append(protocols, pluginProtocols...), nil
}

// Execute drives the pipeline for the configured number of steps and writes
// a report summarizing the run. The summary is returned even when the
// context is cancelled mid-run.
func (r *Run) Execute(ctx context.Context) (report.Summary, error) {
	started := r.now()
	runErr := r.pipe.Run(ctx, r.Config.Run.Steps)
	if closeErr := r.pipe.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	finished := r.now()

	summary := report.Summary{
		RunID:       r.ID,
		Description: r.Config.Describe(),
		Steps:       r.Config.Run.Steps,
		StepsDone:   r.State.GlobalStep,
		Seed:        r.Seed,
		StartedAt:   started,
		FinishedAt:  finished,
		Statistics:  r.statistics(),
		Interrupted: ctx.Err() != nil,
	}
	if energy, ok := r.State.Energy(); ok {
		e := energy
		summary.FinalEnergy = &e
	}

	store := report.NewStore(r.Config.ReportsDir(), report.WithClock(r.now))
	path, writeErr := store.Write(summary)
	if writeErr != nil {
		r.Log.Error("report: %v", writeErr)
		if runErr == nil {
			runErr = fmt.Errorf("runner: %w", writeErr)
		}
	} else {
		r.Log.Info("run %s: report written to %s", shortID(r.ID), path)
	}
	return summary, runErr
}

func (r *Run) statistics() map[string]float64 {
	stats := map[string]float64{}
	for _, p := range r.Protocols {
		for name, value := range p.LogOptions() {
			stats[name] = value
		}
	}
	if len(stats) == 0 {
		return nil
	}
	return stats
}

// Pipeline exposes the assembled pipeline.
func (r *Run) Pipeline() *pipeline.Pipeline {
	return r.pipe
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
