// Package pipeline drives a hybrid Monte Carlo run: an ordered list of
// protocols evolving one shared state, with periodic logging and trajectory
// output.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/abmazitov/heox/internal/logbook"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/state"
	"github.com/abmazitov/heox/internal/trajectory"
)

// baseOptions maps the always-available log options to their header titles.
var baseOptions = map[string]string{
	"properties.global_step": "Global Step",
	"properties.step":        "Step",
	"properties.energy":      "Potential Energy",
	"properties.temperature": "Temperature",
}

// Pipeline runs protocols over a shared state.
type Pipeline struct {
	state     *state.State
	protocols []protocol.Protocol

	logOptions  []string
	logInterval int
	log         *logbook.Logbook
	traj        *trajectory.Writer
	progress    func(Progress)
}

// Progress is handed to the progress callback at every log tick.
type Progress struct {
	Step       int
	TotalSteps int
	Energy     *float64
	Options    map[string]string
}

// Option customizes the pipeline.
type Option func(*Pipeline) error

// WithLogOptions selects which options are logged. Unknown names fail New
// with the available list in the error.
func WithLogOptions(options ...string) Option {
	return func(p *Pipeline) error {
		p.logOptions = append([]string{}, options...)
		return nil
	}
}

// WithLogInterval logs every n global steps. Values below one default to one.
func WithLogInterval(n int) Option {
	return func(p *Pipeline) error {
		if n > 0 {
			p.logInterval = n
		}
		return nil
	}
}

// WithLogbook routes the run log to the given logbook.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(p *Pipeline) error {
		p.log = lb
		return nil
	}
}

// WithTrajectory writes a frame to path at every log tick. An existing file
// is truncated, fresh runs never append to stale trajectories.
func WithTrajectory(path string) Option {
	return func(p *Pipeline) error {
		w, err := trajectory.NewWriter(path)
		if err != nil {
			return err
		}
		p.traj = w
		return nil
	}
}

// WithProgress installs a callback invoked at every log tick.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// New initializes every protocol against the state and validates the
// requested log options.
func New(s *state.State, protocols []protocol.Protocol, opts ...Option) (*Pipeline, error) {
	if s == nil {
		return nil, fmt.Errorf("pipeline: state is required")
	}
	if len(protocols) == 0 {
		return nil, fmt.Errorf("pipeline: at least one protocol is required")
	}
	p := &Pipeline{
		state:       s,
		protocols:   protocols,
		logInterval: 1,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	for _, proto := range protocols {
		if err := proto.Initialize(s); err != nil {
			return nil, err
		}
	}

	if len(p.logOptions) > 0 {
		available := p.availableOptions()
		for _, name := range p.logOptions {
			if !available[name] {
				return nil, fmt.Errorf("pipeline: invalid log option %q, available options: %s",
					name, strings.Join(sortedKeys(available), ", "))
			}
		}
	}
	return p, nil
}

func (p *Pipeline) availableOptions() map[string]bool {
	available := make(map[string]bool, len(baseOptions))
	for name := range baseOptions {
		available[name] = true
	}
	for _, proto := range p.protocols {
		for name := range proto.LogOptions() {
			available[name] = true
		}
	}
	return available
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Run evolves every protocol for the given number of global steps. The run
// stops early when ctx is cancelled; the state keeps whatever progress was
// made.
func (p *Pipeline) Run(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("pipeline: steps must be positive, got %d", steps)
	}
	p.logHeader()
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			p.log.Warn("run interrupted at global step %d", p.state.GlobalStep)
			return err
		}
		for _, proto := range p.protocols {
			if err := protocol.Evolve(proto, p.state); err != nil {
				p.log.Error("%v", err)
				return err
			}
		}
		if step%p.logInterval == 0 {
			if err := p.tick(step, steps); err != nil {
				return err
			}
		}
		p.state.GlobalStep++
	}
	return nil
}

// Close releases the trajectory writer, if any.
func (p *Pipeline) Close() error {
	if p.traj == nil {
		return nil
	}
	return p.traj.Close()
}

// State exposes the shared state (read-mostly; the TUI polls it).
func (p *Pipeline) State() *state.State {
	return p.state
}

func (p *Pipeline) logHeader() {
	if len(p.logOptions) == 0 {
		return
	}
	titles := make([]string, 0, len(p.logOptions))
	for _, name := range p.logOptions {
		if title, ok := baseOptions[name]; ok {
			titles = append(titles, title)
			continue
		}
		titles = append(titles, name)
	}
	p.log.Info("heox: hybrid Monte Carlo simulation of high-entropy oxides")
	p.log.Info("%s", strings.Join(titles, "\t"))
}

func (p *Pipeline) tick(step, total int) error {
	options := p.optionValues()
	if len(p.logOptions) > 0 {
		row := make([]string, 0, len(p.logOptions))
		for _, name := range p.logOptions {
			row = append(row, options[name])
		}
		p.log.Info("%s", strings.Join(row, "\t"))
	}
	if p.traj != nil {
		if err := p.traj.Append(p.state.Snapshot()); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	if p.progress != nil {
		progress := Progress{Step: step, TotalSteps: total, Options: options}
		if e, ok := p.state.Energy(); ok {
			energy := e
			progress.Energy = &energy
		}
		p.progress(progress)
	}
	return nil
}

// optionValues renders every available option to its display string.
func (p *Pipeline) optionValues() map[string]string {
	values := make(map[string]string)
	for name := range baseOptions {
		raw, err := p.state.Get(name)
		if err != nil || raw == nil {
			values[name] = "n/a"
			continue
		}
		switch v := raw.(type) {
		case float64:
			values[name] = fmt.Sprintf("%.6f", v)
		default:
			values[name] = fmt.Sprintf("%v", v)
		}
	}
	for _, proto := range p.protocols {
		for name, value := range proto.LogOptions() {
			values[name] = fmt.Sprintf("%g", value)
		}
	}
	return values
}
