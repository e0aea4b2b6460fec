// Package protocol defines the contract every simulation protocol
// implements and the invoke-gating that schedules protocols within a
// pipeline iteration.
package protocol

import (
	"fmt"

	"github.com/abmazitov/heox/internal/state"
)

// Info describes a protocol instance's identity and scheduling.
type Info struct {
	// ID names this instance; log options are published under module.<ID>.
	ID string
	// Type is the registry key the instance was built from.
	Type string
	// InvokeEvery gates the protocol to every n-th pipeline step. Zero or
	// negative values default to one.
	InvokeEvery int
	// StepsPerInvoke is how many protocol steps run per invocation. Zero or
	// negative values default to one.
	StepsPerInvoke int
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("protocol: id is required")
	}
	if i.Type == "" {
		return fmt.Errorf("protocol: type is required for %s", i.ID)
	}
	return nil
}

func (i Info) invokeEveryOrDefault() int {
	if i.InvokeEvery <= 0 {
		return 1
	}
	return i.InvokeEvery
}

func (i Info) stepsPerInvokeOrDefault() int {
	if i.StepsPerInvoke <= 0 {
		return 1
	}
	return i.StepsPerInvoke
}

// Protocol is implemented by every simulation move generator.
type Protocol interface {
	Info() Info
	// Initialize validates the protocol against the starting state.
	Initialize(s *state.State) error
	// Step performs one elementary move attempt.
	Step(s *state.State) error
	// LogOptions exposes the protocol's current statistics under fully
	// qualified option names.
	LogOptions() map[string]float64
}

// Evolve runs one gated invocation: when the state's step counter lands on
// the protocol's schedule, StepsPerInvoke elementary steps run. The step
// counter always advances afterwards.
func Evolve(p Protocol, s *state.State) error {
	info := p.Info()
	if s.Step%info.invokeEveryOrDefault() == 0 {
		for k := 0; k < info.stepsPerInvokeOrDefault(); k++ {
			if err := p.Step(s); err != nil {
				return fmt.Errorf("protocol %s: %w", info.ID, err)
			}
		}
	}
	s.Step++
	return nil
}

// Base provides common plumbing for protocols (identity + invoke counting).
type Base struct {
	info    Info
	invokes int
}

// NewBase seeds the helper with protocol info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// Info implements Protocol.Info.
func (b *Base) Info() Info {
	return b.info
}

// CountInvoke records one elementary step.
func (b *Base) CountInvoke() {
	b.invokes++
}

// Invokes returns how many elementary steps have run.
func (b *Base) Invokes() int {
	return b.invokes
}

// OptionName qualifies a statistic name with the protocol's ID.
func (b *Base) OptionName(stat string) string {
	return fmt.Sprintf("module.%s.%s", b.info.ID, stat)
}
