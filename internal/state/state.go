// Package state carries the mutable simulation state shared by every
// protocol in a pipeline run: the structure being evolved plus run
// properties such as the step counters and the cached potential energy.
package state

import (
	"fmt"
	"strings"

	"github.com/abmazitov/heox/internal/lattice"
)

// State is the single mutable value threaded through a pipeline run.
// Protocols mutate the structure and maintain the energy cache; the pipeline
// owns the step counters.
type State struct {
	structure *lattice.Structure

	// GlobalStep counts pipeline iterations; Step counts protocol
	// invocations (the invoke-gating counter).
	GlobalStep int
	Step       int

	// Temperature is informational (K); the protocols carry their own.
	Temperature float64

	energy      float64
	energyValid bool
}

// New wraps a structure into a fresh state.
func New(structure *lattice.Structure) (*State, error) {
	if structure == nil {
		return nil, fmt.Errorf("state: structure is required")
	}
	if err := structure.Validate(); err != nil {
		return nil, err
	}
	return &State{structure: structure}, nil
}

// Structure exposes the live structure. Callers that mutate symbols must
// invalidate or update the energy cache themselves.
func (s *State) Structure() *lattice.Structure {
	return s.structure
}

// Energy returns the cached potential energy.
func (s *State) Energy() (float64, bool) {
	return s.energy, s.energyValid
}

// SetEnergy records a freshly computed potential energy (eV).
func (s *State) SetEnergy(e float64) {
	s.energy = e
	s.energyValid = true
}

// InvalidateEnergy drops the cache after an unscored mutation.
func (s *State) InvalidateEnergy() {
	s.energyValid = false
}

// Get resolves a dotted log option such as "properties.energy" or
// "system.symbols". It mirrors the option names the pipeline accepts.
func (s *State) Get(option string) (any, error) {
	group, name, found := strings.Cut(option, ".")
	if !found {
		return nil, fmt.Errorf("state: option %q must be of the form group.name", option)
	}
	switch group {
	case "properties":
		switch name {
		case "global_step":
			return s.GlobalStep, nil
		case "step":
			return s.Step, nil
		case "temperature":
			return s.Temperature, nil
		case "energy":
			if !s.energyValid {
				return nil, nil
			}
			return s.energy, nil
		}
		return nil, fmt.Errorf("state: invalid properties option %q", name)
	case "system":
		switch name {
		case "symbols":
			return append([]string{}, s.structure.Symbols...), nil
		case "cell":
			return s.structure.Cell, nil
		case "num_sites":
			return s.structure.Len(), nil
		case "num_atoms":
			return s.structure.NumOccupied(), nil
		}
		return nil, fmt.Errorf("state: invalid system option %q", name)
	}
	return nil, fmt.Errorf("state: invalid option group %q, must be \"system\" or \"properties\"", group)
}

// Snapshot captures a trajectory frame of the current state.
func (s *State) Snapshot() Frame {
	frame := Frame{
		Structure:   s.structure.Copy(),
		Step:        s.GlobalStep,
		Temperature: s.Temperature,
	}
	if s.energyValid {
		e := s.energy
		frame.Energy = &e
	}
	return frame
}

// Frame is a point-in-time copy of the state, ready to append to a
// trajectory file.
type Frame struct {
	Structure   *lattice.Structure
	Step        int
	Temperature float64
	Energy      *float64
}
