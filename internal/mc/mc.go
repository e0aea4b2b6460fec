// Package mc implements the Monte Carlo protocols: canonical atom-swap
// moves and on-lattice grand-canonical insertions and removals.
package mc

import (
	"fmt"

	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/state"
)

// Registry keys of the built-in protocols.
const (
	TypeAtomSwap = "atom_swap"
	TypeGCMC     = "gcmc"
)

// Register installs the built-in Monte Carlo protocol factories.
func Register(r *protocol.Registry) {
	r.MustRegister(TypeAtomSwap, NewAtomSwapFromSettings)
	r.MustRegister(TypeGCMC, NewGCMCFromSettings)
}

// currentEnergy returns the cached energy, computing and caching it first if
// a move invalidated it.
func currentEnergy(s *state.State, calc potential.Calculator) (float64, error) {
	if e, ok := s.Energy(); ok {
		return e, nil
	}
	e, err := calc.Energy(s.Structure())
	if err != nil {
		return 0, err
	}
	s.SetEnergy(e)
	return e, nil
}

func validateEnv(env protocol.Env) error {
	if env.Calculator == nil {
		return fmt.Errorf("a calculator is required")
	}
	if env.Rand == nil {
		return fmt.Errorf("a random source is required")
	}
	return nil
}
