package mc

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/state"
	"github.com/abmazitov/heox/internal/units"
)

// swapAttempts bounds the search for a distinct-species pair before the move
// counts as rejected.
const swapAttempts = 100

// AtomSwap is the canonical atom-swap Monte Carlo protocol: it exchanges two
// atoms of different species among the allowed set and accepts the move by
// the Metropolis criterion at the configured temperature.
type AtomSwap struct {
	protocol.Base

	temperature float64
	species     []string
	speciesSet  map[string]bool

	calc potential.Calculator
	rng  *rand.Rand

	accepted int
	rejected int
}

// NewAtomSwap builds the protocol. At least two species are required.
func NewAtomSwap(info protocol.Info, temperature float64, species []string, calc potential.Calculator, rng *rand.Rand) (*AtomSwap, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", temperature)
	}
	if len(species) < 2 {
		return nil, fmt.Errorf("at least two species are required for swapping")
	}
	set := make(map[string]bool, len(species))
	for _, sym := range species {
		set[sym] = true
	}
	info.Type = TypeAtomSwap
	return &AtomSwap{
		Base:        protocol.NewBase(info),
		temperature: temperature,
		species:     append([]string{}, species...),
		speciesSet:  set,
		calc:        calc,
		rng:         rng,
	}, nil
}

// NewAtomSwapFromSettings is the registry factory. Settings: "temperature"
// (K) and "species" (list, length >= 2).
func NewAtomSwapFromSettings(info protocol.Info, settings protocol.Settings, env protocol.Env) (protocol.Protocol, error) {
	if err := validateEnv(env); err != nil {
		return nil, err
	}
	temperature, ok, err := floatSetting(settings, "temperature")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("setting temperature is required")
	}
	species, err := stringListSetting(settings, "species")
	if err != nil {
		return nil, err
	}
	return NewAtomSwap(info, temperature, species, env.Calculator, env.Rand)
}

// Initialize checks that every allowed species exists in the structure.
// Vacant "X" sites count as a species so vacancy swaps can be configured.
func (a *AtomSwap) Initialize(s *state.State) error {
	present := make(map[string]bool)
	for _, sym := range s.Structure().Symbols {
		present[sym] = true
	}
	present[lattice.Vacant] = true
	for _, sym := range a.species {
		if !present[sym] {
			return fmt.Errorf("protocol %s: species %s is not present in the structure", a.Info().ID, sym)
		}
	}
	return nil
}

// Step attempts one swap.
func (a *AtomSwap) Step(s *state.State) error {
	if err := a.attemptSwap(s); err != nil {
		return err
	}
	a.CountInvoke()
	return nil
}

func (a *AtomSwap) attemptSwap(s *state.State) error {
	structure := s.Structure()
	allowed := make([]int, 0, structure.Len())
	for i, sym := range structure.Symbols {
		if a.speciesSet[sym] {
			allowed = append(allowed, i)
		}
	}
	if len(allowed) < 2 {
		a.rejected++
		return nil
	}

	// Pick a pair with different species, bounded retries.
	var site1, site2 int
	found := false
	for attempt := 0; attempt < swapAttempts; attempt++ {
		site1 = allowed[a.rng.Intn(len(allowed))]
		site2 = allowed[a.rng.Intn(len(allowed))]
		if site1 != site2 && structure.Symbols[site1] != structure.Symbols[site2] {
			found = true
			break
		}
	}
	if !found {
		a.rejected++
		return nil
	}

	initial, err := currentEnergy(s, a.calc)
	if err != nil {
		return err
	}

	structure.Symbols[site1], structure.Symbols[site2] = structure.Symbols[site2], structure.Symbols[site1]
	final, err := a.calc.Energy(structure)
	if err != nil {
		// Leave the state as it was before the attempt.
		structure.Symbols[site1], structure.Symbols[site2] = structure.Symbols[site2], structure.Symbols[site1]
		return err
	}

	if a.accept(final - initial) {
		s.SetEnergy(final)
		a.accepted++
		return nil
	}
	structure.Symbols[site1], structure.Symbols[site2] = structure.Symbols[site2], structure.Symbols[site1]
	s.SetEnergy(initial)
	a.rejected++
	return nil
}

// accept applies the Metropolis criterion.
func (a *AtomSwap) accept(deltaEnergy float64) bool {
	if deltaEnergy < 0 {
		return true
	}
	return a.rng.Float64() < math.Exp(-deltaEnergy/(units.KB*a.temperature))
}

// LogOptions implements Protocol.
func (a *AtomSwap) LogOptions() map[string]float64 {
	return map[string]float64{
		a.OptionName("accepted_swaps"): float64(a.accepted),
		a.OptionName("rejected_swaps"): float64(a.rejected),
	}
}

// Accepted returns the accepted swap count.
func (a *AtomSwap) Accepted() int { return a.accepted }

// Rejected returns the rejected swap count.
func (a *AtomSwap) Rejected() int { return a.rejected }
