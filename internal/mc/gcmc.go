package mc

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/relax"
	"github.com/abmazitov/heox/internal/state"
	"github.com/abmazitov/heox/internal/units"
)

// GCMC is the on-lattice grand-canonical Monte Carlo protocol. Removal
// attempts vacate an occupied site of a configured species; insertion
// attempts refill a previously vacated site. Acceptance uses the Metropolis
// criterion shifted by the species' chemical potential.
type GCMC struct {
	protocol.Base

	temperature float64
	potentials  map[string]float64
	species     []string
	useRelaxed  bool
	fmax        float64

	calc potential.Calculator
	rng  *rand.Rand

	vacated []int

	acceptedInsertions int
	rejectedInsertions int
	acceptedRemovals   int
	rejectedRemovals   int
}

// NewGCMC builds the protocol. potentials maps the exchangeable species to
// their chemical potentials in eV.
func NewGCMC(info protocol.Info, temperature float64, potentials map[string]float64, useRelaxed bool, calc potential.Calculator, rng *rand.Rand) (*GCMC, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", temperature)
	}
	if len(potentials) == 0 {
		return nil, fmt.Errorf("at least one chemical potential is required")
	}
	if useRelaxed {
		if _, ok := calc.(potential.ForceProvider); !ok {
			return nil, fmt.Errorf("relaxed energies need a calculator with forces, %s has none", calc.Name())
		}
	}
	species := make([]string, 0, len(potentials))
	for sym := range potentials {
		if sym == lattice.Vacant {
			return nil, fmt.Errorf("the vacancy placeholder %s cannot carry a chemical potential", lattice.Vacant)
		}
		species = append(species, sym)
	}
	sort.Strings(species)
	info.Type = TypeGCMC
	clone := make(map[string]float64, len(potentials))
	for sym, mu := range potentials {
		clone[sym] = mu
	}
	return &GCMC{
		Base:        protocol.NewBase(info),
		temperature: temperature,
		potentials:  clone,
		species:     species,
		useRelaxed:  useRelaxed,
		fmax:        relax.DefaultFmax,
		calc:        calc,
		rng:         rng,
	}, nil
}

// NewGCMCFromSettings is the registry factory. Settings: "temperature" (K),
// "chemical_potentials" (map of species to eV), "use_relaxed_energies"
// (bool, optional).
func NewGCMCFromSettings(info protocol.Info, settings protocol.Settings, env protocol.Env) (protocol.Protocol, error) {
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
	potentials, err := floatMapSetting(settings, "chemical_potentials")
	if err != nil {
		return nil, err
	}
	useRelaxed, err := boolSetting(settings, "use_relaxed_energies")
	if err != nil {
		return nil, err
	}
	return NewGCMC(info, temperature, potentials, useRelaxed, env.Calculator, env.Rand)
}

// Initialize checks the configured species against the structure and resets
// the vacancy bookkeeping.
func (g *GCMC) Initialize(s *state.State) error {
	present := make(map[string]bool)
	for _, sym := range s.Structure().Symbols {
		present[sym] = true
	}
	for _, sym := range g.species {
		if !present[sym] {
			return fmt.Errorf("protocol %s: species %s is not present in the structure", g.Info().ID, sym)
		}
	}
	g.vacated = nil
	return nil
}

// Step attempts an insertion or a removal with equal probability.
func (g *GCMC) Step(s *state.State) error {
	var err error
	if g.rng.Float64() < 0.5 {
		err = g.attemptInsertion(s)
	} else {
		err = g.attemptRemoval(s)
	}
	if err != nil {
		return err
	}
	g.CountInvoke()
	return nil
}

func (g *GCMC) attemptRemoval(s *state.State) error {
	structure := s.Structure()
	species := g.species[g.rng.Intn(len(g.species))]

	occupied := make([]int, 0, structure.Len())
	for i, sym := range structure.Symbols {
		if sym == species {
			occupied = append(occupied, i)
		}
	}
	if len(occupied) == 0 {
		g.rejectedRemovals++
		return nil
	}
	site := occupied[g.rng.Intn(len(occupied))]

	initial, err := currentEnergy(s, g.calc)
	if err != nil {
		return err
	}
	structure.Symbols[site] = lattice.Vacant
	final, err := g.finalEnergy(structure)
	if err != nil {
		structure.Symbols[site] = species
		return err
	}

	if g.accept(final-initial, g.potentials[species]) {
		s.SetEnergy(final)
		g.vacated = append(g.vacated, site)
		g.acceptedRemovals++
		return nil
	}
	structure.Symbols[site] = species
	s.SetEnergy(initial)
	g.rejectedRemovals++
	return nil
}

func (g *GCMC) attemptInsertion(s *state.State) error {
	structure := s.Structure()
	species := g.species[g.rng.Intn(len(g.species))]

	if len(g.vacated) == 0 {
		g.rejectedInsertions++
		return nil
	}
	pick := g.rng.Intn(len(g.vacated))
	site := g.vacated[pick]

	initial, err := currentEnergy(s, g.calc)
	if err != nil {
		return err
	}
	structure.Symbols[site] = species
	final, err := g.finalEnergy(structure)
	if err != nil {
		structure.Symbols[site] = lattice.Vacant
		return err
	}

	if g.accept(final-initial, g.potentials[species]) {
		s.SetEnergy(final)
		g.vacated = append(g.vacated[:pick], g.vacated[pick+1:]...)
		g.acceptedInsertions++
		return nil
	}
	structure.Symbols[site] = lattice.Vacant
	s.SetEnergy(initial)
	g.rejectedInsertions++
	return nil
}

// finalEnergy scores an attempted configuration, optionally after relaxing a
// copy of it. The attempt structure itself is never displaced.
func (g *GCMC) finalEnergy(structure *lattice.Structure) (float64, error) {
	if !g.useRelaxed {
		return g.calc.Energy(structure)
	}
	clone := structure.Copy()
	res, err := relax.Minimize(clone, g.calc, relax.Options{Fmax: g.fmax})
	if err != nil {
		return 0, err
	}
	return res.Energy, nil
}

// accept applies the chemical-potential-shifted Metropolis criterion.
func (g *GCMC) accept(deltaEnergy, mu float64) bool {
	factor := math.Exp(-(deltaEnergy - mu) / (units.KB * g.temperature))
	return g.rng.Float64() < factor
}

// LogOptions implements Protocol.
func (g *GCMC) LogOptions() map[string]float64 {
	return map[string]float64{
		g.OptionName("accepted_insertions"): float64(g.acceptedInsertions),
		g.OptionName("rejected_insertions"): float64(g.rejectedInsertions),
		g.OptionName("accepted_removals"):   float64(g.acceptedRemovals),
		g.OptionName("rejected_removals"):   float64(g.rejectedRemovals),
	}
}

// Vacancies returns how many sites are currently vacated by this protocol.
func (g *GCMC) Vacancies() int { return len(g.vacated) }
