package mc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/state"
)

func testCalculator(t *testing.T) potential.Calculator {
	t.Helper()
	calc, err := potential.NewPairTable(2.2, map[string]float64{
		"Mg-O": -1.0,
		"O-Zn": -0.6,
	})
	if err != nil {
		t.Fatal(err)
	}
	return calc
}

func testState(t *testing.T) *state.State {
	t.Helper()
	structure, err := lattice.BulkHEO(lattice.BulkSpec{
		Pattern:     lattice.PatternRocksalt,
		Composition: map[string]float64{"Mg": 0.5, "Zn": 0.5},
		A:           4.2,
		Supercell:   [3]int{2, 2, 2},
	}, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatal(err)
	}
	s, err := state.New(structure)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAtomSwapRequiresTwoSpecies(t *testing.T) {
	_, err := NewAtomSwap(protocol.Info{ID: "swap"}, 600, []string{"Mg"}, testCalculator(t), rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected error for a single swap species")
	}
}

func TestAtomSwapInitializeRejectsMissingSpecies(t *testing.T) {
	p, err := NewAtomSwap(protocol.Info{ID: "swap"}, 600, []string{"Mg", "Fe"}, testCalculator(t), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewAtomSwap returned error: %v", err)
	}
	if err := p.Initialize(testState(t)); err == nil {
		t.Fatal("expected error for species absent from the structure")
	}
}

func TestAtomSwapAllowsVacancySpecies(t *testing.T) {
	p, err := NewAtomSwap(protocol.Info{ID: "vac"}, 600, []string{"O", lattice.Vacant}, testCalculator(t), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewAtomSwap returned error: %v", err)
	}
	if err := p.Initialize(testState(t)); err != nil {
		t.Fatalf("vacancy species should pass initialization, got %v", err)
	}
}

func TestAtomSwapPreservesComposition(t *testing.T) {
	s := testState(t)
	before := s.Structure().SymbolCounts()
	calc := testCalculator(t)
	p, err := NewAtomSwap(protocol.Info{ID: "swap"}, 600, []string{"Mg", "Zn"}, calc, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("NewAtomSwap returned error: %v", err)
	}
	if err := p.Initialize(s); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	const steps = 100
	for i := 0; i < steps; i++ {
		if err := p.Step(s); err != nil {
			t.Fatalf("Step returned error: %v", err)
		}
	}
	after := s.Structure().SymbolCounts()
	for sym, n := range before {
		if after[sym] != n {
			t.Fatalf("composition changed for %s: %d -> %d", sym, n, after[sym])
		}
	}
	if p.Accepted()+p.Rejected() != steps {
		t.Fatalf("expected %d decisions, got %d accepted + %d rejected", steps, p.Accepted(), p.Rejected())
	}

	cached, ok := s.Energy()
	if !ok {
		t.Fatal("expected a cached energy after the run")
	}
	fresh, err := calc.Energy(s.Structure())
	if err != nil {
		t.Fatalf("Energy returned error: %v", err)
	}
	if math.Abs(cached-fresh) > 1e-9 {
		t.Fatalf("cached energy %v drifted from recomputed %v", cached, fresh)
	}
}

func TestAtomSwapExhaustsRetriesWithoutPartner(t *testing.T) {
	// "X" is allowed but no site carries it, so every draw yields the same
	// species and the bounded retry loop must give up.
	s := testState(t)
	p, err := NewAtomSwap(protocol.Info{ID: "vac"}, 600, []string{"O", lattice.Vacant}, testCalculator(t), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewAtomSwap returned error: %v", err)
	}
	if err := p.Initialize(s); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if err := p.Step(s); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if p.Rejected() != 1 || p.Accepted() != 0 {
		t.Fatalf("expected one rejection, got %d accepted %d rejected", p.Accepted(), p.Rejected())
	}
}

func TestAtomSwapLogOptionsArePrefixed(t *testing.T) {
	p, err := NewAtomSwap(protocol.Info{ID: "swap"}, 600, []string{"Mg", "Zn"}, testCalculator(t), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewAtomSwap returned error: %v", err)
	}
	options := p.LogOptions()
	if _, ok := options["module.swap.accepted_swaps"]; !ok {
		t.Fatalf("expected module.swap.accepted_swaps in %v", options)
	}
}

func TestGCMCRemovalsCreateVacancies(t *testing.T) {
	s := testState(t)
	calc := testCalculator(t)
	// A huge positive chemical potential makes every removal and insertion
	// acceptance factor astronomically large.
	p, err := NewGCMC(protocol.Info{ID: "gcmc"}, 600, map[string]float64{"O": 1000}, false, calc, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("NewGCMC returned error: %v", err)
	}
	if err := p.Initialize(s); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	const steps = 60
	occupiedBefore := s.Structure().NumOccupied()
	for i := 0; i < steps; i++ {
		if err := p.Step(s); err != nil {
			t.Fatalf("Step returned error: %v", err)
		}
	}
	options := p.LogOptions()
	removals := int(options["module.gcmc.accepted_removals"])
	insertions := int(options["module.gcmc.accepted_insertions"])
	if removals == 0 {
		t.Fatal("expected at least one accepted removal")
	}
	if got := p.Vacancies(); got != removals-insertions {
		t.Fatalf("vacancy bookkeeping off: %d vacancies, %d removals, %d insertions", got, removals, insertions)
	}
	if got := s.Structure().NumOccupied(); got != occupiedBefore-(removals-insertions) {
		t.Fatalf("occupied sites off: %d before, %d after, %d net removals", occupiedBefore, got, removals-insertions)
	}
}

func TestGCMCRejectionsRestoreState(t *testing.T) {
	s := testState(t)
	calc := testCalculator(t)
	// A huge negative chemical potential suppresses every removal; with no
	// vacancies, insertions are rejected outright.
	p, err := NewGCMC(protocol.Info{ID: "gcmc"}, 600, map[string]float64{"O": -1000}, false, calc, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("NewGCMC returned error: %v", err)
	}
	if err := p.Initialize(s); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	initial, err := calc.Energy(s.Structure())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		if err := p.Step(s); err != nil {
			t.Fatalf("Step returned error: %v", err)
		}
	}
	if p.Vacancies() != 0 {
		t.Fatalf("expected no vacancies, got %d", p.Vacancies())
	}
	cached, ok := s.Energy()
	if !ok || math.Abs(cached-initial) > 1e-9 {
		t.Fatalf("expected the initial energy %v to be restored, got %v (cached=%v)", initial, cached, ok)
	}
	options := p.LogOptions()
	if options["module.gcmc.accepted_removals"] != 0 || options["module.gcmc.accepted_insertions"] != 0 {
		t.Fatalf("expected every move rejected, got %v", options)
	}
}

func TestGCMCRejectsVacancyPotential(t *testing.T) {
	_, err := NewGCMC(protocol.Info{ID: "gcmc"}, 600, map[string]float64{lattice.Vacant: -1}, false, testCalculator(t), rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected error for a chemical potential on the vacancy placeholder")
	}
}

func TestGCMCRelaxedEnergiesNeedForces(t *testing.T) {
	_, err := NewGCMC(protocol.Info{ID: "gcmc"}, 600, map[string]float64{"O": -1}, true, testCalculator(t), rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected error when relaxed energies are requested without forces")
	}
}

func TestFactoriesResolveThroughRegistry(t *testing.T) {
	r := protocol.NewRegistry()
	Register(r)
	env := protocol.Env{Calculator: testCalculator(t), Rand: rand.New(rand.NewSource(1))}
	p, err := r.Resolve(protocol.Info{ID: "swap", Type: TypeAtomSwap}, protocol.Settings{
		"temperature": 600,
		"species":     []any{"Mg", "Zn"},
	}, env)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if p.Info().Type != TypeAtomSwap {
		t.Fatalf("expected type %s, got %s", TypeAtomSwap, p.Info().Type)
	}
	g, err := r.Resolve(protocol.Info{ID: "gcmc", Type: TypeGCMC}, protocol.Settings{
		"temperature":         600,
		"chemical_potentials": map[string]any{"O": -1.0},
	}, env)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if g.Info().Type != TypeGCMC {
		t.Fatalf("expected type %s, got %s", TypeGCMC, g.Info().Type)
	}
	if _, err := r.Resolve(protocol.Info{ID: "x", Type: TypeAtomSwap}, protocol.Settings{"species": []any{"Mg", "Zn"}}, env); err == nil {
		t.Fatal("expected error for missing temperature")
	}
}
