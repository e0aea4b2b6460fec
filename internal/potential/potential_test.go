package potential

import (
	"math"
	"testing"

	"github.com/abmazitov/heox/internal/lattice"
)

func pairStructure(symbols []string, spacing float64) *lattice.Structure {
	s := &lattice.Structure{
		Cell: [3][3]float64{{100, 0, 0}, {0, 100, 0}, {0, 0, 100}},
		PBC:  [3]bool{true, true, true},
	}
	for i, sym := range symbols {
		s.Positions = append(s.Positions, [3]float64{float64(i) * spacing, 0, 0})
		s.Symbols = append(s.Symbols, sym)
	}
	return s
}

func TestPairTableCountsNeighborsWithinCutoff(t *testing.T) {
	calc, err := NewPairTable(3.0, map[string]float64{"Zn-Mg": -0.5})
	if err != nil {
		t.Fatalf("NewPairTable returned error: %v", err)
	}
	s := pairStructure([]string{"Mg", "Zn", "Mg"}, 2.5)
	e, err := calc.Energy(s)
	if err != nil {
		t.Fatalf("Energy returned error: %v", err)
	}
	// Two in-range Mg-Zn pairs (0-1 and 1-2); the Mg-Mg pair is untabulated.
	if math.Abs(e-(-1.0)) > 1e-12 {
		t.Fatalf("expected energy -1.0, got %v", e)
	}
}

func TestPairTableSkipsVacantSites(t *testing.T) {
	calc, err := NewPairTable(3.0, map[string]float64{"Mg-X": -9, "Mg-Zn": -0.5})
	if err != nil {
		t.Fatalf("NewPairTable returned error: %v", err)
	}
	s := pairStructure([]string{"Mg", lattice.Vacant, "Zn"}, 2.5)
	e, err := calc.Energy(s)
	if err != nil {
		t.Fatalf("Energy returned error: %v", err)
	}
	if e != 0 {
		t.Fatalf("expected vacancies to contribute nothing, got %v", e)
	}
}

func TestPairTableKeyOrderIsCanonical(t *testing.T) {
	if PairKey("Zn", "Mg") != PairKey("Mg", "Zn") {
		t.Fatal("pair keys must not depend on species order")
	}
}

func TestLennardJonesMinimumEnergy(t *testing.T) {
	calc, err := NewLennardJones(10, map[string]LJSpecies{
		"Ar": {Epsilon: 0.01, Sigma: 3.4},
	})
	if err != nil {
		t.Fatalf("NewLennardJones returned error: %v", err)
	}
	rmin := 3.4 * math.Pow(2, 1.0/6.0)
	s := pairStructure([]string{"Ar", "Ar"}, rmin)
	e, err := calc.Energy(s)
	if err != nil {
		t.Fatalf("Energy returned error: %v", err)
	}
	if math.Abs(e-(-0.01)) > 1e-9 {
		t.Fatalf("expected well depth -0.01 at the minimum, got %v", e)
	}
	forces, err := calc.Forces(s)
	if err != nil {
		t.Fatalf("Forces returned error: %v", err)
	}
	for c := 0; c < 3; c++ {
		if math.Abs(forces[0][c]) > 1e-9 {
			t.Fatalf("expected zero force at the minimum, got %v", forces[0])
		}
	}
}

func TestLennardJonesForcesMatchNumericalGradient(t *testing.T) {
	calc, err := NewLennardJones(8, map[string]LJSpecies{
		"Mg": {Epsilon: 0.02, Sigma: 2.8},
		"Zn": {Epsilon: 0.03, Sigma: 3.1},
	})
	if err != nil {
		t.Fatalf("NewLennardJones returned error: %v", err)
	}
	s := pairStructure([]string{"Mg", "Zn"}, 3.0)
	forces, err := calc.Forces(s)
	if err != nil {
		t.Fatalf("Forces returned error: %v", err)
	}
	const h = 1e-6
	for c := 0; c < 3; c++ {
		plus := s.Copy()
		plus.Positions[1][c] += h
		minus := s.Copy()
		minus.Positions[1][c] -= h
		ePlus, err := calc.Energy(plus)
		if err != nil {
			t.Fatalf("Energy returned error: %v", err)
		}
		eMinus, err := calc.Energy(minus)
		if err != nil {
			t.Fatalf("Energy returned error: %v", err)
		}
		numeric := -(ePlus - eMinus) / (2 * h)
		if math.Abs(numeric-forces[1][c]) > 1e-5 {
			t.Fatalf("axis %d: analytic force %v does not match numeric %v", c, forces[1][c], numeric)
		}
	}
}

func TestRegistryResolvesBuiltins(t *testing.T) {
	r := DefaultRegistry()
	calc, err := r.Resolve(PairTableName, Params{
		"cutoff":       3.0,
		"interactions": map[string]any{"Mg-Zn": -0.5},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if calc.Name() != PairTableName {
		t.Fatalf("expected %s, got %s", PairTableName, calc.Name())
	}
	if _, err := r.Resolve("eam", nil); err == nil {
		t.Fatal("expected error for unknown calculator")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := DefaultRegistry()
	if err := r.Register(PairTableName, NewPairTableFromParams); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
