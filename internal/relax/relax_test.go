package relax

import (
	"math"
	"testing"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/potential"
)

func dimer(spacing float64) *lattice.Structure {
	return &lattice.Structure{
		Positions: [][3]float64{{0, 0, 0}, {spacing, 0, 0}},
		Symbols:   []string{"Ar", "Ar"},
		Cell:      [3][3]float64{{100, 0, 0}, {0, 100, 0}, {0, 0, 100}},
		PBC:       [3]bool{true, true, true},
	}
}

func TestMinimizeFindsDimerMinimum(t *testing.T) {
	calc, err := potential.NewLennardJones(10, map[string]potential.LJSpecies{
		"Ar": {Epsilon: 0.01, Sigma: 3.4},
	})
	if err != nil {
		t.Fatalf("NewLennardJones returned error: %v", err)
	}
	s := dimer(3.9) // stretched past the minimum
	res, err := Minimize(s, calc, Options{Fmax: 1e-4, MaxSteps: 5000, StepSize: 10})
	if err != nil {
		t.Fatalf("Minimize returned error: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence, stopped at fmax=%v after %d steps", res.Fmax, res.Steps)
	}
	rmin := 3.4 * math.Pow(2, 1.0/6.0)
	r := s.Distance(0, 1)
	if math.Abs(r-rmin) > 1e-2 {
		t.Fatalf("expected bond length near %v, got %v", rmin, r)
	}
	if math.Abs(res.Energy-(-0.01)) > 1e-4 {
		t.Fatalf("expected energy near the well depth, got %v", res.Energy)
	}
}

func TestMinimizeRequiresForces(t *testing.T) {
	calc, err := potential.NewPairTable(3, map[string]float64{"Ar-Ar": -1})
	if err != nil {
		t.Fatalf("NewPairTable returned error: %v", err)
	}
	if _, err := Minimize(dimer(3.0), calc, Options{}); err == nil {
		t.Fatal("expected error for a calculator without forces")
	}
}

func TestMinimizeReportsNonConvergence(t *testing.T) {
	calc, err := potential.NewLennardJones(10, map[string]potential.LJSpecies{
		"Ar": {Epsilon: 0.01, Sigma: 3.4},
	})
	if err != nil {
		t.Fatalf("NewLennardJones returned error: %v", err)
	}
	s := dimer(3.0)
	res, err := Minimize(s, calc, Options{Fmax: 1e-12, MaxSteps: 1})
	if err != nil {
		t.Fatalf("Minimize returned error: %v", err)
	}
	if res.Converged {
		t.Fatal("expected non-convergence with one step and a tiny threshold")
	}
}
