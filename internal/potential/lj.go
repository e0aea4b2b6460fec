package potential

import (
	"fmt"
	"math"

	"github.com/abmazitov/heox/internal/lattice"
)

// LennardJonesName is the registry key of the Lennard-Jones calculator.
const LennardJonesName = "lennard_jones"

// LJSpecies holds the per-species Lennard-Jones parameters.
type LJSpecies struct {
	Epsilon float64 // well depth, eV
	Sigma   float64 // zero-crossing distance, Angstrom
}

// LennardJones is a real-space 12-6 potential with Lorentz-Berthelot mixing
// and a radial cutoff under the minimum image convention. It provides
// analytic forces, which makes it usable with relaxation.
type LennardJones struct {
	cutoff  float64
	species map[string]LJSpecies
}

// NewLennardJones builds the calculator from per-species parameters.
func NewLennardJones(cutoff float64, species map[string]LJSpecies) (*LennardJones, error) {
	if cutoff <= 0 {
		return nil, fmt.Errorf("lennard-jones cutoff must be positive, got %v", cutoff)
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("lennard-jones needs at least one species")
	}
	for sym, p := range species {
		if p.Epsilon <= 0 || p.Sigma <= 0 {
			return nil, fmt.Errorf("lennard-jones parameters for %s must be positive (epsilon=%v sigma=%v)", sym, p.Epsilon, p.Sigma)
		}
	}
	return &LennardJones{cutoff: cutoff, species: species}, nil
}

// NewLennardJonesFromParams builds a LennardJones from opaque parameters:
// "cutoff" (number) and "species" (map of symbol to {epsilon, sigma}).
func NewLennardJonesFromParams(params Params) (Calculator, error) {
	cutoff, ok, err := floatParam(params, "cutoff")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("parameter cutoff is required")
	}
	raw, ok := params["species"]
	if !ok {
		return nil, fmt.Errorf("parameter species is required")
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("species must be a map of symbol to parameters, got %T", raw)
	}
	species := make(map[string]LJSpecies, len(entries))
	for sym, value := range entries {
		fields, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("species %s must be a map with epsilon and sigma, got %T", sym, value)
		}
		epsilon, ok, err := floatParam(fields, "epsilon")
		if err != nil || !ok {
			return nil, fmt.Errorf("species %s: epsilon is required", sym)
		}
		sigma, ok, err := floatParam(fields, "sigma")
		if err != nil || !ok {
			return nil, fmt.Errorf("species %s: sigma is required", sym)
		}
		species[sym] = LJSpecies{Epsilon: epsilon, Sigma: sigma}
	}
	return NewLennardJones(cutoff, species)
}

// Name implements Calculator.
func (lj *LennardJones) Name() string { return LennardJonesName }

func (lj *LennardJones) mixed(a, b string) (epsilon, sigma float64, err error) {
	pa, ok := lj.species[a]
	if !ok {
		return 0, 0, fmt.Errorf("lennard-jones: no parameters for species %s", a)
	}
	pb, ok := lj.species[b]
	if !ok {
		return 0, 0, fmt.Errorf("lennard-jones: no parameters for species %s", b)
	}
	return math.Sqrt(pa.Epsilon * pb.Epsilon), (pa.Sigma + pb.Sigma) / 2, nil
}

// Energy implements Calculator.
func (lj *LennardJones) Energy(s *lattice.Structure) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	total := 0.0
	for i := 0; i < s.Len(); i++ {
		if !s.Occupied(i) {
			continue
		}
		for j := i + 1; j < s.Len(); j++ {
			if !s.Occupied(j) {
				continue
			}
			r := s.Distance(i, j)
			if r > lj.cutoff || r == 0 {
				continue
			}
			epsilon, sigma, err := lj.mixed(s.Symbols[i], s.Symbols[j])
			if err != nil {
				return 0, err
			}
			sr6 := math.Pow(sigma/r, 6)
			total += 4 * epsilon * (sr6*sr6 - sr6)
		}
	}
	return total, nil
}

// Forces implements ForceProvider.
func (lj *LennardJones) Forces(s *lattice.Structure) ([][3]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	forces := make([][3]float64, s.Len())
	for i := 0; i < s.Len(); i++ {
		if !s.Occupied(i) {
			continue
		}
		for j := i + 1; j < s.Len(); j++ {
			if !s.Occupied(j) {
				continue
			}
			d := s.Displacement(i, j)
			r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
			r := math.Sqrt(r2)
			if r > lj.cutoff || r == 0 {
				continue
			}
			epsilon, sigma, err := lj.mixed(s.Symbols[i], s.Symbols[j])
			if err != nil {
				return nil, err
			}
			sr6 := math.Pow(sigma*sigma/r2, 3)
			// dU/dr divided by r, acting along the pair vector.
			coeff := 24 * epsilon * (2*sr6*sr6 - sr6) / r2
			for c := 0; c < 3; c++ {
				// d points from i to j; positive coeff pushes them apart.
				forces[i][c] -= coeff * d[c]
				forces[j][c] += coeff * d[c]
			}
		}
	}
	return forces, nil
}
