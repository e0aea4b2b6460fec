package lattice

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// Pattern names a supported base crystal structure.
type Pattern string

const (
	PatternRocksalt   Pattern = "rocksalt"
	PatternPerovskite Pattern = "perovskite"
	PatternFluorite   Pattern = "fluorite"
)

// Patterns lists the supported base patterns in a stable order.
func Patterns() []Pattern {
	return []Pattern{PatternRocksalt, PatternPerovskite, PatternFluorite}
}

func cubicCell(a float64) [3][3]float64 {
	return [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}

// Rocksalt builds the cubic MgO-patterned rocksalt cell with lattice
// parameter a. Cation sites are seeded with "Mg"; BulkHEO reassigns them.
func Rocksalt(a float64) *Structure {
	return fromBasis(a,
		[]string{"Mg", "Mg", "Mg", "Mg", Anion, Anion, Anion, Anion},
		[][3]float64{
			{0, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5},
			{0.5, 0, 0}, {0, 0.5, 0}, {0, 0, 0.5}, {0.5, 0.5, 0.5},
		})
}

// Perovskite builds the cubic SrTiO3-patterned perovskite cell. Both the A
// and B sites count as cation sites for composition assignment.
func Perovskite(a float64) *Structure {
	return fromBasis(a,
		[]string{"Sr", "Ti", Anion, Anion, Anion},
		[][3]float64{
			{0, 0, 0}, {0.5, 0.5, 0.5},
			{0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5},
		})
}

// Fluorite builds the cubic CeO2-patterned fluorite cell.
func Fluorite(a float64) *Structure {
	return fromBasis(a,
		[]string{"Ce", "Ce", "Ce", "Ce",
			Anion, Anion, Anion, Anion, Anion, Anion, Anion, Anion},
		[][3]float64{
			{0, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5},
			{0.25, 0.25, 0.25}, {0.75, 0.25, 0.25}, {0.25, 0.75, 0.25}, {0.25, 0.25, 0.75},
			{0.75, 0.75, 0.25}, {0.75, 0.25, 0.75}, {0.25, 0.75, 0.75}, {0.75, 0.75, 0.75},
		})
}

func fromBasis(a float64, symbols []string, frac [][3]float64) *Structure {
	s := &Structure{
		Symbols: append([]string{}, symbols...),
		Cell:    cubicCell(a),
		PBC:     [3]bool{true, true, true},
	}
	s.Positions = make([][3]float64, len(frac))
	for i, f := range frac {
		s.Positions[i] = [3]float64{f[0] * a, f[1] * a, f[2] * a}
	}
	return s
}

// BasePattern returns the unit cell for the named pattern.
func BasePattern(pattern Pattern, a float64) (*Structure, error) {
	switch pattern {
	case PatternRocksalt:
		return Rocksalt(a), nil
	case PatternPerovskite:
		return Perovskite(a), nil
	case PatternFluorite:
		return Fluorite(a), nil
	default:
		names := make([]string, 0, 3)
		for _, p := range Patterns() {
			names = append(names, string(p))
		}
		return nil, fmt.Errorf("lattice: unknown pattern %q, available patterns: %s", pattern, strings.Join(names, ", "))
	}
}

// BulkSpec describes a bulk HEO structure to build.
type BulkSpec struct {
	// Pattern selects the base crystal structure.
	Pattern Pattern
	// Composition maps cation species to stoichiometric coefficients. The
	// coefficients are renormalized to sum to one.
	Composition map[string]float64
	// A is the cubic lattice parameter in Angstrom. Zero means 5.0.
	A float64
	// Supercell repeats the unit cell along each axis. Zero entries mean 1.
	Supercell [3]int
	// Dopant optionally adds one more species at DopantFraction; the host
	// cations are rescaled to make room.
	Dopant         string
	DopantFraction float64
}

func (spec BulkSpec) normalized() (BulkSpec, error) {
	if len(spec.Composition) == 0 {
		return spec, fmt.Errorf("lattice: bulk spec needs at least one cation species")
	}
	if spec.A == 0 {
		spec.A = 5.0
	}
	for c := 0; c < 3; c++ {
		if spec.Supercell[c] == 0 {
			spec.Supercell[c] = 1
		}
	}
	total := 0.0
	for sym, coeff := range spec.Composition {
		if coeff < 0 {
			return spec, fmt.Errorf("lattice: negative coefficient for %s", sym)
		}
		total += coeff
	}
	if total == 0 {
		return spec, fmt.Errorf("lattice: composition coefficients sum to zero")
	}
	composition := make(map[string]float64, len(spec.Composition)+1)
	for sym, coeff := range spec.Composition {
		composition[sym] = coeff / total
	}
	if spec.Dopant != "" {
		if spec.DopantFraction <= 0 || spec.DopantFraction >= 1 {
			return spec, fmt.Errorf("lattice: dopant fraction must be in (0, 1), got %v", spec.DopantFraction)
		}
		if _, exists := composition[spec.Dopant]; exists {
			return spec, fmt.Errorf("lattice: dopant %s already present in the composition", spec.Dopant)
		}
		for sym := range composition {
			composition[sym] *= 1 - spec.DopantFraction
		}
		composition[spec.Dopant] = spec.DopantFraction
	}
	spec.Composition = composition
	return spec, nil
}

// BulkHEO builds a bulk high-entropy oxide: the base pattern is repeated into
// the requested supercell, the cation sublattice is filled with a random
// permutation matching the composition, and the anion sublattice stays "O".
// The fraction of every species must resolve to a whole number of cation
// sites. rng drives the site assignment so builds are reproducible.
func BulkHEO(spec BulkSpec, rng *rand.Rand) (*Structure, error) {
	spec, err := spec.normalized()
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("lattice: BulkHEO requires a random source")
	}
	base, err := BasePattern(spec.Pattern, spec.A)
	if err != nil {
		return nil, err
	}
	s, err := base.Repeat(spec.Supercell[0], spec.Supercell[1], spec.Supercell[2])
	if err != nil {
		return nil, err
	}

	cationSites := make([]int, 0, s.Len())
	for i, sym := range s.Symbols {
		if sym != Anion {
			cationSites = append(cationSites, i)
		}
	}
	numSites := len(cationSites)

	// Stable species order so the same seed always yields the same structure.
	species := make([]string, 0, len(spec.Composition))
	for sym := range spec.Composition {
		species = append(species, sym)
	}
	sort.Strings(species)

	assignment := make([]string, 0, numSites)
	for _, sym := range species {
		fraction := spec.Composition[sym]
		count := fraction * float64(numSites)
		rounded := math.Round(count)
		if math.Abs(count-rounded) > 1e-9 {
			return nil, fmt.Errorf(
				"lattice: cannot realize %s fraction %v on a %dx%dx%d supercell with %d cation sites; adjust the composition or the supercell",
				sym, fraction, spec.Supercell[0], spec.Supercell[1], spec.Supercell[2], numSites)
		}
		for k := 0; k < int(rounded); k++ {
			assignment = append(assignment, sym)
		}
	}
	if len(assignment) != numSites {
		return nil, fmt.Errorf("lattice: composition fills %d of %d cation sites", len(assignment), numSites)
	}
	rng.Shuffle(len(assignment), func(i, j int) {
		assignment[i], assignment[j] = assignment[j], assignment[i]
	})
	for k, site := range cationSites {
		s.Symbols[site] = assignment[k]
	}
	s.SortBySymbol()
	return s, nil
}
