// Package lattice models periodic crystal structures for on-lattice Monte
// Carlo runs. A Structure is a fixed set of lattice sites: positions stay put
// while protocols permute or vacate the chemical symbols living on them.
// Vacant sites carry the placeholder symbol "X".
package lattice

import (
	"fmt"
	"math"
	"sort"
)

const (
	// Vacant marks an empty lattice site.
	Vacant = "X"
	// Anion is the anion species shared by every HEO pattern we build.
	Anion = "O"
)

// Structure is a periodic arrangement of chemical symbols on lattice sites.
// Positions are Cartesian, in Angstrom. Cell rows are the lattice vectors.
type Structure struct {
	Positions [][3]float64
	Symbols   []string
	Cell      [3][3]float64
	PBC       [3]bool
}

// Len returns the number of lattice sites, vacant ones included.
func (s *Structure) Len() int {
	return len(s.Positions)
}

// Validate ensures positions and symbols line up.
func (s *Structure) Validate() error {
	if len(s.Positions) == 0 {
		return fmt.Errorf("lattice: structure has no sites")
	}
	if len(s.Positions) != len(s.Symbols) {
		return fmt.Errorf("lattice: %d positions but %d symbols", len(s.Positions), len(s.Symbols))
	}
	return nil
}

// Copy returns a deep copy of the structure.
func (s *Structure) Copy() *Structure {
	clone := &Structure{
		Positions: make([][3]float64, len(s.Positions)),
		Symbols:   make([]string, len(s.Symbols)),
		Cell:      s.Cell,
		PBC:       s.PBC,
	}
	copy(clone.Positions, s.Positions)
	copy(clone.Symbols, s.Symbols)
	return clone
}

// SymbolCounts tallies how many sites carry each symbol.
func (s *Structure) SymbolCounts() map[string]int {
	counts := make(map[string]int, 8)
	for _, sym := range s.Symbols {
		counts[sym]++
	}
	return counts
}

// Species returns the sorted set of symbols present in the structure.
func (s *Structure) Species() []string {
	counts := s.SymbolCounts()
	species := make([]string, 0, len(counts))
	for sym := range counts {
		species = append(species, sym)
	}
	sort.Strings(species)
	return species
}

// Occupied reports whether site i carries a real atom.
func (s *Structure) Occupied(i int) bool {
	return s.Symbols[i] != Vacant
}

// NumOccupied counts the non-vacant sites.
func (s *Structure) NumOccupied() int {
	n := 0
	for _, sym := range s.Symbols {
		if sym != Vacant {
			n++
		}
	}
	return n
}

// Repeat expands the structure into an nx ny nz supercell. The receiver is
// not modified.
func (s *Structure) Repeat(nx, ny, nz int) (*Structure, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("lattice: supercell factors must be >= 1, got (%d, %d, %d)", nx, ny, nz)
	}
	reps := [3]int{nx, ny, nz}
	out := &Structure{
		Positions: make([][3]float64, 0, s.Len()*nx*ny*nz),
		Symbols:   make([]string, 0, s.Len()*nx*ny*nz),
		PBC:       s.PBC,
	}
	for axis := 0; axis < 3; axis++ {
		for k := 0; k < 3; k++ {
			out.Cell[axis][k] = s.Cell[axis][k] * float64(reps[axis])
		}
	}
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				var shift [3]float64
				for c := 0; c < 3; c++ {
					shift[c] = float64(i)*s.Cell[0][c] + float64(j)*s.Cell[1][c] + float64(k)*s.Cell[2][c]
				}
				for site := 0; site < s.Len(); site++ {
					p := s.Positions[site]
					out.Positions = append(out.Positions, [3]float64{p[0] + shift[0], p[1] + shift[1], p[2] + shift[2]})
					out.Symbols = append(out.Symbols, s.Symbols[site])
				}
			}
		}
	}
	return out, nil
}

// SortBySymbol orders sites by symbol (stable on position order within a
// symbol) so trajectory frames group species together.
func (s *Structure) SortBySymbol() {
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.Symbols[idx[a]] < s.Symbols[idx[b]]
	})
	positions := make([][3]float64, s.Len())
	symbols := make([]string, s.Len())
	for to, from := range idx {
		positions[to] = s.Positions[from]
		symbols[to] = s.Symbols[from]
	}
	s.Positions = positions
	s.Symbols = symbols
}

// Displacement returns the vector from site i to site j under the minimum
// image convention on periodic axes.
func (s *Structure) Displacement(i, j int) [3]float64 {
	var d [3]float64
	for c := 0; c < 3; c++ {
		d[c] = s.Positions[j][c] - s.Positions[i][c]
	}
	return s.MinimumImage(d)
}

// MinimumImage folds a Cartesian displacement into the primary cell image.
func (s *Structure) MinimumImage(d [3]float64) [3]float64 {
	inv, ok := invert3(s.Cell)
	if !ok {
		return d
	}
	var frac [3]float64
	for c := 0; c < 3; c++ {
		frac[c] = d[0]*inv[0][c] + d[1]*inv[1][c] + d[2]*inv[2][c]
	}
	for c := 0; c < 3; c++ {
		if s.PBC[c] {
			frac[c] -= math.Round(frac[c])
		}
	}
	var out [3]float64
	for c := 0; c < 3; c++ {
		out[c] = frac[0]*s.Cell[0][c] + frac[1]*s.Cell[1][c] + frac[2]*s.Cell[2][c]
	}
	return out
}

// Distance returns the minimum-image distance between sites i and j.
func (s *Structure) Distance(i, j int) float64 {
	d := s.Displacement(i, j)
	return math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
}

// invert3 inverts a 3x3 matrix. ok is false when the cell is singular.
func invert3(m [3][3]float64) ([3][3]float64, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return [3][3]float64{}, false
	}
	inv := [3][3]float64{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] /= det
		}
	}
	return inv, true
}
