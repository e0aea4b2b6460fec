package potential

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abmazitov/heox/internal/lattice"
)

// PairTableName is the registry key of the pair-table calculator.
const PairTableName = "pair_table"

// PairTable is an on-lattice interaction model: every pair of occupied sites
// within the cutoff contributes the tabulated energy of its species pair.
// Pairs missing from the table contribute nothing, so sparse tables describe
// only the interactions that matter for the sampling at hand.
type PairTable struct {
	cutoff       float64
	interactions map[string]float64
}

// NewPairTable builds the calculator. interactions is keyed "A-B"; key order
// does not matter.
func NewPairTable(cutoff float64, interactions map[string]float64) (*PairTable, error) {
	if cutoff <= 0 {
		return nil, fmt.Errorf("pair table cutoff must be positive, got %v", cutoff)
	}
	if len(interactions) == 0 {
		return nil, fmt.Errorf("pair table needs at least one interaction")
	}
	normalized := make(map[string]float64, len(interactions))
	for key, energy := range interactions {
		a, b, found := strings.Cut(key, "-")
		if !found || a == "" || b == "" {
			return nil, fmt.Errorf("pair key %q must be of the form A-B", key)
		}
		normalized[PairKey(a, b)] = energy
	}
	return &PairTable{cutoff: cutoff, interactions: normalized}, nil
}

// NewPairTableFromParams builds a PairTable from opaque parameters:
// "cutoff" (number) and "interactions" (map of "A-B" to energy in eV).
func NewPairTableFromParams(params Params) (Calculator, error) {
	cutoff, ok, err := floatParam(params, "cutoff")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("parameter cutoff is required")
	}
	raw, ok := params["interactions"]
	if !ok {
		return nil, fmt.Errorf("parameter interactions is required")
	}
	table, err := interactionTable(raw)
	if err != nil {
		return nil, err
	}
	return NewPairTable(cutoff, table)
}

func interactionTable(raw any) (map[string]float64, error) {
	table := make(map[string]float64)
	switch m := raw.(type) {
	case map[string]float64:
		return m, nil
	case map[string]any:
		for key, value := range m {
			switch v := value.(type) {
			case float64:
				table[key] = v
			case int:
				table[key] = float64(v)
			default:
				return nil, fmt.Errorf("interaction %s must be a number, got %T", key, value)
			}
		}
		return table, nil
	default:
		return nil, fmt.Errorf("interactions must be a map of \"A-B\" pairs to energies, got %T", raw)
	}
}

// PairKey normalizes a species pair into its canonical table key.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}

// Name implements Calculator.
func (p *PairTable) Name() string { return PairTableName }

// Cutoff returns the neighbor cutoff in Angstrom.
func (p *PairTable) Cutoff() float64 { return p.cutoff }

// Pairs lists the tabulated pair keys in sorted order.
func (p *PairTable) Pairs() []string {
	keys := make([]string, 0, len(p.interactions))
	for key := range p.interactions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Energy implements Calculator.
func (p *PairTable) Energy(s *lattice.Structure) (float64, error) {
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
			energy, ok := p.interactions[PairKey(s.Symbols[i], s.Symbols[j])]
			if !ok {
				continue
			}
			if s.Distance(i, j) <= p.cutoff {
				total += energy
			}
		}
	}
	return total, nil
}
