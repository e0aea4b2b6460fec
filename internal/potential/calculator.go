// Package potential evaluates lattice energies. Calculators are registered
// by name and constructed from opaque parameter maps so configuration files
// and plugins can select them without compile-time coupling.
package potential

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abmazitov/heox/internal/lattice"
)

// Calculator computes the potential energy of a structure in eV. Vacant
// sites must not contribute.
type Calculator interface {
	Name() string
	Energy(s *lattice.Structure) (float64, error)
}

// ForceProvider is implemented by calculators that can evaluate forces
// (eV/Angstrom), which relaxation requires.
type ForceProvider interface {
	Forces(s *lattice.Structure) ([][3]float64, error)
}

// Params carries calculator-specific configuration (opaque to the runtime).
type Params map[string]any

// Factory constructs a calculator from its parameters.
type Factory func(Params) (Calculator, error)

// Registry maintains known calculator factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry with the built-in calculators installed.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(PairTableName, NewPairTableFromParams)
	r.MustRegister(LennardJonesName, NewLennardJonesFromParams)
	return r
}

// Register installs a calculator factory. Returns an error if the name
// already exists.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("potential: calculator name is required")
	}
	if factory == nil {
		return fmt.Errorf("potential: factory is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("potential: %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a calculator by name.
func (r *Registry) Resolve(name string, params Params) (Calculator, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("potential: unknown calculator %s (known: %v)", name, r.Names())
	}
	calc, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("potential: build %s: %w", name, err)
	}
	return calc, nil
}

// Names lists registered calculators in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// floatParam reads a numeric parameter; YAML hands ints and floats
// interchangeably.
func floatParam(params Params, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("parameter %s must be a number, got %T", key, raw)
	}
}
