package protocol

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/abmazitov/heox/internal/potential"
)

// Settings represents protocol-specific configuration (opaque to the
// runtime).
type Settings map[string]any

// Env bundles the shared resources a factory may need.
type Env struct {
	Calculator potential.Calculator
	Rand       *rand.Rand
}

// Factory constructs a protocol instance with the provided settings.
type Factory func(info Info, settings Settings, env Env) (Protocol, error)

// Registry maintains known protocol factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a protocol factory. Returns an error if the type already
// exists.
func (r *Registry) Register(protocolType string, factory Factory) error {
	if protocolType == "" {
		return fmt.Errorf("protocol: type is required")
	}
	if factory == nil {
		return fmt.Errorf("protocol: factory is required for %s", protocolType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[protocolType]; exists {
		return fmt.Errorf("protocol: %s already registered", protocolType)
	}
	r.factories[protocolType] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(protocolType string, factory Factory) {
	if err := r.Register(protocolType, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a protocol by type.
func (r *Registry) Resolve(info Info, settings Settings, env Env) (Protocol, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	factory, ok := r.factories[info.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("protocol: unknown type %s (known: %v)", info.Type, r.Types())
	}
	p, err := factory(info, settings, env)
	if err != nil {
		return nil, fmt.Errorf("protocol %s: %w", info.ID, err)
	}
	return p, nil
}

// Types lists registered protocol types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
