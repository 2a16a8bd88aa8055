// Package signal turns a price panel into per-asset directional signals. It
// defines the Generator interface for signal models and provides a Registry
// for managing multiple implementations.
package signal

import (
	"sort"

	"meanrev/internal/domain"
)

// Generator is the interface that all signal models implement.
type Generator interface {
	// Name returns the unique identifier for this generator.
	Name() string

	// Signals derives a signal matrix from the panel. A non-nil matrix may be
	// returned together with joined per-asset errors (ErrInsufficientHistory):
	// affected assets stay flat while the rest carry usable signals.
	Signals(panel *domain.PricePanel) (*domain.SignalMatrix, error)
}

// Registry holds a named collection of generators for lookup and enumeration.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator to the registry, keyed by its Name().
func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Get retrieves a generator by name. The second return value indicates
// whether the generator was found.
func (r *Registry) Get(name string) (Generator, bool) {
	g, ok := r.generators[name]
	return g, ok
}

// List returns a sorted slice of all registered generator names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
