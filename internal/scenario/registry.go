package scenario

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a scenario id is not registered.
var ErrNotFound = errors.New("scenario: not found")

// Registry is an in-memory scenario lookup, safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]Scenario)}
}

// Add registers a scenario. The scenario must validate and its id must be
// unique within the registry.
func (r *Registry) Add(s Scenario) error {
	if err := Validate(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scenarios[s.ID]; exists {
		return fmt.Errorf("scenario: duplicate id %q", s.ID)
	}
	r.scenarios[s.ID] = s
	return nil
}

// Get returns the scenario with the given id, or [ErrNotFound].
func (r *Registry) Get(id string) (Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scenarios[id]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// List returns all registered scenarios sorted by id.
func (r *Registry) List() []Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scenario, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered scenarios.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenarios)
}
