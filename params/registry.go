// Package params holds the tunable values shared by every pass of a loaded
// preset. Parameters are declared by shader sources at compile time and by
// preset overrides; the registry is the single owner of their current values.
package params

import (
	"fmt"
	"math"
	"sync"
)

// Parameter is a named, bounded tunable surfaced to shaders as a float uniform.
type Parameter struct {
	Name        string
	DisplayName string
	Default     float64
	Min         float64
	Max         float64
	Step        float64
	Current     float64
}

// UnknownParameterError reports a Get/Set against a name that was never
// registered. This is a caller contract violation, not a recoverable state.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter: %q", e.Name)
}

// Registry stores parameters in registration order. The zero value is not
// usable; call New.
type Registry struct {
	mu     sync.Mutex
	order  []string
	byName map[string]*Parameter
}

func New() *Registry {
	return &Registry{
		byName: make(map[string]*Parameter),
	}
}

// Register adds a parameter if its name is not already known. Registration is
// idempotent: a second call with the same name is a no-op and does not touch
// the existing parameter's bounds or current value.
func (r *Registry) Register(p Parameter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name]; exists {
		return
	}
	p.Current = clamp(p.Default, p.Min, p.Max)
	stored := p
	r.byName[p.Name] = &stored
	r.order = append(r.order, p.Name)
}

// Set clamps value into the parameter's [Min, Max] range and stores it.
func (r *Registry) Set(name string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	if !ok {
		return &UnknownParameterError{Name: name}
	}
	p.Current = clamp(value, p.Min, p.Max)
	return nil
}

// Get returns the parameter's current value.
func (r *Registry) Get(name string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	if !ok {
		return 0, &UnknownParameterError{Name: name}
	}
	return p.Current, nil
}

// Lookup returns a copy of the full parameter record, for host UI display.
func (r *Registry) Lookup(name string) (Parameter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	if !ok {
		return Parameter{}, false
	}
	return *p, true
}

// Snapshot returns every parameter's current value keyed by name, along with
// the names in registration order. The returned map is a copy.
func (r *Registry) Snapshot() (map[string]float64, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	values := make(map[string]float64, len(r.order))
	names := make([]string, len(r.order))
	copy(names, r.order)
	for name, p := range r.byName {
		values[name] = p.Current
	}
	return values, names
}

// All returns copies of every parameter record in registration order.
func (r *Registry) All() []Parameter {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Parameter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.byName[name])
	}
	return out
}

// ResetAll restores every parameter to its declared default.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.byName {
		p.Current = clamp(p.Default, p.Min, p.Max)
	}
}

// Len reports the number of registered parameters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// clamp keeps v inside [min, max]. NaN collapses to min so the registry never
// holds an unordered value.
func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) || v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
