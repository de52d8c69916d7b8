package engine

import (
	"fmt"
	"sort"
)

type Registry struct {
	engines  map[string]Simulator
	fallback string
}

func NewRegistry() *Registry {
	return &Registry{engines: map[string]Simulator{}}
}

// Register adds s; the first engine registered becomes the default.
func (r *Registry) Register(s Simulator) {
	if r.fallback == "" {
		r.fallback = s.Name()
	}
	r.engines[s.Name()] = s
}

// SetDefault selects the engine used when Get is called with an empty name.
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.engines[name]; !ok {
		return fmt.Errorf("engine not registered: %s", name)
	}
	r.fallback = name
	return nil
}

func (r *Registry) Get(name string) (Simulator, error) {
	if name == "" {
		name = r.fallback
	}
	s, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("engine not registered: %s", name)
	}
	return s, nil
}

// Names lists the registered engines.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
