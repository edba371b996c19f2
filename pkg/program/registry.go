package program

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps script identities to compiled programs. It is passed
// explicitly to whoever needs to resolve a script by name.
type Registry struct {
	programs map[string]*Program
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]*Program)}
}

// Register stores p under name. Registering the same name twice is an error.
func (r *Registry) Register(name string, p *Program) error {
	if p == nil {
		return fmt.Errorf("program: register %q: nil program", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.programs[name]; exists {
		return fmt.Errorf("program: %q already registered", name)
	}
	r.programs[name] = p
	return nil
}

// Replace stores p under name, overwriting any previous program.
func (r *Registry) Replace(name string, p *Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[name] = p
}

// Get returns the program registered under name.
func (r *Registry) Get(name string) (*Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered programs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}
