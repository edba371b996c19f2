// Package vm provides the variable store for the STCR virtual machine.
package vm

import (
	"sort"
	"sync"

	"github.com/zurustar/stcr/pkg/value"
)

// Scope is the per-instance variable store. STCR has a single flat scope;
// functions share the caller's variables.
//
// The mutex lets a host read variables (for example a debug overlay) while the
// owning instance is idle between steps.
type Scope struct {
	variables map[string]value.Value
	mu        sync.RWMutex
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		variables: make(map[string]value.Value),
	}
}

// Get retrieves a variable value by name.
//
// Returns:
//   - value.Value: The variable value, or the absence-value if unset
//   - bool: true if the variable was found, false otherwise
func (s *Scope) Get(name string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variables[name]
	if !ok {
		return value.Value{}, false
	}
	return v, true
}

// Set stores v under name unless it structurally equals the current value.
// An unset variable counts as holding the absence-value.
//
// Returns true if the stored value changed.
func (s *Scope) Set(name string, v value.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.variables[name]; ok {
		if current.Equal(v) {
			return false
		}
	} else if v.IsNull() {
		return false
	}

	s.variables[name] = v
	return true
}

// Delete removes a variable.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.variables, name)
}

// Clear removes every variable.
func (s *Scope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables = make(map[string]value.Value)
}

// Names returns the variable names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.variables))
	for name := range s.variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of variables.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.variables)
}

// Snapshot returns a copy of all variables.
func (s *Scope) Snapshot() map[string]value.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]value.Value, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}
