// Package vm provides the event tables for the STCR virtual machine.
// Two kinds of events exist:
// - Variable events: a handler name queued as a trigger when a variable changes
// - Special events: host-fired callbacks registered by name
//
// Triggers queued by either kind run at the start of the next step, never
// inside the command that caused them.
package vm

import "sort"

// Events holds the event tables and the pending-trigger set of one instance.
type Events struct {
	variable map[string]string
	special  map[string]func()

	// pending triggers in insertion order, without duplicates
	triggers []string
	queued   map[string]struct{}
}

// NewEvents creates empty event tables.
func NewEvents() *Events {
	return &Events{
		variable: make(map[string]string),
		special:  make(map[string]func()),
		queued:   make(map[string]struct{}),
	}
}

// OnVariable registers handler to be triggered when the variable changes.
// A later registration for the same variable replaces the earlier one.
func (e *Events) OnVariable(name, handler string) {
	e.variable[name] = handler
}

// VariableHandler returns the handler registered for a variable.
func (e *Events) VariableHandler(name string) (string, bool) {
	h, ok := e.variable[name]
	return h, ok
}

// OnSpecial registers a special event. A nil callback makes firing the event
// a no-op while still counting it as registered.
func (e *Events) OnSpecial(name string, callback func()) {
	e.special[name] = callback
}

// Special returns the callback registered for a special event.
func (e *Events) Special(name string) (func(), bool) {
	cb, ok := e.special[name]
	return cb, ok
}

// SpecialNames returns the registered special events in sorted order.
func (e *Events) SpecialNames() []string {
	names := make([]string, 0, len(e.special))
	for name := range e.special {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearVariables removes every variable event.
func (e *Events) ClearVariables() {
	e.variable = make(map[string]string)
}

// ClearSpecial removes every special event.
func (e *Events) ClearSpecial() {
	e.special = make(map[string]func())
}

// Enqueue adds a trigger for the next step. Queuing a trigger that is already
// pending has no effect.
func (e *Events) Enqueue(trigger string) {
	if _, ok := e.queued[trigger]; ok {
		return
	}
	e.queued[trigger] = struct{}{}
	e.triggers = append(e.triggers, trigger)
}

// Pending returns the queued triggers without removing them.
func (e *Events) Pending() []string {
	out := make([]string, len(e.triggers))
	copy(out, e.triggers)
	return out
}

// Drain removes and returns every queued trigger.
func (e *Events) Drain() []string {
	out := e.triggers
	e.triggers = nil
	e.queued = make(map[string]struct{})
	return out
}
