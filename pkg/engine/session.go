package engine

import (
	"github.com/zurustar/stcr/pkg/vm"
)

// Session is one interpreter instance scheduled by the engine.
type Session struct {
	// ID is the instance identifier, shared with the VM.
	ID string

	// Script is the registry name of the program.
	Script string

	// Segment is the entry segment, or empty when started from the top.
	Segment string

	VM *vm.VM
}

// Status is a point-in-time view of a session, safe to hand to other
// goroutines.
type Status struct {
	ID         string
	Script     string
	Segment    string
	State      vm.State
	HaltReason vm.HaltReason
	Pointer    int
	Line       int
	CallDepth  int
	Variables  int
	Fault      error
}

// Status captures the session's current state.
func (s *Session) Status() Status {
	return Status{
		ID:         s.ID,
		Script:     s.Script,
		Segment:    s.Segment,
		State:      s.VM.State(),
		HaltReason: s.VM.HaltReason(),
		Pointer:    s.VM.Pointer(),
		Line:       s.VM.Program().Line(s.VM.Pointer()),
		CallDepth:  s.VM.CallDepth(),
		Variables:  s.VM.Scope().Len(),
		Fault:      s.VM.Fault(),
	}
}

// Halted reports whether the session has stopped for good.
func (s *Session) Halted() bool {
	return s.VM.State() == vm.Halted
}
