// Package opcode defines the instruction set for the STCR virtual machine.
// This package is the foundation that both the compiler and VM depend on.
// The compiler generates Instruction arrays, and the VM executes them.
package opcode

import (
	"fmt"

	"github.com/zurustar/stcr/pkg/value"
)

// Type represents an instruction type.
type Type int

// Instruction types for all supported operations.
const (
	// Command invokes a named command handler.
	// Fields: Key (handler name), Value (argument)
	Command Type = iota

	// Segment marks a named entry point. Reaching one while running ends the segment.
	// Fields: Key
	Segment

	// Checkpoint marks a named jump target.
	// Fields: Key
	Checkpoint

	// Func marks the entry of an internal function.
	// Fields: Key
	Func

	// Jump transfers control unconditionally.
	// Fields: Target
	Jump

	// JumpIf evaluates its guard and transfers control to Target when false.
	// Fields: Value (Operation), Target
	JumpIf

	// CallEnd returns from an internal function.
	CallEnd

	// InternalCall enters a function by name.
	// Fields: Key (callee)
	InternalCall

	// ExternalCall dispatches a host function.
	// Fields: Key (call string, e.g. @Print("hi"))
	ExternalCall

	// Ignore is a structural no-op (else, endif).
	Ignore
)

var typeNames = [...]string{
	Command:      "Command",
	Segment:      "Segment",
	Checkpoint:   "Checkpoint",
	Func:         "Func",
	Jump:         "Jump",
	JumpIf:       "JumpIf",
	CallEnd:      "CallEnd",
	InternalCall: "InternalCall",
	ExternalCall: "ExternalCall",
	Ignore:       "Ignore",
}

// String returns the instruction type name.
func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsJump reports whether the type carries a jump target.
func (t Type) IsJump() bool {
	return t == Jump || t == JumpIf
}

// Instruction is one compiled unit.
//
// Target is a resolved instruction index once compilation has finished. During
// compilation a Jump may still hold a symbolic checkpoint name in Key.
type Instruction struct {
	Type   Type        `cbor:"1,keyasint"`
	Key    string      `cbor:"2,keyasint,omitempty"`
	Value  value.Value `cbor:"3,keyasint"`
	Target int         `cbor:"4,keyasint"`
}

// NewCommand creates a Command instruction.
func NewCommand(name string, arg value.Value) Instruction {
	return Instruction{Type: Command, Key: name, Value: arg}
}

// NewMarker creates a Segment, Checkpoint or Func marker.
func NewMarker(t Type, name string) Instruction {
	return Instruction{Type: t, Key: name}
}

// NewJump creates a Jump to a resolved index.
func NewJump(target int) Instruction {
	return Instruction{Type: Jump, Target: target}
}

// NewSymbolicJump creates a Jump to a checkpoint resolved after compilation.
func NewSymbolicJump(checkpoint string) Instruction {
	return Instruction{Type: Jump, Key: checkpoint, Target: -1}
}

// NewJumpIf creates a conditional jump taken when the guard is false.
func NewJumpIf(guard *value.BoolExp, target int) Instruction {
	return Instruction{Type: JumpIf, Value: value.NewOperation(guard), Target: target}
}

// String renders the instruction for disassembly and debug logs.
func (ins Instruction) String() string {
	switch ins.Type {
	case Command:
		return fmt.Sprintf("%s %s %s", ins.Type, ins.Key, ins.Value)
	case Jump:
		if ins.Key != "" {
			return fmt.Sprintf("%s ->%s", ins.Type, ins.Key)
		}
		return fmt.Sprintf("%s ->%d", ins.Type, ins.Target)
	case JumpIf:
		return fmt.Sprintf("%s %s else ->%d", ins.Type, ins.Value, ins.Target)
	case CallEnd, Ignore:
		return ins.Type.String()
	default:
		return fmt.Sprintf("%s %s", ins.Type, ins.Key)
	}
}
