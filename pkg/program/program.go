// Package program holds compiled STCR programs.
//
// A Program is produced once by the compiler and never mutated afterwards, so
// any number of interpreter instances may share it.
package program

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zurustar/stcr/pkg/opcode"
)

// Program is an immutable instruction array plus its symbol tables.
type Program struct {
	Name         string               `cbor:"1,keyasint,omitempty"`
	Version      int                  `cbor:"2,keyasint"`
	Instructions []opcode.Instruction `cbor:"3,keyasint"`
	Segments     map[string]int       `cbor:"4,keyasint"`
	Checkpoints  map[string]int       `cbor:"5,keyasint"`
	Functions    map[string]int       `cbor:"6,keyasint"`

	// Lines maps each instruction to its 1-based source line.
	Lines []int `cbor:"7,keyasint,omitempty"`
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// At returns the instruction at index i.
func (p *Program) At(i int) (opcode.Instruction, bool) {
	if i < 0 || i >= len(p.Instructions) {
		return opcode.Instruction{}, false
	}
	return p.Instructions[i], true
}

// Segment returns the index of the named segment marker.
func (p *Program) Segment(name string) (int, bool) {
	i, ok := p.Segments[name]
	return i, ok
}

// Checkpoint returns the index of the named checkpoint marker.
func (p *Program) Checkpoint(name string) (int, bool) {
	i, ok := p.Checkpoints[name]
	return i, ok
}

// Function returns the index of the named func marker.
func (p *Program) Function(name string) (int, bool) {
	i, ok := p.Functions[name]
	return i, ok
}

// Line returns the source line of instruction i, or 0 when unknown.
func (p *Program) Line(i int) int {
	if i < 0 || i >= len(p.Lines) {
		return 0
	}
	return p.Lines[i]
}

// SegmentNames returns the segment names in program order.
func (p *Program) SegmentNames() []string {
	return namesByIndex(p.Segments)
}

// FunctionNames returns the function names in program order.
func (p *Program) FunctionNames() []string {
	return namesByIndex(p.Functions)
}

// Validate checks that every jump target is a resolved in-range index and
// every symbol points at a marker of the matching type. Decoded artifacts are
// validated before use.
func (p *Program) Validate() error {
	n := len(p.Instructions)
	for i, ins := range p.Instructions {
		if !ins.Type.IsJump() {
			continue
		}
		if ins.Target < 0 || ins.Target >= n {
			return fmt.Errorf("instruction %d: jump target %d out of range [0, %d)", i, ins.Target, n)
		}
	}

	tables := []struct {
		name  string
		table map[string]int
		typ   opcode.Type
	}{
		{"segment", p.Segments, opcode.Segment},
		{"checkpoint", p.Checkpoints, opcode.Checkpoint},
		{"function", p.Functions, opcode.Func},
	}
	for _, t := range tables {
		for name, idx := range t.table {
			ins, ok := p.At(idx)
			if !ok || ins.Type != t.typ || ins.Key != name {
				return fmt.Errorf("%s %q: index %d is not its marker", t.name, name, idx)
			}
		}
	}
	return nil
}

// Disassemble renders the program one instruction per line.
func (p *Program) Disassemble() string {
	var b strings.Builder
	width := len(fmt.Sprint(len(p.Instructions)))
	for i, ins := range p.Instructions {
		fmt.Fprintf(&b, "%*d  %s\n", width, i, ins)
	}
	return b.String()
}

func namesByIndex(table map[string]int) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return table[names[i]] < table[names[j]]
	})
	return names
}
