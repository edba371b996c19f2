package program

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/zurustar/stcr/pkg/opcode"
	"github.com/zurustar/stcr/pkg/value"
)

// sample builds a small valid program by hand:
//
//	0 ### main
//	1 if $x is 1
//	2 call @Print("yes")
//	3 endif
//	4 func f
//	5 func END
func sample() *Program {
	return &Program{
		Name:    "sample",
		Version: 0,
		Instructions: []opcode.Instruction{
			opcode.NewMarker(opcode.Segment, "main"),
			opcode.NewJumpIf(value.NewBoolExp("$x", "1", "is"), 3),
			{Type: opcode.ExternalCall, Key: `@Print("yes")`},
			{Type: opcode.Ignore},
			opcode.NewMarker(opcode.Func, "f"),
			{Type: opcode.CallEnd},
		},
		Segments:    map[string]int{"main": 0},
		Checkpoints: map[string]int{},
		Functions:   map[string]int{"f": 4},
		Lines:       []int{2, 3, 4, 5, 6, 7},
	}
}

func TestProgramLookups(t *testing.T) {
	p := sample()

	if p.Len() != 6 {
		t.Errorf("Len() = %d, want 6", p.Len())
	}
	if _, ok := p.At(6); ok {
		t.Error("At(6) should be out of range")
	}
	if i, ok := p.Segment("main"); !ok || i != 0 {
		t.Errorf("Segment(main) = %d, %v", i, ok)
	}
	if i, ok := p.Function("f"); !ok || i != 4 {
		t.Errorf("Function(f) = %d, %v", i, ok)
	}
	if _, ok := p.Checkpoint("nope"); ok {
		t.Error("Checkpoint(nope) found")
	}
	if p.Line(2) != 4 || p.Line(99) != 0 {
		t.Errorf("Line() = %d, %d, want 4, 0", p.Line(2), p.Line(99))
	}
	if names := p.FunctionNames(); len(names) != 1 || names[0] != "f" {
		t.Errorf("FunctionNames() = %v", names)
	}
}

func TestValidate(t *testing.T) {
	if err := sample().Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Program)
	}{
		{"jump out of range", func(p *Program) { p.Instructions[1].Target = 6 }},
		{"negative jump", func(p *Program) { p.Instructions[1].Target = -1 }},
		{"segment not at marker", func(p *Program) { p.Segments["main"] = 2 }},
		{"function out of range", func(p *Program) { p.Functions["g"] = 10 }},
		{"checkpoint at wrong marker", func(p *Program) { p.Checkpoints["main"] = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sample()
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	out := sample().Disassemble()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("Disassemble() has %d lines, want 6:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "JumpIf ($x is 1) else ->3") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestCodecRoundTrip(t *testing.T) {
	p := sample()
	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !IsArtifact(data) {
		t.Fatal("encoded data lacks the artifact magic")
	}

	again, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("Marshal is not deterministic")
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Name != p.Name || got.Len() != p.Len() {
		t.Fatalf("decoded %q with %d instructions", got.Name, got.Len())
	}
	for i := range p.Instructions {
		w, g := p.Instructions[i], got.Instructions[i]
		if w.Type != g.Type || w.Key != g.Key || w.Target != g.Target || !w.Value.Equal(g.Value) {
			t.Errorf("instruction %d = %s, want %s", i, g, w)
		}
	}
	if got.Line(5) != 7 {
		t.Errorf("Line(5) = %d, want 7", got.Line(5))
	}
}

func TestCodecPreservesFalse(t *testing.T) {
	p := &Program{
		Instructions: []opcode.Instruction{opcode.NewCommand("set", value.New("FALSE"))},
		Segments:     map[string]int{},
		Checkpoints:  map[string]int{},
		Functions:    map[string]int{},
	}
	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Instructions[0].Value.Raw() != false {
		t.Errorf("decoded %#v, want false", got.Instructions[0].Value.Raw())
	}
}

func TestUnmarshalRejects(t *testing.T) {
	if _, err := Unmarshal([]byte("STCR v0\n")); !errors.Is(err, ErrNotArtifact) {
		t.Errorf("Unmarshal(source) = %v, want ErrNotArtifact", err)
	}

	bad := sample()
	bad.Instructions[1].Target = 42
	data, err := Marshal(bad)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("Unmarshal should validate jump targets")
	}

	if _, err := Unmarshal(append([]byte{}, Magic...)); err == nil {
		t.Error("Unmarshal of an empty body should fail")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("b", sample()); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := r.Register("a", sample()); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := r.Register("a", sample()); err == nil {
		t.Error("duplicate Register should fail")
	}
	if err := r.Register("c", nil); err == nil {
		t.Error("Register(nil) should fail")
	}

	replacement := sample()
	replacement.Name = "replaced"
	r.Replace("a", replacement)
	if p, ok := r.Get("a"); !ok || p.Name != "replaced" {
		t.Errorf("Get(a) after Replace = %v, %v", p, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found a program")
	}
	if names := r.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}
