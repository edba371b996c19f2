package lsp

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const sample = `STCR v0
### start
set $count 1
checkpoint loop
func greet
call @Print(hi)
func END
### other
jump loop
call greet`

func TestDiagnostics_Clean(t *testing.T) {
	if got := Diagnostics(sample); len(got) != 0 {
		t.Errorf("expected no diagnostics, got %+v", got)
	}
}

func TestDiagnostics_Errors(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		code      string
		line      uint32
		startChar uint32
		endChar   uint32
	}{
		{
			name:      "unresolved checkpoint",
			text:      "STCR v0\njump nowhere",
			code:      "unresolved symbol",
			line:      1,
			startChar: 5,
			endChar:   12,
		},
		{
			name:      "duplicate checkpoint",
			text:      "STCR v0\ncheckpoint a\ncheckpoint a",
			code:      "duplicate symbol",
			line:      1,
			startChar: 11,
			endChar:   12,
		},
		{
			name: "missing header",
			text: "set $x 1",
			code: "invalid header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diagnostics(tt.text)
			if len(got) != 1 {
				t.Fatalf("expected 1 diagnostic, got %d", len(got))
			}
			d := got[0]
			if d.Code == nil || d.Code.Value != tt.code {
				t.Errorf("Code = %v, want %q", d.Code, tt.code)
			}
			if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
				t.Error("expected error severity")
			}
			if d.Source == nil || *d.Source != lsName {
				t.Error("expected source to be set")
			}
			if tt.endChar == 0 {
				return
			}
			if d.Range.Start.Line != tt.line || d.Range.Start.Character != tt.startChar || d.Range.End.Character != tt.endChar {
				t.Errorf("Range = %+v, want line %d chars %d-%d", d.Range, tt.line, tt.startChar, tt.endChar)
			}
		})
	}
}

func TestSymbols(t *testing.T) {
	got := Symbols(sample)
	want := []Symbol{
		{Name: "start", Kind: SymbolSegment, Line: 1, Start: 4, End: 9},
		{Name: "loop", Kind: SymbolCheckpoint, Line: 3, Start: 11, End: 15},
		{Name: "greet", Kind: SymbolFunction, Line: 4, Start: 5, End: 10},
		{Name: "other", Kind: SymbolSegment, Line: 7, Start: 4, End: 9},
	}
	if len(got) != len(want) {
		t.Fatalf("Symbols() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbol %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSymbols_BrokenDocument(t *testing.T) {
	got := Symbols("STCR v0\n  checkpoint a\nif $x is 1\nfunc f")
	if len(got) != 2 {
		t.Fatalf("expected 2 symbols from a document that does not compile, got %+v", got)
	}
	if got[0].Start != 13 {
		t.Errorf("indented checkpoint Start = %d, want 13", got[0].Start)
	}
}

func TestDocumentSymbols(t *testing.T) {
	got := DocumentSymbols(sample)
	if len(got) != 2 {
		t.Fatalf("expected 2 top-level symbols, got %d", len(got))
	}
	start := got[0]
	if start.Name != "start" || start.Kind != protocol.SymbolKindNamespace {
		t.Errorf("first symbol = %s (%v)", start.Name, start.Kind)
	}
	if len(start.Children) != 2 {
		t.Fatalf("start has %d children, want 2", len(start.Children))
	}
	if start.Children[0].Kind != protocol.SymbolKindKey || start.Children[1].Kind != protocol.SymbolKindFunction {
		t.Error("unexpected child kinds")
	}
	if start.Range.End.Line != 4 {
		t.Errorf("segment range should extend to its last child, got end line %d", start.Range.End.Line)
	}
	if len(got[1].Children) != 0 {
		t.Error("other segment should have no children")
	}
}

func TestDefinition(t *testing.T) {
	tests := []struct {
		name string
		pos  protocol.Position
		line uint32
		char uint32
		ok   bool
	}{
		{"jump to checkpoint", protocol.Position{Line: 8, Character: 6}, 3, 11, true},
		{"call to function", protocol.Position{Line: 9, Character: 6}, 4, 5, true},
		{"external call", protocol.Position{Line: 5, Character: 6}, 0, 0, false},
		{"plain command", protocol.Position{Line: 2, Character: 1}, 0, 0, false},
		{"past the end", protocol.Position{Line: 99, Character: 0}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := Definition(sample, tt.pos)
			if ok != tt.ok {
				t.Fatalf("Definition() ok = %v, want %v", ok, tt.ok)
			}
			if ok && (r.Start.Line != tt.line || r.Start.Character != tt.char) {
				t.Errorf("Definition() = %+v, want %d:%d", r.Start, tt.line, tt.char)
			}
		})
	}
}

func TestCompletions(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"variable", "STCR v0\nset $count 1\nset $co", protocol.Position{Line: 2, Character: 7}, "$count"},
		{"external", "STCR v0\ncall @Pr", protocol.Position{Line: 1, Character: 8}, "@Print"},
		{"command at line start", "STCR v0\nwaitE", protocol.Position{Line: 1, Character: 5}, "waitEvent"},
		{"keyword at line start", "STCR v0\n  chec", protocol.Position{Line: 1, Character: 6}, "checkpoint"},
		{"checkpoint after jump", "STCR v0\ncheckpoint top\njump t", protocol.Position{Line: 2, Character: 6}, "top"},
		{"function after call", "STCR v0\nfunc hello\nfunc END\ncall h", protocol.Position{Line: 3, Character: 6}, "hello"},
		{"operator in condition", "STCR v0\nif $x i", protocol.Position{Line: 1, Character: 7}, "is"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Completions(tt.text, tt.pos)
			for _, item := range items {
				if item.Label == tt.want {
					return
				}
			}
			t.Errorf("Completions() = %v, missing %q", labels(items), tt.want)
		})
	}
}

func TestCompletions_FiltersByPrefix(t *testing.T) {
	items := Completions("STCR v0\nse", protocol.Position{Line: 1, Character: 2})
	for _, item := range items {
		if item.Label != "set" {
			t.Errorf("unexpected completion %q for prefix se", item.Label)
		}
	}
	if len(items) != 1 {
		t.Errorf("expected only set, got %v", labels(items))
	}
}

func TestPositionHelpers(t *testing.T) {
	line := "set $名前 1"
	if got := utf16Len(line); got != 9 {
		t.Errorf("utf16Len = %d, want 9", got)
	}
	// "set $" is 5 bytes and 5 units; each kanji is 3 bytes and 1 unit.
	if got := byteOffset(line, 6); got != 8 {
		t.Errorf("byteOffset = %d, want 8", got)
	}
	if got := position(0, line, 8); got.Character != 6 {
		t.Errorf("position = %+v, want character 6", got)
	}
	if got := byteOffset(line, 100); got != len(line) {
		t.Errorf("byteOffset past end = %d, want %d", got, len(line))
	}
}

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}
