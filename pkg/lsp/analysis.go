package lsp

import (
	"errors"
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/zurustar/stcr/pkg/compiler"
	"github.com/zurustar/stcr/pkg/value"
	"github.com/zurustar/stcr/pkg/vm"
)

// SymbolKind classifies a named location in a script.
type SymbolKind int

const (
	SymbolSegment SymbolKind = iota
	SymbolCheckpoint
	SymbolFunction
)

// Symbol is a segment, checkpoint or function defined in a script.
type Symbol struct {
	Name string
	Kind SymbolKind
	// Line is 0-based.
	Line int
	// Start and End are byte offsets of the name within the line.
	Start, End int
}

// splitLines splits text into lines without their terminators.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Diagnostics compiles text and reports its compile error, if any.
func Diagnostics(text string) []protocol.Diagnostic {
	_, err := compiler.Compile(text)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	severity := protocol.DiagnosticSeverityError
	source := lsName

	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		return []protocol.Diagnostic{{
			Range:    protocol.Range{},
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		}}
	}

	lines := splitLines(text)
	line := ce.Line - 1
	if line < 0 {
		line = 0
	}
	var lineText string
	if line < len(lines) {
		lineText = lines[line]
	}

	r := lineRange(line, lineText)
	if ce.Column > 1 {
		r.Start = position(line, lineText, ce.Column-1)
	}

	d := protocol.Diagnostic{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  ce.Message,
	}
	if ce.Kind != nil {
		d.Code = &protocol.IntegerOrString{Value: ce.Kind.Error()}
	}
	return []protocol.Diagnostic{d}
}

// Symbols scans text for segment markers, checkpoints and functions. It works
// on documents that do not compile.
func Symbols(text string) []Symbol {
	var out []Symbol
	for i, raw := range splitLines(text) {
		line := strings.TrimSpace(raw)
		indent := strings.Index(raw, line)

		if fields := strings.Fields(line); len(fields) > 0 && fields[0] == compiler.KeywordSegment {
			name := strings.TrimSpace(strings.TrimPrefix(line, compiler.KeywordSegment))
			if name == "" {
				continue
			}
			start := indent + strings.Index(line, name)
			out = append(out, Symbol{Name: name, Kind: SymbolSegment, Line: i, Start: start, End: start + len(name)})
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		var kind SymbolKind
		switch fields[0] {
		case compiler.KeywordCheckpoint:
			kind = SymbolCheckpoint
		case compiler.KeywordFunc:
			if fields[1] == compiler.KeywordFuncEnd {
				continue
			}
			kind = SymbolFunction
		default:
			continue
		}
		start := indent + strings.LastIndex(line, fields[1])
		out = append(out, Symbol{Name: fields[1], Kind: kind, Line: i, Start: start, End: start + len(fields[1])})
	}
	return out
}

// DocumentSymbols returns the script's symbols with checkpoints and
// functions nested under the segment they follow.
func DocumentSymbols(text string) []protocol.DocumentSymbol {
	lines := splitLines(text)
	var (
		out     []protocol.DocumentSymbol
		segment = -1
	)
	for _, s := range Symbols(text) {
		ds := protocol.DocumentSymbol{
			Name:  s.Name,
			Kind:  s.Kind.protocolKind(),
			Range: lineRange(s.Line, lines[s.Line]),
			SelectionRange: protocol.Range{
				Start: position(s.Line, lines[s.Line], s.Start),
				End:   position(s.Line, lines[s.Line], s.End),
			},
		}
		if s.Kind == SymbolSegment {
			out = append(out, ds)
			segment = len(out) - 1
			continue
		}
		if segment < 0 {
			out = append(out, ds)
			continue
		}
		parent := &out[segment]
		parent.Children = append(parent.Children, ds)
		parent.Range.End = ds.Range.End
	}
	return out
}

func (k SymbolKind) protocolKind() protocol.SymbolKind {
	switch k {
	case SymbolSegment:
		return protocol.SymbolKindNamespace
	case SymbolFunction:
		return protocol.SymbolKindFunction
	default:
		return protocol.SymbolKindKey
	}
}

// Definition finds the checkpoint of a jump or the function of a call on
// the line at pos.
func Definition(text string, pos protocol.Position) (protocol.Range, bool) {
	lines := splitLines(text)
	if int(pos.Line) >= len(lines) {
		return protocol.Range{}, false
	}
	fields := strings.Fields(lines[pos.Line])
	if len(fields) != 2 {
		return protocol.Range{}, false
	}

	var kind SymbolKind
	switch fields[0] {
	case compiler.KeywordJump:
		kind = SymbolCheckpoint
	case compiler.KeywordCall:
		kind = SymbolFunction
	default:
		return protocol.Range{}, false
	}

	for _, s := range Symbols(text) {
		if s.Kind == kind && s.Name == fields[1] {
			return protocol.Range{
				Start: position(s.Line, lines[s.Line], s.Start),
				End:   position(s.Line, lines[s.Line], s.End),
			}, true
		}
	}
	return protocol.Range{}, false
}

var keywords = []string{
	compiler.KeywordCheckpoint,
	compiler.KeywordFunc,
	compiler.KeywordJump,
	compiler.KeywordCall,
	compiler.KeywordIf,
	compiler.KeywordElseIf,
	compiler.KeywordElse,
	compiler.KeywordEndIf,
}

var commands = []string{
	vm.CommandSet,
	vm.CommandWait,
	vm.CommandWaitEvent,
	vm.CommandOnEvent,
	vm.CommandClearVariables,
	vm.CommandClearEvents,
}

var externals = []string{vm.ExternalPrint, vm.ExternalThis}

var operators = []string{"is", "and", "or"}

// Completions proposes names for the word being typed at pos.
func Completions(text string, pos protocol.Position) []protocol.CompletionItem {
	lines := splitLines(text)
	if int(pos.Line) >= len(lines) {
		return nil
	}
	line := lines[pos.Line]
	cursor := byteOffset(line, int(pos.Character))
	prefix := wordBefore(line, cursor)
	first := strings.TrimSpace(line[:cursor-len(prefix)]) == ""

	var items []protocol.CompletionItem
	add := func(names []string, kind protocol.CompletionItemKind, detail string) {
		for _, name := range names {
			if strings.HasPrefix(name, prefix) {
				items = append(items, completionItem(name, kind, detail))
			}
		}
	}

	switch {
	case value.IsVariable(prefix):
		add(variables(text), protocol.CompletionItemKindVariable, "variable")
	case value.IsExternal(prefix):
		add(externals, protocol.CompletionItemKindFunction, "external")
	case first:
		add(keywords, protocol.CompletionItemKindKeyword, "keyword")
		add(commands, protocol.CompletionItemKindMethod, "command")
	default:
		fields := strings.Fields(line[:cursor])
		switch {
		case len(fields) > 0 && fields[0] == compiler.KeywordJump:
			add(symbolNames(text, SymbolCheckpoint), protocol.CompletionItemKindReference, "checkpoint")
		case len(fields) > 0 && fields[0] == compiler.KeywordCall:
			add(symbolNames(text, SymbolFunction), protocol.CompletionItemKindFunction, "function")
		case len(fields) > 0 && fields[0] == vm.CommandOnEvent:
			add(symbolNames(text, SymbolFunction), protocol.CompletionItemKindFunction, "function")
		default:
			add(operators, protocol.CompletionItemKindOperator, "operator")
		}
	}
	return items
}

func completionItem(label string, kind protocol.CompletionItemKind, detail string) protocol.CompletionItem {
	return protocol.CompletionItem{Label: label, Kind: &kind, Detail: &detail}
}

// wordBefore returns the identifier fragment ending at cursor, including a
// leading sigil.
func wordBefore(line string, cursor int) string {
	start := cursor
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	return line[start:cursor]
}

func isWordByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '$' || c == '@' || c == '&' || c >= 0x80:
		return true
	}
	return false
}

// variables collects every distinct variable name mentioned in text, sorted.
func variables(text string) []string {
	seen := make(map[string]bool)
	for _, line := range splitLines(text) {
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return !(r < 0x80 && isWordByte(byte(r)) || r >= 0x80)
		}) {
			if value.IsVariable(tok) && len(tok) > 1 {
				seen[tok] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func symbolNames(text string, kind SymbolKind) []string {
	var out []string
	for _, s := range Symbols(text) {
		if s.Kind == kind {
			out = append(out, s.Name)
		}
	}
	return out
}
