package lsp

import (
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// utf16Len returns the length of s in UTF-16 code units, the unit LSP
// positions are measured in.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// byteOffset converts a UTF-16 character offset within line to a byte offset.
// Offsets past the end of the line clamp to len(line).
func byteOffset(line string, character int) int {
	units := 0
	for i, r := range line {
		if units >= character {
			return i
		}
		units += utf16.RuneLen(r)
	}
	return len(line)
}

// position builds a protocol position from a 0-based line and a byte offset
// within that line's text.
func position(line int, text string, byteCol int) protocol.Position {
	if byteCol > len(text) {
		byteCol = len(text)
	}
	for byteCol > 0 && byteCol < len(text) && !utf8.RuneStart(text[byteCol]) {
		byteCol--
	}
	return protocol.Position{Line: uint32(line), Character: uint32(utf16Len(text[:byteCol]))}
}

// lineRange spans a whole source line.
func lineRange(line int, text string) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line), Character: 0},
		End:   protocol.Position{Line: uint32(line), Character: uint32(utf16Len(text))},
	}
}
