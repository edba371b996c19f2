// Package preprocessor cleans STCR source text before compilation.
//
// It trims lines, drops blank lines and full-line comments, synthesizes a
// "stopif" line in front of every else/elseif, and validates the header.
// Each surviving line keeps the 1-based number of the source line it came
// from so that compile errors can point back at the original text.
package preprocessor

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Marker is the first token of the header line.
	Marker = "STCR"
	// MinVersion is the oldest header version still accepted.
	MinVersion = 0
	// StopIf is the synthetic line inserted before else branches.
	StopIf = "stopif"
	// CommentPrefix starts a full-line comment.
	CommentPrefix = "//"
)

// Line is one cleaned source line.
// Number is the 1-based source line, or the number of the following line for
// synthesized lines.
type Line struct {
	Text   string
	Number int
}

// Result is the output of Process.
type Result struct {
	Version int
	Lines   []Line
	// Source is the original text split into lines, used for error context.
	Source []string
}

// HeaderError reports a missing or unsupported header.
type HeaderError struct {
	Line    int
	Message string
}

func (e *HeaderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Process cleans the source and strips the header line.
func Process(source string) (*Result, error) {
	raw := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	if len(raw) > 0 {
		raw[0] = strings.TrimPrefix(raw[0], "\ufeff")
	}

	lines := make([]Line, 0, len(raw))
	for i, text := range raw {
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, CommentPrefix) {
			continue
		}
		if startsElse(text) {
			lines = append(lines, Line{Text: StopIf, Number: i + 1})
		}
		lines = append(lines, Line{Text: text, Number: i + 1})
	}

	if len(lines) == 0 {
		return nil, &HeaderError{Message: fmt.Sprintf("empty script: the first line must be '%s v%d'", Marker, MinVersion)}
	}

	version, err := ParseHeader(lines[0])
	if err != nil {
		return nil, err
	}

	return &Result{
		Version: version,
		Lines:   lines[1:],
		Source:  raw,
	}, nil
}

// ParseHeader validates a header line of the form "STCR v<int>".
func ParseHeader(line Line) (int, error) {
	fields := strings.Fields(line.Text)
	if len(fields) == 0 || fields[0] != Marker {
		return 0, &HeaderError{
			Line:    line.Number,
			Message: fmt.Sprintf("the first line must be '%s v%d' with the script's version", Marker, MinVersion),
		}
	}
	if len(fields) != 2 {
		return 0, &HeaderError{Line: line.Number, Message: "missing version after " + Marker}
	}

	version, err := strconv.Atoi(strings.TrimPrefix(fields[1], "v"))
	if err != nil {
		return 0, &HeaderError{Line: line.Number, Message: fmt.Sprintf("version %q is not a valid integer", fields[1])}
	}
	if version < MinVersion {
		return 0, &HeaderError{Line: line.Number, Message: fmt.Sprintf("version %d is no longer compatible", version)}
	}
	return version, nil
}

func startsElse(text string) bool {
	word, _, _ := strings.Cut(text, " ")
	word, _, _ = strings.Cut(word, "\t")
	return word == "else" || word == "elseif"
}
