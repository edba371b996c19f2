// Package compiler turns STCR source text into an immutable program.
// This file defines the CompileError type for structured error reporting.
package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds carried by CompileError. Match them with errors.Is.
var (
	ErrInvalidHeader           = errors.New("invalid header")
	ErrDuplicateSymbol         = errors.New("duplicate symbol")
	ErrUnresolvedSymbol        = errors.New("unresolved symbol")
	ErrParse                   = errors.New("malformed boolean expression")
	ErrUnterminatedConditional = errors.New("unterminated conditional")
	ErrMalformed               = errors.New("malformed line")
)

// Compilation phases.
const (
	PhasePreprocessor = "preprocessor"
	PhaseParser       = "parser"
	PhaseCompiler     = "compiler"
)

// CompileError represents a structured compilation error with location information.
// Any CompileError aborts compilation; no partial program is produced.
type CompileError struct {
	// Phase indicates which compilation phase generated the error.
	Phase string

	// Kind is one of the sentinel errors above.
	Kind error

	// Message is the human-readable error description.
	Message string

	// Line is the 1-indexed source line where the error occurred.
	Line int

	// Column is the 1-indexed column number where the error occurred.
	Column int

	// Context contains the source code around the error location.
	// This includes 2 lines before and after the error line,
	// with a pointer (^) indicating the error column.
	Context string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
// It returns a formatted error message including phase, location, message, and context.
func (e *CompileError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s error at line %d, column %d: %s\n%s",
			e.Phase, e.Line, e.Column, e.Message, e.Context)
	}
	return fmt.Sprintf("%s error at line %d, column %d: %s",
		e.Phase, e.Line, e.Column, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *CompileError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewCompilerErrorWithContext creates a new CompileError with source context.
func NewCompilerErrorWithContext(phase string, kind error, message string, line, column int, source string) *CompileError {
	return &CompileError{
		Phase:   phase,
		Kind:    kind,
		Message: message,
		Line:    line,
		Column:  column,
		Context: GenerateErrorContext(source, line, column),
	}
}

// columnOf returns the 1-indexed column of token within the given source
// line, or 1 when it cannot be found.
func columnOf(source string, line int, token string) int {
	lines := strings.Split(source, "\n")
	if token == "" || line <= 0 || line > len(lines) {
		return 1
	}
	if i := strings.Index(lines[line-1], token); i >= 0 {
		return i + 1
	}
	return 1
}

// GenerateErrorContext generates source code context around an error location.
// It includes 2 lines before and 2 lines after the error line, with line numbers
// and a pointer (^) indicating the error column.
//
// Example output:
//
//	  2 | set $x 1
//	  3 | if $x is 1
//	> 4 | jump nowhere
//	    |      ^
//	  5 | endif
func GenerateErrorContext(source string, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}

	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	// Calculate the range of lines to show (2 before and 2 after)
	start := line - 3 // 2 lines before (0-indexed: line-1-2 = line-3)
	if start < 0 {
		start = 0
	}
	end := line + 2 // 2 lines after (0-indexed: line-1+2+1 = line+2)
	if end > len(lines) {
		end = len(lines)
	}

	var buf strings.Builder

	// Calculate the width needed for line numbers
	maxLineNum := end
	lineNumWidth := len(fmt.Sprintf("%d", maxLineNum))

	for i := start; i < end; i++ {
		lineNum := i + 1 // Convert to 1-indexed
		lineContent := lines[i]

		if lineNum == line {
			// Error line - mark with >
			buf.WriteString(fmt.Sprintf("> %*d | %s\n", lineNumWidth, lineNum, lineContent))
			// Add pointer line
			// Calculate spaces: "> " + lineNumWidth + " | " + (column-1) spaces + "^"
			pointerIndent := 2 + lineNumWidth + 3 // "> " + lineNumWidth + " | "
			if column > 0 {
				buf.WriteString(fmt.Sprintf("%s%s^\n", strings.Repeat(" ", pointerIndent), strings.Repeat(" ", column-1)))
			} else {
				buf.WriteString(fmt.Sprintf("%s^\n", strings.Repeat(" ", pointerIndent)))
			}
		} else {
			// Context line
			buf.WriteString(fmt.Sprintf("  %*d | %s\n", lineNumWidth, lineNum, lineContent))
		}
	}

	return buf.String()
}



