package compiler

import (
	"errors"
	"strings"
	"testing"
)

// TestCompileError_Error tests the Error() method of CompileError.
func TestCompileError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CompileError
		contains []string
	}{
		{
			name: "header error without context",
			err: &CompileError{
				Phase:   PhasePreprocessor,
				Kind:    ErrInvalidHeader,
				Message: "missing version after STCR",
				Line:    1,
				Column:  1,
			},
			contains: []string{"preprocessor error", "line 1", "column 1", "missing version"},
		},
		{
			name: "compiler error without context",
			err: &CompileError{
				Phase:   PhaseCompiler,
				Kind:    ErrDuplicateSymbol,
				Message: `checkpoint "loop" already defined at line 9`,
				Line:    3,
				Column:  12,
			},
			contains: []string{"compiler error", "line 3", "column 12", "already defined"},
		},
		{
			name: "error with context",
			err: &CompileError{
				Phase:   PhaseParser,
				Message: "boolean expression is invalid",
				Line:    3,
				Column:  4,
				Context: "> 3 | if $x is\n         ^",
			},
			contains: []string{"parser error", "line 3", "column 4", "> 3 |"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("Error() = %q, want to contain %q", errStr, substr)
				}
			}
		})
	}
}

// TestCompileError_Unwrap checks that both kind and cause are reachable.
func TestCompileError_Unwrap(t *testing.T) {
	cause := errors.New("inner")
	err := error(&CompileError{Phase: PhaseParser, Kind: ErrParse, Cause: cause})

	if !errors.Is(err, ErrParse) {
		t.Error("errors.Is(err, ErrParse) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrMalformed) {
		t.Error("errors.Is(err, ErrMalformed) = true")
	}

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Error("errors.As should find *CompileError")
	}
}

// TestGenerateErrorContext tests the GenerateErrorContext function.
func TestGenerateErrorContext(t *testing.T) {
	source := `STCR v0
set $a 1
set $b 2
jump nowhere
set $c 3
set $d 4
set $e 5`

	tests := []struct {
		name        string
		source      string
		line        int
		column      int
		contains    []string
		notContains []string
	}{
		{
			name:   "error in middle of file",
			source: source,
			line:   4,
			column: 6,
			contains: []string{
				"2 |", "set $a 1", // 2 lines before
				"3 |", "set $b 2", // 1 line before
				"> 4 |", "jump nowhere", // error line with marker
				"^",               // pointer
				"5 |", "set $c 3", // 1 line after
				"6 |", "set $d 4", // 2 lines after
			},
			notContains: []string{
				"1 |", // more than 2 lines before
				"7 |", // more than 2 lines after
			},
		},
		{
			name:   "error at beginning of file",
			source: source,
			line:   1,
			column: 1,
			contains: []string{
				"> 1 |", "STCR v0",
				"^",
				"2 |", "3 |",
			},
			notContains: []string{"4 |"},
		},
		{
			name:   "error at end of file",
			source: source,
			line:   7,
			column: 1,
			contains: []string{
				"5 |", "6 |",
				"> 7 |", "set $e 5",
				"^",
			},
			notContains: []string{"4 |"},
		},
		{
			name:     "empty source",
			source:   "",
			line:     1,
			column:   1,
			contains: []string{},
		},
		{
			name:     "invalid line number",
			source:   source,
			line:     0,
			column:   1,
			contains: []string{},
		},
		{
			name:     "line number exceeds source",
			source:   source,
			line:     100,
			column:   1,
			contains: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			context := GenerateErrorContext(tt.source, tt.line, tt.column)

			for _, substr := range tt.contains {
				if !strings.Contains(context, substr) {
					t.Errorf("GenerateErrorContext() = %q, want to contain %q", context, substr)
				}
			}

			for _, substr := range tt.notContains {
				if strings.Contains(context, substr) {
					t.Errorf("GenerateErrorContext() = %q, should not contain %q", context, substr)
				}
			}
		})
	}
}

// TestGenerateErrorContext_PointerColumn checks the caret lands under the column.
func TestGenerateErrorContext_PointerColumn(t *testing.T) {
	context := GenerateErrorContext("jump nowhere", 1, 6)
	lines := strings.Split(context, "\n")
	if len(lines) < 2 {
		t.Fatalf("unexpected context %q", context)
	}
	// "> 1 | " is 6 characters wide, so column 6 puts the caret at index 11.
	if idx := strings.Index(lines[1], "^"); idx != 11 {
		t.Errorf("caret at %d, want 11: %q", idx, context)
	}
}

func TestColumnOf(t *testing.T) {
	source := "STCR v0\njump   nowhere"
	if got := columnOf(source, 2, "nowhere"); got != 8 {
		t.Errorf("columnOf = %d, want 8", got)
	}
	if got := columnOf(source, 2, "missing"); got != 1 {
		t.Errorf("columnOf missing token = %d, want 1", got)
	}
	if got := columnOf(source, 9, "x"); got != 1 {
		t.Errorf("columnOf out of range = %d, want 1", got)
	}
}
