package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestRuntimeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RuntimeError
		want string
	}{
		{
			name: "without location",
			err:  NewUnknownCommandError("foo"),
			want: "[UNKNOWN_COMMAND] unknown command: foo",
		},
		{
			name: "with pointer",
			err:  &RuntimeError{Type: ErrorStackUnderflow, Message: "empty", Pointer: 3},
			want: "[STACK_UNDERFLOW] empty at instruction 3",
		},
		{
			name: "with line",
			err:  &RuntimeError{Type: ErrorUnknownOperator, Message: "unknown operator: xor", Pointer: 3, Line: 7},
			want: "[UNKNOWN_OPERATOR] unknown operator: xor at instruction 3 (line 7)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsRuntimeError(t *testing.T) {
	re := NewInvalidOperandError("or", 5)
	if got := AsRuntimeError(re, "x"); got != re {
		t.Error("AsRuntimeError should return runtime errors unchanged")
	}

	got := AsRuntimeError(errors.New("bad"), "explode")
	if got.Type != ErrorInvalidArgument {
		t.Errorf("Type = %s, want %s", got.Type, ErrorInvalidArgument)
	}
	if !strings.Contains(got.Message, "explode") || !strings.Contains(got.Message, "bad") {
		t.Errorf("Message = %q, want command name and cause", got.Message)
	}
}
