// Package vm provides error handling for the STCR virtual machine.
package vm

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	// ErrorUnknownCommand is raised when a Command names no registered handler.
	ErrorUnknownCommand ErrorType = "UNKNOWN_COMMAND"
	// ErrorStackUnderflow is raised by a function end with an empty call stack.
	ErrorStackUnderflow ErrorType = "STACK_UNDERFLOW"
	// ErrorInvalidOperand is raised when an operand cannot be coerced.
	ErrorInvalidOperand ErrorType = "INVALID_OPERAND"
	// ErrorUnknownOperator is raised when a boolean operator is not registered.
	ErrorUnknownOperator ErrorType = "UNKNOWN_OPERATOR"
	// ErrorInvalidArgument is raised when a command rejects its arguments.
	ErrorInvalidArgument ErrorType = "INVALID_ARGUMENT"
)

// ErrUnknownSegment is returned by Invoke for a name missing from the segment
// table. It is a soft error: the instance is left untouched.
var ErrUnknownSegment = errors.New("unknown segment")

// RuntimeError represents a runtime error in the VM.
type RuntimeError struct {
	Type    ErrorType
	Message string
	Pointer int // Instruction index, -1 if unknown
	Line    int // Source line if known, 0 otherwise
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("[%s] %s at instruction %d (line %d)", e.Type, e.Message, e.Pointer, e.Line)
	case e.Pointer >= 0:
		return fmt.Sprintf("[%s] %s at instruction %d", e.Type, e.Message, e.Pointer)
	default:
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
}

// IsFatal returns true if the error halts the instance. Every runtime error
// type is fatal for the instance that raised it; soft lookup misses never
// produce a RuntimeError.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorUnknownCommand, ErrorStackUnderflow, ErrorInvalidOperand,
		ErrorUnknownOperator, ErrorInvalidArgument:
		return true
	default:
		return false
	}
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		Pointer: -1,
	}
}

// NewUnknownCommandError creates an unknown command error.
func NewUnknownCommandError(name string) *RuntimeError {
	return NewRuntimeError(ErrorUnknownCommand, fmt.Sprintf("unknown command: %s", name))
}

// NewStackUnderflowError creates a stack underflow error.
func NewStackUnderflowError() *RuntimeError {
	return NewRuntimeError(ErrorStackUnderflow, "function end reached with an empty call stack")
}

// NewInvalidOperandError creates an invalid operand error.
func NewInvalidOperandError(operator string, operand any) *RuntimeError {
	return NewRuntimeError(ErrorInvalidOperand, fmt.Sprintf("operator %q cannot use operand %#v", operator, operand))
}

// NewUnknownOperatorError creates an unknown operator error.
func NewUnknownOperatorError(operator string) *RuntimeError {
	return NewRuntimeError(ErrorUnknownOperator, fmt.Sprintf("unknown operator: %s", operator))
}

// NewInvalidArgumentError creates an invalid argument error for a command.
func NewInvalidArgumentError(command, message string) *RuntimeError {
	return NewRuntimeError(ErrorInvalidArgument, fmt.Sprintf("'%s' command: %s", command, message))
}

// AsRuntimeError returns err as a *RuntimeError, wrapping foreign errors
// raised by host-supplied command handlers as invalid arguments.
func AsRuntimeError(err error, command string) *RuntimeError {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}
	return NewInvalidArgumentError(command, err.Error())
}
