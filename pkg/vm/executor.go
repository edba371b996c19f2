package vm

import (
	"errors"
	"strconv"
	"strings"

	"github.com/zurustar/stcr/pkg/opcode"
	"github.com/zurustar/stcr/pkg/value"
)

// Step advances the VM by at most one instruction.
//
// A step does nothing unless the VM is runnable and its sleep deadline has
// elapsed. Otherwise pending triggers are drained first, then the instruction
// at the pointer is executed. A runtime error halts the instance and is
// returned; reaching a segment marker or the end of the program halts it
// without an error.
func (vm *VM) Step() error {
	if vm.State() != Runnable {
		return nil
	}

	vm.runTriggers()

	ins, ok := vm.program.At(vm.pointer)
	if !ok {
		vm.halt(EndOfProgram)
		return nil
	}

	at := vm.pointer
	advance, err := vm.execute(ins)
	if err != nil {
		return vm.raise(at, err)
	}
	if advance {
		vm.pointer++
	}
	return nil
}

// runTriggers dispatches every queued trigger. External triggers are called
// directly; internal ones are entered as functions returning to the current
// pointer.
func (vm *VM) runTriggers() {
	for _, trigger := range vm.events.Drain() {
		if value.IsExternal(trigger) {
			vm.CallExternal(trigger)
			continue
		}
		vm.CallInternal(trigger, vm.pointer)
	}
}

// execute runs one instruction and reports whether the pointer should be
// incremented afterwards.
func (vm *VM) execute(ins opcode.Instruction) (bool, error) {
	switch ins.Type {
	case opcode.Checkpoint, opcode.Func, opcode.Ignore:
		return true, nil

	case opcode.Segment:
		vm.halt(EndOfSegment)
		return false, nil

	case opcode.Command:
		return true, vm.executeCommand(ins.Key, ins.Value)

	case opcode.Jump:
		vm.pointer = ins.Target
		return false, nil

	case opcode.JumpIf:
		ok, err := vm.Evaluate(ins.Value.Expr)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		vm.pointer = ins.Target
		return false, nil

	case opcode.CallEnd:
		n := len(vm.callStack)
		if n == 0 {
			return false, NewStackUnderflowError()
		}
		vm.pointer = vm.callStack[n-1]
		vm.callStack = vm.callStack[:n-1]
		return false, nil

	case opcode.ExternalCall:
		vm.SetVariable(ExternalCallOutput, vm.CallExternal(ins.Key))
		return true, nil

	case opcode.InternalCall:
		return !vm.CallInternal(ins.Key, vm.pointer+1), nil

	default:
		return false, NewRuntimeError(ErrorUnknownCommand, "unknown instruction type: "+ins.Type.String())
	}
}

func (vm *VM) executeCommand(name string, arg value.Value) error {
	fn, ok := vm.commands[name]
	if !ok {
		return NewUnknownCommandError(name)
	}

	args, err := vm.commandArgs(arg)
	if err != nil {
		return err
	}

	vm.log.Debug("Executing command", "command", name, "args", args, "pointer", vm.pointer)
	if err := fn(vm, args); err != nil {
		return AsRuntimeError(err, name)
	}
	return nil
}

// commandArgs resolves a command's argument value into strings.
func (vm *VM) commandArgs(arg value.Value) ([]string, error) {
	switch arg.Kind {
	case value.Array:
		args := make([]string, len(arg.Items))
		copy(args, arg.Items)
		return args, nil

	case value.Operation:
		ok, err := vm.Evaluate(arg.Expr)
		if err != nil {
			return nil, err
		}
		return []string{strconv.FormatBool(ok)}, nil

	case value.Variable:
		return []string{value.Format(vm.GetVariable(arg.String()).Raw())}, nil

	case value.External:
		result := vm.CallExternal(arg.String())
		vm.SetVariable(ExternalSubcallOutput, result)
		return []string{value.Format(result)}, nil

	default:
		return []string{arg.String()}, nil
	}
}

// Evaluate computes a boolean expression. Both operands are always
// resolved; nested expressions evaluate recursively.
func (vm *VM) Evaluate(expr *value.BoolExp) (bool, error) {
	if expr == nil {
		return false, NewInvalidOperandError("", nil)
	}

	a, err := vm.operand(expr.Left)
	if err != nil {
		return false, err
	}
	b, err := vm.operand(expr.Right)
	if err != nil {
		return false, err
	}

	op, ok := vm.operators[expr.Operator]
	if !ok {
		return false, NewUnknownOperatorError(expr.Operator)
	}
	return op(a, b)
}

// operand resolves one side of a boolean expression to its run-time datum.
func (vm *VM) operand(v value.Value) (any, error) {
	switch v.Kind {
	case value.Operation:
		return vm.Evaluate(v.Expr)
	case value.Variable:
		return vm.GetVariable(v.String()).Raw(), nil
	case value.External:
		return vm.CallExternal(v.String()), nil
	case value.Array:
		return v.Items, nil
	default:
		if s, ok := v.Data.(string); ok {
			return value.Unquote(s), nil
		}
		return v.Data, nil
	}
}

// Resolve turns a command argument string into its run-time datum:
// a variable's value, an external call's result, an unquoted literal, or a
// normalised literal (NULL and booleans).
func (vm *VM) Resolve(arg string) any {
	switch {
	case arg == "":
		return ""
	case value.IsVariable(arg):
		return vm.GetVariable(arg).Raw()
	case value.IsExternal(arg):
		return vm.CallExternal(arg)
	case value.IsQuoted(arg):
		return value.Unquote(arg)
	default:
		return value.New(arg).Raw()
	}
}

// CallExternal dispatches a call string of the form @name(arg1,arg2,...).
// Arguments are split on top-level commas and resolved like command
// arguments; an empty argument list passes a single empty string. Unknown
// names and failing functions yield the absence-value.
func (vm *VM) CallExternal(call string) any {
	name, argText := value.SplitCall(call)

	fn, ok := vm.externals[name]
	if !ok {
		vm.log.Debug("External call to unknown function ignored", "function", name)
		return nil
	}

	var args []any
	if strings.TrimSpace(argText) == "" {
		args = []any{""}
	} else {
		for _, part := range value.Split(argText, ',') {
			args = append(args, vm.Resolve(part))
		}
	}

	result, err := fn(vm, args)
	if err != nil {
		vm.log.Error("External function error", "function", name, "error", err)
		return nil
	}
	return result
}

func (vm *VM) halt(reason HaltReason) {
	vm.halted = true
	vm.reason = reason
	vm.log.Debug("VM halted", "reason", reason.String(), "pointer", vm.pointer)
}

// raise halts the instance with a fault located at instruction at.
func (vm *VM) raise(at int, err error) error {
	var re *RuntimeError
	if !errors.As(err, &re) {
		re = NewRuntimeError(ErrorInvalidArgument, err.Error())
	}
	re.Pointer = at
	re.Line = vm.program.Line(at)

	vm.fault = re
	vm.halt(Fault)
	vm.log.Error("Runtime error", "type", string(re.Type), "error", re.Message, "pointer", at, "line", re.Line)
	return re
}
