package vm

import "github.com/zurustar/stcr/pkg/value"

// Default operator names.
const (
	OperatorIs  = "is"
	OperatorOr  = "or"
	OperatorAnd = "and"
)

// registerDefaultOperators registers is, or and and. Both operands have
// already been evaluated when an operator runs.
func (vm *VM) registerDefaultOperators() {
	vm.RegisterOperator(OperatorIs, func(a, b any) (bool, error) {
		return value.Equal(a, b), nil
	})

	vm.RegisterOperator(OperatorOr, logical(OperatorOr, func(x, y bool) bool { return x || y }))
	vm.RegisterOperator(OperatorAnd, logical(OperatorAnd, func(x, y bool) bool { return x && y }))
}

// logical adapts a boolean function into an operator that coerces both
// operands first.
func logical(name string, fn func(x, y bool) bool) OperatorFunc {
	return func(a, b any) (bool, error) {
		x, ok := value.ParseBool(a)
		if !ok {
			return false, NewInvalidOperandError(name, a)
		}
		y, ok := value.ParseBool(b)
		if !ok {
			return false, NewInvalidOperandError(name, b)
		}
		return fn(x, y), nil
	}
}
