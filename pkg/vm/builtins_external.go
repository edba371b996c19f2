package vm

import (
	"fmt"
	"strings"

	"github.com/zurustar/stcr/pkg/value"
)

// Default external function names.
const (
	ExternalPrint = "@Print"
	ExternalThis  = "@This"
)

// registerDefaultExternals registers the host functions available to every
// script.
func (vm *VM) registerDefaultExternals() {
	// @Print(args...): write the arguments separated by spaces
	vm.RegisterExternal(ExternalPrint, func(v *VM, args []any) (any, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = value.Format(a)
		}
		line := strings.Join(parts, " ")
		v.log.Debug("Print", "text", line)
		if _, err := fmt.Fprintln(v.out, line); err != nil {
			return nil, fmt.Errorf("print: %w", err)
		}
		return nil, nil
	})

	// @This(): the calling interpreter
	vm.RegisterExternal(ExternalThis, func(v *VM, args []any) (any, error) {
		return v, nil
	})
}
