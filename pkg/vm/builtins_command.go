package vm

import (
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/stcr/pkg/value"
)

// Default command names.
const (
	CommandClearVariables = "clearVariables"
	CommandClearEvents    = "clearEvents"
	CommandOnEvent        = "onEvent"
	CommandWaitEvent      = "waitEvent"
	CommandWait           = "wait"
	CommandSet            = "set"
)

// registerDefaultCommands registers the built-in commands every instance
// understands. Hosts may replace any of them with WithCommands.
func (vm *VM) registerDefaultCommands() {
	// clearVariables: drop every variable and every variable event
	vm.RegisterCommand(CommandClearVariables, func(v *VM, args []string) error {
		v.ClearVariables()
		v.log.Debug("clearVariables called")
		return nil
	})

	// clearEvents: drop every special event
	vm.RegisterCommand(CommandClearEvents, func(v *VM, args []string) error {
		v.ClearEvents()
		v.log.Debug("clearEvents called")
		return nil
	})

	// onEvent target handler
	// A $variable target registers a variable event; anything else names a
	// special event. A NULL handler registers a special event that does
	// nothing when fired.
	vm.RegisterCommand(CommandOnEvent, func(v *VM, args []string) error {
		if len(args) != 2 {
			return NewInvalidArgumentError(CommandOnEvent, "expects a target and a handler")
		}
		target, handler := args[0], args[1]

		if value.IsVariable(target) {
			v.SetVariableEvent(target, handler)
			v.log.Debug("Variable event registered", "variable", target, "handler", handler)
			return nil
		}

		if handler == value.Null {
			v.SetSpecialEvent(target, nil)
		} else {
			v.SetSpecialEvent(target, func() {
				v.events.Enqueue(handler)
			})
		}
		v.log.Debug("Special event registered", "event", target, "handler", handler)
		return nil
	})

	// waitEvent &name
	// Sleeps until the named special event fires.
	vm.RegisterCommand(CommandWaitEvent, func(v *VM, args []string) error {
		if len(args) != 1 || !value.IsKeyword(args[0]) {
			return NewInvalidArgumentError(CommandWaitEvent, "expects one &event name")
		}
		name := args[0]
		v.SleepFor(WaitEventDuration)
		v.SetSpecialEvent(name, func() {
			v.SleepFor(-1)
		})
		v.log.Debug("Waiting for event", "event", name)
		return nil
	})

	// wait seconds
	// The argument arrives already resolved. An unparseable duration is
	// reported and ignored.
	vm.RegisterCommand(CommandWait, func(v *VM, args []string) error {
		if len(args) == 0 {
			return NewInvalidArgumentError(CommandWait, "expects a duration")
		}
		secs, ok := toSeconds(args[0])
		if !ok {
			v.log.Warn("wait: duration is not a number", "arg", args[0])
			return nil
		}
		v.SleepFor(time.Duration(secs * float64(time.Second)))
		v.log.Debug("Sleeping", "seconds", secs, "until", v.sleepUntil)
		return nil
	})

	// set $var source
	vm.RegisterCommand(CommandSet, func(v *VM, args []string) error {
		if len(args) != 2 {
			return NewInvalidArgumentError(CommandSet, "expects a variable and a value")
		}
		if !value.IsVariable(args[0]) {
			return NewInvalidArgumentError(CommandSet, "first argument must be a variable, got "+args[0])
		}
		v.SetVariable(args[0], v.Resolve(args[1]))
		return nil
	})
}

// toSeconds converts a resolved datum to a number of seconds.
func toSeconds(d any) (float64, bool) {
	switch x := d.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
