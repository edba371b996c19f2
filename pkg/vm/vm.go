// Package vm provides the virtual machine for executing compiled STCR programs.
// It implements a cooperative, step-driven execution model with support for:
// - One instruction per step, with timed sleep and segment halts
// - A flat variable store with change-triggered variable events
// - Host-fired special events
// - Internal function calls with a return stack
// - Host-supplied command, operator and external-function tables
//
// A VM is owned by a single host goroutine. The compiled program it runs is
// read-only and may be shared by any number of VMs.
package vm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zurustar/stcr/pkg/logger"
	"github.com/zurustar/stcr/pkg/program"
	"github.com/zurustar/stcr/pkg/value"
)

// Reserved variables written by external calls.
const (
	// ExternalCallOutput receives the result of a "call @..." line.
	ExternalCallOutput = "$EXT_MAIN_OUT"
	// ExternalSubcallOutput receives the result of an external used as a
	// command argument.
	ExternalSubcallOutput = "$EXT_SUB_OUT"
)

// WaitEventDuration is how long waitEvent sleeps if its event never fires.
const WaitEventDuration = 999999 * time.Second

// State is the externally visible execution state.
type State int

const (
	// Idle means no segment has been invoked yet.
	Idle State = iota
	// Runnable means the next step executes an instruction.
	Runnable
	// Sleeping means the sleep deadline has not elapsed.
	Sleeping
	// Halted means execution stopped; see HaltReason.
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Runnable:
		return "Runnable"
	case Sleeping:
		return "Sleeping"
	case Halted:
		return "Halted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// HaltReason tells why a VM is halted.
type HaltReason int

const (
	// NotHalted is the reason of a VM that is not halted.
	NotHalted HaltReason = iota
	// EndOfSegment means a segment marker was reached while running.
	EndOfSegment
	// EndOfProgram means the pointer ran past the last instruction.
	EndOfProgram
	// Fault means a runtime error stopped the instance.
	Fault
)

func (r HaltReason) String() string {
	switch r {
	case NotHalted:
		return "NotHalted"
	case EndOfSegment:
		return "EndOfSegment"
	case EndOfProgram:
		return "EndOfProgram"
	case Fault:
		return "Fault"
	default:
		return fmt.Sprintf("HaltReason(%d)", int(r))
	}
}

// Clock supplies the current time for sleep deadlines.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// CommandFunc is the signature for command handlers.
// Handlers receive the VM instance and the resolved string arguments.
type CommandFunc func(vm *VM, args []string) error

// OperatorFunc is the signature for boolean operators.
type OperatorFunc func(a, b any) (bool, error)

// ExternalFunc is the signature for host functions reachable with '@'.
// External functions receive the VM instance and resolved arguments, and
// return a value and error.
type ExternalFunc func(vm *VM, args []any) (any, error)

// VM represents one interpreter instance bound to a compiled program.
type VM struct {
	id      string
	program *program.Program

	// Execution state
	pointer    int
	sleepUntil time.Time
	started    bool
	halted     bool
	reason     HaltReason
	fault      error
	callStack  []int

	// Variables and events
	scope  *Scope
	events *Events

	// Dispatch tables
	commands  map[string]CommandFunc
	operators map[string]OperatorFunc
	externals map[string]ExternalFunc

	clock Clock
	out   io.Writer
	log   *slog.Logger
}

// Option is a functional option for configuring the VM.
type Option func(*VM)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// WithClock sets the clock used for sleep deadlines.
func WithClock(clock Clock) Option {
	return func(vm *VM) {
		vm.clock = clock
	}
}

// WithOutput sets the writer used by @Print.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) {
		vm.out = w
	}
}

// WithID sets the instance identifier. By default a random UUID is used.
func WithID(id string) Option {
	return func(vm *VM) {
		vm.id = id
	}
}

// WithCommands registers additional command handlers, replacing defaults
// with the same name.
func WithCommands(commands map[string]CommandFunc) Option {
	return func(vm *VM) {
		for name, fn := range commands {
			vm.RegisterCommand(name, fn)
		}
	}
}

// WithOperators registers additional boolean operators.
func WithOperators(operators map[string]OperatorFunc) Option {
	return func(vm *VM) {
		for name, fn := range operators {
			vm.RegisterOperator(name, fn)
		}
	}
}

// WithExternals registers additional external functions. Names include the
// leading '@'.
func WithExternals(externals map[string]ExternalFunc) Option {
	return func(vm *VM) {
		for name, fn := range externals {
			vm.RegisterExternal(name, fn)
		}
	}
}

// New binds a compiled program to a fresh interpreter instance.
// Default commands, operators and external functions are registered first,
// then the options are applied.
//
// Parameters:
//   - p: The compiled program to execute
//   - opts: Optional configuration options (logger, clock, tables)
//
// Returns:
//   - *VM: The initialized VM instance, in the Idle state
func New(p *program.Program, opts ...Option) *VM {
	vm := &VM{
		program:   p,
		callStack: make([]int, 0, 16),
		scope:     NewScope(),
		events:    NewEvents(),
		commands:  make(map[string]CommandFunc),
		operators: make(map[string]OperatorFunc),
		externals: make(map[string]ExternalFunc),
		clock:     SystemClock,
		out:       os.Stdout,
		log:       logger.GetLogger(),
	}

	vm.registerDefaultCommands()
	vm.registerDefaultOperators()
	vm.registerDefaultExternals()

	// Apply options
	for _, opt := range opts {
		opt(vm)
	}

	if vm.id == "" {
		vm.id = uuid.New().String()
	}
	vm.log = vm.log.With("session", vm.id, "script", p.Name)

	return vm
}

// RegisterCommand registers a command handler.
func (vm *VM) RegisterCommand(name string, fn CommandFunc) {
	vm.commands[name] = fn
}

// RegisterOperator registers a boolean operator.
func (vm *VM) RegisterOperator(name string, fn OperatorFunc) {
	vm.operators[name] = fn
}

// RegisterExternal registers an external function. The name includes the
// leading '@'.
func (vm *VM) RegisterExternal(name string, fn ExternalFunc) {
	vm.externals[name] = fn
}

// ID returns the instance identifier.
func (vm *VM) ID() string {
	return vm.id
}

// String identifies the instance in logs and @Print output.
func (vm *VM) String() string {
	return fmt.Sprintf("vm(%s)", vm.id)
}

// Program returns the bound program.
func (vm *VM) Program() *program.Program {
	return vm.program
}

// Logger returns the instance logger.
func (vm *VM) Logger() *slog.Logger {
	return vm.log
}

// Output returns the writer used by @Print.
func (vm *VM) Output() io.Writer {
	return vm.out
}

// Invoke starts or redirects execution at the named segment. An unknown
// segment is reported and returned as ErrUnknownSegment without touching
// the instance.
func (vm *VM) Invoke(segment string) error {
	idx, ok := vm.program.Segment(segment)
	if !ok {
		vm.log.Error("Invoke: segment does not exist", "segment", segment)
		return fmt.Errorf("%w: %q", ErrUnknownSegment, segment)
	}

	vm.pointer = idx + 1
	if !vm.started || vm.halted {
		vm.started = true
		vm.halted = false
		vm.reason = NotHalted
		vm.fault = nil
	}
	vm.log.Debug("Segment invoked", "segment", segment, "pointer", vm.pointer)
	return nil
}

// Start begins execution at the first instruction, for scripts that are run
// from the top rather than from a segment.
func (vm *VM) Start() {
	vm.pointer = 0
	vm.started = true
	vm.halted = false
	vm.reason = NotHalted
	vm.fault = nil
	vm.log.Debug("Started from the top")
}

// State returns the current execution state.
func (vm *VM) State() State {
	switch {
	case !vm.started:
		return Idle
	case vm.halted:
		return Halted
	case vm.IsSleeping():
		return Sleeping
	default:
		return Runnable
	}
}

// HaltReason returns why the VM halted, or NotHalted.
func (vm *VM) HaltReason() HaltReason {
	return vm.reason
}

// Fault returns the runtime error that halted the VM, if any.
func (vm *VM) Fault() error {
	return vm.fault
}

// Pointer returns the program counter.
func (vm *VM) Pointer() int {
	return vm.pointer
}

// CallDepth returns the number of pending function returns.
func (vm *VM) CallDepth() int {
	return len(vm.callStack)
}

// IsSleeping reports whether the sleep deadline lies in the future.
func (vm *VM) IsSleeping() bool {
	return vm.clock.Now().Before(vm.sleepUntil)
}

// SleepUntil returns the sleep deadline.
func (vm *VM) SleepUntil() time.Time {
	return vm.sleepUntil
}

// SleepFor sets the sleep deadline to now + d. A zero or negative duration
// cancels any active sleep.
func (vm *VM) SleepFor(d time.Duration) {
	vm.sleepUntil = vm.clock.Now().Add(d)
}

// SetVariable stores a value. Setting a variable to a value structurally equal
// to its current one does nothing; otherwise a registered variable event is
// queued for the next step.
func (vm *VM) SetVariable(name string, v any) {
	if !vm.scope.Set(name, value.Datum(v)) {
		return
	}
	if handler, ok := vm.events.VariableHandler(name); ok {
		vm.events.Enqueue(handler)
		vm.log.Debug("Variable event queued", "variable", name, "handler", handler)
	}
}

// GetVariable returns a variable's value, or the absence-value if unset.
func (vm *VM) GetVariable(name string) value.Value {
	v, _ := vm.scope.Get(name)
	return v
}

// Scope returns the variable store.
func (vm *VM) Scope() *Scope {
	return vm.scope
}

// Events returns the event tables.
func (vm *VM) Events() *Events {
	return vm.events
}

// SetVariableEvent registers handler for changes of the named variable.
func (vm *VM) SetVariableEvent(name, handler string) {
	vm.events.OnVariable(name, handler)
}

// SetSpecialEvent registers a special event callback.
func (vm *VM) SetSpecialEvent(name string, callback func()) {
	vm.events.OnSpecial(name, callback)
}

// ClearVariables removes every variable and every variable event.
func (vm *VM) ClearVariables() {
	vm.scope.Clear()
	vm.events.ClearVariables()
}

// ClearEvents removes every special event.
func (vm *VM) ClearEvents() {
	vm.events.ClearSpecial()
}

// TriggerSpecialEvent fires a registered special event synchronously.
// Unknown names are ignored. It reports whether the event was registered.
func (vm *VM) TriggerSpecialEvent(name string) bool {
	callback, ok := vm.events.Special(name)
	if !ok {
		vm.log.Debug("Special event not registered", "event", name)
		return false
	}
	if callback != nil {
		callback()
	}
	vm.log.Debug("Special event fired", "event", name)
	return true
}

// CallInternal enters the named function, pushing origin as the return
// pointer. Unknown names are ignored. It reports whether the call happened.
func (vm *VM) CallInternal(name string, origin int) bool {
	entry, ok := vm.program.Function(name)
	if !ok {
		vm.log.Debug("Internal call to unknown function ignored", "function", name)
		return false
	}
	vm.callStack = append(vm.callStack, origin)
	vm.pointer = entry + 1
	return true
}
