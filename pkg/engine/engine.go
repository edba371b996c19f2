// Package engine schedules STCR interpreter instances.
//
// The engine owns a set of sessions, each binding a compiled program from a
// registry to its own VM. A host calls Update once per tick: queued host
// events are dispatched to the sessions' special-event tables, then every
// session takes exactly one step. The engine terminates when every session
// has halted, when the timeout elapses, or when Terminate is called.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zurustar/stcr/pkg/logger"
	"github.com/zurustar/stcr/pkg/program"
	"github.com/zurustar/stcr/pkg/vm"
)

// ErrTerminated is returned when the engine is terminated.
var ErrTerminated = errors.New("engine terminated")

// ErrUnknownScript is returned by Spawn for a name missing from the registry.
var ErrUnknownScript = errors.New("unknown script")

// ErrUnknownSession is returned for a session ID the engine does not own.
var ErrUnknownSession = errors.New("unknown session")

// DefaultTick is the tick interval used when none is configured (60 FPS).
const DefaultTick = time.Second / 60

// Engine is the host scheduler for interpreter sessions.
type Engine struct {
	registry *program.Registry
	queue    *EventQueue
	log      *slog.Logger
	clock    vm.Clock
	vmOpts   []vm.Option

	sessions []*Session
	mu       sync.RWMutex

	tickCount  atomic.Int64
	terminated atomic.Bool
	timeout    time.Duration
	startTime  time.Time
	keepAlive  bool
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Sessions log through it as well.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithClock sets the clock shared by the engine and its sessions.
func WithClock(clock vm.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithTimeout sets the execution timeout. Zero means no timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// WithVMOptions adds options applied to every spawned VM, such as extra
// commands or external functions.
func WithVMOptions(opts ...vm.Option) Option {
	return func(e *Engine) {
		e.vmOpts = append(e.vmOpts, opts...)
	}
}

// WithQueue sets the host event queue.
func WithQueue(q *EventQueue) Option {
	return func(e *Engine) {
		e.queue = q
	}
}

// WithKeepAlive keeps the engine running after every session has halted,
// so that a host can invoke further segments.
func WithKeepAlive(keep bool) Option {
	return func(e *Engine) {
		e.keepAlive = keep
	}
}

// NewEngine creates an engine resolving scripts through registry.
func NewEngine(registry *program.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		queue:    NewEventQueue(),
		log:      logger.GetLogger(),
		clock:    vm.SystemClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the program registry.
func (e *Engine) Registry() *program.Registry {
	return e.registry
}

// Queue returns the host event queue.
func (e *Engine) Queue() *EventQueue {
	return e.queue
}

// Spawn binds the named script to a new session. With an empty segment the
// session starts at the first instruction; otherwise the segment is invoked.
func (e *Engine) Spawn(script, segment string) (*Session, error) {
	p, ok := e.registry.Get(script)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScript, script)
	}

	opts := append([]vm.Option{vm.WithLogger(e.log), vm.WithClock(e.clock)}, e.vmOpts...)
	machine := vm.New(p, opts...)

	if segment == "" {
		machine.Start()
	} else if err := machine.Invoke(segment); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", script, err)
	}

	s := &Session{ID: machine.ID(), Script: script, Segment: segment, VM: machine}

	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()

	e.log.Info("Session spawned", "session", s.ID, "script", script, "segment", segment)
	return s, nil
}

// Invoke redirects an existing session to another segment.
func (e *Engine) Invoke(sessionID, segment string) error {
	s, ok := e.Session(sessionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, sessionID)
	}
	if err := s.VM.Invoke(segment); err != nil {
		return err
	}
	s.Segment = segment
	return nil
}

// Session returns the session with the given ID.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns the sessions in spawn order.
func (e *Engine) Sessions() []*Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Session, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// Statuses returns a status snapshot of every session. It must be called
// from the goroutine that calls Update.
func (e *Engine) Statuses() []Status {
	sessions := e.Sessions()
	out := make([]Status, len(sessions))
	for i, s := range sessions {
		out[i] = s.Status()
	}
	return out
}

// PostEvent queues a special event for the next tick. An empty target
// broadcasts to every session.
func (e *Engine) PostEvent(name, target string) {
	e.queue.Push(&Event{Name: name, Target: target, Timestamp: e.clock.Now()})
}

// Start marks the beginning of execution for timeout purposes.
func (e *Engine) Start() {
	e.startTime = e.clock.Now()
	e.terminated.Store(false)
	e.log.Info("Engine started", "sessions", len(e.Sessions()), "timeout", e.timeout)
}

// Terminate sets the termination flag.
func (e *Engine) Terminate() {
	if !e.terminated.Load() {
		e.terminated.Store(true)
		e.log.Info("Engine termination requested")
	}
}

// IsTerminated returns whether the engine has been terminated.
func (e *Engine) IsTerminated() bool {
	return e.terminated.Load()
}

// CheckTermination reports whether the engine should stop: termination was
// requested or the timeout elapsed.
func (e *Engine) CheckTermination() bool {
	if e.terminated.Load() {
		return true
	}

	if e.timeout > 0 && !e.startTime.IsZero() {
		elapsed := e.clock.Now().Sub(e.startTime)
		if elapsed >= e.timeout {
			e.log.Info("Timeout exceeded", "elapsed", elapsed)
			e.Terminate()
			return true
		}
	}

	return false
}

// TickCount returns the number of completed ticks.
func (e *Engine) TickCount() int64 {
	return e.tickCount.Load()
}

// Update performs one engine tick.
func (e *Engine) Update() error {
	if e.CheckTermination() {
		return ErrTerminated
	}

	e.tickCount.Add(1)

	e.dispatchEvents()

	for _, s := range e.Sessions() {
		if err := s.VM.Step(); err != nil {
			// The VM has halted itself; other sessions keep running.
			e.log.Warn("Session faulted", "session", s.ID, "script", s.Script, "error", err)
		}
	}

	if !e.keepAlive && e.AllHalted() {
		e.log.Info("All sessions halted, terminating")
		e.Terminate()
		return ErrTerminated
	}

	if e.CheckTermination() {
		return ErrTerminated
	}
	return nil
}

// dispatchEvents fires every queued host event on the sessions it addresses.
func (e *Engine) dispatchEvents() {
	events := e.queue.Drain()
	if len(events) == 0 {
		return
	}
	sessions := e.Sessions()
	for _, ev := range events {
		delivered := false
		for _, s := range sessions {
			if ev.Matches(s.ID) && s.VM.TriggerSpecialEvent(ev.Name) {
				delivered = true
			}
		}
		if !delivered {
			e.log.Debug("Host event not handled", "event", ev.Name, "target", ev.Target)
		}
	}
}

// AllHalted reports whether every session has halted. An engine without
// sessions counts as halted.
func (e *Engine) AllHalted() bool {
	for _, s := range e.Sessions() {
		if !s.Halted() {
			return false
		}
	}
	return true
}

// Faults returns the runtime errors of faulted sessions.
func (e *Engine) Faults() []error {
	var out []error
	for _, s := range e.Sessions() {
		if err := s.VM.Fault(); err != nil {
			out = append(out, fmt.Errorf("session %s (%s): %w", s.ID, s.Script, err))
		}
	}
	return out
}

// Shutdown releases pending events.
func (e *Engine) Shutdown() {
	e.queue.Clear()
	e.log.Info("Engine shutdown", "ticks", e.TickCount())
}
