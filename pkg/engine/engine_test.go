package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/zurustar/stcr/pkg/compiler"
	"github.com/zurustar/stcr/pkg/program"
	"github.com/zurustar/stcr/pkg/vm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine compiles the given scripts into a registry and returns an
// engine using a fake clock and a captured output buffer.
func newTestEngine(t *testing.T, scripts map[string]string, opts ...Option) (*Engine, *fakeClock, *bytes.Buffer) {
	t.Helper()
	reg := program.NewRegistry()
	for name, src := range scripts {
		p, err := compiler.CompileWithOptions(src, compiler.CompileOptions{Name: name})
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		if err := reg.Register(name, p); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	out := &bytes.Buffer{}
	base := []Option{
		WithLogger(discardLogger()),
		WithClock(clock),
		WithVMOptions(vm.WithOutput(out)),
	}
	return NewEngine(reg, append(base, opts...)...), clock, out
}

func TestSpawn(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"main": "STCR v0\n### start\nset $x 1",
	})

	s, err := e.Spawn("main", "start")
	if err != nil {
		t.Fatalf("Spawn error: %v", err)
	}
	if s.VM.State() != vm.Runnable {
		t.Errorf("State() = %s, want Runnable", s.VM.State())
	}
	if got, ok := e.Session(s.ID); !ok || got != s {
		t.Error("Session() did not find the spawned session")
	}

	if _, err := e.Spawn("missing", ""); !errors.Is(err, ErrUnknownScript) {
		t.Errorf("Spawn(missing) = %v, want ErrUnknownScript", err)
	}
	if _, err := e.Spawn("main", "nope"); !errors.Is(err, vm.ErrUnknownSegment) {
		t.Errorf("Spawn(main, nope) = %v, want ErrUnknownSegment", err)
	}
	if len(e.Sessions()) != 1 {
		t.Errorf("Sessions() has %d entries, want 1", len(e.Sessions()))
	}
}

func TestUpdate_StepsEachSessionOnce(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"a": "STCR v0\nset $x 1\nset $x 2\nset $x 3",
	})
	s1, _ := e.Spawn("a", "")
	s2, _ := e.Spawn("a", "")
	e.Start()

	if err := e.Update(); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	for _, s := range []*Session{s1, s2} {
		if s.VM.Pointer() != 1 {
			t.Errorf("session %s pointer = %d, want 1", s.ID, s.VM.Pointer())
		}
	}
	if e.TickCount() != 1 {
		t.Errorf("TickCount() = %d, want 1", e.TickCount())
	}
}

func TestUpdate_TerminatesWhenAllHalted(t *testing.T) {
	e, _, out := newTestEngine(t, map[string]string{
		"hello": "STCR v0\ncall @Print(\"hello\")",
	})
	if _, err := e.Spawn("hello", ""); err != nil {
		t.Fatal(err)
	}
	e.Start()

	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = e.Update()
	}
	if !errors.Is(err, ErrTerminated) {
		t.Fatalf("Update() = %v, want ErrTerminated", err)
	}
	if !e.IsTerminated() {
		t.Error("IsTerminated() = false")
	}
	if out.String() != "hello\n" {
		t.Errorf("output = %q, want %q", out.String(), "hello\n")
	}

	// Nothing runs after termination.
	ticks := e.TickCount()
	if err := e.Update(); !errors.Is(err, ErrTerminated) {
		t.Errorf("Update() after termination = %v", err)
	}
	if e.TickCount() != ticks {
		t.Error("tick counted after termination")
	}
}

func TestUpdate_KeepAlive(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"seg": "STCR v0\n### a\nset $a 1\n### b\nset $b 1",
	}, WithKeepAlive(true))
	s, _ := e.Spawn("seg", "a")
	e.Start()

	for i := 0; i < 5; i++ {
		if err := e.Update(); err != nil {
			t.Fatalf("Update error: %v", err)
		}
	}
	if !s.Halted() || s.VM.HaltReason() != vm.EndOfSegment {
		t.Fatalf("session state %s/%s, want Halted/EndOfSegment", s.VM.State(), s.VM.HaltReason())
	}

	if err := e.Invoke(s.ID, "b"); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if err := e.Update(); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if s.VM.GetVariable("$b").Raw() != "1" {
		t.Error("segment b did not run")
	}
	if err := e.Invoke("nope", "b"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Invoke(nope) = %v, want ErrUnknownSession", err)
	}
}

func TestUpdate_Timeout(t *testing.T) {
	e, clock, _ := newTestEngine(t, map[string]string{
		"loop": "STCR v0\ncheckpoint top\njump top",
	}, WithTimeout(time.Second))
	if _, err := e.Spawn("loop", ""); err != nil {
		t.Fatal(err)
	}
	e.Start()

	if err := e.Update(); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	clock.Advance(time.Second)
	if err := e.Update(); !errors.Is(err, ErrTerminated) {
		t.Errorf("Update() after timeout = %v, want ErrTerminated", err)
	}
}

func TestUpdate_FaultIsolated(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"bad":  "STCR v0\nfrobnicate",
		"good": "STCR v0\nset $x 1\nset $x 2",
	})
	bad, _ := e.Spawn("bad", "")
	good, _ := e.Spawn("good", "")
	e.Start()

	if err := e.Update(); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if bad.VM.HaltReason() != vm.Fault {
		t.Errorf("bad session halt reason = %s, want Fault", bad.VM.HaltReason())
	}
	if good.VM.State() != vm.Runnable {
		t.Errorf("good session state = %s, want Runnable", good.VM.State())
	}

	faults := e.Faults()
	if len(faults) != 1 {
		t.Fatalf("Faults() = %v, want one fault", faults)
	}
	var re *vm.RuntimeError
	if !errors.As(faults[0], &re) || re.Type != vm.ErrorUnknownCommand {
		t.Errorf("fault = %v, want UNKNOWN_COMMAND", faults[0])
	}
}

func TestPostEvent_Targeting(t *testing.T) {
	src := `STCR v0
waitEvent &go
set $went TRUE
checkpoint idle
jump idle`
	e, _, _ := newTestEngine(t, map[string]string{"w": src})
	s1, _ := e.Spawn("w", "")
	s2, _ := e.Spawn("w", "")
	e.Start()

	if err := e.Update(); err != nil {
		t.Fatal(err)
	}

	e.PostEvent("&go", s1.ID)
	for i := 0; i < 2; i++ {
		if err := e.Update(); err != nil {
			t.Fatal(err)
		}
	}
	if s1.VM.GetVariable("$went").Raw() != true {
		t.Error("targeted session did not receive the event")
	}
	if !s2.VM.GetVariable("$went").IsNull() {
		t.Error("untargeted session received the event")
	}

	e.PostEvent("&go", "")
	for i := 0; i < 2; i++ {
		if err := e.Update(); err != nil {
			t.Fatal(err)
		}
	}
	if s2.VM.GetVariable("$went").Raw() != true {
		t.Error("broadcast did not reach the second session")
	}
	if e.Queue().Len() != 0 {
		t.Errorf("queue has %d events after dispatch", e.Queue().Len())
	}
}

func TestStatuses(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"s": "STCR v0\nset $x 1\nwait 10",
	})
	s, _ := e.Spawn("s", "")
	e.Start()
	for i := 0; i < 2; i++ {
		if err := e.Update(); err != nil {
			t.Fatal(err)
		}
	}

	statuses := e.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("Statuses() = %d entries, want 1", len(statuses))
	}
	st := statuses[0]
	if st.ID != s.ID || st.Script != "s" || st.State != vm.Sleeping || st.Variables != 1 || st.Pointer != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestRun_Headless(t *testing.T) {
	e, _, out := newTestEngine(t, map[string]string{
		"p": "STCR v0\ncall @Print(\"a\")\ncall @Print(\"b\")",
	})
	if _, err := e.Spawn("p", ""); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx, time.Millisecond); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if out.String() != "a\nb\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_Cancelled(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"loop": "STCR v0\ncheckpoint top\njump top",
	})
	if _, err := e.Spawn("loop", ""); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if !e.IsTerminated() {
		t.Error("cancellation should terminate the engine")
	}
}

func TestReadEvents(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{"x": "STCR v0\nset $x 1"})

	input := "&a\n\n# comment\n&b session-1\n"
	if err := e.ReadEvents(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("ReadEvents error: %v", err)
	}

	events := e.Queue().Drain()
	if len(events) != 2 {
		t.Fatalf("queued %d events, want 2", len(events))
	}
	if events[0].Name != "&a" || events[0].Target != "" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Name != "&b" || events[1].Target != "session-1" {
		t.Errorf("event 1 = %+v", events[1])
	}
}
