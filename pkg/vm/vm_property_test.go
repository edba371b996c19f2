package vm

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/stcr/pkg/compiler"
)

func quietVM(t *testing.T, src string) *VM {
	t.Helper()
	p, err := compiler.Compile(src)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return New(p, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithClock(newFakeClock()))
}

// TestProperty_SetVariableIdempotent verifies that storing a variable's
// current value never queues its change event.
func TestProperty_SetVariableIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("setting the current value queues nothing", prop.ForAll(
		func(s string, repeats int) bool {
			v := quietVM(t, "STCR v0\nset $x 1")
			v.SetVariableEvent("$v", "onChange")
			v.SetVariable("$v", s)
			v.Events().Drain()

			for i := 0; i < repeats; i++ {
				v.SetVariable("$v", s)
			}
			return len(v.Events().Pending()) == 0
		},
		gen.AnyString(),
		gen.IntRange(1, 5),
	))

	properties.Property("each change queues the handler once", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			v := quietVM(t, "STCR v0\nset $x 1")
			v.SetVariableEvent("$v", "onChange")
			v.SetVariable("$v", a)
			v.Events().Drain()
			v.SetVariable("$v", b)
			pending := v.Events().Pending()
			return len(pending) == 1 && pending[0] == "onChange"
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// TestProperty_IfElseExclusive verifies that exactly one branch of an
// if/else runs, and that it is the one the guard selects.
func TestProperty_IfElseExclusive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("if false never runs the guarded command", prop.ForAll(
		func(cond bool, n int) bool {
			src := fmt.Sprintf(`STCR v0
set $c %t
set $n %d
if ($c is TRUE) and ($n is %d)
set $then TRUE
else
set $else TRUE
endif`, cond, n, n)
			v := quietVM(t, src)
			v.Start()
			for i := 0; i < 20 && v.State() != Halted; i++ {
				if err := v.Step(); err != nil {
					t.Logf("Step error: %v", err)
					return false
				}
			}
			thenRan := v.GetVariable("$then").Raw() == true
			elseRan := v.GetVariable("$else").Raw() == true
			return thenRan == cond && elseRan == !cond
		},
		gen.Bool(),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
