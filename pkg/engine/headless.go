package engine

import (
	"context"
	"errors"
	"time"
)

// Run drives the engine from a ticker until it terminates or ctx is
// cancelled. It is the headless counterpart of the window host.
//
// Returns nil on normal termination, ctx.Err() on cancellation, or the first
// error Update reports other than ErrTerminated.
func (e *Engine) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = DefaultTick
	}

	e.Start()
	defer e.Shutdown()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		if err := e.Update(); err != nil {
			if errors.Is(err, ErrTerminated) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			e.Terminate()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
