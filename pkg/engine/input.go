package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ReadEvents posts one host event per input line until r is exhausted or
// ctx is cancelled. A line is "name" for a broadcast or "name session-id"
// for a targeted event. Blank lines and lines starting with '#' are skipped.
func (e *Engine) ReadEvents(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name, target, ok := parseEventLine(scanner.Text())
		if !ok {
			continue
		}
		e.PostEvent(name, target)
		e.log.Debug("Host event queued from input", "event", name, "target", target)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}

func parseEventLine(line string) (name, target string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	fields := strings.Fields(line)
	name = fields[0]
	if len(fields) > 1 {
		target = fields[1]
	}
	return name, target, true
}
