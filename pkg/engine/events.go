package engine

import (
	"sort"
	"sync"
	"time"
)

// DefaultQueueSize is the default maximum number of pending host events.
const DefaultQueueSize = 1000

// Event is a host event addressed to the special-event table of one session
// or, with an empty Target, to every session.
type Event struct {
	// Name is the special event to fire, e.g. "&click".
	Name string

	// Target is a session ID. Empty means broadcast.
	Target string

	// Timestamp is when the event was queued.
	Timestamp time.Time
}

// NewEvent creates a broadcast event stamped with the current time.
func NewEvent(name string) *Event {
	return &Event{Name: name, Timestamp: time.Now()}
}

// NewTargetedEvent creates an event for a single session.
func NewTargetedEvent(name, target string) *Event {
	return &Event{Name: name, Target: target, Timestamp: time.Now()}
}

// Matches reports whether the event is addressed to the session.
func (e *Event) Matches(sessionID string) bool {
	return e.Target == "" || e.Target == sessionID
}

// EventQueue is a thread-safe queue of host events kept in chronological
// order. Input goroutines push; the engine drains once per tick.
// When the queue is full the oldest event is discarded.
type EventQueue struct {
	events  []*Event
	maxSize int
	mu      sync.Mutex
}

// NewEventQueue creates a queue with the default maximum size.
func NewEventQueue() *EventQueue {
	return NewEventQueueWithSize(DefaultQueueSize)
}

// NewEventQueueWithSize creates a queue with a custom maximum size.
func NewEventQueueWithSize(maxSize int) *EventQueue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &EventQueue{
		events:  make([]*Event, 0, maxSize),
		maxSize: maxSize,
	}
}

// Push adds an event. An event without a timestamp is stamped now.
func (eq *EventQueue) Push(event *Event) {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if len(eq.events) >= eq.maxSize {
		eq.events = eq.events[1:]
	}

	eq.events = append(eq.events, event)

	sort.SliceStable(eq.events, func(i, j int) bool {
		return eq.events[i].Timestamp.Before(eq.events[j].Timestamp)
	})
}

// Pop removes and returns the oldest event.
func (eq *EventQueue) Pop() (*Event, bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if len(eq.events) == 0 {
		return nil, false
	}
	event := eq.events[0]
	eq.events = eq.events[1:]
	return event, true
}

// Drain removes and returns every queued event, oldest first.
func (eq *EventQueue) Drain() []*Event {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	out := eq.events
	eq.events = make([]*Event, 0, eq.maxSize)
	return out
}

// Len returns the number of queued events.
func (eq *EventQueue) Len() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return len(eq.events)
}

// Clear removes all events.
func (eq *EventQueue) Clear() {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	eq.events = eq.events[:0]
}
