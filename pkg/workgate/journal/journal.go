// Package journal provides an append-only record of task lifecycle
// events for post-hoc diagnosis.
//
// When a pool hangs, the journal shows exactly which tasks were waiting
// on a checkout and which initializations were in flight, turning a
// silent "no live threads left" symptom into an inspectable timeline.
package journal

import (
	"errors"
	"time"
)

// EventType identifies a stage in a task's lifecycle.
type EventType string

// Task lifecycle event types.
const (
	TaskSubmitted   EventType = "task.submitted"
	TaskStarted     EventType = "task.started"
	CheckoutWaiting EventType = "checkout.waiting"
	CheckoutGranted EventType = "checkout.granted"
	CheckoutFailed  EventType = "checkout.failed"
	InitStarted     EventType = "init.started"
	InitFinished    EventType = "init.finished"
	TaskCompleted   EventType = "task.completed"
	TaskFailed      EventType = "task.failed"
)

// Event is one journal entry. Key is set for init events, Detail carries
// an error message or free-form context.
type Event struct {
	TaskID    string
	Type      EventType
	Key       string
	WorkerID  int
	Timestamp time.Time
	Detail    string
}

// Store persists task lifecycle events.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append records an event. A zero Timestamp is filled with the
	// current time.
	Append(evt Event) error

	// List returns all events for a task in append order.
	// Returns an empty slice (not an error) if the task has no events.
	List(taskID string) ([]Event, error)

	// Tail returns the most recent n events across all tasks in append
	// order. Useful for a "what was the system doing" snapshot.
	Tail(n int) ([]Event, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for journal operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)
