package workgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/workgate/pkg/workgate/lazy"
	"github.com/randalmurphal/workgate/pkg/workgate/respool"
)

// Sentinel errors for pool lifecycle.
var (
	// ErrNotStarted indicates Submit or Shutdown was called before Start.
	ErrNotStarted = errors.New("pool not started")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("pool already started")

	// ErrPoolClosed indicates a submission after shutdown began.
	ErrPoolClosed = errors.New("pool shut down")

	// ErrShutdownTimeout indicates workers did not finish within the
	// shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout reached")
)

// Sentinel errors for task submission and results.
var (
	// ErrQueueFull indicates a non-blocking submit found the task queue
	// full.
	ErrQueueFull = errors.New("task queue full")

	// ErrTimedOut indicates Future.GetWithTimeout elapsed before the
	// task completed. The task itself keeps running.
	ErrTimedOut = errors.New("timed out waiting for result")
)

// Sentinel errors for coordination, re-exported from the subpackages so
// callers match failures at the library boundary without importing them.
var (
	// ErrResourceExhausted indicates a checkout timed out waiting for a
	// free resource handle.
	ErrResourceExhausted = respool.ErrExhausted

	// ErrInvalidHandle indicates a checkin of a handle not outstanding
	// from the pool.
	ErrInvalidHandle = respool.ErrInvalidHandle

	// ErrInitializationTimeout indicates a lookup timed out waiting for
	// another caller's initializer.
	ErrInitializationTimeout = lazy.ErrInitTimeout

	// ErrCyclicInitialization indicates an initializer requested a key
	// already being initialized by its own call chain.
	ErrCyclicInitialization = lazy.ErrCyclicInit
)

// ErrCancelled is the distinguished cancellation value. Every
// cancellation surfaced by this library wraps context.Canceled, so
// errors.Is(err, ErrCancelled) holds regardless of which subsystem the
// task was blocked in. Cancellation is a normal outcome of shutdown,
// not a crash.
var ErrCancelled = context.Canceled

// ErrUnsafeConfiguration indicates PolicyUnordered was combined with a
// resource pool smaller than the worker count. That configuration can
// deadlock; see the package documentation. Use WithUnsafeOverride to
// build it anyway.
var ErrUnsafeConfiguration = errors.New("pool capacity below worker count without init-first ordering")

// TaskError wraps an error with task context.
// It identifies which task failed and during what operation.
type TaskError struct {
	// TaskID is the identifier assigned at Submit.
	TaskID string
	// Op is the operation that failed ("init", "checkout", "execute").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %s: %v", e.TaskID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from task execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// TaskID is the identifier of the task that panicked.
	TaskID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Value)
}
