package workgate

import (
	"fmt"
	"sync"
	"time"
)

// Future is the observable result of a submitted task.
// It completes exactly once, when the task finishes, fails, or is
// cancelled during shutdown.
type Future[R any] struct {
	taskID string
	done   chan struct{}
	once   sync.Once
	val    R
	err    error
}

// newFuture creates an incomplete future for the given task ID.
func newFuture[R any](taskID string) *Future[R] {
	return &Future[R]{
		taskID: taskID,
		done:   make(chan struct{}),
	}
}

// complete publishes the result. Subsequent calls are ignored.
func (f *Future[R]) complete(val R, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// TaskID returns the identifier assigned to the task at Submit.
func (f *Future[R]) TaskID() string {
	return f.taskID
}

// Get blocks until the task completes and returns its result.
func (f *Future[R]) Get() (R, error) {
	<-f.done
	return f.val, f.err
}

// GetWithTimeout blocks up to d for the task to complete.
// On expiry it returns an error matching ErrTimedOut; the task itself
// keeps running and a later Get still observes its result.
func (f *Future[R]) GetWithTimeout(d time.Duration) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-time.After(d):
		var zero R
		return zero, fmt.Errorf("task %s after %s: %w", f.taskID, d, ErrTimedOut)
	}
}

// IsReady reports whether the task has completed, without blocking.
func (f *Future[R]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the task completes, for use in
// select statements.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}
