package workgate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/workgate/pkg/workgate/journal"
	"github.com/randalmurphal/workgate/pkg/workgate/observability"
)

// ProcessFunc executes one task. It receives the task's context,
// annotated with the task ID and worker ID (see TaskID, WorkerID).
type ProcessFunc[T, R any] func(ctx context.Context, task T) (R, error)

// submitted pairs a task with the future observing its result.
type submitted[T, R any] struct {
	task   T
	future *Future[R]
}

// Pool is a fixed-size worker pool pulling tasks from a bounded queue.
// Each submitted task completes a Future; a task that blocks consumes
// one worker slot for that duration.
//
// Lifecycle: NewPool → Start → Submit... → Shutdown.
type Pool[T, R any] struct {
	cfg *poolConfig

	mu         sync.Mutex
	started    bool
	stopped    bool
	drain      bool
	submitters sync.WaitGroup

	tasks chan *submitted[T, R]
	quit  chan struct{}
	done  chan struct{}

	closeQuit  sync.Once
	closeTasks sync.Once
}

// NewPool creates an unstarted pool.
//
// Defaults: workers = runtime.GOMAXPROCS(0), queue size = worker count,
// blocking Submit, no timeouts, no observability.
func NewPool[T, R any](opts ...Option) *Pool[T, R] {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newPool[T, R](cfg)
}

// newPool builds a pool around an already-applied configuration, so the
// Coordinator can share its config with the pool it embeds.
func newPool[T, R any](cfg *poolConfig) *Pool[T, R] {
	if cfg.queueSize == 0 {
		cfg.queueSize = cfg.workers
	}

	return &Pool[T, R]{
		cfg:   cfg,
		tasks: make(chan *submitted[T, R], cfg.queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Workers returns the fixed worker count N.
func (p *Pool[T, R]) Workers() int {
	return p.cfg.workers
}

// Start launches the workers. Tasks submitted afterwards are processed
// by fn. Returns ErrAlreadyStarted on a second call.
//
// Cancelling ctx stops the workers; queued tasks complete their futures
// with an error matching ErrCancelled.
func (p *Pool[T, R]) Start(ctx context.Context, fn ProcessFunc[T, R]) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	var g errgroup.Group
	for i := range p.cfg.workers {
		g.Go(func() error {
			return p.worker(ctx, i, fn)
		})
	}

	go func() {
		_ = g.Wait()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.closeQuit.Do(func() { close(p.quit) })

		// Same quiesce sequence as Shutdown: once quit is closed no
		// submitter can block, and after the wait none is mid-send, so
		// the task channel can be closed and drained. Skipping the wait
		// would let a racing Submit land a task after the final drain,
		// leaving its future incomplete forever.
		p.submitters.Wait()
		p.closeTasks.Do(func() { close(p.tasks) })
		p.failPending()
		close(p.done)
	}()

	return nil
}

// Submit enqueues a task and returns a Future observing its result.
//
// With the default blocking mode, Submit waits for queue space; with
// WithNonBlockingSubmit it fails fast with ErrQueueFull. Returns
// ErrNotStarted before Start and ErrPoolClosed after Shutdown.
func (p *Pool[T, R]) Submit(task T) (*Future[R], error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil, ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.submitters.Add(1)
	p.mu.Unlock()
	defer p.submitters.Done()

	taskID := fmt.Sprintf("task-%s", uuid.New().String()[:8])
	s := &submitted[T, R]{
		task:   task,
		future: newFuture[R](taskID),
	}

	// Journal before the send so task.submitted always precedes
	// task.started, even when a worker picks the task up immediately.
	p.record(journal.Event{TaskID: taskID, Type: journal.TaskSubmitted})

	if p.cfg.nonBlockingSubmit {
		select {
		case <-p.quit:
			return nil, p.reject(taskID, ErrPoolClosed)
		case p.tasks <- s:
		default:
			return nil, p.reject(taskID, ErrQueueFull)
		}
	} else {
		select {
		case <-p.quit:
			return nil, p.reject(taskID, ErrPoolClosed)
		case p.tasks <- s:
		}
	}

	return s.future, nil
}

// Shutdown stops accepting new tasks. If drain is true, queued and
// in-flight tasks finish first; otherwise queued-but-not-started tasks
// complete their futures with an error matching ErrCancelled (in-flight
// tasks still finish).
//
// Blocks until the workers exit or timeout elapses (0 waits forever);
// on expiry returns ErrShutdownTimeout.
func (p *Pool[T, R]) Shutdown(drain bool, timeout time.Duration) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.stopped = true
	p.drain = drain
	p.mu.Unlock()

	p.closeQuit.Do(func() { close(p.quit) })

	// After quit is closed no submitter can block, and after the wait
	// none can be mid-send, so closing the task channel is safe. The
	// supervisor closes it too when Start's context ends first.
	p.submitters.Wait()
	p.closeTasks.Do(func() { close(p.tasks) })

	return waitUntil(p.done, timeout)
}

// worker is the main loop of one execution unit.
func (p *Pool[T, R]) worker(ctx context.Context, workerID int, fn ProcessFunc[T, R]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-p.tasks:
			if !ok {
				return nil
			}
			if p.cancelQueued() {
				var zero R
				s.future.complete(zero, cancelledErr(s.future.taskID))
				continue
			}
			p.run(ctx, workerID, s, fn)
		}
	}
}

// cancelQueued reports whether queued tasks should be cancelled instead
// of run (non-drain shutdown in progress).
func (p *Pool[T, R]) cancelQueued() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped && !p.drain
}

// run executes one task and completes its future.
func (p *Pool[T, R]) run(ctx context.Context, workerID int, s *submitted[T, R], fn ProcessFunc[T, R]) {
	taskID := s.future.taskID
	tctx := withWorkerID(withTaskID(ctx, taskID), workerID)

	if p.cfg.limiter != nil {
		if err := p.cfg.limiter.Wait(tctx); err != nil {
			var zero R
			s.future.complete(zero, &TaskError{TaskID: taskID, Op: "rate limit", Err: err})
			return
		}
	}

	p.record(journal.Event{TaskID: taskID, Type: journal.TaskStarted, WorkerID: workerID})
	observability.LogTaskStart(p.cfg.logger, taskID, workerID)

	tctx, span := p.cfg.spans.StartTaskSpan(tctx, taskID, workerID)
	start := time.Now()
	val, err := p.invoke(tctx, taskID, s.task, fn)
	duration := time.Since(start)
	p.cfg.spans.EndSpanWithError(span, err)
	p.cfg.metrics.RecordTaskExecution(tctx, duration, err)

	durationMs := float64(duration.Milliseconds())
	if err != nil {
		err = wrapTaskErr(taskID, err)
		p.record(journal.Event{TaskID: taskID, Type: journal.TaskFailed, WorkerID: workerID, Detail: err.Error()})
		observability.LogTaskError(p.cfg.logger, taskID, err, durationMs)
	} else {
		p.record(journal.Event{TaskID: taskID, Type: journal.TaskCompleted, WorkerID: workerID})
		observability.LogTaskComplete(p.cfg.logger, taskID, durationMs)
	}

	s.future.complete(val, err)
	if p.cfg.onTaskEnd != nil {
		p.cfg.onTaskEnd(taskID, err)
	}
}

// invoke runs fn with panic recovery so a single task cannot crash the
// pool.
func (p *Pool[T, R]) invoke(ctx context.Context, taskID string, task T, fn ProcessFunc[T, R]) (val R, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			err = &PanicError{TaskID: taskID, Value: r, Stack: string(buf[:n])}
		}
	}()

	return fn(ctx, task)
}

// failPending completes futures for tasks stranded in the queue when the
// workers have exited. The task channel is closed by then, so ranging
// reclaims every queued task with no window for a late arrival.
func (p *Pool[T, R]) failPending() {
	for s := range p.tasks {
		var zero R
		s.future.complete(zero, cancelledErr(s.future.taskID))
	}
}

// reject journals and wraps a submission failure.
func (p *Pool[T, R]) reject(taskID string, cause error) error {
	err := fmt.Errorf("submit %s: %w", taskID, cause)
	p.record(journal.Event{TaskID: taskID, Type: journal.TaskFailed, Detail: err.Error()})
	return err
}

// record appends a journal event if a journal is configured.
func (p *Pool[T, R]) record(evt journal.Event) {
	if p.cfg.journal == nil {
		return
	}
	// A broken journal must not fail tasks; diagnostics are best effort.
	_ = p.cfg.journal.Append(evt)
}

// cancelledErr is the result of a task cancelled before it ran.
func cancelledErr(taskID string) error {
	return &TaskError{
		TaskID: taskID,
		Op:     "cancelled",
		Err:    fmt.Errorf("task cancelled before running: %w", context.Canceled),
	}
}

// wrapTaskErr adds task context to an execution failure. Panic errors
// already carry it.
func wrapTaskErr(taskID string, err error) error {
	if _, ok := err.(*PanicError); ok {
		return err
	}
	return &TaskError{TaskID: taskID, Op: "execute", Err: err}
}

// waitUntil blocks until done is closed or timeout elapses.
// A timeout of zero or less waits forever.
func waitUntil(done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-done
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
