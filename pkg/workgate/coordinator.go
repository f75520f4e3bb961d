package workgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/workgate/pkg/workgate/journal"
	"github.com/randalmurphal/workgate/pkg/workgate/lazy"
	"github.com/randalmurphal/workgate/pkg/workgate/observability"
	"github.com/randalmurphal/workgate/pkg/workgate/respool"
)

// ErrNoInitializer indicates a task declared a key that no Provide call
// registered an initializer for.
var ErrNoInitializer = errors.New("no initializer provided for key")

// TaskFunc executes one task while holding a checked-out resource
// handle. The handle is checked in automatically when the function
// returns; do not check it in yourself.
type TaskFunc[T, R any] func(ctx context.Context, h *respool.Handle, task T) (R, error)

// Coordinator composes a resource pool, a lazy-initialization registry,
// and a worker pool under an acquisition-order policy that prevents the
// hold-resource-wait-on-init deadlock.
//
// Lifecycle: NewCoordinator → Provide/KeysFunc → Start → Submit... →
// Shutdown. Provide and KeysFunc must be called before Start.
type Coordinator[T, R any] struct {
	cfg  *poolConfig
	res  *respool.Pool
	reg  *lazy.Registry[any]
	pool *Pool[T, R]
	fn   TaskFunc[T, R]

	mu        sync.Mutex
	providers map[string]lazy.InitFunc[any]
	keysFor   func(task T) []string
}

// NewCoordinator creates a coordinator executing tasks with fn against
// the given resource pool.
//
// With PolicyUnordered and a resource pool smaller than the worker
// count, the configuration can deadlock; NewCoordinator logs a warning
// and returns ErrUnsafeConfiguration unless WithUnsafeOverride is set.
func NewCoordinator[T, R any](res *respool.Pool, fn TaskFunc[T, R], opts ...Option) (*Coordinator[T, R], error) {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.policy == PolicyUnordered && res.Capacity() < cfg.workers {
		observability.LogUnsafeConfiguration(cfg.logger, res.Capacity(), cfg.workers)
		if !cfg.allowUnsafe {
			return nil, fmt.Errorf("capacity %d, workers %d: %w",
				res.Capacity(), cfg.workers, ErrUnsafeConfiguration)
		}
	}

	c := &Coordinator[T, R]{
		cfg:       cfg,
		res:       res,
		reg:       lazy.NewRegistry[any](),
		fn:        fn,
		providers: make(map[string]lazy.InitFunc[any]),
	}
	c.pool = newPool[T, R](cfg)
	return c, nil
}

// Provide registers the initializer for a key. The initializer runs at
// most once, instrumented with the coordinator's logging, metrics,
// tracing, and journal.
func (c *Coordinator[T, R]) Provide(key string, fn lazy.InitFunc[any]) {
	instrumented := func(ctx context.Context) (any, error) {
		c.record(journal.Event{TaskID: TaskID(ctx), Type: journal.InitStarted, Key: key, WorkerID: WorkerID(ctx)})
		observability.LogInitStart(c.cfg.logger, key)

		ictx, span := c.cfg.spans.StartInitSpan(ctx, key)
		start := time.Now()
		val, err := fn(ictx)
		duration := time.Since(start)
		c.cfg.spans.EndSpanWithError(span, err)
		c.cfg.metrics.RecordInit(ictx, key, duration, err)

		detail := ""
		if err != nil {
			detail = err.Error()
		}
		c.record(journal.Event{TaskID: TaskID(ctx), Type: journal.InitFinished, Key: key, WorkerID: WorkerID(ctx), Detail: detail})
		observability.LogInitDone(c.cfg.logger, key, err, float64(duration.Milliseconds()))
		return val, err
	}

	c.mu.Lock()
	c.providers[key] = instrumented
	c.mu.Unlock()
}

// KeysFunc declares which registry keys a task needs. Under
// PolicyInitFirst those keys are initialized before the task's resource
// checkout.
func (c *Coordinator[T, R]) KeysFunc(fn func(task T) []string) {
	c.mu.Lock()
	c.keysFor = fn
	c.mu.Unlock()
}

// Registry exposes the lazy registry, for task functions that look up
// components directly.
func (c *Coordinator[T, R]) Registry() *lazy.Registry[any] {
	return c.reg
}

// Resources exposes the underlying resource pool.
func (c *Coordinator[T, R]) Resources() *respool.Pool {
	return c.res
}

// Warm initializes the given keys eagerly, in order, before any task
// needs them. Stops at the first failure.
func (c *Coordinator[T, R]) Warm(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := c.ensure(ctx, key); err != nil {
			return fmt.Errorf("warm: %w", err)
		}
	}
	return nil
}

// Start launches the worker pool.
func (c *Coordinator[T, R]) Start(ctx context.Context) error {
	return c.pool.Start(ctx, c.execute)
}

// Submit enqueues a task and returns a Future observing its result.
func (c *Coordinator[T, R]) Submit(task T) (*Future[R], error) {
	return c.pool.Submit(task)
}

// Shutdown stops the coordinator; see Pool.Shutdown for the drain
// semantics.
func (c *Coordinator[T, R]) Shutdown(drain bool, timeout time.Duration) error {
	return c.pool.Shutdown(drain, timeout)
}

// execute runs one task under the acquisition-order policy: initialize
// declared keys, then check out a handle, then run the task function.
func (c *Coordinator[T, R]) execute(ctx context.Context, task T) (R, error) {
	var zero R

	if c.cfg.policy == PolicyInitFirst {
		c.mu.Lock()
		keysFor := c.keysFor
		c.mu.Unlock()

		if keysFor != nil {
			for _, key := range keysFor(task) {
				if _, err := c.ensure(ctx, key); err != nil {
					return zero, fmt.Errorf("init %q: %w", key, err)
				}
			}
		}
	}

	h, err := c.checkout(ctx)
	if err != nil {
		return zero, err
	}
	defer c.checkin(ctx, h)

	return c.fn(ctx, h, task)
}

// ensure looks up key in the registry, running its provider on first
// access. The configured init timeout bounds the wait.
func (c *Coordinator[T, R]) ensure(ctx context.Context, key string) (any, error) {
	c.mu.Lock()
	provider, ok := c.providers[key]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoInitializer, key)
	}

	ictx := ctx
	if c.cfg.initTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, c.cfg.initTimeout)
		defer cancel()
	}

	return c.reg.GetOrInit(ictx, key, provider)
}

// checkout acquires a handle for the task, bounded by the configured
// checkout timeout, recording the wait.
func (c *Coordinator[T, R]) checkout(ctx context.Context) (*respool.Handle, error) {
	taskID := TaskID(ctx)
	workerID := WorkerID(ctx)
	c.record(journal.Event{TaskID: taskID, Type: journal.CheckoutWaiting, WorkerID: workerID})

	cctx := ctx
	if c.cfg.checkoutTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, c.cfg.checkoutTimeout)
		defer cancel()
	}

	sctx, span := c.cfg.spans.StartCheckoutSpan(cctx)
	start := time.Now()
	h, err := c.res.Checkout(sctx)
	wait := time.Since(start)
	c.cfg.spans.EndSpanWithError(span, err)
	c.cfg.metrics.RecordCheckoutWait(ctx, wait, err)

	if err != nil {
		c.record(journal.Event{TaskID: taskID, Type: journal.CheckoutFailed, WorkerID: workerID, Detail: err.Error()})
		observability.LogCheckoutFailed(c.cfg.logger, taskID, err, wait)
		return nil, err
	}

	c.cfg.metrics.RecordHandles(ctx, 1)
	c.record(journal.Event{TaskID: taskID, Type: journal.CheckoutGranted, WorkerID: workerID})
	observability.LogCheckout(c.cfg.logger, taskID, h.ID(), wait)
	return h, nil
}

// checkin returns the task's handle to the pool.
func (c *Coordinator[T, R]) checkin(ctx context.Context, h *respool.Handle) {
	c.cfg.metrics.RecordHandles(ctx, -1)
	if err := c.res.Checkin(h); err != nil && c.cfg.logger != nil {
		c.cfg.logger.Error("checkin failed",
			slog.String("task_id", TaskID(ctx)),
			slog.String("error", err.Error()),
		)
	}
}

// record appends a journal event if a journal is configured.
func (c *Coordinator[T, R]) record(evt journal.Event) {
	if c.cfg.journal == nil {
		return
	}
	_ = c.cfg.journal.Append(evt)
}
