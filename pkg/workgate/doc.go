/*
Package workgate coordinates fixed-size worker pools whose tasks need
both a bounded resource pool and one-time lazy initialization of shared
components, the combination that classically deadlocks when acquisition
order is inconsistent across workers.

# Overview

workgate composes three primitives and one policy:

  - respool.Pool: a bounded pool of resource handles with blocking
    checkout, explicit checkin, and FIFO fairness.
  - lazy.Registry: a keyed once-only initializer; concurrent first access
    to a key blocks all requesters until the single initializing caller
    finishes, with per-key locking and cycle detection.
  - Pool: a fixed set of workers pulling tasks from a bounded queue,
    completing a Future per task.
  - Coordinator: the acquisition-order rule that keeps the first two from
    deadlocking the third.

The failure mode this library exists to prevent: a worker holds the last
free resource handle while waiting on an initialization owned by another
worker, which is itself blocked waiting for a resource handle. With every
worker blocked on a resource only another blocked worker can release, the
system stops with zero progress: no data corrupted, no task completed.

# Basic Usage

Declare what each task needs, register initializers, and submit:

	res := respool.New(4)

	coord, err := workgate.NewCoordinator[string, int](res, work,
	    workgate.WithWorkers(4),
	    workgate.WithCheckoutTimeout(2*time.Second),
	)
	if err != nil {
	    log.Fatal(err)
	}

	coord.Provide("codec", func(ctx context.Context) (any, error) {
	    return loadCodec()
	})
	coord.KeysFunc(func(task string) []string { return []string{"codec"} })

	if err := coord.Start(ctx); err != nil {
	    log.Fatal(err)
	}
	defer coord.Shutdown(true, 5*time.Second)

	future, err := coord.Submit("item-1")
	if err != nil {
	    log.Fatal(err)
	}
	result, err := future.Get()

The task function receives the checked-out handle; checkin is automatic:

	func work(ctx context.Context, h *respool.Handle, task string) (int, error) {
	    // use the pooled resource
	    return len(task), nil
	}

# Deadlock Avoidance

Under the default PolicyInitFirst, a task's declared keys are initialized
BEFORE a resource handle is checked out, so no task ever holds a scarce
handle while blocked on initialization work owned by another worker.

PolicyUnordered opts out of the ordering. That is only safe when pool
capacity is at least the worker count; NewCoordinator refuses the
combination of PolicyUnordered and capacity < workers with
ErrUnsafeConfiguration unless WithUnsafeOverride is set.

Independently of policy, every blocking path accepts a bound
(WithCheckoutTimeout, WithInitTimeout), converting a would-be silent hang
into ErrResourceExhausted or ErrInitializationTimeout within bounded time.

# Error Handling

Failures are distinguished values compatible with errors.Is/As:

	result, err := future.Get()
	switch {
	case errors.Is(err, workgate.ErrResourceExhausted):
	    // recoverable: retry with backoff or shed load
	case errors.Is(err, workgate.ErrCyclicInitialization):
	    // programmer error: an initializer depends on itself
	case errors.Is(err, workgate.ErrCancelled):
	    // expected during shutdown
	}

Exhaustion and timeouts are recoverable by the caller. Cycle and
invalid-handle errors are programmer errors and are never retried
automatically. A single task's failure (including a panic, surfaced as
*PanicError) never affects other in-flight tasks.

# Observability

Enable logging, metrics, and tracing:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	coord, err := workgate.NewCoordinator[string, int](res, work,
	    workgate.WithLogger(logger),
	    workgate.WithMetrics(true),
	    workgate.WithTracing(true),
	    workgate.WithJournal(store),
	)

Logs include structured fields: task_id, worker_id, key, wait_ms.
OpenTelemetry metrics: workgate.task.executions, workgate.checkout.wait_ms,
workgate.handles.outstanding, workgate.init.runs, and more.
OpenTelemetry tracing: workgate.task > workgate.checkout / workgate.init.{key}.
The optional journal records per-task lifecycle events for post-hoc
deadlock diagnosis.
*/
package workgate
