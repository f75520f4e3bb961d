package workgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/workgate/pkg/workgate/journal"
)

// echo doubles its input; the trivial happy-path process function.
func echo(ctx context.Context, n int) (int, error) {
	return n * 2, nil
}

func TestPool_SubmitAndGet(t *testing.T) {
	p := NewPool[int, int](WithWorkers(2))
	require.NoError(t, p.Start(context.Background(), echo))
	defer p.Shutdown(true, time.Second) //nolint:errcheck

	f, err := p.Submit(21)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.TaskID(), "task-"))

	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPool_ManyTasks(t *testing.T) {
	p := NewPool[int, int](WithWorkers(4), WithQueueSize(64))
	require.NoError(t, p.Start(context.Background(), echo))

	futures := make([]*Future[int], 50)
	for i := range futures {
		f, err := p.Submit(i)
		require.NoError(t, err)
		futures[i] = f
	}

	for i, f := range futures {
		v, err := f.Get()
		require.NoError(t, err)
		assert.Equal(t, i*2, v)
	}

	require.NoError(t, p.Shutdown(true, time.Second))
}

func TestPool_Lifecycle(t *testing.T) {
	p := NewPool[int, int](WithWorkers(1))

	_, err := p.Submit(1)
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.ErrorIs(t, p.Shutdown(true, time.Second), ErrNotStarted)

	require.NoError(t, p.Start(context.Background(), echo))
	assert.ErrorIs(t, p.Start(context.Background(), echo), ErrAlreadyStarted)

	require.NoError(t, p.Shutdown(true, time.Second))

	_, err = p.Submit(1)
	assert.ErrorIs(t, err, ErrPoolClosed)

	assert.ErrorIs(t, p.Shutdown(true, time.Second), ErrPoolClosed)
}

func TestPool_TaskError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPool[int, int](WithWorkers(1))
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		return 0, boom
	}))
	defer p.Shutdown(true, time.Second) //nolint:errcheck

	f, err := p.Submit(1)
	require.NoError(t, err)

	_, err = f.Get()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, f.TaskID(), taskErr.TaskID)
}

func TestPool_PanicRecovery(t *testing.T) {
	p := NewPool[int, int](WithWorkers(1))
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		if n == 13 {
			panic("unlucky")
		}
		return n, nil
	}))
	defer p.Shutdown(true, time.Second) //nolint:errcheck

	f, err := p.Submit(13)
	require.NoError(t, err)

	_, err = f.Get()
	require.Error(t, err)

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "unlucky", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)

	// The worker survives the panic.
	f2, err := p.Submit(7)
	require.NoError(t, err)
	v, err := f2.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestPool_NonBlockingSubmit_QueueFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	p := NewPool[int, int](WithWorkers(1), WithQueueSize(1), WithNonBlockingSubmit())
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		started <- struct{}{}
		<-release
		return n, nil
	}))
	defer p.Shutdown(false, time.Second) //nolint:errcheck
	defer close(release)

	// Occupy the only worker, then fill the queue.
	_, err := p.Submit(1)
	require.NoError(t, err)
	<-started

	_, err = p.Submit(2)
	require.NoError(t, err)

	_, err = p.Submit(3)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPool_ShutdownDrain(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	p := NewPool[int, int](WithWorkers(1), WithQueueSize(8))
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			started <- struct{}{}
			<-release
		}
		return n, nil
	}))

	blocker, err := p.Submit(0)
	require.NoError(t, err)
	<-started

	queued := make([]*Future[int], 3)
	for i := range queued {
		f, err := p.Submit(i + 1)
		require.NoError(t, err)
		queued[i] = f
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, p.Shutdown(true, 2*time.Second))

	_, err = blocker.Get()
	require.NoError(t, err)
	for i, f := range queued {
		v, err := f.Get()
		require.NoError(t, err, "drained task %d must run", i+1)
		assert.Equal(t, i+1, v)
	}
}

func TestPool_ShutdownNoDrain_CancelsQueued(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	p := NewPool[int, int](WithWorkers(1), WithQueueSize(8))
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			started <- struct{}{}
			<-release
		}
		return n, nil
	}))

	blocker, err := p.Submit(0)
	require.NoError(t, err)
	<-started

	queued := make([]*Future[int], 3)
	for i := range queued {
		f, err := p.Submit(i + 1)
		require.NoError(t, err)
		queued[i] = f
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, p.Shutdown(false, 2*time.Second))

	// The in-flight task still finishes; queued ones are cancelled.
	_, err = blocker.Get()
	require.NoError(t, err)
	for _, f := range queued {
		_, err := f.Get()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCancelled)
	}
}

func TestPool_ShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	p := NewPool[int, int](WithWorkers(1))
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		started <- struct{}{}
		<-release
		return n, nil
	}))

	_, err := p.Submit(1)
	require.NoError(t, err)
	<-started

	err = p.Shutdown(true, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrShutdownTimeout)

	close(release)
}

func TestPool_StartContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	p := NewPool[int, int](WithWorkers(1), WithQueueSize(8))
	require.NoError(t, p.Start(ctx, func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			started <- struct{}{}
		}
		<-ctx.Done()
		return 0, ctx.Err()
	}))

	blocker, err := p.Submit(0)
	require.NoError(t, err)
	<-started

	queued, err := p.Submit(1)
	require.NoError(t, err)

	cancel()

	_, err = blocker.Get()
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = queued.Get()
	assert.ErrorIs(t, err, ErrCancelled)

	// Once the workers are gone the pool rejects new work.
	require.Eventually(t, func() bool {
		_, err := p.Submit(2)
		return errors.Is(err, ErrPoolClosed)
	}, time.Second, 5*time.Millisecond)
}

func TestPool_StartCancelRacingSubmits(t *testing.T) {
	// Submitters racing the context cancellation must never strand a
	// task: a send can land after the workers exit, so the teardown has
	// to wait for in-flight submitters before the final queue drain.
	// Every future handed out by a successful Submit must complete.
	for range 50 {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewPool[int, int](WithWorkers(2), WithQueueSize(4))
		require.NoError(t, p.Start(ctx, echo))

		var (
			mu      sync.Mutex
			futures []*Future[int]
			wg      sync.WaitGroup
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					f, err := p.Submit(i)
					if err != nil {
						return
					}
					mu.Lock()
					futures = append(futures, f)
					mu.Unlock()
				}
			}()
		}

		cancel()
		wg.Wait()

		for _, f := range futures {
			select {
			case <-f.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("future left incomplete after start context cancellation")
			}
		}
	}
}

func TestPool_TaskContextAnnotations(t *testing.T) {
	p := NewPool[int, string](WithWorkers(1))
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (string, error) {
		return fmt.Sprintf("%s/%d", TaskID(ctx), WorkerID(ctx)), nil
	}))
	defer p.Shutdown(true, time.Second) //nolint:errcheck

	f, err := p.Submit(1)
	require.NoError(t, err)

	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, f.TaskID()+"/0", v)
}

func TestPool_OnTaskEndHook(t *testing.T) {
	var mu sync.Mutex
	ended := make(map[string]error)

	p := NewPool[int, int](
		WithWorkers(2),
		WithOnTaskEnd(func(taskID string, err error) {
			mu.Lock()
			ended[taskID] = err
			mu.Unlock()
		}),
	)
	require.NoError(t, p.Start(context.Background(), func(ctx context.Context, n int) (int, error) {
		if n < 0 {
			return 0, errors.New("negative")
		}
		return n, nil
	}))

	ok, err := p.Submit(1)
	require.NoError(t, err)
	bad, err := p.Submit(-1)
	require.NoError(t, err)

	_, _ = ok.Get()
	_, _ = bad.Get()
	require.NoError(t, p.Shutdown(true, time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ended, 2)
	assert.NoError(t, ended[ok.TaskID()])
	assert.Error(t, ended[bad.TaskID()])
}

func TestPool_JournalEvents(t *testing.T) {
	store := journal.NewMemoryStore()
	defer store.Close() //nolint:errcheck

	p := NewPool[int, int](WithWorkers(1), WithJournal(store))
	require.NoError(t, p.Start(context.Background(), echo))

	f, err := p.Submit(5)
	require.NoError(t, err)
	_, err = f.Get()
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(true, time.Second))

	events, err := store.List(f.TaskID())
	require.NoError(t, err)

	types := make([]journal.EventType, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	assert.Equal(t, []journal.EventType{
		journal.TaskSubmitted,
		journal.TaskStarted,
		journal.TaskCompleted,
	}, types)
}

func TestPool_RateLimit(t *testing.T) {
	p := NewPool[int, int](
		WithWorkers(4),
		WithQueueSize(16),
		WithRateLimit(50, 1),
	)
	require.NoError(t, p.Start(context.Background(), echo))

	start := time.Now()
	futures := make([]*Future[int], 5)
	for i := range futures {
		f, err := p.Submit(i)
		require.NoError(t, err)
		futures[i] = f
	}
	for _, f := range futures {
		_, err := f.Get()
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// 5 tasks at 50/s with burst 1 cannot finish in under ~80ms.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	require.NoError(t, p.Shutdown(true, time.Second))
}

func TestWorkers(t *testing.T) {
	p := NewPool[int, int](WithWorkers(3))
	assert.Equal(t, 3, p.Workers())
}
