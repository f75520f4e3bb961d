package respool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors for pool operations.
var (
	// ErrExhausted indicates a checkout timed out waiting for a free handle.
	ErrExhausted = errors.New("resource pool exhausted")

	// ErrInvalidHandle indicates a checkin of a handle that is not
	// outstanding from this pool (wrong pool or double checkin).
	ErrInvalidHandle = errors.New("handle not outstanding from this pool")
)

// Handle is an opaque token granting exclusive use of one unit of the
// pooled resource. A handle is owned by at most one caller at a time and
// must be returned with Checkin.
type Handle struct {
	id int
}

// ID returns the stable identifier of the handle within its pool.
// Useful for logging; two checkouts may return the same ID at different
// times because handles are interchangeable.
func (h *Handle) ID() int {
	return h.id
}

// waiter represents a blocked checkout. The channel is buffered so a
// grant performed under the pool lock never blocks.
type waiter struct {
	ch chan *Handle
}

// Pool is a bounded pool of interchangeable resource handles.
// Capacity is fixed at construction. Safe for concurrent use.
type Pool struct {
	capacity int

	mu          sync.Mutex
	free        []*Handle
	outstanding map[*Handle]struct{}
	waiters     []*waiter
}

// New creates a pool with the given capacity.
// Panics if capacity is not positive; a zero-capacity pool could never
// satisfy a checkout.
func New(capacity int) *Pool {
	if capacity < 1 {
		panic(fmt.Sprintf("respool: capacity must be positive, got %d", capacity))
	}

	free := make([]*Handle, capacity)
	for i := range free {
		free[i] = &Handle{id: i}
	}

	return &Pool{
		capacity:    capacity,
		free:        free,
		outstanding: make(map[*Handle]struct{}, capacity),
	}
}

// Checkout blocks until a handle is free or ctx expires.
//
// On success the returned handle is exclusively owned by the caller until
// it is passed back to Checkin. Waiters are served in arrival order.
//
// A deadline expiry returns an error matching both ErrExhausted and
// context.DeadlineExceeded; a cancellation returns an error matching
// context.Canceled. Either way the checkout has no side effects.
func (p *Pool) Checkout(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, checkoutErr(err, 0)
	}

	p.mu.Lock()
	if len(p.free) > 0 {
		h := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		p.outstanding[h] = struct{}{}
		p.mu.Unlock()
		return h, nil
	}

	w := &waiter{ch: make(chan *Handle, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	start := time.Now()
	select {
	case h := <-w.ch:
		return h, nil

	case <-ctx.Done():
		p.mu.Lock()
		for i, q := range p.waiters {
			if q == w {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				p.mu.Unlock()
				return nil, checkoutErr(ctx.Err(), time.Since(start))
			}
		}
		p.mu.Unlock()

		// Lost the race: a checkin granted us a handle while we were
		// giving up. The grant happened under the lock, so the handle
		// is already buffered. Put it back for the next waiter.
		h := <-w.ch
		p.release(h)
		return nil, checkoutErr(ctx.Err(), time.Since(start))
	}
}

// Checkin returns a handle to the pool. If waiters are queued, the
// longest-waiting one is granted the handle directly; otherwise the
// handle rejoins the free set.
//
// Returns ErrInvalidHandle if the handle is not currently outstanding
// from this pool.
func (p *Pool) Checkin(h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.outstanding[h]; !ok {
		return fmt.Errorf("checkin handle %d: %w", handleID(h), ErrInvalidHandle)
	}
	p.releaseLocked(h)
	return nil
}

// release is the internal checkin used when a granted handle is
// abandoned by a cancelled waiter.
func (p *Pool) release(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(h)
}

// releaseLocked hands the handle to the next waiter or returns it to the
// free set. Caller must hold p.mu and h must be outstanding.
func (p *Pool) releaseLocked(h *Handle) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		// Ownership transfers directly; the handle stays outstanding.
		w.ch <- h
		return
	}
	delete(p.outstanding, h)
	p.free = append(p.free, h)
}

// Capacity returns the fixed pool capacity.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Outstanding returns the number of handles currently checked out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

// Free returns the number of handles currently available.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Waiting returns the number of checkouts currently blocked.
func (p *Pool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// Stats returns free, outstanding, and waiting counts as one consistent
// snapshot.
func (p *Pool) Stats() (free, outstanding, waiting int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free), len(p.outstanding), len(p.waiters)
}

// checkoutErr maps a context error to the pool's failure taxonomy.
func checkoutErr(ctxErr error, waited time.Duration) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if waited > 0 {
			return fmt.Errorf("checkout after waiting %s: %w: %w", waited.Round(time.Millisecond), ErrExhausted, ctxErr)
		}
		return fmt.Errorf("checkout: %w: %w", ErrExhausted, ctxErr)
	}
	return fmt.Errorf("checkout cancelled: %w", ctxErr)
}

func handleID(h *Handle) int {
	if h == nil {
		return -1
	}
	return h.id
}
