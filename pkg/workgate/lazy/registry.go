package lazy

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for registry operations.
var (
	// ErrCyclicInit indicates an initializer requested a key that is
	// already being initialized by its own call chain.
	ErrCyclicInit = errors.New("cyclic initialization")

	// ErrInitTimeout indicates a lookup timed out waiting for another
	// caller's initializer to finish.
	ErrInitTimeout = errors.New("initialization timed out")
)

// InitFunc constructs the value for a key. It runs at most once per key
// across the registry's lifetime, without holding any registry lock.
// It receives the requesting caller's context, annotated so that
// re-entrant lookups of the same key are detected.
type InitFunc[V any] func(ctx context.Context) (V, error)

// InitError wraps an initializer failure with its key. The registry
// caches it, so every lookup of a failed key observes the same error.
type InitError struct {
	// Key is the registry key whose initializer failed.
	Key string
	// Err is the error the initializer returned.
	Err error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("init %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InitError) Unwrap() error {
	return e.Err
}

// entry is the per-key state machine. An entry exists only once a caller
// has claimed ownership; done is closed when the owner reaches the
// terminal Ready or Failed state.
type entry[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Registry maps keys to lazily-constructed values. The zero value is not
// usable; create one with NewRegistry. Safe for concurrent use.
type Registry[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]

	countMu sync.Mutex
	counts  map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{
		entries: make(map[string]*entry[V]),
		counts:  make(map[string]int),
	}
}

// chainKey carries the set of keys being initialized by the current call
// chain, for cycle detection across nested GetOrInit calls.
type chainKey struct{}

// chainSet is copied on extension so sibling initializations sharing a
// parent context never observe each other's keys.
type chainSet map[string]struct{}

func chainFrom(ctx context.Context) chainSet {
	if s, ok := ctx.Value(chainKey{}).(chainSet); ok {
		return s
	}
	return nil
}

func withChain(ctx context.Context, parent chainSet, key string) context.Context {
	next := make(chainSet, len(parent)+1)
	for k := range parent {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, chainKey{}, next)
}

// GetOrInit returns the value for key, constructing it with fn on first
// access.
//
// If the key is Ready, the cached value is returned immediately. If it is
// Unstarted, the caller claims ownership and runs fn; all concurrent
// requesters for the key block until fn finishes, then receive the same
// result. If fn returned an error, the failure is cached and re-surfaced
// to every current and future requester as an *InitError.
//
// A waiter whose ctx expires before the owner finishes receives an error
// matching ErrInitTimeout (deadline) or context.Canceled (cancellation);
// the entry itself is unaffected. If the owner's ctx is cancelled, the
// entry transitions to Failed with the cancellation cause and all waiters
// observe it.
//
// A lookup of a key already being initialized by the caller's own chain
// fails fast with ErrCyclicInit.
func (r *Registry[V]) GetOrInit(ctx context.Context, key string, fn InitFunc[V]) (V, error) {
	var zero V

	chain := chainFrom(ctx)
	if _, inFlight := chain[key]; inFlight {
		return zero, fmt.Errorf("key %q: %w", key, ErrCyclicInit)
	}

	// Fast path: terminal entries are served under the read lock only.
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if e, ok = r.entries[key]; !ok {
			e = &entry[V]{done: make(chan struct{})}
			r.entries[key] = e
			r.mu.Unlock()
			return r.runInit(ctx, chain, key, e, fn)
		}
		r.mu.Unlock()
	}

	select {
	case <-e.done:
		return e.val, e.err
	default:
	}

	// Another caller owns the initialization; wait for it.
	select {
	case <-e.done:
		return e.val, e.err
	case <-ctx.Done():
		return zero, waitErr(key, ctx.Err())
	}
}

// runInit executes fn as the owning initializer for key and publishes
// the terminal state. The registry lock is not held while fn runs.
func (r *Registry[V]) runInit(ctx context.Context, parent chainSet, key string, e *entry[V], fn InitFunc[V]) (V, error) {
	r.countMu.Lock()
	r.counts[key]++
	r.countMu.Unlock()

	initCtx := withChain(ctx, parent, key)

	defer close(e.done)

	if err := ctx.Err(); err != nil {
		e.err = &InitError{Key: key, Err: err}
		return e.val, e.err
	}

	val, err := fn(initCtx)
	if err != nil {
		e.err = &InitError{Key: key, Err: err}
		return e.val, e.err
	}

	e.val = val
	return e.val, nil
}

// Ready reports whether key has reached a terminal state, and returns
// the cached value when the state is Ready.
func (r *Registry[V]) Ready(key string) (V, bool) {
	var zero V

	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return zero, false
	}

	select {
	case <-e.done:
		if e.err != nil {
			return zero, false
		}
		return e.val, true
	default:
		return zero, false
	}
}

// InitCount returns how many times the initializer for key has run.
// It is at most 1 for any key; exposed for tests and diagnostics.
func (r *Registry[V]) InitCount(key string) int {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.counts[key]
}

// Len returns the number of keys with claimed entries, terminal or not.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns all claimed keys. The order is not guaranteed.
func (r *Registry[V]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// waitErr maps a waiter's context error to the registry's failure
// taxonomy.
func waitErr(key string, ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("waiting for init of %q: %w: %w", key, ErrInitTimeout, ctxErr)
	}
	return fmt.Errorf("waiting for init of %q: %w", key, ctxErr)
}
