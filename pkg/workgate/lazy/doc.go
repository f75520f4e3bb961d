// Package lazy provides a keyed once-only initializer registry.
//
// Concurrent first access to a key blocks all requesters until the single
// initializing caller finishes, then serves the cached result to everyone.
// Locking is per key: initializing key A never blocks a lookup of key B.
// A global initialization lock is exactly the coupling that lets a thread
// hold the lock while waiting on a resource held by a second thread
// blocked on that same lock; this package exists to avoid it.
//
// Results are cached permanently, including failures: a key whose
// initializer returned an error re-surfaces that error on every
// subsequent lookup without re-running the initializer.
//
// Basic usage:
//
//	reg := lazy.NewRegistry[*Codec]()
//
//	codec, err := reg.GetOrInit(ctx, "json", func(ctx context.Context) (*Codec, error) {
//	    return loadCodec("json")
//	})
//
// Initializers may themselves call GetOrInit for other keys. A direct or
// indirect request for a key that is already being initialized by the
// same call chain fails fast with ErrCyclicInit instead of deadlocking.
package lazy
