// Package respool provides a bounded pool of interchangeable resource
// handles with blocking checkout, explicit checkin, and FIFO fairness
// among waiters.
//
// The pool holds a fixed capacity of opaque handles. Checkout blocks the
// caller until a handle frees or the context expires; Checkin returns a
// handle and wakes the longest-waiting caller. The invariant
// free + outstanding == capacity holds at all times.
//
// Basic usage:
//
//	pool := respool.New(4)
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//
//	h, err := pool.Checkout(ctx)
//	if err != nil {
//	    return err // workgate.ErrResourceExhausted or workgate.ErrCancelled
//	}
//	defer pool.Checkin(h)
//
// A checkout that times out or is cancelled has no side effects: the
// caller never held a handle and nothing needs to be released.
package respool
