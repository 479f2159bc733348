// Package connpool implements a bounded pool of database connections.
//
// # Architecture
//
// A Pool hands out at most Capacity connections at a time. Admission is a
// counting semaphore; a caller that finds every connection leased blocks in
// Acquire until another caller releases one. Bookkeeping (the idle queue, the
// created counter and the set of outstanding leases) sits behind a single
// mutex that never covers the blocking wait.
//
// Connections are opened lazily through a Factory and are never destroyed by
// the pool. While fewer than Capacity creation attempts have been made, every
// Acquire opens a new connection even if idle ones are waiting; after that,
// every Acquire reuses an idle one. A failed creation still uses up its slot
// and its permit, so the pool serves one connection fewer from then on.
//
// # Handles
//
// Acquire returns a *Handle rather than the raw connection. A Handle forwards
// every Conn method to the connection it is bound to, except Close, which
// returns the connection to the pool instead of tearing it down:
//
//	h, err := pool.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer h.Close() // back to the pool, the physical connection stays open
//
//	if _, err := h.ExecContext(ctx, "UPDATE jobs SET state = $1", "done"); err != nil {
//	    return err
//	}
//
// A Handle is valid for exactly one lease. After Close, every method returns
// an error wrapping ErrHandleReleased and the next Acquire gets a fresh Handle.
//
// # Errors
//
// Failures are *poolerrors.Error values. New reports ErrorTypeConfig or
// ErrorTypeDriver; Acquire reports ErrorTypeCreation when the factory fails
// and ErrorTypeState when the pool's bookkeeping is inconsistent; Release
// reports ErrorTypeMisuse for double releases and handles from another pool.
package connpool
