// Package sync provides the synchronization primitives the memory and task
// subsystems are built on: a busy-wait spinlock and a FIFO-fair counting
// semaphore. Unlike the rest of the module these primitives have no
// hardware dependency, so they are plain portable Go.
package sync

import "sync/atomic"

// yieldFn is called between failed acquire attempts. Tests substitute
// runtime.Gosched so that a goroutine spinning on a lock held by another
// goroutine actually gives it a chance to run.
var yieldFn = func() {}

// Spinlock is a lock where a contending acquirer busy-waits until the lock
// becomes available, rather than parking with the OS scheduler. It is
// appropriate for the short critical sections used while walking page
// tables or frame allocator tables; anything that might block for a while
// should use Semaphore instead.
type Spinlock struct {
	state atomic.Uint32
}

// Acquire blocks until the lock can be acquired. Re-acquiring a lock
// already held by the caller deadlocks.
func (l *Spinlock) Acquire() {
	for !l.TryAcquire() {
		yieldFn()
	}
}

// TryAcquire attempts to acquire the lock without blocking, returning
// whether it succeeded.
func (l *Spinlock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	l.state.Store(0)
}
