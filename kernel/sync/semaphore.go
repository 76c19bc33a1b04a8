package sync

import (
	"sync/atomic"

	"coldcore/kernel"
)

var (
	// ErrNotEnoughTotalTickets is returned when a request asks for more
	// tickets than the semaphore could ever grant.
	ErrNotEnoughTotalTickets = &kernel.Error{Module: "sync", Message: "requested ticket count exceeds total capacity"}

	// ErrPoisoned is returned by Acquire while the semaphore is poisoned.
	ErrPoisoned = &kernel.Error{Module: "sync", Message: "semaphore is poisoned"}

	// ErrClosed is returned by Acquire once the semaphore has been closed.
	ErrClosed = &kernel.Error{Module: "sync", Message: "semaphore is closed"}
)

const (
	currentMask = uint64(0xFFFFFFFF)
	totalMask   = uint64(0x3FFFFFFF)
	totalShift  = 32
	closedBit   = uint64(1) << 62
	poisonedBit = uint64(1) << 63
)

func packState(current, total uint32, closed, poisoned bool) uint64 {
	w := uint64(current) | (uint64(total)&totalMask)<<totalShift
	if closed {
		w |= closedBit
	}
	if poisoned {
		w |= poisonedBit
	}
	return w
}

func unpackState(w uint64) (current, total uint32, closed, poisoned bool) {
	current = uint32(w & currentMask)
	total = uint32((w >> totalShift) & totalMask)
	closed = w&closedBit != 0
	poisoned = w&poisonedBit != 0
	return
}

// request lifecycle bits. The requested ticket count is kept separately in
// request.n, not packed into the lifecycle word.
const (
	reqNTicketsMask   = uint32(0x00FFFFFF)
	reqAttachedFuture = uint32(1) << 24
	reqReady          = uint32(1) << 25
	reqAck            = uint32(1) << 26
	reqDropped        = uint32(1) << 27
)

// request is the shared state between a queued acquirer and the
// semaphore's waiter queue: a lifecycle word plus a single-slot waker.
type request struct {
	n         uint32
	lifecycle atomic.Uint32
	waker     atomic.Pointer[func()]
	invoked   atomic.Bool
}

// setReady reserves tickets for this request, unless it has already been
// dropped. It returns whether this call won that race.
func (r *request) setReady() bool {
	for {
		old := r.lifecycle.Load()
		if old&reqDropped != 0 || old&reqReady != 0 {
			return false
		}
		if r.lifecycle.CompareAndSwap(old, old|reqReady) {
			return true
		}
	}
}

// markDropped marks the request as abandoned by its waiter, unless the
// semaphore already reserved tickets for it. It returns whether this call
// won that race (true: no tickets were reserved, nothing to return).
func (r *request) markDropped() bool {
	for {
		old := r.lifecycle.Load()
		if old&reqReady != 0 {
			return false
		}
		if r.lifecycle.CompareAndSwap(old, old|reqDropped) {
			return true
		}
	}
}

// tryAck converts a ready reservation into an owned guard. It returns
// false if the request is not yet ready or has already been acknowledged.
func (r *request) tryAck() bool {
	for {
		old := r.lifecycle.Load()
		if old&reqReady == 0 || old&reqAck != 0 {
			return false
		}
		if r.lifecycle.CompareAndSwap(old, old|reqAck) {
			return true
		}
	}
}

// attachWaker installs fn as the request's single-slot waker. Attaching a
// second waker to the same request is a programming error: the sticky
// attached_future bit catches it.
func (r *request) attachWaker(fn func()) {
	for {
		old := r.lifecycle.Load()
		if old&reqAttachedFuture != 0 {
			panic("sync: waker already attached to this request")
		}
		if r.lifecycle.CompareAndSwap(old, old|reqAttachedFuture) {
			break
		}
	}
	r.waker.Store(&fn)
	if r.lifecycle.Load()&reqReady != 0 {
		r.invokeWaker()
	}
}

func (r *request) invokeWaker() {
	// With no waker attached yet there is nothing to call; attachWaker
	// invokes the waker itself once it sees the ready bit.
	w := r.waker.Load()
	if w == nil {
		return
	}
	if !r.invoked.CompareAndSwap(false, true) {
		return
	}
	(*w)()
}

// Semaphore admits up to a total number of concurrent ticket-holders,
// queuing surplus acquirers in strict FIFO order.
type Semaphore struct {
	state     atomic.Uint64
	queueLock Spinlock
	queue     []*request
}

// NewSemaphore creates a semaphore with total tickets available immediately.
func NewSemaphore(total uint32) *Semaphore {
	s := &Semaphore{}
	s.state.Store(packState(total, total, false, false))
	return s
}

func (s *Semaphore) tryConsume(n uint32) bool {
	for {
		old := s.state.Load()
		current, total, closed, poisoned := unpackState(old)
		if current < n {
			return false
		}
		nw := packState(current-n, total, closed, poisoned)
		if s.state.CompareAndSwap(old, nw) {
			return true
		}
	}
}

func (s *Semaphore) addCurrent(n uint32) {
	for {
		old := s.state.Load()
		current, total, closed, poisoned := unpackState(old)
		if uint64(current)+uint64(n) > uint64(total) {
			panic("sync: returned more tickets than outstanding")
		}
		nw := packState(current+n, total, closed, poisoned)
		if s.state.CompareAndSwap(old, nw) {
			return
		}
	}
}

// serveQueue wakes as many queued waiters as the currently available
// ticket count allows, stopping as soon as the head of the queue needs
// more than what is available.
func (s *Semaphore) serveQueue() {
	for {
		s.queueLock.Acquire()
		if len(s.queue) == 0 {
			s.queueLock.Release()
			return
		}

		head := s.queue[0]
		current, _, _, _ := unpackState(s.state.Load())
		if head.n > current {
			s.queueLock.Release()
			return
		}

		if !s.tryConsume(head.n) {
			s.queueLock.Release()
			continue
		}

		s.queue = s.queue[1:]
		s.queueLock.Release()

		if head.setReady() {
			head.invokeWaker()
		} else {
			// The waiter dropped its request before we could reserve
			// tickets for it; return them and try the next waiter.
			s.addCurrent(head.n)
		}
	}
}

// Acquire requests n tickets and returns a Pending handle. A new acquirer
// is always enqueued at the tail when the waiter queue is already
// non-empty, even if enough tickets look available, to preserve FIFO
// fairness.
func (s *Semaphore) Acquire(n uint32) *Pending {
	s.queueLock.Acquire()

	if len(s.queue) > 0 {
		req := &request{n: n}
		s.queue = append(s.queue, req)
		s.queueLock.Release()
		return &Pending{sem: s, n: n, req: req}
	}

	current, total, closed, poisoned := unpackState(s.state.Load())
	switch {
	case closed:
		s.queueLock.Release()
		return &Pending{sem: s, n: n, err: ErrClosed}
	case poisoned:
		s.queueLock.Release()
		return &Pending{sem: s, n: n, err: ErrPoisoned}
	case n > total:
		s.queueLock.Release()
		return &Pending{sem: s, n: n, err: ErrNotEnoughTotalTickets}
	}
	_ = current

	if s.tryConsume(n) {
		s.queueLock.Release()
		return &Pending{sem: s, n: n, granted: true}
	}

	req := &request{n: n}
	s.queue = append(s.queue, req)
	s.queueLock.Release()
	return &Pending{sem: s, n: n, req: req}
}

// Release returns n tickets to the semaphore and then serves as many
// queued waiters as the new balance allows.
func (s *Semaphore) Release(n uint32) {
	s.addCurrent(n)
	s.serveQueue()
}

// AddTickets grows the semaphore's total and current capacity by n and
// serves any waiters this newly freed capacity can satisfy.
func (s *Semaphore) AddTickets(n uint32) {
	for {
		old := s.state.Load()
		current, total, closed, poisoned := unpackState(old)
		nw := packState(current+n, total+n, closed, poisoned)
		if s.state.CompareAndSwap(old, nw) {
			break
		}
	}
	s.serveQueue()
}

// RemoveTickets shrinks total capacity by n, clamping current down if
// necessary. It fails if n exceeds the current total.
func (s *Semaphore) RemoveTickets(n uint32) *kernel.Error {
	for {
		old := s.state.Load()
		current, total, closed, poisoned := unpackState(old)
		if n > total {
			return ErrNotEnoughTotalTickets
		}
		newTotal := total - n
		newCurrent := current
		if newCurrent > newTotal {
			newCurrent = newTotal
		}
		nw := packState(newCurrent, newTotal, closed, poisoned)
		if s.state.CompareAndSwap(old, nw) {
			return nil
		}
	}
}

// decreaseTotalOnly shrinks total capacity by n without touching current,
// used when a reserved ticket block is detached permanently.
func (s *Semaphore) decreaseTotalOnly(n uint32) {
	for {
		old := s.state.Load()
		current, total, closed, poisoned := unpackState(old)
		nw := packState(current, total-n, closed, poisoned)
		if s.state.CompareAndSwap(old, nw) {
			return
		}
	}
}

// Poison sets the sticky poison bit: every future Acquire fails until
// Unpoison is called. Already-queued waiters are not cancelled.
func (s *Semaphore) Poison() {
	for {
		old := s.state.Load()
		if s.state.CompareAndSwap(old, old|poisonedBit) {
			return
		}
	}
}

// Unpoison clears the poison bit.
func (s *Semaphore) Unpoison() {
	for {
		old := s.state.Load()
		if s.state.CompareAndSwap(old, old&^poisonedBit) {
			return
		}
	}
}

// Close marks the semaphore as permanently closed. Closing is sticky and
// terminal, the equivalent of dropping the semaphore in a reference-
// counted system.
func (s *Semaphore) Close() {
	for {
		old := s.state.Load()
		if s.state.CompareAndSwap(old, old|closedBit) {
			return
		}
	}
}

// QuantityAvailable returns the currently available ticket count.
func (s *Semaphore) QuantityAvailable() uint32 {
	current, _, _, _ := unpackState(s.state.Load())
	return current
}

// QuantityTotal returns the semaphore's total capacity.
func (s *Semaphore) QuantityTotal() uint32 {
	_, total, _, _ := unpackState(s.state.Load())
	return total
}

// Pending is a not-yet-resolved acquire request returned by Acquire.
type Pending struct {
	sem     *Semaphore
	n       uint32
	req     *request
	err     *kernel.Error
	granted bool
}

// TryAcquire resolves the pending request without blocking. It returns
// (nil, nil) if the request is valid but still waiting for tickets.
func (p *Pending) TryAcquire() (*Guard, *kernel.Error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.granted {
		return &Guard{sem: p.sem, n: p.n}, nil
	}
	if p.req.tryAck() {
		return &Guard{sem: p.sem, n: p.n}, nil
	}
	return nil, nil
}

// BlockingAcquire blocks the calling goroutine until the request resolves.
func (p *Pending) BlockingAcquire() (*Guard, *kernel.Error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.granted {
		return &Guard{sem: p.sem, n: p.n}, nil
	}

	done := make(chan struct{})
	p.req.attachWaker(func() { close(done) })
	<-done
	p.req.tryAck()
	return &Guard{sem: p.sem, n: p.n}, nil
}

// AcquireResult is the value a Pending's Poll resolves to: either a
// granted Guard or the terminal error that stopped the acquire.
type AcquireResult struct {
	Guard *Guard
	Err   *kernel.Error
}

// Poll implements the future-like interface external schedulers use to
// drive an acquire cooperatively: a task's future can embed a Pending and
// forward to this method. wake is attached as the request's waker at
// most once; later polls that are still waiting are safe to repeat.
func (p *Pending) Poll(wake func()) (AcquireResult, bool) {
	if p.err != nil {
		return AcquireResult{Err: p.err}, true
	}
	if p.granted {
		return AcquireResult{Guard: &Guard{sem: p.sem, n: p.n}}, true
	}
	if p.req.tryAck() {
		return AcquireResult{Guard: &Guard{sem: p.sem, n: p.n}}, true
	}
	if p.req.lifecycle.Load()&reqAttachedFuture == 0 {
		p.req.attachWaker(wake)
		// attachWaker may have found the request already ready and
		// invoked wake synchronously; re-check before reporting not-ready.
		if p.req.tryAck() {
			return AcquireResult{Guard: &Guard{sem: p.sem, n: p.n}}, true
		}
	}
	return AcquireResult{}, false
}

// Drop abandons a pending acquire. If tickets had already been reserved
// for it (ready but not yet acknowledged), they are returned immediately,
// triggering a release cascade for the next waiter.
func (p *Pending) Drop() {
	if p.err != nil || p.granted || p.req == nil {
		return
	}
	if p.req.markDropped() {
		return
	}
	p.sem.Release(p.n)
}

// Guard is an owned reservation of n tickets. Release returns them to the
// semaphore; it is safe to call at most meaningfully once.
type Guard struct {
	sem      *Semaphore
	n        uint32
	released atomic.Bool
}

// Release returns the guard's tickets to the semaphore.
func (g *Guard) Release() {
	if g == nil || !g.released.CompareAndSwap(false, true) {
		return
	}
	g.sem.Release(g.n)
}

// IntoOwned detaches the guard's tickets from the semaphore entirely:
// total capacity shrinks by the guard's ticket count, since these tickets
// no longer belong to it. current is already short by that count (it was
// reserved at acquire time), so only total needs to move. The returned
// value can be handed back to the semaphore later via AddTickets.
func (g *Guard) IntoOwned() *OwnedTickets {
	if !g.released.CompareAndSwap(false, true) {
		return nil
	}
	g.sem.decreaseTotalOnly(g.n)
	return &OwnedTickets{n: g.n}
}

// OwnedTickets is a ticket count detached from any semaphore.
type OwnedTickets struct {
	n uint32
}

// Count returns the number of detached tickets.
func (o *OwnedTickets) Count() uint32 {
	return o.n
}
