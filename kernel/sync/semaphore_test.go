package sync

import (
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s := NewSemaphore(10)

	guard, err := s.Acquire(4).TryAcquire()
	if err != nil || guard == nil {
		t.Fatalf("unexpected acquire failure: %v", err)
	}
	if got := s.QuantityAvailable(); got != 6 {
		t.Fatalf("expected 6 available, got %d", got)
	}

	guard.Release()
	if got := s.QuantityAvailable(); got != 10 {
		t.Fatalf("expected 10 available after release, got %d", got)
	}
}

func TestAcquireExceedsTotalFails(t *testing.T) {
	s := NewSemaphore(100)
	_, err := s.Acquire(200).TryAcquire()
	if err != ErrNotEnoughTotalTickets {
		t.Fatalf("expected ErrNotEnoughTotalTickets, got %v", err)
	}
}

func TestPoisonUnpoison(t *testing.T) {
	s := NewSemaphore(100)

	s.Poison()
	if _, err := s.Acquire(20).TryAcquire(); err != ErrPoisoned {
		t.Fatalf("expected ErrPoisoned, got %v", err)
	}

	s.Unpoison()
	guard, err := s.Acquire(20).TryAcquire()
	if err != nil || guard == nil {
		t.Fatalf("expected acquire to succeed after unpoison, got %v", err)
	}
}

func TestClosedSemaphoreRejectsAcquire(t *testing.T) {
	s := NewSemaphore(5)
	s.Close()
	if _, err := s.Acquire(1).TryAcquire(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// TestFIFOOrdering checks an A(5)/B(10)/C(1) scenario on a 10-ticket
// semaphore: once A holds 5 tickets, B(10) cannot yet proceed, and C(1)
// must never jump ahead of B even though 5 tickets remain free.
func TestFIFOOrdering(t *testing.T) {
	s := NewSemaphore(10)

	a, err := s.Acquire(5).TryAcquire()
	if err != nil || a == nil {
		t.Fatalf("unexpected error acquiring A: %v", err)
	}

	pendingB := s.Acquire(10)
	if guard, _ := pendingB.TryAcquire(); guard != nil {
		t.Fatalf("B should not be immediately satisfiable")
	}

	pendingC := s.Acquire(1)
	if guard, _ := pendingC.TryAcquire(); guard != nil {
		t.Fatalf("C must not be served ahead of queued B even though tickets are free")
	}

	a.Release()

	bDone := make(chan struct{})
	go func() {
		guard, err := pendingB.BlockingAcquire()
		if err != nil || guard == nil {
			t.Errorf("unexpected error acquiring B: %v", err)
		}
		close(bDone)
		guard.Release()
	}()
	<-bDone

	guard, err := pendingC.BlockingAcquire()
	if err != nil || guard == nil {
		t.Fatalf("unexpected error acquiring C: %v", err)
	}
	guard.Release()
}

// TestConcurrentStress exercises 32 goroutines each performing 1000
// acquire(1)/drop cycles on a 10-ticket semaphore. At every observation
// point while any goroutine holds a ticket, available must stay below
// total; once everything quiesces, available must equal total again.
func TestConcurrentStress(t *testing.T) {
	const (
		workers    = 32
		iterations = 1000
		capacity   = 10
	)

	s := NewSemaphore(capacity)
	var violations atomic.Int64

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				guard, err := s.Acquire(1).BlockingAcquire()
				if err != nil {
					return err
				}
				if s.QuantityAvailable() > capacity-1 {
					violations.Add(1)
				}
				guard.Release()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error from worker: %v", err)
	}
	if violations.Load() != 0 {
		t.Fatalf("observed %d over-admission violations", violations.Load())
	}
	if got := s.QuantityAvailable(); got != capacity {
		t.Fatalf("expected quiescent available == %d, got %d", capacity, got)
	}
	if got := s.QuantityTotal(); got != capacity {
		t.Fatalf("expected total unchanged at %d, got %d", capacity, got)
	}
}

func TestDropReleasesReadyButUnackedTickets(t *testing.T) {
	s := NewSemaphore(5)

	a, err := s.Acquire(5).TryAcquire()
	if err != nil || a == nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := s.Acquire(5)
	a.Release() // reserves all 5 tickets for pending's request, marking it ready

	pending.Drop()

	if got := s.QuantityAvailable(); got != 5 {
		t.Fatalf("expected dropped pending to return its reserved tickets, got %d available", got)
	}
}

func TestAddAndRemoveTickets(t *testing.T) {
	s := NewSemaphore(10)

	s.AddTickets(5)
	if got := s.QuantityTotal(); got != 15 {
		t.Fatalf("expected total 15 after AddTickets, got %d", got)
	}
	if got := s.QuantityAvailable(); got != 15 {
		t.Fatalf("expected available 15 after AddTickets, got %d", got)
	}

	if err := s.RemoveTickets(20); err != ErrNotEnoughTotalTickets {
		t.Fatalf("expected ErrNotEnoughTotalTickets, got %v", err)
	}

	if err := s.RemoveTickets(5); err != nil {
		t.Fatalf("unexpected error removing tickets: %v", err)
	}
	if got := s.QuantityTotal(); got != 10 {
		t.Fatalf("expected total 10 after RemoveTickets, got %d", got)
	}
}

func TestIntoOwnedDetachesCapacity(t *testing.T) {
	s := NewSemaphore(10)

	guard, err := s.Acquire(3).TryAcquire()
	if err != nil || guard == nil {
		t.Fatalf("unexpected error: %v", err)
	}

	owned := guard.IntoOwned()
	if owned == nil || owned.Count() != 3 {
		t.Fatalf("expected owned tickets count 3, got %v", owned)
	}

	if got := s.QuantityTotal(); got != 7 {
		t.Fatalf("expected total reduced to 7, got %d", got)
	}
	if got := s.QuantityAvailable(); got != 7 {
		t.Fatalf("expected available 7, got %d", got)
	}

	// Releasing a guard already converted into owned tickets is a no-op.
	guard.Release()
	if got := s.QuantityAvailable(); got != 7 {
		t.Fatalf("expected Release after IntoOwned to be a no-op, got %d", got)
	}
}

func TestPollingPendingBeforeReadyReturnsNoGuardNoError(t *testing.T) {
	s := NewSemaphore(1)

	holder, err := s.Acquire(1).TryAcquire()
	if err != nil || holder == nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := s.Acquire(1)
	if guard, pollErr := pending.TryAcquire(); guard != nil || pollErr != nil {
		t.Fatalf("expected (nil, nil) while still waiting, got guard=%v err=%v", guard, pollErr)
	}

	holder.Release()
	guard, err := pending.TryAcquire()
	if err != nil || guard == nil {
		t.Fatalf("expected ticket to become available after release, got %v", err)
	}
	guard.Release()
}
