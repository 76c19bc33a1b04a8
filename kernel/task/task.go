// Package task runs futures on an external scheduler without committing to
// a particular concurrency model: a task owns a single atomic state word
// (reference count plus lifecycle bits), a future, and a single-slot
// completion waker. Schedulers interact with it through the type-erased
// Handle rather than the generic Task itself.
package task

import "sync"

// Future is polled by a task's Run. wake is the callback the future (or
// whatever it is waiting on) must call when it can make progress again;
// calling it reschedules the task on its runtime.
type Future[T any] interface {
	Poll(wake func()) (value T, ready bool)
}

// FutureFunc adapts a plain function to the Future interface.
type FutureFunc[T any] func(wake func()) (T, bool)

// Poll implements Future.
func (f FutureFunc[T]) Poll(wake func()) (T, bool) { return f(wake) }

// RuntimeSupport is the one operation a task needs from its scheduler:
// the ability to reschedule a task that became ready again.
type RuntimeSupport interface {
	ScheduleTask(h Handle)
}

// Task owns a future, its runtime handle, and the bookkeeping the poll
// lifecycle needs. Schedulers should hold a Handle, not a *Task directly;
// code that created the task and wants its result holds the *Task to call
// GetOutput.
type Task[T any] struct {
	state   state
	future  Future[T]
	runtime RuntimeSupport

	mu            sync.Mutex
	waker         func()
	wakerAttached bool
	output        T
}

// New constructs a task around future, to be driven by runtime. The
// returned Task starts with a reference count of one, for the caller.
func New[T any](future Future[T], runtime RuntimeSupport) *Task[T] {
	t := &Task[T]{future: future, runtime: runtime}
	t.state.word.Store(1)
	return t
}

// Handle returns a new type-erased reference to t, incrementing its
// reference count.
func (t *Task[T]) Handle() Handle {
	t.state.addRef()
	return Handle{
		wake:       t.wake,
		cloneWaker: t.Handle,
		drop:       t.drop,
		run:        t.run,
	}
}

func (t *Task[T]) wake() {
	if t.runtime != nil {
		t.runtime.ScheduleTask(t.Handle())
	}
}

func (t *Task[T]) drop() {
	t.state.subRef()
}

func (t *Task[T]) run() RunResult {
	result, transitioned := t.state.pollLifecycle(func() RunResult {
		value, ready := t.future.Poll(t.wake)
		if !ready {
			return RunPending
		}
		t.mu.Lock()
		t.output = value
		t.mu.Unlock()
		return RunFinished
	})

	if transitioned && result == RunFinished {
		t.fireCompletionWaker()
	}
	return result
}

// Cancel marks the task as canceled, unless it has already finished or
// already been canceled. Cancellation is cooperative: it does not
// interrupt a poll already in flight, it only causes the next poll to
// short-circuit to Canceled.
func (t *Task[T]) Cancel() {
	if t.state.cancel() {
		t.fireCompletionWaker()
	}
}

func (t *Task[T]) fireCompletionWaker() {
	t.mu.Lock()
	w := t.waker
	t.waker = nil
	t.mu.Unlock()
	if w != nil {
		w()
	}
}

// SetWaker installs the task's single completion waker, fired exactly
// once after the task's terminal transition. Attaching a second waker is
// a programming error. If the task has already reached a terminal state,
// w is invoked immediately.
func (t *Task[T]) SetWaker(w func()) {
	t.mu.Lock()
	if t.wakerAttached {
		t.mu.Unlock()
		panic("task: completion waker already attached")
	}
	t.wakerAttached = true

	if t.state.isTerminal() {
		t.mu.Unlock()
		w()
		return
	}
	t.waker = w
	t.mu.Unlock()
}

// GetOutput takes the task's output by value if the task finished
// without being canceled and the output has not already been taken.
func (t *Task[T]) GetOutput() (T, bool) {
	if !t.state.tryConsume() {
		var zero T
		return zero, false
	}

	t.mu.Lock()
	out := t.output
	var zero T
	t.output = zero
	t.mu.Unlock()
	return out, true
}
